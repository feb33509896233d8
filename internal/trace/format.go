package trace

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Format is the encoding of streamed events.
type Format uint8

const (
	FormatAuto    Format = iota // chosen from the output path
	FormatText                  // one human-readable line per event
	FormatNDJSON                // one JSON object per line
	FormatMsgpack               // a stream of msgpack maps
)

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return FormatAuto, nil
	case "text":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	case "msgpack":
		return FormatMsgpack, nil
	}
	return FormatAuto, fmt.Errorf("invalid trace format %q (expected auto|text|ndjson|msgpack)", s)
}

// FormatForPath picks a format from the extension of path.
func FormatForPath(path string) Format {
	switch filepath.Ext(path) {
	case ".ndjson", ".json":
		return FormatNDJSON
	case ".msgpack", ".mpk":
		return FormatMsgpack
	}
	return FormatText
}

// FormatEvent encodes ev. Encoding failures yield nil.
func FormatEvent(ev *Event, format Format) []byte {
	switch format {
	case FormatNDJSON:
		return formatNDJSON(ev)
	case FormatMsgpack:
		data, err := msgpack.Marshal(ev)
		if err != nil {
			return nil
		}
		return data
	}
	return formatText(ev)
}

type jsonEvent struct {
	Time      string            `json:"time"`
	Seq       uint64            `json:"seq"`
	Kind      string            `json:"kind"`
	Scope     string            `json:"scope"`
	SpanID    uint64            `json:"span_id,omitempty"`
	ParentID  uint64            `json:"parent_id,omitempty"`
	Name      string            `json:"name"`
	Detail    string            `json:"detail,omitempty"`
	ElapsedUS int64             `json:"elapsed_us,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

func formatNDJSON(ev *Event) []byte {
	data, err := json.Marshal(jsonEvent{
		Time:      ev.Time.Format("2006-01-02T15:04:05.000000Z07:00"),
		Seq:       ev.Seq,
		Kind:      ev.Kind.String(),
		Scope:     ev.Scope.String(),
		SpanID:    ev.SpanID,
		ParentID:  ev.ParentID,
		Name:      ev.Name,
		Detail:    ev.Detail,
		ElapsedUS: ev.Elapsed.Microseconds(),
		Extra:     ev.Extra,
	})
	if err != nil {
		return nil
	}
	return append(data, '\n')
}

// formatText renders `15:04:05.000000 pass   > name (detail) {k=v}`.
func formatText(ev *Event) []byte {
	var sb strings.Builder
	sb.WriteString(ev.Time.Format("15:04:05.000000"))
	fmt.Fprintf(&sb, " %-6s ", ev.Scope)
	switch ev.Kind {
	case KindSpanBegin:
		sb.WriteString("> ")
	case KindSpanEnd:
		sb.WriteString("< ")
	case KindHeartbeat:
		sb.WriteString("~ ")
	default:
		sb.WriteString(". ")
	}
	sb.WriteString(ev.Name)
	if ev.Kind == KindSpanEnd {
		fmt.Fprintf(&sb, " [%s]", ev.Elapsed)
	}
	if ev.Detail != "" {
		sb.WriteString(" (" + ev.Detail + ")")
	}
	if len(ev.Extra) > 0 {
		keys := make([]string, 0, len(ev.Extra))
		for k := range ev.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k + "=" + ev.Extra[k])
		}
		sb.WriteString("}")
	}
	sb.WriteByte('\n')
	return []byte(sb.String())
}
