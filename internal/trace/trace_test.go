package trace_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"kestrel/internal/trace"
)

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"off", "ERROR", "Phase", "detail", "debug"} {
		l, err := trace.ParseLevel(name)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", name, err)
		}
		if !strings.EqualFold(l.String(), name) {
			t.Errorf("ParseLevel(%q) = %s", name, l)
		}
	}
	if _, err := trace.ParseLevel("verbose"); err == nil {
		t.Errorf("ParseLevel accepted an unknown level")
	}
}

func TestShouldEmit(t *testing.T) {
	if trace.LevelPhase.ShouldEmit(trace.ScopeNode) {
		t.Errorf("phase level records node events")
	}
	if !trace.LevelPhase.ShouldEmit(trace.ScopePass) {
		t.Errorf("phase level drops pass events")
	}
	if !trace.LevelDetail.ShouldEmit(trace.ScopeNode) {
		t.Errorf("detail level drops node events")
	}
	if trace.LevelOff.ShouldEmit(trace.ScopeDriver) {
		t.Errorf("off level records events")
	}
}

func TestStreamSpans(t *testing.T) {
	var buf bytes.Buffer
	tr := trace.NewStreamTracer(&buf, trace.LevelPhase, trace.FormatText)
	ctx := trace.WithTracer(context.Background(), tr)

	ctx, unit := trace.Start(ctx, trace.ScopeUnit, "prog.kir")
	_, pass := trace.Start(ctx, trace.ScopePass, "typeCheck")
	pass.WithExtra("nodes", "12").End("ok")
	trace.Point(tr, trace.ScopeNode, "ignored", "", unit.ID())
	unit.End("")

	out := buf.String()
	for _, frag := range []string{"unit   > prog.kir", "pass   > typeCheck", "< typeCheck", "(ok) {nodes=12}"} {
		if !strings.Contains(out, frag) {
			t.Errorf("trace lacks %q:\n%s", frag, out)
		}
	}
	if strings.Contains(out, "ignored") {
		t.Errorf("node event streamed at phase level")
	}
}

func TestNDJSONParent(t *testing.T) {
	var buf bytes.Buffer
	tr := trace.NewStreamTracer(&buf, trace.LevelDebug, trace.FormatNDJSON)
	ctx := trace.WithTracer(context.Background(), tr)
	ctx, outer := trace.Start(ctx, trace.ScopeDriver, "compile")
	_, inner := trace.Start(ctx, trace.ScopePass, "midend")
	inner.End("")
	outer.End("")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("%d events, want 4:\n%s", len(lines), buf.String())
	}
	var ev struct {
		Kind     string `json:"kind"`
		Name     string `json:"name"`
		ParentID uint64 `json:"parent_id"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Kind != "begin" || ev.Name != "midend" || ev.ParentID != outer.ID() {
		t.Errorf("inner begin = %+v, want parent %d", ev, outer.ID())
	}
}

func TestMsgpackFormat(t *testing.T) {
	var buf bytes.Buffer
	tr := trace.NewStreamTracer(&buf, trace.LevelPhase, trace.FormatMsgpack)
	trace.Begin(tr, trace.ScopePass, "ebpf-kernel", 0).End("done")

	dec := msgpack.NewDecoder(&buf)
	var begin, end trace.Event
	if err := dec.Decode(&begin); err != nil {
		t.Fatalf("decode begin: %v", err)
	}
	if err := dec.Decode(&end); err != nil {
		t.Fatalf("decode end: %v", err)
	}
	if end.Kind != trace.KindSpanEnd || end.Detail != "done" || end.SpanID != begin.SpanID {
		t.Errorf("end event = %+v", end)
	}
}

func TestErrorLevelOnlyRings(t *testing.T) {
	var buf bytes.Buffer
	tr, err := trace.New(trace.Config{Level: trace.LevelError, Mode: trace.ModeBoth, Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	trace.Begin(tr, trace.ScopePass, "typeCheck", 0).End("")
	if buf.Len() != 0 {
		t.Errorf("error level streamed %q", buf.String())
	}
	ring := tr.(*trace.MultiTracer).Ring()
	if ring == nil || len(ring.Snapshot()) != 2 {
		t.Fatalf("ring did not keep the span")
	}
	var dump bytes.Buffer
	if err := ring.Dump(&dump, trace.FormatText); err != nil || !strings.Contains(dump.String(), "typeCheck") {
		t.Errorf("Dump = %q, %v", dump.String(), err)
	}
}

func TestRingWraps(t *testing.T) {
	r := trace.NewRingTracer(3, trace.LevelDebug)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		trace.Point(r, trace.ScopeNode, name, "", 0)
	}
	var names []string
	for _, ev := range r.Snapshot() {
		names = append(names, ev.Name)
	}
	if got := strings.Join(names, ""); got != "cde" {
		t.Errorf("snapshot = %s, want cde", got)
	}
}

func TestDisabled(t *testing.T) {
	tr, err := trace.New(trace.Config{Level: trace.LevelOff})
	if err != nil || tr.Enabled() {
		t.Fatalf("New(off) = %v, %v", tr, err)
	}
	ctx, span := trace.Start(context.Background(), trace.ScopeDriver, "x")
	if span.ID() != 0 || trace.CurrentSpan(ctx).SpanID != 0 {
		t.Errorf("span opened without a tracer")
	}
	if trace.StartHeartbeat(tr, 0) != nil {
		t.Errorf("heartbeat started for a disabled tracer")
	}
}

func TestFormatForPath(t *testing.T) {
	for path, want := range map[string]trace.Format{
		"":            trace.FormatText,
		"out.ndjson":  trace.FormatNDJSON,
		"out.msgpack": trace.FormatMsgpack,
		"trace.log":   trace.FormatText,
	} {
		if got := trace.FormatForPath(path); got != want {
			t.Errorf("FormatForPath(%q) = %d, want %d", path, got, want)
		}
	}
}
