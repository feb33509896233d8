package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"kestrel/internal/source"
)

var (
	errorLabel   = color.New(color.FgRed, color.Bold)
	warningLabel = color.New(color.FgYellow, color.Bold)
	infoLabel    = color.New(color.FgCyan)
	noteLabel    = color.New(color.FgBlue)
)

// PrettyOptions configures Pretty.
type PrettyOptions struct {
	Color bool
}

// Pretty writes one block per diagnostic:
//
//	prog.p4:10-14: ERROR[E5001 unsupported-match-kind]: message
//	  note prog.p4:3-7: note text
func Pretty(w io.Writer, bag *Bag, files *source.Files, opts PrettyOptions) error {
	for _, d := range bag.Items() {
		label := d.Severity.String()
		if opts.Color {
			label = severityColor(d.Severity).Sprint(label)
		}
		if _, err := fmt.Fprintf(w, "%s: %s[%s %s]: %s\n", files.Format(d.Primary), label, d.Code.ID(), d.Code, d.Message); err != nil {
			return err
		}
		for _, n := range d.Notes {
			note := "note"
			if opts.Color {
				note = noteLabel.Sprint(note)
			}
			if _, err := fmt.Fprintf(w, "  %s %s: %s\n", note, files.Format(n.Span), n.Msg); err != nil {
				return err
			}
		}
	}
	if dropped := bag.Dropped(); dropped > 0 {
		if _, err := fmt.Fprintf(w, "... %d more diagnostics not shown\n", dropped); err != nil {
			return err
		}
	}
	return nil
}

func severityColor(s Severity) *color.Color {
	switch s {
	case SevError:
		return errorLabel
	case SevWarning:
		return warningLabel
	default:
		return infoLabel
	}
}
