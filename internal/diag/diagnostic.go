// Package diag carries source-program diagnostics.
//
// Diagnostics describe problems in the program being compiled. They are
// collected in a Bag and reported after a stage finishes. Defects of the
// compiler itself are not diagnostics; see ir.InternalError.
package diag

import (
	"fmt"

	"kestrel/internal/source"
)

type Note struct {
	Span source.Span
	Msg  string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Span
	Notes    []Note
}

// Errorf builds an error-severity diagnostic.
func Errorf(code Code, span source.Span, format string, args ...any) Diagnostic {
	return Diagnostic{
		Severity: SevError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Primary:  span,
	}
}

// Warningf builds a warning-severity diagnostic.
func Warningf(code Code, span source.Span, format string, args ...any) Diagnostic {
	return Diagnostic{
		Severity: SevWarning,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Primary:  span,
	}
}

// WithNote returns a copy of d with an extra note attached.
func (d Diagnostic) WithNote(span source.Span, msg string) Diagnostic {
	notes := make([]Note, 0, len(d.Notes)+1)
	notes = append(notes, d.Notes...)
	d.Notes = append(notes, Note{Span: span, Msg: msg})
	return d
}
