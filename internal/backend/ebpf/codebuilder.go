// Package ebpf lowers a checked, tuple-free program to eBPF C.
//
// A Program owns one Control unit per control block and one parser unit per
// parser. Units register their tables and counters during Build and write C
// through a CodeBuilder during Emit. The statement translator is an
// ir.Inspector; kinds it does not lower are internal errors.
package ebpf

import (
	"fmt"
	"io"
	"strings"
)

const indentWidth = 4

// CodeBuilder is the append-only sink generated C is written to.
type CodeBuilder struct {
	Target Target
	buf    strings.Builder
	indent int
}

func NewCodeBuilder(target Target) *CodeBuilder {
	return &CodeBuilder{Target: target}
}

func (b *CodeBuilder) Append(s string) { b.buf.WriteString(s) }

func (b *CodeBuilder) Appendf(format string, args ...any) {
	fmt.Fprintf(&b.buf, format, args...)
}

// AppendLine appends s and a newline.
func (b *CodeBuilder) AppendLine(s string) {
	b.buf.WriteString(s)
	b.buf.WriteByte('\n')
}

func (b *CodeBuilder) Newline() { b.buf.WriteByte('\n') }
func (b *CodeBuilder) Spc()     { b.buf.WriteByte(' ') }

func (b *CodeBuilder) EmitIndent() {
	b.buf.WriteString(strings.Repeat(" ", b.indent*indentWidth))
}

func (b *CodeBuilder) IncreaseIndent() { b.indent++ }

func (b *CodeBuilder) DecreaseIndent() {
	if b.indent > 0 {
		b.indent--
	}
}

// Line writes one indented, formatted line.
func (b *CodeBuilder) Line(format string, args ...any) {
	b.EmitIndent()
	fmt.Fprintf(&b.buf, format, args...)
	b.buf.WriteByte('\n')
}

// BlockStart opens a brace block on the current line.
func (b *CodeBuilder) BlockStart() {
	b.buf.WriteString("{\n")
	b.indent++
}

// BlockEnd closes the innermost brace block.
func (b *CodeBuilder) BlockEnd(newline bool) {
	b.DecreaseIndent()
	b.EmitIndent()
	b.buf.WriteByte('}')
	if newline {
		b.buf.WriteByte('\n')
	}
}

func (b *CodeBuilder) EndOfStatement(newline bool) {
	b.buf.WriteByte(';')
	if newline {
		b.buf.WriteByte('\n')
	}
}

func (b *CodeBuilder) String() string { return b.buf.String() }

func (b *CodeBuilder) Len() int { return b.buf.Len() }

// WriteTo writes the generated text to w.
func (b *CodeBuilder) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, b.buf.String())
	return int64(n), err
}
