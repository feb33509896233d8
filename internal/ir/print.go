package ir

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Printer renders a tree as P4-like source text.
type Printer struct {
	w      io.Writer
	t      *Tree
	indent int
	err    error
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, t *Tree) *Printer {
	return &Printer{w: w, t: t}
}

// Dump writes the sub-tree rooted at root to w.
func Dump(w io.Writer, t *Tree, root NodeID) error {
	p := NewPrinter(w, t)
	p.Print(root)
	return p.err
}

// String renders the sub-tree rooted at root.
func String(t *Tree, root NodeID) string {
	var sb strings.Builder
	_ = Dump(&sb, t, root)
	return sb.String()
}

// Print writes one node: declarations and statements on their own lines,
// types and expressions inline.
func (p *Printer) Print(id NodeID) {
	k := p.t.Kind(id)
	switch {
	case k.IsType(), k.IsExpression() && k != KindSelectExpr:
		p.line("%s", p.Expr(id))
	case k == KindProgram:
		for i, d := range Get[Program](p.t, id).Decls {
			if i > 0 {
				p.printf("\n")
			}
			p.Print(d)
		}
	default:
		p.decl(id)
	}
}

func (p *Printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) line(format string, args ...any) {
	p.printf("%s", strings.Repeat("    ", p.indent))
	p.printf(format, args...)
	p.printf("\n")
}

func (p *Printer) open(format string, args ...any) {
	p.line(format+" {", args...)
	p.indent++
}

func (p *Printer) close() {
	p.indent--
	p.line("}")
}

func (p *Printer) params(ids []NodeID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		d, ok := As[Param](p.t, id)
		if !ok {
			parts = append(parts, "?")
			continue
		}
		s := p.Expr(d.Type) + " " + d.Name
		if dir := d.Dir.String(); dir != "" {
			s = dir + " " + s
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

func (p *Printer) decl(id NodeID) {
	switch d := p.t.Data(id).(type) {
	case StructDecl:
		p.fields("struct", d.Name, d.Fields)
	case HeaderDecl:
		p.fields("header", d.Name, d.Fields)
	case Field:
		p.line("%s %s;", p.Expr(d.Type), d.Name)
	case Typedef:
		p.line("typedef %s %s;", p.Expr(d.Type), d.Name)
	case ErrorDecl:
		p.line("error { %s }", strings.Join(d.Members, ", "))
	case ExternDecl:
		p.open("extern %s", d.Name)
		if len(d.CtorParams) > 0 {
			p.line("%s(%s);", d.Name, p.params(d.CtorParams))
		}
		for _, m := range d.Methods {
			p.decl(m)
		}
		p.close()
	case MethodDecl:
		ret := "void"
		if d.Return.IsValid() {
			ret = p.Expr(d.Return)
		}
		name := d.Name
		if len(d.TypeParams) > 0 {
			name += "<" + strings.Join(d.TypeParams, ", ") + ">"
		}
		p.line("%s %s(%s);", ret, name, p.params(d.Params))
	case Instance:
		p.line("%s(%s) %s;", p.Expr(d.Type), p.exprs(d.Args), d.Name)
	case Const:
		p.line("const %s %s = %s;", p.Expr(d.Type), d.Name, p.Expr(d.Value))
	case Var:
		if d.Init.IsValid() {
			p.line("%s %s = %s;", p.Expr(d.Type), d.Name, p.Expr(d.Init))
		} else {
			p.line("%s %s;", p.Expr(d.Type), d.Name)
		}
	case Param:
		p.line("%s;", p.params([]NodeID{id}))
	case Parser:
		p.open("parser %s(%s)", d.Name, p.params(d.Params))
		for _, l := range d.Locals {
			p.decl(l)
		}
		for _, s := range d.States {
			p.decl(s)
		}
		p.close()
	case ParserState:
		p.open("state %s", d.Name)
		for _, s := range d.Stmts {
			p.stmt(s)
		}
		p.transition(d.Transition)
		p.close()
	case Control:
		p.open("control %s(%s)", d.Name, p.params(d.Params))
		for _, l := range d.Locals {
			p.decl(l)
		}
		p.printf("%s", strings.Repeat("    ", p.indent))
		p.printf("apply ")
		p.blockBody(d.Body)
		p.close()
	case Action:
		p.printf("%s", strings.Repeat("    ", p.indent))
		p.printf("action %s(%s) ", d.Name, p.params(d.Params))
		p.blockBody(d.Body)
	case Table:
		p.table(d)
	case KeyElement:
		p.line("%s : %s;", p.Expr(d.Expr), d.Match)
	default:
		p.stmt(id)
	}
}

func (p *Printer) fields(keyword, name string, fields []NodeID) {
	p.open("%s %s", keyword, name)
	for _, f := range fields {
		p.decl(f)
	}
	p.close()
}

func (p *Printer) table(d Table) {
	p.open("table %s", d.Name)
	if len(d.Keys) > 0 {
		p.open("key =")
		for _, k := range d.Keys {
			p.decl(k)
		}
		p.close()
	}
	p.open("actions =")
	for _, a := range d.Actions {
		p.line("%s;", p.Expr(a))
	}
	p.close()
	if d.Default.IsValid() {
		p.line("default_action = %s;", p.Expr(d.Default))
	}
	if d.Impl.IsValid() {
		p.line("implementation = %s;", p.Expr(d.Impl))
	}
	p.close()
}

func (p *Printer) transition(id NodeID) {
	if !id.IsValid() {
		return
	}
	sel, ok := As[SelectExpr](p.t, id)
	if !ok {
		p.line("transition %s;", p.Expr(id))
		return
	}
	p.open("transition select(%s)", p.exprs(sel.Keys))
	for _, c := range sel.Cases {
		sc := Get[SelectCase](p.t, c)
		p.line("%s: %s;", p.Expr(sc.Keyset), p.Expr(sc.State))
	}
	p.close()
}

// blockBody prints a block that starts on the current line.
func (p *Printer) blockBody(id NodeID) {
	b, ok := As[Block](p.t, id)
	if !ok {
		p.printf("{\n")
		p.indent++
		p.stmt(id)
		p.close()
		return
	}
	p.printf("{\n")
	p.indent++
	for _, s := range b.Stmts {
		p.stmt(s)
	}
	p.close()
}

func (p *Printer) stmt(id NodeID) {
	switch d := p.t.Data(id).(type) {
	case Block:
		p.printf("%s", strings.Repeat("    ", p.indent))
		p.blockBody(id)
	case If:
		p.printf("%s", strings.Repeat("    ", p.indent))
		p.printf("if (%s) ", p.Expr(d.Cond))
		p.blockBody(d.Then)
		if d.Else.IsValid() {
			p.printf("%s", strings.Repeat("    ", p.indent))
			p.printf("else ")
			p.blockBody(d.Else)
		}
	case Switch:
		p.open("switch (%s)", p.Expr(d.Expr))
		for _, c := range d.Cases {
			sc := Get[SwitchCase](p.t, c)
			if !sc.Body.IsValid() {
				p.line("%s:", p.Expr(sc.Label))
				continue
			}
			p.printf("%s", strings.Repeat("    ", p.indent))
			p.printf("%s: ", p.Expr(sc.Label))
			p.blockBody(sc.Body)
		}
		p.close()
	case Return:
		if d.Value.IsValid() {
			p.line("return %s;", p.Expr(d.Value))
		} else {
			p.line("return;")
		}
	case Exit:
		p.line("exit;")
	case CallStmt:
		p.line("%s;", p.Expr(d.Call))
	case Assign:
		p.line("%s = %s;", p.Expr(d.Left), p.Expr(d.Right))
	case Empty:
		p.line(";")
	case Seq:
		for _, it := range d.Items {
			p.Print(it)
		}
	case nil:
		p.line("<missing %d>", id)
	default:
		if d.Kind().IsStatement() || d.Kind().IsExpression() || d.Kind().IsType() {
			p.line("%s;", p.Expr(id))
			return
		}
		p.decl(id)
	}
}

func (p *Printer) exprs(ids []NodeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = p.Expr(id)
	}
	return strings.Join(parts, ", ")
}

// Expr renders a type or expression on one line.
func (p *Printer) Expr(id NodeID) string {
	switch d := p.t.Data(id).(type) {
	case TypeBool:
		return "bool"
	case TypeVoid:
		return "void"
	case TypeError:
		return "error"
	case TypeBits:
		if d.Signed {
			return "int<" + strconv.Itoa(d.Width) + ">"
		}
		return "bit<" + strconv.Itoa(d.Width) + ">"
	case TypeName:
		return d.Name
	case TypeTuple:
		return "tuple<" + p.exprs(d.Elems) + ">"
	case Path:
		return d.Name
	case Member:
		return p.Expr(d.Expr) + "." + d.Name
	case Constant:
		return constantText(d)
	case BoolLit:
		return strconv.FormatBool(d.Value)
	case Binary:
		return "(" + p.Expr(d.Left) + " " + d.Op.String() + " " + p.Expr(d.Right) + ")"
	case Unary:
		return d.Op.String() + p.Expr(d.Expr)
	case MethodCall:
		s := p.Expr(d.Method)
		if len(d.TypeArgs) > 0 {
			s += "<" + p.exprs(d.TypeArgs) + ">"
		}
		return s + "(" + p.exprs(d.Args) + ")"
	case ConstructorCall:
		return p.Expr(d.Type) + "(" + p.exprs(d.Args) + ")"
	case ListExpr:
		return "{" + p.exprs(d.Elems) + "}"
	case DefaultExpr:
		return "default"
	case SelectExpr:
		return "select(" + p.exprs(d.Keys) + ")"
	case SelectCase:
		return p.Expr(d.Keyset) + ": " + p.Expr(d.State)
	case nil:
		return fmt.Sprintf("<missing %d>", id)
	default:
		return "<" + d.Kind().String() + ">"
	}
}

func constantText(c Constant) string {
	var digits string
	switch c.Base {
	case 16:
		digits = "0x" + strconv.FormatUint(c.Value, 16)
	case 2:
		digits = "0b" + strconv.FormatUint(c.Value, 2)
	default:
		digits = strconv.FormatUint(c.Value, 10)
	}
	if c.Width == 0 {
		return digits
	}
	if c.Signed {
		return strconv.Itoa(c.Width) + "s" + digits
	}
	return strconv.Itoa(c.Width) + "w" + digits
}
