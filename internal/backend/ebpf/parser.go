package ebpf

import (
	"strings"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/sema"
)

// Parser lowers a parser to labelled blocks of the entry function. Each
// state is a label; transitions are gotos.
type Parser struct {
	*aliases

	Name string
	Decl ir.NodeID

	p      *Program
	labels map[string]string
	built  bool
}

func newParser(p *Program, id ir.NodeID) *Parser {
	return &Parser{
		aliases: newAliases(),
		Name:    p.tree.Name(id),
		Decl:    id,
		p:       p,
		labels:  make(map[string]string),
	}
}

const startState = "start"

// Build binds the parameters and names the state labels.
func (prs *Parser) Build() error {
	if prs.built {
		return nil
	}
	p := prs.p
	d, err := ir.MustAs[ir.Parser](p.tree, prs.Decl)
	if err != nil {
		return err
	}
	p.bindParams(prs.aliases, d.Params, false)
	for _, s := range d.States {
		name := p.tree.Name(s)
		prs.labels[name] = prs.Name + "_" + name
	}
	if _, ok := prs.labels[startState]; !ok {
		p.bag.Add(diag.Errorf(diag.BackendBadControlParams, p.tree.Span(prs.Decl),
			"parser %s has no %s state", prs.Name, startState))
	}
	prs.labels[sema.StateAccept] = prs.acceptLabel()
	prs.labels[sema.StateReject] = rejectLabel
	prs.built = true
	return nil
}

func (prs *Parser) acceptLabel() string { return prs.Name + "_" + sema.StateAccept }

// Emit writes the locals and the states. Control falls out of the parser at
// the accept label.
func (prs *Parser) Emit(b *CodeBuilder) error {
	if !prs.built {
		return ir.Bugf("parser %s emitted before it was built", prs.Name)
	}
	t := prs.p.tree
	d := ir.Get[ir.Parser](t, prs.Decl)
	tr := newTranslator(prs.p, b, prs.aliases, nil)
	for _, l := range d.Locals {
		switch t.Kind(l) {
		case ir.KindVar, ir.KindConst:
			if _, err := tr.run(l); err != nil {
				return err
			}
		}
	}
	if start, ok := prs.labels[startState]; ok {
		b.Line("goto %s;", start)
	}
	for _, s := range d.States {
		st := ir.Get[ir.ParserState](t, s)
		if st.Name == sema.StateAccept || st.Name == sema.StateReject {
			continue
		}
		b.Appendf("%s:\n", prs.labels[st.Name])
		b.EmitIndent()
		b.BlockStart()
		tr.align = 0
		for _, stmt := range st.Stmts {
			if _, err := tr.run(stmt); err != nil {
				return err
			}
		}
		if err := prs.transition(tr, st.Transition); err != nil {
			return err
		}
		b.BlockEnd(true)
	}
	b.Appendf("%s: ;\n", prs.acceptLabel())
	return nil
}

func (prs *Parser) label(id ir.NodeID) (string, error) {
	name := prs.p.tree.Name(id)
	l, ok := prs.labels[name]
	if !ok {
		return "", ir.BugAt(id, "transition to unknown state %s in parser %s", name, prs.Name)
	}
	return l, nil
}

// transition lowers a direct transition to a goto and a select to a chain
// of conditional gotos ending in a reject.
func (prs *Parser) transition(tr *translator, id ir.NodeID) error {
	b := tr.b
	t := prs.p.tree
	if !id.IsValid() {
		b.Line("goto %s;", rejectLabel)
		return nil
	}
	switch d := t.Data(id).(type) {
	case ir.Path:
		l, err := prs.label(id)
		if err != nil {
			return err
		}
		b.Line("goto %s;", l)
		return nil
	case ir.SelectExpr:
		return prs.selectChain(tr, d)
	}
	return ir.BugAt(id, "unexpected transition %s", t.Kind(id))
}

func (prs *Parser) selectChain(tr *translator, sel ir.SelectExpr) error {
	p := prs.p
	t := p.tree
	b := tr.b
	keys := make([]string, len(sel.Keys))
	for i, k := range sel.Keys {
		v, err := tr.lowerExpr(k)
		if err != nil {
			return err
		}
		tmp := p.names.NewName("select")
		decl, ok := p.declare(p.tm.Type(k), tmp)
		if !ok {
			p.bag.Add(diag.Errorf(diag.BackendUnsupportedType, t.Span(k), "cannot select on a value of type %s",
				p.in.String(p.tm.Type(k))))
			return nil
		}
		b.Line("%s = %s;", decl, v)
		keys[i] = tmp
	}
	for _, cs := range sel.Cases {
		sc := ir.Get[ir.SelectCase](t, cs)
		target, err := prs.label(sc.State)
		if err != nil {
			return err
		}
		var elems []ir.NodeID
		if l, ok := ir.As[ir.ListExpr](t, sc.Keyset); ok {
			elems = l.Elems
		} else {
			elems = []ir.NodeID{sc.Keyset}
		}
		if len(elems) != len(keys) {
			return ir.BugAt(cs, "keyset has %d elements for %d keys", len(elems), len(keys))
		}
		var conds []string
		for i, e := range elems {
			if t.Kind(e) == ir.KindDefaultExpr {
				continue
			}
			v, err := tr.lowerExpr(e)
			if err != nil {
				return err
			}
			conds = append(conds, "("+keys[i]+" == "+v+")")
		}
		if len(conds) == 0 {
			b.Line("goto %s;", target)
			return nil
		}
		b.Line("if (%s) goto %s;", strings.Join(conds, " && "), target)
	}
	b.Line("goto %s;", rejectLabel)
	return nil
}
