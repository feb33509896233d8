package ebpf

import (
	"math"

	"fortio.org/safecast"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/types"
)

// Control is the unit lowering one control block. Tables and counters are
// registered by Build; GetTable and GetCounter are total afterwards.
type Control struct {
	*aliases

	Name string
	Decl ir.NodeID

	p           *Program
	hitVariable string
	returnFlag  string

	tables       map[string]*Table
	counters     map[string]*CounterTable
	tableOrder   []*Table
	counterOrder []*CounterTable
	constants    map[ir.NodeID]ir.Constant
	bools        map[ir.NodeID]bool
	built        bool
}

func newControl(p *Program, id ir.NodeID) *Control {
	return &Control{
		aliases:   newAliases(),
		Name:      p.tree.Name(id),
		Decl:      id,
		p:         p,
		tables:    make(map[string]*Table),
		counters:  make(map[string]*CounterTable),
		constants: make(map[ir.NodeID]ir.Constant),
		bools:     make(map[ir.NodeID]bool),
	}
}

// scanConstants records the constant locals the table and counter
// constructors may refer to.
func (ctl *Control) scanConstants() {
	for _, l := range ir.Get[ir.Control](ctl.p.tree, ctl.Decl).Locals {
		if _, ok := ir.As[ir.Const](ctl.p.tree, l); !ok {
			continue
		}
		ctl.p.scanConst(l, ctl.constants, ctl.bools)
	}
}

// Build validates the control and registers its tables and counters.
func (ctl *Control) Build() error {
	if ctl.built {
		return nil
	}
	p := ctl.p
	t := p.tree
	d, err := ir.MustAs[ir.Control](t, ctl.Decl)
	if err != nil {
		return err
	}
	ctl.scanConstants()
	p.bindParams(ctl.aliases, d.Params, true)

	for _, l := range d.Locals {
		switch data := t.Data(l).(type) {
		case ir.Table:
			if _, dup := ctl.tables[data.Name]; dup {
				return ir.BugAt(l, "table %s declared twice in %s", data.Name, ctl.Name)
			}
			tb, err := ctl.buildTable(l)
			if err != nil {
				return err
			}
			ctl.tables[data.Name] = tb
			ctl.tableOrder = append(ctl.tableOrder, tb)
		case ir.Instance:
			info, _ := p.in.NominalInfo(p.tm.Type(l))
			if info == nil || info.Kind != types.KindExtern || info.Name != ModelCounterArray {
				p.bag.Add(diag.Errorf(diag.BackendUnsupportedType, t.Span(l),
					"instances of %s are not supported in a control", p.in.String(p.tm.Type(l))))
				continue
			}
			if _, dup := ctl.counters[data.Name]; dup {
				return ir.BugAt(l, "counter %s declared twice in %s", data.Name, ctl.Name)
			}
			ct := ctl.buildCounter(l)
			ctl.counters[data.Name] = ct
			ctl.counterOrder = append(ctl.counterOrder, ct)
		}
	}
	if err := ctl.checkReferences(d); err != nil {
		return err
	}

	ctl.hitVariable = p.names.NewName("hit")
	returns, err := countReturns(t, d.Body)
	if err != nil {
		return err
	}
	if returns > 0 {
		ctl.returnFlag = p.names.NewName("ret")
	}
	ctl.built = true
	return nil
}

// checkReferences makes sure every table applied and every counter updated
// in the body or in an action is registered.
func (ctl *Control) checkReferences(d ir.Control) error {
	p := ctl.p
	t := p.tree
	check := ir.NewInspector("ebpf-check-refs").Pre(ir.KindMember, func(_ *ir.Cursor, id ir.NodeID) (bool, error) {
		m := ir.Get[ir.Member](t, id)
		decl, ok := p.refs.Decl(m.Expr)
		if !ok {
			return true, nil
		}
		switch t.Kind(decl) {
		case ir.KindTable:
			if _, ok := ctl.tables[t.Name(decl)]; !ok {
				return false, ir.BugAt(id, "no table named %s in control %s", t.Name(decl), ctl.Name)
			}
		case ir.KindInstance:
			if m.Name != ModelIncrement && m.Name != ModelAdd {
				return true, nil
			}
			if _, ok := ctl.counters[t.Name(decl)]; !ok {
				return false, ir.BugAt(id, "no counter named %s in control %s", t.Name(decl), ctl.Name)
			}
		}
		return true, nil
	})
	if err := check.Apply(t, d.Body); err != nil {
		return err
	}
	for _, l := range d.Locals {
		if t.Kind(l) != ir.KindAction {
			continue
		}
		if err := check.Apply(t, ir.Get[ir.Action](t, l).Body); err != nil {
			return err
		}
	}
	return nil
}

// GetTable returns the table registered under name.
func (ctl *Control) GetTable(name string) (*Table, error) {
	if !ctl.built {
		return nil, ir.Bugf("table %s looked up before control %s was built", name, ctl.Name)
	}
	tb, ok := ctl.tables[name]
	if !ok {
		return nil, ir.Bugf("no table named %s in control %s", name, ctl.Name)
	}
	return tb, nil
}

// GetCounter returns the counter registered under name.
func (ctl *Control) GetCounter(name string) (*CounterTable, error) {
	if !ctl.built {
		return nil, ir.Bugf("counter %s looked up before control %s was built", name, ctl.Name)
	}
	ct, ok := ctl.counters[name]
	if !ok {
		return nil, ir.Bugf("no counter named %s in control %s", name, ctl.Name)
	}
	return ct, nil
}

// Tables returns the registered tables in declaration order.
func (ctl *Control) Tables() []*Table { return ctl.tableOrder }

// Emit writes the locals and the body of the control. The returned flow
// tells whether the control may exit the whole program.
func (ctl *Control) Emit(b *CodeBuilder) (flow, error) {
	if !ctl.built {
		return 0, ir.Bugf("control %s emitted before it was built", ctl.Name)
	}
	t := ctl.p.tree
	d := ir.Get[ir.Control](t, ctl.Decl)
	tr := newTranslator(ctl.p, b, ctl.aliases, ctl)
	tr.returnFlag = ctl.returnFlag

	b.Line("u8 %s = 0;", ctl.hitVariable)
	if ctl.returnFlag != "" {
		b.Line("u8 %s = 0;", ctl.returnFlag)
	}
	for _, l := range d.Locals {
		switch t.Kind(l) {
		case ir.KindVar, ir.KindConst:
			if _, err := tr.run(l); err != nil {
				return 0, err
			}
		}
	}
	f, err := tr.run(d.Body)
	if err != nil {
		return 0, err
	}
	return f & flowMayExit, nil
}

// EmitTables declares the types and maps of the tables and counters.
func (ctl *Control) EmitTables(b *CodeBuilder) error {
	if !ctl.built {
		return ir.Bugf("tables of control %s emitted before it was built", ctl.Name)
	}
	for _, tb := range ctl.tableOrder {
		if err := tb.emitTypes(b); err != nil {
			return err
		}
	}
	for _, tb := range ctl.tableOrder {
		tb.emitMaps(b)
	}
	for _, ct := range ctl.counterOrder {
		ct.emitMaps(b)
	}
	return nil
}

// sizeArg reads a positive table or counter size.
func (ctl *Control) sizeArg(arg ir.NodeID) (int, bool) {
	t := ctl.p.tree
	v, ok := ctl.constant(arg)
	if !ok {
		ctl.p.bag.Add(diag.Errorf(diag.BackendBadSize, t.Span(arg), "expected an integer constant size"))
		return 0, false
	}
	n, err := safecast.Conv[int32](v.Value)
	if err != nil || n == math.MaxInt32 {
		ctl.p.bag.Add(diag.Errorf(diag.BackendBadSize, t.Span(arg), "size %d too large", v.Value))
		return 0, false
	}
	if n <= 0 {
		ctl.p.bag.Add(diag.Errorf(diag.BackendBadSize, t.Span(arg), "size must be positive"))
		return 0, false
	}
	return int(n), true
}

func (ctl *Control) constant(arg ir.NodeID) (ir.Constant, bool) {
	t := ctl.p.tree
	switch d := t.Data(arg).(type) {
	case ir.Constant:
		return d, true
	case ir.Path:
		decl, ok := ctl.p.refs.Decl(arg)
		if !ok {
			return ir.Constant{}, false
		}
		if v, ok := ctl.constants[decl]; ok {
			return v, true
		}
		v, ok := ctl.p.constants[decl]
		return v, ok
	}
	return ir.Constant{}, false
}

func (ctl *Control) boolArg(arg ir.NodeID) (bool, bool) {
	t := ctl.p.tree
	switch d := t.Data(arg).(type) {
	case ir.BoolLit:
		return d.Value, true
	case ir.Path:
		decl, ok := ctl.p.refs.Decl(arg)
		if !ok {
			return false, false
		}
		if v, ok := ctl.bools[decl]; ok {
			return v, true
		}
		v, ok := ctl.p.bools[decl]
		return v, ok
	}
	return false, false
}

func countReturns(t *ir.Tree, root ir.NodeID) (int, error) {
	n := 0
	err := ir.NewInspector("count-returns").
		Pre(ir.KindReturn, func(*ir.Cursor, ir.NodeID) (bool, error) {
			n++
			return false, nil
		}).
		Apply(t, root)
	if err != nil {
		return 0, err
	}
	return n, nil
}
