package ebpf

import (
	"kestrel/internal/diag"
	"kestrel/internal/ir"
)

// CounterTable is a CounterArray instance: a map from bit<32> index to a
// bit<32> count. Sparse counters use a hash map.
type CounterTable struct {
	Name string
	Decl ir.NodeID

	dataMapName string
	size        int
	isHash      bool
}

// buildCounter reads the constructor arguments (max_index, sparse).
func (ctl *Control) buildCounter(id ir.NodeID) *CounterTable {
	p := ctl.p
	t := p.tree
	inst := ir.Get[ir.Instance](t, id)
	ct := &CounterTable{Name: inst.Name, Decl: id, dataMapName: inst.Name}
	if len(inst.Args) != 2 {
		p.bag.Add(diag.Errorf(diag.BackendCounterArgs, t.Span(id),
			"%s %s expects a size and a sparse flag", ModelCounterArray, inst.Name))
		return ct
	}
	if size, ok := ctl.sizeArg(inst.Args[0]); ok {
		ct.size = size
	}
	sparse, ok := ctl.boolArg(inst.Args[1])
	if !ok {
		p.bag.Add(diag.Errorf(diag.BackendCounterArgs, t.Span(inst.Args[1]),
			"expected a boolean constant for the sparse flag of %s", inst.Name))
		return ct
	}
	ct.isHash = sparse
	return ct
}

func (ct *CounterTable) emitMaps(b *CodeBuilder) {
	if ct.size <= 0 {
		return
	}
	kind := MapArray
	if ct.isHash {
		kind = MapHash
	}
	b.Target.EmitTableDecl(b, ct.dataMapName, kind, counterIndexType, counterValueType, ct.size)
}

// emitUpdate lowers increment(index) and add(index, value): an atomic add
// when the index is present, an insert of the initial value otherwise.
func (ct *CounterTable) emitUpdate(tr *translator, c *ir.Cursor, info callInfo) error {
	want := 1
	if info.kind == callAdd {
		want = 2
	}
	if len(info.args) != want {
		return ir.BugAt(info.id, "%s expects %d arguments, got %d", info.method, want, len(info.args))
	}
	index, err := tr.exprString(c, info.args[0])
	if err != nil {
		return err
	}
	delta := "1"
	if info.kind == callAdd {
		if delta, err = tr.exprString(c, info.args[1]); err != nil {
			return err
		}
	}

	b := tr.b
	keyName := tr.p.names.NewName("key")
	valueName := tr.p.names.NewName("value")
	initName := tr.p.names.NewName("init_val")
	b.EmitIndent()
	b.BlockStart()
	b.Line("%s *%s;", counterValueType, valueName)
	b.Line("%s %s = %s;", counterValueType, initName, delta)
	b.Line("%s %s = %s;", counterIndexType, keyName, index)
	b.EmitIndent()
	b.Target.EmitTableLookup(b, ct.dataMapName, keyName, valueName)
	b.EndOfStatement(true)
	b.Line("if (%s != NULL)", valueName)
	b.IncreaseIndent()
	b.Line("__sync_fetch_and_add(%s, %s);", valueName, initName)
	b.DecreaseIndent()
	b.Line("else")
	b.IncreaseIndent()
	b.EmitIndent()
	b.Target.EmitTableUpdate(b, ct.dataMapName, keyName, initName)
	b.EndOfStatement(true)
	b.DecreaseIndent()
	b.BlockEnd(true)
	return nil
}
