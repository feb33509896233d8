package ebpf

import (
	"strconv"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
)

// Table is a match-action table lowered to a data map keyed by the table
// key and a one-entry map holding the default action.
type Table struct {
	Name string
	Decl ir.NodeID

	keyTypeName          string
	valueTypeName        string
	actionEnumName       string
	dataMapName          string
	defaultActionMapName string

	actions []ir.NodeID // Action declarations, in table order
	kind    MapKind
	size    int
	ctl     *Control
}

// buildTable validates a table declaration. Problems of the program go to
// the bag and leave the table without a map.
func (ctl *Control) buildTable(id ir.NodeID) (*Table, error) {
	p := ctl.p
	t := p.tree
	d, err := ir.MustAs[ir.Table](t, id)
	if err != nil {
		return nil, err
	}
	tb := &Table{
		Name:                 d.Name,
		Decl:                 id,
		keyTypeName:          p.names.NewName(d.Name + "_key"),
		valueTypeName:        p.names.NewName(d.Name + "_value"),
		actionEnumName:       p.names.NewName(d.Name + "_actions"),
		dataMapName:          d.Name,
		defaultActionMapName: p.names.NewName(d.Name + "_defaultAction"),
		ctl:                  ctl,
	}
	for _, a := range d.Actions {
		ref := a
		if mc, ok := ir.As[ir.MethodCall](t, a); ok {
			ref = mc.Method
		}
		decl, ok := p.refs.Decl(ref)
		if !ok || t.Kind(decl) != ir.KindAction {
			return nil, ir.BugAt(a, "table %s lists an unresolved action", d.Name)
		}
		tb.actions = append(tb.actions, decl)
	}
	for _, k := range d.Keys {
		ke := ir.Get[ir.KeyElement](t, k)
		if ke.Match != ModelExactMatch {
			p.bag.Add(diag.Errorf(diag.BackendMatchKind, t.Span(k), "match of type %s not supported", ke.Match))
		}
		if _, ok := p.cType(p.tm.Type(ke.Expr)); !ok {
			p.bag.Add(diag.Errorf(diag.BackendUnsupportedType, t.Span(k), "key of type %s not supported",
				p.in.String(p.tm.Type(ke.Expr))))
		}
	}

	if !d.Impl.IsValid() {
		p.bag.Add(diag.Errorf(diag.BackendNoImplementation, t.Span(id),
			"table %s does not have an implementation property", d.Name))
		return tb, nil
	}
	cc, ok := ir.As[ir.ConstructorCall](t, d.Impl)
	if !ok {
		p.bag.Add(diag.Errorf(diag.BackendBadImplementation, t.Span(d.Impl), "expected the implementation to be an extern constructor"))
		return tb, nil
	}
	switch ir.Get[ir.TypeName](t, cc.Type).Name {
	case ModelArrayTable:
		tb.kind = MapArray
		if len(d.Keys) != 1 || !p.fitsIndex(p.tm.Type(ir.Get[ir.KeyElement](t, d.Keys[0]).Expr)) {
			p.bag.Add(diag.Errorf(diag.BackendBadImplementation, t.Span(d.Impl),
				"%s needs a single key of at most 32 bits", ModelArrayTable))
		}
	case ModelHashTable:
		tb.kind = MapHash
	default:
		p.bag.Add(diag.Errorf(diag.BackendBadImplementation, t.Span(d.Impl),
			"implementation must be one of %s or %s", ModelArrayTable, ModelHashTable))
		return tb, nil
	}
	if len(cc.Args) != 1 {
		p.bag.Add(diag.Errorf(diag.BackendBadSize, t.Span(d.Impl), "expected a size argument"))
		return tb, nil
	}
	size, ok := ctl.sizeArg(cc.Args[0])
	if ok {
		tb.size = size
	}
	return tb, nil
}

// ActionTag is the enum constant naming action in this table's values.
func (tb *Table) ActionTag(action string) string {
	return tb.Name + "_" + action
}

func (tb *Table) hasAction(name string) bool {
	for _, a := range tb.actions {
		if tb.ctl.p.tree.Name(a) == name {
			return true
		}
	}
	return false
}

// emitTypes declares the key struct, the action enum and the value union.
func (tb *Table) emitTypes(b *CodeBuilder) error {
	p := tb.ctl.p
	t := p.tree
	b.EmitIndent()
	b.Appendf("struct %s ", tb.keyTypeName)
	b.BlockStart()
	for i, k := range ir.Get[ir.Table](t, tb.Decl).Keys {
		decl, _ := p.declare(p.tm.Type(ir.Get[ir.KeyElement](t, k).Expr), fieldName(i))
		b.Line("%s;", decl)
	}
	b.BlockEnd(false)
	b.EndOfStatement(true)

	b.EmitIndent()
	b.Appendf("enum %s ", tb.actionEnumName)
	b.BlockStart()
	for _, a := range tb.actions {
		b.Line("%s,", tb.ActionTag(t.Name(a)))
	}
	b.BlockEnd(false)
	b.EndOfStatement(true)

	b.EmitIndent()
	b.Appendf("struct %s ", tb.valueTypeName)
	b.BlockStart()
	b.Line("enum %s action;", tb.actionEnumName)
	b.EmitIndent()
	b.Append("union ")
	b.BlockStart()
	for _, a := range tb.actions {
		b.EmitIndent()
		b.Append("struct ")
		b.BlockStart()
		for _, prm := range ir.Get[ir.Action](t, a).Params {
			decl, ok := p.declare(p.tm.Type(prm), t.Name(prm))
			if !ok {
				p.bag.Add(diag.Errorf(diag.BackendUnsupportedType, t.Span(prm), "action parameter %s has an unsupported type", t.Name(prm)))
				continue
			}
			b.Line("%s;", decl)
		}
		b.BlockEnd(false)
		b.Appendf(" %s;\n", t.Name(a))
	}
	b.BlockEnd(false)
	b.AppendLine(" u;")
	b.BlockEnd(false)
	b.EndOfStatement(true)
	return nil
}

func fieldName(i int) string {
	return "field" + strconv.Itoa(i)
}

// emitMaps declares the data map and the default-action map.
func (tb *Table) emitMaps(b *CodeBuilder) {
	if tb.size <= 0 {
		return
	}
	b.Target.EmitTableDecl(b, tb.dataMapName, tb.kind, "struct "+tb.keyTypeName, "struct "+tb.valueTypeName, tb.size)
	b.Target.EmitTableDecl(b, tb.defaultActionMapName, MapArray, counterIndexType, "struct "+tb.valueTypeName, 1)
}

// emitApply looks the key up, falls back to the default action on a miss,
// records the hit and runs the action. A pending action-run frame gets the
// executed action.
func (tb *Table) emitApply(tr *translator, c *ir.Cursor, frame *actionFrame) (flow, error) {
	t := tr.tree()
	b := tr.b
	if frame != nil {
		b.Line("enum %s %s = 0;", tb.actionEnumName, frame.variable)
	}
	b.EmitIndent()
	b.BlockStart()
	keys := ir.Get[ir.Table](t, tb.Decl).Keys
	if len(keys) > 0 {
		b.Line("/* construct key */")
		b.Line("struct %s key = {};", tb.keyTypeName)
		for i, k := range keys {
			v, err := tr.exprString(c, ir.Get[ir.KeyElement](t, k).Expr)
			if err != nil {
				return 0, err
			}
			b.Line("key.%s = %s;", fieldName(i), v)
		}
	}
	b.Line("/* value */")
	b.Line("struct %s *value = NULL;", tb.valueTypeName)
	if len(keys) > 0 {
		b.Line("/* perform lookup */")
		b.EmitIndent()
		b.Target.EmitTableLookup(b, tb.dataMapName, "key", "value")
		b.EndOfStatement(true)
	}
	b.EmitIndent()
	b.Append("if (value == NULL) ")
	b.BlockStart()
	b.Line("/* miss; find default action */")
	b.Line("%s = 0;", tb.ctl.hitVariable)
	b.EmitIndent()
	b.Target.EmitTableLookup(b, tb.defaultActionMapName, zeroKeyVar, "value")
	b.EndOfStatement(true)
	b.BlockEnd(false)
	b.Append(" else ")
	b.BlockStart()
	b.Line("%s = 1;", tb.ctl.hitVariable)
	b.BlockEnd(true)

	b.EmitIndent()
	b.Append("if (value != NULL) ")
	b.BlockStart()
	b.Line("/* run action */")
	f, err := tb.runAction(tr, "value")
	if err != nil {
		return 0, err
	}
	if frame != nil {
		b.Line("%s = value->action;", frame.variable)
	}
	b.BlockEnd(true)
	b.BlockEnd(true)
	return f, nil
}

// runAction dispatches on the action tag of value. Only an exit inside an
// action reaches the caller; a return leaves the action alone.
func (tb *Table) runAction(tr *translator, value string) (flow, error) {
	t := tr.tree()
	b := tr.b
	b.EmitIndent()
	b.Appendf("switch (%s->action) ", value)
	b.BlockStart()
	var acc flow
	start := tr.align
	// A miss without a default action and the default case run nothing.
	paths := []alignPath{{0, start}}
	for _, a := range tb.actions {
		b.EmitIndent()
		b.Appendf("case %s: ", tb.ActionTag(t.Name(a)))
		b.BlockStart()
		tr.align = start
		f, err := tr.runActionBody(a, value)
		if err != nil {
			return 0, err
		}
		paths = append(paths, alignPath{f, tr.align})
		acc |= f & flowMayExit
		b.BlockEnd(true)
		b.Line("break;")
	}
	b.Line("default: break;")
	b.BlockEnd(true)
	tr.align = joinAlign(start, paths...)
	return acc, nil
}

// runActionBody lowers the body of action with its parameters read from the
// table value. The flow keeps flowMust only when every path exits.
func (tr *translator) runActionBody(action ir.NodeID, value string) (flow, error) {
	t := tr.tree()
	body := ir.Get[ir.Action](t, action).Body
	savedAction, savedValue, savedFlag, savedAligns := tr.action, tr.valueVar, tr.returnFlag, tr.returnAligns
	defer func() {
		tr.action, tr.valueVar, tr.returnFlag, tr.returnAligns = savedAction, savedValue, savedFlag, savedAligns
	}()
	tr.action, tr.valueVar, tr.returnFlag, tr.returnAligns = action, value, "", nil
	returns, err := countReturns(t, body)
	if err != nil {
		return 0, err
	}
	if returns > 0 {
		tr.returnFlag = tr.p.names.NewName("ret")
		tr.b.Line("u8 %s = 0;", tr.returnFlag)
	}
	f, err := tr.run(body)
	if err != nil {
		return 0, err
	}
	// A return leaves the action, so its alignment reaches the code after it.
	paths := []alignPath{{f, tr.align}}
	for _, a := range tr.returnAligns {
		paths = append(paths, alignPath{0, a})
	}
	tr.align = joinAlign(tr.align, paths...)
	if f&flowMayExit != 0 && f&flowMust != 0 && len(tr.returnAligns) == 0 {
		return f &^ flowMayReturn, nil
	}
	return f &^ (flowMayReturn | flowMust), nil
}
