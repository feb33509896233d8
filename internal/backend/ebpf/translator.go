package ebpf

import (
	"strings"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/sema"
	"kestrel/internal/types"
)

// flow summarizes how lowering a statement may leave the enclosing scope.
// Neither C nor eBPF gives a non-local exit, so exit and return set a flag
// and the statements after them are guarded by it.
type flow uint8

const (
	flowMayExit flow = 1 << iota
	flowMayReturn
	flowMust // every path unwinds
)

func (f flow) may() bool { return f&(flowMayExit|flowMayReturn) != 0 }

// actionFrame carries the action-run variable of a switch to the apply it
// dispatches on.
type actionFrame struct {
	variable string
	consumed bool
}

type translator struct {
	p       *Program
	b       *CodeBuilder
	aliases *aliases
	ctl     *Control // nil while lowering a parser
	insp    *ir.Inspector

	flow       flow
	returnFlag string
	frames     []*actionFrame

	action   ir.NodeID // action run by the table being applied
	valueVar string

	align        int   // packet offset modulo 8 known at this point, or alignUnknown
	returnAligns []int // alignment at each return of the action being lowered
}

// alignUnknown marks a point reached by paths that left the packet offset at
// different bit positions.
const alignUnknown = -1

// alignPath is the flow and final alignment of one branch.
type alignPath struct {
	f     flow
	align int
}

// joinAlign merges the alignments of the branches meeting after a
// conditional. Branches that always unwind never reach the join.
func joinAlign(fallback int, paths ...alignPath) int {
	out, seen := fallback, false
	for _, p := range paths {
		if p.f&flowMust != 0 {
			continue
		}
		if !seen {
			out, seen = p.align, true
			continue
		}
		if p.align != out {
			return alignUnknown
		}
	}
	return out
}

func newTranslator(p *Program, b *CodeBuilder, al *aliases, ctl *Control) *translator {
	tr := &translator{p: p, b: b, aliases: al, ctl: ctl}
	in := ir.NewInspector("ebpf-translate")
	in.Pre(ir.KindBlock, tr.preBlock)
	in.Pre(ir.KindIf, tr.preIf)
	in.Pre(ir.KindSwitch, tr.preSwitch)
	in.Pre(ir.KindReturn, tr.preReturn)
	in.Pre(ir.KindExit, tr.preExit)
	in.Pre(ir.KindCallStmt, tr.preCallStmt)
	in.Pre(ir.KindAssign, tr.preAssign)
	in.Pre(ir.KindEmpty, func(*ir.Cursor, ir.NodeID) (bool, error) { return false, nil })
	in.Pre(ir.KindVar, tr.preLocal)
	in.Pre(ir.KindConst, tr.preLocal)
	in.Pre(ir.KindSeq, func(_ *ir.Cursor, id ir.NodeID) (bool, error) {
		return false, ir.BugAt(id, "unflattened Seq reached the backend")
	})

	in.Pre(ir.KindPath, tr.prePath)
	in.Pre(ir.KindMember, tr.preMember)
	in.Pre(ir.KindConstant, tr.preConstant)
	in.Pre(ir.KindBoolLit, tr.preBool)
	in.Pre(ir.KindBinary, tr.preBinary)
	in.Pre(ir.KindUnary, tr.preUnary)
	in.Pre(ir.KindMethodCall, tr.preMethodCall)
	in.Pre(ir.KindListExpr, tr.preList)
	in.Fallback(func(c *ir.Cursor, id ir.NodeID) (bool, error) {
		return false, ir.BugAt(id, "no eBPF lowering for %s", c.Tree().Kind(id))
	})
	tr.insp = in
	return tr
}

func (tr *translator) tree() *ir.Tree { return tr.p.tree }

// run lowers the statement rooted at id and reports its flow.
func (tr *translator) run(id ir.NodeID) (flow, error) {
	tr.flow = 0
	if err := tr.insp.Apply(tr.tree(), id); err != nil {
		return 0, err
	}
	f := tr.flow
	tr.flow = 0
	return f, nil
}

// stmt lowers a statement from inside a hook.
func (tr *translator) stmt(c *ir.Cursor, id ir.NodeID) (flow, error) {
	tr.flow = 0
	if err := c.Visit(id); err != nil {
		return 0, err
	}
	f := tr.flow
	tr.flow = 0
	return f, nil
}

// stmts lowers a statement list. Statements after one that must unwind are
// dead and dropped; statements after one that may unwind are guarded.
func (tr *translator) stmts(c *ir.Cursor, list []ir.NodeID) (flow, error) {
	var acc flow
	for i, s := range list {
		f, err := tr.stmt(c, s)
		if err != nil {
			return 0, err
		}
		if f&flowMust != 0 {
			return acc | f, nil
		}
		acc |= f
		if f.may() && i+1 < len(list) {
			return tr.guarded(acc, func() (flow, error) {
				rest, err := tr.stmts(c, list[i+1:])
				return acc | rest, err
			})
		}
	}
	return acc, nil
}

// guarded emits body under `if (!(flags))` when f may unwind.
func (tr *translator) guarded(f flow, body func() (flow, error)) (flow, error) {
	if !f.may() {
		return body()
	}
	tr.b.EmitIndent()
	tr.b.Appendf("if (!(%s)) ", tr.guard(f))
	tr.b.BlockStart()
	out, err := body()
	if err != nil {
		return 0, err
	}
	tr.b.BlockEnd(true)
	if out&flowMust != 0 {
		return out, nil
	}
	return out | f, nil
}

func (tr *translator) guard(f flow) string {
	var flags []string
	if f&flowMayExit != 0 {
		flags = append(flags, tr.p.exitVar)
	}
	if f&flowMayReturn != 0 && tr.returnFlag != "" {
		flags = append(flags, tr.returnFlag)
	}
	return strings.Join(flags, " || ")
}

func (tr *translator) preBlock(c *ir.Cursor, id ir.NodeID) (bool, error) {
	stmts := ir.Get[ir.Block](tr.tree(), id).Stmts
	nested := tr.tree().Kind(c.Parent()) == ir.KindBlock
	if nested {
		tr.b.EmitIndent()
		tr.b.BlockStart()
	}
	f, err := tr.stmts(c, stmts)
	if err != nil {
		return false, err
	}
	if nested {
		tr.b.BlockEnd(true)
	}
	tr.flow = f
	return false, nil
}

func (tr *translator) preIf(c *ir.Cursor, id ir.NodeID) (bool, error) {
	d := ir.Get[ir.If](tr.tree(), id)
	var before flow
	cond := ""
	if call, negate, ok := tr.hitMiss(d.Cond); ok {
		f, err := tr.apply(c, call)
		if err != nil {
			return false, err
		}
		before = f
		cond = tr.ctl.hitVariable
		if negate {
			cond = "!" + cond
		}
	} else {
		s, err := tr.exprString(c, d.Cond)
		if err != nil {
			return false, err
		}
		cond = s
	}

	f, err := tr.guarded(before, func() (flow, error) {
		tr.b.EmitIndent()
		tr.b.Appendf("if (%s) ", cond)
		tr.b.BlockStart()
		start := tr.align
		ft, err := tr.stmt(c, d.Then)
		if err != nil {
			return 0, err
		}
		tr.b.BlockEnd(false)
		then := alignPath{ft, tr.align}
		tr.align = start
		fe := flow(0)
		if d.Else.IsValid() {
			tr.b.Append(" else ")
			tr.b.BlockStart()
			if fe, err = tr.stmt(c, d.Else); err != nil {
				return 0, err
			}
			tr.b.BlockEnd(false)
		}
		tr.b.Newline()
		tr.align = joinAlign(start, then, alignPath{fe, tr.align})
		out := (ft | fe) &^ flowMust
		if d.Else.IsValid() && ft&flowMust != 0 && fe&flowMust != 0 {
			out |= flowMust
		}
		return out, nil
	})
	if err != nil {
		return false, err
	}
	tr.flow = f
	return false, nil
}

// hitMiss matches `t.apply().hit`, `t.apply().miss` and their negations.
func (tr *translator) hitMiss(cond ir.NodeID) (call ir.NodeID, negate bool, ok bool) {
	t := tr.tree()
	if u, isNot := ir.As[ir.Unary](t, cond); isNot && u.Op == ir.OpNot {
		call, negate, ok = tr.hitMiss(u.Expr)
		return call, !negate, ok
	}
	m, isMember := ir.As[ir.Member](t, cond)
	if !isMember || (m.Name != sema.HitMember && m.Name != sema.MissMember) {
		return ir.NoNodeID, false, false
	}
	if !tr.isApply(m.Expr) || tr.ctl == nil {
		return ir.NoNodeID, false, false
	}
	return m.Expr, m.Name == sema.MissMember, true
}

func (tr *translator) preSwitch(c *ir.Cursor, id ir.NodeID) (bool, error) {
	d := ir.Get[ir.Switch](tr.tree(), id)
	if m, ok := ir.As[ir.Member](tr.tree(), d.Expr); ok && m.Name == sema.ActionRunMember && tr.isApply(m.Expr) {
		return false, tr.actionRunSwitch(c, d, m.Expr)
	}

	sel, err := tr.exprString(c, d.Expr)
	if err != nil {
		return false, err
	}
	f, err := tr.switchCases(c, sel, d.Cases, func(label ir.NodeID) (string, bool) {
		v, ok := tr.constValue(label)
		if !ok {
			return "", false
		}
		return "case " + formatConstant(v) + ":", true
	})
	tr.flow = f
	return false, err
}

func (tr *translator) actionRunSwitch(c *ir.Cursor, d ir.Switch, call ir.NodeID) error {
	table, err := tr.applyTable(call)
	if err != nil {
		return err
	}
	frame := &actionFrame{variable: tr.p.names.NewName("action_run")}
	tr.frames = append(tr.frames, frame)
	before, err := tr.apply(c, call)
	tr.frames = tr.frames[:len(tr.frames)-1]
	if err != nil {
		return err
	}
	if !frame.consumed {
		return ir.BugAt(call, "apply of %s did not record its action", table.Name)
	}
	f, err := tr.guarded(before, func() (flow, error) {
		return tr.switchCases(c, frame.variable, d.Cases, func(label ir.NodeID) (string, bool) {
			p, ok := ir.As[ir.Path](tr.tree(), label)
			if !ok || !table.hasAction(p.Name) {
				return "", false
			}
			return "case " + table.ActionTag(p.Name) + ":", true
		})
	})
	tr.flow = f
	return err
}

func (tr *translator) switchCases(c *ir.Cursor, sel string, cases []ir.NodeID, label func(ir.NodeID) (string, bool)) (flow, error) {
	t := tr.tree()
	tr.b.EmitIndent()
	tr.b.Appendf("switch (%s) ", sel)
	tr.b.BlockStart()
	var (
		acc        flow
		hasDefault bool
		allMust    = true
		bodies     int
		start      = tr.align
		paths      []alignPath
	)
	for _, cs := range cases {
		sc, err := ir.MustAs[ir.SwitchCase](t, cs)
		if err != nil {
			return 0, err
		}
		text := "default:"
		if t.Kind(sc.Label) == ir.KindDefaultExpr {
			hasDefault = true
		} else {
			var ok bool
			if text, ok = label(sc.Label); !ok {
				tr.p.bag.Add(diag.Errorf(diag.BackendSwitchLabel, t.Span(sc.Label), "unsupported switch label"))
				continue
			}
		}
		if !sc.Body.IsValid() {
			tr.b.Line("%s", text)
			continue
		}
		tr.b.EmitIndent()
		tr.b.Append(text + " ")
		tr.b.BlockStart()
		tr.align = start
		f, err := tr.stmt(c, sc.Body)
		if err != nil {
			return 0, err
		}
		paths = append(paths, alignPath{f, tr.align})
		tr.b.BlockEnd(true)
		tr.b.Line("break;")
		bodies++
		if f&flowMust == 0 {
			allMust = false
		}
		acc |= f &^ flowMust
	}
	if !hasDefault {
		tr.b.Line("default: break;")
		paths = append(paths, alignPath{0, start})
	}
	tr.b.BlockEnd(true)
	tr.align = joinAlign(start, paths...)
	if hasDefault && allMust && bodies > 0 {
		acc |= flowMust
	}
	return acc, nil
}

func (tr *translator) preReturn(_ *ir.Cursor, id ir.NodeID) (bool, error) {
	if ir.Get[ir.Return](tr.tree(), id).Value.IsValid() {
		return false, ir.BugAt(id, "return with a value in a control")
	}
	if tr.returnFlag == "" {
		return false, ir.BugAt(id, "return outside a control or action")
	}
	tr.b.Line("%s = 1;", tr.returnFlag)
	tr.returnAligns = append(tr.returnAligns, tr.align)
	tr.flow = flowMayReturn | flowMust
	return false, nil
}

func (tr *translator) preExit(_ *ir.Cursor, id ir.NodeID) (bool, error) {
	if tr.ctl == nil {
		return false, ir.BugAt(id, "exit outside a control")
	}
	tr.b.Line("%s = 1;", tr.p.exitVar)
	tr.flow = flowMayExit | flowMust
	return false, nil
}

func (tr *translator) preAssign(c *ir.Cursor, id ir.NodeID) (bool, error) {
	d := ir.Get[ir.Assign](tr.tree(), id)
	left, err := tr.exprString(c, d.Left)
	if err != nil {
		return false, err
	}
	if l, ok := ir.As[ir.ListExpr](tr.tree(), d.Right); ok {
		return false, tr.assignList(c, left, tr.p.tm.Type(d.Left), d.Left, l)
	}
	right, err := tr.exprString(c, d.Right)
	if err != nil {
		return false, err
	}
	tr.b.Line("%s = %s;", left, right)
	return false, nil
}

// assignList stores a list value field by field into a struct.
func (tr *translator) assignList(c *ir.Cursor, left string, typ types.TypeID, at ir.NodeID, l ir.ListExpr) error {
	fields := tr.p.in.Fields(typ)
	if len(fields) != len(l.Elems) {
		return ir.BugAt(at, "list of %d values assigned to %d fields", len(l.Elems), len(fields))
	}
	for i, e := range l.Elems {
		if inner, ok := ir.As[ir.ListExpr](tr.tree(), e); ok {
			if err := tr.assignList(c, left+"."+fields[i].Name, fields[i].Type, e, inner); err != nil {
				return err
			}
			continue
		}
		v, err := tr.exprString(c, e)
		if err != nil {
			return err
		}
		tr.b.Line("%s.%s = %s;", left, fields[i].Name, v)
	}
	return nil
}

// preLocal declares a variable or constant met in statement position.
func (tr *translator) preLocal(c *ir.Cursor, id ir.NodeID) (bool, error) {
	return false, tr.declareLocal(c, id)
}

func (tr *translator) declareLocal(c *ir.Cursor, id ir.NodeID) error {
	t := tr.tree()
	var init ir.NodeID
	qualifier := ""
	switch d := t.Data(id).(type) {
	case ir.Var:
		init = d.Init
	case ir.Const:
		init, qualifier = d.Value, "const "
	default:
		return ir.BugAt(id, "declaration of %s", t.Kind(id))
	}
	decl, ok := tr.p.declare(tr.p.tm.Type(id), t.Name(id))
	if !ok {
		tr.p.bag.Add(diag.Errorf(diag.BackendUnsupportedType, t.Span(id), "cannot declare %s of type %s",
			t.Name(id), tr.p.in.String(tr.p.tm.Type(id))))
		return nil
	}
	if !init.IsValid() {
		tr.b.Line("%s%s = %s;", qualifier, decl, tr.p.zeroValue(tr.p.tm.Type(id)))
		return nil
	}
	if l, ok := ir.As[ir.ListExpr](t, init); ok {
		tr.b.Line("%s = {0};", decl)
		return tr.assignList(c, t.Name(id), tr.p.tm.Type(id), id, l)
	}
	v, err := tr.exprString(c, init)
	if err != nil {
		return err
	}
	tr.b.Line("%s%s = %s;", qualifier, decl, v)
	return nil
}
