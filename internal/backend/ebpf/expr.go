package ebpf

import (
	"strconv"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/sema"
	"kestrel/internal/types"
)

// aliases redirects parameter references of one unit. A substituted
// parameter prints as its substitute; a dereferenced one prints as (*name).
type aliases struct {
	substitution  map[ir.NodeID]ir.NodeID
	toDereference map[ir.NodeID]struct{}
}

func newAliases() *aliases {
	return &aliases{
		substitution:  make(map[ir.NodeID]ir.NodeID),
		toDereference: make(map[ir.NodeID]struct{}),
	}
}

// Substitute makes references to p print as references to with.
func (a *aliases) Substitute(p, with ir.NodeID) {
	if p != with {
		a.substitution[p] = with
	}
}

// Dereference makes references to p go through a pointer.
func (a *aliases) Dereference(p ir.NodeID) {
	a.toDereference[p] = struct{}{}
}

func (a *aliases) resolve(decl ir.NodeID) ir.NodeID {
	for range len(a.substitution) + 1 {
		next, ok := a.substitution[decl]
		if !ok {
			break
		}
		decl = next
	}
	return decl
}

func (a *aliases) text(t *ir.Tree, decl ir.NodeID) string {
	decl = a.resolve(decl)
	name := t.Name(decl)
	if _, ok := a.toDereference[decl]; ok {
		return "(*" + name + ")"
	}
	return name
}

// exprString renders an expression without touching the output.
func (tr *translator) exprString(c *ir.Cursor, id ir.NodeID) (string, error) {
	saved := tr.b
	tr.b = NewCodeBuilder(saved.Target)
	defer func() { tr.b = saved }()
	if err := c.Visit(id); err != nil {
		return "", err
	}
	return tr.b.String(), nil
}

// lowerExpr renders an expression from outside a hook.
func (tr *translator) lowerExpr(id ir.NodeID) (string, error) {
	saved := tr.b
	tr.b = NewCodeBuilder(saved.Target)
	defer func() { tr.b = saved }()
	if err := tr.insp.Apply(tr.tree(), id); err != nil {
		return "", err
	}
	return tr.b.String(), nil
}

func (tr *translator) prePath(_ *ir.Cursor, id ir.NodeID) (bool, error) {
	t := tr.tree()
	name := ir.Get[ir.Path](t, id).Name
	decl, ok := tr.p.refs.Decl(id)
	if !ok {
		tr.b.Append(name)
		return false, nil
	}
	if tr.action.IsValid() && tr.isActionParam(decl) {
		tr.b.Appendf("%s->u.%s.%s", tr.valueVar, t.Name(tr.action), name)
		return false, nil
	}
	if t.Kind(decl) == ir.KindParam {
		tr.b.Append(tr.aliases.text(t, decl))
		return false, nil
	}
	tr.b.Append(name)
	return false, nil
}

func (tr *translator) isActionParam(decl ir.NodeID) bool {
	for _, p := range ir.Get[ir.Action](tr.tree(), tr.action).Params {
		if p == decl {
			return true
		}
	}
	return false
}

func (tr *translator) preMember(c *ir.Cursor, id ir.NodeID) (bool, error) {
	t := tr.tree()
	m := ir.Get[ir.Member](t, id)
	base := tr.p.tm.Type(m.Expr)
	if base == tr.p.in.Builtins().Error {
		tr.b.Append(m.Name)
		return false, nil
	}
	if info, ok := tr.p.in.NominalInfo(base); ok && info.Kind == types.KindApplyResult {
		tr.p.bag.Add(diag.Errorf(diag.BackendUnexpectedMethod, t.Span(id),
			"%s of a table apply is only supported as an if condition or a switch selector", m.Name))
		return false, nil
	}
	if err := c.Visit(m.Expr); err != nil {
		return false, err
	}
	tr.b.Append("." + m.Name)
	return false, nil
}

func (tr *translator) preConstant(_ *ir.Cursor, id ir.NodeID) (bool, error) {
	d := ir.Get[ir.Constant](tr.tree(), id)
	if d.Width > MaxFieldWidth {
		tr.p.bag.Add(diag.Errorf(diag.BackendUnsupportedType, tr.tree().Span(id),
			"constants wider than %d bits are not supported", MaxFieldWidth))
	}
	tr.b.Append(formatConstant(d))
	return false, nil
}

func formatConstant(d ir.Constant) string {
	var s string
	if d.Base == 16 {
		s = "0x" + strconv.FormatUint(d.Value, 16)
	} else {
		s = strconv.FormatUint(d.Value, 10)
	}
	if d.Width > 32 || d.Value > 0xffffffff {
		s += "ULL"
	}
	return s
}

func (tr *translator) preBool(_ *ir.Cursor, id ir.NodeID) (bool, error) {
	if ir.Get[ir.BoolLit](tr.tree(), id).Value {
		tr.b.Append("1")
	} else {
		tr.b.Append("0")
	}
	return false, nil
}

func (tr *translator) preBinary(c *ir.Cursor, id ir.NodeID) (bool, error) {
	d := ir.Get[ir.Binary](tr.tree(), id)
	tr.b.Append("(")
	if err := c.Visit(d.Left); err != nil {
		return false, err
	}
	tr.b.Appendf(" %s ", d.Op)
	if err := c.Visit(d.Right); err != nil {
		return false, err
	}
	tr.b.Append(")")
	return false, nil
}

func (tr *translator) preUnary(c *ir.Cursor, id ir.NodeID) (bool, error) {
	d := ir.Get[ir.Unary](tr.tree(), id)
	tr.b.Append("(" + d.Op.String())
	if err := c.Visit(d.Expr); err != nil {
		return false, err
	}
	tr.b.Append(")")
	return false, nil
}

func (tr *translator) preList(_ *ir.Cursor, id ir.NodeID) (bool, error) {
	tr.p.bag.Add(diag.Errorf(diag.BackendUnsupportedType, tr.tree().Span(id),
		"list expressions are only supported as assigned values"))
	return false, nil
}

// preMethodCall lowers calls that produce a value.
func (tr *translator) preMethodCall(c *ir.Cursor, id ir.NodeID) (bool, error) {
	t := tr.tree()
	call, err := tr.classify(id)
	if err != nil {
		return false, err
	}
	switch call.kind {
	case callIsValid:
		if err := c.Visit(call.object); err != nil {
			return false, err
		}
		tr.b.Append("." + validField)
	case callFunction:
		return false, tr.genericCall(c, call)
	case callApply:
		tr.p.bag.Add(diag.Errorf(diag.BackendUnexpectedMethod, t.Span(id),
			"%s must be used as a statement, an if condition or a switch selector", sema.ApplyMethod))
	default:
		tr.p.bag.Add(diag.Errorf(diag.BackendUnexpectedMethod, t.Span(id),
			"%s cannot be used as a value", call.method))
	}
	return false, nil
}

// constValue resolves a literal or a reference to a constant.
func (tr *translator) constValue(id ir.NodeID) (ir.Constant, bool) {
	t := tr.tree()
	switch d := t.Data(id).(type) {
	case ir.Constant:
		return d, true
	case ir.Path:
		decl, ok := tr.p.refs.Decl(id)
		if !ok {
			return ir.Constant{}, false
		}
		if tr.ctl != nil {
			if v, ok := tr.ctl.constants[decl]; ok {
				return v, true
			}
		}
		v, ok := tr.p.constants[decl]
		return v, ok
	}
	return ir.Constant{}, false
}
