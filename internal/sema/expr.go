package sema

import (
	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/types"
)

// Member names with a fixed meaning.
const (
	ApplyMethod     = "apply"
	HitMember       = "hit"
	MissMember      = "miss"
	ActionRunMember = "action_run"
	IsValidMethod   = "isValid"
	SetValidMethod  = "setValid"
	SetInvalid      = "setInvalid"
)

// declType is the type an expression naming decl has.
func (c *checker) declType(decl ir.NodeID) types.TypeID {
	switch data := c.t.Data(decl).(type) {
	case ir.Param, ir.Var, ir.Const, ir.Instance, ir.Field:
		return c.res.Types.Type(decl)
	case ir.Action:
		return c.in.Nominal(types.KindAction, c.qualified(decl))
	case ir.Table:
		return c.in.Nominal(types.KindTable, c.qualified(decl))
	case ir.ParserState:
		return c.in.Nominal(types.KindState, c.qualified(decl))
	case ir.MethodDecl:
		return c.in.Nominal(types.KindMethod, c.qualified(decl))
	case ir.Parser:
		return c.in.Nominal(types.KindParser, data.Name)
	case ir.Control:
		return c.in.Nominal(types.KindControl, data.Name)
	case ir.ErrorDecl:
		return c.in.Builtins().Error
	}
	return types.NoTypeID
}

func (c *checker) returnType(method ir.NodeID) types.TypeID {
	d := ir.Get[ir.MethodDecl](c.t, method)
	if !d.Return.IsValid() {
		return c.in.Builtins().Void
	}
	return c.res.Types.Type(d.Return)
}

func (c *checker) postPath(_ *ir.Cursor, id ir.NodeID) error {
	name := ir.Get[ir.Path](c.t, id).Name
	decl, ok := c.lookup(name)
	if !ok {
		switch name {
		case StateAccept, StateReject:
			c.res.Types.Set(id, c.in.Nominal(types.KindState, name))
		case ErrorName:
			c.res.Types.Set(id, c.in.Builtins().Error)
		case VerifyName:
			c.res.Types.Set(id, c.in.Nominal(types.KindMethod, name))
			c.res.Returns[id] = c.in.Builtins().Void
		default:
			c.bag.Add(diag.Errorf(diag.SemaUnresolvedName, c.t.Span(id), "%q is not declared", name))
		}
		return nil
	}
	c.res.Refs.Set(id, decl)
	c.res.Types.Set(id, c.declType(decl))
	switch c.t.Kind(decl) {
	case ir.KindMethodDecl:
		c.res.Returns[id] = c.returnType(decl)
	case ir.KindAction:
		c.res.Returns[id] = c.in.Builtins().Void
	}
	return nil
}

func (c *checker) postMember(_ *ir.Cursor, id ir.NodeID) error {
	m := ir.Get[ir.Member](c.t, id)
	base, ok := c.res.Types.Get(m.Expr)
	if !ok {
		return nil
	}
	bt := c.in.MustLookup(base)
	switch bt.Kind {
	case types.KindStruct, types.KindHeader:
		if bt.Kind == types.KindHeader {
			switch m.Name {
			case IsValidMethod:
				c.method(id, "header."+m.Name, c.in.Builtins().Bool)
				return nil
			case SetValidMethod, SetInvalid:
				c.method(id, "header."+m.Name, c.in.Builtins().Void)
				return nil
			}
		}
		if ft, ok := c.in.FieldType(base, m.Name); ok {
			c.res.Types.Set(id, ft)
			return nil
		}
	case types.KindTable:
		if m.Name == ApplyMethod {
			owner := c.nominalName(base)
			c.method(id, owner+"."+m.Name, c.in.Nominal(types.KindApplyResult, owner))
			return nil
		}
	case types.KindApplyResult:
		switch m.Name {
		case HitMember, MissMember:
			c.res.Types.Set(id, c.in.Builtins().Bool)
			return nil
		case ActionRunMember:
			c.res.Types.Set(id, c.in.Nominal(types.KindActionEnum, c.nominalName(base)))
			return nil
		}
	case types.KindExtern:
		ext := c.externs[c.nominalName(base)]
		for _, md := range ir.Get[ir.ExternDecl](c.t, ext).Methods {
			if c.t.Name(md) == m.Name {
				c.res.Refs.Set(id, md)
				c.method(id, c.nominalName(base)+"."+m.Name, c.returnType(md))
				return nil
			}
		}
	case types.KindError:
		if _, ok := c.errors[m.Name]; ok {
			if c.errDecl.IsValid() {
				c.res.Refs.Set(id, c.errDecl)
			}
			c.res.Types.Set(id, base)
			return nil
		}
	default:
		c.bag.Add(diag.Errorf(diag.SemaNoSuchField, c.t.Span(id), "%s has no members", c.in.String(base)))
		return nil
	}
	c.bag.Add(diag.Errorf(diag.SemaNoSuchField, c.t.Span(id), "%s has no member %q", c.in.String(base), m.Name))
	return nil
}

func (c *checker) method(id ir.NodeID, qual string, ret types.TypeID) {
	c.res.Types.Set(id, c.in.Nominal(types.KindMethod, qual))
	c.res.Returns[id] = ret
}

func (c *checker) nominalName(t types.TypeID) string {
	if info, ok := c.in.NominalInfo(t); ok {
		return info.Name
	}
	return ""
}

func (c *checker) postConstant(_ *ir.Cursor, id ir.NodeID) error {
	d := ir.Get[ir.Constant](c.t, id)
	if d.Width == 0 {
		c.res.Types.Set(id, c.in.Builtins().Int)
		return nil
	}
	c.res.Types.Set(id, c.in.Bits(d.Width, d.Signed))
	return nil
}

func (c *checker) postBinary(_ *ir.Cursor, id ir.NodeID) error {
	d := ir.Get[ir.Binary](c.t, id)
	if d.Op.IsComparison() || d.Op == ir.OpLAnd || d.Op == ir.OpLOr {
		c.res.Types.Set(id, c.in.Builtins().Bool)
		return nil
	}
	lt := c.res.Types.Type(d.Left)
	if lt == c.in.Builtins().Int || lt == types.NoTypeID {
		lt = c.res.Types.Type(d.Right)
	}
	c.res.Types.Set(id, lt)
	return nil
}

func (c *checker) postUnary(_ *ir.Cursor, id ir.NodeID) error {
	d := ir.Get[ir.Unary](c.t, id)
	if d.Op == ir.OpNot {
		c.res.Types.Set(id, c.in.Builtins().Bool)
		return nil
	}
	c.res.Types.Set(id, c.res.Types.Type(d.Expr))
	return nil
}

func (c *checker) postCall(_ *ir.Cursor, id ir.NodeID) error {
	d := ir.Get[ir.MethodCall](c.t, id)
	if ret, ok := c.res.Returns[d.Method]; ok {
		c.res.Types.Set(id, ret)
	}
	return nil
}

func (c *checker) postConstructor(_ *ir.Cursor, id ir.NodeID) error {
	c.res.Types.Set(id, c.res.Types.Type(ir.Get[ir.ConstructorCall](c.t, id).Type))
	return nil
}

func (c *checker) postList(_ *ir.Cursor, id ir.NodeID) error {
	elems := ir.Get[ir.ListExpr](c.t, id).Elems
	ts := make([]types.TypeID, 0, len(elems))
	for _, e := range elems {
		et, ok := c.res.Types.Get(e)
		if !ok {
			return nil
		}
		ts = append(ts, et)
	}
	c.res.Types.Set(id, c.in.Tuple(ts))
	return nil
}
