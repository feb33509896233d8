package sema

import (
	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/types"
)

// Names the checker knows without a declaration.
const (
	StateAccept = "accept"
	StateReject = "reject"
	ErrorName   = "error"
	VerifyName  = "verify"
)

// Options configure a check of one program.
type Options struct {
	Bag   *diag.Bag
	Types *types.Interner
}

// Result stores the side tables produced by the checker.
type Result struct {
	Refs  *RefMap
	Types *TypeMap
	// Returns holds the result type of every callable expression: the
	// Method child of each MethodCall that resolved.
	Returns map[ir.NodeID]types.TypeID
}

// Check resolves names and computes types for the tree rooted at root.
// Problems of the program go to opts.Bag; the returned error is reserved
// for internal errors.
func Check(t *ir.Tree, root ir.NodeID, opts Options) (Result, error) {
	res := Result{
		Refs:    NewRefMap(),
		Types:   NewTypeMap(),
		Returns: make(map[ir.NodeID]types.TypeID),
	}
	if opts.Types == nil {
		opts.Types = types.NewInterner()
	}
	if opts.Bag == nil {
		opts.Bag = diag.NewBag(100)
	}
	c := &checker{
		t:       t,
		in:      opts.Types,
		bag:     opts.Bag,
		res:     &res,
		qual:    make(map[ir.NodeID]string),
		externs: make(map[string]ir.NodeID),
		errors:  make(map[string]struct{}),
	}
	if t.Kind(root) != ir.KindProgram {
		return res, ir.BugAt(root, "type check of %s, want Program", t.Kind(root))
	}
	if err := c.inspector().Apply(t, root); err != nil {
		return res, err
	}
	return res, nil
}

type checker struct {
	t       *ir.Tree
	in      *types.Interner
	bag     *diag.Bag
	res     *Result
	scopes  []scope
	owners  []string
	qual    map[ir.NodeID]string
	externs map[string]ir.NodeID
	errors  map[string]struct{}
	errDecl ir.NodeID
}

func (c *checker) inspector() *ir.Inspector {
	in := ir.NewInspector("type-check")

	in.Pre(ir.KindProgram, c.preProgram).Post(ir.KindProgram, c.popOwnerless)
	in.Pre(ir.KindControl, c.preControl).Post(ir.KindControl, c.postUnit)
	in.Pre(ir.KindParser, c.preParser).Post(ir.KindParser, c.postUnit)
	in.Pre(ir.KindAction, c.preAction).Post(ir.KindAction, c.postAction)
	in.Pre(ir.KindMethodDecl, c.preMethod).Post(ir.KindMethodDecl, c.popOwnerless)
	in.Pre(ir.KindBlock, c.pushed).Post(ir.KindBlock, c.popOwnerless)

	in.Post(ir.KindTypeBool, c.fixed(c.in.Builtins().Bool))
	in.Post(ir.KindTypeVoid, c.fixed(c.in.Builtins().Void))
	in.Post(ir.KindTypeError, c.fixed(c.in.Builtins().Error))
	in.Post(ir.KindTypeBits, c.postBits)
	in.Post(ir.KindTypeName, c.postTypeName)
	in.Post(ir.KindTypeTuple, c.postTuple)

	in.Post(ir.KindStructDecl, c.postAggregate)
	in.Post(ir.KindHeaderDecl, c.postAggregate)
	in.Post(ir.KindField, c.typedDecl)
	in.Post(ir.KindTypedef, c.typedDecl)
	in.Post(ir.KindParam, c.typedDecl)
	in.Post(ir.KindInstance, c.typedDecl)
	in.Post(ir.KindConst, c.localDecl)
	in.Post(ir.KindVar, c.localDecl)
	in.Post(ir.KindTable, c.postTable)
	in.Post(ir.KindParserState, c.postState)

	in.Post(ir.KindPath, c.postPath)
	in.Post(ir.KindMember, c.postMember)
	in.Post(ir.KindConstant, c.postConstant)
	in.Post(ir.KindBoolLit, c.fixed(c.in.Builtins().Bool))
	in.Post(ir.KindBinary, c.postBinary)
	in.Post(ir.KindUnary, c.postUnary)
	in.Post(ir.KindMethodCall, c.postCall)
	in.Post(ir.KindConstructorCall, c.postConstructor)
	in.Post(ir.KindListExpr, c.postList)
	return in
}

func (c *checker) fixed(t types.TypeID) ir.PostFunc {
	return func(_ *ir.Cursor, id ir.NodeID) error {
		c.res.Types.Set(id, t)
		return nil
	}
}

func (c *checker) pushed(*ir.Cursor, ir.NodeID) (bool, error) {
	c.pushScope()
	return true, nil
}

func (c *checker) popOwnerless(*ir.Cursor, ir.NodeID) error {
	c.popScope()
	return nil
}

func (c *checker) preProgram(_ *ir.Cursor, id ir.NodeID) (bool, error) {
	c.pushScope()
	for _, d := range ir.Get[ir.Program](c.t, id).Decls {
		switch data := c.t.Data(d).(type) {
		case ir.StructDecl:
			c.in.Nominal(types.KindStruct, data.Name)
		case ir.HeaderDecl:
			c.in.Nominal(types.KindHeader, data.Name)
		case ir.ExternDecl:
			c.in.Nominal(types.KindExtern, data.Name)
			c.externs[data.Name] = d
		case ir.ErrorDecl:
			for _, m := range data.Members {
				c.errors[m] = struct{}{}
			}
			if !c.errDecl.IsValid() {
				c.errDecl = d
			}
			continue
		}
		c.declare(c.t.Name(d), d)
	}
	return true, nil
}

// preUnit binds the parameters and locals of a parser or control ahead of
// the walk, so declarations may be used before they appear.
func (c *checker) preUnit(id ir.NodeID, kind types.Kind, name string, groups ...[]ir.NodeID) {
	c.res.Types.Set(id, c.in.Nominal(kind, name))
	c.owners = append(c.owners, name)
	c.pushScope()
	for _, g := range groups {
		for _, d := range g {
			c.declare(c.t.Name(d), d)
		}
	}
}

func (c *checker) preControl(_ *ir.Cursor, id ir.NodeID) (bool, error) {
	d := ir.Get[ir.Control](c.t, id)
	c.preUnit(id, types.KindControl, d.Name, d.Params, d.Locals)
	return true, nil
}

func (c *checker) preParser(_ *ir.Cursor, id ir.NodeID) (bool, error) {
	d := ir.Get[ir.Parser](c.t, id)
	c.preUnit(id, types.KindParser, d.Name, d.Params, d.Locals, d.States)
	return true, nil
}

func (c *checker) postUnit(*ir.Cursor, ir.NodeID) error {
	c.popScope()
	c.owners = c.owners[:len(c.owners)-1]
	return nil
}

func (c *checker) preAction(_ *ir.Cursor, id ir.NodeID) (bool, error) {
	c.res.Types.Set(id, c.in.Nominal(types.KindAction, c.qualified(id)))
	c.pushScope()
	for _, p := range ir.Get[ir.Action](c.t, id).Params {
		c.declare(c.t.Name(p), p)
	}
	return true, nil
}

func (c *checker) postAction(*ir.Cursor, ir.NodeID) error {
	c.popScope()
	return nil
}

// preMethod binds the type parameters of a generic method to the method
// itself; a TypeName resolving to a MethodDecl is a type variable.
func (c *checker) preMethod(_ *ir.Cursor, id ir.NodeID) (bool, error) {
	c.pushScope()
	for _, tp := range ir.Get[ir.MethodDecl](c.t, id).TypeParams {
		c.scopes[len(c.scopes)-1].names[tp] = id
	}
	return true, nil
}

func (c *checker) postBits(_ *ir.Cursor, id ir.NodeID) error {
	d := ir.Get[ir.TypeBits](c.t, id)
	if d.Width <= 0 {
		c.bag.Add(diag.Errorf(diag.SemaUnknownType, c.t.Span(id), "bit width must be positive, got %d", d.Width))
		return nil
	}
	c.res.Types.Set(id, c.in.Bits(d.Width, d.Signed))
	return nil
}

func (c *checker) postTypeName(_ *ir.Cursor, id ir.NodeID) error {
	name := ir.Get[ir.TypeName](c.t, id).Name
	if name == ErrorName {
		c.res.Types.Set(id, c.in.Builtins().Error)
		return nil
	}
	decl, ok := c.lookup(name)
	if !ok {
		c.bag.Add(diag.Errorf(diag.SemaUnknownType, c.t.Span(id), "unknown type %q", name))
		return nil
	}
	c.res.Refs.Set(id, decl)
	switch data := c.t.Data(decl).(type) {
	case ir.StructDecl:
		c.res.Types.Set(id, c.in.Nominal(types.KindStruct, data.Name))
	case ir.HeaderDecl:
		c.res.Types.Set(id, c.in.Nominal(types.KindHeader, data.Name))
	case ir.ExternDecl:
		c.res.Types.Set(id, c.in.Nominal(types.KindExtern, data.Name))
	case ir.Parser:
		c.res.Types.Set(id, c.in.Nominal(types.KindParser, data.Name))
	case ir.Control:
		c.res.Types.Set(id, c.in.Nominal(types.KindControl, data.Name))
	case ir.Typedef:
		t, ok := c.res.Types.Get(decl)
		if !ok {
			c.bag.Add(diag.Errorf(diag.SemaUnknownType, c.t.Span(id), "typedef %q used before its definition", name))
			return nil
		}
		c.res.Types.Set(id, t)
	case ir.MethodDecl:
		// type variable of a generic method
	default:
		c.bag.Add(diag.Errorf(diag.SemaNotAType, c.t.Span(id), "%q is not a type", name))
	}
	return nil
}

func (c *checker) postTuple(_ *ir.Cursor, id ir.NodeID) error {
	elems := ir.Get[ir.TypeTuple](c.t, id).Elems
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

func (c *checker) postAggregate(_ *ir.Cursor, id ir.NodeID) error {
	var (
		kind   types.Kind
		name   string
		fields []ir.NodeID
	)
	switch d := c.t.Data(id).(type) {
	case ir.StructDecl:
		kind, name, fields = types.KindStruct, d.Name, d.Fields
	case ir.HeaderDecl:
		kind, name, fields = types.KindHeader, d.Name, d.Fields
	}
	tid := c.in.Nominal(kind, name)
	out := make([]types.Field, 0, len(fields))
	seen := make(map[string]ir.NodeID, len(fields))
	for _, f := range fields {
		fd := ir.Get[ir.Field](c.t, f)
		if prev, dup := seen[fd.Name]; dup {
			c.bag.Add(diag.Errorf(diag.SemaDuplicateName, c.t.Span(f), "duplicate field %q in %s", fd.Name, name).
				WithNote(c.t.Span(prev), "previous field"))
			continue
		}
		seen[fd.Name] = f
		out = append(out, types.Field{Name: fd.Name, Type: c.res.Types.Type(f)})
	}
	c.in.SetFields(tid, out)
	c.res.Types.Set(id, tid)
	return nil
}

// typedDecl gives a declaration the type of its type child.
func (c *checker) typedDecl(_ *ir.Cursor, id ir.NodeID) error {
	var typ ir.NodeID
	switch d := c.t.Data(id).(type) {
	case ir.Field:
		typ = d.Type
	case ir.Typedef:
		typ = d.Type
	case ir.Param:
		typ = d.Type
	case ir.Instance:
		typ = d.Type
	case ir.Const:
		typ = d.Type
	case ir.Var:
		typ = d.Type
	}
	c.res.Types.Set(id, c.res.Types.Type(typ))
	return nil
}

// localDecl types a variable or constant and binds it in the innermost
// scope once its initializer has been checked.
func (c *checker) localDecl(cur *ir.Cursor, id ir.NodeID) error {
	if err := c.typedDecl(cur, id); err != nil {
		return err
	}
	c.declare(c.t.Name(id), id)
	return nil
}

func (c *checker) postTable(_ *ir.Cursor, id ir.NodeID) error {
	c.res.Types.Set(id, c.in.Nominal(types.KindTable, c.qualified(id)))
	return nil
}

func (c *checker) postState(_ *ir.Cursor, id ir.NodeID) error {
	c.res.Types.Set(id, c.in.Nominal(types.KindState, c.qualified(id)))
	return nil
}
