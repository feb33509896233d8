package ir

import (
	"strings"

	"kestrel/internal/source"
)

// Builder adds nodes to a tree with a fixed span. Passes use it to
// synthesize declarations; tests use it to write programs by hand.
type Builder struct {
	T    *Tree
	Span source.Span
}

// NewBuilder returns a builder on t.
func NewBuilder(t *Tree) *Builder {
	return &Builder{T: t}
}

// At returns a copy of b that stamps span on new nodes.
func (b *Builder) At(span source.Span) *Builder {
	return &Builder{T: b.T, Span: span}
}

// Node adds an arbitrary payload.
func (b *Builder) Node(d Data) NodeID { return b.T.Add(b.Span, d) }

func (b *Builder) BoolType() NodeID  { return b.Node(TypeBool{}) }
func (b *Builder) VoidType() NodeID  { return b.Node(TypeVoid{}) }
func (b *Builder) ErrorType() NodeID { return b.Node(TypeError{}) }

// Bits is bit<w>.
func (b *Builder) Bits(w int) NodeID { return b.Node(TypeBits{Width: w}) }

// SInt is int<w>.
func (b *Builder) SInt(w int) NodeID { return b.Node(TypeBits{Width: w, Signed: true}) }

func (b *Builder) TypeName(name string) NodeID { return b.Node(TypeName{Name: name}) }

func (b *Builder) Tuple(elems ...NodeID) NodeID { return b.Node(TypeTuple{Elems: elems}) }

func (b *Builder) Field(name string, typ NodeID) NodeID {
	return b.Node(Field{Name: name, Type: typ})
}

func (b *Builder) Struct(name string, fields ...NodeID) NodeID {
	return b.Node(StructDecl{Name: name, Fields: fields})
}

func (b *Builder) Header(name string, fields ...NodeID) NodeID {
	return b.Node(HeaderDecl{Name: name, Fields: fields})
}

func (b *Builder) Typedef(name string, typ NodeID) NodeID {
	return b.Node(Typedef{Name: name, Type: typ})
}

func (b *Builder) Errors(members ...string) NodeID {
	return b.Node(ErrorDecl{Members: members})
}

func (b *Builder) Param(dir Direction, name string, typ NodeID) NodeID {
	return b.Node(Param{Name: name, Dir: dir, Type: typ})
}

func (b *Builder) Var(name string, typ, init NodeID) NodeID {
	return b.Node(Var{Name: name, Type: typ, Init: init})
}

func (b *Builder) Const(name string, typ, value NodeID) NodeID {
	return b.Node(Const{Name: name, Type: typ, Value: value})
}

func (b *Builder) Instance(name string, typ NodeID, args ...NodeID) NodeID {
	return b.Node(Instance{Name: name, Type: typ, Args: args})
}

func (b *Builder) Method(name string, ret NodeID, params ...NodeID) NodeID {
	return b.Node(MethodDecl{Name: name, Params: params, Return: ret})
}

// GenericMethod declares a method with type parameters, such as emit<T>.
func (b *Builder) GenericMethod(name string, typeParams []string, ret NodeID, params ...NodeID) NodeID {
	return b.Node(MethodDecl{Name: name, TypeParams: typeParams, Params: params, Return: ret})
}

func (b *Builder) Extern(name string, ctor []NodeID, methods ...NodeID) NodeID {
	return b.Node(ExternDecl{Name: name, CtorParams: ctor, Methods: methods})
}

func (b *Builder) Action(name string, params []NodeID, body NodeID) NodeID {
	return b.Node(Action{Name: name, Params: params, Body: body})
}

func (b *Builder) Key(expr NodeID, match string) NodeID {
	return b.Node(KeyElement{Expr: expr, Match: match})
}

func (b *Builder) Control(name string, params, locals []NodeID, body NodeID) NodeID {
	return b.Node(Control{Name: name, Params: params, Locals: locals, Body: body})
}

func (b *Builder) Parser(name string, params, locals, states []NodeID) NodeID {
	return b.Node(Parser{Name: name, Params: params, Locals: locals, States: states})
}

func (b *Builder) State(name string, transition NodeID, stmts ...NodeID) NodeID {
	return b.Node(ParserState{Name: name, Stmts: stmts, Transition: transition})
}

func (b *Builder) Program(decls ...NodeID) NodeID { return b.Node(Program{Decls: decls}) }

// Expressions.

func (b *Builder) Path(name string) NodeID { return b.Node(Path{Name: name}) }

func (b *Builder) Member(expr NodeID, name string) NodeID {
	return b.Node(Member{Expr: expr, Name: name})
}

// Dot builds a member chain from a dotted reference such as "hdr.ip.ttl".
func (b *Builder) Dot(ref string) NodeID {
	parts := strings.Split(ref, ".")
	id := b.Path(parts[0])
	for _, p := range parts[1:] {
		id = b.Member(id, p)
	}
	return id
}

// Int is an untyped integer literal.
func (b *Builder) Int(v uint64) NodeID { return b.Node(Constant{Value: v, Base: 10}) }

// Uint is a bit<w> literal.
func (b *Builder) Uint(v uint64, w int) NodeID {
	return b.Node(Constant{Value: v, Width: w, Base: 10})
}

func (b *Builder) Bool(v bool) NodeID { return b.Node(BoolLit{Value: v}) }

func (b *Builder) Bin(op BinOp, l, r NodeID) NodeID {
	return b.Node(Binary{Op: op, Left: l, Right: r})
}

func (b *Builder) Not(e NodeID) NodeID { return b.Node(Unary{Op: OpNot, Expr: e}) }

func (b *Builder) Call(method NodeID, args ...NodeID) NodeID {
	return b.Node(MethodCall{Method: method, Args: args})
}

// CallT is a call with type arguments, such as emit<T>(x).
func (b *Builder) CallT(method NodeID, typeArgs []NodeID, args ...NodeID) NodeID {
	return b.Node(MethodCall{Method: method, TypeArgs: typeArgs, Args: args})
}

func (b *Builder) New(typ NodeID, args ...NodeID) NodeID {
	return b.Node(ConstructorCall{Type: typ, Args: args})
}

func (b *Builder) List(elems ...NodeID) NodeID { return b.Node(ListExpr{Elems: elems}) }

func (b *Builder) Default() NodeID { return b.Node(DefaultExpr{}) }

func (b *Builder) Select(keys []NodeID, cases ...NodeID) NodeID {
	return b.Node(SelectExpr{Keys: keys, Cases: cases})
}

func (b *Builder) SelectCase(keyset NodeID, state string) NodeID {
	return b.Node(SelectCase{Keyset: keyset, State: b.Path(state)})
}

// Statements.

func (b *Builder) Block(stmts ...NodeID) NodeID { return b.Node(Block{Stmts: stmts}) }

func (b *Builder) If(cond, then, els NodeID) NodeID {
	return b.Node(If{Cond: cond, Then: then, Else: els})
}

func (b *Builder) Switch(expr NodeID, cases ...NodeID) NodeID {
	return b.Node(Switch{Expr: expr, Cases: cases})
}

func (b *Builder) Case(label, body NodeID) NodeID {
	return b.Node(SwitchCase{Label: label, Body: body})
}

func (b *Builder) Return(value NodeID) NodeID { return b.Node(Return{Value: value}) }

func (b *Builder) Exit() NodeID { return b.Node(Exit{}) }

func (b *Builder) Assign(l, r NodeID) NodeID { return b.Node(Assign{Left: l, Right: r}) }

// Do wraps a call in a statement.
func (b *Builder) Do(call NodeID) NodeID { return b.Node(CallStmt{Call: call}) }

func (b *Builder) Empty() NodeID { return b.Node(Empty{}) }
