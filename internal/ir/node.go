package ir

import (
	"kestrel/internal/source"
)

// Node is one entry of the arena.
type Node struct {
	Kind Kind
	Span source.Span
	Data Data // Kind-specific payload
}

// Data is the interface implemented by every node payload.
type Data interface {
	Kind() Kind
	// slots lists the child positions in their fixed visiting order.
	slots() []slot
	// withSlots returns a copy of the payload holding the given children.
	withSlots(s []slot) Data
}

// slot is one child position: a single child or a list of children.
type slot struct {
	id       NodeID
	list     []NodeID
	isList   bool
	optional bool
}

func one(id NodeID) slot       { return slot{id: id} }
func opt(id NodeID) slot       { return slot{id: id, optional: true} }
func list(ids []NodeID) slot   { return slot{list: ids, isList: true} }
func (s slot) single() NodeID  { return s.id }
func (s slot) elems() []NodeID { return s.list }
func leafSlots() []slot        { return nil }

// Direction of a parameter.
type Direction uint8

const (
	DirNone Direction = iota
	DirIn
	DirOut
	DirInOut
)

func (d Direction) String() string {
	switch d {
	case DirIn:
		return "in"
	case DirOut:
		return "out"
	case DirInOut:
		return "inout"
	default:
		return ""
	}
}

// BinOp enumerates binary operators.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLAnd
	OpLOr
)

var binOpText = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*",
	OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^",
	OpShl: "<<", OpShr: ">>",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
	OpLAnd: "&&", OpLOr: "||",
}

func (op BinOp) String() string {
	if int(op) < len(binOpText) {
		return binOpText[op]
	}
	return "?"
}

// IsComparison reports whether op yields a boolean from two values.
func (op BinOp) IsComparison() bool {
	return op >= OpEq && op <= OpGe
}

// UnOp enumerates unary operators.
type UnOp uint8

const (
	OpNot UnOp = iota
	OpNeg
	OpComplement
)

func (op UnOp) String() string {
	switch op {
	case OpNot:
		return "!"
	case OpNeg:
		return "-"
	case OpComplement:
		return "~"
	default:
		return "?"
	}
}

// Types ----------------------------------------------------------------------

type TypeBool struct{}

func (TypeBool) Kind() Kind                { return KindTypeBool }
func (TypeBool) slots() []slot             { return leafSlots() }
func (d TypeBool) withSlots(_ []slot) Data { return d }

type TypeVoid struct{}

func (TypeVoid) Kind() Kind                { return KindTypeVoid }
func (TypeVoid) slots() []slot             { return leafSlots() }
func (d TypeVoid) withSlots(_ []slot) Data { return d }

type TypeError struct{}

func (TypeError) Kind() Kind                { return KindTypeError }
func (TypeError) slots() []slot             { return leafSlots() }
func (d TypeError) withSlots(_ []slot) Data { return d }

// TypeBits is bit<Width>, or int<Width> when Signed.
type TypeBits struct {
	Width  int
	Signed bool
}

func (TypeBits) Kind() Kind                { return KindTypeBits }
func (TypeBits) slots() []slot             { return leafSlots() }
func (d TypeBits) withSlots(_ []slot) Data { return d }

// TypeName refers to a declared type by name.
type TypeName struct {
	Name string
}

func (TypeName) Kind() Kind                { return KindTypeName }
func (TypeName) slots() []slot             { return leafSlots() }
func (d TypeName) withSlots(_ []slot) Data { return d }

// TypeTuple is an anonymous ordered composite type.
type TypeTuple struct {
	Elems []NodeID
}

func (TypeTuple) Kind() Kind      { return KindTypeTuple }
func (d TypeTuple) slots() []slot { return []slot{list(d.Elems)} }
func (d TypeTuple) withSlots(s []slot) Data {
	d.Elems = s[0].elems()
	return d
}

// Declarations ---------------------------------------------------------------

type Program struct {
	Decls []NodeID
}

func (Program) Kind() Kind      { return KindProgram }
func (d Program) slots() []slot { return []slot{list(d.Decls)} }
func (d Program) withSlots(s []slot) Data {
	d.Decls = s[0].elems()
	return d
}

type StructDecl struct {
	Name   string
	Fields []NodeID
}

func (StructDecl) Kind() Kind      { return KindStructDecl }
func (d StructDecl) slots() []slot { return []slot{list(d.Fields)} }
func (d StructDecl) withSlots(s []slot) Data {
	d.Fields = s[0].elems()
	return d
}

type HeaderDecl struct {
	Name   string
	Fields []NodeID
}

func (HeaderDecl) Kind() Kind      { return KindHeaderDecl }
func (d HeaderDecl) slots() []slot { return []slot{list(d.Fields)} }
func (d HeaderDecl) withSlots(s []slot) Data {
	d.Fields = s[0].elems()
	return d
}

type Field struct {
	Name string
	Type NodeID
}

func (Field) Kind() Kind      { return KindField }
func (d Field) slots() []slot { return []slot{one(d.Type)} }
func (d Field) withSlots(s []slot) Data {
	d.Type = s[0].single()
	return d
}

type Typedef struct {
	Name string
	Type NodeID
}

func (Typedef) Kind() Kind      { return KindTypedef }
func (d Typedef) slots() []slot { return []slot{one(d.Type)} }
func (d Typedef) withSlots(s []slot) Data {
	d.Type = s[0].single()
	return d
}

// ErrorDecl declares members of the built-in error type.
type ErrorDecl struct {
	Members []string
}

func (ErrorDecl) Kind() Kind                { return KindErrorDecl }
func (ErrorDecl) slots() []slot             { return leafSlots() }
func (d ErrorDecl) withSlots(_ []slot) Data { return d }

// ExternDecl declares an extern object type and its methods.
type ExternDecl struct {
	Name       string
	CtorParams []NodeID
	Methods    []NodeID
}

func (ExternDecl) Kind() Kind      { return KindExternDecl }
func (d ExternDecl) slots() []slot { return []slot{list(d.CtorParams), list(d.Methods)} }
func (d ExternDecl) withSlots(s []slot) Data {
	d.CtorParams = s[0].elems()
	d.Methods = s[1].elems()
	return d
}

// MethodDecl is an extern method, or an extern function at top level.
type MethodDecl struct {
	Name       string
	TypeParams []string
	Params     []NodeID
	Return     NodeID // optional
}

func (MethodDecl) Kind() Kind      { return KindMethodDecl }
func (d MethodDecl) slots() []slot { return []slot{list(d.Params), opt(d.Return)} }
func (d MethodDecl) withSlots(s []slot) Data {
	d.Params = s[0].elems()
	d.Return = s[1].single()
	return d
}

// Instance instantiates an extern object: `CounterArray(1024, true) c;`.
type Instance struct {
	Name string
	Type NodeID
	Args []NodeID
}

func (Instance) Kind() Kind      { return KindInstance }
func (d Instance) slots() []slot { return []slot{one(d.Type), list(d.Args)} }
func (d Instance) withSlots(s []slot) Data {
	d.Type = s[0].single()
	d.Args = s[1].elems()
	return d
}

type Const struct {
	Name  string
	Type  NodeID
	Value NodeID
}

func (Const) Kind() Kind      { return KindConst }
func (d Const) slots() []slot { return []slot{one(d.Type), one(d.Value)} }
func (d Const) withSlots(s []slot) Data {
	d.Type = s[0].single()
	d.Value = s[1].single()
	return d
}

type Var struct {
	Name string
	Type NodeID
	Init NodeID // optional
}

func (Var) Kind() Kind      { return KindVar }
func (d Var) slots() []slot { return []slot{one(d.Type), opt(d.Init)} }
func (d Var) withSlots(s []slot) Data {
	d.Type = s[0].single()
	d.Init = s[1].single()
	return d
}

type Param struct {
	Name string
	Dir  Direction
	Type NodeID
}

func (Param) Kind() Kind      { return KindParam }
func (d Param) slots() []slot { return []slot{one(d.Type)} }
func (d Param) withSlots(s []slot) Data {
	d.Type = s[0].single()
	return d
}

type Parser struct {
	Name   string
	Params []NodeID
	Locals []NodeID
	States []NodeID
}

func (Parser) Kind() Kind { return KindParser }
func (d Parser) slots() []slot {
	return []slot{list(d.Params), list(d.Locals), list(d.States)}
}
func (d Parser) withSlots(s []slot) Data {
	d.Params = s[0].elems()
	d.Locals = s[1].elems()
	d.States = s[2].elems()
	return d
}

// ParserState is a named state; Transition is a Path to the next state or a
// SelectExpr. States without a transition implicitly reject.
type ParserState struct {
	Name       string
	Stmts      []NodeID
	Transition NodeID // optional
}

func (ParserState) Kind() Kind      { return KindParserState }
func (d ParserState) slots() []slot { return []slot{list(d.Stmts), opt(d.Transition)} }
func (d ParserState) withSlots(s []slot) Data {
	d.Stmts = s[0].elems()
	d.Transition = s[1].single()
	return d
}

type Control struct {
	Name   string
	Params []NodeID
	Locals []NodeID
	Body   NodeID
}

func (Control) Kind() Kind { return KindControl }
func (d Control) slots() []slot {
	return []slot{list(d.Params), list(d.Locals), one(d.Body)}
}
func (d Control) withSlots(s []slot) Data {
	d.Params = s[0].elems()
	d.Locals = s[1].elems()
	d.Body = s[2].single()
	return d
}

type Action struct {
	Name   string
	Params []NodeID
	Body   NodeID
}

func (Action) Kind() Kind      { return KindAction }
func (d Action) slots() []slot { return []slot{list(d.Params), one(d.Body)} }
func (d Action) withSlots(s []slot) Data {
	d.Params = s[0].elems()
	d.Body = s[1].single()
	return d
}

// Table is a match-action table. Actions are Paths naming actions; Default is
// a Path or MethodCall; Impl is the ConstructorCall of the implementation
// property.
type Table struct {
	Name    string
	Keys    []NodeID
	Actions []NodeID
	Default NodeID // optional
	Impl    NodeID // optional
}

func (Table) Kind() Kind { return KindTable }
func (d Table) slots() []slot {
	return []slot{list(d.Keys), list(d.Actions), opt(d.Default), opt(d.Impl)}
}
func (d Table) withSlots(s []slot) Data {
	d.Keys = s[0].elems()
	d.Actions = s[1].elems()
	d.Default = s[2].single()
	d.Impl = s[3].single()
	return d
}

type KeyElement struct {
	Expr  NodeID
	Match string
}

func (KeyElement) Kind() Kind      { return KindKeyElement }
func (d KeyElement) slots() []slot { return []slot{one(d.Expr)} }
func (d KeyElement) withSlots(s []slot) Data {
	d.Expr = s[0].single()
	return d
}

// Expressions ----------------------------------------------------------------

type Path struct {
	Name string
}

func (Path) Kind() Kind                { return KindPath }
func (Path) slots() []slot             { return leafSlots() }
func (d Path) withSlots(_ []slot) Data { return d }

type Member struct {
	Expr NodeID
	Name string
}

func (Member) Kind() Kind      { return KindMember }
func (d Member) slots() []slot { return []slot{one(d.Expr)} }
func (d Member) withSlots(s []slot) Data {
	d.Expr = s[0].single()
	return d
}

// Constant is an integer literal; Width zero means arbitrary precision.
type Constant struct {
	Value  uint64
	Width  int
	Signed bool
	Base   int
}

func (Constant) Kind() Kind                { return KindConstant }
func (Constant) slots() []slot             { return leafSlots() }
func (d Constant) withSlots(_ []slot) Data { return d }

type BoolLit struct {
	Value bool
}

func (BoolLit) Kind() Kind                { return KindBoolLit }
func (BoolLit) slots() []slot             { return leafSlots() }
func (d BoolLit) withSlots(_ []slot) Data { return d }

type Binary struct {
	Op    BinOp
	Left  NodeID
	Right NodeID
}

func (Binary) Kind() Kind      { return KindBinary }
func (d Binary) slots() []slot { return []slot{one(d.Left), one(d.Right)} }
func (d Binary) withSlots(s []slot) Data {
	d.Left = s[0].single()
	d.Right = s[1].single()
	return d
}

type Unary struct {
	Op   UnOp
	Expr NodeID
}

func (Unary) Kind() Kind      { return KindUnary }
func (d Unary) slots() []slot { return []slot{one(d.Expr)} }
func (d Unary) withSlots(s []slot) Data {
	d.Expr = s[0].single()
	return d
}

// MethodCall calls Method (a Path or Member) with optional type arguments.
type MethodCall struct {
	Method   NodeID
	TypeArgs []NodeID
	Args     []NodeID
}

func (MethodCall) Kind() Kind { return KindMethodCall }
func (d MethodCall) slots() []slot {
	return []slot{one(d.Method), list(d.TypeArgs), list(d.Args)}
}
func (d MethodCall) withSlots(s []slot) Data {
	d.Method = s[0].single()
	d.TypeArgs = s[1].elems()
	d.Args = s[2].elems()
	return d
}

type ConstructorCall struct {
	Type NodeID
	Args []NodeID
}

func (ConstructorCall) Kind() Kind      { return KindConstructorCall }
func (d ConstructorCall) slots() []slot { return []slot{one(d.Type), list(d.Args)} }
func (d ConstructorCall) withSlots(s []slot) Data {
	d.Type = s[0].single()
	d.Args = s[1].elems()
	return d
}

// ListExpr is a tuple value `{a, b}`.
type ListExpr struct {
	Elems []NodeID
}

func (ListExpr) Kind() Kind      { return KindListExpr }
func (d ListExpr) slots() []slot { return []slot{list(d.Elems)} }
func (d ListExpr) withSlots(s []slot) Data {
	d.Elems = s[0].elems()
	return d
}

type DefaultExpr struct{}

func (DefaultExpr) Kind() Kind                { return KindDefaultExpr }
func (DefaultExpr) slots() []slot             { return leafSlots() }
func (d DefaultExpr) withSlots(_ []slot) Data { return d }

type SelectExpr struct {
	Keys  []NodeID
	Cases []NodeID
}

func (SelectExpr) Kind() Kind      { return KindSelectExpr }
func (d SelectExpr) slots() []slot { return []slot{list(d.Keys), list(d.Cases)} }
func (d SelectExpr) withSlots(s []slot) Data {
	d.Keys = s[0].elems()
	d.Cases = s[1].elems()
	return d
}

// SelectCase maps a keyset (expression or DefaultExpr) to a state Path.
type SelectCase struct {
	Keyset NodeID
	State  NodeID
}

func (SelectCase) Kind() Kind      { return KindSelectCase }
func (d SelectCase) slots() []slot { return []slot{one(d.Keyset), one(d.State)} }
func (d SelectCase) withSlots(s []slot) Data {
	d.Keyset = s[0].single()
	d.State = s[1].single()
	return d
}

// Statements -----------------------------------------------------------------

type Block struct {
	Stmts []NodeID
}

func (Block) Kind() Kind      { return KindBlock }
func (d Block) slots() []slot { return []slot{list(d.Stmts)} }
func (d Block) withSlots(s []slot) Data {
	d.Stmts = s[0].elems()
	return d
}

type If struct {
	Cond NodeID
	Then NodeID
	Else NodeID // optional
}

func (If) Kind() Kind      { return KindIf }
func (d If) slots() []slot { return []slot{one(d.Cond), one(d.Then), opt(d.Else)} }
func (d If) withSlots(s []slot) Data {
	d.Cond = s[0].single()
	d.Then = s[1].single()
	d.Else = s[2].single()
	return d
}

type Switch struct {
	Expr  NodeID
	Cases []NodeID
}

func (Switch) Kind() Kind      { return KindSwitch }
func (d Switch) slots() []slot { return []slot{one(d.Expr), list(d.Cases)} }
func (d Switch) withSlots(s []slot) Data {
	d.Expr = s[0].single()
	d.Cases = s[1].elems()
	return d
}

// SwitchCase has a Path/Constant/DefaultExpr label; a missing body falls
// through to the next case.
type SwitchCase struct {
	Label NodeID
	Body  NodeID // optional
}

func (SwitchCase) Kind() Kind      { return KindSwitchCase }
func (d SwitchCase) slots() []slot { return []slot{one(d.Label), opt(d.Body)} }
func (d SwitchCase) withSlots(s []slot) Data {
	d.Label = s[0].single()
	d.Body = s[1].single()
	return d
}

type Return struct {
	Value NodeID // optional
}

func (Return) Kind() Kind      { return KindReturn }
func (d Return) slots() []slot { return []slot{opt(d.Value)} }
func (d Return) withSlots(s []slot) Data {
	d.Value = s[0].single()
	return d
}

type Exit struct{}

func (Exit) Kind() Kind                { return KindExit }
func (Exit) slots() []slot             { return leafSlots() }
func (d Exit) withSlots(_ []slot) Data { return d }

// CallStmt evaluates a MethodCall for its effect.
type CallStmt struct {
	Call NodeID
}

func (CallStmt) Kind() Kind      { return KindCallStmt }
func (d CallStmt) slots() []slot { return []slot{one(d.Call)} }
func (d CallStmt) withSlots(s []slot) Data {
	d.Call = s[0].single()
	return d
}

type Assign struct {
	Left  NodeID
	Right NodeID
}

func (Assign) Kind() Kind      { return KindAssign }
func (d Assign) slots() []slot { return []slot{one(d.Left), one(d.Right)} }
func (d Assign) withSlots(s []slot) Data {
	d.Left = s[0].single()
	d.Right = s[1].single()
	return d
}

type Empty struct{}

func (Empty) Kind() Kind                { return KindEmpty }
func (Empty) slots() []slot             { return leafSlots() }
func (d Empty) withSlots(_ []slot) Data { return d }

// Seq is a transient splice: a list slot receiving a Seq inlines its items.
type Seq struct {
	Items []NodeID
}

func (Seq) Kind() Kind      { return KindSeq }
func (d Seq) slots() []slot { return []slot{list(d.Items)} }
func (d Seq) withSlots(s []slot) Data {
	d.Items = s[0].elems()
	return d
}
