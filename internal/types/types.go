// Package types holds canonical type descriptors.
//
// Every structurally distinct type gets exactly one TypeID inside an
// Interner, so two tuple types with the same components compare equal by ID.
// The type checker fills a type map with these IDs; later passes use them as
// structural keys.
package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindVoid
	KindBool
	KindInt  // arbitrary-precision integer literal
	KindBits // bit<W> / int<W>
	KindError
	KindString
	KindTuple
	KindStruct
	KindHeader
	KindExtern
	KindTable
	KindAction
	KindApplyResult // result of table.apply()
	KindActionEnum  // table.apply().action_run
	KindState       // parser state
	KindParser
	KindControl
	KindMethod // extern method or function
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindVoid:
		return "void"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindBits:
		return "bits"
	case KindError:
		return "error"
	case KindString:
		return "string"
	case KindTuple:
		return "tuple"
	case KindStruct:
		return "struct"
	case KindHeader:
		return "header"
	case KindExtern:
		return "extern"
	case KindTable:
		return "table"
	case KindAction:
		return "action"
	case KindApplyResult:
		return "apply_result"
	case KindActionEnum:
		return "action_enum"
	case KindState:
		return "state"
	case KindParser:
		return "parser"
	case KindControl:
		return "control"
	case KindMethod:
		return "method"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Type is a compact descriptor for any supported type.
type Type struct {
	Kind    Kind
	Width   uint32 // bit width for KindBits
	Signed  bool   // int<W> rather than bit<W>
	Payload uint32 // slot in the tuple/nominal side tables
}

// MakeBits describes bit<width> or int<width>.
func MakeBits(width uint32, signed bool) Type {
	return Type{Kind: KindBits, Width: width, Signed: signed}
}

// IsNominal reports whether the kind is identified by name rather than shape.
func (k Kind) IsNominal() bool {
	switch k {
	case KindStruct, KindHeader, KindExtern, KindTable, KindAction,
		KindApplyResult, KindActionEnum, KindState, KindParser, KindControl, KindMethod:
		return true
	}
	return false
}
