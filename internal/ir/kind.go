package ir

import "fmt"

// Kind enumerates node variants. The set is closed: traversal, printing and
// encoding switch over it exhaustively.
type Kind uint8

const (
	KindInvalid Kind = iota

	// Types.
	KindTypeBool
	KindTypeVoid
	KindTypeError
	KindTypeBits
	KindTypeName
	KindTypeTuple

	// Declarations.
	KindProgram
	KindStructDecl
	KindHeaderDecl
	KindField
	KindTypedef
	KindErrorDecl
	KindExternDecl
	KindMethodDecl
	KindInstance
	KindConst
	KindVar
	KindParam
	KindParser
	KindParserState
	KindControl
	KindAction
	KindTable
	KindKeyElement

	// Expressions.
	KindPath
	KindMember
	KindConstant
	KindBoolLit
	KindBinary
	KindUnary
	KindMethodCall
	KindConstructorCall
	KindListExpr
	KindDefaultExpr
	KindSelectExpr
	KindSelectCase

	// Statements.
	KindBlock
	KindIf
	KindSwitch
	KindSwitchCase
	KindReturn
	KindExit
	KindCallStmt
	KindAssign
	KindEmpty

	// KindSeq is a splice produced by transforms; list slots flatten it.
	KindSeq

	kindCount
)

var kindNames = [...]string{
	KindInvalid:         "Invalid",
	KindTypeBool:        "TypeBool",
	KindTypeVoid:        "TypeVoid",
	KindTypeError:       "TypeError",
	KindTypeBits:        "TypeBits",
	KindTypeName:        "TypeName",
	KindTypeTuple:       "TypeTuple",
	KindProgram:         "Program",
	KindStructDecl:      "StructDecl",
	KindHeaderDecl:      "HeaderDecl",
	KindField:           "Field",
	KindTypedef:         "Typedef",
	KindErrorDecl:       "ErrorDecl",
	KindExternDecl:      "ExternDecl",
	KindMethodDecl:      "MethodDecl",
	KindInstance:        "Instance",
	KindConst:           "Const",
	KindVar:             "Var",
	KindParam:           "Param",
	KindParser:          "Parser",
	KindParserState:     "ParserState",
	KindControl:         "Control",
	KindAction:          "Action",
	KindTable:           "Table",
	KindKeyElement:      "KeyElement",
	KindPath:            "Path",
	KindMember:          "Member",
	KindConstant:        "Constant",
	KindBoolLit:         "BoolLit",
	KindBinary:          "Binary",
	KindUnary:           "Unary",
	KindMethodCall:      "MethodCall",
	KindConstructorCall: "ConstructorCall",
	KindListExpr:        "ListExpr",
	KindDefaultExpr:     "DefaultExpr",
	KindSelectExpr:      "SelectExpr",
	KindSelectCase:      "SelectCase",
	KindBlock:           "Block",
	KindIf:              "If",
	KindSwitch:          "Switch",
	KindSwitchCase:      "SwitchCase",
	KindReturn:          "Return",
	KindExit:            "Exit",
	KindCallStmt:        "CallStmt",
	KindAssign:          "Assign",
	KindEmpty:           "Empty",
	KindSeq:             "Seq",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// IsType reports whether k is a type node.
func (k Kind) IsType() bool {
	return k >= KindTypeBool && k <= KindTypeTuple
}

// IsStatement reports whether k may appear in statement position.
func (k Kind) IsStatement() bool {
	return k >= KindBlock && k <= KindEmpty
}

// IsExpression reports whether k is an expression node.
func (k Kind) IsExpression() bool {
	return k >= KindPath && k <= KindSelectCase
}
