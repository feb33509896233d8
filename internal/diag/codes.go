package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Name and type problems surfaced while building the type map.
	SemaInfo           Code = 3000
	SemaUnresolvedName Code = 3001
	SemaUnknownType    Code = 3002
	SemaNoSuchField    Code = 3003
	SemaDuplicateName  Code = 3004
	SemaNotAType       Code = 3005
	SemaBadTupleArity  Code = 3006

	// Midend.
	MidInfo        Code = 4000
	MidNoErrorDecl Code = 4001

	// eBPF backend.
	BackendInfo              Code = 5000
	BackendMatchKind         Code = 5001
	BackendNoImplementation  Code = 5002
	BackendBadImplementation Code = 5003
	BackendBadSize           Code = 5004
	BackendUnsupportedType   Code = 5005
	BackendFieldTooWide      Code = 5006
	BackendEmitNotHeader     Code = 5007
	BackendUnexpectedMethod  Code = 5008
	BackendBadControlParams  Code = 5009
	BackendCounterArgs       Code = 5010
	BackendSwitchLabel       Code = 5011
	BackendEmitAlignment     Code = 5012
)

var codeNames = map[Code]string{
	UnknownCode:              "unknown",
	SemaInfo:                 "sema-info",
	SemaUnresolvedName:       "unresolved-name",
	SemaUnknownType:          "unknown-type",
	SemaNoSuchField:          "no-such-field",
	SemaDuplicateName:        "duplicate-name",
	SemaNotAType:             "not-a-type",
	SemaBadTupleArity:        "bad-tuple-arity",
	MidInfo:                  "midend-info",
	MidNoErrorDecl:           "no-error-decl",
	BackendInfo:              "backend-info",
	BackendMatchKind:         "unsupported-match-kind",
	BackendNoImplementation:  "table-without-implementation",
	BackendBadImplementation: "bad-table-implementation",
	BackendBadSize:           "bad-size",
	BackendUnsupportedType:   "unsupported-type",
	BackendFieldTooWide:      "field-too-wide",
	BackendEmitNotHeader:     "emit-not-header",
	BackendUnexpectedMethod:  "unexpected-method",
	BackendBadControlParams:  "bad-control-params",
	BackendCounterArgs:       "bad-counter-args",
	BackendSwitchLabel:       "bad-switch-label",
	BackendEmitAlignment:     "emit-alignment-unknown",
}

func (c Code) ID() string {
	return fmt.Sprintf("E%04d", uint16(c))
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return c.ID()
}
