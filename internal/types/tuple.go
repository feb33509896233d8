package types

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// TupleInfo stores the element types for a tuple type.
type TupleInfo struct {
	Elems []TypeID
}

// Tuple returns the canonical TypeID for a tuple of the given elements.
// Structurally equal element lists always yield the same TypeID.
func (in *Interner) Tuple(elems []TypeID) TypeID {
	key := tupleKey(elems)
	if id, ok := in.tupleIdx[key]; ok {
		return id
	}
	in.tuples = append(in.tuples, TupleInfo{Elems: append([]TypeID(nil), elems...)})
	slot, err := safecast.Conv[uint32](len(in.tuples) - 1)
	if err != nil {
		panic(fmt.Errorf("tuple info overflow: %w", err))
	}
	id := in.internRaw(Type{Kind: KindTuple, Payload: slot})
	in.tupleIdx[key] = id
	return id
}

// TupleInfo returns the element types for a tuple TypeID.
func (in *Interner) TupleInfo(id TypeID) (*TupleInfo, bool) {
	tt, ok := in.Lookup(id)
	if !ok || tt.Kind != KindTuple {
		return nil, false
	}
	if tt.Payload == 0 || int(tt.Payload) >= len(in.tuples) {
		return nil, false
	}
	return &in.tuples[tt.Payload], true
}

func tupleKey(elems []TypeID) string {
	var b strings.Builder
	for i, el := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(el), 10))
	}
	return b.String()
}
