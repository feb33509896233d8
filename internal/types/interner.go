package types

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for common primitive types.
type Builtins struct {
	Void   TypeID
	Bool   TypeID
	Int    TypeID
	Error  TypeID
	String TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
type Interner struct {
	types    []Type
	index    map[typeKey]TypeID
	tuples   []TupleInfo
	tupleIdx map[string]TypeID
	nominals []NominalInfo
	nomIdx   map[nominalKey]TypeID
	builtins Builtins
}

type typeKey struct {
	Kind    Kind
	Width   uint32
	Signed  bool
	Payload uint32
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index:    make(map[typeKey]TypeID, 64),
		tupleIdx: make(map[string]TypeID),
		nomIdx:   make(map[nominalKey]TypeID),
	}
	in.tuples = append(in.tuples, TupleInfo{})       // reserve slot 0
	in.nominals = append(in.nominals, NominalInfo{}) // reserve slot 0
	in.internRaw(Type{Kind: KindInvalid})
	in.builtins.Void = in.Intern(Type{Kind: KindVoid})
	in.builtins.Bool = in.Intern(Type{Kind: KindBool})
	in.builtins.Int = in.Intern(Type{Kind: KindInt})
	in.builtins.Error = in.Intern(Type{Kind: KindError})
	in.builtins.String = in.Intern(Type{Kind: KindString})
	return in
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	if id, ok := in.index[typeKey(t)]; ok {
		return id
	}
	return in.internRaw(t)
}

// Bits returns the TypeID of bit<width> or int<width>.
func (in *Interner) Bits(width int, signed bool) TypeID {
	w, err := safecast.Conv[uint32](width)
	if err != nil {
		panic(fmt.Errorf("bit width overflow: %w", err))
	}
	return in.Intern(MakeBits(w, signed))
}

func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[typeKey(t)] = id
	return id
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// Len returns the number of interned descriptors, the invalid slot included.
func (in *Interner) Len() int {
	return len(in.types)
}

// String renders id in P4 surface syntax.
func (in *Interner) String(id TypeID) string {
	tt, ok := in.Lookup(id)
	if !ok {
		return "<invalid>"
	}
	switch tt.Kind {
	case KindBits:
		if tt.Signed {
			return "int<" + strconv.FormatUint(uint64(tt.Width), 10) + ">"
		}
		return "bit<" + strconv.FormatUint(uint64(tt.Width), 10) + ">"
	case KindTuple:
		info, _ := in.TupleInfo(id)
		parts := make([]string, 0, len(info.Elems))
		for _, el := range info.Elems {
			parts = append(parts, in.String(el))
		}
		return "tuple<" + strings.Join(parts, ", ") + ">"
	default:
		if tt.Kind.IsNominal() {
			if info, ok := in.NominalInfo(id); ok {
				return info.Name
			}
		}
		return tt.Kind.String()
	}
}
