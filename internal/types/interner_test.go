package types_test

import (
	"testing"

	"kestrel/internal/types"
)

func TestInternerBuiltins(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	if b.Void == types.NoTypeID || b.Bool == types.NoTypeID {
		t.Fatalf("builtins not initialized")
	}
	boolean, _ := in.Lookup(b.Bool)
	if boolean.Kind != types.KindBool {
		t.Fatalf("expected bool kind, got %v", boolean.Kind)
	}
}

func TestBitsDeduplicated(t *testing.T) {
	in := types.NewInterner()
	if in.Bits(8, false) != in.Bits(8, false) {
		t.Fatalf("bit<8> must be interned once")
	}
	if in.Bits(8, false) == in.Bits(8, true) {
		t.Fatalf("bit<8> and int<8> must differ")
	}
}

func TestTupleStructuralIdentity(t *testing.T) {
	in := types.NewInterner()
	b := in.Builtins()
	a := in.Tuple([]types.TypeID{in.Bits(32, false), b.Bool})
	c := in.Tuple([]types.TypeID{in.Bits(32, false), b.Bool})
	if a != c {
		t.Fatalf("structurally equal tuples must share an ID")
	}
	d := in.Tuple([]types.TypeID{b.Bool, in.Bits(32, false)})
	if a == d {
		t.Fatalf("component order is part of the shape")
	}
	nested := in.Tuple([]types.TypeID{a, in.Bits(8, false)})
	if got := in.String(nested); got != "tuple<tuple<bit<32>, bool>, bit<8>>" {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestNominalFields(t *testing.T) {
	in := types.NewInterner()
	h := in.Nominal(types.KindHeader, "Ethernet_h")
	if in.Nominal(types.KindHeader, "Ethernet_h") != h {
		t.Fatalf("nominal types are keyed by kind and name")
	}
	if in.Nominal(types.KindStruct, "Ethernet_h") == h {
		t.Fatalf("kind is part of the nominal key")
	}
	in.SetFields(h, []types.Field{{Name: "etherType", Type: in.Bits(16, false)}})
	ft, ok := in.FieldType(h, "etherType")
	if !ok || ft != in.Bits(16, false) {
		t.Fatalf("field lookup failed")
	}
	if _, ok := in.FieldType(h, "missing"); ok {
		t.Fatalf("unknown field must not resolve")
	}
}
