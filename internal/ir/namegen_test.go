package ir_test

import (
	"testing"

	"kestrel/internal/ir"
)

func TestNameGenSkipsReserved(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	root := b.Program(
		b.Struct("tuple_0", b.Field("f", b.Bits(8))),
		b.Control("c", nil, nil, b.Block(b.Assign(b.Dot("x.tuple_1"), b.Int(0)))),
	)
	g := ir.NewNameGen()
	if err := g.ReserveTree(tree, root); err != nil {
		t.Fatalf("ReserveTree: %v", err)
	}
	if got := g.NewName("tuple"); got != "tuple_2" {
		t.Errorf("first name = %q, want tuple_2", got)
	}
	if got := g.NewName("tuple"); got != "tuple_3" {
		t.Errorf("second name = %q, want tuple_3", got)
	}
	if got := g.NewName("hit"); got != "hit_0" {
		t.Errorf("other base = %q, want hit_0", got)
	}
}

func TestNameGenNormalizes(t *testing.T) {
	g := ir.NewNameGen()
	// U+00E9 and e + U+0301 are the same name after NFC.
	g.Reserve("caf\u00e9_0")
	if got := g.NewName("cafe\u0301"); got != "caf\u00e9_1" {
		t.Errorf("NewName = %q, want caf\u00e9_1", got)
	}
	if !g.Used("cafe\u0301_1") {
		t.Errorf("decomposed spelling not reported as used")
	}
}
