package midend_test

import (
	"strconv"
	"testing"

	"pgregory.net/rapid"

	"kestrel/internal/ir"
	"kestrel/internal/midend"
	"kestrel/internal/testkit"
	"kestrel/internal/types"
)

func drawType(t *rapid.T, b *ir.Builder, depth int) ir.NodeID {
	hi := 3
	if depth >= 3 {
		hi = 1
	}
	switch rapid.IntRange(0, hi).Draw(t, "kind") {
	case 0:
		return b.Bits(rapid.SampledFrom([]int{1, 8, 16, 32}).Draw(t, "width"))
	case 1:
		return b.BoolType()
	default:
		n := rapid.IntRange(1, 3).Draw(t, "arity")
		elems := make([]ir.NodeID, n)
		for i := range elems {
			elems[i] = drawType(t, b, depth+1)
		}
		return b.Tuple(elems...)
	}
}

func drawProgram(t *rapid.T) (*ir.Tree, ir.NodeID) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	var decls []ir.NodeID
	for i := range rapid.IntRange(1, 4).Draw(t, "structs") {
		fields := make([]ir.NodeID, rapid.IntRange(1, 3).Draw(t, "fields"))
		for j := range fields {
			fields[j] = b.Field("f"+strconv.Itoa(j), drawType(t, b, 0))
		}
		decls = append(decls, b.Struct("S"+strconv.Itoa(i), fields...))
	}
	locals := []ir.NodeID{b.Var("v", drawType(t, b, 0), ir.NoNodeID)}
	decls = append(decls, b.Control("c", nil, locals, b.Block()))
	return tree, b.Program(decls...)
}

func TestEliminateTuplesProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tree, root := drawProgram(t)
		u := newUnit(t, tree, root)

		if err := run(u, midend.TypeCheck()); err != nil {
			t.Fatalf("TypeCheck: %v", err)
		}
		shapes := make(map[types.TypeID]struct{})
		_ = ir.NewInspector("shapes").Pre(ir.KindTypeTuple, func(_ *ir.Cursor, id ir.NodeID) (bool, error) {
			shapes[u.TypeMap.Type(id)] = struct{}{}
			return true, nil
		}).Apply(u.Tree, u.Root)

		if err := run(u, midend.EliminateTuples(), midend.TypeCheck()); err != nil {
			t.Fatalf("EliminateTuples: %v", err)
		}
		if n := testkit.CountKind(u.Tree, u.Root, ir.KindTypeTuple); n != 0 {
			t.Fatalf("%d tuple types left", n)
		}
		if got := len(generated(u)); got != len(shapes) {
			t.Fatalf("%d structs generated for %d shapes", got, len(shapes))
		}
		if err := testkit.CheckDeclaredBeforeUse(u.Tree, u.Root); err != nil {
			t.Fatal(err)
		}
		if err := testkit.CheckTreeInvariants(u.Tree, u.Root); err != nil {
			t.Fatal(err)
		}

		again := u.Root
		if err := run(u, midend.EliminateTuples()); err != nil {
			t.Fatalf("second run: %v", err)
		}
		if u.Root != again {
			t.Fatalf("second run changed the program")
		}
	})
}
