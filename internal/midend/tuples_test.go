package midend_test

import (
	"context"
	"strings"
	"testing"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/midend"
	"kestrel/internal/testkit"
	"kestrel/internal/trace"
)

type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

func newUnit(t fataler, tree *ir.Tree, root ir.NodeID) *midend.Unit {
	t.Helper()
	u, err := midend.NewUnit("prog.kir", tree, root, diag.NewBag(50))
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	return u
}

func run(u *midend.Unit, passes ...midend.Pass) error {
	return midend.NewPassManager("test", passes...).Run(context.Background(), u)
}

func declNames(u *midend.Unit) []string {
	var names []string
	for _, d := range ir.Get[ir.Program](u.Tree, u.Root).Decls {
		names = append(names, u.Tree.Name(d))
	}
	return names
}

func generated(u *midend.Unit) []string {
	var out []string
	for _, d := range ir.Get[ir.Program](u.Tree, u.Root).Decls {
		if s, ok := ir.As[ir.StructDecl](u.Tree, d); ok && strings.HasPrefix(s.Name, "tuple_") {
			out = append(out, s.Name)
		}
	}
	return out
}

func TestEliminateTuplesOneStructPerShape(t *testing.T) {
	tree, root := testkit.TupleProgram()
	u := newUnit(t, tree, root)
	if err := run(u, midend.EliminateTuples(), midend.TypeCheck()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := testkit.CountKind(u.Tree, u.Root, ir.KindTypeTuple); n != 0 {
		t.Errorf("%d tuple types left", n)
	}
	if got := strings.Join(generated(u), ","); got != "tuple_0,tuple_1,tuple_2" {
		t.Errorf("generated structs = %s", got)
	}
	text := ir.String(u.Tree, u.Root)
	for _, frag := range []string{
		"struct tuple_0 {\n    bit<32> field_0;\n    bool field_1;\n}\n",
		"struct tuple_1 {\n    tuple_0 field_0;\n    bit<8> field_1;\n}\n",
		"struct S {\n    tuple_0 f;\n}\n",
		"struct T {\n    tuple_0 g;\n    tuple_1 n;\n}\n",
		"    tuple_2 v;\n",
	} {
		if !strings.Contains(text, frag) {
			t.Errorf("output lacks %q", frag)
		}
	}
	if err := testkit.CheckTreeInvariants(u.Tree, u.Root); err != nil {
		t.Error(err)
	}
}

func TestEliminateTuplesInsertsBeforeFirstUser(t *testing.T) {
	tree, root := testkit.TupleProgram()
	u := newUnit(t, tree, root)
	if err := run(u, midend.EliminateTuples()); err != nil {
		t.Fatalf("run: %v", err)
	}
	names := declNames(u)
	index := func(name string) int {
		for i, n := range names {
			if n == name {
				return i
			}
		}
		t.Fatalf("%s not declared in %v", name, names)
		return -1
	}
	for gen, user := range map[string]string{"tuple_0": "S", "tuple_1": "T", "tuple_2": "c"} {
		if index(gen)+1 != index(user) {
			t.Errorf("%s declared at %d, want right before %s at %d", gen, index(gen), user, index(user))
		}
	}
	if err := testkit.CheckDeclaredBeforeUse(u.Tree, u.Root); err != nil {
		t.Error(err)
	}
}

func TestEliminateTuplesIdempotent(t *testing.T) {
	tree, root := testkit.TupleProgram()
	u := newUnit(t, tree, root)
	if err := run(u, midend.EliminateTuples()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, before := u.Root, ir.String(u.Tree, u.Root)
	size := u.Tree.Len()
	if err := run(u, midend.EliminateTuples()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if u.Root != first {
		t.Errorf("second run replaced the root")
	}
	if u.Tree.Len() != size {
		t.Errorf("second run added %d nodes", u.Tree.Len()-size)
	}
	if after := ir.String(u.Tree, u.Root); after != before {
		t.Errorf("second run changed the program:\n%s", after)
	}
}

func TestEliminateTuplesAvoidsTakenNames(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	root := b.Program(
		b.Struct("tuple_0", b.Field("x", b.Bits(8))),
		b.Struct("S", b.Field("f", b.Tuple(b.Bits(8), b.TypeName("tuple_0")))),
	)
	u := newUnit(t, tree, root)
	if err := run(u, midend.EliminateTuples(), midend.TypeCheck()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.Join(generated(u), ","); got != "tuple_0,tuple_1" {
		t.Errorf("structs = %s", got)
	}
	if !strings.Contains(ir.String(u.Tree, u.Root), "struct tuple_1 {\n    bit<8> field_0;\n    tuple_0 field_1;\n}") {
		t.Errorf("generated struct does not reference the user struct:\n%s", ir.String(u.Tree, u.Root))
	}
}

func TestReplaceTuplesNeedsTypeMap(t *testing.T) {
	tree, root := testkit.TupleProgram()
	u := newUnit(t, tree, root)
	err := run(u, midend.DoReplaceTuples())
	if !ir.IsInternal(err) {
		t.Fatalf("error = %v, want internal error", err)
	}
	if !strings.Contains(err.Error(), "DoReplaceTuples") {
		t.Errorf("error %q does not name the pass", err)
	}
}

func TestClearTypeMapEmptiesMap(t *testing.T) {
	tree, root := testkit.TupleProgram()
	u := newUnit(t, tree, root)
	if err := run(u, midend.EliminateTuples()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if u.TypeMap.Len() != 0 {
		t.Errorf("type map holds %d entries after EliminateTuples", u.TypeMap.Len())
	}
}

func TestReplaceTuplesTracesGeneratedCount(t *testing.T) {
	tree, root := testkit.TupleProgram()
	u := newUnit(t, tree, root)
	ring := trace.NewRingTracer(64, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), ring)
	pm := midend.NewPassManager("test", midend.EliminateTuples(), midend.EliminateTuples())
	if err := pm.Run(ctx, u); err != nil {
		t.Fatalf("run: %v", err)
	}
	var counts []string
	for _, ev := range ring.Snapshot() {
		if ev.Kind == trace.KindPoint && ev.Name == "generated structs" {
			counts = append(counts, ev.Detail)
		}
	}
	if got := strings.Join(counts, ","); got != "3,0" {
		t.Errorf("generated struct counts = %q, want \"3,0\"", got)
	}
}
