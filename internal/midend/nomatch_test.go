package midend_test

import (
	"strings"
	"testing"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/midend"
	"kestrel/internal/testkit"
)

func TestHandleNoMatchAddsDefault(t *testing.T) {
	tree, root := testkit.FilterProgram()
	u := newUnit(t, tree, root)
	if err := run(u, midend.TypeCheck(), midend.HandleNoMatch(), midend.TypeCheck()); err != nil {
		t.Fatalf("run: %v", err)
	}
	text := ir.String(u.Tree, u.Root)
	for _, frag := range []string{
		"default: noMatch_0;",
		"state noMatch_0 {\n        verify(false, error.NoMatch);\n        transition reject;\n    }",
		"error { NoError, PacketTooShort, NoMatch }",
	} {
		if !strings.Contains(text, frag) {
			t.Errorf("output lacks %q:\n%s", frag, text)
		}
	}
	if n := testkit.CountKind(u.Tree, u.Root, ir.KindDefaultExpr); n != 1 {
		t.Errorf("%d default cases, want 1", n)
	}
}

func TestHandleNoMatchIdempotent(t *testing.T) {
	tree, root := testkit.FilterProgram()
	u := newUnit(t, tree, root)
	if err := run(u, midend.HandleNoMatch()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := u.Root
	if err := run(u, midend.HandleNoMatch()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if u.Root != first {
		t.Errorf("second run changed the program")
	}
	if n := testkit.CountKind(u.Tree, u.Root, ir.KindParserState); n != 3 {
		t.Errorf("%d parser states, want 3", n)
	}
}

func TestHandleNoMatchDeclaresError(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	root := b.Program(b.Parser("p", nil, nil, []ir.NodeID{
		b.State("start", b.Select([]ir.NodeID{b.Bool(true)}, b.SelectCase(b.Bool(true), "accept"))),
	}))
	u := newUnit(t, tree, root)
	if err := run(u, midend.HandleNoMatch()); err != nil {
		t.Fatalf("run: %v", err)
	}
	decls := ir.Get[ir.Program](u.Tree, u.Root).Decls
	ed, ok := ir.As[ir.ErrorDecl](u.Tree, decls[0])
	if !ok || len(ed.Members) != 1 || ed.Members[0] != midend.NoMatchError {
		t.Fatalf("first declaration is %s, want error { NoMatch }", u.Tree.Kind(decls[0]))
	}
	items := u.Bag.Items()
	if len(items) != 1 || items[0].Code != diag.MidNoErrorDecl || items[0].Severity != diag.SevWarning {
		t.Errorf("diagnostics = %v", items)
	}
}
