package testkit

import (
	"fmt"

	"kestrel/internal/ir"
)

// CheckTreeInvariants runs structural checks on the tree reachable from root:
// 1) every reachable child ID addresses an arena node with a valid kind
// 2) no transient splice node survived a transform
func CheckTreeInvariants(t *ir.Tree, root ir.NodeID) error {
	if t == nil {
		return fmt.Errorf("nil tree")
	}
	if t.Node(root) == nil {
		return fmt.Errorf("root %d not in arena", root)
	}
	var bad error
	err := ir.NewInspector("invariants").
		VisitDagOnce(true).
		Fallback(func(c *ir.Cursor, id ir.NodeID) (bool, error) {
			if t.Kind(id) == ir.KindSeq && bad == nil {
				bad = fmt.Errorf("splice node %d reachable under %d", id, c.Parent())
			}
			for _, ch := range t.Children(id) {
				if t.Node(ch) == nil && bad == nil {
					bad = fmt.Errorf("node %d has dangling child %d", id, ch)
				}
			}
			return bad == nil, nil
		}).
		Apply(t, root)
	if err != nil {
		return err
	}
	return bad
}

// CountKind returns how many reachable nodes have kind k. Shared nodes are
// counted once per parent.
func CountKind(t *ir.Tree, root ir.NodeID, k ir.Kind) int {
	n := 0
	_ = ir.NewInspector("count").
		Pre(k, func(*ir.Cursor, ir.NodeID) (bool, error) {
			n++
			return true, nil
		}).
		Apply(t, root)
	return n
}

// CheckDeclaredBeforeUse verifies that every TypeName naming a top-level
// type declaration appears after that declaration in program order.
// Names with no top-level declaration (type variables, built-ins) are skipped.
func CheckDeclaredBeforeUse(t *ir.Tree, root ir.NodeID) error {
	prog, ok := ir.As[ir.Program](t, root)
	if !ok {
		return fmt.Errorf("root is %s, want Program", t.Kind(root))
	}
	position := make(map[string]int)
	for i, d := range prog.Decls {
		switch t.Kind(d) {
		case ir.KindStructDecl, ir.KindHeaderDecl, ir.KindTypedef, ir.KindExternDecl:
			if _, dup := position[t.Name(d)]; !dup {
				position[t.Name(d)] = i
			}
		}
	}
	for i, d := range prog.Decls {
		var bad error
		_ = ir.NewInspector("uses").
			Pre(ir.KindTypeName, func(_ *ir.Cursor, id ir.NodeID) (bool, error) {
				name := t.Name(id)
				if at, ok := position[name]; ok && at > i && bad == nil {
					bad = fmt.Errorf("%s used by declaration %d (%s) before its declaration %d", name, i, t.Name(d), at)
				}
				return true, nil
			}).
			Apply(t, d)
		if bad != nil {
			return bad
		}
	}
	return nil
}
