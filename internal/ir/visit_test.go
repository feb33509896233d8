package ir_test

import (
	"errors"
	"strings"
	"testing"

	"kestrel/internal/ir"
)

func smallControl(b *ir.Builder) ir.NodeID {
	body := b.Block(
		b.Assign(b.Dot("hdr.a"), b.Uint(1, 8)),
		b.If(b.Dot("meta.hit"), b.Block(b.Exit()), ir.NoNodeID),
	)
	return b.Program(b.Control("c", nil, nil, body))
}

func TestInspectorOrder(t *testing.T) {
	tree := ir.NewTree()
	root := smallControl(ir.NewBuilder(tree))

	var trace []string
	in := ir.NewInspector("order").
		Fallback(func(c *ir.Cursor, id ir.NodeID) (bool, error) {
			trace = append(trace, "+"+tree.Kind(id).String())
			return true, nil
		}).
		Post(ir.KindIf, func(c *ir.Cursor, id ir.NodeID) error {
			trace = append(trace, "-If")
			return nil
		})
	if err := in.Apply(tree, root); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got := strings.Join(trace, " ")
	want := "+Program +Control +Block +Assign +Member +Path +Constant +If +Member +Path +Block +Exit -If"
	if got != want {
		t.Errorf("order:\n got %s\nwant %s", got, want)
	}
}

func TestInspectorPrune(t *testing.T) {
	tree := ir.NewTree()
	root := smallControl(ir.NewBuilder(tree))

	exits := 0
	in := ir.NewInspector("prune").
		Pre(ir.KindIf, func(*ir.Cursor, ir.NodeID) (bool, error) { return false, nil }).
		Pre(ir.KindExit, func(*ir.Cursor, ir.NodeID) (bool, error) {
			exits++
			return true, nil
		})
	if err := in.Apply(tree, root); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if exits != 0 {
		t.Errorf("pruned subtree was visited %d times", exits)
	}
}

func TestInspectorParent(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	exit := b.Exit()
	blk := b.Block(exit)
	root := b.Program(b.Control("c", nil, nil, blk))

	var parent ir.NodeID
	var depth int
	in := ir.NewInspector("parent").Pre(ir.KindExit, func(c *ir.Cursor, id ir.NodeID) (bool, error) {
		parent, depth = c.Parent(), c.Depth()
		return true, nil
	})
	if err := in.Apply(tree, root); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if parent != blk {
		t.Errorf("parent = %d, want %d", parent, blk)
	}
	if depth != 3 {
		t.Errorf("depth = %d, want 3", depth)
	}
}

func TestInspectorErrorStops(t *testing.T) {
	tree := ir.NewTree()
	root := smallControl(ir.NewBuilder(tree))
	stop := errors.New("stop")

	visited := 0
	in := ir.NewInspector("stop").Fallback(func(c *ir.Cursor, id ir.NodeID) (bool, error) {
		visited++
		if tree.Kind(id) == ir.KindAssign {
			return false, stop
		}
		return true, nil
	})
	if err := in.Apply(tree, root); !errors.Is(err, stop) {
		t.Fatalf("Apply error = %v, want stop", err)
	}
	if visited != 4 {
		t.Errorf("visited %d nodes before the error, want 4", visited)
	}
}

func TestInspectorDagOnce(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	shared := b.Exit()
	root := b.Block(shared, b.Block(shared))

	count := func(once bool) int {
		n := 0
		in := ir.NewInspector("dag").VisitDagOnce(once).Pre(ir.KindExit, func(*ir.Cursor, ir.NodeID) (bool, error) {
			n++
			return true, nil
		})
		if err := in.Apply(tree, root); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		return n
	}
	if got := count(false); got != 2 {
		t.Errorf("tree walk visited shared node %d times, want 2", got)
	}
	if got := count(true); got != 1 {
		t.Errorf("dag walk visited shared node %d times, want 1", got)
	}
}

func TestInspectorUnknownNode(t *testing.T) {
	tree := ir.NewTree()
	err := ir.NewInspector("bad").Apply(tree, ir.NodeID(42))
	if !ir.IsInternal(err) {
		t.Fatalf("error = %v, want internal error", err)
	}
}
