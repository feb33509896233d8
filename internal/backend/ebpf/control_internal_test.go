package ebpf

import (
	"testing"

	"kestrel/internal/ir"
)

func TestCountReturnsReportsWalkErrors(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	body := b.Block(b.Return(ir.NoNodeID), b.Return(ir.NoNodeID))
	n, err := countReturns(tree, body)
	if err != nil || n != 2 {
		t.Fatalf("countReturns = %d, %v; want 2, nil", n, err)
	}

	broken := b.Block(b.Return(ir.NoNodeID), ir.NodeID(1<<20))
	if _, err := countReturns(tree, broken); !ir.IsInternal(err) {
		t.Errorf("countReturns over a dangling statement = %v, want an internal error", err)
	}
}
