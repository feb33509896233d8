package ebpf_test

import (
	"context"
	"strings"
	"testing"

	"kestrel/internal/backend/ebpf"
	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/midend"
	"kestrel/internal/testkit"
)

// lower runs the mid end over a program.
func lower(t *testing.T, tree *ir.Tree, root ir.NodeID) *midend.Unit {
	t.Helper()
	u, err := midend.NewUnit("prog.kir", tree, root, diag.NewBag(50))
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	if err := midend.MidEnd(midend.Options{}).Run(context.Background(), u); err != nil {
		t.Fatalf("midend: %v", err)
	}
	return u
}

func generate(u *midend.Unit) (string, error) {
	return ebpf.Generate(context.Background(), u, ebpf.KernelTarget{})
}

// pipeline builds a program with one control `c(inout Headers_t headers,
// out bool pass)` whose locals and body come from fill.
func pipeline(fill func(b *ir.Builder) (locals []ir.NodeID, body ir.NodeID)) (*ir.Tree, ir.NodeID) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	decls := testkit.Model(b)
	decls = append(decls, testkit.Headers(b)...)
	locals, body := fill(b)
	decls = append(decls, b.Control("c",
		[]ir.NodeID{
			b.Param(ir.DirInOut, "headers", b.TypeName("Headers_t")),
			b.Param(ir.DirOut, "pass", b.BoolType()),
		},
		locals, body))
	return tree, b.Program(decls...)
}

// deparser builds a program with one control `dep(in Headers_t headers,
// in Nib_h nib, packet_out pkt)` whose body comes from fill. Nib_h is a
// header holding a single bit<4> field.
func deparser(fill func(b *ir.Builder) ir.NodeID) (*ir.Tree, ir.NodeID) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	decls := append(append(testkit.Model(b), testkit.Headers(b)...),
		b.Header("Nib_h", b.Field("v", b.Bits(4))),
		b.Control("dep",
			[]ir.NodeID{
				b.Param(ir.DirIn, "headers", b.TypeName("Headers_t")),
				b.Param(ir.DirIn, "nib", b.TypeName("Nib_h")),
				b.Param(ir.DirNone, "pkt", b.TypeName("packet_out")),
			},
			nil, fill(b)))
	return tree, b.Program(decls...)
}

// enclosedBy reports whether the first occurrence of target lies inside the
// braces opened by some occurrence of open.
func enclosedBy(out, open, target string) bool {
	end := strings.Index(out, target)
	if end < 0 {
		return false
	}
	for from := 0; ; {
		i := strings.Index(out[from:], open)
		if i < 0 {
			return false
		}
		start := from + i + len(open)
		if start > end {
			return false
		}
		depth := 0
		closed := false
		for _, r := range out[start:end] {
			switch r {
			case '{':
				depth++
			case '}':
				depth--
			}
			if depth < 0 {
				closed = true
				break
			}
		}
		if !closed {
			return true
		}
		from = start
	}
}

func codes(u *midend.Unit) []diag.Code {
	var out []diag.Code
	for _, d := range u.Bag.Items() {
		out = append(out, d.Code)
	}
	return out
}

func hasCode(u *midend.Unit, code diag.Code) bool {
	for _, c := range codes(u) {
		if c == code {
			return true
		}
	}
	return false
}

func mustContain(t *testing.T, out string, frags ...string) {
	t.Helper()
	for _, f := range frags {
		if !strings.Contains(out, f) {
			t.Errorf("output lacks %q", f)
		}
	}
	if t.Failed() {
		t.Logf("output:\n%s", out)
	}
}
