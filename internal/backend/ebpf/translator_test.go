package ebpf_test

import (
	"errors"
	"strings"
	"testing"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/testkit"
)

func TestExitDropsDeadCode(t *testing.T) {
	tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		return nil, b.Block(
			b.Assign(b.Path("pass"), b.Bool(true)),
			b.Exit(),
			b.Assign(b.Dot("headers.ipv4.ttl"), b.Uint(1, 8)))
	})
	out, err := generate(lower(t, tree, root))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out, "pass = 1;", "exit_0 = 1;")
	if strings.Contains(out, "ttl = 1;") {
		t.Errorf("statement after exit was emitted:\n%s", out)
	}
}

func TestReturnGuardsRest(t *testing.T) {
	tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		return nil, b.Block(
			b.If(b.Path("pass"), b.Block(b.Return(ir.NoNodeID)), ir.NoNodeID),
			b.Assign(b.Path("pass"), b.Bool(false)))
	})
	out, err := generate(lower(t, tree, root))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out,
		"u8 ret_0 = 0;",
		"if (pass) {",
		"ret_0 = 1;",
		"if (!(ret_0)) {",
		"pass = 0;",
	)
}

func TestIfElseBothExit(t *testing.T) {
	tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		return nil, b.Block(
			b.If(b.Path("pass"), b.Block(b.Exit()), b.Block(b.Exit())),
			b.Assign(b.Dot("headers.ipv4.ttl"), b.Uint(1, 8)))
	})
	out, err := generate(lower(t, tree, root))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out, "} else {")
	if strings.Contains(out, "ttl = 1;") {
		t.Errorf("statement after an exiting if/else was emitted")
	}
}

func TestSwitchOnValue(t *testing.T) {
	tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		return nil, b.Block(b.Switch(b.Dot("headers.ipv4.protocol"),
			b.Case(b.Uint(6, 8), b.Block(b.Assign(b.Path("pass"), b.Bool(true)))),
			b.Case(b.Uint(17, 8), ir.NoNodeID),
			b.Case(b.Default(), b.Block(b.Assign(b.Path("pass"), b.Bool(false))))))
	})
	out, err := generate(lower(t, tree, root))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out,
		"switch ((*headers).ipv4.protocol) {",
		"case 6: {",
		"case 17:\n",
		"default: {",
	)
	if strings.Contains(out, "default: break;") {
		t.Errorf("default synthesized next to an explicit one")
	}
}

func TestHitMiss(t *testing.T) {
	tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		table := b.Node(ir.Table{
			Name:    "t",
			Keys:    []ir.NodeID{b.Key(b.Dot("headers.ipv4.dstAddr"), "exact")},
			Actions: []ir.NodeID{b.Path("NoAction")},
			Impl:    b.New(b.TypeName("hash_table"), b.Uint(8, 32)),
		})
		return []ir.NodeID{table}, b.Block(
			b.If(b.Member(b.Call(b.Dot("t.apply")), "miss"),
				b.Block(b.Assign(b.Path("pass"), b.Bool(false))), ir.NoNodeID))
	})
	out, err := generate(lower(t, tree, root))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out, "u8 hit_0 = 0;", "hit_0 = 1;", "if (!hit_0) {")
}

func TestListAssignment(t *testing.T) {
	tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		return nil, b.Block(b.Assign(b.Dot("headers.ethernet"),
			b.List(b.Uint(1, 48), b.Uint(2, 48), b.Uint(0x800, 16))))
	})
	out, err := generate(lower(t, tree, root))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out,
		"(*headers).ethernet.dstAddr = 1ULL;",
		"(*headers).ethernet.srcAddr = 2ULL;",
		"(*headers).ethernet.etherType = 2048;",
	)
}

func TestEmitNotHeader(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	root := b.Program(append(append(testkit.Model(b), testkit.Headers(b)...),
		b.Control("dep",
			[]ir.NodeID{
				b.Param(ir.DirIn, "headers", b.TypeName("Headers_t")),
				b.Param(ir.DirNone, "pkt", b.TypeName("packet_out")),
			},
			nil,
			b.Block(b.Do(b.Call(b.Dot("pkt.emit"), b.Path("headers"))))))...)
	u := lower(t, tree, root)
	if _, err := generate(u); !errors.Is(err, diag.ErrProgram) {
		t.Fatalf("Generate error = %v, want a program error", err)
	}
	if !hasCode(u, diag.BackendEmitNotHeader) {
		t.Errorf("diagnostics = %v", codes(u))
	}
}

func TestFieldTooWide(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	decls := append(append(testkit.Model(b), testkit.Headers(b)...),
		b.Header("Wide_h", b.Field("addr", b.Bits(128))),
		b.Control("dep",
			[]ir.NodeID{
				b.Param(ir.DirIn, "w", b.TypeName("Wide_h")),
				b.Param(ir.DirNone, "pkt", b.TypeName("packet_out")),
			},
			nil,
			b.Block(b.Do(b.Call(b.Dot("pkt.emit"), b.Path("w"))))))
	u := lower(t, tree, b.Program(decls...))
	if _, err := generate(u); !errors.Is(err, diag.ErrProgram) {
		t.Fatalf("Generate error = %v, want a program error", err)
	}
	if !hasCode(u, diag.BackendFieldTooWide) {
		t.Errorf("diagnostics = %v", codes(u))
	}
}

func TestSeqIsInternal(t *testing.T) {
	tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		return nil, b.Block()
	})
	u := lower(t, tree, root)
	decls := ir.Get[ir.Program](u.Tree, u.Root).Decls
	ctl := ir.Get[ir.Control](u.Tree, decls[len(decls)-1])
	seq := u.Tree.Add(u.Tree.Span(ctl.Body), ir.Seq{})
	u.Tree.Node(ctl.Body).Data = ir.Block{Stmts: []ir.NodeID{seq}}
	if _, err := generate(u); !ir.IsInternal(err) {
		t.Errorf("Generate with a Seq = %v, want an internal error", err)
	}
}

func TestUnloweredKindIsInternal(t *testing.T) {
	tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		return nil, b.Block()
	})
	u := lower(t, tree, root)
	decls := ir.Get[ir.Program](u.Tree, u.Root).Decls
	ctl := ir.Get[ir.Control](u.Tree, decls[len(decls)-1])
	stray := u.Tree.Add(u.Tree.Span(ctl.Body), ir.TypeBool{})
	u.Tree.Node(ctl.Body).Data = ir.Block{Stmts: []ir.NodeID{stray}}
	_, err := generate(u)
	if !ir.IsInternal(err) || !strings.Contains(err.Error(), "no eBPF lowering") {
		t.Errorf("Generate with a type node as statement = %v, want an internal error", err)
	}
}

func emitStmt(b *ir.Builder, ref string) ir.NodeID {
	return b.Do(b.Call(b.Dot("pkt.emit"), b.Dot(ref)))
}

func ttlIs(b *ir.Builder, v uint64) ir.NodeID {
	return b.Bin(ir.OpEq, b.Dot("headers.ipv4.ttl"), b.Uint(v, 8))
}

func TestEmitAlignmentAfterBranches(t *testing.T) {
	for _, tc := range []struct {
		name string
		body func(b *ir.Builder) ir.NodeID
		// want is a fragment of the output, or empty when an alignment
		// diagnostic is expected instead.
		want   string
		reject string
	}{
		{name: "emit in one branch", body: func(b *ir.Builder) ir.NodeID {
			return b.Block(
				b.If(ttlIs(b, 0), b.Block(emitStmt(b, "headers.ipv4.version")), ir.NoNodeID),
				emitStmt(b, "headers.ipv4.ihl"))
		}},
		{name: "emit in one case", body: func(b *ir.Builder) ir.NodeID {
			return b.Block(
				b.Switch(b.Dot("headers.ipv4.protocol"),
					b.Case(b.Uint(6, 8), b.Block(emitStmt(b, "headers.ipv4.version")))),
				emitStmt(b, "headers.ipv4.ihl"))
		}},
		{name: "header not byte sized", body: func(b *ir.Builder) ir.NodeID {
			return b.Block(
				b.Do(b.Call(b.Dot("pkt.emit"), b.Path("nib"))),
				emitStmt(b, "headers.ipv4.ihl"))
		}},
		{name: "both branches emit a nibble", body: func(b *ir.Builder) ir.NodeID {
			return b.Block(
				b.If(ttlIs(b, 0),
					b.Block(emitStmt(b, "headers.ipv4.version")),
					b.Block(emitStmt(b, "headers.ipv4.ihl"))),
				emitStmt(b, "headers.ipv4.diffserv"))
		}, want: "& 0xf0;"},
		{name: "emitting branch exits", body: func(b *ir.Builder) ir.NodeID {
			return b.Block(
				b.If(ttlIs(b, 0),
					b.Block(emitStmt(b, "headers.ipv4.version"), b.Exit()), ir.NoNodeID),
				emitStmt(b, "headers.ipv4.diffserv"))
		}, want: "write_byte", reject: "& 0xf0;"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tree, root := deparser(tc.body)
			u := lower(t, tree, root)
			out, err := generate(u)
			if tc.want == "" {
				if !errors.Is(err, diag.ErrProgram) {
					t.Fatalf("Generate error = %v, want a program error", err)
				}
				if !hasCode(u, diag.BackendEmitAlignment) {
					t.Errorf("diagnostics = %v", codes(u))
				}
				return
			}
			if err != nil {
				t.Fatalf("Generate: %v\n%v", err, u.Bag.Items())
			}
			mustContain(t, out, tc.want)
			if tc.reject != "" && strings.Contains(out, tc.reject) {
				t.Errorf("output has %q:\n%s", tc.reject, out)
			}
		})
	}
}

func TestNestedExitGuardsEveryEnclosingBlock(t *testing.T) {
	tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		return nil, b.Block(
			b.If(b.Path("pass"), b.Block(
				b.If(ttlIs(b, 1), b.Block(b.Exit()), ir.NoNodeID),
				b.Assign(b.Dot("headers.ipv4.ttl"), b.Uint(2, 8))), ir.NoNodeID),
			b.Switch(b.Dot("headers.ipv4.protocol"),
				b.Case(b.Uint(6, 8), b.Block(b.Exit()))),
			b.Assign(b.Dot("headers.ipv4.ttl"), b.Uint(3, 8)))
	})
	out, err := generate(lower(t, tree, root))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	const guard = "if (!(exit_0)) {"
	for _, frag := range []string{"ttl = 2;", "switch ((*headers).ipv4.protocol)", "ttl = 3;"} {
		if !enclosedBy(out, guard, frag) {
			t.Errorf("%q is not guarded by the exit flag:\n%s", frag, out)
		}
	}
	if !enclosedBy(out, "if (pass) {", "ttl = 2;") {
		t.Errorf("guarded statement left its enclosing if:\n%s", out)
	}
	if n := strings.Count(out, guard); n != 3 {
		t.Errorf("%d exit guards, want 3:\n%s", n, out)
	}
}
