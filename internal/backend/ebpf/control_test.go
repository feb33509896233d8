package ebpf_test

import (
	"errors"
	"testing"

	"kestrel/internal/backend/ebpf"
	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/testkit"
)

func buildFilter(t *testing.T) *ebpf.Program {
	t.Helper()
	tree, root := testkit.FilterProgram()
	u := lower(t, tree, root)
	p := ebpf.NewProgram(u, ebpf.KernelTarget{})
	if err := p.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}
	return p
}

func TestControlRegistry(t *testing.T) {
	p := buildFilter(t)
	if n := len(p.Controls()); n != 2 {
		t.Fatalf("%d controls, want 2", n)
	}
	pipe, err := p.Control("pipe")
	if err != nil {
		t.Fatalf("Control(pipe): %v", err)
	}
	tb, err := pipe.GetTable("Check_src_ip")
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	if tag := tb.ActionTag("Reject"); tag != "Check_src_ip_Reject" {
		t.Errorf("ActionTag = %s", tag)
	}
	if _, err := pipe.GetCounter("counters"); err != nil {
		t.Errorf("GetCounter: %v", err)
	}
	if len(pipe.Tables()) != 1 {
		t.Errorf("Tables = %d, want 1", len(pipe.Tables()))
	}

	if _, err := pipe.GetTable("missing"); !ir.IsInternal(err) {
		t.Errorf("GetTable(missing) = %v, want an internal error", err)
	}
	if _, err := pipe.GetCounter("Check_src_ip"); !ir.IsInternal(err) {
		t.Errorf("GetCounter of a table = %v, want an internal error", err)
	}
	dep, _ := p.Control("dep")
	if _, err := dep.GetTable("Check_src_ip"); !ir.IsInternal(err) {
		t.Errorf("table of another control found: %v", err)
	}
	if _, err := p.Control("nope"); !ir.IsInternal(err) {
		t.Errorf("Control(nope) = %v", err)
	}
}

func TestControlBuildIdempotent(t *testing.T) {
	p := buildFilter(t)
	pipe, _ := p.Control("pipe")
	if err := pipe.Build(); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if len(pipe.Tables()) != 1 {
		t.Errorf("second Build registered tables again")
	}
}

// tableProgram declares one table keyed on key with the given match kind
// and implementation, and applies it.
func tableProgram(match string, key string, impl func(b *ir.Builder) ir.NodeID) (*ir.Tree, ir.NodeID) {
	return pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		implID := ir.NoNodeID
		if impl != nil {
			implID = impl(b)
		}
		table := b.Node(ir.Table{
			Name:    "t",
			Keys:    []ir.NodeID{b.Key(b.Dot(key), match)},
			Actions: []ir.NodeID{b.Path("NoAction")},
			Default: b.Path("NoAction"),
			Impl:    implID,
		})
		return []ir.NodeID{table}, b.Block(b.Do(b.Call(b.Dot("t.apply"))))
	})
}

func TestTableDiagnostics(t *testing.T) {
	hash := func(size uint64) func(b *ir.Builder) ir.NodeID {
		return func(b *ir.Builder) ir.NodeID { return b.New(b.TypeName("hash_table"), b.Uint(size, 32)) }
	}
	for _, tc := range []struct {
		name  string
		match string
		key   string
		impl  func(b *ir.Builder) ir.NodeID
		want  diag.Code
	}{
		{"lpm", "lpm", "headers.ipv4.srcAddr", hash(16), diag.BackendMatchKind},
		{"no implementation", "exact", "headers.ipv4.srcAddr", nil, diag.BackendNoImplementation},
		{"zero size", "exact", "headers.ipv4.srcAddr", hash(0), diag.BackendBadSize},
		{"wide array key", "exact", "headers.ethernet.srcAddr", func(b *ir.Builder) ir.NodeID {
			return b.New(b.TypeName("array_table"), b.Uint(16, 32))
		}, diag.BackendBadImplementation},
		{"unknown implementation", "exact", "headers.ipv4.srcAddr", func(b *ir.Builder) ir.NodeID {
			return b.New(b.TypeName("CounterArray"), b.Uint(16, 32), b.Bool(false))
		}, diag.BackendBadImplementation},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tree, root := tableProgram(tc.match, tc.key, tc.impl)
			u := lower(t, tree, root)
			_, err := generate(u)
			if !errors.Is(err, diag.ErrProgram) {
				t.Fatalf("Generate error = %v, want a program error", err)
			}
			if !hasCode(u, tc.want) {
				t.Errorf("diagnostics = %v, want %v", codes(u), tc.want)
			}
		})
	}
}

func TestArrayTable(t *testing.T) {
	tree, root := tableProgram("exact", "headers.ipv4.protocol", func(b *ir.Builder) ir.NodeID {
		return b.New(b.TypeName("array_table"), b.Uint(256, 32))
	})
	out, err := generate(lower(t, tree, root))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out,
		".type = BPF_MAP_TYPE_ARRAY,",
		"    u8 field0;",
		"key.field0 = (*headers).ipv4.protocol;",
		"value = bpf_map_lookup_elem(&t_defaultAction_0, &ebpf_zero);",
		"case t_NoAction: {",
	)
}

func TestCounterDiagnostics(t *testing.T) {
	for _, tc := range []struct {
		name string
		args func(b *ir.Builder) []ir.NodeID
		want diag.Code
	}{
		{"zero size", func(b *ir.Builder) []ir.NodeID {
			return []ir.NodeID{b.Uint(0, 32), b.Bool(true)}
		}, diag.BackendBadSize},
		{"sparse not constant", func(b *ir.Builder) []ir.NodeID {
			return []ir.NodeID{b.Uint(4, 32), b.Not(b.Bool(true))}
		}, diag.BackendCounterArgs},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
				cnt := b.Instance("cnt", b.TypeName("CounterArray"), tc.args(b)...)
				return []ir.NodeID{cnt}, b.Block(b.Do(b.Call(b.Dot("cnt.increment"), b.Uint(1, 32))))
			})
			u := lower(t, tree, root)
			if _, err := generate(u); !errors.Is(err, diag.ErrProgram) {
				t.Fatalf("Generate error = %v, want a program error", err)
			}
			if !hasCode(u, tc.want) {
				t.Errorf("diagnostics = %v, want %v", codes(u), tc.want)
			}
		})
	}
}

func TestCounterAdd(t *testing.T) {
	tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		cnt := b.Instance("bytes", b.TypeName("CounterArray"), b.Uint(4, 32), b.Bool(false))
		return []ir.NodeID{cnt}, b.Block(
			b.Do(b.Call(b.Dot("bytes.add"), b.Uint(2, 32), b.Dot("headers.ipv4.totalLen"))))
	})
	out, err := generate(lower(t, tree, root))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out,
		".type = BPF_MAP_TYPE_ARRAY,",
		"u32 init_val_0 = (*headers).ipv4.totalLen;",
		"u32 key_0 = 2;",
		"bpf_map_update_elem(&bytes, &key_0, &init_val_0, BPF_ANY);",
	)
}

func TestTableSizeFromLocalConst(t *testing.T) {
	tree, root := pipeline(func(b *ir.Builder) ([]ir.NodeID, ir.NodeID) {
		scratch := b.Var("scratch", b.Bits(8), ir.NoNodeID)
		size := b.Const("SIZE", b.Bits(32), b.Uint(64, 32))
		table := b.Node(ir.Table{
			Name:    "t",
			Keys:    []ir.NodeID{b.Key(b.Dot("headers.ipv4.srcAddr"), "exact")},
			Actions: []ir.NodeID{b.Path("NoAction")},
			Default: b.Path("NoAction"),
			Impl:    b.New(b.TypeName("hash_table"), b.Path("SIZE")),
		})
		return []ir.NodeID{scratch, size, table}, b.Block(b.Do(b.Call(b.Dot("t.apply"))))
	})
	out, err := generate(lower(t, tree, root))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out, ".max_entries = 64,", "u8 scratch")
}
