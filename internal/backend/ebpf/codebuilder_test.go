package ebpf_test

import (
	"bytes"
	"strings"
	"testing"

	"kestrel/internal/backend/ebpf"
)

func TestCodeBuilderBlocks(t *testing.T) {
	b := ebpf.NewCodeBuilder(ebpf.KernelTarget{})
	b.Append("int f() ")
	b.BlockStart()
	b.Line("u8 x = %d;", 1)
	b.EmitIndent()
	b.Append("if (x) ")
	b.BlockStart()
	b.Line("x = 0;")
	b.BlockEnd(true)
	b.BlockEnd(true)
	want := "int f() {\n    u8 x = 1;\n    if (x) {\n        x = 0;\n    }\n}\n"
	if b.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", b.String(), want)
	}

	var buf bytes.Buffer
	n, err := b.WriteTo(&buf)
	if err != nil || int(n) != b.Len() || buf.String() != want {
		t.Errorf("WriteTo = %d, %v", n, err)
	}
}

func TestCodeBuilderIndentFloor(t *testing.T) {
	b := ebpf.NewCodeBuilder(ebpf.KernelTarget{})
	b.DecreaseIndent()
	b.Line("x;")
	if b.String() != "x;\n" {
		t.Errorf("got %q", b.String())
	}
}

func TestTargetByName(t *testing.T) {
	for name, want := range map[string]string{
		"":       ebpf.TargetKernel,
		"kernel": ebpf.TargetKernel,
		"BCC":    ebpf.TargetBCC,
	} {
		tg, err := ebpf.TargetByName(name)
		if err != nil {
			t.Fatalf("TargetByName(%q): %v", name, err)
		}
		if tg.Name() != want {
			t.Errorf("TargetByName(%q) = %s, want %s", name, tg.Name(), want)
		}
	}
	if _, err := ebpf.TargetByName("xdp"); err == nil {
		t.Errorf("unknown target accepted")
	}
}

func TestTargetTables(t *testing.T) {
	kernel := ebpf.NewCodeBuilder(ebpf.KernelTarget{})
	kernel.Target.EmitTableDecl(kernel, "counters", ebpf.MapPerCPUArray, "u32", "u32", 8)
	kernel.EmitIndent()
	kernel.Target.EmitTableLookup(kernel, "counters", "key", "value")
	kernel.EndOfStatement(true)
	for _, frag := range []string{
		`struct bpf_map_def SEC("maps") counters = {`,
		".type = BPF_MAP_TYPE_PERCPU_ARRAY,",
		".max_entries = 8,",
		"value = bpf_map_lookup_elem(&counters, &key);",
	} {
		if !strings.Contains(kernel.String(), frag) {
			t.Errorf("kernel output lacks %q:\n%s", frag, kernel.String())
		}
	}

	bcc := ebpf.NewCodeBuilder(ebpf.BCCTarget{})
	bcc.Target.EmitTableDecl(bcc, "t", ebpf.MapHash, "struct k", "struct v", 16)
	bcc.Target.EmitTableUpdate(bcc, "t", "key", "value")
	want := "BPF_TABLE(\"hash\", struct k, struct v, t, 16);\nt.update(&key, &value)"
	if bcc.String() != want {
		t.Errorf("bcc output %q, want %q", bcc.String(), want)
	}
}
