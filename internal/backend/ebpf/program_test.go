package ebpf_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"kestrel/internal/backend/ebpf"
	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/midend"
	"kestrel/internal/testkit"
)

func TestGenerateFilterProgram(t *testing.T) {
	tree, root := testkit.FilterProgram()
	u := lower(t, tree, root)
	out, err := generate(u)
	if err != nil {
		t.Fatalf("Generate: %v\n%v", err, u.Bag.Items())
	}
	mustContain(t, out,
		`#include "ebpf_kernel.h"`,
		"#define BYTES_CEIL(w) (((w) + 7) / 8)",
		"enum ebpf_errorCodes {",
		"    NoMatch,",
		"struct Ethernet_h {",
		"    u64 dstAddr; /* bit<48> */",
		"    u8 ebpf_valid;",
		"struct Headers_t {",
		"struct Check_src_ip_key_0 {",
		"    u32 field0;",
		"enum Check_src_ip_actions_0 {",
		"    Check_src_ip_Reject,",
		`struct bpf_map_def SEC("maps") Check_src_ip = {`,
		`struct bpf_map_def SEC("maps") headers_scratch_0 = {`,
		`SEC("classifier") int ebpf_filter(struct __sk_buff *skb) {`,
		"    struct Headers_t *headers = NULL;",
		"    headers = bpf_map_lookup_elem(&headers_scratch_0, &ebpf_zero);",
		"    u8 pass = 0;",
		"    goto prs_start;",
		"prs_start:",
		"ebpf_errorCode = PacketTooShort;",
		"(*headers).ethernet.ebpf_valid = 1;",
		"ebpf_packetOffsetInBits += 112;",
		"goto prs_noMatch_0;",
		"prs_accept: ;",
		"ebpf_errorCode = NoMatch;",
		"if ((!(*headers).ipv4.ebpf_valid)) {",
		"exit_0 = 1;",
		"if (!(exit_0)) {",
		"enum Check_src_ip_actions_0 action_run_0 = 0;",
		"case Check_src_ip_Reject: {",
		"(*headers).ipv4.srcAddr = value->u.Reject.add;",
		"action_run_0 = value->action;",
		"__sync_fetch_and_add(value_0, init_val_0);",
		"/* control dep */",
		"    if (!exit_0) {",
		"if ((*headers).ipv4.ebpf_valid) {",
		"write_byte(ebpf_packetStart, BYTES(ebpf_packetOffsetInBits) + 0, ebpf_byte);",
		"    return pass ? TC_ACT_OK : TC_ACT_SHOT;",
		"ebpf_reject:\n    return TC_ACT_SHOT;",
		`char _license[] SEC("license") = "GPL";`,
	)
	if strings.Index(out, "/* parser prs */") > strings.Index(out, "/* control pipe */") {
		t.Errorf("parser lowered after the controls")
	}
}

func TestGenerateBCC(t *testing.T) {
	tree, root := testkit.FilterProgram()
	u := lower(t, tree, root)
	out, err := ebpf.Generate(context.Background(), u, ebpf.BCCTarget{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out,
		`BPF_TABLE("hash", struct Check_src_ip_key_0, struct Check_src_ip_value_0, Check_src_ip, 1024);`,
		`BPF_TABLE("hash", u32, u32, counters, 10);`,
		`BPF_TABLE("percpu_array", u32, struct Headers_t, headers_scratch_0, 1);`,
		"value = Check_src_ip.lookup(&key);",
	)
	if strings.Contains(out, "SEC(") {
		t.Errorf("bcc output has sections")
	}
}

func TestGenerateWithoutVerdict(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	decls := append(testkit.Model(b), testkit.Headers(b)...)
	decls = append(decls, b.Control("c",
		[]ir.NodeID{b.Param(ir.DirInOut, "headers", b.TypeName("Headers_t"))},
		nil,
		b.Block(b.Assign(b.Dot("headers.ipv4.ttl"), b.Uint(64, 8)))))
	u := lower(t, tree, b.Program(decls...))
	out, err := generate(u)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out, "(*headers).ipv4.ttl = 64;", "    return TC_ACT_OK;")
	if strings.Contains(out, "? TC_ACT_OK") {
		t.Errorf("verdict emitted without an out bool parameter")
	}
}

func TestGenerateConstants(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	decls := append(testkit.Model(b), testkit.Headers(b)...)
	decls = append(decls,
		b.Const("TTL", b.Bits(8), b.Uint(64, 8)),
		b.Control("c",
			[]ir.NodeID{b.Param(ir.DirInOut, "headers", b.TypeName("Headers_t"))},
			[]ir.NodeID{b.Const("big", b.Bits(64), b.Uint(1<<40, 64))},
			b.Block(b.Assign(b.Dot("headers.ipv4.ttl"), b.Path("TTL")))))
	u := lower(t, tree, b.Program(decls...))
	out, err := generate(u)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	mustContain(t, out, "#define TTL (64)", "const u64 big = 1099511627776ULL;", "(*headers).ipv4.ttl = TTL;")
}

func TestSharedScalarConflict(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	decls := testkit.Model(b)
	decls = append(decls,
		b.Control("a", []ir.NodeID{b.Param(ir.DirOut, "x", b.BoolType())}, nil, b.Block()),
		b.Control("b", []ir.NodeID{b.Param(ir.DirOut, "x", b.Bits(8))}, nil, b.Block()))
	u := lower(t, tree, b.Program(decls...))
	_, err := generate(u)
	if !errors.Is(err, diag.ErrProgram) {
		t.Fatalf("Generate error = %v, want a program error", err)
	}
	if !hasCode(u, diag.BackendBadControlParams) {
		t.Errorf("diagnostics = %v", codes(u))
	}
}

func TestUnsupportedParam(t *testing.T) {
	tree := ir.NewTree()
	b := ir.NewBuilder(tree)
	decls := testkit.Model(b)
	decls = append(decls, b.Control("c",
		[]ir.NodeID{b.Param(ir.DirNone, "cnt", b.TypeName("CounterArray"))}, nil, b.Block()))
	u := lower(t, tree, b.Program(decls...))
	if _, err := generate(u); !errors.Is(err, diag.ErrProgram) {
		t.Fatalf("Generate error = %v, want a program error", err)
	}
	if !hasCode(u, diag.BackendBadControlParams) {
		t.Errorf("diagnostics = %v", codes(u))
	}
}

func TestGenerateNeedsTypes(t *testing.T) {
	tree, root := testkit.FilterProgram()
	u, err := midend.NewUnit("prog.kir", tree, root, nil)
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}
	_, err = generate(u)
	if !ir.IsInternal(err) {
		t.Errorf("Generate on an unchecked unit = %v, want an internal error", err)
	}
}

func TestEmitBeforeBuild(t *testing.T) {
	tree, root := testkit.FilterProgram()
	u := lower(t, tree, root)
	p := ebpf.NewProgram(u, ebpf.KernelTarget{})
	if err := p.Emit(ebpf.NewCodeBuilder(p.Target)); !ir.IsInternal(err) {
		t.Errorf("Emit before Build = %v, want an internal error", err)
	}
	if _, err := p.Control("pipe"); !ir.IsInternal(err) {
		t.Errorf("Control before Build = %v, want an internal error", err)
	}
}
