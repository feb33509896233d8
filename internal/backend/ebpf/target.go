package ebpf

import (
	"fmt"
	"strings"
)

// MapKind selects the eBPF map type backing a table.
type MapKind uint8

const (
	MapHash MapKind = iota
	MapArray
	MapPerCPUArray
)

// Target hides the differences between eBPF loaders.
type Target interface {
	Name() string
	EmitIncludes(b *CodeBuilder)
	EmitTableDecl(b *CodeBuilder, name string, kind MapKind, keyType, valueType string, size int)
	// EmitTableLookup writes `value = <lookup of key>` without the semicolon.
	EmitTableLookup(b *CodeBuilder, table, key, value string)
	// EmitTableUpdate writes the insert of value under key without the semicolon.
	EmitTableUpdate(b *CodeBuilder, table, key, value string)
	EmitCodeSection(b *CodeBuilder, name string)
	EmitLicense(b *CodeBuilder, license string)
	DataOffset(ctx string) string
	DataEnd(ctx string) string
	Pass() string
	Drop() string
}

const (
	TargetKernel = "kernel"
	TargetBCC    = "bcc"
)

// TargetByName returns the target called name.
func TargetByName(name string) (Target, error) {
	switch strings.ToLower(name) {
	case TargetKernel, "":
		return KernelTarget{}, nil
	case TargetBCC:
		return BCCTarget{}, nil
	}
	return nil, fmt.Errorf("unknown eBPF target %q (want %s or %s)", name, TargetKernel, TargetBCC)
}

// KernelTarget produces code for the kernel samples loader (tc classifier).
type KernelTarget struct{}

func (KernelTarget) Name() string { return TargetKernel }

func (KernelTarget) EmitIncludes(b *CodeBuilder) {
	b.AppendLine(`#include "ebpf_kernel.h"`)
	b.Newline()
}

func (KernelTarget) EmitTableDecl(b *CodeBuilder, name string, kind MapKind, keyType, valueType string, size int) {
	b.EmitIndent()
	b.Appendf(`struct bpf_map_def SEC("maps") %s = `, name)
	b.BlockStart()
	b.Line(".type = %s,", kernelMapType(kind))
	b.Line(".key_size = sizeof(%s),", keyType)
	b.Line(".value_size = sizeof(%s),", valueType)
	b.Line(".pinning = 2, /* PIN_GLOBAL_NS */")
	b.Line(".max_entries = %d,", size)
	b.BlockEnd(false)
	b.EndOfStatement(true)
}

func kernelMapType(kind MapKind) string {
	switch kind {
	case MapArray:
		return "BPF_MAP_TYPE_ARRAY"
	case MapPerCPUArray:
		return "BPF_MAP_TYPE_PERCPU_ARRAY"
	default:
		return "BPF_MAP_TYPE_HASH"
	}
}

func (KernelTarget) EmitTableLookup(b *CodeBuilder, table, key, value string) {
	b.Appendf("%s = bpf_map_lookup_elem(&%s, &%s)", value, table, key)
}

func (KernelTarget) EmitTableUpdate(b *CodeBuilder, table, key, value string) {
	b.Appendf("bpf_map_update_elem(&%s, &%s, &%s, BPF_ANY)", table, key, value)
}

func (KernelTarget) EmitCodeSection(b *CodeBuilder, name string) {
	b.Appendf("SEC(%q) ", name)
}

func (KernelTarget) EmitLicense(b *CodeBuilder, license string) {
	b.Appendf("char _license[] SEC(\"license\") = %q;\n", license)
}

func (KernelTarget) DataOffset(ctx string) string { return "((void*)(long)" + ctx + "->data)" }
func (KernelTarget) DataEnd(ctx string) string    { return "((void*)(long)" + ctx + "->data_end)" }
func (KernelTarget) Pass() string                 { return "TC_ACT_OK" }
func (KernelTarget) Drop() string                 { return "TC_ACT_SHOT" }

// BCCTarget produces code loaded through the BCC toolkit.
type BCCTarget struct{}

func (BCCTarget) Name() string { return TargetBCC }

func (BCCTarget) EmitIncludes(b *CodeBuilder) {
	for _, h := range []string{
		"uapi/linux/bpf.h",
		"uapi/linux/if_ether.h",
		"uapi/linux/if_packet.h",
		"uapi/linux/ip.h",
		"linux/skbuff.h",
		"linux/netdevice.h",
		"linux/pkt_cls.h",
	} {
		b.Appendf("#include <%s>\n", h)
	}
	b.Newline()
}

func (BCCTarget) EmitTableDecl(b *CodeBuilder, name string, kind MapKind, keyType, valueType string, size int) {
	kindName := "hash"
	switch kind {
	case MapArray:
		kindName = "array"
	case MapPerCPUArray:
		kindName = "percpu_array"
	}
	b.Line("BPF_TABLE(%q, %s, %s, %s, %d);", kindName, keyType, valueType, name, size)
}

func (BCCTarget) EmitTableLookup(b *CodeBuilder, table, key, value string) {
	b.Appendf("%s = %s.lookup(&%s)", value, table, key)
}

func (BCCTarget) EmitTableUpdate(b *CodeBuilder, table, key, value string) {
	b.Appendf("%s.update(&%s, &%s)", table, key, value)
}

func (BCCTarget) EmitCodeSection(*CodeBuilder, string) {}
func (BCCTarget) EmitLicense(*CodeBuilder, string)     {}

func (BCCTarget) DataOffset(ctx string) string { return "((void*)(long)" + ctx + "->data)" }
func (BCCTarget) DataEnd(ctx string) string    { return "((void*)(long)" + ctx + "->data_end)" }
func (BCCTarget) Pass() string                 { return "TC_ACT_OK" }
func (BCCTarget) Drop() string                 { return "TC_ACT_SHOT" }
