// Package testkit holds programs and checks shared by package tests.
package testkit

import (
	"kestrel/internal/ir"
)

// Model returns the core and eBPF model declarations that front ends place
// at the top of every program.
func Model(b *ir.Builder) []ir.NodeID {
	bits32 := func() ir.NodeID { return b.Bits(32) }
	return []ir.NodeID{
		b.Errors("NoError", "PacketTooShort"),
		b.Extern("packet_in", nil,
			b.GenericMethod("extract", []string{"T"}, ir.NoNodeID, b.Param(ir.DirOut, "hdr", b.TypeName("T")))),
		b.Extern("packet_out", nil,
			b.GenericMethod("emit", []string{"T"}, ir.NoNodeID, b.Param(ir.DirIn, "data", b.TypeName("T")))),
		b.Method("verify", ir.NoNodeID,
			b.Param(ir.DirIn, "check", b.BoolType()), b.Param(ir.DirIn, "toSignal", b.ErrorType())),
		b.Action("NoAction", nil, b.Block()),
		b.Extern("CounterArray",
			[]ir.NodeID{b.Param(ir.DirNone, "max_index", bits32()), b.Param(ir.DirNone, "sparse", b.BoolType())},
			b.Method("increment", ir.NoNodeID, b.Param(ir.DirIn, "index", bits32())),
			b.Method("add", ir.NoNodeID, b.Param(ir.DirIn, "index", bits32()), b.Param(ir.DirIn, "value", bits32()))),
		b.Extern("array_table", []ir.NodeID{b.Param(ir.DirNone, "size", bits32())}),
		b.Extern("hash_table", []ir.NodeID{b.Param(ir.DirNone, "size", bits32())}),
	}
}

// Headers returns Ethernet_h, IPv4_h and the Headers_t struct holding both.
func Headers(b *ir.Builder) []ir.NodeID {
	f := func(name string, w int) ir.NodeID { return b.Field(name, b.Bits(w)) }
	return []ir.NodeID{
		b.Header("Ethernet_h", f("dstAddr", 48), f("srcAddr", 48), f("etherType", 16)),
		b.Header("IPv4_h",
			f("version", 4), f("ihl", 4), f("diffserv", 8), f("totalLen", 16),
			f("identification", 16), f("flags", 3), f("fragOffset", 13),
			f("ttl", 8), f("protocol", 8), f("hdrChecksum", 16),
			f("srcAddr", 32), f("dstAddr", 32)),
		b.Struct("Headers_t",
			b.Field("ethernet", b.TypeName("Ethernet_h")),
			b.Field("ipv4", b.TypeName("IPv4_h"))),
	}
}

// TupleProgram uses the shape tuple<bit<32>, bool> in two unrelated
// declarations, nests it in a second shape and declares a tuple-typed local
// inside a control.
func TupleProgram() (*ir.Tree, ir.NodeID) {
	t := ir.NewTree()
	b := ir.NewBuilder(t)
	pair := func() ir.NodeID { return b.Tuple(b.Bits(32), b.BoolType()) }
	decls := Model(b)
	decls = append(decls,
		b.Struct("S", b.Field("f", pair())),
		b.Header("H", b.Field("x", b.Bits(8))),
		b.Struct("T",
			b.Field("g", pair()),
			b.Field("n", b.Tuple(pair(), b.Bits(8)))),
		b.Control("c",
			[]ir.NodeID{b.Param(ir.DirInOut, "s", b.TypeName("S"))},
			[]ir.NodeID{b.Var("v", b.Tuple(b.Bits(8), b.Bits(16)), ir.NoNodeID)},
			b.Block(b.Assign(b.Dot("v"), b.List(b.Uint(1, 8), b.Uint(2, 16))))),
	)
	return t, b.Program(decls...)
}

// FilterProgram is a packet filter: a parser whose select has no default
// case, a filtering control with a table, a counter, a switch on the
// action run and an exit, and a deparser emitting both headers.
func FilterProgram() (*ir.Tree, ir.NodeID) {
	t := ir.NewTree()
	b := ir.NewBuilder(t)
	decls := Model(b)
	decls = append(decls, Headers(b)...)

	prs := b.Parser("prs",
		[]ir.NodeID{
			b.Param(ir.DirNone, "p", b.TypeName("packet_in")),
			b.Param(ir.DirOut, "headers", b.TypeName("Headers_t")),
		},
		nil,
		[]ir.NodeID{
			b.State("start",
				b.Select([]ir.NodeID{b.Dot("headers.ethernet.etherType")},
					b.SelectCase(b.Uint(0x800, 16), "ip")),
				b.Do(b.Call(b.Dot("p.extract"), b.Dot("headers.ethernet")))),
			b.State("ip", b.Path("accept"),
				b.Do(b.Call(b.Dot("p.extract"), b.Dot("headers.ipv4")))),
		})

	table := b.Node(ir.Table{
		Name:    "Check_src_ip",
		Keys:    []ir.NodeID{b.Key(b.Dot("headers.ipv4.srcAddr"), "exact")},
		Actions: []ir.NodeID{b.Path("Reject"), b.Path("NoAction")},
		Default: b.Path("NoAction"),
		Impl:    b.New(b.TypeName("hash_table"), b.Uint(1024, 32)),
	})
	pipe := b.Control("pipe",
		[]ir.NodeID{
			b.Param(ir.DirInOut, "headers", b.TypeName("Headers_t")),
			b.Param(ir.DirOut, "pass", b.BoolType()),
		},
		[]ir.NodeID{
			b.Instance("counters", b.TypeName("CounterArray"), b.Uint(10, 32), b.Bool(true)),
			b.Action("Reject", []ir.NodeID{b.Param(ir.DirNone, "add", b.Bits(32))}, b.Block(
				b.Assign(b.Path("pass"), b.Bool(false)),
				b.Assign(b.Dot("headers.ipv4.srcAddr"), b.Path("add")))),
			table,
		},
		b.Block(
			b.Assign(b.Path("pass"), b.Bool(true)),
			b.If(b.Not(b.Call(b.Dot("headers.ipv4.isValid"))),
				b.Block(b.Assign(b.Path("pass"), b.Bool(false)), b.Exit()),
				ir.NoNodeID),
			b.Switch(b.Member(b.Call(b.Dot("Check_src_ip.apply")), "action_run"),
				b.Case(b.Path("Reject"), b.Block(b.Assign(b.Path("pass"), b.Bool(false)))),
				b.Case(b.Path("NoAction"), b.Block())),
			b.Do(b.Call(b.Dot("counters.increment"), b.Dot("headers.ipv4.dstAddr"))),
		))

	dep := b.Control("dep",
		[]ir.NodeID{
			b.Param(ir.DirIn, "headers", b.TypeName("Headers_t")),
			b.Param(ir.DirNone, "pkt", b.TypeName("packet_out")),
		},
		nil,
		b.Block(
			b.Do(b.Call(b.Dot("pkt.emit"), b.Dot("headers.ethernet"))),
			b.Do(b.Call(b.Dot("pkt.emit"), b.Dot("headers.ipv4"))),
		))

	decls = append(decls, prs, pipe, dep)
	return t, b.Program(decls...)
}
