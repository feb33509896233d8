package ebpf

import (
	"fmt"

	"kestrel/internal/types"
)

// cType names the C type holding values of tid. Bit types wider than 64
// bits have no scalar type; declare lowers them to byte arrays.
func (p *Program) cType(tid types.TypeID) (string, bool) {
	tt, ok := p.in.Lookup(tid)
	if !ok {
		return "", false
	}
	switch tt.Kind {
	case types.KindBool:
		return "u8", true
	case types.KindError:
		return "enum " + errorEnumName, true
	case types.KindBits:
		prefix := "u"
		if tt.Signed {
			prefix = "s"
		}
		switch {
		case tt.Width <= 8:
			return prefix + "8", true
		case tt.Width <= 16:
			return prefix + "16", true
		case tt.Width <= 32:
			return prefix + "32", true
		case tt.Width <= 64:
			return prefix + "64", true
		}
		return "", false
	case types.KindStruct, types.KindHeader:
		info, _ := p.in.NominalInfo(tid)
		return "struct " + info.Name, true
	}
	return "", false
}

// declare renders a declaration of name with type tid.
func (p *Program) declare(tid types.TypeID, name string) (string, bool) {
	if tt, ok := p.in.Lookup(tid); ok && tt.Kind == types.KindBits && tt.Width > MaxFieldWidth {
		return fmt.Sprintf("u8 %s[%d]", name, (tt.Width+7)/8), true
	}
	ct, ok := p.cType(tid)
	if !ok {
		return "", false
	}
	return ct + " " + name, true
}

func (p *Program) zeroValue(tid types.TypeID) string {
	tt, _ := p.in.Lookup(tid)
	switch {
	case tt.Kind == types.KindStruct, tt.Kind == types.KindHeader:
		return "{0}"
	case tt.Kind == types.KindBits && tt.Width > MaxFieldWidth:
		return "{0}"
	}
	return "0"
}

// fitsIndex reports whether tid can index an array map.
func (p *Program) fitsIndex(tid types.TypeID) bool {
	tt, ok := p.in.Lookup(tid)
	if !ok {
		return false
	}
	return tt.Kind == types.KindBits && !tt.Signed && tt.Width <= 32
}

// emitTypes declares every struct and header of the program in declaration
// order. Headers carry a validity byte after their fields.
func (p *Program) emitTypes(b *CodeBuilder) {
	for _, id := range p.aggregates {
		tid := p.tm.Type(id)
		info, ok := p.in.NominalInfo(tid)
		if !ok {
			continue
		}
		b.EmitIndent()
		b.Appendf("struct %s ", info.Name)
		b.BlockStart()
		for _, f := range info.Fields {
			decl, ok := p.declare(f.Type, f.Name)
			if !ok {
				decl = fmt.Sprintf("u8 %s /* %s */", f.Name, p.in.String(f.Type))
			}
			if tt, _ := p.in.Lookup(f.Type); tt.Kind == types.KindBits && tt.Width <= MaxFieldWidth {
				b.Line("%s; /* %s */", decl, p.in.String(f.Type))
				continue
			}
			b.Line("%s;", decl)
		}
		if info.Kind == types.KindHeader {
			b.Line("u8 %s;", validField)
		}
		b.BlockEnd(false)
		b.EndOfStatement(true)
		b.Newline()
	}
}

// emitErrors declares the error enum. PacketTooShort is always present since
// extraction reports it.
func (p *Program) emitErrors(b *CodeBuilder) {
	b.EmitIndent()
	b.Appendf("enum %s ", errorEnumName)
	b.BlockStart()
	for _, e := range p.errors {
		b.Line("%s,", e)
	}
	b.BlockEnd(false)
	b.EndOfStatement(true)
	b.Newline()
}

func (p *Program) isAggregate(tid types.TypeID) bool {
	tt, ok := p.in.Lookup(tid)
	return ok && (tt.Kind == types.KindStruct || tt.Kind == types.KindHeader)
}

func (p *Program) isExtern(tid types.TypeID, name string) bool {
	info, ok := p.in.NominalInfo(tid)
	return ok && info.Kind == types.KindExtern && info.Name == name
}
