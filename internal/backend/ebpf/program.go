package ebpf

import (
	"context"
	"fmt"
	"slices"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/midend"
	"kestrel/internal/sema"
	"kestrel/internal/trace"
	"kestrel/internal/types"
)

// sharedVar is one variable of the entry function standing for parameters
// of several units. Aggregates live in a per-CPU scratch map and are reached
// through a pointer; scalars are plain locals.
type sharedVar struct {
	name    string
	param   ir.NodeID
	typ     types.TypeID
	pointer bool
	scratch string
}

// Program lowers a whole checked program to a single classifier function.
// Parsers run first, then the controls in declaration order.
type Program struct {
	Target Target

	tree  *ir.Tree
	root  ir.NodeID
	refs  *sema.RefMap
	tm    *sema.TypeMap
	in    *types.Interner
	names *ir.NameGen
	bag   *diag.Bag

	exitVar    string
	parsers    []*Parser
	controls   []*Control
	aggregates []ir.NodeID
	topConsts  []ir.NodeID
	errors     []string
	constants  map[ir.NodeID]ir.Constant
	bools      map[ir.NodeID]bool

	shared  []*sharedVar
	byType  map[types.TypeID]*sharedVar
	byName  map[string]*sharedVar
	verdict *sharedVar
	built   bool
}

// NewProgram wraps a unit that went through the mid end.
func NewProgram(u *midend.Unit, target Target) *Program {
	return &Program{
		Target:    target,
		tree:      u.Tree,
		root:      u.Root,
		refs:      u.Refs,
		tm:        u.TypeMap,
		in:        u.Interner,
		names:     u.Names,
		bag:       u.Bag,
		constants: make(map[ir.NodeID]ir.Constant),
		bools:     make(map[ir.NodeID]bool),
		byType:    make(map[types.TypeID]*sharedVar),
		byName:    make(map[string]*sharedVar),
	}
}

// Build creates and builds the units. Problems of the program are reported
// to the bag and returned as its error; internal errors are returned as is.
func (p *Program) Build() error {
	if p.built {
		return p.bag.Err()
	}
	if p.tm.Len() == 0 {
		return ir.Bugf("eBPF backend needs a type-checked program")
	}
	prog, err := ir.MustAs[ir.Program](p.tree, p.root)
	if err != nil {
		return err
	}
	for _, d := range prog.Decls {
		switch data := p.tree.Data(d).(type) {
		case ir.StructDecl, ir.HeaderDecl:
			p.aggregates = append(p.aggregates, d)
		case ir.ErrorDecl:
			for _, m := range data.Members {
				if !slices.Contains(p.errors, m) {
					p.errors = append(p.errors, m)
				}
			}
		case ir.Const:
			p.topConsts = append(p.topConsts, d)
			p.scanConst(d, p.constants, p.bools)
		case ir.Parser:
			p.parsers = append(p.parsers, newParser(p, d))
		case ir.Control:
			p.controls = append(p.controls, newControl(p, d))
		}
	}
	if !slices.Contains(p.errors, tooShortError) {
		p.errors = append(p.errors, tooShortError)
	}
	p.exitVar = p.names.NewName("exit")
	for _, prs := range p.parsers {
		if err := prs.Build(); err != nil {
			return err
		}
	}
	for _, ctl := range p.controls {
		if err := ctl.Build(); err != nil {
			return err
		}
	}
	p.built = true
	return p.bag.Err()
}

// Control returns the unit of the named control.
func (p *Program) Control(name string) (*Control, error) {
	for _, ctl := range p.controls {
		if ctl.Name == name {
			return ctl, nil
		}
	}
	return nil, ir.Bugf("no control named %s", name)
}

func (p *Program) Controls() []*Control { return p.controls }

func (p *Program) scanConst(id ir.NodeID, consts map[ir.NodeID]ir.Constant, bools map[ir.NodeID]bool) {
	c, ok := ir.As[ir.Const](p.tree, id)
	if !ok {
		return
	}
	switch v := p.tree.Data(c.Value).(type) {
	case ir.Constant:
		consts[id] = v
	case ir.BoolLit:
		bools[id] = v.Value
	}
}

// bindParams maps the parameters of a unit onto the shared variables of
// the entry function. Aggregates are shared by type and scalars by name.
func (p *Program) bindParams(al *aliases, params []ir.NodeID, isControl bool) {
	t := p.tree
	for _, prm := range params {
		d := ir.Get[ir.Param](t, prm)
		tid := p.tm.Type(prm)
		tt, _ := p.in.Lookup(tid)
		switch tt.Kind {
		case types.KindExtern:
			if !p.isExtern(tid, ModelPacketIn) && !p.isExtern(tid, ModelPacketOut) {
				p.bag.Add(diag.Errorf(diag.BackendBadControlParams, t.Span(prm),
					"parameter %s of type %s is not supported", d.Name, p.in.String(tid)))
			}
		case types.KindStruct, types.KindHeader:
			sv, ok := p.byType[tid]
			if !ok {
				sv = &sharedVar{
					name:    d.Name,
					param:   prm,
					typ:     tid,
					pointer: true,
					scratch: p.names.NewName(d.Name + "_scratch"),
				}
				p.byType[tid] = sv
				p.shared = append(p.shared, sv)
			}
			al.Substitute(prm, sv.param)
			al.Dereference(sv.param)
		case types.KindBool, types.KindBits, types.KindError:
			sv, ok := p.byName[d.Name]
			if !ok {
				sv = &sharedVar{name: d.Name, param: prm, typ: tid}
				p.byName[d.Name] = sv
				p.shared = append(p.shared, sv)
			} else if sv.typ != tid {
				p.bag.Add(diag.Errorf(diag.BackendBadControlParams, t.Span(prm),
					"parameter %s has type %s here and %s elsewhere", d.Name, p.in.String(tid), p.in.String(sv.typ)).
					WithNote(t.Span(sv.param), "first declared here"))
				continue
			}
			al.Substitute(prm, sv.param)
			if isControl && p.verdict == nil && d.Dir == ir.DirOut && tt.Kind == types.KindBool {
				p.verdict = sv
			}
		default:
			p.bag.Add(diag.Errorf(diag.BackendBadControlParams, t.Span(prm),
				"parameter %s of type %s is not supported", d.Name, p.in.String(tid)))
		}
	}
}

// Emit writes the whole C translation unit.
func (p *Program) Emit(b *CodeBuilder) error {
	if !p.built {
		return ir.Bugf("program emitted before it was built")
	}
	b.Target.EmitIncludes(b)
	b.Newline()
	b.AppendLine("#define BYTES(w) ((w) / 8)")
	b.AppendLine("#define BYTES_CEIL(w) (((w) + 7) / 8)")
	b.AppendLine("#define load_byte(data, b) (*(((u8*)(data)) + (b)))")
	b.AppendLine("#define write_byte(data, b, v) (*(((u8*)(data)) + (b)) = (v))")
	b.Newline()
	p.emitErrors(b)
	if err := p.emitConstants(b); err != nil {
		return err
	}
	p.emitTypes(b)
	for _, ctl := range p.controls {
		if err := ctl.EmitTables(b); err != nil {
			return err
		}
	}
	for _, sv := range p.shared {
		if sv.pointer {
			ct, _ := p.cType(sv.typ)
			b.Target.EmitTableDecl(b, sv.scratch, MapPerCPUArray, counterIndexType, ct, 1)
		}
	}
	b.Newline()
	if err := p.emitEntry(b); err != nil {
		return err
	}
	b.Newline()
	b.Target.EmitLicense(b, license)
	return nil
}

func (p *Program) emitConstants(b *CodeBuilder) error {
	if len(p.topConsts) == 0 {
		return nil
	}
	tr := newTranslator(p, b, newAliases(), nil)
	for _, id := range p.topConsts {
		v, err := tr.lowerExpr(ir.Get[ir.Const](p.tree, id).Value)
		if err != nil {
			return err
		}
		b.Appendf("#define %s (%s)\n", p.tree.Name(id), v)
	}
	b.Newline()
	return nil
}

func (p *Program) emitEntry(b *CodeBuilder) error {
	b.Target.EmitCodeSection(b, codeSection)
	b.Appendf("int %s(struct __sk_buff *%s) ", entryFunction, skbVar)
	b.BlockStart()
	b.Line("void *%s = %s;", packetStartVar, b.Target.DataOffset(skbVar))
	b.Line("void *%s = %s;", packetEndVar, b.Target.DataEnd(skbVar))
	b.Line("u64 %s = 0;", offsetVar)
	b.Line("u32 %s = 0;", zeroKeyVar)
	b.Line("u8 %s = 0;", byteVar)
	b.Line("enum %s %s = 0;", errorEnumName, errorCodeVar)
	b.Line("u8 %s = 0;", p.exitVar)
	for _, sv := range p.shared {
		p.emitShared(b, sv)
	}
	b.Newline()

	for _, prs := range p.parsers {
		b.Line("/* parser %s */", prs.Name)
		if err := prs.Emit(b); err != nil {
			return err
		}
	}
	mayExit := false
	for _, ctl := range p.controls {
		b.Line("/* control %s */", ctl.Name)
		b.EmitIndent()
		if mayExit {
			b.Appendf("if (!%s) ", p.exitVar)
		}
		b.BlockStart()
		f, err := ctl.Emit(b)
		if err != nil {
			return err
		}
		b.BlockEnd(true)
		mayExit = mayExit || f&flowMayExit != 0
	}

	if p.verdict != nil {
		b.Line("return %s ? %s : %s;", p.verdict.name, b.Target.Pass(), b.Target.Drop())
	} else {
		b.Line("return %s;", b.Target.Pass())
	}
	b.AppendLine(rejectLabel + ":")
	b.Line("return %s;", b.Target.Drop())
	b.BlockEnd(true)
	return nil
}

// emitShared declares a shared variable. Aggregates are fetched from their
// scratch map and cleared; the program drops the packet if the map is gone.
func (p *Program) emitShared(b *CodeBuilder, sv *sharedVar) {
	ct, _ := p.cType(sv.typ)
	if !sv.pointer {
		b.Line("%s %s = %s;", ct, sv.name, p.zeroValue(sv.typ))
		return
	}
	b.Line("%s *%s = NULL;", ct, sv.name)
	b.EmitIndent()
	b.Target.EmitTableLookup(b, sv.scratch, zeroKeyVar, sv.name)
	b.EndOfStatement(true)
	b.Line("if (%s == NULL)", sv.name)
	b.IncreaseIndent()
	b.Line("return %s;", b.Target.Drop())
	b.DecreaseIndent()
	b.Line("__builtin_memset(%s, 0, sizeof(%s));", sv.name, ct)
}

// Generate builds and emits the program for target.
func Generate(ctx context.Context, u *midend.Unit, target Target) (string, error) {
	ctx, span := trace.Start(ctx, trace.ScopePass, "ebpf-"+target.Name())
	if u.Timer != nil {
		phase := u.Timer.Begin("backend/ebpf")
		defer u.Timer.End(phase, target.Name())
	}
	p := NewProgram(u, target)
	if err := p.Build(); err != nil {
		span.End("build failed")
		return "", err
	}
	b := NewCodeBuilder(target)
	if err := p.Emit(b); err != nil {
		span.End("emit failed")
		return "", err
	}
	if err := p.bag.Err(); err != nil {
		span.End("emit failed")
		return "", err
	}
	for _, c := range p.controls {
		trace.Point(trace.FromContext(ctx), trace.ScopeNode, "control "+c.Name,
			fmt.Sprintf("%d tables", len(c.tableOrder)), trace.CurrentSpan(ctx).SpanID)
	}
	span.WithExtra("bytes", fmt.Sprint(b.Len())).End("")
	return b.String(), nil
}
