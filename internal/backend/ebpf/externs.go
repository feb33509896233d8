package ebpf

import (
	"fmt"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/sema"
	"kestrel/internal/types"
)

type callKind uint8

const (
	callFunction callKind = iota
	callApply
	callEmit
	callExtract
	callIncrement
	callAdd
	callIsValid
	callSetValid
	callSetInvalid
	callVerify
	callAction
	callExternMethod
)

// callInfo is a resolved method call.
type callInfo struct {
	kind   callKind
	id     ir.NodeID // the MethodCall
	object ir.NodeID // receiver expression, for member calls
	target ir.NodeID // declaration of the receiver or of the callee
	method string
	args   []ir.NodeID
}

func (tr *translator) classify(id ir.NodeID) (callInfo, error) {
	t := tr.tree()
	mc, err := ir.MustAs[ir.MethodCall](t, id)
	if err != nil {
		return callInfo{}, err
	}
	info := callInfo{id: id, args: mc.Args}
	switch d := t.Data(mc.Method).(type) {
	case ir.Path:
		info.method = d.Name
		decl, ok := tr.p.refs.Decl(mc.Method)
		info.target = decl
		switch {
		case d.Name == sema.VerifyName:
			info.kind = callVerify
		case ok && t.Kind(decl) == ir.KindAction:
			info.kind = callAction
		default:
			info.kind = callFunction
		}
		return info, nil
	case ir.Member:
		info.method, info.object = d.Name, d.Expr
		info.target, _ = tr.p.refs.Decl(d.Expr)
		base := tr.p.tm.Type(d.Expr)
		bt, ok := tr.p.in.Lookup(base)
		if !ok {
			return info, ir.BugAt(id, "call on an untyped receiver")
		}
		switch bt.Kind {
		case types.KindHeader:
			switch d.Name {
			case sema.IsValidMethod:
				info.kind = callIsValid
			case sema.SetValidMethod:
				info.kind = callSetValid
			case sema.SetInvalid:
				info.kind = callSetInvalid
			default:
				return info, ir.BugAt(id, "unknown header method %s", d.Name)
			}
		case types.KindTable:
			if d.Name != sema.ApplyMethod {
				return info, ir.BugAt(id, "unknown table method %s", d.Name)
			}
			info.kind = callApply
		case types.KindExtern:
			info.kind = callExternMethod
			ext, _ := tr.p.in.NominalInfo(base)
			switch {
			case ext.Name == ModelPacketOut && d.Name == ModelEmit:
				info.kind = callEmit
			case ext.Name == ModelPacketIn && d.Name == ModelExtract:
				info.kind = callExtract
			case ext.Name == ModelCounterArray && d.Name == ModelIncrement:
				info.kind = callIncrement
			case ext.Name == ModelCounterArray && d.Name == ModelAdd:
				info.kind = callAdd
			}
		default:
			return info, ir.BugAt(id, "call of a member of %s", tr.p.in.String(base))
		}
		return info, nil
	}
	return info, ir.BugAt(id, "callee is a %s", t.Kind(mc.Method))
}

func (tr *translator) isApply(id ir.NodeID) bool {
	if tr.tree().Kind(id) != ir.KindMethodCall {
		return false
	}
	info, err := tr.classify(id)
	return err == nil && info.kind == callApply
}

// applyTable resolves the table of an apply call through the control's
// registry.
func (tr *translator) applyTable(call ir.NodeID) (*Table, error) {
	if tr.ctl == nil {
		return nil, ir.BugAt(call, "table apply outside a control")
	}
	info, err := tr.classify(call)
	if err != nil {
		return nil, err
	}
	if !info.target.IsValid() {
		return nil, ir.BugAt(call, "apply on an unresolved table")
	}
	return tr.ctl.GetTable(tr.tree().Name(info.target))
}

func (tr *translator) preCallStmt(c *ir.Cursor, id ir.NodeID) (bool, error) {
	t := tr.tree()
	callID := ir.Get[ir.CallStmt](t, id).Call
	info, err := tr.classify(callID)
	if err != nil {
		return false, err
	}
	switch info.kind {
	case callApply:
		f, err := tr.apply(c, callID)
		tr.flow = f
		return false, err
	case callEmit:
		return false, tr.emitPacket(c, info)
	case callExtract:
		return false, tr.extract(c, info)
	case callIncrement, callAdd:
		if tr.ctl == nil {
			return false, ir.BugAt(callID, "counter update outside a control")
		}
		counter, err := tr.ctl.GetCounter(t.Name(info.target))
		if err != nil {
			return false, err
		}
		return false, counter.emitUpdate(tr, c, info)
	case callSetValid, callSetInvalid:
		obj, err := tr.exprString(c, info.object)
		if err != nil {
			return false, err
		}
		v := 1
		if info.kind == callSetInvalid {
			v = 0
		}
		tr.b.Line("%s.%s = %d;", obj, validField, v)
	case callIsValid:
		// no effect
	case callVerify:
		return false, tr.verify(c, info)
	case callFunction:
		tr.b.EmitIndent()
		if err := tr.genericCall(c, info); err != nil {
			return false, err
		}
		tr.b.EndOfStatement(true)
	case callAction:
		tr.p.bag.Add(diag.Errorf(diag.BackendUnexpectedMethod, t.Span(callID),
			"action %s can only run through a table", info.method))
	case callExternMethod:
		tr.p.bag.Add(diag.Errorf(diag.BackendUnexpectedMethod, t.Span(callID),
			"unexpected method %s for %s", info.method, tr.p.in.String(tr.p.tm.Type(info.object))))
	}
	return false, nil
}

func (tr *translator) genericCall(c *ir.Cursor, info callInfo) error {
	tr.b.Append(info.method + "(")
	for i, a := range info.args {
		if i > 0 {
			tr.b.Append(", ")
		}
		if err := c.Visit(a); err != nil {
			return err
		}
	}
	tr.b.Append(")")
	return nil
}

// apply lowers one table application; see Table.emitApply.
func (tr *translator) apply(c *ir.Cursor, call ir.NodeID) (flow, error) {
	table, err := tr.applyTable(call)
	if err != nil {
		return 0, err
	}
	var frame *actionFrame
	if n := len(tr.frames); n > 0 && !tr.frames[n-1].consumed {
		frame = tr.frames[n-1]
		frame.consumed = true
	}
	return table.emitApply(tr, c, frame)
}

func (tr *translator) verify(c *ir.Cursor, info callInfo) error {
	if len(info.args) != 2 {
		return ir.BugAt(info.id, "verify takes 2 arguments, got %d", len(info.args))
	}
	cond, err := tr.exprString(c, info.args[0])
	if err != nil {
		return err
	}
	code, err := tr.exprString(c, info.args[1])
	if err != nil {
		return err
	}
	tr.b.EmitIndent()
	tr.b.Appendf("if (!(%s)) ", cond)
	tr.b.BlockStart()
	tr.b.Line("%s = %s;", errorCodeVar, code)
	tr.b.Line("goto %s;", rejectLabel)
	tr.b.BlockEnd(true)
	return nil
}

// headerFields returns the C member expressions and widths of the value id,
// which is a header or a single bit<N> field.
func (tr *translator) headerFields(c *ir.Cursor, id ir.NodeID, allowScalar bool) (obj string, exprs []string, widths []int, isHeader bool, err error) {
	t := tr.tree()
	typ := tr.p.tm.Type(id)
	tt, _ := tr.p.in.Lookup(typ)
	if obj, err = tr.exprString(c, id); err != nil {
		return "", nil, nil, false, err
	}
	switch {
	case tt.Kind == types.KindHeader:
		for _, f := range tr.p.in.Fields(typ) {
			ft, _ := tr.p.in.Lookup(f.Type)
			if ft.Kind != types.KindBits {
				tr.p.bag.Add(diag.Errorf(diag.BackendUnsupportedType, t.Span(id),
					"field %s of type %s cannot be serialized", f.Name, tr.p.in.String(f.Type)))
				return "", nil, nil, false, nil
			}
			exprs = append(exprs, obj+"."+f.Name)
			widths = append(widths, int(ft.Width))
		}
		isHeader = true
	case tt.Kind == types.KindBits && allowScalar:
		exprs, widths = []string{obj}, []int{int(tt.Width)}
	default:
		tr.p.bag.Add(diag.Errorf(diag.BackendEmitNotHeader, t.Span(id),
			"argument of type %s is not a header", tr.p.in.String(typ)))
		return "", nil, nil, false, nil
	}
	for i, w := range widths {
		if w > MaxFieldWidth {
			tr.p.bag.Add(diag.Errorf(diag.BackendFieldTooWide, t.Span(id),
				"%s is %d bits wide; at most %d are supported", exprs[i], w, MaxFieldWidth))
			return "", nil, nil, false, nil
		}
	}
	return obj, exprs, widths, isHeader, nil
}

// emitPacket writes the arguments of packet_out.emit at the packet offset.
func (tr *translator) emitPacket(c *ir.Cursor, info callInfo) error {
	for _, arg := range info.args {
		obj, exprs, widths, isHeader, err := tr.headerFields(c, arg, true)
		if err != nil {
			return err
		}
		if exprs == nil {
			continue
		}
		if !tr.knownAlign(arg) {
			return nil
		}
		plan, err := PlanEmit(widths, tr.align)
		if err != nil {
			return ir.BugAt(arg, "emit layout: %v", err)
		}
		if isHeader {
			tr.b.EmitIndent()
			tr.b.Appendf("if (%s.%s) ", obj, validField)
			tr.b.BlockStart()
		}
		tr.boundsCheck(plan, "")
		for k, chunks := range plan.byteChunks() {
			if k == 0 && plan.Align > 0 {
				keep := (0xff << (8 - plan.Align)) & 0xff
				tr.b.Line("%s = load_byte(%s, BYTES(%s)) & 0x%02x;", byteVar, packetStartVar, offsetVar, keep)
			} else {
				tr.b.Line("%s = 0;", byteVar)
			}
			for _, ch := range chunks {
				tr.b.Line("%s |= %s;", byteVar, chunkStore(exprs[ch.Field], ch))
			}
			tr.b.Line("write_byte(%s, BYTES(%s) + %d, %s);", packetStartVar, offsetVar, k, byteVar)
		}
		tr.b.Line("%s += %d;", offsetVar, plan.Bits)
		if isHeader {
			tr.b.BlockEnd(true)
		}
		// An invalid header is skipped, so both offsets continue from here.
		next := (tr.align + plan.Bits) % 8
		if isHeader && next != tr.align {
			next = alignUnknown
		}
		tr.align = next
	}
	return nil
}

// knownAlign reports whether the bit offset of the packet is known here and
// records a diagnostic at id when it is not.
func (tr *translator) knownAlign(id ir.NodeID) bool {
	if tr.align != alignUnknown {
		return true
	}
	tr.p.bag.Add(diag.Errorf(diag.BackendEmitAlignment, tr.tree().Span(id),
		"packet offset is not byte-aligned the same way on every path reaching this point"))
	return false
}

// extract reads a header from the packet offset and marks it valid.
func (tr *translator) extract(c *ir.Cursor, info callInfo) error {
	if len(info.args) != 1 {
		return ir.BugAt(info.id, "extract takes 1 argument, got %d", len(info.args))
	}
	obj, exprs, widths, _, err := tr.headerFields(c, info.args[0], false)
	if err != nil || exprs == nil {
		return err
	}
	if !tr.knownAlign(info.args[0]) {
		return nil
	}
	plan, err := PlanEmit(widths, tr.align)
	if err != nil {
		return ir.BugAt(info.id, "extract layout: %v", err)
	}
	tr.boundsCheck(plan, tooShortError)
	started := make([]bool, len(widths))
	for _, ch := range plan.Chunks {
		load := chunkLoad(ch)
		dst := exprs[ch.Field]
		if !started[ch.Field] {
			started[ch.Field] = true
			tr.b.Line("%s = %s;", dst, load)
			continue
		}
		tr.b.Line("%s = (%s << %d) | %s;", dst, dst, ch.Bits, load)
	}
	tr.b.Line("%s.%s = 1;", obj, validField)
	tr.b.Line("%s += %d;", offsetVar, plan.Bits)
	tr.align = (tr.align + plan.Bits) % 8
	return nil
}

// boundsCheck rejects the packet when it ends before the plan does.
func (tr *translator) boundsCheck(plan EmitPlan, errorCode string) {
	tr.b.EmitIndent()
	tr.b.Appendf("if (%s < %s + BYTES_CEIL(%s + %d)) ", packetEndVar, packetStartVar, offsetVar, plan.Bits)
	tr.b.BlockStart()
	if errorCode != "" {
		tr.b.Line("%s = %s;", errorCodeVar, errorCode)
	}
	tr.b.Line("goto %s;", rejectLabel)
	tr.b.BlockEnd(true)
}

func chunkStore(value string, ch Chunk) string {
	v := value
	if ch.From > 0 {
		v = fmt.Sprintf("(%s >> %d)", v, ch.From)
	}
	s := fmt.Sprintf("(u8)(%s & 0x%x)", v, lowMask(ch.Bits))
	if ch.Shift > 0 {
		s = fmt.Sprintf("(%s << %d)", s, ch.Shift)
	}
	return s
}

func chunkLoad(ch Chunk) string {
	v := fmt.Sprintf("load_byte(%s, BYTES(%s) + %d)", packetStartVar, offsetVar, ch.Byte)
	if ch.Shift > 0 {
		v = fmt.Sprintf("(%s >> %d)", v, ch.Shift)
	}
	return fmt.Sprintf("(%s & 0x%x)", v, lowMask(ch.Bits))
}
