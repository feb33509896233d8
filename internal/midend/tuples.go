package midend

import (
	"context"
	"slices"
	"strconv"

	"kestrel/internal/ir"
	"kestrel/internal/source"
	"kestrel/internal/trace"
	"kestrel/internal/types"
)

// replacement is the struct generated for one tuple shape.
type replacement struct {
	name string
	decl ir.NodeID // StructDecl
	ref  ir.NodeID // TypeName naming the struct, shared by every use
}

// ReplacementCache maps canonical tuple types to generated structs and
// queues the struct declarations until a flush point inserts them.
type ReplacementCache struct {
	u        *Unit
	b        *ir.Builder
	byType   map[types.TypeID]*replacement
	pending  []ir.NodeID
	inserted map[ir.NodeID]struct{}
}

// NewReplacementCache returns an empty cache for one pass run.
func NewReplacementCache(u *Unit) *ReplacementCache {
	return &ReplacementCache{
		u:        u,
		b:        u.Builder(),
		byType:   make(map[types.TypeID]*replacement),
		inserted: make(map[ir.NodeID]struct{}),
	}
}

// Replacement returns the TypeName of the struct replacing the tuple type
// tuple, generating the struct on first request. Component tuples are
// replaced first, so their structs are queued ahead of the outer one.
func (rc *ReplacementCache) Replacement(tuple types.TypeID, span source.Span) (ir.NodeID, error) {
	if r, ok := rc.byType[tuple]; ok {
		return r.ref, nil
	}
	info, ok := rc.u.Interner.TupleInfo(tuple)
	if !ok {
		return ir.NoNodeID, ir.Bugf("replacement requested for non-tuple type %s", rc.u.Interner.String(tuple))
	}
	b := rc.b.At(span)
	fields := make([]ir.NodeID, len(info.Elems))
	for i, elem := range info.Elems {
		typ, err := rc.typeNode(elem, span)
		if err != nil {
			return ir.NoNodeID, err
		}
		fields[i] = b.Field("field_"+strconv.Itoa(i), typ)
	}
	name := rc.u.Names.NewName("tuple")
	r := &replacement{
		name: name,
		decl: b.Struct(name, fields...),
		ref:  b.TypeName(name),
	}
	rc.byType[tuple] = r
	rc.pending = append(rc.pending, r.decl)
	return r.ref, nil
}

// typeNode builds a type node denoting t.
func (rc *ReplacementCache) typeNode(t types.TypeID, span source.Span) (ir.NodeID, error) {
	b := rc.b.At(span)
	tt, ok := rc.u.Interner.Lookup(t)
	if !ok {
		return ir.NoNodeID, ir.Bugf("tuple component without a type")
	}
	switch tt.Kind {
	case types.KindBool:
		return b.BoolType(), nil
	case types.KindError:
		return b.ErrorType(), nil
	case types.KindBits:
		if tt.Signed {
			return b.SInt(int(tt.Width)), nil
		}
		return b.Bits(int(tt.Width)), nil
	case types.KindTuple:
		return rc.Replacement(t, span)
	case types.KindStruct, types.KindHeader, types.KindExtern:
		info, _ := rc.u.Interner.NominalInfo(t)
		return b.TypeName(info.Name), nil
	}
	return ir.NoNodeID, ir.Bugf("tuple component of kind %s has no type syntax", tt.Kind)
}

// InsertReplacements returns before preceded by every queued declaration,
// as a splice, and empties the queue. With nothing queued it returns before.
func (rc *ReplacementCache) InsertReplacements(r *ir.Rewriter, before ir.NodeID) ir.NodeID {
	if len(rc.pending) == 0 {
		return before
	}
	items := slices.Concat(rc.pending, []ir.NodeID{before})
	for _, d := range rc.pending {
		rc.inserted[d] = struct{}{}
	}
	rc.pending = rc.pending[:0]
	return r.Splice(items...)
}

// Generated returns how many structs the cache created.
func (rc *ReplacementCache) Generated() int {
	return len(rc.byType)
}

// topLevel lists the declarations that can precede a generated struct.
var topLevel = []ir.Kind{
	ir.KindStructDecl, ir.KindHeaderDecl, ir.KindTypedef, ir.KindErrorDecl,
	ir.KindExternDecl, ir.KindMethodDecl, ir.KindInstance, ir.KindConst,
	ir.KindVar, ir.KindParser, ir.KindControl, ir.KindAction,
}

// DoReplaceTuples replaces every tuple type by a generated struct. It needs
// an up-to-date TypeMap and leaves it stale.
func DoReplaceTuples() Pass {
	return NewPass("DoReplaceTuples", func(ctx context.Context, u *Unit) error {
		rc := NewReplacementCache(u)
		tr := ir.NewTransform("DoReplaceTuples")
		tr.Post(ir.KindTypeTuple, func(r *ir.Rewriter, orig, _ ir.NodeID) (ir.NodeID, error) {
			tid, ok := u.TypeMap.Get(orig)
			if !ok {
				return ir.NoNodeID, ir.BugAt(orig, "tuple type missing from the type map")
			}
			return rc.Replacement(tid, u.Tree.Span(orig))
		})
		flush := func(r *ir.Rewriter, _, cur ir.NodeID) (ir.NodeID, error) {
			if r.Depth() != 1 {
				return cur, nil
			}
			return rc.InsertReplacements(r, cur), nil
		}
		for _, k := range topLevel {
			tr.Post(k, flush)
		}

		root, err := tr.Apply(u.Tree, u.Root)
		if err != nil {
			return err
		}
		if len(rc.pending) > 0 {
			return ir.Bugf("%d generated declarations were never inserted", len(rc.pending))
		}
		u.Root = root
		trace.Point(trace.FromContext(ctx), trace.ScopeNode, "generated structs",
			strconv.Itoa(rc.Generated()), trace.CurrentSpan(ctx).SpanID)
		return nil
	})
}

// EliminateTuples replaces tuple types by structs: the type map is rebuilt
// before the rewrite and invalidated after it.
func EliminateTuples() *PassManager {
	return NewPassManager("EliminateTuples", TypeCheck(), DoReplaceTuples(), ClearTypeMap())
}
