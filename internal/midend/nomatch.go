package midend

import (
	"context"
	"slices"

	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/sema"
)

// NoMatchError is the error member signalled when no select case matches.
const NoMatchError = "NoMatch"

// HandleNoMatch gives every select without a default case a default
// transition to a generated state that signals error.NoMatch and rejects.
// Each parser needing one gets its own state.
func HandleNoMatch() Pass {
	return NewPass("HandleNoMatch", func(_ context.Context, u *Unit) error {
		b := u.Builder()
		var (
			state ir.NodeID // generated for the parser being rewritten
			added int
		)
		tr := ir.NewTransform("HandleNoMatch")
		tr.Post(ir.KindSelectExpr, func(r *ir.Rewriter, orig, cur ir.NodeID) (ir.NodeID, error) {
			sel := ir.Get[ir.SelectExpr](u.Tree, cur)
			for _, c := range sel.Cases {
				if u.Tree.Kind(ir.Get[ir.SelectCase](u.Tree, c).Keyset) == ir.KindDefaultExpr {
					return cur, nil
				}
			}
			sb := b.At(u.Tree.Span(orig))
			if !state.IsValid() {
				verify := sb.Call(sb.Path(sema.VerifyName), sb.Bool(false), sb.Member(sb.Path(sema.ErrorName), NoMatchError))
				state = sb.State(u.Names.NewName("noMatch"), sb.Path(sema.StateReject), sb.Do(verify))
			}
			sel.Cases = slices.Concat(sel.Cases, []ir.NodeID{sb.SelectCase(sb.Default(), u.Tree.Name(state))})
			added++
			return u.Tree.Add(u.Tree.Span(cur), sel), nil
		})
		tr.Post(ir.KindParser, func(r *ir.Rewriter, _, cur ir.NodeID) (ir.NodeID, error) {
			if !state.IsValid() {
				return cur, nil
			}
			p := ir.Get[ir.Parser](u.Tree, cur)
			p.States = slices.Concat(p.States, []ir.NodeID{state})
			state = ir.NoNodeID
			return u.Tree.Add(u.Tree.Span(cur), p), nil
		})
		tr.Post(ir.KindProgram, func(r *ir.Rewriter, _, cur ir.NodeID) (ir.NodeID, error) {
			if added == 0 {
				return cur, nil
			}
			return ensureErrorMember(u, cur, NoMatchError), nil
		})

		root, err := tr.Apply(u.Tree, u.Root)
		if err != nil {
			return err
		}
		if state.IsValid() {
			return ir.Bugf("noMatch state generated outside a parser")
		}
		u.Root = root
		return nil
	})
}

// ensureErrorMember returns prog with member declared in its first error
// declaration, adding one when the program has none.
func ensureErrorMember(u *Unit, prog ir.NodeID, member string) ir.NodeID {
	p := ir.Get[ir.Program](u.Tree, prog)
	for i, d := range p.Decls {
		ed, ok := ir.As[ir.ErrorDecl](u.Tree, d)
		if !ok {
			continue
		}
		if slices.Contains(ed.Members, member) {
			return prog
		}
		ed.Members = slices.Concat(ed.Members, []string{member})
		p.Decls = slices.Clone(p.Decls)
		p.Decls[i] = u.Tree.Add(u.Tree.Span(d), ed)
		return u.Tree.Add(u.Tree.Span(prog), p)
	}
	u.Bag.Add(diag.Warningf(diag.MidNoErrorDecl, u.Tree.Span(prog),
		"program declares no error type; declaring error { %s }", member))
	decl := u.Builder().At(u.Tree.Span(prog)).Errors(member)
	p.Decls = slices.Concat([]ir.NodeID{decl}, p.Decls)
	return u.Tree.Add(u.Tree.Span(prog), p)
}
