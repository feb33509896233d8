package midend

import (
	"context"

	"kestrel/internal/sema"
)

// TypeCheck recomputes the unit's RefMap and TypeMap. It fails when the
// program has errors.
func TypeCheck() Pass {
	return NewPass("TypeCheck", func(_ context.Context, u *Unit) error {
		res, err := sema.Check(u.Tree, u.Root, sema.Options{Bag: u.Bag, Types: u.Interner})
		if err != nil {
			return err
		}
		u.Refs, u.TypeMap, u.Returns = res.Refs, res.Types, res.Returns
		return u.Bag.Err()
	})
}

// ClearTypeMap drops the TypeMap after a pass that made it stale.
func ClearTypeMap() Pass {
	return NewPass("ClearTypeMap", func(_ context.Context, u *Unit) error {
		u.TypeMap.Clear()
		return nil
	})
}
