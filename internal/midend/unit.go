// Package midend holds the target-independent passes run between the front
// end and a backend, and the pass manager that sequences them.
package midend

import (
	"kestrel/internal/diag"
	"kestrel/internal/ir"
	"kestrel/internal/observ"
	"kestrel/internal/sema"
	"kestrel/internal/types"
)

// Unit is the state passes share while compiling one program.
type Unit struct {
	Name     string // input name, used for dump files
	Tree     *ir.Tree
	Root     ir.NodeID
	Refs     *sema.RefMap
	TypeMap  *sema.TypeMap
	Returns  map[ir.NodeID]types.TypeID
	Names    *ir.NameGen
	Interner *types.Interner
	Bag      *diag.Bag
	Timer    *observ.Timer // optional
}

// NewUnit wraps a decoded program. Every name already in the tree is
// reserved in the unit's name generator.
func NewUnit(name string, t *ir.Tree, root ir.NodeID, bag *diag.Bag) (*Unit, error) {
	if bag == nil {
		bag = diag.NewBag(100)
	}
	u := &Unit{
		Name:     name,
		Tree:     t,
		Root:     root,
		Refs:     sema.NewRefMap(),
		TypeMap:  sema.NewTypeMap(),
		Returns:  make(map[ir.NodeID]types.TypeID),
		Names:    ir.NewNameGen(),
		Interner: types.NewInterner(),
		Bag:      bag,
	}
	if err := u.Names.ReserveTree(t, root); err != nil {
		return nil, err
	}
	return u, nil
}

// Builder returns a node builder on the unit's tree.
func (u *Unit) Builder() *ir.Builder {
	return ir.NewBuilder(u.Tree)
}
