// Package sema resolves names and types of a program tree.
//
// The results are two side tables keyed by NodeID: a RefMap from references
// to the declarations they name and a TypeMap from nodes to canonical
// TypeIDs. Passes read them; a pass that rewrites types must clear the
// TypeMap and have the program checked again.
package sema

import (
	"kestrel/internal/ir"
	"kestrel/internal/types"
)

// RefMap maps Path nodes (and Member nodes naming extern methods) to the
// declaration they resolve to.
type RefMap struct {
	m map[ir.NodeID]ir.NodeID
}

func NewRefMap() *RefMap {
	return &RefMap{m: make(map[ir.NodeID]ir.NodeID)}
}

// Decl returns the declaration referenced by id.
func (r *RefMap) Decl(id ir.NodeID) (ir.NodeID, bool) {
	if r == nil {
		return ir.NoNodeID, false
	}
	d, ok := r.m[id]
	return d, ok
}

func (r *RefMap) Set(ref, decl ir.NodeID) { r.m[ref] = decl }
func (r *RefMap) Len() int                { return len(r.m) }

// TypeMap maps nodes to their canonical type.
type TypeMap struct {
	m map[ir.NodeID]types.TypeID
}

func NewTypeMap() *TypeMap {
	return &TypeMap{m: make(map[ir.NodeID]types.TypeID)}
}

// Get returns the type of id.
func (tm *TypeMap) Get(id ir.NodeID) (types.TypeID, bool) {
	if tm == nil {
		return types.NoTypeID, false
	}
	t, ok := tm.m[id]
	return t, ok
}

// Type returns the type of id, NoTypeID when unknown.
func (tm *TypeMap) Type(id ir.NodeID) types.TypeID {
	t, _ := tm.Get(id)
	return t
}

func (tm *TypeMap) Set(id ir.NodeID, t types.TypeID) {
	if t == types.NoTypeID {
		return
	}
	tm.m[id] = t
}

func (tm *TypeMap) Len() int {
	if tm == nil {
		return 0
	}
	return len(tm.m)
}

// Clear drops every entry.
func (tm *TypeMap) Clear() {
	clear(tm.m)
}
