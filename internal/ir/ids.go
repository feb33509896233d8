// Package ir is the program tree shared by the midend and the backends.
//
// Nodes live in a Tree arena and are addressed by NodeID. A node is never
// modified after it is added: rewriting a node means adding a new one and
// handing out its ID. Sub-trees can be shared by several parents, which only
// requires two parents to hold the same NodeID.
//
// Traversals come in two flavours. An Inspector walks the tree read-only
// with pre/post hooks per node kind. A Transform rebuilds the tree bottom-up,
// letting post-order hooks replace, delete or splice nodes.
package ir

// NodeID identifies a node inside a Tree.
type NodeID uint32

// NoNodeID is the zero sentinel: absent child, deleted node.
const NoNodeID NodeID = 0

// IsValid returns true if the ID is valid (non-zero).
func (id NodeID) IsValid() bool { return id != NoNodeID }
