package sema

import (
	"kestrel/internal/diag"
	"kestrel/internal/ir"
)

type scope struct {
	names map[string]ir.NodeID
}

func (c *checker) pushScope() {
	c.scopes = append(c.scopes, scope{names: make(map[string]ir.NodeID)})
}

func (c *checker) popScope() {
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// declare binds name in the innermost scope. Re-declaring the same node is a
// no-op so locals can be bound ahead of the walk.
func (c *checker) declare(name string, decl ir.NodeID) {
	if name == "" || len(c.scopes) == 0 {
		return
	}
	top := c.scopes[len(c.scopes)-1].names
	if prev, ok := top[name]; ok {
		if prev != decl {
			c.bag.Add(diag.Errorf(diag.SemaDuplicateName, c.t.Span(decl), "%q is already declared", name).
				WithNote(c.t.Span(prev), "previous declaration"))
		}
		return
	}
	top[name] = decl
	if len(c.owners) > 0 {
		c.qual[decl] = c.owners[len(c.owners)-1] + "." + name
	} else {
		c.qual[decl] = name
	}
}

func (c *checker) lookup(name string) (ir.NodeID, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if d, ok := c.scopes[i].names[name]; ok {
			return d, true
		}
	}
	return ir.NoNodeID, false
}

// qualified returns the owner-qualified name of a declaration, which keeps
// tables and actions of different controls apart in the interner.
func (c *checker) qualified(decl ir.NodeID) string {
	if q, ok := c.qual[decl]; ok {
		return q
	}
	return c.t.Name(decl)
}
