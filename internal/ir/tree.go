package ir

import (
	"fmt"

	"fortio.org/safecast"

	"kestrel/internal/source"
)

// Tree is the node arena. Slot 0 is reserved for NoNodeID.
type Tree struct {
	nodes []Node
	Files source.Files
}

// NewTree returns an empty arena.
func NewTree() *Tree {
	return &Tree{nodes: make([]Node, 1, 256)}
}

// Add appends a node and returns its ID.
func (t *Tree) Add(span source.Span, data Data) NodeID {
	if data == nil {
		panic("ir: nil node data")
	}
	n, err := safecast.Conv[uint32](len(t.nodes))
	if err != nil {
		panic(fmt.Errorf("ir: arena overflow: %w", err))
	}
	t.nodes = append(t.nodes, Node{Kind: data.Kind(), Span: span, Data: data})
	return NodeID(n)
}

// Len returns the number of arena slots, the reserved one included.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the node for id, or nil when id is out of range.
func (t *Tree) Node(id NodeID) *Node {
	if id == NoNodeID || int(id) >= len(t.nodes) {
		return nil
	}
	return &t.nodes[id]
}

// Kind returns the kind of id, KindInvalid when absent.
func (t *Tree) Kind(id NodeID) Kind {
	if n := t.Node(id); n != nil {
		return n.Kind
	}
	return KindInvalid
}

// Span returns the span of id.
func (t *Tree) Span(id NodeID) source.Span {
	if n := t.Node(id); n != nil {
		return n.Span
	}
	return source.Span{}
}

// Data returns the payload of id, nil when absent.
func (t *Tree) Data(id NodeID) Data {
	if n := t.Node(id); n != nil {
		return n.Data
	}
	return nil
}

// Children returns the children of id in visiting order; absent optional
// children are skipped.
func (t *Tree) Children(id NodeID) []NodeID {
	n := t.Node(id)
	if n == nil {
		return nil
	}
	var out []NodeID
	for _, s := range n.Data.slots() {
		if s.isList {
			out = append(out, s.list...)
			continue
		}
		if s.id.IsValid() {
			out = append(out, s.id)
		}
	}
	return out
}

// As returns the payload of id as T.
func As[T Data](t *Tree, id NodeID) (T, bool) {
	d, ok := t.Data(id).(T)
	return d, ok
}

// MustAs returns the payload of id as T or an InternalError.
func MustAs[T Data](t *Tree, id NodeID) (T, error) {
	d, ok := t.Data(id).(T)
	if !ok {
		var zero T
		return zero, BugAt(id, "expected %s, found %s", zero.Kind(), t.Kind(id))
	}
	return d, nil
}

// Name returns the declared name of a declaration node, "" otherwise.
func (t *Tree) Name(id NodeID) string {
	switch d := t.Data(id).(type) {
	case StructDecl:
		return d.Name
	case HeaderDecl:
		return d.Name
	case Field:
		return d.Name
	case Typedef:
		return d.Name
	case ExternDecl:
		return d.Name
	case MethodDecl:
		return d.Name
	case Instance:
		return d.Name
	case Const:
		return d.Name
	case Var:
		return d.Name
	case Param:
		return d.Name
	case Parser:
		return d.Name
	case ParserState:
		return d.Name
	case Control:
		return d.Name
	case Action:
		return d.Name
	case Table:
		return d.Name
	case Path:
		return d.Name
	case TypeName:
		return d.Name
	}
	return ""
}

// Get returns the payload of id as T, or the zero T on a kind mismatch.
func Get[T Data](t *Tree, id NodeID) T {
	d, _ := t.Data(id).(T)
	return d
}
