package ir

import (
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// NameGen hands out identifiers that collide with no name already used in
// the program. Names are compared after NFC normalization.
type NameGen struct {
	used map[string]struct{}
	next map[string]int
}

// NewNameGen returns a generator with no reserved names.
func NewNameGen() *NameGen {
	return &NameGen{
		used: make(map[string]struct{}),
		next: make(map[string]int),
	}
}

// Reserve marks name as taken.
func (g *NameGen) Reserve(name string) {
	if name == "" {
		return
	}
	g.used[norm.NFC.String(name)] = struct{}{}
}

// Used reports whether name is taken.
func (g *NameGen) Used(name string) bool {
	_, ok := g.used[norm.NFC.String(name)]
	return ok
}

// ReserveTree reserves every name declared or referenced under root.
func (g *NameGen) ReserveTree(t *Tree, root NodeID) error {
	return NewInspector("reserve-names").
		VisitDagOnce(true).
		Fallback(func(c *Cursor, id NodeID) (bool, error) {
			g.Reserve(t.Name(id))
			switch d := t.Data(id).(type) {
			case Member:
				g.Reserve(d.Name)
			case ErrorDecl:
				for _, m := range d.Members {
					g.Reserve(m)
				}
			}
			return true, nil
		}).
		Apply(t, root)
}

// NewName returns base_N for the smallest N not yet handed out for base that
// is not taken, and reserves it.
func (g *NameGen) NewName(base string) string {
	base = norm.NFC.String(base)
	for {
		n := g.next[base]
		g.next[base] = n + 1
		name := base + "_" + strconv.Itoa(n)
		if _, taken := g.used[name]; !taken {
			g.used[name] = struct{}{}
			return name
		}
	}
}
