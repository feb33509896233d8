package ir

// PreFunc runs before the children of a node; returning false skips them
// (and the post-order hook of the same node).
type PreFunc func(c *Cursor, id NodeID) (bool, error)

// PostFunc runs after the children of a node.
type PostFunc func(c *Cursor, id NodeID) error

// Inspector is a read-only traversal driven by per-kind hooks. Kinds without
// a pre hook are descended into.
type Inspector struct {
	name     string
	pre      [kindCount]PreFunc
	post     [kindCount]PostFunc
	dagOnce  bool
	fallback PreFunc
}

// NewInspector returns an inspector with no hooks.
func NewInspector(name string) *Inspector {
	return &Inspector{name: name}
}

func (in *Inspector) Name() string { return in.name }

// Pre installs the pre-order hook for kind.
func (in *Inspector) Pre(kind Kind, fn PreFunc) *Inspector {
	in.pre[kind] = fn
	return in
}

// Post installs the post-order hook for kind.
func (in *Inspector) Post(kind Kind, fn PostFunc) *Inspector {
	in.post[kind] = fn
	return in
}

// Fallback installs the pre-order hook used for kinds without their own.
// Emitters use it to reject kinds they do not lower.
func (in *Inspector) Fallback(fn PreFunc) *Inspector {
	in.fallback = fn
	return in
}

// VisitDagOnce makes the inspector skip nodes it has already seen.
func (in *Inspector) VisitDagOnce(on bool) *Inspector {
	in.dagOnce = on
	return in
}

// Apply walks the tree rooted at root.
func (in *Inspector) Apply(t *Tree, root NodeID) error {
	c := &Cursor{tree: t, insp: in}
	if in.dagOnce {
		c.seen = make(map[NodeID]struct{})
	}
	return c.Visit(root)
}

// Cursor is the traversal state handed to inspector hooks.
type Cursor struct {
	tree  *Tree
	insp  *Inspector
	stack []NodeID
	seen  map[NodeID]struct{}
}

// Tree returns the tree being walked.
func (c *Cursor) Tree() *Tree { return c.tree }

// Parent returns the parent of the node whose hook is running.
func (c *Cursor) Parent() NodeID {
	if len(c.stack) < 2 {
		return NoNodeID
	}
	return c.stack[len(c.stack)-2]
}

// Depth is the number of ancestors of the node whose hook is running.
func (c *Cursor) Depth() int {
	if len(c.stack) == 0 {
		return 0
	}
	return len(c.stack) - 1
}

// Visit walks the sub-tree rooted at id with the same hooks. Hooks call it
// to control the order in which children are visited.
func (c *Cursor) Visit(id NodeID) error {
	if !id.IsValid() {
		return nil
	}
	n := c.tree.Node(id)
	if n == nil {
		return Bugf("visit of unknown node %d", id)
	}
	if n.Kind == KindInvalid || n.Kind >= kindCount {
		return BugAt(id, "visit of node with invalid kind %s", n.Kind)
	}
	if c.seen != nil {
		if _, ok := c.seen[id]; ok {
			return nil
		}
		c.seen[id] = struct{}{}
	}

	c.stack = append(c.stack, id)
	defer func() { c.stack = c.stack[:len(c.stack)-1] }()

	descend := true
	pre := c.insp.pre[n.Kind]
	if pre == nil {
		pre = c.insp.fallback
	}
	if pre != nil {
		var err error
		if descend, err = pre(c, id); err != nil {
			return err
		}
	}
	if !descend {
		return nil
	}
	for _, child := range c.tree.Children(id) {
		if err := c.Visit(child); err != nil {
			return err
		}
	}
	if post := c.insp.post[n.Kind]; post != nil {
		return post(c, id)
	}
	return nil
}
