package ir

// TransformPreFunc runs before children are rewritten. It returns the node
// to continue with (id itself for no change) and whether to descend.
type TransformPreFunc func(r *Rewriter, id NodeID) (NodeID, bool, error)

// TransformPostFunc runs after children are rewritten. orig is the node as
// found in the input, cur the node rebuilt with rewritten children (equal
// to orig when nothing below changed). The result replaces orig:
//   - cur: keep;
//   - another ID: rewrite;
//   - NoNodeID: delete, only in list or optional slots;
//   - a Seq node: splice its items, only in list slots.
type TransformPostFunc func(r *Rewriter, orig, cur NodeID) (NodeID, error)

// Transform is a tree-producing traversal driven by per-kind hooks.
// Results are assembled bottom-up and memoized per input node, so a shared
// sub-tree is rewritten once per run.
type Transform struct {
	name string
	pre  [kindCount]TransformPreFunc
	post [kindCount]TransformPostFunc
}

// NewTransform returns a transform with no hooks.
func NewTransform(name string) *Transform {
	return &Transform{name: name}
}

func (tr *Transform) Name() string { return tr.name }

// Pre installs the pre-order hook for kind.
func (tr *Transform) Pre(kind Kind, fn TransformPreFunc) *Transform {
	tr.pre[kind] = fn
	return tr
}

// Post installs the post-order hook for kind.
func (tr *Transform) Post(kind Kind, fn TransformPostFunc) *Transform {
	tr.post[kind] = fn
	return tr
}

// Apply rewrites the tree rooted at root and returns the new root. When no
// hook changes anything the original root is returned and the arena does
// not grow.
func (tr *Transform) Apply(t *Tree, root NodeID) (NodeID, error) {
	r := &Rewriter{tree: t, tr: tr, memo: make(map[NodeID]NodeID)}
	out, err := r.rewrite(root)
	if err != nil {
		return NoNodeID, err
	}
	if !out.IsValid() {
		return NoNodeID, BugAt(root, "%s: root deleted", tr.name)
	}
	if t.Kind(out) == KindSeq {
		return NoNodeID, BugAt(root, "%s: root replaced by a splice", tr.name)
	}
	return out, nil
}

// Rewriter is the traversal state handed to transform hooks.
type Rewriter struct {
	tree  *Tree
	tr    *Transform
	memo  map[NodeID]NodeID
	stack []NodeID
}

// Tree returns the tree being rewritten.
func (r *Rewriter) Tree() *Tree { return r.tree }

// Parent returns the input ID of the parent of the node being rewritten.
func (r *Rewriter) Parent() NodeID {
	if len(r.stack) < 2 {
		return NoNodeID
	}
	return r.stack[len(r.stack)-2]
}

// Depth is the number of ancestors of the node being rewritten.
func (r *Rewriter) Depth() int {
	if len(r.stack) == 0 {
		return 0
	}
	return len(r.stack) - 1
}

// Splice returns a Seq node holding items, for use as a hook result.
func (r *Rewriter) Splice(items ...NodeID) NodeID {
	if len(items) == 0 {
		return NoNodeID
	}
	return r.tree.Add(r.tree.Span(items[len(items)-1]), Seq{Items: items})
}

func (r *Rewriter) rewrite(id NodeID) (NodeID, error) {
	if !id.IsValid() {
		return NoNodeID, nil
	}
	if res, ok := r.memo[id]; ok {
		return res, nil
	}
	n := r.tree.Node(id)
	if n == nil {
		return NoNodeID, Bugf("%s: rewrite of unknown node %d", r.tr.name, id)
	}
	if n.Kind == KindInvalid || n.Kind >= kindCount {
		return NoNodeID, BugAt(id, "%s: node with invalid kind %s", r.tr.name, n.Kind)
	}

	r.stack = append(r.stack, id)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	cur := id
	if pre := r.tr.pre[n.Kind]; pre != nil {
		next, descend, err := pre(r, id)
		if err != nil {
			return NoNodeID, err
		}
		if !descend || !next.IsValid() {
			r.memo[id] = next
			return next, nil
		}
		cur = next
	}

	rebuilt, err := r.rebuild(cur)
	if err != nil {
		return NoNodeID, err
	}
	cur = rebuilt

	if post := r.tr.post[r.tree.Kind(cur)]; post != nil {
		if cur, err = post(r, id, cur); err != nil {
			return NoNodeID, err
		}
	}
	r.memo[id] = cur
	return cur, nil
}

// rebuild rewrites the children of id and returns id itself when none of
// them changed, otherwise a new node with the rewritten children.
func (r *Rewriter) rebuild(id NodeID) (NodeID, error) {
	n := r.tree.Node(id)
	slots := n.Data.slots()
	if len(slots) == 0 {
		return id, nil
	}
	next := make([]slot, len(slots))
	changed := false
	for i, s := range slots {
		if s.isList {
			items, listChanged, err := r.rewriteList(s.list)
			if err != nil {
				return NoNodeID, err
			}
			changed = changed || listChanged
			next[i] = slot{list: items, isList: true}
			continue
		}
		next[i] = s
		if !s.id.IsValid() {
			continue
		}
		res, err := r.rewrite(s.id)
		if err != nil {
			return NoNodeID, err
		}
		switch {
		case !res.IsValid() && !s.optional:
			return NoNodeID, BugAt(id, "%s: deleted a required child of %s", r.tr.name, n.Kind)
		case r.tree.Kind(res) == KindSeq:
			return NoNodeID, BugAt(id, "%s: splice into a single child of %s", r.tr.name, n.Kind)
		}
		if res != s.id {
			changed = true
			next[i].id = res
		}
	}
	if !changed {
		return id, nil
	}
	return r.tree.Add(n.Span, n.Data.withSlots(next)), nil
}

func (r *Rewriter) rewriteList(in []NodeID) ([]NodeID, bool, error) {
	out := make([]NodeID, 0, len(in))
	changed := false
	for _, el := range in {
		res, err := r.rewrite(el)
		if err != nil {
			return nil, false, err
		}
		if res != el {
			changed = true
		}
		out = r.appendFlat(out, res)
	}
	if !changed {
		return in, false, nil
	}
	return out, true, nil
}

// appendFlat appends id to out, inlining nested splices and dropping
// deleted entries.
func (r *Rewriter) appendFlat(out []NodeID, id NodeID) []NodeID {
	if !id.IsValid() {
		return out
	}
	if seq, ok := r.tree.Data(id).(Seq); ok {
		for _, item := range seq.Items {
			out = r.appendFlat(out, item)
		}
		return out
	}
	return append(out, id)
}
