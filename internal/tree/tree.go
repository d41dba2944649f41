// Package tree holds the in-memory node hierarchy a privacy wizard
// edits: every node carries the visibility it had when the wizard
// opened and the visibility the user proposes to give it.
package tree

import (
	"sort"

	"visor/internal/domain"
)

// node lives in a flat arena; children are arena indices. Index-based
// references keep traversal iterative and make cycle detection a
// visited-set check instead of a recursion-depth gamble.
type node struct {
	id       string
	title    string
	depth    int
	original bool
	proposed bool
	children []int
}

// Tree is the single-owner, single-writer selection state for one open
// wizard. Nodes are stored in pre-order; the root is index 0.
type Tree struct {
	nodes []node
	index map[string]int
	gen   uint64
}

// Build constructs the arena from a flat id mapping. It fails with
// *domain.MalformedTreeError when the root is missing, a child id
// resolves to no node, a node is referenced as a child twice (which
// includes cycles), a parent_id disagrees with the traversal, or a
// node is unreachable from the root.
func Build(src domain.TreeSource) (*Tree, error) {
	if src.RootID == "" {
		return nil, &domain.MalformedTreeError{Reason: "root id is required"}
	}
	root, ok := src.Nodes[src.RootID]
	if !ok {
		return nil, &domain.MalformedTreeError{NodeID: src.RootID, Reason: "root node is not present"}
	}
	if root.ParentID != "" {
		return nil, &domain.MalformedTreeError{NodeID: src.RootID, Reason: "root node must not declare a parent"}
	}

	t := &Tree{
		nodes: make([]node, 0, len(src.Nodes)),
		index: make(map[string]int, len(src.Nodes)),
	}

	type frame struct {
		id     string
		parent int // arena index of parent, -1 for root
		depth  int
	}

	stack := []frame{{id: src.RootID, parent: -1, depth: 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		raw, ok := src.Nodes[f.id]
		if !ok {
			return nil, &domain.MalformedTreeError{NodeID: f.id, Reason: "referenced child does not exist"}
		}
		if _, seen := t.index[f.id]; seen {
			return nil, &domain.MalformedTreeError{NodeID: f.id, Reason: "referenced as a child more than once (duplicate or cycle)"}
		}
		if f.parent >= 0 && raw.ParentID != t.nodes[f.parent].id {
			return nil, &domain.MalformedTreeError{NodeID: f.id, Reason: "parent_id does not match the node that references it"}
		}

		idx := len(t.nodes)
		t.index[f.id] = idx
		t.nodes = append(t.nodes, node{
			id:       f.id,
			title:    raw.Title,
			depth:    f.depth,
			original: raw.Public,
			proposed: raw.Public,
		})
		if f.parent >= 0 {
			t.nodes[f.parent].children = append(t.nodes[f.parent].children, idx)
		}

		// Reverse push keeps the declared child order in pre-order.
		for i := len(raw.ChildIDs) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: raw.ChildIDs[i], parent: idx, depth: f.depth + 1})
		}
	}

	if len(t.index) != len(src.Nodes) {
		return nil, &domain.MalformedTreeError{NodeID: firstUnreachable(src, t.index), Reason: "node is unreachable from the root"}
	}

	return t, nil
}

func firstUnreachable(src domain.TreeSource, index map[string]int) string {
	ids := make([]string, 0, len(src.Nodes))
	for id := range src.Nodes {
		if _, ok := index[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

// Walk visits every node in deterministic pre-order (parent before
// children, children in declared order). Traversal stops early when
// visit returns false. The arena is already laid out in pre-order, so
// the walk is a slice scan and trivially restartable.
func (t *Tree) Walk(visit func(domain.NodeView) bool) {
	if t == nil {
		return
	}
	for i := range t.nodes {
		if !visit(t.view(i)) {
			return
		}
	}
}

// Reset restores every node's proposed visibility to its original
// value and invalidates derived state.
func (t *Tree) Reset() {
	for i := range t.nodes {
		t.nodes[i].proposed = t.nodes[i].original
	}
	t.gen++
}

// SelectAll proposes the same visibility for every node. Idempotent.
func (t *Tree) SelectAll(makePublic bool) {
	for i := range t.nodes {
		t.nodes[i].proposed = makePublic
	}
	t.gen++
}

// SetNode proposes a visibility for exactly one node. It never
// cascades to children or parents; each node's visibility is
// independent. A missing id leaves the tree untouched and returns
// *domain.NodeNotFoundError.
func (t *Tree) SetNode(id string, makePublic bool) error {
	idx, ok := t.index[id]
	if !ok {
		return &domain.NodeNotFoundError{ID: id}
	}
	t.nodes[idx].proposed = makePublic
	t.gen++
	return nil
}

// Nodes returns the pre-order view snapshot for rendering.
func (t *Tree) Nodes() []domain.NodeView {
	if t == nil {
		return nil
	}
	out := make([]domain.NodeView, len(t.nodes))
	for i := range t.nodes {
		out[i] = t.view(i)
	}
	return out
}

// Changes returns the ordered proposed-state snapshot handed to a
// commit sink. For a childless tree this is the root entry alone.
func (t *Tree) Changes() []domain.NodeVisibility {
	out := make([]domain.NodeVisibility, len(t.nodes))
	for i, n := range t.nodes {
		out[i] = domain.NodeVisibility{ID: n.id, Public: n.proposed}
	}
	return out
}

func (t *Tree) HasChildren() bool {
	return t != nil && len(t.nodes) > 0 && len(t.nodes[0].children) > 0
}

func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	return len(t.nodes)
}

func (t *Tree) RootID() string {
	if t == nil || len(t.nodes) == 0 {
		return ""
	}
	return t.nodes[0].id
}

// Generation increments on every mutation; cached derived state (for
// example a wizard's DiffResult) is stale once it moves.
func (t *Tree) Generation() uint64 {
	if t == nil {
		return 0
	}
	return t.gen
}

func (t *Tree) view(i int) domain.NodeView {
	n := t.nodes[i]
	return domain.NodeView{
		ID:       n.id,
		Title:    n.title,
		Depth:    n.depth,
		Original: n.original,
		Proposed: n.proposed,
	}
}
