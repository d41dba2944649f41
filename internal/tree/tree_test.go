package tree

import (
	"errors"
	"testing"

	"visor/internal/domain"
)

// testSource is a three-level tree:
//
//	root (private)
//	├── analysis (public)
//	│   └── scripts (private)
//	└── data (private)
func testSource() domain.TreeSource {
	return domain.TreeSource{
		RootID: "root",
		Nodes: map[string]domain.RawNode{
			"root":     {Title: "Example Project", Public: false, ChildIDs: []string{"analysis", "data"}},
			"analysis": {Title: "Analysis", Public: true, ParentID: "root", ChildIDs: []string{"scripts"}},
			"scripts":  {Title: "Scripts", Public: false, ParentID: "analysis"},
			"data":     {Title: "Data", Public: false, ParentID: "root"},
		},
	}
}

func mustBuild(t *testing.T, src domain.TreeSource) *Tree {
	t.Helper()
	tr, err := Build(src)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return tr
}

func TestBuildPreOrderLayout(t *testing.T) {
	t.Parallel()

	tr := mustBuild(t, testSource())

	wantIDs := []string{"root", "analysis", "scripts", "data"}
	wantDepths := []int{0, 1, 2, 1}
	nodes := tr.Nodes()
	if len(nodes) != len(wantIDs) {
		t.Fatalf("len(Nodes()) = %d, want %d", len(nodes), len(wantIDs))
	}
	for i, n := range nodes {
		if n.ID != wantIDs[i] {
			t.Fatalf("node[%d].ID = %q, want %q", i, n.ID, wantIDs[i])
		}
		if n.Depth != wantDepths[i] {
			t.Fatalf("node[%d].Depth = %d, want %d", i, n.Depth, wantDepths[i])
		}
		if n.Proposed != n.Original {
			t.Fatalf("node[%d] proposed should default to original", i)
		}
	}
	if !tr.HasChildren() {
		t.Fatal("HasChildren() = false, want true")
	}
	if tr.RootID() != "root" {
		t.Fatalf("RootID() = %q", tr.RootID())
	}
}

func TestBuildRejectsMalformedSources(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  domain.TreeSource
	}{
		{
			name: "missing root id",
			src:  domain.TreeSource{Nodes: map[string]domain.RawNode{"a": {Title: "A"}}},
		},
		{
			name: "root not present",
			src:  domain.TreeSource{RootID: "root", Nodes: map[string]domain.RawNode{"a": {Title: "A"}}},
		},
		{
			name: "root declares parent",
			src: domain.TreeSource{RootID: "root", Nodes: map[string]domain.RawNode{
				"root": {Title: "Root", ParentID: "ghost"},
			}},
		},
		{
			name: "child does not exist",
			src: domain.TreeSource{RootID: "root", Nodes: map[string]domain.RawNode{
				"root": {Title: "Root", ChildIDs: []string{"ghost"}},
			}},
		},
		{
			name: "parent id mismatch",
			src: domain.TreeSource{RootID: "root", Nodes: map[string]domain.RawNode{
				"root": {Title: "Root", ChildIDs: []string{"a"}},
				"a":    {Title: "A", ParentID: "elsewhere"},
			}},
		},
		{
			name: "duplicate child reference",
			src: domain.TreeSource{RootID: "root", Nodes: map[string]domain.RawNode{
				"root": {Title: "Root", ChildIDs: []string{"a", "a"}},
				"a":    {Title: "A", ParentID: "root"},
			}},
		},
		{
			name: "cycle back to root",
			src: domain.TreeSource{RootID: "root", Nodes: map[string]domain.RawNode{
				"root": {Title: "Root", ChildIDs: []string{"a"}},
				"a":    {Title: "A", ParentID: "root", ChildIDs: []string{"root"}},
			}},
		},
		{
			name: "unreachable node",
			src: domain.TreeSource{RootID: "root", Nodes: map[string]domain.RawNode{
				"root":   {Title: "Root"},
				"orphan": {Title: "Orphan", ParentID: "nowhere"},
			}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Build(tt.src)
			if err == nil {
				t.Fatal("Build() succeeded, want MalformedTreeError")
			}
			var malformed *domain.MalformedTreeError
			if !errors.As(err, &malformed) {
				t.Fatalf("Build() error = %T, want *domain.MalformedTreeError", err)
			}
		})
	}
}

func TestWalkEarlyExit(t *testing.T) {
	t.Parallel()

	tr := mustBuild(t, testSource())
	visited := 0
	tr.Walk(func(domain.NodeView) bool {
		visited++
		return visited < 2
	})
	if visited != 2 {
		t.Fatalf("visited = %d, want 2", visited)
	}

	// Restartable: a fresh walk sees the full tree again.
	visited = 0
	tr.Walk(func(domain.NodeView) bool {
		visited++
		return true
	})
	if visited != tr.Len() {
		t.Fatalf("visited = %d, want %d", visited, tr.Len())
	}
}

func TestSelectAllIsIdempotent(t *testing.T) {
	t.Parallel()

	tr := mustBuild(t, testSource())
	tr.SelectAll(true)
	once := tr.Nodes()
	tr.SelectAll(true)
	twice := tr.Nodes()

	for i := range once {
		if once[i].Proposed != twice[i].Proposed {
			t.Fatalf("node %q proposed changed on second SelectAll", once[i].ID)
		}
		if !twice[i].Proposed {
			t.Fatalf("node %q should be proposed public", twice[i].ID)
		}
	}
}

func TestSetNodeAffectsExactlyOneNode(t *testing.T) {
	t.Parallel()

	tr := mustBuild(t, testSource())
	if err := tr.SetNode("analysis", false); err != nil {
		t.Fatalf("SetNode() error = %v", err)
	}

	for _, n := range tr.Nodes() {
		if n.ID == "analysis" {
			if n.Proposed {
				t.Fatal("analysis should be proposed private")
			}
			continue
		}
		if n.Proposed != n.Original {
			t.Fatalf("node %q proposed changed, want untouched", n.ID)
		}
	}
}

func TestSetNodeUnknownIDLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	tr := mustBuild(t, testSource())
	before := tr.Nodes()
	gen := tr.Generation()

	err := tr.SetNode("ghost", true)
	var notFound *domain.NodeNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("SetNode() error = %v, want *domain.NodeNotFoundError", err)
	}
	if notFound.ID != "ghost" {
		t.Fatalf("NodeNotFoundError.ID = %q", notFound.ID)
	}
	if tr.Generation() != gen {
		t.Fatal("failed SetNode must not bump generation")
	}
	after := tr.Nodes()
	for i := range before {
		if before[i].Proposed != after[i].Proposed {
			t.Fatalf("node %q proposed changed after failed toggle", before[i].ID)
		}
	}
}

func TestResetRestoresOriginalVisibility(t *testing.T) {
	t.Parallel()

	tr := mustBuild(t, testSource())
	tr.SelectAll(true)
	gen := tr.Generation()
	tr.Reset()
	if tr.Generation() == gen {
		t.Fatal("Reset must bump generation")
	}

	for _, n := range tr.Nodes() {
		if n.Proposed != n.Original {
			t.Fatalf("node %q not restored by Reset", n.ID)
		}
	}
	if !ComputeDiff(tr).Empty() {
		t.Fatal("diff after Reset should be empty")
	}
}

func TestChangesSnapshotOrderAndContent(t *testing.T) {
	t.Parallel()

	tr := mustBuild(t, testSource())
	tr.SelectAll(true)
	changes := tr.Changes()

	wantIDs := []string{"root", "analysis", "scripts", "data"}
	if len(changes) != len(wantIDs) {
		t.Fatalf("len(Changes()) = %d, want %d", len(changes), len(wantIDs))
	}
	for i, c := range changes {
		if c.ID != wantIDs[i] {
			t.Fatalf("changes[%d].ID = %q, want %q", i, c.ID, wantIDs[i])
		}
		if !c.Public {
			t.Fatalf("changes[%d] should propose public", i)
		}
	}
}

func TestChildlessRootSnapshotIsRootOnly(t *testing.T) {
	t.Parallel()

	tr := mustBuild(t, domain.TreeSource{
		RootID: "solo",
		Nodes:  map[string]domain.RawNode{"solo": {Title: "Solo", Public: false}},
	})
	if tr.HasChildren() {
		t.Fatal("HasChildren() = true for childless root")
	}
	changes := tr.Changes()
	if len(changes) != 1 || changes[0].ID != "solo" {
		t.Fatalf("Changes() = %v, want root-only", changes)
	}
}
