package tree

import "visor/internal/domain"

// ComputeDiff partitions nodes whose proposed visibility differs from
// their original one into became-public and became-private title
// lists. Pure: no mutation, no error conditions. Both lists preserve
// tree pre-order so a confirmation page loosely mirrors the tree
// layout users just edited.
func ComputeDiff(t *Tree) domain.DiffResult {
	result := domain.DiffResult{
		ChangedToPublic:  []string{},
		ChangedToPrivate: []string{},
	}
	t.Walk(func(n domain.NodeView) bool {
		if n.Proposed == n.Original {
			return true
		}
		if n.Proposed {
			result.ChangedToPublic = append(result.ChangedToPublic, n.Title)
		} else {
			result.ChangedToPrivate = append(result.ChangedToPrivate, n.Title)
		}
		return true
	})
	return result
}
