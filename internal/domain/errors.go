package domain

import "fmt"

// MalformedTreeError reports invalid tree structure found while
// building a node hierarchy. Fatal to wizard open.
type MalformedTreeError struct {
	NodeID string
	Reason string
}

func (e *MalformedTreeError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("malformed tree: %s", e.Reason)
	}
	return fmt.Sprintf("malformed tree: node %q: %s", e.NodeID, e.Reason)
}

// NodeNotFoundError reports a toggle that referenced an id absent from
// the tree. An integration defect, not a user-recoverable condition.
type NodeNotFoundError struct {
	ID string
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("node %q not found in tree", e.ID)
}

// InvalidTransitionError reports a guarded wizard transition fired
// without its guard satisfied. Indicates the view layer exposed a
// control it should not have.
type InvalidTransitionError struct {
	From   string
	Action string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid wizard transition: %s from %s", e.Action, e.From)
	}
	return fmt.Sprintf("invalid wizard transition: %s from %s: %s", e.Action, e.From, e.Reason)
}
