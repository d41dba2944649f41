// Package wizard implements the linear warning/select/confirm flow
// that governs a bulk privacy change. The machine validates every
// transition guard itself; view layers render ViewState and must not
// expose controls whose guard would fail.
package wizard

import (
	"fmt"

	"visor/internal/domain"
	"visor/internal/tree"
)

type Page int

const (
	PageWarning Page = iota
	PageSelect
	PageConfirm
)

func (p Page) String() string {
	switch p {
	case PageWarning:
		return "warning"
	case PageSelect:
		return "select"
	case PageConfirm:
		return "confirm"
	default:
		return fmt.Sprintf("page(%d)", int(p))
	}
}

// CommitSink receives the final proposed-state snapshot. Commits are
// the only asynchronous boundary of the flow; the machine stays in
// CONFIRM with state intact when the sink fails, so the user can retry
// or cancel.
type CommitSink interface {
	Commit(rootID string, changes []domain.NodeVisibility) error
}

// CommitSinkFunc adapts a function to CommitSink.
type CommitSinkFunc func(rootID string, changes []domain.NodeVisibility) error

func (f CommitSinkFunc) Commit(rootID string, changes []domain.NodeVisibility) error {
	return f(rootID, changes)
}

// ViewState is the explicit state-query snapshot for view layers.
// Diff is set only on the confirm page.
type ViewState struct {
	Open        bool
	Page        Page
	HasChildren bool
	Nodes       []domain.NodeView
	Diff        *domain.DiffResult
}

// Machine owns exactly one tree per open wizard instance. All
// operations run synchronously to completion; nothing suspends
// mid-mutation.
type Machine struct {
	sink     CommitSink
	tree     *tree.Tree
	page     Page
	open     bool
	diff     *domain.DiffResult
	diffGen  uint64
	onChange func()
}

func New(sink CommitSink) *Machine {
	return &Machine{sink: sink, page: PageWarning}
}

// OnChange registers a hook invoked after every successful mutation.
// This replaces observable view bindings: views re-query ViewState
// when notified.
func (m *Machine) OnChange(fn func()) {
	m.onChange = fn
}

// Open builds the tree from source and arms the machine on the
// warning page. A malformed source leaves the machine closed.
func (m *Machine) Open(src domain.TreeSource) error {
	t, err := tree.Build(src)
	if err != nil {
		return err
	}
	m.tree = t
	m.page = PageWarning
	m.open = true
	m.diff = nil
	m.notify()
	return nil
}

func (m *Machine) IsOpen() bool {
	return m.open
}

func (m *Machine) Page() Page {
	return m.page
}

// Dirty reports whether any node's proposed visibility differs from
// its original one.
func (m *Machine) Dirty() bool {
	if !m.open {
		return false
	}
	return !tree.ComputeDiff(m.tree).Empty()
}

// Next advances warning→select (guarded on children) and
// select→confirm (computing and caching the diff).
func (m *Machine) Next() error {
	if err := m.requireOpen("next"); err != nil {
		return err
	}
	switch m.page {
	case PageWarning:
		if !m.tree.HasChildren() {
			return &domain.InvalidTransitionError{From: m.page.String(), Action: "next", Reason: "project has no components"}
		}
		m.page = PageSelect
	case PageSelect:
		diff := tree.ComputeDiff(m.tree)
		m.diff = &diff
		m.diffGen = m.tree.Generation()
		m.page = PageConfirm
	default:
		return &domain.InvalidTransitionError{From: m.page.String(), Action: "next"}
	}
	m.notify()
	return nil
}

// Back returns confirm→select, discarding the cached diff and
// preserving the proposed state exactly.
func (m *Machine) Back() error {
	if err := m.requireOpen("back"); err != nil {
		return err
	}
	if m.page != PageConfirm {
		return &domain.InvalidTransitionError{From: m.page.String(), Action: "back"}
	}
	m.diff = nil
	m.page = PageSelect
	m.notify()
	return nil
}

// Confirm emits the proposed snapshot to the sink. From the warning
// page it is allowed only for a childless root (root-only snapshot);
// from the confirm page it emits the full tree snapshot. Sink failure
// keeps the machine where it is, state intact, for retry.
func (m *Machine) Confirm() error {
	if err := m.requireOpen("confirm"); err != nil {
		return err
	}
	switch m.page {
	case PageWarning:
		if m.tree.HasChildren() {
			return &domain.InvalidTransitionError{From: m.page.String(), Action: "confirm", Reason: "project has components; review them first"}
		}
	case PageConfirm:
	default:
		return &domain.InvalidTransitionError{From: m.page.String(), Action: "confirm"}
	}

	if m.sink == nil {
		return fmt.Errorf("no commit sink configured")
	}
	if err := m.sink.Commit(m.tree.RootID(), m.tree.Changes()); err != nil {
		return fmt.Errorf("commit visibility changes: %w", err)
	}

	m.diff = nil
	m.page = PageWarning
	m.open = false
	m.notify()
	return nil
}

// Cancel discards all proposed changes unconditionally, from any page,
// and returns the machine to a fresh warning-ready closed state.
func (m *Machine) Cancel() {
	if m.tree != nil {
		m.tree.Reset()
	}
	m.diff = nil
	m.page = PageWarning
	m.open = false
	m.notify()
}

// SelectAll proposes one visibility for every node.
func (m *Machine) SelectAll(makePublic bool) error {
	if err := m.requireOpen("select-all"); err != nil {
		return err
	}
	m.tree.SelectAll(makePublic)
	m.notify()
	return nil
}

// SetNode proposes a visibility for a single node, without cascading.
func (m *Machine) SetNode(id string, makePublic bool) error {
	if err := m.requireOpen("set-node"); err != nil {
		return err
	}
	if err := m.tree.SetNode(id, makePublic); err != nil {
		return err
	}
	m.notify()
	return nil
}

func (m *Machine) ViewState() ViewState {
	vs := ViewState{
		Open: m.open,
		Page: m.page,
	}
	if m.tree != nil {
		vs.HasChildren = m.tree.HasChildren()
		vs.Nodes = m.tree.Nodes()
	}
	if m.page == PageConfirm && m.diff != nil && m.diffGen == m.tree.Generation() {
		diff := *m.diff
		vs.Diff = &diff
	}
	return vs
}

func (m *Machine) requireOpen(action string) error {
	if !m.open || m.tree == nil {
		return &domain.InvalidTransitionError{From: "closed", Action: action, Reason: "wizard is not open"}
	}
	return nil
}

func (m *Machine) notify() {
	if m.onChange != nil {
		m.onChange()
	}
}
