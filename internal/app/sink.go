package app

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"visor/internal/domain"
	"visor/internal/state"
)

// PrivacyWizardInput hands the wizard runner everything it needs: the
// tree source for the project being edited and the sink that persists
// a confirmed change set.
type PrivacyWizardInput struct {
	ProjectName string
	Source      domain.TreeSource
	Sink        CommitSink
}

type PrivacyWizardResult struct {
	Committed bool
}

type PrivacyWizardRunner func(PrivacyWizardInput) (PrivacyWizardResult, error)

// CommitSink matches wizard.CommitSink; redeclared here so the app
// package does not force its collaborators through the wizard package.
type CommitSink interface {
	Commit(rootID string, changes []domain.NodeVisibility) error
}

type fileSnapshot struct {
	Exists bool
	Data   []byte
}

func defaultIsInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// registrySink persists a committed change set to the project file in
// the registry. The project file is snapshotted when the sink is
// created; a commit refuses to clobber concurrent edits made while
// the wizard was open.
type registrySink struct {
	app      *App
	project  string
	audit    bool
	snapshot fileSnapshot
}

func (a *App) newRegistrySink(project string, audit bool) (*registrySink, error) {
	snapshot, err := snapshotFile(a.Paths.ProjectPath(project))
	if err != nil {
		return nil, err
	}
	return &registrySink{app: a, project: project, audit: audit, snapshot: snapshot}, nil
}

func (s *registrySink) Commit(rootID string, changes []domain.NodeVisibility) error {
	a := s.app
	lock, err := state.AcquireLock(a.Paths)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()

	path := a.Paths.ProjectPath(s.project)
	if err := assertFileUnchanged(path, s.snapshot); err != nil {
		return fmt.Errorf("project file changed on disk; rerun the wizard: %w", err)
	}

	project, err := state.LoadProject(a.Paths, s.project)
	if err != nil {
		return err
	}
	if project.RootID != rootID {
		return fmt.Errorf("commit root %q does not match project root %q", rootID, project.RootID)
	}
	for _, change := range changes {
		node, ok := project.Nodes[change.ID]
		if !ok {
			return &domain.NodeNotFoundError{ID: change.ID}
		}
		node.Public = change.Public
		project.Nodes[change.ID] = node
	}
	project.UpdatedAt = a.Now()
	if err := state.SaveProject(a.Paths, project); err != nil {
		return err
	}

	if s.audit {
		entry := domain.AuditEntry{
			Project:     s.project,
			RootID:      rootID,
			CommittedAt: a.Now(),
		}
		for _, change := range changes {
			entry.Changes = append(entry.Changes, domain.AuditChange{
				ID:         change.ID,
				Visibility: domain.VisibilityFor(change.Public),
			})
		}
		if err := state.AppendAudit(a.Paths, entry); err != nil {
			return err
		}
	}

	// Refresh so a retried commit in the same session validates
	// against what this commit just wrote.
	snapshot, err := snapshotFile(path)
	if err != nil {
		return err
	}
	s.snapshot = snapshot
	a.logf("wrote %d visibility value(s) to %s", len(changes), path)
	return nil
}

func snapshotFile(path string) (fileSnapshot, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fileSnapshot{Exists: false}, nil
	}
	if err != nil {
		return fileSnapshot{}, err
	}
	return fileSnapshot{Exists: true, Data: b}, nil
}

func assertFileUnchanged(path string, snapshot fileSnapshot) error {
	current, err := snapshotFile(path)
	if err != nil {
		return err
	}
	if current.Exists != snapshot.Exists {
		return fmt.Errorf("file existence changed")
	}
	if !bytes.Equal(current.Data, snapshot.Data) {
		return fmt.Errorf("file contents changed")
	}
	return nil
}
