package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"visor/internal/domain"
	"visor/internal/state"
	"visor/internal/tree"
)

type App struct {
	Paths   state.Paths
	Stdout  io.Writer
	Stderr  io.Writer
	Verbose bool
	Now     func() time.Time

	IsInteractiveTerminal func() bool
	RunPrivacyWizard      PrivacyWizardRunner
}

type WizardOptions struct {
	Project string
}

type SetOptions struct {
	Project    string
	NodeID     string
	Visibility domain.Visibility
}

func New(paths state.Paths, stdout io.Writer, stderr io.Writer) *App {
	nowFn := func() time.Time {
		if v := strings.TrimSpace(os.Getenv("VISOR_NOW")); v != "" {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				return ts.UTC()
			}
		}
		return time.Now().UTC()
	}

	return &App{
		Paths:                 paths,
		Stdout:                stdout,
		Stderr:                stderr,
		Verbose:               true,
		Now:                   nowFn,
		IsInteractiveTerminal: defaultIsInteractiveTerminal,
		RunPrivacyWizard:      runPrivacyWizardInteractive,
	}
}

func (a *App) SetVerbose(verbose bool) {
	a.Verbose = verbose
}

func (a *App) logf(format string, args ...any) {
	if !a.Verbose {
		return
	}
	fmt.Fprintf(a.Stderr, "visor: "+format+"\n", args...)
}

// resolveProject picks an explicit project name or falls back to the
// configured default.
func (a *App) resolveProject(explicit string) (string, error) {
	name := strings.TrimSpace(explicit)
	if name != "" {
		return name, nil
	}
	cfg, err := state.LoadConfig(a.Paths)
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(cfg.DefaultProject)
	if name == "" {
		return "", errors.New("no project selected; pass a project name or set default_project via 'visor config'")
	}
	return name, nil
}

func (a *App) RunWizard(opts WizardOptions) error {
	if a.IsInteractiveTerminal == nil || !a.IsInteractiveTerminal() {
		return errors.New("visor wizard requires an interactive terminal")
	}
	if a.RunPrivacyWizard == nil {
		return errors.New("privacy wizard is not configured")
	}

	name, err := a.resolveProject(opts.Project)
	if err != nil {
		return err
	}
	a.logf("loading project %q from %s", name, a.Paths.ProjectPath(name))
	project, err := state.LoadProject(a.Paths, name)
	if err != nil {
		return err
	}
	cfg, err := state.LoadConfig(a.Paths)
	if err != nil {
		return err
	}

	sink, err := a.newRegistrySink(project.Name, cfg.Audit.Enabled)
	if err != nil {
		return err
	}

	result, err := a.RunPrivacyWizard(PrivacyWizardInput{
		ProjectName: project.Name,
		Source:      project.Source(),
		Sink:        sink,
	})
	if err != nil {
		return err
	}
	if !result.Committed {
		a.logf("wizard cancelled; no visibility changes applied")
		return nil
	}
	a.logf("committed visibility changes for project %q", project.Name)
	return nil
}

func (a *App) RunStatus(projectName string, jsonOut bool) (int, error) {
	name, err := a.resolveProject(projectName)
	if err != nil {
		return 2, err
	}
	project, err := state.LoadProject(a.Paths, name)
	if err != nil {
		return 2, err
	}
	t, err := tree.Build(project.Source())
	if err != nil {
		return 2, err
	}

	if jsonOut {
		type nodeOut struct {
			ID         string            `json:"id"`
			Title      string            `json:"title"`
			Depth      int               `json:"depth"`
			Visibility domain.Visibility `json:"visibility"`
		}
		out := struct {
			Project string    `json:"project"`
			RootID  string    `json:"root_id"`
			Nodes   []nodeOut `json:"nodes"`
		}{Project: project.Name, RootID: t.RootID()}
		t.Walk(func(n domain.NodeView) bool {
			out.Nodes = append(out.Nodes, nodeOut{
				ID:         n.ID,
				Title:      n.Title,
				Depth:      n.Depth,
				Visibility: domain.VisibilityFor(n.Original),
			})
			return true
		})
		enc := json.NewEncoder(a.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return 2, err
		}
		return 0, nil
	}

	fmt.Fprintf(a.Stdout, "%s\n", project.Name)
	t.Walk(func(n domain.NodeView) bool {
		indent := strings.Repeat("  ", n.Depth)
		fmt.Fprintf(a.Stdout, "%s%s  [%s]\n", indent, n.Title, domain.VisibilityFor(n.Original))
		return true
	})
	return 0, nil
}

func (a *App) RunSet(opts SetOptions) (int, error) {
	name, err := a.resolveProject(opts.Project)
	if err != nil {
		return 2, err
	}
	project, err := state.LoadProject(a.Paths, name)
	if err != nil {
		return 2, err
	}
	t, err := tree.Build(project.Source())
	if err != nil {
		return 2, err
	}
	if err := t.SetNode(opts.NodeID, opts.Visibility.Public()); err != nil {
		return 2, err
	}
	diff := tree.ComputeDiff(t)
	if diff.Empty() {
		a.logf("node %q already %s; nothing to do", opts.NodeID, opts.Visibility)
		return 0, nil
	}

	cfg, err := state.LoadConfig(a.Paths)
	if err != nil {
		return 2, err
	}
	sink, err := a.newRegistrySink(project.Name, cfg.Audit.Enabled)
	if err != nil {
		return 2, err
	}
	if err := sink.Commit(t.RootID(), t.Changes()); err != nil {
		return 1, err
	}
	fmt.Fprintf(a.Stdout, "%s is now %s\n", opts.NodeID, opts.Visibility)
	return 0, nil
}

func (a *App) RunImport(path string) (int, error) {
	var project domain.ProjectFile
	if err := state.LoadYAML(path, &project); err != nil {
		return 2, fmt.Errorf("parse %s: %w", path, err)
	}
	if strings.TrimSpace(project.Name) == "" {
		base := filepath.Base(path)
		project.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	// Reject malformed trees at import time rather than at wizard open.
	if _, err := tree.Build(project.Source()); err != nil {
		return 2, err
	}
	project.UpdatedAt = a.Now()
	if err := state.SaveProject(a.Paths, project); err != nil {
		return 2, err
	}
	fmt.Fprintf(a.Stdout, "registered project %q (%d nodes)\n", project.Name, len(project.Nodes))
	return 0, nil
}

func (a *App) RunProjects() (int, error) {
	names, err := state.ListProjects(a.Paths)
	if err != nil {
		return 2, err
	}
	cfg, err := state.LoadConfig(a.Paths)
	if err != nil {
		return 2, err
	}
	if len(names) == 0 {
		fmt.Fprintln(a.Stdout, "no projects registered; use 'visor import' to add one")
		return 0, nil
	}
	for _, name := range names {
		marker := " "
		if name == cfg.DefaultProject {
			marker = "*"
		}
		fmt.Fprintf(a.Stdout, "%s %s\n", marker, name)
	}
	return 0, nil
}

func (a *App) RunConfigDefault(project string) (int, error) {
	cfg, err := state.LoadConfig(a.Paths)
	if err != nil {
		return 2, err
	}
	if _, err := state.LoadProject(a.Paths, project); err != nil {
		return 2, err
	}
	cfg.DefaultProject = project
	if err := state.SaveConfig(a.Paths, cfg); err != nil {
		return 2, err
	}
	fmt.Fprintf(a.Stdout, "default project is now %q\n", project)
	return 0, nil
}
