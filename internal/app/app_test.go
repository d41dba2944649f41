package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"visor/internal/domain"
	"visor/internal/state"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	a := New(state.NewPaths(t.TempDir()), &out, os.Stderr)
	a.SetVerbose(false)
	a.Now = func() time.Time {
		return time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	}
	a.IsInteractiveTerminal = func() bool { return true }
	return a, &out
}

func seedProject(t *testing.T, a *App) {
	t.Helper()
	project := domain.ProjectFile{
		Name:   "demo",
		RootID: "root",
		Nodes: map[string]domain.RawNode{
			"root":     {Title: "Example Project", ChildIDs: []string{"analysis", "data"}},
			"analysis": {Title: "Analysis", Public: true, ParentID: "root", ChildIDs: []string{"scripts"}},
			"scripts":  {Title: "Scripts", ParentID: "analysis"},
			"data":     {Title: "Data", ParentID: "root"},
		},
	}
	if err := state.SaveProject(a.Paths, project); err != nil {
		t.Fatalf("SaveProject() error = %v", err)
	}
}

func TestRunStatusText(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(t)
	seedProject(t, a)

	code, err := a.RunStatus("demo", false)
	if err != nil || code != 0 {
		t.Fatalf("RunStatus() = %d, %v", code, err)
	}
	text := out.String()
	for _, want := range []string{
		"Example Project  [private]",
		"  Analysis  [public]",
		"    Scripts  [private]",
		"  Data  [private]",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRunStatusJSON(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(t)
	seedProject(t, a)

	code, err := a.RunStatus("demo", true)
	if err != nil || code != 0 {
		t.Fatalf("RunStatus() = %d, %v", code, err)
	}

	var got struct {
		Project string `json:"project"`
		RootID  string `json:"root_id"`
		Nodes   []struct {
			ID         string `json:"id"`
			Depth      int    `json:"depth"`
			Visibility string `json:"visibility"`
		} `json:"nodes"`
	}
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out.String())
	}
	if got.Project != "demo" || got.RootID != "root" {
		t.Fatalf("got = %+v", got)
	}
	ids := make([]string, 0, len(got.Nodes))
	for _, n := range got.Nodes {
		ids = append(ids, n.ID)
	}
	want := []string{"root", "analysis", "scripts", "data"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
	if got.Nodes[2].Depth != 2 || got.Nodes[2].Visibility != "private" {
		t.Fatalf("scripts node = %+v", got.Nodes[2])
	}
}

func TestRunStatusUnknownProject(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	code, err := a.RunStatus("ghost", false)
	if err == nil || code != 2 {
		t.Fatalf("RunStatus() = %d, %v; want exit 2 and error", code, err)
	}
}

func TestRunSetCommitsAndAudits(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(t)
	seedProject(t, a)

	code, err := a.RunSet(SetOptions{Project: "demo", NodeID: "data", Visibility: domain.VisibilityPublic})
	if err != nil || code != 0 {
		t.Fatalf("RunSet() = %d, %v", code, err)
	}
	if !strings.Contains(out.String(), "data is now public") {
		t.Fatalf("output = %q", out.String())
	}

	project, err := state.LoadProject(a.Paths, "demo")
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	if !project.Nodes["data"].Public {
		t.Fatal("data should be public after set")
	}
	if project.Nodes["scripts"].Public {
		t.Fatal("scripts must be untouched")
	}
	if !project.UpdatedAt.Equal(a.Now()) {
		t.Fatalf("UpdatedAt = %v, want %v", project.UpdatedAt, a.Now())
	}

	audit, err := state.LoadAudit(a.Paths)
	if err != nil {
		t.Fatalf("LoadAudit() error = %v", err)
	}
	if len(audit.Entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.Entries))
	}
	if audit.Entries[0].Project != "demo" {
		t.Fatalf("audit entry = %+v", audit.Entries[0])
	}
}

func TestRunSetNoopSkipsCommit(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	seedProject(t, a)

	code, err := a.RunSet(SetOptions{Project: "demo", NodeID: "analysis", Visibility: domain.VisibilityPublic})
	if err != nil || code != 0 {
		t.Fatalf("RunSet() = %d, %v", code, err)
	}
	audit, err := state.LoadAudit(a.Paths)
	if err != nil {
		t.Fatalf("LoadAudit() error = %v", err)
	}
	if len(audit.Entries) != 0 {
		t.Fatalf("noop set must not append audit entries, got %d", len(audit.Entries))
	}
}

func TestRunImportRegistersProject(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(t)
	src := filepath.Join(t.TempDir(), "fieldwork.yaml")
	payload := strings.Join([]string{
		"root_id: root",
		"nodes:",
		"  root:",
		"    title: Fieldwork",
		"    child_ids: [notes]",
		"  notes:",
		"    title: Notes",
		"    parent_id: root",
		"",
	}, "\n")
	if err := os.WriteFile(src, []byte(payload), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	code, err := a.RunImport(src)
	if err != nil || code != 0 {
		t.Fatalf("RunImport() = %d, %v", code, err)
	}
	if !strings.Contains(out.String(), `registered project "fieldwork" (2 nodes)`) {
		t.Fatalf("output = %q", out.String())
	}
	project, err := state.LoadProject(a.Paths, "fieldwork")
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	if project.Nodes["notes"].ParentID != "root" {
		t.Fatalf("notes = %+v", project.Nodes["notes"])
	}
}

func TestRunImportRejectsMalformedTree(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	src := filepath.Join(t.TempDir(), "broken.yaml")
	payload := strings.Join([]string{
		"root_id: root",
		"nodes:",
		"  root:",
		"    title: Broken",
		"    child_ids: [ghost]",
		"",
	}, "\n")
	if err := os.WriteFile(src, []byte(payload), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	code, err := a.RunImport(src)
	if err == nil || code != 2 {
		t.Fatalf("RunImport() = %d, %v; want exit 2 and error", code, err)
	}
	if _, loadErr := state.LoadProject(a.Paths, "broken"); loadErr == nil {
		t.Fatal("malformed project must not be registered")
	}
}

func TestRunProjectsMarksDefault(t *testing.T) {
	t.Parallel()

	a, out := newTestApp(t)
	seedProject(t, a)
	if code, err := a.RunConfigDefault("demo"); err != nil || code != 0 {
		t.Fatalf("RunConfigDefault() = %d, %v", code, err)
	}

	out.Reset()
	code, err := a.RunProjects()
	if err != nil || code != 0 {
		t.Fatalf("RunProjects() = %d, %v", code, err)
	}
	if !strings.Contains(out.String(), "* demo") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestResolveProjectFallsBackToDefault(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	seedProject(t, a)

	if _, err := a.resolveProject(""); err == nil {
		t.Fatal("expected error with no default configured")
	}
	if code, err := a.RunConfigDefault("demo"); err != nil || code != 0 {
		t.Fatalf("RunConfigDefault() = %d, %v", code, err)
	}
	name, err := a.resolveProject("")
	if err != nil || name != "demo" {
		t.Fatalf("resolveProject() = %q, %v", name, err)
	}
}

func TestRunWizardRequiresTerminal(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	a.IsInteractiveTerminal = func() bool { return false }
	if err := a.RunWizard(WizardOptions{Project: "demo"}); err == nil {
		t.Fatal("expected terminal requirement error")
	}
}

func TestRunWizardHandsSourceToRunner(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	seedProject(t, a)

	var got PrivacyWizardInput
	a.RunPrivacyWizard = func(input PrivacyWizardInput) (PrivacyWizardResult, error) {
		got = input
		return PrivacyWizardResult{Committed: false}, nil
	}
	if err := a.RunWizard(WizardOptions{Project: "demo"}); err != nil {
		t.Fatalf("RunWizard() error = %v", err)
	}
	if got.ProjectName != "demo" || got.Source.RootID != "root" {
		t.Fatalf("runner input = %+v", got)
	}
	if len(got.Source.Nodes) != 4 {
		t.Fatalf("source nodes = %d, want 4", len(got.Source.Nodes))
	}
	if got.Sink == nil {
		t.Fatal("runner must receive a sink")
	}
}

func TestRegistrySinkCommitFlow(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	seedProject(t, a)

	sink, err := a.newRegistrySink("demo", true)
	if err != nil {
		t.Fatalf("newRegistrySink() error = %v", err)
	}
	changes := []domain.NodeVisibility{
		{ID: "root", Public: true},
		{ID: "data", Public: true},
	}
	if err := sink.Commit("root", changes); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	project, err := state.LoadProject(a.Paths, "demo")
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	if !project.Nodes["root"].Public || !project.Nodes["data"].Public {
		t.Fatalf("nodes = %+v", project.Nodes)
	}

	// Same-session retry validates against the refreshed snapshot.
	if err := sink.Commit("root", changes); err != nil {
		t.Fatalf("second Commit() error = %v", err)
	}
}

func TestRegistrySinkDetectsConcurrentEdit(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	seedProject(t, a)

	sink, err := a.newRegistrySink("demo", false)
	if err != nil {
		t.Fatalf("newRegistrySink() error = %v", err)
	}

	project, err := state.LoadProject(a.Paths, "demo")
	if err != nil {
		t.Fatalf("LoadProject() error = %v", err)
	}
	node := project.Nodes["data"]
	node.Title = "Edited Elsewhere"
	project.Nodes["data"] = node
	if err := state.SaveProject(a.Paths, project); err != nil {
		t.Fatalf("SaveProject() error = %v", err)
	}

	err = sink.Commit("root", []domain.NodeVisibility{{ID: "root", Public: true}})
	if err == nil || !strings.Contains(err.Error(), "changed on disk") {
		t.Fatalf("Commit() error = %v, want concurrent-edit rejection", err)
	}
}

func TestRegistrySinkRejectsRootMismatch(t *testing.T) {
	t.Parallel()

	a, _ := newTestApp(t)
	seedProject(t, a)

	sink, err := a.newRegistrySink("demo", false)
	if err != nil {
		t.Fatalf("newRegistrySink() error = %v", err)
	}
	err = sink.Commit("other-root", nil)
	if err == nil || !strings.Contains(err.Error(), "does not match project root") {
		t.Fatalf("Commit() error = %v", err)
	}
}
