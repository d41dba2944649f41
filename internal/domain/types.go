package domain

import "time"

const Version = 1

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
	VisibilityUnknown Visibility = "unknown"
)

// RawNode is the flat on-disk representation of a single project or
// component. Parent/child links are by id; the tree package resolves
// and validates them.
type RawNode struct {
	Title    string   `yaml:"title"`
	Public   bool     `yaml:"public"`
	ParentID string   `yaml:"parent_id,omitempty"`
	ChildIDs []string `yaml:"child_ids,omitempty"`
}

type TreeSource struct {
	RootID string             `yaml:"root_id"`
	Nodes  map[string]RawNode `yaml:"nodes"`
}

type ProjectFile struct {
	Version   int                `yaml:"version"`
	Name      string             `yaml:"name"`
	RootID    string             `yaml:"root_id"`
	Nodes     map[string]RawNode `yaml:"nodes"`
	UpdatedAt time.Time          `yaml:"updated_at"`
}

func (p ProjectFile) Source() TreeSource {
	return TreeSource{RootID: p.RootID, Nodes: p.Nodes}
}

// NodeView is the read-only snapshot handed to view layers. Depth is
// the distance from the root, for indentation.
type NodeView struct {
	ID       string
	Title    string
	Depth    int
	Original bool
	Proposed bool
}

// NodeVisibility is one entry of the ordered change set emitted to a
// commit sink.
type NodeVisibility struct {
	ID     string
	Public bool
}

type DiffResult struct {
	ChangedToPublic  []string
	ChangedToPrivate []string
}

func (d DiffResult) Empty() bool {
	return len(d.ChangedToPublic) == 0 && len(d.ChangedToPrivate) == 0
}

func (d DiffResult) Count() int {
	return len(d.ChangedToPublic) + len(d.ChangedToPrivate)
}

type ConfigFile struct {
	Version        int         `yaml:"version"`
	DefaultProject string      `yaml:"default_project"`
	Audit          AuditConfig `yaml:"audit"`
}

type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
}

type AuditFile struct {
	Version int          `yaml:"version"`
	Entries []AuditEntry `yaml:"entries"`
}

type AuditEntry struct {
	Project     string        `yaml:"project"`
	RootID      string        `yaml:"root_id"`
	CommittedAt time.Time     `yaml:"committed_at"`
	Changes     []AuditChange `yaml:"changes"`
}

type AuditChange struct {
	ID         string     `yaml:"id"`
	Visibility Visibility `yaml:"visibility"`
}
