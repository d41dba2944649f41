package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"visor/internal/domain"
)

const (
	ConfigDirName  = ".config/visor"
	LocalStateDir  = ".local/state/visor"
	ConfigFileName = "config.yaml"
	ProjectDirName = "projects"
	LockFileName   = "lock"
	AuditFileName  = "audit.yaml"
)

type Paths struct {
	Home string
}

func NewPaths(home string) Paths {
	return Paths{Home: home}
}

func (p Paths) ConfigRoot() string {
	return filepath.Join(p.Home, ConfigDirName)
}

func (p Paths) LocalStateRoot() string {
	return filepath.Join(p.Home, LocalStateDir)
}

func (p Paths) ConfigPath() string {
	return filepath.Join(p.ConfigRoot(), ConfigFileName)
}

func (p Paths) ProjectDir() string {
	return filepath.Join(p.ConfigRoot(), ProjectDirName)
}

func (p Paths) ProjectPath(name string) string {
	return filepath.Join(p.ProjectDir(), ProjectFileName(name))
}

func (p Paths) LockPath() string {
	return filepath.Join(p.LocalStateRoot(), LockFileName)
}

func (p Paths) AuditPath() string {
	return filepath.Join(p.LocalStateRoot(), AuditFileName)
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func DefaultConfig() domain.ConfigFile {
	return domain.ConfigFile{
		Version:        1,
		DefaultProject: "",
		Audit:          domain.AuditConfig{Enabled: true},
	}
}

func LoadConfig(paths Paths) (domain.ConfigFile, error) {
	cfgPath := paths.ConfigPath()
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := SaveYAML(cfgPath, cfg); err != nil {
			return domain.ConfigFile{}, err
		}
		return cfg, nil
	}

	cfg := DefaultConfig()
	if err := LoadYAML(cfgPath, &cfg); err != nil {
		return domain.ConfigFile{}, fmt.Errorf("parse %s: %w", cfgPath, err)
	}
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	return cfg, nil
}

func SaveConfig(paths Paths, cfg domain.ConfigFile) error {
	cfg.Version = 1
	return SaveYAML(paths.ConfigPath(), cfg)
}

// ProjectFileName sanitizes a project name into a registry file name.
func ProjectFileName(name string) string {
	replacer := strings.NewReplacer("/", "__", ":", "_", "\\", "_", "?", "_", "*", "_", " ", "_")
	return replacer.Replace(strings.TrimSpace(name)) + ".yaml"
}

func LoadProject(paths Paths, name string) (domain.ProjectFile, error) {
	path := paths.ProjectPath(name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return domain.ProjectFile{}, fmt.Errorf("project %q is not registered: %w", name, os.ErrNotExist)
	}
	var project domain.ProjectFile
	if err := LoadYAML(path, &project); err != nil {
		return domain.ProjectFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if project.Version == 0 {
		project.Version = 1
	}
	if project.Name == "" {
		project.Name = name
	}
	if project.Nodes == nil {
		project.Nodes = map[string]domain.RawNode{}
	}
	return project, nil
}

func SaveProject(paths Paths, project domain.ProjectFile) error {
	if strings.TrimSpace(project.Name) == "" {
		return fmt.Errorf("project name is required")
	}
	project.Version = 1
	project.UpdatedAt = project.UpdatedAt.UTC()
	return SaveYAML(paths.ProjectPath(project.Name), project)
}

// ListProjects returns the registered project names sorted.
func ListProjects(paths Paths) ([]string, error) {
	entries, err := os.ReadDir(paths.ProjectDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		var project domain.ProjectFile
		if err := LoadYAML(filepath.Join(paths.ProjectDir(), e.Name()), &project); err != nil {
			return nil, fmt.Errorf("parse project file %s: %w", e.Name(), err)
		}
		if strings.TrimSpace(project.Name) == "" {
			continue
		}
		out = append(out, project.Name)
	}
	sort.Strings(out)
	return out, nil
}

// AppendAudit records one committed change set.
func AppendAudit(paths Paths, entry domain.AuditEntry) error {
	auditPath := paths.AuditPath()
	audit := domain.AuditFile{Version: 1}
	if _, err := os.Stat(auditPath); err == nil {
		if err := LoadYAML(auditPath, &audit); err != nil {
			return fmt.Errorf("parse %s: %w", auditPath, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if audit.Version == 0 {
		audit.Version = 1
	}
	entry.CommittedAt = entry.CommittedAt.UTC()
	audit.Entries = append(audit.Entries, entry)
	return SaveYAML(auditPath, audit)
}

func LoadAudit(paths Paths) (domain.AuditFile, error) {
	auditPath := paths.AuditPath()
	if _, err := os.Stat(auditPath); errors.Is(err, os.ErrNotExist) {
		return domain.AuditFile{Version: 1}, nil
	}
	var audit domain.AuditFile
	if err := LoadYAML(auditPath, &audit); err != nil {
		return domain.AuditFile{}, fmt.Errorf("parse %s: %w", auditPath, err)
	}
	if audit.Version == 0 {
		audit.Version = 1
	}
	return audit, nil
}

func LoadYAML(path string, out any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return err
	}
	return nil
}

func SaveYAML(path string, in any) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	b, err := yaml.Marshal(in)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Lock is an advisory single-writer lock over the registry. Commits
// hold it while rewriting a project file and appending the audit log.
type Lock struct {
	path string
	file *os.File
}

func AcquireLock(paths Paths) (*Lock, error) {
	if err := EnsureDir(paths.LocalStateRoot()); err != nil {
		return nil, err
	}
	path := paths.LockPath()
	lock, err := createLock(path)
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	stale, err := lockIsStale(path, time.Now().UTC(), 24*time.Hour)
	if err != nil {
		return nil, err
	}
	if !stale {
		return nil, fmt.Errorf("another visor process holds the lock")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	lock, err = createLock(path)
	if err == nil {
		return lock, nil
	}
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("another visor process holds the lock")
	}
	return nil, err
}

func createLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if err := writeLockPayload(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	return &Lock{path: path, file: f}, nil
}

func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
	}
	return os.Remove(l.path)
}

func writeLockPayload(f *os.File) error {
	hostname, err := os.Hostname()
	if err != nil {
		return err
	}
	_, err = f.WriteString(fmt.Sprintf(
		"pid=%d\nhostname=%s\ncreated_at=%s\n",
		os.Getpid(),
		hostname,
		time.Now().UTC().Format(time.RFC3339),
	))
	return err
}

type lockMeta struct {
	PID       int
	Hostname  string
	CreatedAt time.Time
}

func parseLockMeta(content []byte) (lockMeta, error) {
	values := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(string(content)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return lockMeta{}, fmt.Errorf("invalid lock line %q", line)
		}
		values[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	pidText, ok := values["pid"]
	if !ok || pidText == "" {
		return lockMeta{}, errors.New("missing lock pid")
	}
	pid, err := strconv.Atoi(pidText)
	if err != nil {
		return lockMeta{}, fmt.Errorf("invalid lock pid %q", pidText)
	}

	hostname, ok := values["hostname"]
	if !ok || hostname == "" {
		return lockMeta{}, errors.New("missing lock hostname")
	}

	createdAtText, ok := values["created_at"]
	if !ok || createdAtText == "" {
		return lockMeta{}, errors.New("missing lock created_at")
	}
	createdAt, err := time.Parse(time.RFC3339, createdAtText)
	if err != nil {
		return lockMeta{}, fmt.Errorf("invalid lock created_at %q", createdAtText)
	}

	return lockMeta{
		PID:       pid,
		Hostname:  hostname,
		CreatedAt: createdAt,
	}, nil
}

func lockIsStale(path string, now time.Time, maxAge time.Duration) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	fileAge := now.Sub(info.ModTime())
	if fileAge < 0 {
		fileAge = 0
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	meta, err := parseLockMeta(content)
	if err != nil {
		return fileAge >= maxAge, nil
	}

	createdAge := now.Sub(meta.CreatedAt)
	if createdAge < 0 {
		createdAge = 0
	}
	if createdAge >= maxAge || fileAge >= maxAge {
		return true, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		return false, err
	}
	if strings.EqualFold(hostname, meta.Hostname) && !isProcessAlive(meta.PID) {
		return true, nil
	}

	return false, nil
}

func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if runtime.GOOS == "windows" {
		// Windows has no signal-0 probe; rely on age fallback there.
		return true
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if errors.Is(err, os.ErrProcessDone) {
		return false
	}
	if os.IsPermission(err) {
		return true
	}
	return false
}
