// ABOUTME: File-backed registry mapping session ids/names to daemon connection info
// ABOUTME: Handles default-session promotion, pid liveness probes, and crash self-healing

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"
)

// ErrNotFound is returned when no registry entry matches the given id or name.
var ErrNotFound = errors.New("session not found")

// ErrNotReady is returned when a daemon does not write its ready marker within
// the wait window.
var ErrNotReady = errors.New("session not ready")

const registryFileName = "registry.json"

// readyPollInterval is how often WaitForReady re-checks the marker file.
const readyPollInterval = 100 * time.Millisecond

// SessionInfo describes one running daemon, persisted so clients can find it.
type SessionInfo struct {
	ID          string        `json:"id"`
	Name        string        `json:"name,omitempty"`
	Model       string        `json:"model"`
	Backend     string        `json:"backend,omitempty"`
	SocketPath  string        `json:"socketPath"`
	PIDFile     string        `json:"pidFile"`
	ReadyFile   string        `json:"readyFile"`
	PID         int           `json:"pid"`
	CreatedAt   time.Time     `json:"createdAt"`
	IdleTimeout time.Duration `json:"idleTimeout"`
}

// registryFile is the on-disk shape of registry.json. Sessions is keyed by
// both id and (when set) name; both keys reference the same entry.
type registryFile struct {
	Sessions       map[string]*SessionInfo `json:"sessions"`
	DefaultSession string                  `json:"defaultSession,omitempty"`
}

// Registry reads and writes the shared registry.json in a sessions directory.
// Writes are serialized in-process and land via temp-file + rename, so a
// crashed writer never leaves a truncated file behind.
type Registry struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// New creates a Registry rooted at dir, creating the directory if needed.
func New(dir string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sessions directory: %w", err)
	}
	return &Registry{dir: dir, logger: logger.With("component", "registry")}, nil
}

// Dir returns the sessions directory this registry lives in.
func (r *Registry) Dir() string { return r.dir }

// Paths returns the socket, pid, and ready file paths for a session id
// within dir. Daemons and the registry must agree on this layout.
func Paths(dir, id string) (socket, pidFile, readyFile string) {
	return filepath.Join(dir, id+".sock"),
		filepath.Join(dir, id+".pid"),
		filepath.Join(dir, id+".ready")
}

// Register upserts info under its id and, if set, its name. The first
// registered session becomes the default.
func (r *Registry) Register(info *SessionInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return err
	}

	reg.Sessions[info.ID] = info
	if info.Name != "" {
		reg.Sessions[info.Name] = info
	}
	if reg.DefaultSession == "" {
		reg.DefaultSession = info.ID
	}

	if err := r.save(reg); err != nil {
		return err
	}
	r.logger.Info("session registered", "id", info.ID, "name", info.Name, "pid", info.PID)
	return nil
}

// Unregister removes the entry matching idOrName, dropping both its id and
// name keys. If the removed entry was the default, the remaining entry with
// the smallest id becomes the new default.
func (r *Registry) Unregister(idOrName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return err
	}

	info, ok := reg.Sessions[idOrName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, idOrName)
	}

	delete(reg.Sessions, info.ID)
	if info.Name != "" {
		delete(reg.Sessions, info.Name)
	}

	if reg.DefaultSession == info.ID {
		reg.DefaultSession = ""
		ids := remainingIDs(reg)
		if len(ids) > 0 {
			reg.DefaultSession = ids[0]
		}
	}

	if err := r.save(reg); err != nil {
		return err
	}
	r.logger.Info("session unregistered", "id", info.ID, "name", info.Name)
	return nil
}

// Get looks up a session by id or name. With an empty argument it returns the
// default session, or the sole registered session if exactly one exists.
func (r *Registry) Get(idOrName string) (*SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return nil, err
	}

	if idOrName != "" {
		info, ok := reg.Sessions[idOrName]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, idOrName)
		}
		return info, nil
	}

	if reg.DefaultSession != "" {
		if info, ok := reg.Sessions[reg.DefaultSession]; ok {
			return info, nil
		}
	}
	ids := remainingIDs(reg)
	if len(ids) == 1 {
		return reg.Sessions[ids[0]], nil
	}
	return nil, ErrNotFound
}

// List returns all registered sessions, deduplicated and ordered by creation
// time (oldest first), with id as a tiebreak.
func (r *Registry) List() ([]*SessionInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, err := r.load()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var infos []*SessionInfo
	for _, info := range reg.Sessions {
		if seen[info.ID] {
			continue
		}
		seen[info.ID] = true
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].ID < infos[j].ID
	})
	return infos, nil
}

// IsRunning reports whether the daemon recorded for idOrName is alive. A dead
// pid triggers self-healing: the stale socket/pid/ready files are removed and
// the entry is unregistered before reporting false.
func (r *Registry) IsRunning(idOrName string) (bool, error) {
	info, err := r.Get(idOrName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if pidAlive(info.PID) {
		return true, nil
	}

	r.logger.Warn("stale session detected, cleaning up", "id", info.ID, "pid", info.PID)
	removeSessionFiles(info)
	if err := r.Unregister(info.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return false, err
	}
	return false, nil
}

// WaitForReady blocks until the session's ready marker file exists, polling at
// a fixed interval. It returns ErrNotReady if the timeout elapses first.
func (r *Registry) WaitForReady(idOrName string, timeout time.Duration) (*SessionInfo, error) {
	deadline := time.Now().Add(timeout)
	for {
		info, err := r.Get(idOrName)
		if err == nil {
			if _, statErr := os.Stat(info.ReadyFile); statErr == nil {
				return info, nil
			}
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %q after %s", ErrNotReady, idOrName, timeout)
		}
		time.Sleep(readyPollInterval)
	}
}

// pidAlive probes a pid with signal 0, which delivers nothing but fails if
// the process is gone.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to someone else.
	return errors.Is(err, syscall.EPERM)
}

// removeSessionFiles deletes the socket, pid, and ready files for a session,
// ignoring already-missing files.
func removeSessionFiles(info *SessionInfo) {
	for _, p := range []string{info.SocketPath, info.PIDFile, info.ReadyFile} {
		if p != "" {
			os.Remove(p)
		}
	}
}

// remainingIDs returns the distinct session ids in reg, sorted.
func remainingIDs(reg *registryFile) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, info := range reg.Sessions {
		if !seen[info.ID] {
			seen[info.ID] = true
			ids = append(ids, info.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) path() string {
	return filepath.Join(r.dir, registryFileName)
}

func (r *Registry) load() (*registryFile, error) {
	data, err := os.ReadFile(r.path())
	if err != nil {
		if os.IsNotExist(err) {
			return &registryFile{Sessions: make(map[string]*SessionInfo)}, nil
		}
		return nil, fmt.Errorf("reading registry: %w", err)
	}

	var reg registryFile
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing registry: %w", err)
	}
	if reg.Sessions == nil {
		reg.Sessions = make(map[string]*SessionInfo)
	}
	// Re-point name keys at the id entry so both keys share one struct.
	for key, info := range reg.Sessions {
		if key == info.Name && info.ID != "" {
			if canonical, ok := reg.Sessions[info.ID]; ok {
				reg.Sessions[key] = canonical
			}
		}
	}
	return &reg, nil
}

func (r *Registry) save(reg *registryFile) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	tmp, err := os.CreateTemp(r.dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("creating temp registry: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp registry: %w", err)
	}
	if err := os.Rename(tmpPath, r.path()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing registry: %w", err)
	}
	return nil
}
