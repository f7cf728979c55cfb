package artifact

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"slrforge/internal/fault"
	"slrforge/internal/logging"
)

// Store persists one current JSON file per (project, artifact type) pair:
//
//	<base>/<project_id>/artifacts/<Type>.json
//	<base>/<project_id>/search_results/   raw and deduplicated result files
//	<base>/<project_id>/export/           protocol export bundle
//
// Writes go through a temp file and rename so a crash never leaves a
// half-written artifact, and writes to the same key are serialized by a
// per-key mutex.
type Store struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore opens (creating if needed) a store rooted at baseDir.
func NewStore(baseDir string) (*Store, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fault.Validation("store base directory is empty")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fault.IO(err, "creating store directory %s", baseDir)
	}
	return &Store{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// BaseDir returns the store root.
func (s *Store) BaseDir() string { return s.baseDir }

func (s *Store) projectDir(projectID string) string {
	return filepath.Join(s.baseDir, projectID)
}

func (s *Store) artifactPath(projectID string, t Type) string {
	return filepath.Join(s.projectDir(projectID), "artifacts", string(t)+".json")
}

// Path returns the on-disk location of an artifact, whether or not it
// exists yet. External tooling (editors, watchers) works on this file.
func (s *Store) Path(projectID string, t Type) string {
	return s.artifactPath(projectID, t)
}

// ResultsDir returns the directory holding a project's raw result files.
func (s *Store) ResultsDir(projectID string) string {
	return filepath.Join(s.projectDir(projectID), "search_results")
}

func (s *Store) keyLock(projectID string, t Type) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := projectID + "/" + string(t)
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Save atomically replaces the current version of the artifact's type for
// its project. Timestamps are stamped here so every persisted artifact
// carries them.
func (s *Store) Save(a Artifact) error {
	if a == nil {
		return fault.Validation("cannot save a nil artifact")
	}
	projectID := a.ProjectRef()
	if strings.TrimSpace(projectID) == "" {
		return fault.Validation("%s has no project id", a.Type())
	}
	if !a.CurrentStatus().Valid() {
		return fault.Validation("%s has invalid status %q", a.Type(), a.CurrentStatus())
	}

	lock := s.keyLock(projectID, a.Type())
	lock.Lock()
	defer lock.Unlock()

	a.Touch(time.Now().UTC())

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fault.Internal(err, "marshaling %s", a.Type())
	}

	path := s.artifactPath(projectID, a.Type())
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fault.IO(err, "creating artifact directory for project %s", projectID)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		logging.AuditFor(projectID).FileWrite(path, 0, false, err.Error())
		return fault.IO(err, "writing %s for project %s", a.Type(), projectID)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		logging.AuditFor(projectID).FileWrite(path, 0, false, err.Error())
		return fault.IO(err, "replacing %s for project %s", a.Type(), projectID)
	}

	logging.AuditFor(projectID).FileWrite(path, int64(len(data)), true, "")
	logging.StoreDebug("Saved %s for project %s (%d bytes, status=%s)", a.Type(), projectID, len(data), a.CurrentStatus())
	return nil
}

// Load reads the current version of an artifact. A missing file is NotFound;
// a file that exists but does not decode is Corrupt.
func (s *Store) Load(projectID string, t Type) (Artifact, error) {
	path := s.artifactPath(projectID, t)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fault.NotFound("%s not found for project %s", t, projectID)
		}
		return nil, fault.IO(err, "reading %s for project %s", t, projectID)
	}

	a, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fault.Corrupt(err, "decoding %s for project %s", t, projectID)
	}
	return a, nil
}

// LoadProject is a typed convenience for the root artifact.
func (s *Store) LoadProject(projectID string) (*ProjectContext, error) {
	a, err := s.Load(projectID, TypeProjectContext)
	if err != nil {
		return nil, err
	}
	return a.(*ProjectContext), nil
}

// Exists reports whether the artifact file is present.
func (s *Store) Exists(projectID string, t Type) bool {
	_, err := os.Stat(s.artifactPath(projectID, t))
	return err == nil
}

// statusProbe decodes just enough of an artifact file for listings. Both the
// root artifact and Header-carrying artifacts expose a "status" key.
type statusProbe struct {
	Status ApprovalStatus `json:"status"`
}

// List returns the approval status of every artifact stored for the project.
// Files that fail to decode are skipped with a warning rather than failing
// the whole listing.
func (s *Store) List(projectID string) (map[Type]ApprovalStatus, error) {
	dir := filepath.Join(s.projectDir(projectID), "artifacts")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fault.NotFound("project %s not found", projectID)
		}
		return nil, fault.IO(err, "listing artifacts for project %s", projectID)
	}

	out := make(map[Type]ApprovalStatus, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		t, err := ParseType(strings.TrimSuffix(name, ".json"))
		if err != nil {
			logging.StoreDebug("Skipping unrecognized artifact file %s in project %s", name, projectID)
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fault.IO(err, "reading %s for project %s", t, projectID)
		}
		var probe statusProbe
		if err := json.Unmarshal(data, &probe); err != nil {
			logging.StoreWarn("Artifact file %s in project %s is corrupt: %v", name, projectID, err)
			continue
		}
		out[t] = probe.Status
	}
	return out, nil
}

// Delete removes the project's whole subtree, artifacts and result files
// included.
func (s *Store) Delete(projectID string) error {
	dir := s.projectDir(projectID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return fault.NotFound("project %s not found", projectID)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fault.IO(err, "deleting project %s", projectID)
	}
	logging.Store("Deleted project %s", projectID)
	return nil
}

// ListProjects loads the root artifact of every project under the store,
// oldest first. Directories without a readable ProjectContext are skipped.
func (s *Store) ListProjects() ([]*ProjectContext, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fault.IO(err, "listing projects under %s", s.baseDir)
	}

	var projects []*ProjectContext
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pc, err := s.LoadProject(entry.Name())
		if err != nil {
			if !fault.IsKind(err, fault.KindNotFound) {
				logging.StoreWarn("Skipping project %s: %v", entry.Name(), err)
			}
			continue
		}
		projects = append(projects, pc)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.Before(projects[j].CreatedAt)
	})
	return projects, nil
}

// SaveResultFile writes a search result side file under the project's
// search_results directory and returns its path for use as an artifact
// pointer.
func (s *Store) SaveResultFile(projectID, name string, data []byte) (string, error) {
	if strings.TrimSpace(projectID) == "" {
		return "", fault.Validation("result file needs a project id")
	}
	dir := s.ResultsDir(projectID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fault.IO(err, "creating results directory for project %s", projectID)
	}

	path := filepath.Join(dir, name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return "", fault.IO(err, "writing result file %s", name)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fault.IO(err, "replacing result file %s", name)
	}

	logging.AuditFor(projectID).FileWrite(path, int64(len(data)), true, "")
	logging.StoreDebug("Wrote result file %s (%d bytes)", path, len(data))
	return path, nil
}

// ExportDir ensures and returns the project's export directory.
func (s *Store) ExportDir(projectID string) (string, error) {
	dir := filepath.Join(s.projectDir(projectID), "export")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fault.IO(err, "creating export directory for project %s", projectID)
	}
	return dir, nil
}
