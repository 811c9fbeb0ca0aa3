// Package storage persists salvo run artifacts as JSON files under the
// project's .salvo directory and keeps a sqlite-backed run history for
// trend reporting. All file writes are atomic (temp file then rename) so
// a crashed run never leaves a partial artifact behind.
package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// DefaultDir is the storage directory name under the project root.
const DefaultDir = ".salvo"

var ErrNotFound = errors.New("not found")

// ManifestEntry is one line of traces/manifest.jsonl, linking a trace to
// the run and trial that produced it. Error is set for infra_error trials.
type ManifestEntry struct {
	RunID        string             `json:"run_id"`
	TraceID      string             `json:"trace_id"`
	TrialIndex   int                `json:"trial_index"`
	Status       models.TrialStatus `json:"status"`
	Error        string             `json:"error,omitempty"`
	ScenarioName string             `json:"scenario_name"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Store reads and writes run artifacts under <projectRoot>/<dir>:
//
//	runs/{run_id}.json        suite results, plus a "latest" symlink
//	traces/{trace_id}.json    raw run traces
//	traces/manifest.jsonl     append-only trace manifest
//	recorded/{trace_id}.json  recorded traces, plus a "latest" symlink
//	reevals/{reeval_id}.json  re-evaluation results
//	index.json                scenario name -> run IDs
//
// Trace saves from concurrent trials need no coordination (unique IDs);
// index and manifest updates are serialized on the mutex.
type Store struct {
	root         string
	runsDir      string
	tracesDir    string
	recordedDir  string
	reevalsDir   string
	indexPath    string
	manifestPath string

	mu sync.Mutex
}

// NewStore creates a store rooted at <projectRoot>/<dir>. An empty dir
// selects DefaultDir. No directories are created until the first write.
func NewStore(projectRoot, dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	root := filepath.Join(projectRoot, dir)
	return &Store{
		root:         root,
		runsDir:      filepath.Join(root, "runs"),
		tracesDir:    filepath.Join(root, "traces"),
		recordedDir:  filepath.Join(root, "recorded"),
		reevalsDir:   filepath.Join(root, "reevals"),
		indexPath:    filepath.Join(root, "index.json"),
		manifestPath: filepath.Join(root, "traces", "manifest.jsonl"),
	}
}

// Root returns the storage directory path.
func (s *Store) Root() string { return s.root }

// EnsureDirs creates the storage directory tree.
func (s *Store) EnsureDirs() error {
	for _, dir := range []string{s.runsDir, s.tracesDir, s.recordedDir, s.reevalsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create storage dir: %w", err)
		}
	}
	return nil
}

// SaveTrace persists a run trace under traces/{traceID}.json. Saving the
// same ID twice overwrites; the write is atomic either way.
func (s *Store) SaveTrace(traceID string, trace *models.RunTrace) error {
	if traceID == "" || trace == nil {
		return fmt.Errorf("trace id and trace are required")
	}
	if err := os.MkdirAll(s.tracesDir, 0o755); err != nil {
		return fmt.Errorf("create traces dir: %w", err)
	}
	return writeJSONAtomic(filepath.Join(s.tracesDir, traceID+".json"), trace)
}

// LoadTrace reads a run trace by ID. A missing trace is (nil, nil), not
// an error; callers decide whether absence matters.
func (s *Store) LoadTrace(traceID string) (*models.RunTrace, error) {
	var trace models.RunTrace
	found, err := readJSON(filepath.Join(s.tracesDir, traceID+".json"), &trace)
	if err != nil || !found {
		return nil, err
	}
	return &trace, nil
}

// AppendManifestEntry appends one JSON line to traces/manifest.jsonl.
// Safe for concurrent use within the process; O_APPEND keeps lines whole
// across processes.
func (s *Store) AppendManifestEntry(entry ManifestEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal manifest entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.tracesDir, 0o755); err != nil {
		return fmt.Errorf("create traces dir: %w", err)
	}
	f, err := os.OpenFile(s.manifestPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append manifest entry: %w", err)
	}
	return nil
}

// ManifestEntries reads the trace manifest in append order. A missing
// manifest is an empty slice. Corrupt lines are skipped.
func (s *Store) ManifestEntries() ([]ManifestEntry, error) {
	f, err := os.Open(s.manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	var entries []ManifestEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var entry ManifestEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return entries, nil
}

// SaveSuiteResult persists a suite under runs/{run_id}.json and adds the
// run to the scenario index. Returns the run ID.
func (s *Store) SaveSuiteResult(suite *models.TrialSuiteResult) (string, error) {
	if suite == nil || suite.RunID == "" {
		return "", fmt.Errorf("suite with run id is required")
	}
	if err := s.EnsureDirs(); err != nil {
		return "", err
	}
	if err := writeJSONAtomic(filepath.Join(s.runsDir, suite.RunID+".json"), suite); err != nil {
		return "", err
	}
	if err := s.addToIndex(suite.ScenarioName, suite.RunID); err != nil {
		return "", err
	}
	return suite.RunID, nil
}

// LoadSuiteResult reads a suite by run ID. Missing runs return ErrNotFound.
func (s *Store) LoadSuiteResult(runID string) (*models.TrialSuiteResult, error) {
	var suite models.TrialSuiteResult
	found, err := readJSON(filepath.Join(s.runsDir, runID+".json"), &suite)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return &suite, nil
}

// UpdateLatestSymlink points runs/latest at the given run. Filesystems
// without symlink support fall back to a runs/.latest text file.
func (s *Store) UpdateLatestSymlink(runID string) error {
	if err := os.MkdirAll(s.runsDir, 0o755); err != nil {
		return fmt.Errorf("create runs dir: %w", err)
	}
	return updateSymlink(s.runsDir, runID)
}

// LoadLatestSuite resolves the latest pointer and loads that suite.
// No pointer or a dangling target is (nil, nil).
func (s *Store) LoadLatestSuite() (*models.TrialSuiteResult, error) {
	runID := resolveLatest(s.runsDir)
	if runID == "" {
		return nil, nil
	}
	suite, err := s.LoadSuiteResult(runID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return suite, err
}

// ListRuns returns run IDs for one scenario (index order, oldest first)
// or every stored run sorted by ID when scenarioName is empty. UUIDv7 run
// IDs make the sorted order chronological.
func (s *Store) ListRuns(scenarioName string) ([]string, error) {
	if scenarioName != "" {
		index, err := s.loadIndex()
		if err != nil {
			return nil, err
		}
		return index[scenarioName], nil
	}

	paths, err := filepath.Glob(filepath.Join(s.runsDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		ids = append(ids, strings.TrimSuffix(filepath.Base(p), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteRun removes a run file and drops it from the index. Returns
// whether the run existed.
func (s *Store) DeleteRun(runID string) (bool, error) {
	path := filepath.Join(s.runsDir, runID+".json")
	existed := true
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			return false, fmt.Errorf("delete run: %w", err)
		}
		existed = false
	}
	if err := s.removeFromIndex(runID); err != nil {
		return existed, err
	}
	return existed, nil
}

// SaveRecordedTrace persists a recorded trace under recorded/{traceID}.json.
func (s *Store) SaveRecordedTrace(traceID string, recorded *models.RecordedTrace) error {
	if traceID == "" || recorded == nil {
		return fmt.Errorf("trace id and recorded trace are required")
	}
	if err := os.MkdirAll(s.recordedDir, 0o755); err != nil {
		return fmt.Errorf("create recorded dir: %w", err)
	}
	return writeJSONAtomic(filepath.Join(s.recordedDir, traceID+".json"), recorded)
}

// LoadRecordedTrace reads a recorded trace by ID; missing is (nil, nil).
func (s *Store) LoadRecordedTrace(traceID string) (*models.RecordedTrace, error) {
	var recorded models.RecordedTrace
	found, err := readJSON(filepath.Join(s.recordedDir, traceID+".json"), &recorded)
	if err != nil || !found {
		return nil, err
	}
	return &recorded, nil
}

// UpdateLatestRecordedSymlink points recorded/latest at the given trace.
func (s *Store) UpdateLatestRecordedSymlink(traceID string) error {
	if err := os.MkdirAll(s.recordedDir, 0o755); err != nil {
		return fmt.Errorf("create recorded dir: %w", err)
	}
	return updateSymlink(s.recordedDir, traceID)
}

// LoadLatestRecordedTrace resolves recorded/latest; none is (nil, nil).
func (s *Store) LoadLatestRecordedTrace() (*models.RecordedTrace, error) {
	traceID := resolveLatest(s.recordedDir)
	if traceID == "" {
		return nil, nil
	}
	return s.LoadRecordedTrace(traceID)
}

// SaveRevalResult persists a re-evaluation under reevals/{reeval_id}.json.
func (s *Store) SaveRevalResult(result *models.RevalResult) error {
	if result == nil || result.ReevalID == "" {
		return fmt.Errorf("reeval result with id is required")
	}
	if err := os.MkdirAll(s.reevalsDir, 0o755); err != nil {
		return fmt.Errorf("create reevals dir: %w", err)
	}
	return writeJSONAtomic(filepath.Join(s.reevalsDir, result.ReevalID+".json"), result)
}

func (s *Store) addToIndex(scenarioName, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndexLocked()
	if err != nil {
		return err
	}
	index[scenarioName] = append(index[scenarioName], runID)
	return writeJSONAtomic(s.indexPath, index)
}

func (s *Store) removeFromIndex(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.loadIndexLocked()
	if err != nil {
		return err
	}
	changed := false
	for scenario, ids := range index {
		kept := ids[:0]
		for _, id := range ids {
			if id == runID {
				changed = true
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			delete(index, scenario)
		} else {
			index[scenario] = kept
		}
	}
	if !changed {
		return nil
	}
	return writeJSONAtomic(s.indexPath, index)
}

func (s *Store) loadIndex() (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadIndexLocked()
}

func (s *Store) loadIndexLocked() (map[string][]string, error) {
	index := make(map[string][]string)
	if _, err := readJSON(s.indexPath, &index); err != nil {
		return nil, err
	}
	return index, nil
}

// writeJSONAtomic marshals v with two-space indentation and renames a
// sibling temp file over the target so readers never see a partial file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readJSON reports whether the file existed and decodes it when it did.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// updateSymlink atomically repoints <dir>/latest at <id>.json, writing a
// <dir>/.latest text file instead when symlinks are unsupported.
func updateSymlink(dir, id string) error {
	link := filepath.Join(dir, "latest")
	tmp := filepath.Join(dir, ".latest_tmp_"+id)
	os.Remove(tmp)

	if err := os.Symlink(id+".json", tmp); err != nil {
		fallback := filepath.Join(dir, ".latest")
		if werr := os.WriteFile(fallback, []byte(id), 0o644); werr != nil {
			return fmt.Errorf("write latest fallback: %w", werr)
		}
		return nil
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("update latest symlink: %w", err)
	}
	return nil
}

// resolveLatest reads the latest pointer in dir: the "latest" symlink
// first, then the ".latest" fallback file. Empty means no pointer.
func resolveLatest(dir string) string {
	link := filepath.Join(dir, "latest")
	if target, err := os.Readlink(link); err == nil {
		return strings.TrimSuffix(filepath.Base(target), ".json")
	}
	data, err := os.ReadFile(filepath.Join(dir, ".latest"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
