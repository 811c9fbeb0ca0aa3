package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jherleth/salvo-ai/pkg/models"
)

func testTrace(content string) *models.RunTrace {
	cost := 0.0042
	return &models.RunTrace{
		Messages: []models.TraceMessage{
			{Role: models.RoleUser, Content: ptr("What is the weather in Oslo?")},
			{Role: models.RoleAssistant, Content: ptr(content)},
		},
		TurnCount:      1,
		InputTokens:    100,
		OutputTokens:   20,
		TotalTokens:    120,
		LatencySeconds: 1.5,
		FinalContent:   ptr(content),
		FinishReason:   "stop",
		Model:          "gpt-4o",
		Provider:       "openai",
		Timestamp:      time.Now().UTC().Truncate(time.Second),
		ScenarioHash:   "abc123def456",
		CostUSD:        &cost,
	}
}

func testSuite(runID, scenario string) *models.TrialSuiteResult {
	return &models.TrialSuiteResult{
		RunID:        runID,
		ScenarioName: scenario,
		Model:        "gpt-4o",
		Adapter:      "openai",
		Trials: []models.TrialResult{
			{TrialNumber: 1, Status: models.TrialPassed, Score: 0.9, Passed: true, TraceID: "trace-1"},
		},
		TrialsTotal:  1,
		TrialsPassed: 1,
		Verdict:      models.VerdictPass,
		PassRate:     1.0,
		ScoreAvg:     0.9,
		Threshold:    0.8,
		NRequested:   1,
	}
}

func ptr(s string) *string { return &s }

func TestStoreTraceRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	trace := testTrace("It is sunny.")

	if err := store.SaveTrace("trace-1", trace); err != nil {
		t.Fatalf("SaveTrace() error = %v", err)
	}

	loaded, err := store.LoadTrace("trace-1")
	if err != nil {
		t.Fatalf("LoadTrace() error = %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadTrace() = nil for saved trace")
	}
	if !reflect.DeepEqual(loaded, trace) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", loaded, trace)
	}
}

func TestStoreLoadTraceMissing(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	trace, err := store.LoadTrace("no-such-trace")
	if err != nil {
		t.Fatalf("LoadTrace() error = %v", err)
	}
	if trace != nil {
		t.Errorf("missing trace = %+v, want nil", trace)
	}
}

func TestStoreSaveTraceOverwrites(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	if err := store.SaveTrace("trace-1", testTrace("first")); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveTrace("trace-1", testTrace("second")); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadTrace("trace-1")
	if err != nil {
		t.Fatal(err)
	}
	if *loaded.FinalContent != "second" {
		t.Errorf("final content = %q, want overwrite to win", *loaded.FinalContent)
	}
}

func TestStoreNoTempFilesAfterWrites(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "")

	if err := store.SaveTrace("trace-1", testTrace("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SaveSuiteResult(testSuite("run-1", "weather")); err != nil {
		t.Fatal(err)
	}

	var leftovers []string
	err := filepath.Walk(filepath.Join(root, DefaultDir), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if filepath.Ext(path) == ".tmp" {
			leftovers = append(leftovers, path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestStoreSaveSuiteUpdatesIndex(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "")

	id1, err := store.SaveSuiteResult(testSuite("run-1", "weather"))
	if err != nil {
		t.Fatalf("SaveSuiteResult() error = %v", err)
	}
	id2, err := store.SaveSuiteResult(testSuite("run-2", "weather"))
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(root, DefaultDir, "index.json"))
	if err != nil {
		t.Fatalf("index.json missing: %v", err)
	}
	var index map[string][]string
	if err := json.Unmarshal(data, &index); err != nil {
		t.Fatalf("index.json corrupt: %v", err)
	}
	if !reflect.DeepEqual(index["weather"], []string{id1, id2}) {
		t.Errorf("index[weather] = %v, want [%s %s]", index["weather"], id1, id2)
	}
}

func TestStoreLoadSuiteResult(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	suite := testSuite("run-1", "weather")
	if _, err := store.SaveSuiteResult(suite); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadSuiteResult("run-1")
	if err != nil {
		t.Fatalf("LoadSuiteResult() error = %v", err)
	}
	if loaded.RunID != "run-1" || loaded.Verdict != models.VerdictPass || loaded.ScoreAvg != 0.9 {
		t.Errorf("loaded suite = %+v", loaded)
	}

	if _, err := store.LoadSuiteResult("absent"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing suite error = %v, want ErrNotFound", err)
	}
}

func TestStoreLatestSuite(t *testing.T) {
	store := NewStore(t.TempDir(), "")

	// No pointer at all.
	suite, err := store.LoadLatestSuite()
	if err != nil || suite != nil {
		t.Fatalf("LoadLatestSuite() with no pointer = (%v, %v), want (nil, nil)", suite, err)
	}

	if _, err := store.SaveSuiteResult(testSuite("run-1", "weather")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SaveSuiteResult(testSuite("run-2", "weather")); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateLatestSymlink("run-2"); err != nil {
		t.Fatalf("UpdateLatestSymlink() error = %v", err)
	}

	suite, err = store.LoadLatestSuite()
	if err != nil {
		t.Fatal(err)
	}
	if suite == nil || suite.RunID != "run-2" {
		t.Errorf("latest suite = %+v, want run-2", suite)
	}

	// Repointing replaces the previous target.
	if err := store.UpdateLatestSymlink("run-1"); err != nil {
		t.Fatal(err)
	}
	suite, err = store.LoadLatestSuite()
	if err != nil {
		t.Fatal(err)
	}
	if suite == nil || suite.RunID != "run-1" {
		t.Errorf("repointed latest = %+v, want run-1", suite)
	}
}

func TestStoreLatestDanglingTarget(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	if err := store.UpdateLatestSymlink("deleted-run"); err != nil {
		t.Fatal(err)
	}
	suite, err := store.LoadLatestSuite()
	if err != nil || suite != nil {
		t.Errorf("dangling latest = (%v, %v), want (nil, nil)", suite, err)
	}
}

func TestStoreLatestFallbackFile(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "")
	if _, err := store.SaveSuiteResult(testSuite("run-9", "weather")); err != nil {
		t.Fatal(err)
	}

	// Simulate a filesystem without symlinks: only the text fallback exists.
	fallback := filepath.Join(root, DefaultDir, "runs", ".latest")
	if err := os.WriteFile(fallback, []byte("run-9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	suite, err := store.LoadLatestSuite()
	if err != nil {
		t.Fatal(err)
	}
	if suite == nil || suite.RunID != "run-9" {
		t.Errorf("fallback latest = %+v, want run-9", suite)
	}
}

func TestStoreListRuns(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	for _, id := range []string{"run-c", "run-a", "run-b"} {
		scenario := "weather"
		if id == "run-b" {
			scenario = "arithmetic"
		}
		if _, err := store.SaveSuiteResult(testSuite(id, scenario)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListRuns("")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(all, []string{"run-a", "run-b", "run-c"}) {
		t.Errorf("all runs = %v, want sorted", all)
	}

	weather, err := store.ListRuns("weather")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(weather, []string{"run-c", "run-a"}) {
		t.Errorf("weather runs = %v, want insertion order", weather)
	}

	none, err := store.ListRuns("absent")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("absent scenario runs = %v, want empty", none)
	}
}

func TestStoreDeleteRun(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "")
	if _, err := store.SaveSuiteResult(testSuite("run-1", "deletable")); err != nil {
		t.Fatal(err)
	}

	existed, err := store.DeleteRun("run-1")
	if err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if !existed {
		t.Error("DeleteRun() = false for existing run")
	}
	if _, err := os.Stat(filepath.Join(root, DefaultDir, "runs", "run-1.json")); !os.IsNotExist(err) {
		t.Error("run file still present after delete")
	}

	index, err := store.loadIndex()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := index["deletable"]; ok {
		t.Error("empty scenario entry kept in index after delete")
	}

	existed, err = store.DeleteRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if existed {
		t.Error("DeleteRun() = true for already-deleted run")
	}
}

func TestStoreManifestAppendAndRead(t *testing.T) {
	store := NewStore(t.TempDir(), "")

	first := ManifestEntry{
		RunID:        "run-1",
		TraceID:      "trace-1",
		TrialIndex:   1,
		Status:       models.TrialPassed,
		ScenarioName: "weather",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	second := ManifestEntry{
		RunID:        "run-1",
		TraceID:      "trace-2",
		TrialIndex:   2,
		Status:       models.TrialInfraError,
		Error:        "authentication failed",
		ScenarioName: "weather",
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := store.AppendManifestEntry(first); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendManifestEntry(second); err != nil {
		t.Fatal(err)
	}

	entries, err := store.ManifestEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("manifest entries = %d, want 2", len(entries))
	}
	if !reflect.DeepEqual(entries[0], first) || !reflect.DeepEqual(entries[1], second) {
		t.Errorf("manifest round trip mismatch:\n%+v\n%+v", entries[0], entries[1])
	}
}

func TestStoreManifestConcurrentAppends(t *testing.T) {
	store := NewStore(t.TempDir(), "")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			entry := ManifestEntry{RunID: "run-1", TraceID: "trace", TrialIndex: n, Status: models.TrialPassed}
			if err := store.AppendManifestEntry(entry); err != nil {
				t.Errorf("AppendManifestEntry(%d) error = %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	entries, err := store.ManifestEntries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 16 {
		t.Errorf("manifest entries = %d, want 16 (no torn lines)", len(entries))
	}
}

func TestStoreManifestMissing(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	entries, err := store.ManifestEntries()
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Errorf("missing manifest = %v, want nil", entries)
	}
}

func TestStoreRecordedTraceRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), "")
	recorded := &models.RecordedTrace{
		Metadata: models.TraceMetadata{
			SchemaVersion: 1,
			RecordingMode: models.RecordingModeFull,
			SalvoVersion:  "0.1.0",
			RecordedAt:    time.Now().UTC().Truncate(time.Second),
			SourceRunID:   "run-1",
			ScenarioName:  "weather",
			ScenarioFile:  "scenarios/weather.yaml",
			ScenarioHash:  "abc123def456",
		},
		Trace:            *testTrace("It is sunny."),
		ScenarioSnapshot: json.RawMessage(`{"name":"weather"}`),
	}

	if err := store.SaveRecordedTrace("trace-1", recorded); err != nil {
		t.Fatalf("SaveRecordedTrace() error = %v", err)
	}
	if err := store.UpdateLatestRecordedSymlink("trace-1"); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadRecordedTrace("trace-1")
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil || loaded.Metadata.SourceRunID != "run-1" {
		t.Errorf("loaded recorded trace = %+v", loaded)
	}

	latest, err := store.LoadLatestRecordedTrace()
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.Metadata.ScenarioName != "weather" {
		t.Errorf("latest recorded trace = %+v", latest)
	}

	missing, err := store.LoadRecordedTrace("absent")
	if err != nil || missing != nil {
		t.Errorf("missing recorded trace = (%v, %v), want (nil, nil)", missing, err)
	}
}

func TestStoreSaveRevalResult(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, "")
	result := &models.RevalResult{
		ReevalID:        "reeval-1",
		OriginalTraceID: "trace-1",
		ScenarioName:    "weather",
		EvalResults: []models.EvalResult{
			{AssertionType: "jmespath", Score: 1, Passed: true, Weight: 1},
		},
		Score:          1.0,
		Passed:         true,
		Threshold:      0.8,
		EvaluatedAt:    time.Now().UTC().Truncate(time.Second),
		AssertionsUsed: 1,
	}

	if err := store.SaveRevalResult(result); err != nil {
		t.Fatalf("SaveRevalResult() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(root, DefaultDir, "reevals", "reeval-1.json"))
	if err != nil {
		t.Fatalf("reeval file missing: %v", err)
	}
	var loaded models.RevalResult
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatal(err)
	}
	if loaded.ReevalID != "reeval-1" || !loaded.Passed || loaded.AssertionsUsed != 1 {
		t.Errorf("reeval round trip = %+v", loaded)
	}
}

func TestStoreCustomDir(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root, ".custom")
	if _, err := store.SaveSuiteResult(testSuite("run-1", "weather")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, ".custom", "runs", "run-1.json")); err != nil {
		t.Errorf("suite not stored under custom dir: %v", err)
	}
}
