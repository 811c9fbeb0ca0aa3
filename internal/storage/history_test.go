package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jherleth/salvo-ai/pkg/models"
)

func TestHistoryAppendAndRecent(t *testing.T) {
	history, err := OpenHistory(filepath.Join(t.TempDir(), HistoryFile), nil)
	if err != nil {
		t.Fatalf("OpenHistory() error = %v", err)
	}
	defer history.Close()

	ctx := context.Background()
	cost := 0.012
	suites := []*models.TrialSuiteResult{
		{RunID: "run-1", ScenarioName: "weather", Verdict: models.VerdictPass, ScoreAvg: 0.9, PassRate: 1.0, CostTotal: &cost, TrialsTotal: 3},
		{RunID: "run-2", ScenarioName: "weather", Verdict: models.VerdictFail, ScoreAvg: 0.4, PassRate: 0.0, TrialsTotal: 3},
		{RunID: "run-3", ScenarioName: "arithmetic", Verdict: models.VerdictPass, ScoreAvg: 1.0, PassRate: 1.0, TrialsTotal: 1},
	}
	for _, suite := range suites {
		if err := history.Append(ctx, suite); err != nil {
			t.Fatalf("Append(%s) error = %v", suite.RunID, err)
		}
	}

	entries, err := history.Recent(ctx, 0, "")
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	// Newest first.
	if entries[0].RunID != "run-3" || entries[2].RunID != "run-1" {
		t.Errorf("order = [%s %s %s], want newest first",
			entries[0].RunID, entries[1].RunID, entries[2].RunID)
	}
	if entries[2].Cost == nil || *entries[2].Cost != 0.012 {
		t.Errorf("run-1 cost = %v, want 0.012", entries[2].Cost)
	}
	if entries[1].Cost != nil {
		t.Errorf("run-2 cost = %v, want nil", entries[1].Cost)
	}
	if entries[0].Verdict != models.VerdictPass || entries[0].Trials != 1 {
		t.Errorf("run-3 entry = %+v", entries[0])
	}
	if entries[0].CreatedAt.IsZero() {
		t.Error("created_at not parsed")
	}
}

func TestHistoryRecentFilterAndLimit(t *testing.T) {
	history, err := OpenHistory(filepath.Join(t.TempDir(), HistoryFile), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer history.Close()

	ctx := context.Background()
	for _, id := range []string{"run-1", "run-2", "run-3"} {
		scenario := "weather"
		if id == "run-2" {
			scenario = "arithmetic"
		}
		suite := &models.TrialSuiteResult{RunID: id, ScenarioName: scenario, Verdict: models.VerdictPass, TrialsTotal: 1}
		if err := history.Append(ctx, suite); err != nil {
			t.Fatal(err)
		}
	}

	weather, err := history.Recent(ctx, 10, "weather")
	if err != nil {
		t.Fatal(err)
	}
	if len(weather) != 2 {
		t.Fatalf("weather entries = %d, want 2", len(weather))
	}
	for _, entry := range weather {
		if entry.Scenario != "weather" {
			t.Errorf("filter leaked scenario %q", entry.Scenario)
		}
	}

	limited, err := history.Recent(ctx, 1, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 || limited[0].RunID != "run-3" {
		t.Errorf("limited = %+v, want just run-3", limited)
	}
}

func TestHistoryAppendUpsert(t *testing.T) {
	history, err := OpenHistory(filepath.Join(t.TempDir(), HistoryFile), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer history.Close()

	ctx := context.Background()
	suite := &models.TrialSuiteResult{RunID: "run-1", ScenarioName: "weather", Verdict: models.VerdictFail, ScoreAvg: 0.2, TrialsTotal: 3}
	if err := history.Append(ctx, suite); err != nil {
		t.Fatal(err)
	}
	suite.Verdict = models.VerdictPass
	suite.ScoreAvg = 0.95
	if err := history.Append(ctx, suite); err != nil {
		t.Fatalf("second Append() error = %v", err)
	}

	entries, err := history.Recent(ctx, 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries after upsert = %d, want 1", len(entries))
	}
	if entries[0].Verdict != models.VerdictPass || entries[0].Score != 0.95 {
		t.Errorf("upsert did not replace row: %+v", entries[0])
	}
}

func TestHistoryAppendValidation(t *testing.T) {
	history := &History{}
	if err := history.Append(context.Background(), nil); err == nil {
		t.Error("Append(nil) expected error")
	}
	if err := history.Append(context.Background(), &models.TrialSuiteResult{}); err == nil {
		t.Error("Append without run id expected error")
	}
}

func TestHistoryAppendExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	history := &History{db: db}

	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-1", "weather", "PASS", 0.9, 1.0, sqlmock.AnyArg(), 3, sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))

	suite := &models.TrialSuiteResult{RunID: "run-1", ScenarioName: "weather", Verdict: models.VerdictPass, ScoreAvg: 0.9, PassRate: 1.0, TrialsTotal: 3}
	err = history.Append(context.Background(), suite)
	if err == nil || !strings.Contains(err.Error(), "append run history") {
		t.Errorf("Append() error = %v, want wrapped exec error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHistoryRecentQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	history := &History{db: db}

	mock.ExpectQuery("SELECT run_id").WillReturnError(errors.New("database is locked"))

	_, err = history.Recent(context.Background(), 5, "")
	if err == nil || !strings.Contains(err.Error(), "query run history") {
		t.Errorf("Recent() error = %v, want wrapped query error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHistoryRecentScanError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	history := &History{db: db}

	rows := sqlmock.NewRows([]string{"run_id", "scenario", "verdict", "score", "pass_rate", "cost", "trials", "created_at"}).
		AddRow("run-1", "weather", "PASS", "not-a-float", 1.0, nil, 3, "2026-08-25T10:00:00.000000000Z")
	mock.ExpectQuery("SELECT run_id").WillReturnRows(rows)

	_, err = history.Recent(context.Background(), 0, "")
	if err == nil || !strings.Contains(err.Error(), "scan history row") {
		t.Errorf("Recent() error = %v, want scan error", err)
	}
}
