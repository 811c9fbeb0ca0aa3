package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jherleth/salvo-ai/pkg/models"
)

// HistoryFile is the default history database name under the storage dir.
const HistoryFile = "history.db"

// HistoryConfig configures the sqlite connection pool.
type HistoryConfig struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultHistoryConfig returns pool settings for a local single-file
// database. One open connection at a time avoids SQLITE_BUSY when runs
// append concurrently with a report query.
func DefaultHistoryConfig() *HistoryConfig {
	return &HistoryConfig{
		MaxOpenConns:    1,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// HistoryEntry is one row of the run history index.
type HistoryEntry struct {
	RunID     string
	Scenario  string
	Verdict   models.Verdict
	Score     float64
	PassRate  float64
	Cost      *float64
	Trials    int
	CreatedAt time.Time
}

// History is a sqlite index over past runs, feeding `salvo report
// --history`. The JSON store stays the source of truth; the index only
// answers trend queries without scanning every run file.
type History struct {
	db *sql.DB
}

// Fixed-width timestamp so the TEXT column sorts chronologically;
// RFC3339Nano would drop trailing zeros and break lexical ordering.
const historyTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const historySchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id     TEXT PRIMARY KEY,
	scenario   TEXT NOT NULL,
	verdict    TEXT NOT NULL,
	score      REAL NOT NULL,
	pass_rate  REAL NOT NULL,
	cost       REAL,
	trials     INTEGER NOT NULL,
	created_at TEXT NOT NULL
)`

// OpenHistory opens the history database at path, creating the file and
// the runs table on first use.
func OpenHistory(path string, config *HistoryConfig) (*History, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is required")
	}
	if config == nil {
		config = DefaultHistoryConfig()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create runs table: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the underlying database.
func (h *History) Close() error { return h.db.Close() }

// Append records a suite in the history, replacing any previous row for
// the same run ID.
func (h *History) Append(ctx context.Context, suite *models.TrialSuiteResult) error {
	if suite == nil || suite.RunID == "" {
		return fmt.Errorf("suite with run id is required")
	}
	var cost sql.NullFloat64
	if suite.CostTotal != nil {
		cost = sql.NullFloat64{Float64: *suite.CostTotal, Valid: true}
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, scenario, verdict, score, pass_rate, cost, trials, created_at)
		 VALUES (?,?,?,?,?,?,?,?)
		 ON CONFLICT(run_id) DO UPDATE SET
		   scenario = excluded.scenario, verdict = excluded.verdict,
		   score = excluded.score, pass_rate = excluded.pass_rate,
		   cost = excluded.cost, trials = excluded.trials,
		   created_at = excluded.created_at`,
		suite.RunID,
		suite.ScenarioName,
		string(suite.Verdict),
		suite.ScoreAvg,
		suite.PassRate,
		cost,
		suite.TrialsTotal,
		time.Now().UTC().Format(historyTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("append run history: %w", err)
	}
	return nil
}

// Recent returns history entries newest first, optionally filtered by
// scenario name. limit <= 0 means no limit.
func (h *History) Recent(ctx context.Context, limit int, scenario string) ([]HistoryEntry, error) {
	query := `SELECT run_id, scenario, verdict, score, pass_rate, cost, trials, created_at FROM runs`
	args := []any{}
	if scenario != "" {
		query += ` WHERE scenario = ?`
		args = append(args, scenario)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var (
			entry     HistoryEntry
			verdict   string
			cost      sql.NullFloat64
			createdAt string
		)
		if err := rows.Scan(&entry.RunID, &entry.Scenario, &verdict, &entry.Score,
			&entry.PassRate, &cost, &entry.Trials, &createdAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry.Verdict = models.Verdict(verdict)
		if cost.Valid {
			c := cost.Float64
			entry.Cost = &c
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			entry.CreatedAt = ts
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read run history: %w", err)
	}
	return entries, nil
}
