/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/callgrade/callgrade/pipeline"
)

// Status is a run's lifecycle state. Runs move pending -> running -> one of
// the terminal statuses, and a terminal row is never written again.
type Status string

const (
	// StatusPending means the run is accepted but no worker has picked
	// it up.
	StatusPending Status = "pending"
	// StatusRunning means a worker is evaluating the transcript.
	StatusRunning Status = "running"

	// Terminal statuses mirror the evaluation record's disposition.
	StatusCompleted      Status = Status(pipeline.StatusCompleted)
	StatusFailedHard     Status = Status(pipeline.StatusFailedHard)
	StatusFailedCritical Status = Status(pipeline.StatusFailedCritical)
)

// Terminal reports whether the run has finished.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailedHard, StatusFailedCritical:
		return true
	}
	return false
}

// ErrNotFound is returned by Get for unknown run IDs.
var ErrNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	call_id      TEXT NOT NULL,
	blueprint_id TEXT NOT NULL,
	status       TEXT NOT NULL,
	explanation  TEXT,
	result_json  TEXT,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS runs_by_call ON runs(call_id, created_at);
`

// Run is the bookkeeping row for one evaluation request. Result is nil until
// the run completes; hard-failed runs never carry one.
type Run struct {
	ID          string                    `json:"run_id"`
	CallID      string                    `json:"call_id"`
	BlueprintID string                    `json:"blueprint_id"`
	Status      Status                    `json:"status"`
	Explanation string                    `json:"explanation,omitempty"`
	Result      *pipeline.FinalEvaluation `json:"result,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// Store persists runs in SQLite.
type Store struct {
	db *sql.DB
}

// OpenStore opens the database at path, creating the schema when missing.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("configuring run store: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrating run store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a pending run and returns it.
func (s *Store) Create(ctx context.Context, callID, blueprintID string) (*Run, error) {
	now := time.Now().UTC()
	run := &Run{
		ID:          uuid.NewString(),
		CallID:      callID,
		BlueprintID: blueprintID,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, call_id, blueprint_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.CallID, run.BlueprintID, string(run.Status),
		stamp(now), stamp(now))
	if err != nil {
		return nil, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// Start moves a pending run to running.
func (s *Store) Start(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE run_id = ? AND status = ?`,
		string(StatusRunning), stamp(time.Now().UTC()), id, string(StatusPending))
	if err != nil {
		return fmt.Errorf("starting run %s: %w", id, err)
	}
	return oneRow(res, fmt.Sprintf("run %s is not pending", id))
}

// CommitResult writes the terminal outcome of a running run in a single
// update: status, explanation, and the full record land together or not at
// all. A run commits exactly once.
func (s *Store) CommitResult(ctx context.Context, id string, fe *pipeline.FinalEvaluation) error {
	raw, err := json.Marshal(fe)
	if err != nil {
		return fmt.Errorf("encoding result for run %s: %w", id, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, explanation = ?, result_json = ?, updated_at = ?
		 WHERE run_id = ? AND status = ?`,
		string(fe.Status), fe.Explanation, string(raw), stamp(time.Now().UTC()),
		id, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("committing run %s: %w", id, err)
	}
	return oneRow(res, fmt.Sprintf("run %s is not running", id))
}

// FailHard marks a non-terminal run failed_hard with the reason. No result
// is stored: hard failures have no evaluation to persist.
func (s *Store) FailHard(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, explanation = ?, updated_at = ?
		 WHERE run_id = ? AND status IN (?, ?)`,
		string(StatusFailedHard), reason, stamp(time.Now().UTC()),
		id, string(StatusPending), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("failing run %s: %w", id, err)
	}
	return oneRow(res, fmt.Sprintf("run %s is already terminal", id))
}

// Get reads one run, decoding its result when present.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var run Run
	var status, createdStr, updatedStr string
	var explanation, resultJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, call_id, blueprint_id, status, explanation, result_json, created_at, updated_at
		 FROM runs WHERE run_id = ?`, id).
		Scan(&run.ID, &run.CallID, &run.BlueprintID, &status, &explanation, &resultJSON, &createdStr, &updatedStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading run %s: %w", id, err)
	}

	run.Status = Status(status)
	if explanation.Valid {
		run.Explanation = explanation.String
	}
	if resultJSON.Valid {
		var fe pipeline.FinalEvaluation
		if err := json.Unmarshal([]byte(resultJSON.String), &fe); err != nil {
			return nil, fmt.Errorf("decoding result for run %s: %w", id, err)
		}
		run.Result = &fe
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	run.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &run, nil
}

func stamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func oneRow(res sql.Result, msg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New(msg)
	}
	return nil
}
