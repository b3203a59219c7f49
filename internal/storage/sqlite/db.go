// Package sqlite persists processing runs and uploads.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"evidencebot/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		source      TEXT NOT NULL DEFAULT '',
		started_at  DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		entries     INTEGER NOT NULL DEFAULT 0,
		passed      INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0,
		errors      INTEGER NOT NULL DEFAULT 0,
		no_entries  INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

	CREATE TABLE IF NOT EXISTS evidence (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		ticket_key  TEXT NOT NULL,
		passed      INTEGER NOT NULL,
		filename    TEXT NOT NULL,
		dir         TEXT NOT NULL,
		entry_index INTEGER NOT NULL DEFAULT 0,
		synthetic   INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_evidence_run ON evidence(run_id);
	CREATE INDEX IF NOT EXISTS idx_evidence_ticket ON evidence(ticket_key);

	CREATE TABLE IF NOT EXISTS uploads (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_key    TEXT NOT NULL,
		filename      TEXT NOT NULL,
		result_type   TEXT NOT NULL,
		attachment_id TEXT DEFAULT '',
		ok            INTEGER NOT NULL,
		error         TEXT DEFAULT '',
		uploaded_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_uploads_ticket ON uploads(ticket_key);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

// InsertRun stores the run summary and its evidence records in one transaction.
func InsertRun(db *sql.DB, run domain.RunResult) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, source, started_at, finished_at, entries, passed, failed, errors, no_entries)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Source, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Stats.Entries, run.Stats.Passed, run.Stats.Failed, run.Stats.Errors, run.NoEntries,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO evidence (run_id, ticket_key, passed, filename, dir, entry_index, synthetic)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range run.Records {
		if _, err := stmt.Exec(run.RunID, rec.TicketKey, rec.Passed(), rec.Filename, rec.Outcome.Dir(), rec.EntryIndex, rec.Synthetic); err != nil {
			return fmt.Errorf("insert evidence %s: %w", rec.TicketKey, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT id, source, started_at, finished_at, entries, passed, failed, errors, no_entries
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		var r domain.RunRecord
		if err := rows.Scan(&r.ID, &r.Source, &r.StartedAt, &r.FinishedAt,
			&r.Entries, &r.Passed, &r.Failed, &r.Errors, &r.NoEntries); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRunEvidence returns the evidence records of a run in emission order.
func GetRunEvidence(db *sql.DB, runID string) ([]domain.EvidenceRecord, error) {
	rows, err := db.Query(
		`SELECT ticket_key, passed, filename, dir, entry_index, synthetic
		 FROM evidence WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.EvidenceRecord
	for rows.Next() {
		var (
			rec    domain.EvidenceRecord
			passed bool
		)
		if err := rows.Scan(&rec.TicketKey, &passed, &rec.Filename, &rec.Dir, &rec.EntryIndex, &rec.Synthetic); err != nil {
			return nil, err
		}
		if !passed {
			rec.Outcome = domain.OutcomeFail
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func InsertUpload(db *sql.DB, u domain.UploadRecord) error {
	if u.UploadedAt.IsZero() {
		u.UploadedAt = time.Now()
	}
	_, err := db.Exec(
		`INSERT INTO uploads (ticket_key, filename, result_type, attachment_id, ok, error, uploaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.TicketKey, u.Filename, u.ResultType, u.AttachmentID, u.OK, u.Error, u.UploadedAt.UTC(),
	)
	return err
}

// ListUploadsByTicket returns every upload attempt for a ticket, newest first.
func ListUploadsByTicket(db *sql.DB, ticketKey string) ([]domain.UploadRecord, error) {
	rows, err := db.Query(
		`SELECT id, ticket_key, filename, result_type, attachment_id, ok, error, uploaded_at
		 FROM uploads WHERE ticket_key = ? ORDER BY uploaded_at DESC, id DESC`, ticketKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UploadRecord
	for rows.Next() {
		var u domain.UploadRecord
		if err := rows.Scan(&u.ID, &u.TicketKey, &u.Filename, &u.ResultType, &u.AttachmentID, &u.OK, &u.Error, &u.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Ledger adapts the run functions to a value that can be handed to the
// HTTP layer.
type Ledger struct {
	DB *sql.DB
}

func (l Ledger) RecordRun(run domain.RunResult) error { return InsertRun(l.DB, run) }

func (l Ledger) RecentRuns(limit int) ([]domain.RunRecord, error) { return ListRuns(l.DB, limit) }

func (l Ledger) RecordUpload(u domain.UploadRecord) error { return InsertUpload(l.DB, u) }
