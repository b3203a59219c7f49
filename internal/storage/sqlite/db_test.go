package sqlite

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"evidencebot/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "evidencebot-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInitDBIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "twice.db")
	for i := 0; i < 2; i++ {
		db, err := InitDB(dbPath)
		if err != nil {
			t.Fatalf("InitDB #%d failed: %v", i, err)
		}
		db.Close()
	}
}

func TestRunRoundTrip(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().UTC().Truncate(time.Second)

	older := domain.RunResult{
		RunID: "run-1", Source: "old.html",
		StartedAt: base.Add(-time.Hour), FinishedAt: base.Add(-time.Hour),
		NoEntries: true,
	}
	newer := domain.RunResult{
		RunID: "run-2", Source: "report.html",
		StartedAt: base, FinishedAt: base.Add(2 * time.Second),
		Stats: domain.RunStats{Entries: 3, Passed: 1, Failed: 1, Total: 2, Errors: 1},
		Records: []domain.EvidenceRecord{
			{TicketKey: "NEX-18", Outcome: domain.OutcomePass, Filename: "NEX-18.png", EntryIndex: 1},
			{TicketKey: "TESTE_003", Outcome: domain.OutcomeFail, Filename: "TESTE_003.png", EntryIndex: 3, Synthetic: true},
		},
	}
	for _, r := range []domain.RunResult{older, newer} {
		if err := InsertRun(db, r); err != nil {
			t.Fatalf("InsertRun(%s) failed: %v", r.RunID, err)
		}
	}

	runs, err := ListRuns(db, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Fatalf("runs not newest first: %s, %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].Passed != 1 || runs[0].Failed != 1 || runs[0].Errors != 1 || runs[0].Entries != 3 {
		t.Fatalf("unexpected counters: %+v", runs[0])
	}
	if !runs[1].NoEntries {
		t.Fatal("expected run-1 to be flagged no_entries")
	}

	recs, err := GetRunEvidence(db, "run-2")
	if err != nil {
		t.Fatalf("GetRunEvidence failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 evidence records, got %d", len(recs))
	}
	if recs[0].TicketKey != "NEX-18" || !recs[0].Passed() || recs[0].Dir != "sucessos" {
		t.Fatalf("unexpected first record: %+v", recs[0])
	}
	if recs[1].Passed() || !recs[1].Synthetic || recs[1].Dir != "falhas" {
		t.Fatalf("unexpected second record: %+v", recs[1])
	}
}

func TestInsertRunDuplicateIDRollsBack(t *testing.T) {
	db := newTestDB(t)
	run := domain.RunResult{RunID: "dup", StartedAt: time.Now(), FinishedAt: time.Now(),
		Records: []domain.EvidenceRecord{{TicketKey: "A-1", Filename: "A-1.png"}}}
	if err := InsertRun(db, run); err != nil {
		t.Fatalf("first InsertRun failed: %v", err)
	}
	if err := InsertRun(db, run); err == nil {
		t.Fatal("expected duplicate run id to fail")
	}
	recs, err := GetRunEvidence(db, "dup")
	if err != nil {
		t.Fatalf("GetRunEvidence failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected evidence of the first insert only, got %d", len(recs))
	}
}

func TestUploadsByTicket(t *testing.T) {
	db := newTestDB(t)
	base := time.Now().UTC().Truncate(time.Second)

	uploads := []domain.UploadRecord{
		{TicketKey: "BC-1", Filename: "BC-1.png", ResultType: "falhas", OK: false, Error: "403", UploadedAt: base},
		{TicketKey: "BC-1", Filename: "BC-1.png", ResultType: "falhas", AttachmentID: "10", OK: true, UploadedAt: base.Add(time.Minute)},
		{TicketKey: "BC-2", Filename: "BC-2.png", ResultType: "sucessos", OK: true},
	}
	for _, u := range uploads {
		if err := InsertUpload(db, u); err != nil {
			t.Fatalf("InsertUpload failed: %v", err)
		}
	}

	got, err := ListUploadsByTicket(db, "BC-1")
	if err != nil {
		t.Fatalf("ListUploadsByTicket failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(got))
	}
	if !got[0].OK || got[0].AttachmentID != "10" {
		t.Fatalf("expected newest successful upload first, got %+v", got[0])
	}
	if got[1].OK || got[1].Error != "403" {
		t.Fatalf("unexpected older upload: %+v", got[1])
	}
}

func TestLedgerAdapter(t *testing.T) {
	l := Ledger{DB: newTestDB(t)}
	now := time.Now().UTC().Truncate(time.Second)
	if err := l.RecordRun(domain.RunResult{RunID: "run-a", Source: "a.html", StartedAt: now, FinishedAt: now}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	runs, err := l.RecentRuns(5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-a" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	if err := l.RecordUpload(domain.UploadRecord{TicketKey: "BC-1", Filename: "BC-1.png", ResultType: "sucessos", OK: true}); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
}
