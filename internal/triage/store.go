package triage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/henryhchchc/lsp-fuzz/internal/coverage"
	"github.com/henryhchchc/lsp-fuzz/internal/executor"
	"github.com/henryhchchc/lsp-fuzz/internal/logging"
)

// Record is one deduplicated crash or hang.
type Record struct {
	ID        int64
	Signature string
	TestCase  string // file name under solutions/
	Kind      executor.OutcomeKind
	Signal    int
	FoundAt   time.Time
}

// Store keeps crash records in a sqlite database next to the corpus. The
// unique signature index is what makes dedup a database property instead of
// an in-memory one, so it survives restarts.
type Store struct {
	db        *sql.DB
	signature SignatureFunc
	retries   int
}

const schema = `
CREATE TABLE IF NOT EXISTS crash_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	signature TEXT NOT NULL UNIQUE,
	test_case TEXT NOT NULL,
	outcome_kind INTEGER NOT NULL,
	signal INTEGER NOT NULL,
	found_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_crash_kind ON crash_records(outcome_kind);
`

// NewStore opens (or creates) the record database at path.
func NewStore(path string, signature SignatureFunc, retries int) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening crash database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating crash schema: %w", err)
	}
	if retries <= 0 {
		retries = 5
	}
	return &Store{db: db, signature: signature, retries: retries}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Report triages one fault. Returns the signature and whether a new record
// was created; a known signature is a duplicate and records nothing.
// Persistence failures are retried and escalate to an error rather than
// silently dropping a finding.
func (s *Store) Report(outcome executor.Outcome, cov *coverage.Map, testCaseName string) (string, bool, error) {
	sig := s.signature(outcome, cov)

	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		res, err := s.db.Exec(
			`INSERT OR IGNORE INTO crash_records (signature, test_case, outcome_kind, signal) VALUES (?, ?, ?, ?)`,
			sig, testCaseName, int(outcome.Kind), outcome.Signal,
		)
		if err != nil {
			lastErr = err
			logging.TriageWarn("persisting crash record (attempt %d): %v", attempt+1, err)
			time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
			continue
		}
		inserted, err := res.RowsAffected()
		if err != nil {
			return sig, false, fmt.Errorf("crash record insert status: %w", err)
		}
		if inserted > 0 {
			logging.Triage("new %s, signature %s, test case %s", outcome, sig, testCaseName)
		} else {
			logging.Triage("duplicate of known signature %s", sig)
		}
		return sig, inserted > 0, nil
	}
	return sig, false, fmt.Errorf("crash record not persisted after %d attempts: %w", s.retries, lastErr)
}

// Records lists all crash records, newest first.
func (s *Store) Records() ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT id, signature, test_case, outcome_kind, signal, found_at FROM crash_records ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing crash records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var kind int
		if err := rows.Scan(&r.ID, &r.Signature, &r.TestCase, &kind, &r.Signal, &r.FoundAt); err != nil {
			return nil, fmt.Errorf("scanning crash record: %w", err)
		}
		r.Kind = executor.OutcomeKind(kind)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of distinct crash records.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM crash_records`).Scan(&n)
	return n, err
}
