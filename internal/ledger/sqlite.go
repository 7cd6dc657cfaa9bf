// Package ledger stores completed verifications and the session access
// audit trail in SQLite for local and single-node deployments.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"insurance-agent/internal/domain"
)

const listLimit = 100

// timeLayout is fixed-width so submitted_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
    submission_id    TEXT PRIMARY KEY,
    submitted_at     TEXT NOT NULL,
    session_id       TEXT NOT NULL,
    name             TEXT NOT NULL,
    dob              TEXT NOT NULL,
    provider         TEXT NOT NULL,
    policy_id        TEXT NOT NULL,
    status           TEXT NOT NULL CHECK(status IN ('Verified','ReviewNeeded','PlanNotFound')),
    plan_name        TEXT NOT NULL,
    coverage_summary TEXT NOT NULL,
    next_steps       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_submitted_at ON submissions(submitted_at);

CREATE TABLE IF NOT EXISTS audit_log (
    event_id   TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    action     TEXT NOT NULL,
    step       TEXT NOT NULL,
    at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_session ON audit_log(session_id, at);
`

// SQLite is a submission ledger backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path.
func Open(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger: path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("ledger: opening database: %w", err)
	}
	return setup(db)
}

// OpenMemory creates an in-memory ledger (useful for testing).
func OpenMemory() (*SQLite, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("ledger: opening in-memory database: %w", err)
	}
	// Each connection to :memory: is its own database.
	db.SetMaxOpenConns(1)
	return setup(db)
}

func setup(db *sql.DB) (*SQLite, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: pinging database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: running migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the database.
func (l *SQLite) Close() error {
	return l.db.Close()
}

// Record inserts a submission.
func (l *SQLite) Record(ctx context.Context, sub domain.Submission) error {
	if strings.TrimSpace(sub.SubmissionID) == "" {
		return errors.New("ledger: submission id is required")
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO submissions (
			submission_id, submitted_at, session_id, name, dob, provider, policy_id,
			status, plan_name, coverage_summary, next_steps
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.SubmissionID,
		sub.SubmittedAt.UTC().Format(timeLayout),
		sub.SessionID,
		sub.Patient.Name,
		sub.Patient.DOB,
		sub.Patient.Provider,
		sub.Patient.PolicyID,
		string(sub.Result.Status),
		sub.Result.PlanName,
		sub.Result.CoverageSummary,
		sub.Result.NextSteps,
	)
	if err != nil {
		return fmt.Errorf("ledger: inserting submission: %w", err)
	}
	return nil
}

// List returns the latest 100 submissions, newest first.
func (l *SQLite) List(ctx context.Context) ([]domain.Submission, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT submission_id, submitted_at, session_id, name, dob, provider, policy_id,
		       status, plan_name, coverage_summary, next_steps
		FROM submissions
		ORDER BY submitted_at DESC
		LIMIT ?`, listLimit)
	if err != nil {
		return nil, fmt.Errorf("ledger: querying submissions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		var (
			sub       domain.Submission
			submitted string
			status    string
		)
		if err := rows.Scan(
			&sub.SubmissionID, &submitted, &sub.SessionID,
			&sub.Patient.Name, &sub.Patient.DOB, &sub.Patient.Provider, &sub.Patient.PolicyID,
			&status, &sub.Result.PlanName, &sub.Result.CoverageSummary, &sub.Result.NextSteps,
		); err != nil {
			return nil, fmt.Errorf("ledger: scanning submission: %w", err)
		}
		sub.Result.Status = domain.Status(status)
		sub.SubmittedAt, err = time.Parse(timeLayout, submitted)
		if err != nil {
			return nil, fmt.Errorf("ledger: parsing submitted_at: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Audit appends an access event.
func (l *SQLite) Audit(ctx context.Context, ev domain.AuditEvent) error {
	if ev.EventID == "" || ev.SessionID == "" {
		return errors.New("ledger: audit event and session ids are required")
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (event_id, session_id, action, step, at) VALUES (?, ?, ?, ?, ?)`,
		ev.EventID, ev.SessionID, string(ev.Action), string(ev.Step), ev.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("ledger: inserting audit event: %w", err)
	}
	return nil
}

// Trail returns the events recorded for sessionID, oldest first.
func (l *SQLite) Trail(ctx context.Context, sessionID string) ([]domain.AuditEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, session_id, action, step, at
		FROM audit_log
		WHERE session_id = ?
		ORDER BY at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ledger: querying audit log: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			ev           domain.AuditEvent
			action, step string
			at           string
		)
		if err := rows.Scan(&ev.EventID, &ev.SessionID, &action, &step, &at); err != nil {
			return nil, fmt.Errorf("ledger: scanning audit event: %w", err)
		}
		ev.Action = domain.AuditAction(action)
		ev.Step = domain.Step(step)
		ev.At, err = time.Parse(timeLayout, at)
		if err != nil {
			return nil, fmt.Errorf("ledger: parsing audit time: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
