// Package audit is a durable transaction-outcome and fault ledger,
// separate from the per-transaction temp file the assembler owns.
// It is not part of the CFDP protocol itself; it exists so an
// operator can answer "what happened to transaction X" after the
// process restarts, the same role the teacher repo's SQLite-backed
// jobs/health tables play for its import pipeline (internal/db/db.go,
// internal/jobs/jobs.go).
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger is the audit database handle.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite-backed ledger at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: mkdir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(4)

	l := &Ledger{db: sqlDB}
	if err := l.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS transactions (
			source_entity_id INTEGER NOT NULL,
			transaction_seq  INTEGER NOT NULL,
			state            TEXT NOT NULL,
			outcome          TEXT NOT NULL,
			destination_path TEXT,
			updated_at       INTEGER NOT NULL,
			PRIMARY KEY (source_entity_id, transaction_seq)
		);`,
		`CREATE TABLE IF NOT EXISTS fault_history (
			source_entity_id INTEGER NOT NULL,
			transaction_seq  INTEGER NOT NULL,
			seq              INTEGER NOT NULL,
			condition_code   TEXT NOT NULL,
			at               INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fault_history_tx ON fault_history(source_entity_id, transaction_seq, seq);`,
	}
	for _, s := range stmts {
		if _, err := l.db.Exec(s); err != nil {
			return fmt.Errorf("audit: migrate: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// RecordOutcome upserts the terminal (or frozen-on-suspend) state of a
// transaction.
func (l *Ledger) RecordOutcome(ctx context.Context, sourceEntityID, seqNo uint64, state, outcome, destinationPath string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO transactions(source_entity_id, transaction_seq, state, outcome, destination_path, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_entity_id, transaction_seq) DO UPDATE SET
			state=excluded.state, outcome=excluded.outcome,
			destination_path=excluded.destination_path, updated_at=excluded.updated_at`,
		sourceEntityID, seqNo, state, outcome, destinationPath, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("audit: record outcome: %w", err)
	}
	return nil
}

// AppendFault appends one raised condition code to a transaction's
// fault history.
func (l *Ledger) AppendFault(ctx context.Context, sourceEntityID, seqNo uint64, conditionCode string) error {
	var next int
	row := l.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM fault_history WHERE source_entity_id=? AND transaction_seq=?`, sourceEntityID, seqNo)
	if err := row.Scan(&next); err != nil {
		return fmt.Errorf("audit: next fault seq: %w", err)
	}
	_, err := l.db.ExecContext(ctx, `INSERT INTO fault_history(source_entity_id, transaction_seq, seq, condition_code, at) VALUES (?, ?, ?, ?, ?)`,
		sourceEntityID, seqNo, next, conditionCode, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("audit: append fault: %w", err)
	}
	return nil
}

// FaultHistory returns the condition codes raised for a transaction,
// oldest first, bounded to the last limit entries (the Finished PDU
// audit record keeps the last 8; see SPEC_FULL.md's supplemented
// behaviors).
func (l *Ledger) FaultHistory(ctx context.Context, sourceEntityID, seqNo uint64, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 8
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT condition_code FROM fault_history
		WHERE source_entity_id=? AND transaction_seq=?
		ORDER BY seq DESC LIMIT ?`, sourceEntityID, seqNo, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: fault history: %w", err)
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	// Reverse to oldest-first; it was queried newest-first to bound by LIMIT.
	for i, j := 0, len(codes)-1; i < j; i, j = i+1, j-1 {
		codes[i], codes[j] = codes[j], codes[i]
	}
	return codes, rows.Err()
}
