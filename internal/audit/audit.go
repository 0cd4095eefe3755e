package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Auditor records contract operations. A nil *Auditor or one without a
// database silently drops entries.
type Auditor struct {
	db *sql.DB
}

type AuditEntry struct {
	ID        int64     `json:"id"`
	Source    string    `json:"source"`
	Action    string    `json:"action"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewAuditor(path string) (*Auditor, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit DB: %w", err)
	}
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		action TEXT NOT NULL,
		input TEXT,
		output TEXT,
		error TEXT,
		timestamp TIMESTAMP NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}
	return &Auditor{db: db}, nil
}

// Log writes one entry. Failures are logged, never returned.
func (a *Auditor) Log(source, action string, input json.RawMessage, output []byte, err error) {
	if a == nil || a.db == nil {
		return
	}
	var errStr string
	if err != nil {
		errStr = err.Error()
	}
	_, dbErr := a.db.Exec(
		"INSERT INTO audit_log (source, action, input, output, error, timestamp) VALUES (?, ?, ?, ?, ?, ?)",
		source, action, string(input), string(output), errStr, time.Now().UTC(),
	)
	if dbErr != nil {
		log.Printf("Failed to write audit log: %v", dbErr)
	}
}

func (a *Auditor) GetLogs(ctx context.Context, limit int) ([]AuditEntry, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}
	rows, err := a.db.QueryContext(ctx, "SELECT id, source, action, input, output, error, timestamp FROM audit_log ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var input, output, errStr sql.NullString
		if err := rows.Scan(&e.ID, &e.Source, &e.Action, &input, &output, &errStr, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Input, e.Output, e.Error = input.String, output.String, errStr.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (a *Auditor) Close() {
	if a != nil && a.db != nil {
		a.db.Close()
	}
}
