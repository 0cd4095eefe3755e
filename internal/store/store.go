// Package store persists contracts, their detected risks and vendors.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

type Status string

const (
	StatusPending  Status = "pending"
	StatusAnalyzed Status = "analyzed"
	StatusFailed   Status = "failed"
)

type Contract struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	FileSize     int64     `json:"file_size"`
	UploadDate   time.Time `json:"upload_date"`
	Status       Status    `json:"status"`
	RiskScore    int       `json:"risk_score"`
	WordCount    int       `json:"word_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type Risk struct {
	ID          int64     `json:"id"`
	ContractID  int64     `json:"contract_id"`
	Type        string    `json:"risk_type"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	Occurrences int       `json:"occurrences"`
	DetectedAt  time.Time `json:"detected_at"`
}

type Vendor struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	RiskLevel string    `json:"risk_level"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats feeds the dashboard counters.
type Stats struct {
	ContractsAnalyzed int `json:"contractsAnalyzed"`
	RisksDetected     int `json:"risksDetected"`
	ActiveVendors     int `json:"activeVendors"`
}

// TypeCount is the number of contracts flagged with one risk type.
type TypeCount struct {
	Type     string `json:"risk_type"`
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

// Store wraps a sqlite3 or postgres database.
type Store struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to the database and creates the tables if needed.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite3" {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		pk = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS contracts (
			id ` + pk + `,
			filename TEXT NOT NULL,
			original_name TEXT NOT NULL,
			file_size BIGINT,
			upload_date TIMESTAMP NOT NULL,
			status TEXT DEFAULT 'pending',
			risk_score INTEGER DEFAULT 0,
			word_count INTEGER DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS risks (
			id ` + pk + `,
			contract_id BIGINT NOT NULL REFERENCES contracts(id),
			risk_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			description TEXT,
			occurrences INTEGER DEFAULT 1,
			detected_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_risks_contract ON risks(contract_id)`,
		`CREATE TABLE IF NOT EXISTS vendors (
			id ` + pk + `,
			name TEXT NOT NULL,
			status TEXT DEFAULT 'active',
			risk_level TEXT DEFAULT 'low',
			created_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2... for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) insert(ctx context.Context, q execQuerier, query string, args ...any) (int64, error) {
	if s.driver == "postgres" {
		var id int64
		err := q.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
