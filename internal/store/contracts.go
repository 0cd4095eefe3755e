package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericksa/contractrisk/internal/risk"
)

const contractColumns = "id, filename, original_name, file_size, upload_date, status, risk_score, word_count, created_at"

func (s *Store) AddContract(ctx context.Context, filename, originalName string, size int64) (*Contract, error) {
	now := s.now()
	c := &Contract{
		Filename:     filename,
		OriginalName: originalName,
		FileSize:     size,
		UploadDate:   now,
		Status:       StatusPending,
		CreatedAt:    now,
	}
	id, err := s.insert(ctx, s.db,
		"INSERT INTO contracts (filename, original_name, file_size, upload_date, status, risk_score, word_count, created_at) VALUES (?, ?, ?, ?, ?, 0, 0, ?)",
		c.Filename, c.OriginalName, c.FileSize, c.UploadDate, string(c.Status), c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert contract: %w", err)
	}
	c.ID = id
	return c, nil
}

// ListContracts returns every contract, newest first.
func (s *Store) ListContracts(ctx context.Context) ([]Contract, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+contractColumns+" FROM contracts ORDER BY created_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	contracts := []Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

func (s *Store) GetContract(ctx context.Context, id int64) (*Contract, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+contractColumns+" FROM contracts WHERE id = ?"), id)
	c, err := scanContract(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (s *Store) UpdateContractStatus(ctx context.Context, id int64, status Status, riskScore, wordCount int) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE contracts SET status = ?, risk_score = ?, word_count = ? WHERE id = ?"),
		string(status), riskScore, wordCount, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update contract %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteContract removes a contract together with its risks.
func (s *Store) DeleteContract(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM risks WHERE contract_id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete risks: %w", err)
	}
	res, err := tx.ExecContext(ctx, s.rebind("DELETE FROM contracts WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete contract: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// AddRisks stores the findings of one analysis atomically.
func (s *Store) AddRisks(ctx context.Context, contractID int64, findings []risk.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	query := s.rebind("INSERT INTO risks (contract_id, risk_type, severity, description, occurrences, detected_at) VALUES (?, ?, ?, ?, ?, ?)")
	for _, f := range findings {
		if _, err := tx.ExecContext(ctx, query, contractID, f.Type, string(f.Severity), f.Description, f.Occurrences, now); err != nil {
			return fmt.Errorf("failed to insert risk %q: %w", f.Type, err)
		}
	}
	return tx.Commit()
}

func (s *Store) RisksByContract(ctx context.Context, contractID int64) ([]Risk, error) {
	return s.queryRisks(ctx, "WHERE contract_id = ? ORDER BY id", contractID)
}

// ListRisks returns all stored risks, optionally filtered by severity.
func (s *Store) ListRisks(ctx context.Context, severity string) ([]Risk, error) {
	if severity == "" {
		return s.queryRisks(ctx, "ORDER BY detected_at DESC, id DESC")
	}
	return s.queryRisks(ctx, "WHERE severity = ? ORDER BY detected_at DESC, id DESC", severity)
}

func (s *Store) queryRisks(ctx context.Context, clause string, args ...any) ([]Risk, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT id, contract_id, risk_type, severity, description, occurrences, detected_at FROM risks "+clause),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query risks: %w", err)
	}
	defer rows.Close()

	risks := []Risk{}
	for rows.Next() {
		var r Risk
		var desc sql.NullString
		if err := rows.Scan(&r.ID, &r.ContractID, &r.Type, &r.Severity, &desc, &r.Occurrences, &r.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk: %w", err)
		}
		r.Description = desc.String
		risks = append(risks, r)
	}
	return risks, rows.Err()
}

// TopRiskTypes counts how often each risk type was flagged.
func (s *Store) TopRiskTypes(ctx context.Context, limit int) ([]TypeCount, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT risk_type, severity, COUNT(*) AS n FROM risks GROUP BY risk_type, severity ORDER BY n DESC, risk_type LIMIT ?"),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count risk types: %w", err)
	}
	defer rows.Close()

	counts := []TypeCount{}
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Severity, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan risk type: %w", err)
		}
		counts = append(counts, tc)
	}
	return counts, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM contracts", &st.ContractsAnalyzed},
		{"SELECT COUNT(*) FROM risks", &st.RisksDetected},
		{"SELECT COUNT(*) FROM vendors WHERE status = 'active'", &st.ActiveVendors},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("failed to compute stats: %w", err)
		}
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContract(row rowScanner) (*Contract, error) {
	var c Contract
	var status string
	var size sql.NullInt64
	if err := row.Scan(&c.ID, &c.Filename, &c.OriginalName, &size, &c.UploadDate, &status, &c.RiskScore, &c.WordCount, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan contract: %w", err)
	}
	c.FileSize = size.Int64
	c.Status = Status(status)
	return &c, nil
}
