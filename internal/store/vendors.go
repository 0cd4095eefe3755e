package store

import (
	"context"
	"fmt"
)

func (s *Store) AddVendor(ctx context.Context, name, riskLevel string) (*Vendor, error) {
	if riskLevel == "" {
		riskLevel = "low"
	}
	v := &Vendor{Name: name, Status: "active", RiskLevel: riskLevel, CreatedAt: s.now()}
	id, err := s.insert(ctx, s.db,
		"INSERT INTO vendors (name, status, risk_level, created_at) VALUES (?, ?, ?, ?)",
		v.Name, v.Status, v.RiskLevel, v.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert vendor: %w", err)
	}
	v.ID = id
	return v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]Vendor, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, status, risk_level, created_at FROM vendors ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	defer rows.Close()

	vendors := []Vendor{}
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Status, &v.RiskLevel, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}
