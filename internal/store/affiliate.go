package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/cohabit/internal/model"
)

type AffiliateStore struct {
	db *sql.DB
}

func NewAffiliateStore(db *sql.DB) *AffiliateStore {
	return &AffiliateStore{db: db}
}

func scanAffiliate(scanner interface{ Scan(...any) error }) (*model.AffiliateLink, error) {
	var a model.AffiliateLink
	err := scanner.Scan(
		&a.ID, &a.Code, &a.OwnerName, &a.OwnerEmail, &a.CommissionPercent,
		&a.Clicks, &a.Conversions, &a.RevenueCents, &a.CommissionCents,
		&a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const affiliateCols = `id, code, owner_name, owner_email, commission_percent, clicks, conversions,
	revenue_cents, commission_cents, active, created_at, updated_at`

func (s *AffiliateStore) Create(code, ownerName, ownerEmail string, commissionPercent int) (*model.AffiliateLink, error) {
	result, err := s.db.Exec(
		`INSERT INTO affiliate_links (code, owner_name, owner_email, commission_percent) VALUES (?, ?, ?, ?)`,
		strings.ToLower(strings.TrimSpace(code)), ownerName, normalizeEmail(ownerEmail), commissionPercent,
	)
	if err != nil {
		return nil, fmt.Errorf("insert affiliate link: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+affiliateCols+` FROM affiliate_links WHERE id = ?`, id)
	return scanAffiliate(row)
}

func (s *AffiliateStore) GetByCode(code string) (*model.AffiliateLink, error) {
	row := s.db.QueryRow(`SELECT `+affiliateCols+` FROM affiliate_links WHERE code = ?`, strings.TrimSpace(code))
	a, err := scanAffiliate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get affiliate link: %w", err)
	}
	return a, nil
}

func (s *AffiliateStore) List() ([]model.AffiliateLink, error) {
	rows, err := s.db.Query(`SELECT ` + affiliateCols + ` FROM affiliate_links ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("list affiliate links: %w", err)
	}
	defer rows.Close()

	var links []model.AffiliateLink
	for rows.Next() {
		a, err := scanAffiliate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan affiliate link: %w", err)
		}
		links = append(links, *a)
	}
	return links, rows.Err()
}

// RecordClick counts a visit through an active link. It reports whether the
// code matched an active link.
func (s *AffiliateStore) RecordClick(code string) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE affiliate_links SET clicks = clicks + 1 WHERE code = ? AND active = 1`,
		strings.TrimSpace(code),
	)
	if err != nil {
		return false, fmt.Errorf("record click: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *AffiliateStore) Deactivate(id int64) error {
	_, err := s.db.Exec(`UPDATE affiliate_links SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate affiliate link: %w", err)
	}
	return nil
}
