package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/cohabit/internal/model"
)

type CouponStore struct {
	db *sql.DB
}

func NewCouponStore(db *sql.DB) *CouponStore {
	return &CouponStore{db: db}
}

func scanCoupon(scanner interface{ Scan(...any) error }) (*model.CouponCode, error) {
	var c model.CouponCode
	var maxUses sql.NullInt64
	err := scanner.Scan(
		&c.ID, &c.Code, &c.PercentOff, &maxUses, &c.TimesUsed,
		&c.TotalDiscountCents, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		c.MaxUses = &n
	}
	return &c, nil
}

const couponCols = `id, code, percent_off, max_uses, times_used, total_discount_cents, active, created_at, updated_at`

func (s *CouponStore) Create(code string, percentOff int, maxUses *int) (*model.CouponCode, error) {
	var mu sql.NullInt64
	if maxUses != nil {
		mu = sql.NullInt64{Int64: int64(*maxUses), Valid: true}
	}
	result, err := s.db.Exec(
		`INSERT INTO coupon_codes (code, percent_off, max_uses) VALUES (?, ?, ?)`,
		strings.ToUpper(strings.TrimSpace(code)), percentOff, mu,
	)
	if err != nil {
		return nil, fmt.Errorf("insert coupon: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	row := s.db.QueryRow(`SELECT `+couponCols+` FROM coupon_codes WHERE id = ?`, id)
	return scanCoupon(row)
}

// GetByCode looks a coupon up case-insensitively.
func (s *CouponStore) GetByCode(code string) (*model.CouponCode, error) {
	row := s.db.QueryRow(`SELECT `+couponCols+` FROM coupon_codes WHERE code = ?`, strings.TrimSpace(code))
	c, err := scanCoupon(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

func (s *CouponStore) List() ([]model.CouponCode, error) {
	rows, err := s.db.Query(`SELECT ` + couponCols + ` FROM coupon_codes ORDER BY code ASC`)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	var coupons []model.CouponCode
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

func (s *CouponStore) Deactivate(id int64) error {
	_, err := s.db.Exec(`UPDATE coupon_codes SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate coupon: %w", err)
	}
	return nil
}
