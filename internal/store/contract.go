package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukerupert/cohabit/internal/model"
)

// ErrIdentityLocked is returned when an update would change party identity
// fields on a paid contract.
var ErrIdentityLocked = errors.New("contract is paid; agreement type and party names are locked")

type ContractStore struct {
	db *sql.DB
}

func NewContractStore(db *sql.DB) *ContractStore {
	return &ContractStore{db: db}
}

func scanContract(scanner interface{ Scan(...any) error }) (*model.Contract, error) {
	var c model.Contract
	var userParty, partnerParty, children, scheduleA, scheduleB string
	var userLawyerID, partnerLawyerID sql.NullInt64
	var paidAt sql.NullTime
	var couponCode, affiliateCode sql.NullString

	err := scanner.Scan(
		&c.ID, &c.UserID, &c.TeamID, &c.AgreementType,
		&userParty, &partnerParty,
		&c.CohabitationDate, &c.MarriageDate,
		&c.ResidenceOwnership, &c.ExpenseSplit,
		&children, &scheduleA, &scheduleB,
		&userLawyerID, &partnerLawyerID,
		&c.IsPaid, &c.TermsAccepted, &c.IsCurrentContract,
		&paidAt, &couponCode, &affiliateCode, &c.AmountPaidCents,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, col := range []struct {
		name string
		raw  string
		dst  any
	}{
		{"user_party", userParty, &c.User},
		{"partner_party", partnerParty, &c.Partner},
		{"children", children, &c.Children},
		{"schedule_a", scheduleA, &c.ScheduleA},
		{"schedule_b", scheduleB, &c.ScheduleB},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", col.name, err)
		}
	}

	if userLawyerID.Valid {
		c.UserLawyerID = &userLawyerID.Int64
	}
	if partnerLawyerID.Valid {
		c.PartnerLawyerID = &partnerLawyerID.Int64
	}
	if paidAt.Valid {
		c.PaidAt = &paidAt.Time
	}
	if couponCode.Valid {
		c.CouponCode = &couponCode.String
	}
	if affiliateCode.Valid {
		c.AffiliateCode = &affiliateCode.String
	}
	return &c, nil
}

const contractCols = `id, user_id, team_id, agreement_type, user_party, partner_party,
	cohabitation_date, marriage_date, residence_ownership, expense_split,
	children, schedule_a, schedule_b, user_lawyer_id, partner_lawyer_id,
	is_paid, terms_accepted, is_current_contract, paid_at, coupon_code,
	affiliate_code, amount_paid_cents, created_at, updated_at`

// contractJSON holds the JSON-encoded columns of a contract.
type contractJSON struct {
	user, partner, children, scheduleA, scheduleB string
}

func encodeContract(c *model.Contract) (contractJSON, error) {
	var out contractJSON
	children := c.Children
	if children == nil {
		children = []model.Child{}
	}
	for _, col := range []struct {
		name string
		src  any
		dst  *string
	}{
		{"user_party", c.User, &out.user},
		{"partner_party", c.Partner, &out.partner},
		{"children", children, &out.children},
		{"schedule_a", c.ScheduleA, &out.scheduleA},
		{"schedule_b", c.ScheduleB, &out.scheduleB},
	} {
		b, err := json.Marshal(col.src)
		if err != nil {
			return out, fmt.Errorf("encode %s: %w", col.name, err)
		}
		*col.dst = string(b)
	}
	return out, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// Create inserts a new contract for the owner and makes it the current one.
func (s *ContractStore) Create(userID, teamID int64, c *model.Contract) (*model.Contract, error) {
	enc, err := encodeContract(c)
	if err != nil {
		return nil, err
	}
	agreementType := c.AgreementType
	if agreementType == "" {
		agreementType = model.AgreementCohabitation
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE contracts SET is_current_contract = 0 WHERE user_id = ? AND is_current_contract = 1`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("clear current contract: %w", err)
	}

	result, err := tx.Exec(
		`INSERT INTO contracts (user_id, team_id, agreement_type, user_party, partner_party,
			cohabitation_date, marriage_date, residence_ownership, expense_split,
			children, schedule_a, schedule_b, user_lawyer_id, partner_lawyer_id, is_current_contract)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		userID, teamID, agreementType, enc.user, enc.partner,
		c.CohabitationDate, c.MarriageDate, c.ResidenceOwnership, c.ExpenseSplit,
		enc.children, enc.scheduleA, enc.scheduleB,
		nullInt64(c.UserLawyerID), nullInt64(c.PartnerLawyerID),
	)
	if err != nil {
		return nil, fmt.Errorf("insert contract: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(id)
}

// GetByID returns a contract regardless of owner. Callers acting on behalf
// of a user must use GetForOwner.
func (s *ContractStore) GetByID(id int64) (*model.Contract, error) {
	row := s.db.QueryRow(`SELECT `+contractCols+` FROM contracts WHERE id = ?`, id)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contract: %w", err)
	}
	return c, nil
}

// GetForOwner returns the contract only when it belongs to the user within the team.
func (s *ContractStore) GetForOwner(id, userID, teamID int64) (*model.Contract, error) {
	row := s.db.QueryRow(
		`SELECT `+contractCols+` FROM contracts WHERE id = ? AND user_id = ? AND team_id = ?`,
		id, userID, teamID,
	)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contract for owner: %w", err)
	}
	return c, nil
}

func (s *ContractStore) ListForOwner(userID, teamID int64) ([]model.Contract, error) {
	rows, err := s.db.Query(
		`SELECT `+contractCols+` FROM contracts WHERE user_id = ? AND team_id = ? ORDER BY id DESC`,
		userID, teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []model.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contract: %w", err)
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

func (s *ContractStore) GetCurrent(userID int64) (*model.Contract, error) {
	row := s.db.QueryRow(
		`SELECT `+contractCols+` FROM contracts WHERE user_id = ? AND is_current_contract = 1`,
		userID,
	)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get current contract: %w", err)
	}
	return c, nil
}

// SetCurrent marks the contract as the user's current one and clears the
// flag on every other contract of that user.
func (s *ContractStore) SetCurrent(id, userID int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var owned int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM contracts WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&owned); err != nil {
		return fmt.Errorf("check contract owner: %w", err)
	}
	if owned == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.Exec(
		`UPDATE contracts SET is_current_contract = (id = ?) WHERE user_id = ?`,
		id, userID,
	); err != nil {
		return fmt.Errorf("set current contract: %w", err)
	}
	return tx.Commit()
}

// Update writes the editable fields of c. On a paid contract the agreement
// type and both full names must be unchanged, otherwise ErrIdentityLocked
// is returned and nothing is written.
func (s *ContractStore) Update(c *model.Contract) (*model.Contract, error) {
	enc, err := encodeContract(c)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanContract(tx.QueryRow(`SELECT `+contractCols+` FROM contracts WHERE id = ?`, c.ID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}
	if existing.IsPaid && identityChanged(existing, c) {
		return nil, ErrIdentityLocked
	}

	_, err = tx.Exec(
		`UPDATE contracts SET agreement_type = ?, user_party = ?, partner_party = ?,
			cohabitation_date = ?, marriage_date = ?, residence_ownership = ?, expense_split = ?,
			children = ?, schedule_a = ?, schedule_b = ?
		 WHERE id = ?`,
		c.AgreementType, enc.user, enc.partner,
		c.CohabitationDate, c.MarriageDate, c.ResidenceOwnership, c.ExpenseSplit,
		enc.children, enc.scheduleA, enc.scheduleB,
		c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update contract: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(c.ID)
}

func identityChanged(old, next *model.Contract) bool {
	return old.AgreementType != next.AgreementType ||
		old.User.FullName != next.User.FullName ||
		old.Partner.FullName != next.Partner.FullName
}

func (s *ContractStore) AcceptTerms(id int64) error {
	_, err := s.db.Exec(`UPDATE contracts SET terms_accepted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("accept terms: %w", err)
	}
	return nil
}

// AssignLawyers sets the lawyer chosen for each party. A nil id clears the choice.
func (s *ContractStore) AssignLawyers(id int64, userLawyerID, partnerLawyerID *int64) error {
	_, err := s.db.Exec(
		`UPDATE contracts SET user_lawyer_id = ?, partner_lawyer_id = ? WHERE id = ?`,
		nullInt64(userLawyerID), nullInt64(partnerLawyerID), id,
	)
	if err != nil {
		return fmt.Errorf("assign lawyers: %w", err)
	}
	return nil
}

// PaymentRecord describes a completed checkout.
type PaymentRecord struct {
	ContractID    int64
	AmountCents   int64
	DiscountCents int64
	CouponCode    string
	AffiliateCode string
	PaidAt        time.Time
}

// MarkPaid flags the contract as paid and rolls the payment into coupon and
// affiliate aggregates. It reports false without changing anything when the
// contract was already paid, so repeated webhook deliveries are harmless.
func (s *ContractStore) MarkPaid(p PaymentRecord) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var coupon, affiliate sql.NullString
	if p.CouponCode != "" {
		coupon = sql.NullString{String: p.CouponCode, Valid: true}
	}
	if p.AffiliateCode != "" {
		affiliate = sql.NullString{String: p.AffiliateCode, Valid: true}
	}

	result, err := tx.Exec(
		`UPDATE contracts SET is_paid = 1, paid_at = ?, amount_paid_cents = ?, coupon_code = ?, affiliate_code = ?
		 WHERE id = ? AND is_paid = 0`,
		p.PaidAt.UTC(), p.AmountCents, coupon, affiliate, p.ContractID,
	)
	if err != nil {
		return false, fmt.Errorf("mark paid: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if coupon.Valid {
		if _, err := tx.Exec(
			`UPDATE coupon_codes SET times_used = times_used + 1, total_discount_cents = total_discount_cents + ?
			 WHERE code = ?`,
			p.DiscountCents, p.CouponCode,
		); err != nil {
			return false, fmt.Errorf("record coupon use: %w", err)
		}
	}
	if affiliate.Valid {
		if _, err := tx.Exec(
			`UPDATE affiliate_links SET conversions = conversions + 1,
				revenue_cents = revenue_cents + ?,
				commission_cents = commission_cents + (? * commission_percent) / 100
			 WHERE code = ?`,
			p.AmountCents, p.AmountCents, p.AffiliateCode,
		); err != nil {
			return false, fmt.Errorf("record affiliate conversion: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// SalesTotals returns the number of paid contracts and their revenue.
func (s *ContractStore) SalesTotals() (int, int64, error) {
	var count int
	var revenue int64
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(amount_paid_cents), 0) FROM contracts WHERE is_paid = 1`,
	).Scan(&count, &revenue)
	if err != nil {
		return 0, 0, fmt.Errorf("sales totals: %w", err)
	}
	return count, revenue, nil
}
