package store

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/dukerupert/cohabit/internal/model"
)

const (
	// LoginCodeTTL is how long an emailed code stays valid.
	LoginCodeTTL = 15 * time.Minute
	// MaxCodeAttempts is the number of wrong guesses that burns a code.
	MaxCodeAttempts = 5
)

var (
	ErrCodeExpired     = errors.New("code has expired or already been used")
	ErrCodeIncorrect   = errors.New("incorrect code")
	ErrTooManyAttempts = errors.New("too many incorrect attempts")
)

// LoginCodeStore issues and redeems the six-digit codes used for
// passwordless sign-in. Only the newest unexpired code for an address can
// be redeemed.
type LoginCodeStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewLoginCodeStore(db *sql.DB) *LoginCodeStore {
	return &LoginCodeStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const loginCodeCols = `id, email, code, expires_at, used_at, attempts, created_at`

func scanLoginCode(scanner interface{ Scan(...any) error }) (*model.LoginCode, error) {
	var lc model.LoginCode
	var usedAt sql.NullTime
	if err := scanner.Scan(&lc.ID, &lc.Email, &lc.Code, &lc.ExpiresAt, &usedAt, &lc.Attempts, &lc.CreatedAt); err != nil {
		return nil, err
	}
	if usedAt.Valid {
		lc.UsedAt = &usedAt.Time
	}
	return &lc, nil
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Issue creates a fresh code for email and retires any earlier pending one.
func (s *LoginCodeStore) Issue(email string) (*model.LoginCode, error) {
	code, err := newCode()
	if err != nil {
		return nil, err
	}
	now := s.now()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin issue code: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE login_codes SET used_at = ? WHERE email = ? AND used_at IS NULL AND expires_at > ?`,
		now, email, now,
	); err != nil {
		return nil, fmt.Errorf("retire pending codes: %w", err)
	}
	row := tx.QueryRow(
		`INSERT INTO login_codes (email, code, expires_at, created_at) VALUES (?, ?, ?, ?) RETURNING `+loginCodeCols,
		email, code, now.Add(LoginCodeTTL), now,
	)
	lc, err := scanLoginCode(row)
	if err != nil {
		return nil, fmt.Errorf("insert login code: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit issue code: %w", err)
	}
	return lc, nil
}

// Pending returns the newest unexpired, unused code for email, or nil.
func (s *LoginCodeStore) Pending(email string) (*model.LoginCode, error) {
	row := s.db.QueryRow(
		`SELECT `+loginCodeCols+` FROM login_codes
		 WHERE email = ? AND used_at IS NULL AND expires_at > ?
		 ORDER BY id DESC LIMIT 1`,
		email, s.now(),
	)
	lc, err := scanLoginCode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending login code: %w", err)
	}
	return lc, nil
}

// Redeem consumes the pending code for email if code matches. A wrong guess
// counts against the code, and the guess that reaches MaxCodeAttempts
// retires it. Errors are ErrCodeExpired, ErrCodeIncorrect,
// ErrTooManyAttempts, or a wrapped storage error.
func (s *LoginCodeStore) Redeem(email, code string) (*model.LoginCode, error) {
	lc, err := s.Pending(email)
	if err != nil {
		return nil, err
	}
	if lc == nil {
		return nil, ErrCodeExpired
	}
	now := s.now()

	if subtle.ConstantTimeCompare([]byte(lc.Code), []byte(code)) != 1 {
		var attempts int
		err := s.db.QueryRow(
			`UPDATE login_codes
			 SET attempts = attempts + 1,
			     used_at = CASE WHEN attempts + 1 >= ? THEN ? ELSE used_at END
			 WHERE id = ? RETURNING attempts`,
			MaxCodeAttempts, now, lc.ID,
		).Scan(&attempts)
		if err != nil {
			return nil, fmt.Errorf("record failed attempt: %w", err)
		}
		if attempts >= MaxCodeAttempts {
			return nil, ErrTooManyAttempts
		}
		return nil, ErrCodeIncorrect
	}

	res, err := s.db.Exec(`UPDATE login_codes SET used_at = ? WHERE id = ? AND used_at IS NULL`, now, lc.ID)
	if err != nil {
		return nil, fmt.Errorf("consume login code: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, ErrCodeExpired
	}
	lc.UsedAt = &now
	return lc, nil
}

// DeleteExpired removes codes past their expiry.
func (s *LoginCodeStore) DeleteExpired() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM login_codes WHERE expires_at <= ?`, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired login codes: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
