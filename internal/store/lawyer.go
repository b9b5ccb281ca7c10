package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/cohabit/internal/model"
)

type LawyerStore struct {
	db *sql.DB
}

func NewLawyerStore(db *sql.DB) *LawyerStore {
	return &LawyerStore{db: db}
}

func scanLawyer(scanner interface{ Scan(...any) error }) (*model.Lawyer, error) {
	var l model.Lawyer
	err := scanner.Scan(&l.ID, &l.Name, &l.Firm, &l.Email, &l.Phone, &l.Party, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const lawyerCols = `id, name, firm, email, phone, party, active, created_at, updated_at`

func (s *LawyerStore) Create(name, firm, email, phone, party string) (*model.Lawyer, error) {
	result, err := s.db.Exec(
		`INSERT INTO lawyers (name, firm, email, phone, party) VALUES (?, ?, ?, ?, ?)`,
		name, firm, normalizeEmail(email), phone, party,
	)
	if err != nil {
		return nil, fmt.Errorf("insert lawyer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *LawyerStore) GetByID(id int64) (*model.Lawyer, error) {
	row := s.db.QueryRow(`SELECT `+lawyerCols+` FROM lawyers WHERE id = ?`, id)
	l, err := scanLawyer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lawyer: %w", err)
	}
	return l, nil
}

// List returns lawyers ordered by name. When party is non-empty only lawyers
// able to represent that side are returned.
func (s *LawyerStore) List(activeOnly bool, party string) ([]model.Lawyer, error) {
	query := `SELECT ` + lawyerCols + ` FROM lawyers WHERE 1 = 1`
	var args []any
	if activeOnly {
		query += ` AND active = 1`
	}
	if party != "" {
		query += ` AND (party = ? OR party = 'both')`
		args = append(args, party)
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list lawyers: %w", err)
	}
	defer rows.Close()

	var lawyers []model.Lawyer
	for rows.Next() {
		l, err := scanLawyer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lawyer: %w", err)
		}
		lawyers = append(lawyers, *l)
	}
	return lawyers, rows.Err()
}

func (s *LawyerStore) Update(id int64, name, firm, email, phone, party string) (*model.Lawyer, error) {
	_, err := s.db.Exec(
		`UPDATE lawyers SET name = ?, firm = ?, email = ?, phone = ?, party = ? WHERE id = ?`,
		name, firm, normalizeEmail(email), phone, party, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update lawyer: %w", err)
	}
	return s.GetByID(id)
}

func (s *LawyerStore) Deactivate(id int64) error {
	_, err := s.db.Exec(`UPDATE lawyers SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate lawyer: %w", err)
	}
	return nil
}
