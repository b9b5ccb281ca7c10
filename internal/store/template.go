package store

import (
	"database/sql"
	"encoding/base64"
	"fmt"

	"github.com/dukerupert/cohabit/internal/model"
)

type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

func scanTemplate(scanner interface{ Scan(...any) error }, withContent bool) (*model.Template, error) {
	var t model.Template
	dest := []any{&t.ID, &t.Name, &t.Filename, &t.Size, &t.IsActive, &t.CreatedAt, &t.UpdatedAt}
	if withContent {
		dest = append(dest, &t.Content)
	}
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}
	return &t, nil
}

const templateCols = `id, name, filename, size, is_active, created_at, updated_at`

// Create stores a .docx file base64-encoded. New templates start inactive.
func (s *TemplateStore) Create(name, filename string, data []byte) (*model.Template, error) {
	result, err := s.db.Exec(
		`INSERT INTO templates (name, filename, size, content) VALUES (?, ?, ?, ?)`,
		name, filename, len(data), base64.StdEncoding.EncodeToString(data),
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

// GetByID returns template metadata without content.
func (s *TemplateStore) GetByID(id int64) (*model.Template, error) {
	row := s.db.QueryRow(`SELECT `+templateCols+` FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row, false)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// GetActive returns the active template including its content, or nil when
// no template is active.
func (s *TemplateStore) GetActive() (*model.Template, error) {
	row := s.db.QueryRow(
		`SELECT ` + templateCols + `, content FROM templates WHERE is_active = 1 ORDER BY updated_at DESC, id DESC LIMIT 1`,
	)
	t, err := scanTemplate(row, true)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active template: %w", err)
	}
	return t, nil
}

// List returns template metadata, newest first.
func (s *TemplateStore) List() ([]model.Template, error) {
	rows, err := s.db.Query(`SELECT ` + templateCols + ` FROM templates ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// Activate makes id the only active template.
func (s *TemplateStore) Activate(id int64) error {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM templates WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check template: %w", err)
	}
	if exists == 0 {
		return sql.ErrNoRows
	}
	if _, err := s.db.Exec(`UPDATE templates SET is_active = (id = ?)`, id); err != nil {
		return fmt.Errorf("activate template: %w", err)
	}
	return nil
}
