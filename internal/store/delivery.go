package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/cohabit/internal/model"
)

type DeliveryStore struct {
	db *sql.DB
}

func NewDeliveryStore(db *sql.DB) *DeliveryStore {
	return &DeliveryStore{db: db}
}

const deliveryCols = `id, contract_id, recipients, archive_key, size_bytes, status, error_message, completed_at, created_at, updated_at`

func scanDelivery(scanner interface{ Scan(...any) error }) (*model.Delivery, error) {
	var d model.Delivery
	var recipients string
	var archiveKey, errMsg sql.NullString
	var completedAt sql.NullTime
	if err := scanner.Scan(&d.ID, &d.ContractID, &recipients, &archiveKey, &d.SizeBytes, &d.Status, &errMsg, &completedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Recipients = splitRecipients(recipients)
	d.ArchiveKey = archiveKey.String
	d.ErrorMessage = errMsg.String
	if completedAt.Valid {
		d.CompletedAt = &completedAt.Time
	}
	return &d, nil
}

func splitRecipients(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// Create starts a pending delivery to the given addresses.
func (s *DeliveryStore) Create(contractID int64, recipients []string) (*model.Delivery, error) {
	result, err := s.db.Exec(
		`INSERT INTO deliveries (contract_id, recipients, status) VALUES (?, ?, ?)`,
		contractID, strings.Join(recipients, ","), model.DeliveryPending,
	)
	if err != nil {
		return nil, fmt.Errorf("create delivery: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *DeliveryStore) GetByID(id int64) (*model.Delivery, error) {
	d, err := scanDelivery(s.db.QueryRow(`SELECT `+deliveryCols+` FROM deliveries WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery %d: %w", id, err)
	}
	return d, nil
}

// ListForContract returns the newest deliveries first.
func (s *DeliveryStore) ListForContract(contractID int64, limit int) ([]model.Delivery, error) {
	rows, err := s.db.Query(
		`SELECT `+deliveryCols+` FROM deliveries WHERE contract_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		contractID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := []model.Delivery{}
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, *d)
	}
	return deliveries, rows.Err()
}

// MarkArchived records where the encrypted copy was stored.
func (s *DeliveryStore) MarkArchived(id int64, key string, sizeBytes int64) error {
	_, err := s.db.Exec(
		`UPDATE deliveries SET status = ?, archive_key = ?, size_bytes = ? WHERE id = ?`,
		model.DeliveryArchived, key, sizeBytes, id,
	)
	if err != nil {
		return fmt.Errorf("mark delivery archived: %w", err)
	}
	return nil
}

func (s *DeliveryStore) MarkSent(id int64) error {
	_, err := s.db.Exec(
		`UPDATE deliveries SET status = ?, error_message = NULL, completed_at = ? WHERE id = ?`,
		model.DeliverySent, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark delivery sent: %w", err)
	}
	return nil
}

func (s *DeliveryStore) MarkFailed(id int64, errorMsg string) error {
	_, err := s.db.Exec(
		`UPDATE deliveries SET status = ?, error_message = ?, completed_at = ? WHERE id = ?`,
		model.DeliveryFailed, errorMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	return nil
}
