package model

import "time"

type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliveryArchived DeliveryStatus = "archived"
	DeliverySent     DeliveryStatus = "sent"
	DeliveryFailed   DeliveryStatus = "failed"
)

// Delivery records one attempt to send a finished agreement to the
// selected lawyers.
type Delivery struct {
	ID           int64          `json:"id"`
	ContractID   int64          `json:"contract_id"`
	Recipients   []string       `json:"recipients"`
	ArchiveKey   string         `json:"archive_key,omitempty"`
	SizeBytes    int64          `json:"size_bytes"`
	Status       DeliveryStatus `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
