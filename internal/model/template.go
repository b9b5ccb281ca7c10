package model

import (
	"encoding/base64"
	"time"
)

// Template is a stored .docx blueprint. Content is the base64-encoded file.
type Template struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	Content   string    `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Bytes decodes the stored content.
func (t Template) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(t.Content)
}
