package model

import "time"

const (
	LawyerPartyUser    = "user"
	LawyerPartyPartner = "partner"
	LawyerPartyBoth    = "both"
)

type Lawyer struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Firm      string    `json:"firm"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Party     string    `json:"party"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanRepresent reports whether the lawyer may act for the given side.
func (l Lawyer) CanRepresent(side string) bool {
	return l.Party == LawyerPartyBoth || l.Party == side
}
