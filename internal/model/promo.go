package model

import "time"

type CouponCode struct {
	ID                 int64     `json:"id"`
	Code               string    `json:"code"`
	PercentOff         int       `json:"percent_off"`
	MaxUses            *int      `json:"max_uses"`
	TimesUsed          int       `json:"times_used"`
	TotalDiscountCents int64     `json:"total_discount_cents"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Usable reports whether the coupon can still be redeemed.
func (c CouponCode) Usable() bool {
	if !c.Active {
		return false
	}
	return c.MaxUses == nil || c.TimesUsed < *c.MaxUses
}

type AffiliateLink struct {
	ID                int64     `json:"id"`
	Code              string    `json:"code"`
	OwnerName         string    `json:"owner_name"`
	OwnerEmail        string    `json:"owner_email"`
	CommissionPercent int       `json:"commission_percent"`
	Clicks            int       `json:"clicks"`
	Conversions       int       `json:"conversions"`
	RevenueCents      int64     `json:"revenue_cents"`
	CommissionCents   int64     `json:"commission_cents"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SalesReport aggregates paid contracts.
type SalesReport struct {
	PaidContracts int             `json:"paid_contracts"`
	RevenueCents  int64           `json:"revenue_cents"`
	Coupons       []CouponCode    `json:"coupons"`
	Affiliates    []AffiliateLink `json:"affiliates"`
}
