// Package payment sells agreements through one-time Stripe Checkout
// sessions and reads the completion webhook.
package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/cohabit/internal/model"
)

const (
	metaContractID = "contract_id"
	metaCoupon     = "coupon_code"
	metaAffiliate  = "affiliate_code"
	metaDiscount   = "discount_cents"
)

// ErrNotConfigured is returned when no secret key is set.
var ErrNotConfigured = errors.New("stripe not configured")

type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceCents    int64
	Currency      string
	ProductName   string
	SuccessURL    string
	CancelURL     string
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

func (c *Client) Configured() bool {
	return c.cfg.SecretKey != ""
}

// PriceCents is the undiscounted price of one agreement.
func (c *Client) PriceCents() int64 {
	return c.cfg.PriceCents
}

// Quote is the price for one checkout after any coupon.
type Quote struct {
	PriceCents    int64  `json:"price_cents"`
	DiscountCents int64  `json:"discount_cents"`
	AmountCents   int64  `json:"amount_cents"`
	CouponCode    string `json:"coupon_code,omitempty"`
	PercentOff    int    `json:"percent_off,omitempty"`
}

// Free reports whether nothing is left to charge.
func (q Quote) Free() bool {
	return q.AmountCents <= 0
}

// NewQuote applies coupon to price. A nil or unusable coupon is ignored.
// Discounts round up to the whole cent.
func NewQuote(priceCents int64, coupon *model.CouponCode) Quote {
	q := Quote{PriceCents: priceCents, AmountCents: priceCents}
	if coupon == nil || !coupon.Usable() {
		return q
	}
	q.CouponCode = coupon.Code
	q.PercentOff = coupon.PercentOff
	q.DiscountCents = (priceCents*int64(coupon.PercentOff) + 99) / 100
	if q.DiscountCents > priceCents {
		q.DiscountCents = priceCents
	}
	q.AmountCents = priceCents - q.DiscountCents
	return q
}

// CheckoutRequest describes the purchase of one contract.
type CheckoutRequest struct {
	ContractID     int64
	Email          string
	Quote          Quote
	AffiliateCode  string
	IdempotencyKey string
}

// Checkout is a created Stripe session.
type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CreateCheckoutSession creates a one-time payment session for the quoted
// amount. The contract, coupon and affiliate ride along as metadata.
func (c *Client) CreateCheckoutSession(req CheckoutRequest) (*Checkout, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(strconv.FormatInt(req.ContractID, 10)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(c.cfg.Currency),
					UnitAmount: stripe.Int64(req.Quote.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(c.cfg.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.cfg.SuccessURL),
		CancelURL:  stripe.String(c.cfg.CancelURL),
		Metadata:   checkoutMetadata(req),
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	sess, err := checksession.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Checkout{SessionID: sess.ID, URL: sess.URL}, nil
}

func checkoutMetadata(req CheckoutRequest) map[string]string {
	meta := map[string]string{
		metaContractID: strconv.FormatInt(req.ContractID, 10),
		metaDiscount:   strconv.FormatInt(req.Quote.DiscountCents, 10),
	}
	if req.Quote.CouponCode != "" {
		meta[metaCoupon] = req.Quote.CouponCode
	}
	if req.AffiliateCode != "" {
		meta[metaAffiliate] = req.AffiliateCode
	}
	return meta
}

// Completion is a paid checkout read from the webhook.
type Completion struct {
	SessionID     string
	ContractID    int64
	AmountCents   int64
	DiscountCents int64
	CouponCode    string
	AffiliateCode string
	Email         string
	Created       int64
}

// ParseWebhook verifies the signature and extracts a completed, paid
// checkout. It returns nil with no error for events that need no action.
func (c *Client) ParseWebhook(payload []byte, sigHeader string) (*Completion, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, c.cfg.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("verify webhook: %w", err)
	}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal checkout session: %w", err)
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, nil
	}
	return completionFromSession(&sess, event.Created)
}

func completionFromSession(sess *stripe.CheckoutSession, created int64) (*Completion, error) {
	idStr := sess.Metadata[metaContractID]
	if idStr == "" {
		idStr = sess.ClientReferenceID
	}
	contractID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || contractID <= 0 {
		return nil, fmt.Errorf("checkout session %s has no contract id", sess.ID)
	}

	comp := &Completion{
		SessionID:     sess.ID,
		ContractID:    contractID,
		AmountCents:   sess.AmountTotal,
		CouponCode:    strings.ToUpper(sess.Metadata[metaCoupon]),
		AffiliateCode: strings.ToLower(sess.Metadata[metaAffiliate]),
		Created:       created,
	}
	if d, err := strconv.ParseInt(sess.Metadata[metaDiscount], 10, 64); err == nil {
		comp.DiscountCents = d
	}
	if sess.CustomerDetails != nil {
		comp.Email = sess.CustomerDetails.Email
	}
	if comp.Email == "" {
		comp.Email = sess.CustomerEmail
	}
	return comp, nil
}
