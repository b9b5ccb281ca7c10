package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dukerupert/cohabit/internal/document"
	"github.com/dukerupert/cohabit/internal/model"
	"github.com/dukerupert/cohabit/internal/payment"
	"github.com/dukerupert/cohabit/internal/store"
)

const (
	// ReferralCookieName carries the affiliate code of the link a visitor
	// arrived through.
	ReferralCookieName = "cohabit_ref"
	referralMaxAge     = 30 * 24 * 60 * 60
	maxWebhookBody     = 64 << 10
)

// Payments creates checkout sessions and reads their webhooks.
type Payments interface {
	PriceCents() int64
	CreateCheckoutSession(req payment.CheckoutRequest) (*payment.Checkout, error)
	ParseWebhook(payload []byte, sigHeader string) (*payment.Completion, error)
}

type CheckoutHandler struct {
	contractStore  *store.ContractStore
	userStore      *store.UserStore
	couponStore    *store.CouponStore
	affiliateStore *store.AffiliateStore
	payments       Payments
	mailer         Mailer
	baseURL        string
	now            func() time.Time
	logger         *slog.Logger
}

func NewCheckoutHandler(
	cs *store.ContractStore,
	us *store.UserStore,
	coupons *store.CouponStore,
	affiliates *store.AffiliateStore,
	payments Payments,
	mailer Mailer,
	baseURL string,
	logger *slog.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		contractStore:  cs,
		userStore:      us,
		couponStore:    coupons,
		affiliateStore: affiliates,
		payments:       payments,
		mailer:         mailer,
		baseURL:        strings.TrimRight(baseURL, "/"),
		now:            time.Now,
		logger:         logger,
	}
}

type checkoutRequest struct {
	Coupon    string `json:"coupon"`
	Affiliate string `json:"affiliate"`
}

// Checkout starts payment for a contract. A coupon that covers the whole
// price marks the contract paid without involving Stripe.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req checkoutRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	c, err := h.contractStore.GetForOwner(id, ac.UserID, ac.TeamID)
	if err != nil {
		h.logger.Error("get contract", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get contract")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "contract not found")
		return
	}
	if c.IsPaid {
		writeError(w, http.StatusConflict, "contract already paid")
		return
	}
	if !c.TermsAccepted {
		writeError(w, http.StatusBadRequest, "terms must be accepted before checkout")
		return
	}

	var coupon *model.CouponCode
	if code := strings.ToUpper(strings.TrimSpace(req.Coupon)); code != "" {
		coupon, err = h.couponStore.GetByCode(code)
		if err != nil {
			h.logger.Error("get coupon", "code", code, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to check coupon")
			return
		}
		if coupon == nil || !coupon.Usable() {
			writeError(w, http.StatusBadRequest, "coupon is not valid")
			return
		}
	}
	affiliateCode := h.affiliateCode(r, req.Affiliate)
	quote := payment.NewQuote(h.payments.PriceCents(), coupon)

	if quote.Free() {
		paid, err := h.contractStore.MarkPaid(store.PaymentRecord{
			ContractID:    c.ID,
			AmountCents:   0,
			DiscountCents: quote.DiscountCents,
			CouponCode:    quote.CouponCode,
			AffiliateCode: affiliateCode,
			PaidAt:        h.now(),
		})
		if err != nil {
			h.logger.Error("mark paid", "contract_id", c.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to complete checkout")
			return
		}
		h.logger.Info("contract paid by coupon", "contract_id", c.ID, "coupon", quote.CouponCode, "newly_paid", paid)
		writeJSON(w, http.StatusOK, map[string]any{"paid": true, "quote": quote})
		return
	}

	user, err := h.userStore.GetByID(ac.UserID)
	if err != nil {
		h.logger.Error("load user", "user_id", ac.UserID, "error", err)
	}
	var emailAddr string
	if user != nil {
		emailAddr = user.Email
	}

	co, err := h.payments.CreateCheckoutSession(payment.CheckoutRequest{
		ContractID:     c.ID,
		Email:          emailAddr,
		Quote:          quote,
		AffiliateCode:  affiliateCode,
		IdempotencyKey: uuid.NewString(),
	})
	if errors.Is(err, payment.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, "payments are not configured")
		return
	}
	if err != nil {
		h.logger.Error("create checkout session", "contract_id", c.ID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to create checkout session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"paid":       false,
		"quote":      quote,
		"session_id": co.SessionID,
		"url":        co.URL,
	})
}

// affiliateCode picks the explicit code or else the referral cookie, and
// keeps it only when it names an active link.
func (h *CheckoutHandler) affiliateCode(r *http.Request, explicit string) string {
	code := strings.ToLower(strings.TrimSpace(explicit))
	if code == "" {
		if cookie, err := r.Cookie(ReferralCookieName); err == nil {
			code = strings.ToLower(strings.TrimSpace(cookie.Value))
		}
	}
	if code == "" {
		return ""
	}
	link, err := h.affiliateStore.GetByCode(code)
	if err != nil {
		h.logger.Warn("get affiliate", "code", code, "error", err)
		return ""
	}
	if link == nil || !link.Active {
		return ""
	}
	return link.Code
}

// Webhook receives Stripe events. A completed checkout marks the contract
// paid and sends a receipt; redeliveries of the same event change nothing.
func (h *CheckoutHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	comp, err := h.payments.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("reject webhook", "error", err)
		writeError(w, http.StatusBadRequest, "invalid webhook")
		return
	}
	if comp == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	paidAt := h.now()
	if comp.Created > 0 {
		paidAt = time.Unix(comp.Created, 0)
	}
	paid, err := h.contractStore.MarkPaid(store.PaymentRecord{
		ContractID:    comp.ContractID,
		AmountCents:   comp.AmountCents,
		DiscountCents: comp.DiscountCents,
		CouponCode:    comp.CouponCode,
		AffiliateCode: comp.AffiliateCode,
		PaidAt:        paidAt,
	})
	if err != nil {
		h.logger.Error("mark paid", "contract_id", comp.ContractID, "session", comp.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record payment")
		return
	}
	if !paid {
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_paid"})
		return
	}
	h.logger.Info("contract paid", "contract_id", comp.ContractID, "amount_cents", comp.AmountCents, "session", comp.SessionID)

	to := comp.Email
	if to == "" {
		if c, err := h.contractStore.GetByID(comp.ContractID); err == nil && c != nil {
			if u, err := h.userStore.GetByID(c.UserID); err == nil && u != nil {
				to = u.Email
			}
		}
	}
	if to != "" {
		amount := document.FormatMoney(decimal.New(comp.AmountCents, -2))
		if err := h.mailer.SendReceipt(to, comp.ContractID, amount); err != nil {
			h.logger.Error("send receipt", "contract_id", comp.ContractID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "paid"})
}

// Referral counts a click on an affiliate link, remembers the code in a
// cookie and sends the visitor to the home page.
func (h *CheckoutHandler) Referral(w http.ResponseWriter, r *http.Request) {
	code := strings.ToLower(strings.TrimSpace(r.PathValue("code")))
	if code != "" {
		ok, err := h.affiliateStore.RecordClick(code)
		if err != nil {
			h.logger.Error("record affiliate click", "code", code, "error", err)
		}
		if ok {
			http.SetCookie(w, &http.Cookie{
				Name:     ReferralCookieName,
				Value:    code,
				Path:     "/",
				MaxAge:   referralMaxAge,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
				Secure:   r.TLS != nil,
			})
		}
	}
	http.Redirect(w, r, h.baseURL+"/", http.StatusFound)
}
