package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/dukerupert/cohabit/internal/payment"
)

type fakePayments struct {
	price      int64
	requests   []payment.CheckoutRequest
	completion *payment.Completion
	parseErr   error
}

func (p *fakePayments) PriceCents() int64 { return p.price }

func (p *fakePayments) CreateCheckoutSession(req payment.CheckoutRequest) (*payment.Checkout, error) {
	p.requests = append(p.requests, req)
	return &payment.Checkout{SessionID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (p *fakePayments) ParseWebhook(payload []byte, sigHeader string) (*payment.Completion, error) {
	return p.completion, p.parseErr
}

func newCheckoutHandler(e *testEnv, p *fakePayments) *CheckoutHandler {
	return NewCheckoutHandler(e.contracts, e.users, e.coupons, e.affiliates, p, e.mailer, "https://cohabit.example/", testLogger())
}

func TestCheckoutCreatesSession(t *testing.T) {
	e := newTestEnv(t)
	p := &fakePayments{price: 24900}
	h := newCheckoutHandler(e, p)
	ac := e.owner(t, "jane@example.com")
	c := e.contract(t, ac)
	e.contracts.AcceptTerms(c.ID)
	e.coupons.Create("SAVE10", 10, nil)
	e.affiliates.Create("lawblog", "Law Blog", "blog@example.com", 20)
	id := strconv.FormatInt(c.ID, 10)

	req := request("POST", "/api/contracts/"+id+"/checkout", jsonBody(t, map[string]string{"coupon": "save10"}), &ac, map[string]string{"id": id})
	req.AddCookie(&http.Cookie{Name: ReferralCookieName, Value: "LawBlog"})
	rec := httptest.NewRecorder()
	h.Checkout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(p.requests) != 1 {
		t.Fatalf("checkout sessions = %d, want 1", len(p.requests))
	}
	got := p.requests[0]
	if got.Quote.AmountCents != 22410 || got.Quote.CouponCode != "SAVE10" {
		t.Errorf("quote = %+v", got.Quote)
	}
	if got.AffiliateCode != "lawblog" {
		t.Errorf("affiliate = %q, want %q", got.AffiliateCode, "lawblog")
	}
	if got.Email != "jane@example.com" || got.IdempotencyKey == "" {
		t.Errorf("email = %q, idempotency key = %q", got.Email, got.IdempotencyKey)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["url"] != "https://checkout.stripe.test/cs_test_1" {
		t.Errorf("url = %v", body["url"])
	}
}

func TestCheckoutRejections(t *testing.T) {
	e := newTestEnv(t)
	p := &fakePayments{price: 24900}
	h := newCheckoutHandler(e, p)
	ac := e.owner(t, "jane@example.com")

	noTerms := e.contract(t, ac)
	paid := e.contract(t, ac)
	e.contracts.AcceptTerms(paid.ID)
	e.markPaid(t, paid.ID)
	ready := e.contract(t, ac)
	e.contracts.AcceptTerms(ready.ID)
	e.coupons.Create("GONE", 50, nil)
	gone, _ := e.coupons.GetByCode("GONE")
	e.coupons.Deactivate(gone.ID)

	tests := []struct {
		name       string
		contractID int64
		coupon     string
		wantStatus int
	}{
		{"terms not accepted", noTerms.ID, "", http.StatusBadRequest},
		{"already paid", paid.ID, "", http.StatusConflict},
		{"unknown coupon", ready.ID, "NOPE", http.StatusBadRequest},
		{"inactive coupon", ready.ID, "GONE", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := strconv.FormatInt(tt.contractID, 10)
			rec := httptest.NewRecorder()
			h.Checkout(rec, request("POST", "/api/contracts/"+id+"/checkout", jsonBody(t, map[string]string{"coupon": tt.coupon}), &ac, map[string]string{"id": id}))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
	if len(p.requests) != 0 {
		t.Errorf("checkout sessions = %d, want 0", len(p.requests))
	}
}

func TestCheckoutFreeCoupon(t *testing.T) {
	e := newTestEnv(t)
	p := &fakePayments{price: 24900}
	h := newCheckoutHandler(e, p)
	ac := e.owner(t, "jane@example.com")
	c := e.contract(t, ac)
	e.contracts.AcceptTerms(c.ID)
	e.coupons.Create("FRIEND", 100, nil)
	id := strconv.FormatInt(c.ID, 10)

	rec := httptest.NewRecorder()
	h.Checkout(rec, request("POST", "/api/contracts/"+id+"/checkout", jsonBody(t, map[string]string{"coupon": "FRIEND"}), &ac, map[string]string{"id": id}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if len(p.requests) != 0 {
		t.Error("free checkout should not reach Stripe")
	}

	got, _ := e.contracts.GetByID(c.ID)
	if !got.IsPaid || got.AmountPaidCents != 0 {
		t.Errorf("is_paid = %v, amount = %d", got.IsPaid, got.AmountPaidCents)
	}
	coupon, _ := e.coupons.GetByCode("FRIEND")
	if coupon.TimesUsed != 1 || coupon.TotalDiscountCents != 24900 {
		t.Errorf("coupon usage = %d, discount = %d", coupon.TimesUsed, coupon.TotalDiscountCents)
	}
}

func TestWebhookMarksPaidOnce(t *testing.T) {
	e := newTestEnv(t)
	ac := e.owner(t, "jane@example.com")
	c := e.contract(t, ac)
	e.affiliates.Create("lawblog", "Law Blog", "blog@example.com", 20)
	p := &fakePayments{price: 24900, completion: &payment.Completion{
		SessionID:     "cs_test_1",
		ContractID:    c.ID,
		AmountCents:   24900,
		AffiliateCode: "lawblog",
		Created:       1700000000,
	}}
	h := newCheckoutHandler(e, p)

	for i, want := range []string{"paid", "already_paid"} {
		rec := httptest.NewRecorder()
		h.Webhook(rec, request("POST", "/webhooks/stripe", strings.NewReader("{}"), nil, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d", i, rec.Code)
		}
		var body map[string]string
		json.Unmarshal(rec.Body.Bytes(), &body)
		if body["status"] != want {
			t.Errorf("delivery %d: status = %q, want %q", i, body["status"], want)
		}
	}

	got, _ := e.contracts.GetByID(c.ID)
	if !got.IsPaid || got.AmountPaidCents != 24900 {
		t.Errorf("is_paid = %v, amount = %d", got.IsPaid, got.AmountPaidCents)
	}
	link, _ := e.affiliates.GetByCode("lawblog")
	if link.Conversions != 1 || link.RevenueCents != 24900 || link.CommissionCents != 4980 {
		t.Errorf("affiliate = %+v", link)
	}
	if len(e.mailer.receipts) != 1 || e.mailer.receipts[0] != "jane@example.com $249 CAD" {
		t.Errorf("receipts = %v", e.mailer.receipts)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	e := newTestEnv(t)
	h := newCheckoutHandler(e, &fakePayments{parseErr: errors.New("verify webhook: bad signature")})

	rec := httptest.NewRecorder()
	h.Webhook(rec, request("POST", "/webhooks/stripe", strings.NewReader("{}"), nil, nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestReferral(t *testing.T) {
	e := newTestEnv(t)
	h := newCheckoutHandler(e, &fakePayments{})
	e.affiliates.Create("lawblog", "Law Blog", "blog@example.com", 20)

	rec := httptest.NewRecorder()
	h.Referral(rec, request("GET", "/r/LawBlog", nil, nil, map[string]string{"code": "LawBlog"}))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusFound)
	}
	if loc := rec.Header().Get("Location"); loc != "https://cohabit.example/" {
		t.Errorf("Location = %q", loc)
	}
	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == ReferralCookieName && c.Value == "lawblog" {
			found = true
		}
	}
	if !found {
		t.Error("expected referral cookie")
	}
	link, _ := e.affiliates.GetByCode("lawblog")
	if link.Clicks != 1 {
		t.Errorf("clicks = %d, want 1", link.Clicks)
	}

	rec = httptest.NewRecorder()
	h.Referral(rec, request("GET", "/r/unknown", nil, nil, map[string]string{"code": "unknown"}))
	if len(rec.Result().Cookies()) != 0 {
		t.Error("unknown code should not set a cookie")
	}
}
