package payment

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/cohabit/internal/model"
)

func intPtr(n int) *int { return &n }

func TestNewQuote(t *testing.T) {
	tests := []struct {
		name         string
		coupon       *model.CouponCode
		wantDiscount int64
		wantAmount   int64
		wantCode     string
	}{
		{"no coupon", nil, 0, 24900, ""},
		{"ten percent", &model.CouponCode{Code: "SAVE10", PercentOff: 10, Active: true}, 2490, 22410, "SAVE10"},
		{"rounds in buyer favour", &model.CouponCode{Code: "ODD", PercentOff: 33, Active: true}, 8217, 16683, "ODD"},
		{"free", &model.CouponCode{Code: "FREE", PercentOff: 100, Active: true}, 24900, 0, "FREE"},
		{"inactive ignored", &model.CouponCode{Code: "OLD", PercentOff: 50, Active: false}, 0, 24900, ""},
		{"exhausted ignored", &model.CouponCode{Code: "USED", PercentOff: 50, Active: true, MaxUses: intPtr(1), TimesUsed: 1}, 0, 24900, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQuote(24900, tt.coupon)
			if q.DiscountCents != tt.wantDiscount {
				t.Errorf("DiscountCents = %d, want %d", q.DiscountCents, tt.wantDiscount)
			}
			if q.AmountCents != tt.wantAmount {
				t.Errorf("AmountCents = %d, want %d", q.AmountCents, tt.wantAmount)
			}
			if q.CouponCode != tt.wantCode {
				t.Errorf("CouponCode = %q, want %q", q.CouponCode, tt.wantCode)
			}
			if q.Free() != (tt.wantAmount == 0) {
				t.Errorf("Free() = %v", q.Free())
			}
		})
	}
}

func TestCheckoutMetadata(t *testing.T) {
	meta := checkoutMetadata(CheckoutRequest{
		ContractID:    12,
		Quote:         Quote{DiscountCents: 2490, CouponCode: "SAVE10"},
		AffiliateCode: "lawblog",
	})
	want := map[string]string{
		"contract_id":    "12",
		"discount_cents": "2490",
		"coupon_code":    "SAVE10",
		"affiliate_code": "lawblog",
	}
	for k, v := range want {
		if meta[k] != v {
			t.Errorf("meta[%s] = %q, want %q", k, meta[k], v)
		}
	}

	bare := checkoutMetadata(CheckoutRequest{ContractID: 3})
	if _, ok := bare["coupon_code"]; ok {
		t.Error("coupon_code should be omitted without a coupon")
	}
}

func TestCreateCheckoutSessionNotConfigured(t *testing.T) {
	c := NewClient(Config{})
	if _, err := c.CreateCheckoutSession(CheckoutRequest{ContractID: 1}); err != ErrNotConfigured {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

const testWebhookSecret = "whsec_test_secret"

func signedEvent(t *testing.T, eventType string, session map[string]any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_test",
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": json.RawMessage(raw)},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestParseWebhookCompleted(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testWebhookSecret})
	payload, sig := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_1",
		"object":         "checkout.session",
		"payment_status": "paid",
		"amount_total":   22410,
		"metadata": map[string]string{
			"contract_id":    "12",
			"discount_cents": "2490",
			"coupon_code":    "save10",
			"affiliate_code": "LawBlog",
		},
		"customer_details": map[string]any{"email": "jane@example.com"},
	})

	comp, err := c.ParseWebhook(payload, sig)
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if comp == nil {
		t.Fatal("expected completion")
	}
	if comp.ContractID != 12 {
		t.Errorf("ContractID = %d, want 12", comp.ContractID)
	}
	if comp.AmountCents != 22410 || comp.DiscountCents != 2490 {
		t.Errorf("amount = %d, discount = %d", comp.AmountCents, comp.DiscountCents)
	}
	if comp.CouponCode != "SAVE10" || comp.AffiliateCode != "lawblog" {
		t.Errorf("coupon = %q, affiliate = %q", comp.CouponCode, comp.AffiliateCode)
	}
	if comp.Email != "jane@example.com" {
		t.Errorf("Email = %q", comp.Email)
	}
}

func TestParseWebhookIgnoresOtherEvents(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testWebhookSecret})
	payload, sig := signedEvent(t, "checkout.session.expired", map[string]any{"id": "cs_test_2", "object": "checkout.session"})

	comp, err := c.ParseWebhook(payload, sig)
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if comp != nil {
		t.Errorf("comp = %+v, want nil", comp)
	}
}

func TestParseWebhookUnpaid(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testWebhookSecret})
	payload, sig := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_3",
		"object":         "checkout.session",
		"payment_status": "unpaid",
		"metadata":       map[string]string{"contract_id": "4"},
	})

	comp, err := c.ParseWebhook(payload, sig)
	if err != nil || comp != nil {
		t.Errorf("ParseWebhook = %+v, %v; want nil, nil", comp, err)
	}
}

func TestParseWebhookBadSignature(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testWebhookSecret})
	payload, _ := signedEvent(t, "checkout.session.completed", map[string]any{"id": "cs"})

	_, err := c.ParseWebhook(payload, "t=1,v1=deadbeef")
	if err == nil || !strings.Contains(err.Error(), "verify webhook") {
		t.Errorf("err = %v, want verification error", err)
	}
}

func TestParseWebhookMissingContract(t *testing.T) {
	c := NewClient(Config{WebhookSecret: testWebhookSecret})
	payload, sig := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_4",
		"object":         "checkout.session",
		"payment_status": "paid",
	})
	if _, err := c.ParseWebhook(payload, sig); err == nil {
		t.Fatal("expected error for session without contract id")
	}
}
