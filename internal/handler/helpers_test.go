package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/dukerupert/cohabit/internal/auth"
	"github.com/dukerupert/cohabit/internal/database"
	"github.com/dukerupert/cohabit/internal/document"
	"github.com/dukerupert/cohabit/internal/email"
	"github.com/dukerupert/cohabit/internal/model"
	"github.com/dukerupert/cohabit/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type testEnv struct {
	db         *sql.DB
	users      *store.UserStore
	teams      *store.TeamStore
	sessions   *store.SessionStore
	codes      *store.LoginCodeStore
	contracts  *store.ContractStore
	lawyers    *store.LawyerStore
	templates  *store.TemplateStore
	coupons    *store.CouponStore
	affiliates *store.AffiliateStore
	deliveries *store.DeliveryStore
	mailer     *fakeMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &testEnv{
		db:         db,
		users:      store.NewUserStore(db),
		teams:      store.NewTeamStore(db),
		sessions:   store.NewSessionStore(db),
		codes:      store.NewLoginCodeStore(db),
		contracts:  store.NewContractStore(db),
		lawyers:    store.NewLawyerStore(db),
		templates:  store.NewTemplateStore(db),
		coupons:    store.NewCouponStore(db),
		affiliates: store.NewAffiliateStore(db),
		deliveries: store.NewDeliveryStore(db),
		mailer:     &fakeMailer{},
	}
}

// owner creates a user with a personal team and returns its auth context.
func (e *testEnv) owner(t *testing.T, emailAddr string) auth.AuthContext {
	t.Helper()
	u, err := e.users.Create(emailAddr, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	team, err := e.teams.CreatePersonal(u.ID, "Personal")
	if err != nil {
		t.Fatalf("create team: %v", err)
	}
	return auth.AuthContext{UserID: u.ID, TeamID: team.ID, Role: "owner"}
}

func (e *testEnv) contract(t *testing.T, ac auth.AuthContext) *model.Contract {
	t.Helper()
	c, err := e.contracts.Create(ac.UserID, ac.TeamID, &model.Contract{
		AgreementType: model.AgreementCohabitation,
		User:          model.Party{FullName: "Jane Doe", Pronouns: "she/her/hers"},
		Partner:       model.Party{FullName: "Alex Roe", Pronouns: "they/them/theirs"},
	})
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return c
}

func (e *testEnv) markPaid(t *testing.T, contractID int64) {
	t.Helper()
	if _, err := e.contracts.MarkPaid(store.PaymentRecord{ContractID: contractID, AmountCents: 24900}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
}

// request builds a request authenticated as ac with the given path values.
func request(method, target string, body io.Reader, ac *auth.AuthContext, pathValues map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ac != nil {
		req = req.WithContext(auth.WithAuth(req.Context(), *ac))
	}
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	return req
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(b)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	msg, _ := body["error"].(string)
	return msg
}

type fakeMailer struct {
	mu       sync.Mutex
	codes    map[string]string
	reviews  []email.Review
	receipts []string
	err      error
}

func (m *fakeMailer) SendAuthCode(toEmail, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[toEmail] = code
	return m.err
}

func (m *fakeMailer) SendLawyerReview(r email.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reviews = append(m.reviews, r)
	return nil
}

func (m *fakeMailer) SendReceipt(toEmail string, contractID int64, amount string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = append(m.receipts, toEmail+" "+amount)
	return m.err
}

// fakeGenerator returns a fixed PDF or error and records requests.
type fakeGenerator struct {
	pdf      []byte
	err      error
	requests []document.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req document.Request) (*document.Result, error) {
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	name := "cohabitation-agreement-" + strconv.FormatInt(req.ContractID, 10)
	if req.Mode == document.ModePreview {
		name += "-preview"
	}
	return &document.Result{PDF: g.pdf, Filename: name + ".pdf", Mode: req.Mode}, nil
}

// docxFixture builds a minimal .docx with one paragraph of text.
func docxFixture(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := []struct{ name, content string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`},
		{"word/document.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			`<w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`},
	}
	for _, f := range files {
		w, err := zw.Create(f.name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(f.content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}
