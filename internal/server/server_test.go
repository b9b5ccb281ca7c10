package server

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/cohabit/internal/config"
	"github.com/dukerupert/cohabit/internal/database"
	"github.com/dukerupert/cohabit/internal/store"
)

type testServer struct {
	*httptest.Server
	srv    *Server
	client *http.Client
	codes  *store.LoginCodeStore
	users  *store.UserStore
	tpls   *store.TemplateStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// A Gotenberg that is never listening, so conversion falls back.
	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()

	cfg := config.Default()
	cfg.Gotenberg.URL = dead.URL
	cfg.Gotenberg.Timeout = 2 * time.Second
	cfg.Gotenberg.Fallback = true

	logger := slog.New(slog.DiscardHandler)
	srv := New(cfg, db, nil, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	jar, _ := cookiejar.New(nil)
	return &testServer{
		Server: ts,
		srv:    srv,
		client: &http.Client{Jar: jar},
		codes:  store.NewLoginCodeStore(db),
		users:  store.NewUserStore(db),
		tpls:   store.NewTemplateStore(db),
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// signIn runs the email code flow and leaves the session cookie in the jar.
func (ts *testServer) signIn(t *testing.T, emailAddr string) {
	t.Helper()
	if resp := ts.do(t, "POST", "/api/auth/login", map[string]string{"email": emailAddr}); resp.StatusCode != http.StatusAccepted {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	lc, err := ts.codes.Pending(emailAddr)
	if err != nil || lc == nil {
		t.Fatalf("pending code = %v, %v", lc, err)
	}
	if resp := ts.do(t, "POST", "/api/auth/verify", map[string]string{"email": emailAddr, "code": lc.Code}); resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d", resp.StatusCode)
	}
}

func templateDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range []struct{ name, content string }{
		{"[Content_Types].xml", `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`},
		{"word/document.xml", `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
			`<w:p><w:r><w:t xml:space="preserve">{agreementTitle} between {userFullName} and {partnerFullName}.</w:t></w:r></w:p>` +
			`</w:body></w:document>`},
	} {
		w, err := zw.Create(f.name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		w.Write([]byte(f.content))
	}
	zw.Close()
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, "GET", "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/me", "/api/contracts", "/api/contracts/1/pdf/preview", "/api/admin/report"} {
		resp := ts.do(t, "GET", path, nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want %d", path, resp.StatusCode, http.StatusUnauthorized)
		}
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.signIn(t, "jane@example.com")

	resp := ts.do(t, "GET", "/api/admin/report", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want %d", resp.StatusCode, http.StatusForbidden)
	}

	u, _ := ts.users.GetByEmail("jane@example.com")
	if err := ts.users.SetAdmin(u.ID, true); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	resp = ts.do(t, "GET", "/api/admin/report", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("admin status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestPreviewEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	ts.signIn(t, "jane@example.com")

	resp := ts.do(t, "POST", "/api/contracts", map[string]any{
		"user":    map[string]any{"full_name": "Jane Doe"},
		"partner": map[string]any{"full_name": "Alex Roe"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create contract status = %d", resp.StatusCode)
	}
	var c struct {
		ID int64 `json:"id"`
	}
	json.NewDecoder(resp.Body).Decode(&c)
	id := strconv.FormatInt(c.ID, 10)

	resp = ts.do(t, "GET", "/api/contracts/"+id+"/pdf/preview", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("preview without template status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	tpl, err := ts.tpls.Create("v1", "v1.docx", templateDocx(t))
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if err := ts.tpls.Activate(tpl.ID); err != nil {
		t.Fatalf("activate template: %v", err)
	}

	resp = ts.do(t, "GET", "/api/contracts/"+id+"/pdf/preview", nil)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("preview status = %d: %s", resp.StatusCode, body)
	}
	pdf, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("preview is not a PDF: %q", pdf[:min(len(pdf), 16)])
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "-preview.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}

	resp = ts.do(t, "GET", "/api/contracts/"+id+"/pdf/progress", nil)
	var p struct {
		Percent int    `json:"percent"`
		Label   string `json:"label"`
	}
	json.NewDecoder(resp.Body).Decode(&p)
	if p.Percent != 100 || p.Label != "Complete" {
		t.Errorf("progress = %+v, want 100 Complete", p)
	}

	resp = ts.do(t, "GET", "/api/contracts/"+id+"/pdf", nil)
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("unpaid download status = %d, want %d", resp.StatusCode, http.StatusPaymentRequired)
	}
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	ts := newTestServer(t)
	ts.signIn(t, "jane@example.com")

	// Nothing is expired yet; the sweep must leave the session usable.
	ts.srv.Sweep()
	if resp := ts.do(t, "GET", "/api/me", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("status after sweep = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestStartMaintenance(t *testing.T) {
	ts := newTestServer(t)
	c, err := ts.srv.StartMaintenance(slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("start maintenance: %v", err)
	}
	defer c.Stop()
	if n := len(c.Entries()); n != 1 {
		t.Errorf("entries = %d, want 1", n)
	}
}
