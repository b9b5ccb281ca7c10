package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/cohabit/internal/document"
	"github.com/dukerupert/cohabit/internal/docx"
)

var fakePDF = []byte("%PDF-1.4 fake")

func newDocumentHandler(e *testEnv, gen Generator, progress document.ProgressStore) *DocumentHandler {
	return NewDocumentHandler(gen, e.contracts, e.users, progress, nil, nil, testLogger())
}

func TestDownloadRequiresPayment(t *testing.T) {
	e := newTestEnv(t)
	gen := &fakeGenerator{pdf: fakePDF}
	h := newDocumentHandler(e, gen, nil)
	ac := e.owner(t, "jane@example.com")
	c := e.contract(t, ac)
	id := strconv.FormatInt(c.ID, 10)

	rec := httptest.NewRecorder()
	h.Download(rec, request("GET", "/api/contracts/"+id+"/pdf", nil, &ac, map[string]string{"id": id}))
	if rec.Code != http.StatusPaymentRequired {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusPaymentRequired)
	}
	if len(gen.requests) != 0 {
		t.Errorf("generator called %d times, want 0", len(gen.requests))
	}
}

func TestDownloadPaid(t *testing.T) {
	e := newTestEnv(t)
	gen := &fakeGenerator{pdf: fakePDF}
	h := newDocumentHandler(e, gen, nil)
	ac := e.owner(t, "jane@example.com")
	c := e.contract(t, ac)
	e.markPaid(t, c.ID)
	id := strconv.FormatInt(c.ID, 10)

	rec := httptest.NewRecorder()
	h.Download(rec, request("GET", "/api/contracts/"+id+"/pdf", nil, &ac, map[string]string{"id": id}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	want := fmt.Sprintf(`attachment; filename="cohabitation-agreement-%d.pdf"`, c.ID)
	if cd := rec.Header().Get("Content-Disposition"); cd != want {
		t.Errorf("Content-Disposition = %q, want %q", cd, want)
	}
	if rec.Body.String() != string(fakePDF) {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(gen.requests) != 1 || gen.requests[0].Mode != document.ModeFull || gen.requests[0].TeamID != ac.TeamID {
		t.Errorf("requests = %+v", gen.requests)
	}
}

func TestPreviewHeaders(t *testing.T) {
	e := newTestEnv(t)
	gen := &fakeGenerator{pdf: fakePDF}
	h := newDocumentHandler(e, gen, nil)
	ac := e.owner(t, "jane@example.com")
	c := e.contract(t, ac)
	id := strconv.FormatInt(c.ID, 10)

	rec := httptest.NewRecorder()
	h.Preview(rec, request("GET", "/api/contracts/"+id+"/pdf/preview", nil, &ac, map[string]string{"id": id}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "inline") {
		t.Errorf("Content-Disposition = %q, want inline", cd)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache, no-store, must-revalidate" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if gen.requests[0].Mode != document.ModePreview {
		t.Errorf("mode = %v, want preview", gen.requests[0].Mode)
	}
}

func TestPreviewOtherOwner(t *testing.T) {
	e := newTestEnv(t)
	gen := &fakeGenerator{pdf: fakePDF}
	h := newDocumentHandler(e, gen, nil)
	owner := e.owner(t, "jane@example.com")
	other := e.owner(t, "mallory@example.com")
	c := e.contract(t, owner)
	id := strconv.FormatInt(c.ID, 10)

	rec := httptest.NewRecorder()
	h.Preview(rec, request("GET", "/api/contracts/"+id+"/pdf/preview", nil, &other, map[string]string{"id": id}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestWriteGenerateError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantDetail string
	}{
		{"no template", document.ErrNoActiveTemplate, http.StatusServiceUnavailable, "no active template", ""},
		{"not found", document.ErrContractNotFound, http.StatusNotFound, "contract not found", ""},
		{"template", &docx.TemplateError{Part: "word/document.xml", Tag: "#a", Reason: "unclosed section"}, http.StatusInternalServerError, "template error", "unclosed section"},
		{"unreachable", &document.ConversionError{Converter: "gotenberg", Unreachable: true, Err: errors.New("dial tcp")}, http.StatusBadGateway, "conversion service unreachable", ""},
		{"rejected", &document.ConversionError{Converter: "gotenberg", Status: 500, Body: "soffice crashed"}, http.StatusBadGateway, "conversion failed", "soffice crashed"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "failed to generate document", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeGenerateError(rec, testLogger(), 1, fmt.Errorf("generate: %w", tt.err))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", body["error"], tt.wantError)
			}
			if tt.wantDetail != "" {
				detail, _ := body["detail"].(string)
				if !strings.Contains(detail, tt.wantDetail) {
					t.Errorf("detail = %q, want it to contain %q", detail, tt.wantDetail)
				}
			}
		})
	}
}

func TestProgress(t *testing.T) {
	e := newTestEnv(t)
	progress := document.NewMemoryProgress(time.Minute)
	h := newDocumentHandler(e, &fakeGenerator{pdf: fakePDF}, progress)
	ac := e.owner(t, "jane@example.com")
	c := e.contract(t, ac)
	id := strconv.FormatInt(c.ID, 10)

	get := func() progressResponse {
		t.Helper()
		rec := httptest.NewRecorder()
		h.Progress(rec, request("GET", "/api/contracts/"+id+"/pdf/progress", nil, &ac, map[string]string{"id": id}))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var p progressResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return p
	}

	if p := get(); p.Percent != 0 || p.Label != "Not started" {
		t.Errorf("initial progress = %+v", p)
	}

	progress.Set(context.Background(), c.ID, document.Progress{Percent: 60, Label: "Converting to PDF"})
	if p := get(); p.Percent != 60 || p.Label != "Converting to PDF" {
		t.Errorf("progress = %+v, want 60 Converting to PDF", p)
	}
}
