package store

import (
	"bytes"
	"database/sql"
	"errors"
	"testing"
)

func setupTemplateTestDB(t *testing.T) *TemplateStore {
	t.Helper()
	return NewTemplateStore(openTestDB(t))
}

func TestTemplateCreate(t *testing.T) {
	ts := setupTemplateTestDB(t)

	data := []byte("PK\x03\x04 fake docx")
	tpl, err := ts.Create("Cohabitation v1", "cohabitation.docx", data)
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if tpl.Size != int64(len(data)) {
		t.Errorf("size = %d, want %d", tpl.Size, len(data))
	}
	if tpl.IsActive {
		t.Error("new template should be inactive")
	}
	if tpl.Content != "" {
		t.Error("metadata lookups should not load content")
	}
}

func TestTemplateGetActiveNone(t *testing.T) {
	ts := setupTemplateTestDB(t)

	ts.Create("Draft", "draft.docx", []byte("x"))

	tpl, err := ts.GetActive()
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if tpl != nil {
		t.Error("expected nil when no template is active")
	}
}

func TestTemplateActivate(t *testing.T) {
	ts := setupTemplateTestDB(t)

	first, _ := ts.Create("v1", "v1.docx", []byte("one"))
	second, _ := ts.Create("v2", "v2.docx", []byte("two"))

	if err := ts.Activate(first.ID); err != nil {
		t.Fatalf("activate first: %v", err)
	}
	if err := ts.Activate(second.ID); err != nil {
		t.Fatalf("activate second: %v", err)
	}

	active, err := ts.GetActive()
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if active == nil || active.ID != second.ID {
		t.Fatalf("active = %v, want id %d", active, second.ID)
	}
	data, err := active.Bytes()
	if err != nil {
		t.Fatalf("decode content: %v", err)
	}
	if !bytes.Equal(data, []byte("two")) {
		t.Errorf("content = %q, want %q", data, "two")
	}

	list, _ := ts.List()
	activeCount := 0
	for _, tpl := range list {
		if tpl.IsActive {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Errorf("active templates = %d, want 1", activeCount)
	}
}

func TestTemplateActivateMissing(t *testing.T) {
	ts := setupTemplateTestDB(t)

	if err := ts.Activate(42); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}
