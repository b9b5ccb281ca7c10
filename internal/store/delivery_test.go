package store

import (
	"testing"

	"github.com/dukerupert/cohabit/internal/model"
)

func TestDeliveryLifecycle(t *testing.T) {
	cs, db, userID, teamID := setupContractTestDB(t)
	c, err := cs.Create(userID, teamID, sampleContract())
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	ds := NewDeliveryStore(db)

	d, err := ds.Create(c.ID, []string{"pat@example.com", "lee@example.com"})
	if err != nil {
		t.Fatalf("create delivery: %v", err)
	}
	if d.Status != model.DeliveryPending {
		t.Errorf("Status = %q, want %q", d.Status, model.DeliveryPending)
	}
	if len(d.Recipients) != 2 || d.Recipients[1] != "lee@example.com" {
		t.Errorf("Recipients = %v", d.Recipients)
	}

	if err := ds.MarkArchived(d.ID, "agreements/contract-1/x.pdf.enc", 2048); err != nil {
		t.Fatalf("mark archived: %v", err)
	}
	if err := ds.MarkSent(d.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	got, err := ds.GetByID(d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.DeliverySent {
		t.Errorf("Status = %q, want %q", got.Status, model.DeliverySent)
	}
	if got.ArchiveKey != "agreements/contract-1/x.pdf.enc" || got.SizeBytes != 2048 {
		t.Errorf("archive = %q/%d", got.ArchiveKey, got.SizeBytes)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
}

func TestDeliveryFailedAndList(t *testing.T) {
	cs, db, userID, teamID := setupContractTestDB(t)
	c, _ := cs.Create(userID, teamID, sampleContract())
	ds := NewDeliveryStore(db)

	first, _ := ds.Create(c.ID, nil)
	second, _ := ds.Create(c.ID, []string{"pat@example.com"})
	if err := ds.MarkFailed(second.ID, "postmark API error: status 422"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	list, err := ds.ListForContract(c.ID, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("order = %d,%d, want newest first", list[0].ID, list[1].ID)
	}
	if list[0].Status != model.DeliveryFailed || list[0].ErrorMessage == "" {
		t.Errorf("failed delivery = %+v", list[0])
	}
	if len(list[1].Recipients) != 0 {
		t.Errorf("Recipients = %v, want empty", list[1].Recipients)
	}

	missing, err := ds.GetByID(9999)
	if err != nil || missing != nil {
		t.Errorf("GetByID(missing) = %v, %v; want nil, nil", missing, err)
	}
}
