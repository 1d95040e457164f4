package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/db"
	"github.com/medequip/depot/internal/model"
)

func TestRecordAndListActions(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := seed(t, database)

	entry, err := RecordAction(ctx, database, ActionInput{
		UserID:      f.admin.ID,
		Action:      model.ActionVerify,
		RelatedType: model.EntityStockTransfer,
		RelatedID:   RelatedID(42),
		Details:     map[string]any{"status": "Approved", "approved": true},
	})
	if err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	if entry.ID == "" {
		t.Error("expected generated id")
	}

	RecordAction(ctx, database, ActionInput{
		UserID: f.employee.ID, Action: model.ActionLogin, RelatedType: model.EntityUser, RelatedID: RelatedID(f.employee.ID),
	})

	entries, err := ListActions(ctx, database, ActionFilter{RelatedType: model.EntityStockTransfer, RelatedID: "42"})
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Username != "admin" {
		t.Errorf("expected username 'admin', got %q", entries[0].Username)
	}

	var details map[string]any
	if err := json.Unmarshal(entries[0].Details, &details); err != nil {
		t.Fatalf("decoding details: %v", err)
	}
	if details["status"] != "Approved" || details["approved"] != true {
		t.Errorf("unexpected details: %v", details)
	}

	all, _ := ListActions(ctx, database, ActionFilter{})
	if len(all) != 2 {
		t.Errorf("expected 2 entries, got %d", len(all))
	}
	// Newest first.
	if all[0].Action != model.ActionLogin {
		t.Errorf("expected newest entry first, got %q", all[0].Action)
	}

	byUser, _ := ListActions(ctx, database, ActionFilter{UserID: f.employee.ID})
	if len(byUser) != 1 {
		t.Errorf("expected 1 entry for employee, got %d", len(byUser))
	}

	limited, _ := ListActions(ctx, database, ActionFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}

func TestRecordActionEmptyDetails(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := seed(t, database)

	entry, err := RecordAction(ctx, database, ActionInput{
		UserID: f.admin.ID, Action: model.ActionDelete, RelatedType: model.EntityProduct, RelatedID: "1",
	})
	if err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	if string(entry.Details) != "{}" {
		t.Errorf("expected empty object, got %s", entry.Details)
	}
}

func TestRecordActionValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := seed(t, database)

	tests := []struct {
		name string
		in   ActionInput
	}{
		{"no user", ActionInput{Action: model.ActionVerify, RelatedType: "StockTransfer", RelatedID: "1"}},
		{"unknown action", ActionInput{UserID: f.admin.ID, Action: "APPROVE", RelatedType: "StockTransfer", RelatedID: "1"}},
		{"no related type", ActionInput{UserID: f.admin.ID, Action: model.ActionVerify, RelatedID: "1"}},
		{"no related id", ActionInput{UserID: f.admin.ID, Action: model.ActionVerify, RelatedType: "StockTransfer"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := RecordAction(ctx, database, tt.in); !errors.Is(err, common.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}

	entries, _ := ListActions(ctx, database, ActionFilter{})
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}
