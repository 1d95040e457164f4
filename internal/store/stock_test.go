package store

import (
	"context"
	"errors"
	"testing"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/db"
	"github.com/medequip/depot/internal/model"
)

func TestAddStockRecordsHistory(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := seed(t, database)

	if err := AddStock(ctx, database, f.product.ID, f.warehouse.ID, 10, f.employee.ID); err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	if err := AddStock(ctx, database, f.product.ID, f.warehouse.ID, 5, f.employee.ID); err != nil {
		t.Fatalf("second AddStock: %v", err)
	}

	qty, err := StockQuantity(ctx, database, f.product.ID, f.warehouse.ID)
	if err != nil {
		t.Fatalf("StockQuantity: %v", err)
	}
	if qty != 15 {
		t.Errorf("expected 15, got %d", qty)
	}

	entries, err := ListActions(ctx, database, ActionFilter{RelatedType: model.EntityStock})
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	if entries[0].Action != model.ActionCreate {
		t.Errorf("expected CREATE, got %q", entries[0].Action)
	}
}

func TestAddStockOnlyAtWarehouse(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := seed(t, database)

	err := AddStock(ctx, database, f.product.ID, f.repair.ID, 1, f.employee.ID)
	if !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}

	err = AddStock(ctx, database, f.product.ID, 999, 1, f.employee.ID)
	if !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := AddStock(ctx, database, f.product.ID, f.warehouse.ID, 0, f.employee.ID); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for zero quantity, got %v", err)
	}
}

func TestTakeStockRemovesEmptyRow(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := seed(t, database)

	PutStock(ctx, database, f.product.ID, f.warehouse.ID, 4)

	if err := TakeStock(ctx, database, f.product.ID, f.warehouse.ID, 5); !errors.Is(err, common.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
	if err := TakeStock(ctx, database, f.product.ID, f.warehouse.ID, 4); err != nil {
		t.Fatalf("TakeStock: %v", err)
	}

	stock, err := GetLocationStock(ctx, database, f.warehouse.ID)
	if err != nil {
		t.Fatalf("GetLocationStock: %v", err)
	}
	if len(stock) != 0 {
		t.Errorf("expected empty location, got %+v", stock)
	}
}

func TestAdjustStock(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := seed(t, database)

	PutStock(ctx, database, f.product.ID, f.repair.ID, 3)

	if err := AdjustStock(ctx, database, f.product.ID, f.repair.ID, -1, "casse", f.employee.ID); err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if err := AdjustStock(ctx, database, f.product.ID, f.repair.ID, -5, "", f.employee.ID); !errors.Is(err, common.ErrInsufficientStock) {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
	if err := AdjustStock(ctx, database, f.product.ID, f.repair.ID, 0, "", f.employee.ID); !errors.Is(err, common.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}

	qty, _ := StockQuantity(ctx, database, f.product.ID, f.repair.ID)
	if qty != 2 {
		t.Errorf("expected 2, got %d", qty)
	}

	// The failed adjustment must not leave a history entry behind.
	entries, _ := ListActions(ctx, database, ActionFilter{RelatedType: model.EntityStock})
	if len(entries) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(entries))
	}
}

func TestStockViews(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	f := seed(t, database)

	PutStock(ctx, database, f.product.ID, f.warehouse.ID, 7)
	PutStock(ctx, database, f.product.ID, f.repair.ID, 2)

	all, err := ListStock(ctx, database)
	if err != nil {
		t.Fatalf("ListStock: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 stock rows, got %d", len(all))
	}

	dist, err := GetProductDistribution(ctx, database, f.product.ID)
	if err != nil {
		t.Fatalf("GetProductDistribution: %v", err)
	}
	if len(dist) != 2 {
		t.Fatalf("expected 2 locations, got %d", len(dist))
	}
	// Ordered by location kind: repair before warehouse.
	if dist[0].LocationName != "Atelier" || dist[0].Quantity != 2 {
		t.Errorf("unexpected first row: %+v", dist[0])
	}
}
