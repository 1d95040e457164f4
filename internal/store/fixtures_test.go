package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/medequip/depot/internal/model"
)

type fixture struct {
	admin     *model.User
	employee  *model.User
	product   *model.Product
	warehouse *model.Location
	repair    *model.Location
}

func seed(t *testing.T, database *sql.DB) fixture {
	t.Helper()
	ctx := context.Background()

	admin, err := CreateUser(ctx, database, "admin", "hash", model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser admin: %v", err)
	}
	employee, err := CreateUser(ctx, database, "nadia", "hash", model.RoleEmployee)
	if err != nil {
		t.Fatalf("CreateUser employee: %v", err)
	}
	product, err := CreateProduct(ctx, database, ProductInput{Name: "Concentrateur O2", Kind: model.ProductKindDevice})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	warehouse, err := CreateLocation(ctx, database, "Dépôt central", model.LocationWarehouse)
	if err != nil {
		t.Fatalf("CreateLocation warehouse: %v", err)
	}
	repair, err := CreateLocation(ctx, database, "Atelier", model.LocationRepair)
	if err != nil {
		t.Fatalf("CreateLocation repair: %v", err)
	}

	return fixture{admin: admin, employee: employee, product: product, warehouse: warehouse, repair: repair}
}
