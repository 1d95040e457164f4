package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/model"
)

const stockSelect = `SELECT s.product_id, s.location_id, s.quantity,
	        p.name AS product_name, l.name AS location_name, l.kind AS location_kind
	 FROM stock_levels s
	 JOIN products p ON p.id = s.product_id
	 JOIN stock_locations l ON l.id = s.location_id`

// ListStock returns the full stock overview.
func ListStock(ctx context.Context, db dbx.DBTX) ([]model.Stock, error) {
	rows, err := db.QueryContext(ctx, stockSelect+` ORDER BY p.name, l.name`)
	if err != nil {
		return nil, fmt.Errorf("listing stock: %w", err)
	}
	defer rows.Close()
	return scanStock(rows)
}

// GetLocationStock returns all stock held at a location.
func GetLocationStock(ctx context.Context, db dbx.DBTX, locationID int64) ([]model.Stock, error) {
	rows, err := db.QueryContext(ctx, stockSelect+` WHERE s.location_id = ? ORDER BY p.name`, locationID)
	if err != nil {
		return nil, fmt.Errorf("getting location stock: %w", err)
	}
	defer rows.Close()
	return scanStock(rows)
}

// GetProductDistribution returns where a product is held.
func GetProductDistribution(ctx context.Context, db dbx.DBTX, productID int64) ([]model.Stock, error) {
	rows, err := db.QueryContext(ctx, stockSelect+` WHERE s.product_id = ? ORDER BY l.kind, l.name`, productID)
	if err != nil {
		return nil, fmt.Errorf("getting product distribution: %w", err)
	}
	defer rows.Close()
	return scanStock(rows)
}

// StockQuantity returns the quantity of a product at a location (0 if none).
func StockQuantity(ctx context.Context, db dbx.DBTX, productID, locationID int64) (int, error) {
	var qty int
	err := db.QueryRowContext(ctx,
		`SELECT quantity FROM stock_levels WHERE product_id = ? AND location_id = ?`,
		productID, locationID,
	).Scan(&qty)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("checking stock quantity: %w", err)
	}
	return qty, nil
}

// TakeStock removes quantity from a location. The row is deleted when it
// reaches zero. Returns common.ErrInsufficientStock if not enough is held.
func TakeStock(ctx context.Context, db dbx.DBTX, productID, locationID int64, quantity int) error {
	available, err := StockQuantity(ctx, db, productID, locationID)
	if err != nil {
		return err
	}
	if available < quantity {
		return fmt.Errorf("have %d, need %d: %w", available, quantity, common.ErrInsufficientStock)
	}

	if available == quantity {
		_, err = db.ExecContext(ctx,
			`DELETE FROM stock_levels WHERE product_id = ? AND location_id = ?`,
			productID, locationID,
		)
	} else {
		_, err = db.ExecContext(ctx,
			`UPDATE stock_levels SET quantity = quantity - ? WHERE product_id = ? AND location_id = ?`,
			quantity, productID, locationID,
		)
	}
	if err != nil {
		return fmt.Errorf("taking stock: %w", err)
	}
	return nil
}

// PutStock adds quantity at a location.
func PutStock(ctx context.Context, db dbx.DBTX, productID, locationID int64, quantity int) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO stock_levels (product_id, location_id, quantity) VALUES (?, ?, ?)
		 ON CONFLICT (product_id, location_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
		productID, locationID, quantity,
	)
	if err != nil {
		return fmt.Errorf("putting stock: %w", err)
	}
	return nil
}

// AddStock receives new stock of a product into a warehouse and records the
// receipt in the action history.
func AddStock(ctx context.Context, db *sql.DB, productID, locationID int64, quantity int, userID int64) error {
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive: %w", common.ErrInvalidArgument)
	}

	return dbx.WithTx(ctx, db, func(ctx context.Context, tx dbx.DBTX) error {
		loc, err := GetLocation(ctx, tx, locationID)
		if err != nil {
			return err
		}
		if loc == nil || loc.DeletedAt != nil {
			return fmt.Errorf("location %d: %w", locationID, common.ErrNotFound)
		}
		if loc.Kind != model.LocationWarehouse {
			return fmt.Errorf("stock can only be received at warehouses: %w", common.ErrInvalidArgument)
		}

		if err := PutStock(ctx, tx, productID, locationID, quantity); err != nil {
			return err
		}

		_, err = RecordAction(ctx, tx, ActionInput{
			UserID:      userID,
			Action:      model.ActionCreate,
			RelatedType: model.EntityStock,
			RelatedID:   stockRelatedID(productID, locationID),
			Details: map[string]any{
				"productId":  productID,
				"locationId": locationID,
				"quantity":   quantity,
				"message":    "Réception de stock",
			},
		})
		return err
	})
}

// AdjustStock corrects the quantity held at a location (losses, counts).
// Delta can be negative; the row is deleted when the result is 0.
func AdjustStock(ctx context.Context, db *sql.DB, productID, locationID int64, delta int, notes string, userID int64) error {
	if delta == 0 {
		return fmt.Errorf("delta must be non-zero: %w", common.ErrInvalidArgument)
	}

	return dbx.WithTx(ctx, db, func(ctx context.Context, tx dbx.DBTX) error {
		loc, err := GetLocation(ctx, tx, locationID)
		if err != nil {
			return err
		}
		if loc == nil || loc.DeletedAt != nil {
			return fmt.Errorf("location %d: %w", locationID, common.ErrNotFound)
		}

		if delta < 0 {
			if err := TakeStock(ctx, tx, productID, locationID, -delta); err != nil {
				return err
			}
		} else if err := PutStock(ctx, tx, productID, locationID, delta); err != nil {
			return err
		}

		_, err = RecordAction(ctx, tx, ActionInput{
			UserID:      userID,
			Action:      model.ActionUpdate,
			RelatedType: model.EntityStock,
			RelatedID:   stockRelatedID(productID, locationID),
			Details: map[string]any{
				"productId":  productID,
				"locationId": locationID,
				"delta":      delta,
				"notes":      notes,
			},
		})
		return err
	})
}

func stockRelatedID(productID, locationID int64) string {
	return fmt.Sprintf("%d:%d", productID, locationID)
}

func scanStock(rows *sql.Rows) ([]model.Stock, error) {
	var stock []model.Stock
	for rows.Next() {
		var s model.Stock
		if err := rows.Scan(&s.ProductID, &s.LocationID, &s.Quantity, &s.ProductName, &s.LocationName, &s.LocationKind); err != nil {
			return nil, fmt.Errorf("scanning stock: %w", err)
		}
		stock = append(stock, s)
	}
	return stock, rows.Err()
}
