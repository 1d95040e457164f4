package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/model"
)

// ProductInput carries the editable product fields.
type ProductInput struct {
	Name      string
	Kind      string
	Reference string
	Brand     string
	Model     string
	Status    string
}

const productColumns = `id, name, kind, reference, brand, model, status, photo IS NOT NULL,
	created_at, updated_at, deleted_at`

// CreateProduct creates a new product or device.
func CreateProduct(ctx context.Context, db dbx.DBTX, in ProductInput) (*model.Product, error) {
	if in.Kind == "" {
		in.Kind = model.ProductKindProduct
	}
	if in.Status == "" {
		in.Status = model.ProductStatusActive
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO products (name, kind, reference, brand, model, status) VALUES (?, ?, ?, ?, ?, ?)`,
		in.Name, in.Kind, in.Reference, in.Brand, in.Model, in.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting product id: %w", err)
	}

	return GetProduct(ctx, db, id)
}

// GetProduct returns a product by ID.
func GetProduct(ctx context.Context, db dbx.DBTX, id int64) (*model.Product, error) {
	p, err := scanProduct(db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting product: %w", err)
	}
	return p, nil
}

// ListProducts returns all non-deleted products, optionally filtered by kind and status.
func ListProducts(ctx context.Context, db dbx.DBTX, kind, status string) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE deleted_at IS NULL`
	var args []any
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// UpdateProduct updates a product's metadata.
func UpdateProduct(ctx context.Context, db dbx.DBTX, id int64, in ProductInput) error {
	_, err := db.ExecContext(ctx,
		`UPDATE products SET name = ?, kind = ?, reference = ?, brand = ?, model = ?, status = ?,
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		in.Name, in.Kind, in.Reference, in.Brand, in.Model, in.Status, id,
	)
	if err != nil {
		return fmt.Errorf("updating product: %w", err)
	}
	return nil
}

// DeleteProduct soft-deletes a product.
func DeleteProduct(ctx context.Context, db dbx.DBTX, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE products SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}

// SetProductPhoto stores a product's JPEG photo.
func SetProductPhoto(ctx context.Context, db dbx.DBTX, id int64, photo []byte) error {
	_, err := db.ExecContext(ctx,
		`UPDATE products SET photo = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND deleted_at IS NULL`,
		photo, id,
	)
	if err != nil {
		return fmt.Errorf("setting product photo: %w", err)
	}
	return nil
}

// GetProductPhoto returns a product's photo, or nil if it has none.
func GetProductPhoto(ctx context.Context, db dbx.DBTX, id int64) ([]byte, error) {
	var photo []byte
	err := db.QueryRowContext(ctx,
		`SELECT photo FROM products WHERE id = ?`, id,
	).Scan(&photo)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting product photo: %w", err)
	}
	return photo, nil
}

func scanProduct(row rowScanner) (*model.Product, error) {
	p := &model.Product{}
	var reference, brand, mdl sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Kind, &reference, &brand, &mdl, &p.Status, &p.HasPhoto,
		&p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
		return nil, err
	}
	p.Reference = reference.String
	p.Brand = brand.String
	p.Model = mdl.String
	return p, nil
}
