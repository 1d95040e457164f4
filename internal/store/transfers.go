package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/model"
)

// TransferInput holds the fields of a new pending transfer.
type TransferInput struct {
	ProductID      int64
	FromLocationID int64
	ToLocationID   int64
	Quantity       int
	Notes          string
	TransferredBy  int64
	TransferredAt  time.Time
}

// TransferFilter narrows ListTransfers. Zero values match everything.
type TransferFilter struct {
	ProductID  int64
	LocationID int64
	State      model.TransferState
	Limit      int
}

const transferSelect = `SELECT t.id, t.product_id, t.from_location_id, t.to_location_id, t.quantity,
	        COALESCE(t.notes, ''), t.transferred_at, t.transferred_by,
	        t.state, t.verified, t.verified_by, t.verified_at,
	        p.name, p.kind, lf.name, lt.name, u.username, u.role
	 FROM stock_transfers t
	 JOIN products p ON p.id = t.product_id
	 JOIN stock_locations lf ON lf.id = t.from_location_id
	 JOIN stock_locations lt ON lt.id = t.to_location_id
	 JOIN users u ON u.id = t.transferred_by`

// InsertTransfer stores a pending transfer and returns its ID. It does not
// touch stock levels.
func InsertTransfer(ctx context.Context, db dbx.DBTX, in TransferInput) (int64, error) {
	at := in.TransferredAt
	if at.IsZero() {
		at = time.Now()
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO stock_transfers
		   (product_id, from_location_id, to_location_id, quantity, notes, transferred_at, transferred_by, state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ProductID, in.FromLocationID, in.ToLocationID, in.Quantity, in.Notes,
		at.UTC(), in.TransferredBy, string(model.TransferPending),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting transfer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting transfer id: %w", err)
	}
	return id, nil
}

// GetTransfer returns a transfer with its display fields, or nil if it does
// not exist.
func GetTransfer(ctx context.Context, db dbx.DBTX, id int64) (*model.Transfer, error) {
	t, err := scanTransfer(db.QueryRowContext(ctx, transferSelect+` WHERE t.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	return t, nil
}

// ListTransfers returns transfers matching the filter, newest first.
// LocationID matches either end of the transfer.
func ListTransfers(ctx context.Context, db dbx.DBTX, f TransferFilter) ([]model.Transfer, error) {
	query := transferSelect + ` WHERE 1=1`
	var args []any

	if f.ProductID > 0 {
		query += ` AND t.product_id = ?`
		args = append(args, f.ProductID)
	}
	if f.LocationID > 0 {
		query += ` AND (t.from_location_id = ? OR t.to_location_id = ?)`
		args = append(args, f.LocationID, f.LocationID)
	}
	if f.State != "" {
		query += ` AND t.state = ?`
		args = append(args, string(f.State))
	}

	query += ` ORDER BY t.transferred_at DESC, t.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()

	var transfers []model.Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

// ListRecentTransfers returns the limit most recent transfers.
func ListRecentTransfers(ctx context.Context, db dbx.DBTX, limit int) ([]model.Transfer, error) {
	return ListTransfers(ctx, db, TransferFilter{Limit: limit})
}

// DecideTransfer records the verification outcome of a pending transfer.
// It reports false when the transfer was not pending (already decided or
// missing), in which case nothing is written.
func DecideTransfer(ctx context.Context, db dbx.DBTX, id int64, approve bool, verifierID int64, at time.Time) (bool, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE stock_transfers
		 SET state = ?, verified = ?, verified_by = ?, verified_at = ?
		 WHERE id = ? AND state = ?`,
		string(model.StateFromDecision(approve)), approve, verifierID, at.UTC(),
		id, string(model.TransferPending),
	)
	if err != nil {
		return false, fmt.Errorf("deciding transfer: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deciding transfer: %w", err)
	}
	return n == 1, nil
}

func scanTransfer(row rowScanner) (*model.Transfer, error) {
	t := &model.Transfer{}
	var state string
	err := row.Scan(&t.ID, &t.ProductID, &t.FromLocationID, &t.ToLocationID, &t.Quantity,
		&t.Notes, &t.TransferredAt, &t.TransferredBy,
		&state, &t.Verified, &t.VerifiedBy, &t.VerifiedAt,
		&t.ProductName, &t.ProductKind, &t.FromLocationName, &t.ToLocationName,
		&t.TransferredByName, &t.TransferredByRole)
	if err != nil {
		return nil, err
	}
	t.State = model.TransferState(state)
	return t, nil
}
