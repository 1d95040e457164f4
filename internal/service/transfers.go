// Package service holds the transfer workflow: requesting a stock transfer,
// verifying it, and the read queries around it.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/policy"
	"github.com/medequip/depot/internal/store"
)

// Recent-transfers limits.
const (
	DefaultRecentLimit = 10
	MaxRecentLimit     = 100
)

// Fixed texts written on verification.
const (
	RejectedTitle   = "Transfert rejeté"
	RejectedMessage = "Votre demande de transfert a été rejetée par un administrateur."

	approvedAuditMessage = "Transfert approuvé"
	rejectedAuditMessage = "Transfert rejeté"
)

// RecentCache caches the recent-transfers list. Get reports the generation
// it looked under; Set must be given that generation so a list read before
// an Invalidate is never served after it.
type RecentCache interface {
	Get(ctx context.Context, limit int) (transfers []model.Transfer, gen int64, hit bool, err error)
	Set(ctx context.Context, gen int64, limit int, transfers []model.Transfer) error
	Invalidate(ctx context.Context) error
}

// RequestInput describes a new transfer.
type RequestInput struct {
	ProductID      int64  `json:"product_id"`
	FromLocationID int64  `json:"from_location_id"`
	ToLocationID   int64  `json:"to_location_id"`
	Quantity       int    `json:"quantity"`
	Notes          string `json:"notes"`
}

// VerifyRequest carries an admin's decision. Approve is a pointer so a
// missing decision can be told apart from a rejection.
type VerifyRequest struct {
	TransferID int64
	Approve    *bool
}

// TransferService runs the transfer workflow against one database handle.
type TransferService struct {
	db    *sql.DB
	cache RecentCache
	now   func() time.Time
}

// NewTransferService returns a service using db. cache may be nil.
func NewTransferService(db *sql.DB, cache RecentCache) *TransferService {
	return &TransferService{db: db, cache: cache, now: time.Now}
}

// Request moves quantity out of the source location and records a pending
// transfer to the destination.
func (s *TransferService) Request(ctx context.Context, actor *policy.Actor, in RequestInput) (*model.Transfer, error) {
	if err := policy.Require(actor, policy.CapRequestTransfer); err != nil {
		return nil, err
	}
	if in.ProductID <= 0 || in.FromLocationID <= 0 || in.ToLocationID <= 0 {
		return nil, fmt.Errorf("product and locations are required: %w", common.ErrInvalidArgument)
	}
	if in.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", common.ErrInvalidArgument)
	}
	if in.FromLocationID == in.ToLocationID {
		return nil, fmt.Errorf("cannot transfer to the same location: %w", common.ErrInvalidArgument)
	}

	var out *model.Transfer
	err := dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		product, err := store.GetProduct(ctx, tx, in.ProductID)
		if err != nil {
			return err
		}
		if product == nil || product.DeletedAt != nil {
			return fmt.Errorf("product %d: %w", in.ProductID, common.ErrNotFound)
		}
		for _, id := range []int64{in.FromLocationID, in.ToLocationID} {
			loc, err := store.GetLocation(ctx, tx, id)
			if err != nil {
				return err
			}
			if loc == nil || loc.DeletedAt != nil {
				return fmt.Errorf("location %d: %w", id, common.ErrNotFound)
			}
		}

		if err := store.TakeStock(ctx, tx, in.ProductID, in.FromLocationID, in.Quantity); err != nil {
			return err
		}

		id, err := store.InsertTransfer(ctx, tx, store.TransferInput{
			ProductID:      in.ProductID,
			FromLocationID: in.FromLocationID,
			ToLocationID:   in.ToLocationID,
			Quantity:       in.Quantity,
			Notes:          in.Notes,
			TransferredBy:  actor.UserID,
			TransferredAt:  s.now(),
		})
		if err != nil {
			return err
		}

		if _, err := store.RecordAction(ctx, tx, store.ActionInput{
			UserID:      actor.UserID,
			Action:      model.ActionTransfer,
			RelatedType: model.EntityStockTransfer,
			RelatedID:   store.RelatedID(id),
			Details: map[string]any{
				"productId":      in.ProductID,
				"fromLocationId": in.FromLocationID,
				"toLocationId":   in.ToLocationID,
				"quantity":       in.Quantity,
			},
		}); err != nil {
			return err
		}

		out, err = store.GetTransfer(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, classify("requesting transfer", err)
	}

	s.invalidate(ctx)
	slog.Info("transfer requested", "id", out.ID, "user", actor.Username,
		"product", in.ProductID, "from", in.FromLocationID, "to", in.ToLocationID, "quantity", in.Quantity)
	return out, nil
}

// Verify approves or rejects a pending transfer. The state change, the
// stock movement, the audit entry and (on rejection) the initiator's
// notification commit together or not at all.
func (s *TransferService) Verify(ctx context.Context, actor *policy.Actor, req VerifyRequest) (*model.Transfer, error) {
	if err := policy.Require(actor, policy.CapVerifyTransfers); err != nil {
		return nil, err
	}
	if req.TransferID <= 0 {
		return nil, fmt.Errorf("transfer id must be positive: %w", common.ErrInvalidArgument)
	}
	if req.Approve == nil {
		return nil, fmt.Errorf("decision is required: %w", common.ErrInvalidArgument)
	}
	approve := *req.Approve

	var out *model.Transfer
	err := dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		t, err := store.GetTransfer(ctx, tx, req.TransferID)
		if err != nil {
			return err
		}
		if t == nil {
			return fmt.Errorf("transfer %d: %w", req.TransferID, common.ErrNotFound)
		}
		if t.State.Decided() {
			return fmt.Errorf("transfer %d is %s: %w", t.ID, t.State, common.ErrAlreadyDecided)
		}

		ok, err := store.DecideTransfer(ctx, tx, t.ID, approve, actor.UserID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("transfer %d: %w", t.ID, common.ErrAlreadyDecided)
		}

		// In-transit stock lands at the destination or returns to the source.
		dest := t.ToLocationID
		if !approve {
			dest = t.FromLocationID
		}
		if err := store.PutStock(ctx, tx, t.ProductID, dest, t.Quantity); err != nil {
			return err
		}

		status, message := "Approved", approvedAuditMessage
		if !approve {
			status, message = "Rejected", rejectedAuditMessage
		}
		if _, err := store.RecordAction(ctx, tx, store.ActionInput{
			UserID:      actor.UserID,
			Action:      model.ActionVerify,
			RelatedType: model.EntityStockTransfer,
			RelatedID:   store.RelatedID(t.ID),
			Details: map[string]any{
				"status":   status,
				"message":  message,
				"approved": approve,
			},
		}); err != nil {
			return err
		}

		if !approve {
			if _, err := store.CreateNotification(ctx, tx, store.NotificationInput{
				UserID:   t.TransferredBy,
				Title:    RejectedTitle,
				Message:  RejectedMessage,
				Category: model.CategoryTransfer,
				Metadata: map[string]any{"transferId": t.ID},
			}); err != nil {
				return err
			}
		}

		out, err = store.GetTransfer(ctx, tx, t.ID)
		return err
	})
	if err != nil {
		return nil, classify("verifying transfer", err)
	}

	s.invalidate(ctx)
	slog.Info("transfer verified", "id", out.ID, "state", out.State, "user", actor.Username)
	return out, nil
}

// ListRecent returns the most recent transfers, newest first. A limit of
// zero or less means DefaultRecentLimit; limits above MaxRecentLimit are
// capped.
func (s *TransferService) ListRecent(ctx context.Context, limit int) ([]model.Transfer, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	var gen int64
	cacheable := s.cache != nil
	if cacheable {
		transfers, g, hit, err := s.cache.Get(ctx, limit)
		gen = g
		if err != nil {
			// Without a generation a later Set could be stale.
			cacheable = false
			slog.Warn("recent transfers cache read failed", "error", err)
		} else if hit {
			return transfers, nil
		}
	}

	transfers, err := store.ListRecentTransfers(ctx, s.db, limit)
	if err != nil {
		return nil, classify("listing recent transfers", err)
	}
	if transfers == nil {
		transfers = []model.Transfer{}
	}

	if cacheable {
		if err := s.cache.Set(ctx, gen, limit, transfers); err != nil {
			slog.Warn("recent transfers cache write failed", "error", err)
		}
	}
	return transfers, nil
}

// Get returns one transfer.
func (s *TransferService) Get(ctx context.Context, id int64) (*model.Transfer, error) {
	if id <= 0 {
		return nil, fmt.Errorf("transfer id must be positive: %w", common.ErrInvalidArgument)
	}
	t, err := store.GetTransfer(ctx, s.db, id)
	if err != nil {
		return nil, classify("getting transfer", err)
	}
	if t == nil {
		return nil, fmt.Errorf("transfer %d: %w", id, common.ErrNotFound)
	}
	return t, nil
}

// List returns transfers matching f, newest first.
func (s *TransferService) List(ctx context.Context, f store.TransferFilter) ([]model.Transfer, error) {
	if f.State != "" && !f.State.Valid() {
		return nil, fmt.Errorf("unknown state %q: %w", f.State, common.ErrInvalidArgument)
	}
	transfers, err := store.ListTransfers(ctx, s.db, f)
	if err != nil {
		return nil, classify("listing transfers", err)
	}
	if transfers == nil {
		transfers = []model.Transfer{}
	}
	return transfers, nil
}

func (s *TransferService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		slog.Warn("recent transfers cache invalidation failed", "error", err)
	}
}

// domain errors pass through unchanged; anything else is a storage failure.
var domainErrors = []error{
	common.ErrNotAuthenticated,
	common.ErrNotAuthorized,
	common.ErrInvalidArgument,
	common.ErrNotFound,
	common.ErrAlreadyDecided,
	common.ErrInsufficientStock,
}

func classify(op string, err error) error {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, common.ErrStorage, err)
}
