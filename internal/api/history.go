package api

import (
	"context"
	"database/sql"
	"net/http"
	"strconv"

	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/store"
)

// HistoryHandler exposes the action history (admin only).
type HistoryHandler struct {
	DB *sql.DB
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// List handles GET /api/history?type=&related_id=&user_id=&limit=.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	userID, ok := queryInt64(w, r, "user_id")
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := store.ListActions(r.Context(), h.DB, store.ActionFilter{
		RelatedType: q.Get("type"),
		RelatedID:   q.Get("related_id"),
		UserID:      userID,
		Limit:       limit,
	})
	if err != nil {
		writeServiceError(w, "list history", err)
		return
	}
	if entries == nil {
		entries = []model.ActionEntry{}
	}
	jsonResponse(w, http.StatusOK, entries)
}

// audited runs change and the history entry it returns in one transaction.
// If either write fails, neither is kept.
func audited(ctx context.Context, db *sql.DB, change func(ctx context.Context, tx dbx.DBTX) (store.ActionInput, error)) error {
	return dbx.WithTx(ctx, db, func(ctx context.Context, tx dbx.DBTX) error {
		entry, err := change(ctx, tx)
		if err != nil {
			return err
		}
		_, err = store.RecordAction(ctx, tx, entry)
		return err
	})
}

// actionEntry builds the history entry for a CRUD write by the caller.
func actionEntry(r *http.Request, action model.ActionKind, relatedType string, relatedID int64, details map[string]any) store.ActionInput {
	return store.ActionInput{
		UserID:      GetClaims(r.Context()).UserID,
		Action:      action,
		RelatedType: relatedType,
		RelatedID:   store.RelatedID(relatedID),
		Details:     details,
	}
}
