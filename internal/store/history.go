package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/model"
)

// ActionInput describes one audited action.
type ActionInput struct {
	UserID      int64
	Action      model.ActionKind
	RelatedType string
	RelatedID   string
	Details     map[string]any
}

// ActionFilter narrows ListActions. Zero values match everything.
type ActionFilter struct {
	RelatedType string
	RelatedID   string
	UserID      int64
	Limit       int
}

// RelatedID formats an integer entity id for the action history.
func RelatedID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// RecordAction appends an entry to the user action history. The history is
// append-only: there is no update or delete counterpart.
func RecordAction(ctx context.Context, db dbx.DBTX, in ActionInput) (*model.ActionEntry, error) {
	if in.UserID <= 0 || !in.Action.Valid() || in.RelatedType == "" || in.RelatedID == "" {
		return nil, fmt.Errorf("recording action: %w", common.ErrInvalidArgument)
	}

	details := in.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encoding action details: %w", err)
	}

	entry := &model.ActionEntry{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Action:      in.Action,
		RelatedType: in.RelatedType,
		RelatedID:   in.RelatedID,
		Details:     raw,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO user_action_history (id, user_id, action, related_type, related_id, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.UserID, string(entry.Action), entry.RelatedType, entry.RelatedID, string(raw), entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("recording action: %w", err)
	}
	return entry, nil
}

// ListActions returns history entries, newest first.
func ListActions(ctx context.Context, db dbx.DBTX, f ActionFilter) ([]model.ActionEntry, error) {
	query := `SELECT h.id, h.user_id, h.action, h.related_type, h.related_id, h.details, h.created_at,
	                 u.username
	          FROM user_action_history h
	          JOIN users u ON u.id = h.user_id
	          WHERE 1=1`
	var args []any

	if f.RelatedType != "" {
		query += ` AND h.related_type = ?`
		args = append(args, f.RelatedType)
	}
	if f.RelatedID != "" {
		query += ` AND h.related_id = ?`
		args = append(args, f.RelatedID)
	}
	if f.UserID > 0 {
		query += ` AND h.user_id = ?`
		args = append(args, f.UserID)
	}

	query += ` ORDER BY h.created_at DESC, h.rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing actions: %w", err)
	}
	defer rows.Close()

	var entries []model.ActionEntry
	for rows.Next() {
		var e model.ActionEntry
		var action, details string
		if err := rows.Scan(&e.ID, &e.UserID, &action, &e.RelatedType, &e.RelatedID, &details, &e.CreatedAt,
			&e.Username); err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		e.Action = model.ActionKind(action)
		e.Details = json.RawMessage(details)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
