package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/model"
)

// NotificationInput describes a notification to create.
type NotificationInput struct {
	UserID   int64
	Title    string
	Message  string
	Category string
	Metadata map[string]any
}

const notificationColumns = `id, user_id, title, message, category, is_read, read_at, status, metadata, created_at, delivered_at`

// CreateNotification stores a pending, unread notification for one recipient.
// Calls are not deduplicated: each call creates a new row.
func CreateNotification(ctx context.Context, db dbx.DBTX, in NotificationInput) (*model.Notification, error) {
	if in.UserID <= 0 || in.Title == "" || in.Message == "" || !model.ValidCategory(in.Category) {
		return nil, fmt.Errorf("creating notification: %w", common.ErrInvalidArgument)
	}

	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding notification metadata: %w", err)
	}

	n := &model.Notification{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Title:     in.Title,
		Message:   in.Message,
		Category:  in.Category,
		IsRead:    false,
		Status:    model.DeliveryPending,
		Metadata:  raw,
		CreatedAt: time.Now().UTC(),
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, title, message, category, is_read, status, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		n.ID, n.UserID, n.Title, n.Message, n.Category, n.Status, string(raw), n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}
	return n, nil
}

// GetNotification returns a notification by ID.
func GetNotification(ctx context.Context, db dbx.DBTX, id string) (*model.Notification, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id,
	)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns a user's notifications, newest first.
func ListNotifications(ctx context.Context, db dbx.DBTX, userID int64, unreadOnly bool, limit int) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	args := []any{userID}
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// CountUnreadNotifications returns the number of unread notifications for a user.
func CountUnreadNotifications(ctx context.Context, db dbx.DBTX, userID int64) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return n, nil
}

// MarkNotificationRead marks one of the user's notifications as read.
// Read notifications stay read; marking again is a no-op. Returns false if
// the notification does not exist or belongs to another user.
func MarkNotificationRead(ctx context.Context, db dbx.DBTX, userID int64, id string) (bool, error) {
	_, err := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ?
		 WHERE id = ? AND user_id = ? AND is_read = 0`,
		time.Now().UTC(), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("marking notification read: %w", err)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("checking notification: %w", err)
	}
	return count > 0, nil
}

// MarkAllNotificationsRead marks every unread notification of a user as read
// and returns how many changed.
func MarkAllNotificationsRead(ctx context.Context, db dbx.DBTX, userID int64) (int64, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1, read_at = ? WHERE user_id = ? AND is_read = 0`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// ListPendingNotifications returns undelivered notifications, oldest first.
func ListPendingNotifications(ctx context.Context, db dbx.DBTX, limit int) ([]model.Notification, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE status = ? ORDER BY created_at, rowid LIMIT ?`,
		model.DeliveryPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// MarkNotificationDelivered records a successful hand-off to the broker.
func MarkNotificationDelivered(ctx context.Context, db dbx.DBTX, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE notifications SET status = ?, delivered_at = ? WHERE id = ? AND status = ?`,
		model.DeliveryDelivered, time.Now().UTC(), id, model.DeliveryPending,
	)
	if err != nil {
		return fmt.Errorf("marking notification delivered: %w", err)
	}
	return nil
}

// MarkNotificationFailed records a failed hand-off. Failed notifications are
// still visible in the user's feed.
func MarkNotificationFailed(ctx context.Context, db dbx.DBTX, id string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE notifications SET status = ? WHERE id = ? AND status = ?`,
		model.DeliveryFailed, id, model.DeliveryPending,
	)
	if err != nil {
		return fmt.Errorf("marking notification failed: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*model.Notification, error) {
	n := &model.Notification{}
	var metadata string
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Category, &n.IsRead, &n.ReadAt,
		&n.Status, &metadata, &n.CreatedAt, &n.DeliveredAt); err != nil {
		return nil, err
	}
	n.Metadata = json.RawMessage(metadata)
	return n, nil
}

func scanNotifications(rows *sql.Rows) ([]model.Notification, error) {
	var notifications []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}
