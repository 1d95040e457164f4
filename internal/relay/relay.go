// Package relay hands pending notifications to a message broker. The
// notifications table is the outbox: a row stays pending until it is
// published, and is marked failed after repeated publish errors.
package relay

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/store"
)

// MaxAttempts is how many publish errors a notification may hit before it
// is marked failed.
const MaxAttempts = 3

// Publisher sends one message to the broker.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Event is the message published for a notification.
type Event struct {
	ID        string          `json:"id"`
	UserID    int64           `json:"userId"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Category  string          `json:"category"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Relay polls the outbox and publishes what it finds.
type Relay struct {
	db       *sql.DB
	pub      Publisher
	interval time.Duration
	batch    int
	attempts map[string]int
}

// New returns a relay polling every interval, batch rows at a time.
func New(db *sql.DB, pub Publisher, interval time.Duration, batch int) *Relay {
	if batch <= 0 {
		batch = 50
	}
	return &Relay{
		db:       db,
		pub:      pub,
		interval: interval,
		batch:    batch,
		attempts: make(map[string]int),
	}
}

// Run flushes the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	slog.Info("notification relay started", "interval", r.interval, "batch", r.batch)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("notification relay stopped")
			return
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				slog.Error("notification relay flush failed", "error", err)
			}
		}
	}
}

// Flush publishes one batch of pending notifications and returns how many
// were delivered.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	pending, err := store.ListPendingNotifications(ctx, r.db, r.batch)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, n := range pending {
		if err := r.publish(ctx, n); err != nil {
			if ctx.Err() != nil {
				return delivered, ctx.Err()
			}
			r.attempts[n.ID]++
			slog.Warn("publishing notification failed", "id", n.ID, "attempt", r.attempts[n.ID], "error", err)
			if r.attempts[n.ID] >= MaxAttempts {
				delete(r.attempts, n.ID)
				if err := store.MarkNotificationFailed(ctx, r.db, n.ID); err != nil {
					return delivered, err
				}
			}
			continue
		}

		delete(r.attempts, n.ID)
		if err := store.MarkNotificationDelivered(ctx, r.db, n.ID); err != nil {
			return delivered, err
		}
		delivered++
	}
	return delivered, nil
}

func (r *Relay) publish(ctx context.Context, n model.Notification) error {
	value, err := json.Marshal(Event{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Category:  n.Category,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}
	return r.pub.Publish(ctx, []byte(strconv.FormatInt(n.UserID, 10)), value)
}
