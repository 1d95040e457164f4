package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medequip/depot/internal/db"
	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/store"
)

type message struct {
	key   string
	value []byte
}

type fakePublisher struct {
	sent []message
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, message{key: string(key), value: value})
	return nil
}

func TestFlushPublishesAndMarksDelivered(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, database, "karim", "hash", model.RoleEmployee)
	require.NoError(t, err)
	n, err := store.CreateNotification(ctx, database, store.NotificationInput{
		UserID:   user.ID,
		Title:    "Transfert rejeté",
		Message:  "rejeté",
		Category: model.CategoryTransfer,
		Metadata: map[string]any{"transferId": 12},
	})
	require.NoError(t, err)

	pub := &fakePublisher{}
	r := New(database, pub, time.Second, 10)

	delivered, err := r.Flush(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, delivered)
	require.Len(t, pub.sent, 1)
	require.Equal(t, strconv.FormatInt(user.ID, 10), pub.sent[0].key)

	var ev Event
	require.NoError(t, json.Unmarshal(pub.sent[0].value, &ev))
	require.Equal(t, n.ID, ev.ID)
	require.Equal(t, "Transfert rejeté", ev.Title)
	require.JSONEq(t, `{"transferId":12}`, string(ev.Metadata))

	got, err := store.GetNotification(ctx, database, n.ID)
	require.NoError(t, err)
	require.Equal(t, model.DeliveryDelivered, got.Status)

	// Nothing left to publish.
	delivered, err = r.Flush(ctx)
	require.NoError(t, err)
	require.Zero(t, delivered)
	require.Len(t, pub.sent, 1)
}

func TestFlushMarksFailedAfterMaxAttempts(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, database, "karim", "hash", model.RoleEmployee)
	require.NoError(t, err)
	n, err := store.CreateNotification(ctx, database, store.NotificationInput{
		UserID: user.ID, Title: "t", Message: "m", Category: model.CategorySystem,
	})
	require.NoError(t, err)

	pub := &fakePublisher{err: errors.New("broker unavailable")}
	r := New(database, pub, time.Second, 10)

	for i := 1; i < MaxAttempts; i++ {
		_, err := r.Flush(ctx)
		require.NoError(t, err)
		got, _ := store.GetNotification(ctx, database, n.ID)
		require.Equal(t, model.DeliveryPending, got.Status, "attempt %d", i)
	}

	_, err = r.Flush(ctx)
	require.NoError(t, err)
	got, err := store.GetNotification(ctx, database, n.ID)
	require.NoError(t, err)
	require.Equal(t, model.DeliveryFailed, got.Status)
	require.Empty(t, r.attempts)
}

func TestRunStopsOnCancel(t *testing.T) {
	database := db.NewTestDB(t)
	r := New(database, &fakePublisher{}, 10*time.Millisecond, 0)
	require.Equal(t, 50, r.batch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop after cancel")
	}
}
