package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/db"
	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/policy"
	"github.com/medequip/depot/internal/store"
)

type env struct {
	db        *sql.DB
	svc       *TransferService
	admin     *policy.Actor
	employee  *policy.Actor
	doctor    *policy.Actor
	product   int64
	warehouse int64
	patient   int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	actor := func(username, role string) *policy.Actor {
		u, err := store.CreateUser(ctx, database, username, "hash", role)
		require.NoError(t, err)
		return &policy.Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
	}

	e := &env{
		db:       database,
		svc:      NewTransferService(database, nil),
		admin:    actor("boss", model.RoleAdmin),
		employee: actor("karim", model.RoleEmployee),
		doctor:   actor("dr.ben", model.RoleDoctor),
	}

	p, err := store.CreateProduct(ctx, database, store.ProductInput{Name: "Lit médicalisé", Kind: model.ProductKindDevice})
	require.NoError(t, err)
	wh, err := store.CreateLocation(ctx, database, "Dépôt central", model.LocationWarehouse)
	require.NoError(t, err)
	pt, err := store.CreateLocation(ctx, database, "M. Trabelsi", model.LocationPatient)
	require.NoError(t, err)
	e.product, e.warehouse, e.patient = p.ID, wh.ID, pt.ID

	require.NoError(t, store.PutStock(ctx, database, e.product, e.warehouse, 20))

	// Strictly increasing clock so ordering is deterministic.
	clock := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	e.svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}
	return e
}

func (e *env) request(t *testing.T, actor *policy.Actor, qty int) *model.Transfer {
	t.Helper()
	tr, err := e.svc.Request(context.Background(), actor, RequestInput{
		ProductID:      e.product,
		FromLocationID: e.warehouse,
		ToLocationID:   e.patient,
		Quantity:       qty,
	})
	require.NoError(t, err)
	return tr
}

func (e *env) stock(t *testing.T, location int64) int {
	t.Helper()
	qty, err := store.StockQuantity(context.Background(), e.db, e.product, location)
	require.NoError(t, err)
	return qty
}

func (e *env) verifyEntries(t *testing.T, transferID int64) []model.ActionEntry {
	t.Helper()
	entries, err := store.ListActions(context.Background(), e.db, store.ActionFilter{
		RelatedType: model.EntityStockTransfer,
		RelatedID:   store.RelatedID(transferID),
	})
	require.NoError(t, err)
	var verify []model.ActionEntry
	for _, en := range entries {
		if en.Action == model.ActionVerify {
			verify = append(verify, en)
		}
	}
	return verify
}

func (e *env) notifications(t *testing.T, userID int64) []model.Notification {
	t.Helper()
	list, err := store.ListNotifications(context.Background(), e.db, userID, false, 0)
	require.NoError(t, err)
	return list
}

func boolPtr(b bool) *bool { return &b }

func TestRequestMovesStockInTransit(t *testing.T) {
	e := newEnv(t)

	tr := e.request(t, e.employee, 5)
	require.Equal(t, model.TransferPending, tr.State)
	require.Nil(t, tr.Verified)
	require.Equal(t, e.employee.UserID, tr.TransferredBy)
	require.Equal(t, "karim", tr.TransferredByName)
	require.Equal(t, model.RoleEmployee, tr.TransferredByRole)

	require.Equal(t, 15, e.stock(t, e.warehouse))
	require.Equal(t, 0, e.stock(t, e.patient))

	entries, err := store.ListActions(context.Background(), e.db, store.ActionFilter{RelatedType: model.EntityStockTransfer})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, model.ActionTransfer, entries[0].Action)
}

func TestRequestValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RequestInput
		want error
	}{
		{"zero quantity", RequestInput{ProductID: e.product, FromLocationID: e.warehouse, ToLocationID: e.patient}, common.ErrInvalidArgument},
		{"same location", RequestInput{ProductID: e.product, FromLocationID: e.warehouse, ToLocationID: e.warehouse, Quantity: 1}, common.ErrInvalidArgument},
		{"missing product id", RequestInput{FromLocationID: e.warehouse, ToLocationID: e.patient, Quantity: 1}, common.ErrInvalidArgument},
		{"unknown product", RequestInput{ProductID: 999, FromLocationID: e.warehouse, ToLocationID: e.patient, Quantity: 1}, common.ErrNotFound},
		{"unknown location", RequestInput{ProductID: e.product, FromLocationID: e.warehouse, ToLocationID: 999, Quantity: 1}, common.ErrNotFound},
		{"insufficient stock", RequestInput{ProductID: e.product, FromLocationID: e.warehouse, ToLocationID: e.patient, Quantity: 21}, common.ErrInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Request(ctx, e.employee, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := e.svc.Request(ctx, nil, tests[0].in)
	require.ErrorIs(t, err, common.ErrNotAuthenticated)

	// Nothing moved.
	require.Equal(t, 20, e.stock(t, e.warehouse))
	list, err := e.svc.List(ctx, store.TransferFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestDoctorCanRequest(t *testing.T) {
	e := newEnv(t)
	tr := e.request(t, e.doctor, 1)
	require.Equal(t, model.RoleDoctor, tr.TransferredByRole)
}

func TestVerifyApprove(t *testing.T) {
	e := newEnv(t)
	tr := e.request(t, e.employee, 5)

	out, err := e.svc.Verify(context.Background(), e.admin, VerifyRequest{TransferID: tr.ID, Approve: boolPtr(true)})
	require.NoError(t, err)

	require.Equal(t, model.TransferApproved, out.State)
	require.NotNil(t, out.Verified)
	require.True(t, *out.Verified)
	require.NotNil(t, out.VerifiedBy)
	require.Equal(t, e.admin.UserID, *out.VerifiedBy)
	require.NotNil(t, out.VerifiedAt)

	require.Len(t, e.verifyEntries(t, tr.ID), 1)
	require.Empty(t, e.notifications(t, e.employee.UserID))

	require.Equal(t, 15, e.stock(t, e.warehouse))
	require.Equal(t, 5, e.stock(t, e.patient))
}

func TestVerifyReject(t *testing.T) {
	e := newEnv(t)
	tr := e.request(t, e.employee, 5)

	out, err := e.svc.Verify(context.Background(), e.admin, VerifyRequest{TransferID: tr.ID, Approve: boolPtr(false)})
	require.NoError(t, err)

	require.Equal(t, model.TransferRejected, out.State)
	require.NotNil(t, out.Verified)
	require.False(t, *out.Verified)

	entries := e.verifyEntries(t, tr.ID)
	require.Len(t, entries, 1)
	var details map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Details, &details))
	require.Equal(t, "Rejected", details["status"])
	require.Equal(t, false, details["approved"])
	require.NotEmpty(t, details["message"])

	notes := e.notifications(t, e.employee.UserID)
	require.Len(t, notes, 1)
	require.Equal(t, RejectedTitle, notes[0].Title)
	require.Equal(t, model.CategoryTransfer, notes[0].Category)
	require.False(t, notes[0].IsRead)
	require.Equal(t, model.DeliveryPending, notes[0].Status)

	// Stock returns to the source.
	require.Equal(t, 20, e.stock(t, e.warehouse))
	require.Equal(t, 0, e.stock(t, e.patient))
}

func TestInTransitSourceCannotBeDeleted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tr := e.request(t, e.employee, 20)
	require.Equal(t, 0, e.stock(t, e.warehouse))

	err := store.DeleteLocation(ctx, e.db, e.warehouse)
	require.ErrorIs(t, err, common.ErrInvalidArgument)

	_, err = e.svc.Verify(ctx, e.admin, VerifyRequest{TransferID: tr.ID, Approve: boolPtr(false)})
	require.NoError(t, err)

	loc, err := store.GetLocation(ctx, e.db, e.warehouse)
	require.NoError(t, err)
	require.Nil(t, loc.DeletedAt)
	require.Equal(t, 20, e.stock(t, e.warehouse))
}

func TestVerifyUnknownTransfer(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.Verify(context.Background(), e.admin, VerifyRequest{TransferID: 4242, Approve: boolPtr(false)})
	require.ErrorIs(t, err, common.ErrNotFound)

	all, err := store.ListActions(context.Background(), e.db, store.ActionFilter{})
	require.NoError(t, err)
	require.Empty(t, all)
	pending, err := store.ListPendingNotifications(context.Background(), e.db, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestVerifyRequiresAdmin(t *testing.T) {
	e := newEnv(t)
	tr := e.request(t, e.employee, 2)
	ctx := context.Background()

	for _, actor := range []*policy.Actor{e.employee, e.doctor} {
		_, err := e.svc.Verify(ctx, actor, VerifyRequest{TransferID: tr.ID, Approve: boolPtr(true)})
		require.ErrorIs(t, err, common.ErrNotAuthorized)
	}

	_, err := e.svc.Verify(ctx, nil, VerifyRequest{TransferID: tr.ID, Approve: boolPtr(true)})
	require.ErrorIs(t, err, common.ErrNotAuthenticated)

	got, err := e.svc.Get(ctx, tr.ID)
	require.NoError(t, err)
	require.Equal(t, model.TransferPending, got.State)
	require.Empty(t, e.verifyEntries(t, tr.ID))
}

func TestVerifyInvalidArguments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.Verify(ctx, e.admin, VerifyRequest{TransferID: 0, Approve: boolPtr(true)})
	require.ErrorIs(t, err, common.ErrInvalidArgument)

	_, err = e.svc.Verify(ctx, e.admin, VerifyRequest{TransferID: 1})
	require.ErrorIs(t, err, common.ErrInvalidArgument)
}

func TestVerifyTwiceIsRejected(t *testing.T) {
	e := newEnv(t)
	tr := e.request(t, e.employee, 3)
	ctx := context.Background()

	_, err := e.svc.Verify(ctx, e.admin, VerifyRequest{TransferID: tr.ID, Approve: boolPtr(true)})
	require.NoError(t, err)

	_, err = e.svc.Verify(ctx, e.admin, VerifyRequest{TransferID: tr.ID, Approve: boolPtr(false)})
	require.ErrorIs(t, err, common.ErrAlreadyDecided)

	require.Len(t, e.verifyEntries(t, tr.ID), 1)
	require.Empty(t, e.notifications(t, e.employee.UserID))
	require.Equal(t, 3, e.stock(t, e.patient))

	got, err := e.svc.Get(ctx, tr.ID)
	require.NoError(t, err)
	require.Equal(t, model.TransferApproved, got.State)
}

func TestConcurrentVerifyOneWins(t *testing.T) {
	e := newEnv(t)
	tr := e.request(t, e.employee, 4)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, approve := range []bool{true, false} {
		wg.Add(1)
		go func(i int, approve bool) {
			defer wg.Done()
			_, errs[i] = e.svc.Verify(context.Background(), e.admin, VerifyRequest{TransferID: tr.ID, Approve: boolPtr(approve)})
		}(i, approve)
	}
	wg.Wait()

	var ok, decided int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, common.ErrAlreadyDecided):
			decided++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, decided)
	require.Len(t, e.verifyEntries(t, tr.ID), 1)
}

func TestRejectedTransferScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tr := e.request(t, e.employee, 5)

	_, err := e.svc.Verify(ctx, e.admin, VerifyRequest{TransferID: tr.ID, Approve: boolPtr(false)})
	require.NoError(t, err)

	got, err := e.svc.Get(ctx, tr.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Verified)
	require.False(t, *got.Verified)

	entries := e.verifyEntries(t, tr.ID)
	require.Len(t, entries, 1)
	require.Equal(t, e.admin.UserID, entries[0].UserID)
	var details map[string]any
	require.NoError(t, json.Unmarshal(entries[0].Details, &details))
	require.Equal(t, "Rejected", details["status"])

	notes := e.notifications(t, e.employee.UserID)
	require.Len(t, notes, 1)
	require.Equal(t, "Transfert rejeté", notes[0].Title)
	var meta map[string]any
	require.NoError(t, json.Unmarshal(notes[0].Metadata, &meta))
	require.Equal(t, float64(tr.ID), meta["transferId"])
}

func TestListRecent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		e.request(t, e.employee, 1)
	}

	tests := []struct {
		limit int
		want  int
	}{
		{0, DefaultRecentLimit},
		{-3, DefaultRecentLimit},
		{5, 5},
		{50, 12},
	}
	for _, tt := range tests {
		got, err := e.svc.ListRecent(ctx, tt.limit)
		require.NoError(t, err)
		require.Len(t, got, tt.want, "limit %d", tt.limit)
		for i := 1; i < len(got); i++ {
			require.False(t, got[i].TransferredAt.After(got[i-1].TransferredAt), "not newest first at %d", i)
		}
		require.NotEmpty(t, got[0].ProductName)
		require.NotEmpty(t, got[0].FromLocationName)
	}
}

func TestListRecentEmpty(t *testing.T) {
	e := newEnv(t)
	got, err := e.svc.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
}

func TestListInvalidState(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.List(context.Background(), store.TransferFilter{State: "lost"})
	require.ErrorIs(t, err, common.ErrInvalidArgument)
}

type fakeCache struct {
	gen         int64
	entries     map[string][]model.Transfer
	getErr      error
	beforeSet   func()
	gets        int
	sets        int
	invalidated int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]model.Transfer{}}
}

func cacheKey(gen int64, limit int) string { return fmt.Sprintf("%d:%d", gen, limit) }

func (c *fakeCache) Get(_ context.Context, limit int) ([]model.Transfer, int64, bool, error) {
	c.gets++
	if c.getErr != nil {
		return nil, 0, false, c.getErr
	}
	t, ok := c.entries[cacheKey(c.gen, limit)]
	return t, c.gen, ok, nil
}

func (c *fakeCache) Set(_ context.Context, gen int64, limit int, transfers []model.Transfer) error {
	if c.beforeSet != nil {
		hook := c.beforeSet
		c.beforeSet = nil
		hook()
	}
	c.sets++
	c.entries[cacheKey(gen, limit)] = transfers
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.invalidated++
	c.gen++
	return nil
}

func TestListRecentUsesCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cache := newFakeCache()
	e.svc.cache = cache

	e.request(t, e.employee, 1)
	require.Equal(t, 1, cache.invalidated)

	first, err := e.svc.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, cache.sets)

	second, err := e.svc.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, cache.sets, "second read should be served from cache")

	_, err = e.svc.Verify(ctx, e.admin, VerifyRequest{TransferID: first[0].ID, Approve: boolPtr(true)})
	require.NoError(t, err)
	require.Equal(t, 2, cache.invalidated)

	third, err := e.svc.ListRecent(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, model.TransferApproved, third[0].State)
}

func TestListRecentCacheFailureFallsThrough(t *testing.T) {
	e := newEnv(t)
	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")
	e.svc.cache = cache

	e.request(t, e.employee, 1)
	got, err := e.svc.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Zero(t, cache.sets)
}

func TestListRecentStaleWriteIsNotServed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cache := newFakeCache()
	e.svc.cache = cache

	tr := e.request(t, e.employee, 1)

	// The transfer is verified after the list was read from the database
	// but before it reaches the cache.
	cache.beforeSet = func() {
		_, err := e.svc.Verify(ctx, e.admin, VerifyRequest{TransferID: tr.ID, Approve: boolPtr(true)})
		require.NoError(t, err)
	}
	stale, err := e.svc.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, model.TransferPending, stale[0].State)

	fresh, err := e.svc.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, model.TransferApproved, fresh[0].State)
	require.Equal(t, 2, cache.sets)
}

func TestVerifyRollsBackWhenAuditFails(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewTransferService(mockDB, nil)
	admin := &policy.Actor{UserID: 1, Username: "boss", Role: model.RoleAdmin}

	columns := []string{
		"id", "product_id", "from_location_id", "to_location_id", "quantity", "notes",
		"transferred_at", "transferred_by", "state", "verified", "verified_by", "verified_at",
		"product_name", "product_kind", "from_name", "to_name", "username", "role",
	}
	row := sqlmock.NewRows(columns).AddRow(
		7, 3, 1, 2, 5, "", time.Now().UTC(), 2, "pending", nil, nil, nil,
		"Lit", "device", "Dépôt", "Patient", "karim", "EMPLOYEE",
	)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM stock_transfers t`).WillReturnRows(row)
	mock.ExpectExec(`UPDATE stock_transfers`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO stock_levels`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO user_action_history`).WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	_, err = svc.Verify(context.Background(), admin, VerifyRequest{TransferID: 7, Approve: boolPtr(false)})
	require.ErrorIs(t, err, common.ErrStorage)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyBeginFailureIsStorageError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	svc := NewTransferService(mockDB, nil)
	admin := &policy.Actor{UserID: 1, Role: model.RoleAdmin}
	_, err = svc.Verify(context.Background(), admin, VerifyRequest{TransferID: 1, Approve: boolPtr(true)})
	require.ErrorIs(t, err, common.ErrStorage)
	require.NoError(t, mock.ExpectationsWereMet())
}
