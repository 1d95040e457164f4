package api

import (
	"database/sql"
	"net/http"

	"github.com/medequip/depot/internal/auth"
	"github.com/medequip/depot/internal/policy"
	"github.com/medequip/depot/internal/service"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, issuer *auth.TokenIssuer, transfers *service.TransferService) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, Issuer: issuer}
	usersHandler := &UsersHandler{DB: db}
	locationsHandler := &LocationsHandler{DB: db}
	productsHandler := &ProductsHandler{DB: db}
	stockHandler := &StockHandler{DB: db}
	transfersHandler := &TransfersHandler{Transfers: transfers}
	notificationsHandler := &NotificationsHandler{DB: db}
	historyHandler := &HistoryHandler{DB: db}

	authMW := AuthMiddleware(issuer, db)
	authed := func(h http.HandlerFunc) http.Handler {
		return authMW(h)
	}
	with := func(c policy.Capability, h http.HandlerFunc) http.Handler {
		return authMW(RequireCapability(c)(h))
	}

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Session.
	mux.Handle("GET /api/auth/me", authed(authHandler.Me))
	mux.Handle("PUT /api/auth/password", authed(authHandler.ChangePassword))
	mux.Handle("POST /api/auth/logout", authed(authHandler.Logout))

	// Users (admin only).
	mux.Handle("GET /api/users", with(policy.CapManageUsers, usersHandler.List))
	mux.Handle("POST /api/users", with(policy.CapManageUsers, usersHandler.Create))
	mux.Handle("GET /api/users/{id}", with(policy.CapManageUsers, usersHandler.Get))
	mux.Handle("PUT /api/users/{id}", with(policy.CapManageUsers, usersHandler.Update))
	mux.Handle("PUT /api/users/{id}/password", with(policy.CapManageUsers, usersHandler.ResetPassword))
	mux.Handle("DELETE /api/users/{id}", with(policy.CapManageUsers, usersHandler.Delete))

	// Locations: read (all roles), write (employee+).
	mux.Handle("GET /api/locations", authed(locationsHandler.List))
	mux.Handle("POST /api/locations", with(policy.CapManageCatalog, locationsHandler.Create))
	mux.Handle("GET /api/locations/{id}", authed(locationsHandler.Get))
	mux.Handle("PUT /api/locations/{id}", with(policy.CapManageCatalog, locationsHandler.Update))
	mux.Handle("DELETE /api/locations/{id}", with(policy.CapManageCatalog, locationsHandler.Delete))

	// Products: read (all roles), write (employee+).
	mux.Handle("GET /api/products", authed(productsHandler.List))
	mux.Handle("POST /api/products", with(policy.CapManageCatalog, productsHandler.Create))
	mux.Handle("GET /api/products/{id}", authed(productsHandler.Get))
	mux.Handle("PUT /api/products/{id}", with(policy.CapManageCatalog, productsHandler.Update))
	mux.Handle("DELETE /api/products/{id}", with(policy.CapManageCatalog, productsHandler.Delete))
	mux.Handle("PUT /api/products/{id}/photo", with(policy.CapManageCatalog, productsHandler.UploadPhoto))
	mux.Handle("GET /api/products/{id}/photo", authed(productsHandler.GetPhoto))

	// Stock: read (all roles), write (employee+).
	mux.Handle("GET /api/stock", authed(stockHandler.List))
	mux.Handle("POST /api/stock", with(policy.CapManageStock, stockHandler.Add))
	mux.Handle("POST /api/stock/adjust", with(policy.CapManageStock, stockHandler.Adjust))

	// Transfers. The service checks capabilities again on its own.
	mux.Handle("POST /api/transfers", with(policy.CapRequestTransfer, transfersHandler.Create))
	mux.Handle("GET /api/transfers", with(policy.CapViewTransfers, transfersHandler.List))
	mux.Handle("GET /api/transfers/recent", with(policy.CapViewTransfers, transfersHandler.Recent))
	mux.Handle("GET /api/transfers/{id}", with(policy.CapViewTransfers, transfersHandler.Get))
	mux.Handle("POST /api/transfers/{id}/verify", with(policy.CapVerifyTransfers, transfersHandler.Verify))

	// Notifications: the caller's own feed.
	mux.Handle("GET /api/notifications", authed(notificationsHandler.List))
	mux.Handle("POST /api/notifications/read-all", authed(notificationsHandler.MarkAllRead))
	mux.Handle("POST /api/notifications/{id}/read", authed(notificationsHandler.MarkRead))

	// History (admin only).
	mux.Handle("GET /api/history", with(policy.CapViewHistory, historyHandler.List))

	return mux
}
