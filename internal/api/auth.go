package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/medequip/depot/internal/auth"
	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	DB     *sql.DB
	Issuer *auth.TokenIssuer
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := store.GetUserByUsername(r.Context(), h.DB, req.Username)
	if err != nil {
		writeServiceError(w, "login", err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		slog.Warn("login failed", "username", req.Username, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, _, err := h.Issuer.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		writeServiceError(w, "issuing token", err)
		return
	}

	if _, err := store.RecordAction(r.Context(), h.DB, store.ActionInput{
		UserID:      user.ID,
		Action:      model.ActionLogin,
		RelatedType: model.EntityUser,
		RelatedID:   store.RelatedID(user.ID),
		Details:     map[string]any{"remote": r.RemoteAddr},
	}); err != nil {
		slog.Warn("failed to record login", "user", user.Username, "error", err)
	}

	slog.Info("user logged in", "user", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// Logout handles POST /api/auth/logout. The token stays revoked until it
// would have expired anyway.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, claims.ExpiresAt.Time); err != nil {
		writeServiceError(w, "logout", err)
		return
	}
	if _, err := store.PruneRevokedTokens(r.Context(), h.DB, time.Now()); err != nil {
		slog.Warn("pruning revoked tokens failed", "error", err)
	}

	slog.Info("user logged out", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeServiceError(w, "get current user", err)
		return
	}
	if user == nil || user.DeletedAt != nil {
		jsonError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, "current and new password required")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeServiceError(w, "change password", err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		jsonError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, claims.UserID, hash); err != nil {
		writeServiceError(w, "change password", err)
		return
	}

	slog.Info("user changed own password", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}
