package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/medequip/depot/internal/auth"
	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/store"
)

// UsersHandler handles user management endpoints (admin only).
type UsersHandler struct {
	DB *sql.DB
}

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Role string `json:"role"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// List handles GET /api/users, optionally filtered with ?role=.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	var roles []string
	if role := r.URL.Query().Get("role"); role != "" {
		if !model.ValidRole(role) {
			jsonError(w, http.StatusBadRequest, "invalid role")
			return
		}
		roles = append(roles, role)
	}
	users, err := store.ListUsers(r.Context(), h.DB, roles...)
	if err != nil {
		writeServiceError(w, "list users", err)
		return
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" || req.Role == "" {
		jsonError(w, http.StatusBadRequest, "username, password, and role required")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "role must be ADMIN, EMPLOYEE or DOCTOR")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := store.GetUserByUsername(r.Context(), h.DB, req.Username)
	if err != nil {
		writeServiceError(w, "create user", err)
		return
	}
	if existing != nil {
		jsonError(w, http.StatusConflict, "username already exists")
		return
	}

	var user *model.User
	err = audited(r.Context(), h.DB, func(ctx context.Context, tx dbx.DBTX) (store.ActionInput, error) {
		var err error
		if user, err = store.CreateUser(ctx, tx, req.Username, hash, req.Role); err != nil {
			return store.ActionInput{}, err
		}
		return actionEntry(r, model.ActionCreate, model.EntityUser, user.ID, map[string]any{"username": user.Username, "role": user.Role}), nil
	})
	if err != nil {
		writeServiceError(w, "create user", err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("user created", "user", claims.Username, "new_user", req.Username, "role", req.Role)
	jsonResponse(w, http.StatusCreated, user)
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		writeServiceError(w, "get user", err)
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	jsonResponse(w, http.StatusOK, user)
}

// Update handles PUT /api/users/{id}. Only the role can change here.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "role must be ADMIN, EMPLOYEE or DOCTOR")
		return
	}

	var user *model.User
	err := audited(r.Context(), h.DB, func(ctx context.Context, tx dbx.DBTX) (store.ActionInput, error) {
		if err := store.UpdateUserRole(ctx, tx, id, req.Role); err != nil {
			return store.ActionInput{}, err
		}
		var err error
		if user, err = store.GetUser(ctx, tx, id); err != nil {
			return store.ActionInput{}, err
		}
		return actionEntry(r, model.ActionUpdate, model.EntityUser, id, map[string]any{"role": req.Role}), nil
	})
	if err != nil {
		writeServiceError(w, "update user", err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("user role updated", "user", claims.Username, "target", user.Username, "role", req.Role)
	jsonResponse(w, http.StatusOK, user)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = audited(r.Context(), h.DB, func(ctx context.Context, tx dbx.DBTX) (store.ActionInput, error) {
		if err := store.UpdateUserPassword(ctx, tx, id, hash); err != nil {
			return store.ActionInput{}, err
		}
		return actionEntry(r, model.ActionUpdate, model.EntityUser, id, map[string]any{"password": "reset"}), nil
	})
	if err != nil {
		writeServiceError(w, "reset password", err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("user password reset", "user", claims.Username, "target_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}. Admins cannot delete themselves.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "user")
	if !ok {
		return
	}
	claims := GetClaims(r.Context())
	if claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	var target *model.User
	err := audited(r.Context(), h.DB, func(ctx context.Context, tx dbx.DBTX) (store.ActionInput, error) {
		if err := store.DeleteUser(ctx, tx, id); err != nil {
			return store.ActionInput{}, err
		}
		// Soft-deleted rows stay readable by id.
		var err error
		if target, err = store.GetUser(ctx, tx, id); err != nil {
			return store.ActionInput{}, err
		}
		return actionEntry(r, model.ActionDelete, model.EntityUser, id, map[string]any{"username": target.Username}), nil
	})
	if err != nil {
		writeServiceError(w, "delete user", err)
		return
	}

	slog.Info("user deleted", "user", claims.Username, "target", target.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
