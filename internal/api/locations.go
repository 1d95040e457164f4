package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/store"
)

// LocationsHandler handles stock location endpoints.
type LocationsHandler struct {
	DB *sql.DB
}

type locationRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// List handles GET /api/locations.
func (h *LocationsHandler) List(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")
	if kind != "" && !model.ValidLocationKind(kind) {
		jsonError(w, http.StatusBadRequest, "invalid location kind")
		return
	}

	locations, err := store.ListLocations(r.Context(), h.DB, kind)
	if err != nil {
		writeServiceError(w, "list locations", err)
		return
	}
	if locations == nil {
		locations = []model.Location{}
	}
	jsonResponse(w, http.StatusOK, locations)
}

// Create handles POST /api/locations.
func (h *LocationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || !model.ValidLocationKind(req.Kind) {
		jsonError(w, http.StatusBadRequest, "name and kind (warehouse, repair, patient, vehicle) required")
		return
	}

	var loc *model.Location
	err := audited(r.Context(), h.DB, func(ctx context.Context, tx dbx.DBTX) (store.ActionInput, error) {
		var err error
		if loc, err = store.CreateLocation(ctx, tx, req.Name, req.Kind); err != nil {
			return store.ActionInput{}, err
		}
		return actionEntry(r, model.ActionCreate, model.EntityLocation, loc.ID, map[string]any{"name": loc.Name, "kind": loc.Kind}), nil
	})
	if err != nil {
		writeServiceError(w, "create location", err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("location created", "user", claims.Username, "location", loc.Name, "kind", loc.Kind)
	jsonResponse(w, http.StatusCreated, loc)
}

// Get handles GET /api/locations/{id}. The response includes the stock
// held there.
func (h *LocationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "location")
	if !ok {
		return
	}

	loc, err := store.GetLocation(r.Context(), h.DB, id)
	if err != nil {
		writeServiceError(w, "get location", err)
		return
	}
	if loc == nil {
		jsonError(w, http.StatusNotFound, "location not found")
		return
	}

	stock, err := store.GetLocationStock(r.Context(), h.DB, id)
	if err != nil {
		writeServiceError(w, "get location stock", err)
		return
	}
	if stock == nil {
		stock = []model.Stock{}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"location": loc,
		"stock":    stock,
	})
}

// Update handles PUT /api/locations/{id}.
func (h *LocationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "location")
	if !ok {
		return
	}

	var req locationRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	var loc *model.Location
	err := audited(r.Context(), h.DB, func(ctx context.Context, tx dbx.DBTX) (store.ActionInput, error) {
		if err := store.RenameLocation(ctx, tx, id, req.Name); err != nil {
			return store.ActionInput{}, err
		}
		var err error
		if loc, err = store.GetLocation(ctx, tx, id); err != nil {
			return store.ActionInput{}, err
		}
		if loc == nil || loc.DeletedAt != nil {
			return store.ActionInput{}, fmt.Errorf("location %d: %w", id, common.ErrNotFound)
		}
		return actionEntry(r, model.ActionUpdate, model.EntityLocation, id, map[string]any{"name": req.Name}), nil
	})
	if err != nil {
		writeServiceError(w, "rename location", err)
		return
	}
	jsonResponse(w, http.StatusOK, loc)
}

// Delete handles DELETE /api/locations/{id}.
func (h *LocationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "location")
	if !ok {
		return
	}

	err := audited(r.Context(), h.DB, func(ctx context.Context, tx dbx.DBTX) (store.ActionInput, error) {
		if err := store.DeleteLocation(ctx, tx, id); err != nil {
			return store.ActionInput{}, err
		}
		return actionEntry(r, model.ActionDelete, model.EntityLocation, id, nil), nil
	})
	if err != nil {
		writeServiceError(w, "delete location", err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("location deleted", "user", claims.Username, "location_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "location deleted"})
}
