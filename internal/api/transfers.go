package api

import (
	"net/http"
	"strconv"

	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/service"
	"github.com/medequip/depot/internal/store"
)

// TransfersHandler handles transfer endpoints.
type TransfersHandler struct {
	Transfers *service.TransferService
}

type verifyRequest struct {
	Approve *bool `json:"approve"`
}

// Create handles POST /api/transfers.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.RequestInput
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	transfer, err := h.Transfers.Request(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		writeServiceError(w, "request transfer", err)
		return
	}
	jsonResponse(w, http.StatusCreated, transfer)
}

// Verify handles POST /api/transfers/{id}/verify.
func (h *TransfersHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transfer")
	if !ok {
		return
	}

	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	transfer, err := h.Transfers.Verify(r.Context(), actorFrom(r.Context()), service.VerifyRequest{
		TransferID: id,
		Approve:    req.Approve,
	})
	if err != nil {
		writeServiceError(w, "verify transfer", err)
		return
	}
	jsonResponse(w, http.StatusOK, transfer)
}

// Recent handles GET /api/transfers/recent.
func (h *TransfersHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	transfers, err := h.Transfers.ListRecent(r.Context(), limit)
	if err != nil {
		writeServiceError(w, "list recent transfers", err)
		return
	}
	jsonResponse(w, http.StatusOK, transfers)
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "transfer")
	if !ok {
		return
	}

	transfer, err := h.Transfers.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, "get transfer", err)
		return
	}
	jsonResponse(w, http.StatusOK, transfer)
}

// List handles GET /api/transfers.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	productID, ok := queryInt64(w, r, "product_id")
	if !ok {
		return
	}
	locationID, ok := queryInt64(w, r, "location_id")
	if !ok {
		return
	}

	transfers, err := h.Transfers.List(r.Context(), store.TransferFilter{
		ProductID:  productID,
		LocationID: locationID,
		State:      model.TransferState(r.URL.Query().Get("state")),
	})
	if err != nil {
		writeServiceError(w, "list transfers", err)
		return
	}
	jsonResponse(w, http.StatusOK, transfers)
}
