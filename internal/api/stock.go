package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/store"
)

// StockHandler handles stock level endpoints.
type StockHandler struct {
	DB *sql.DB
}

type addStockRequest struct {
	ProductID  int64 `json:"product_id"`
	LocationID int64 `json:"location_id"`
	Quantity   int   `json:"quantity"`
}

type adjustStockRequest struct {
	ProductID  int64  `json:"product_id"`
	LocationID int64  `json:"location_id"`
	Delta      int    `json:"delta"`
	Notes      string `json:"notes"`
}

// List handles GET /api/stock.
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	stock, err := store.ListStock(r.Context(), h.DB)
	if err != nil {
		writeServiceError(w, "list stock", err)
		return
	}
	if stock == nil {
		stock = []model.Stock{}
	}
	jsonResponse(w, http.StatusOK, stock)
}

// Add handles POST /api/stock.
func (h *StockHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req addStockRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID <= 0 || req.LocationID <= 0 || req.Quantity <= 0 {
		jsonError(w, http.StatusBadRequest, "product_id, location_id, and quantity are required and must be positive")
		return
	}

	product, err := store.GetProduct(r.Context(), h.DB, req.ProductID)
	if err != nil {
		writeServiceError(w, "add stock", err)
		return
	}
	if product == nil || product.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "product not found")
		return
	}

	claims := GetClaims(r.Context())
	if err := store.AddStock(r.Context(), h.DB, req.ProductID, req.LocationID, req.Quantity, claims.UserID); err != nil {
		writeServiceError(w, "add stock", err)
		return
	}

	slog.Info("stock added", "user", claims.Username, "product", product.Name, "location_id", req.LocationID, "quantity", req.Quantity)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "stock added"})
}

// Adjust handles POST /api/stock/adjust.
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID <= 0 || req.LocationID <= 0 || req.Delta == 0 {
		jsonError(w, http.StatusBadRequest, "product_id, location_id, and non-zero delta required")
		return
	}

	claims := GetClaims(r.Context())
	if err := store.AdjustStock(r.Context(), h.DB, req.ProductID, req.LocationID, req.Delta, req.Notes, claims.UserID); err != nil {
		writeServiceError(w, "adjust stock", err)
		return
	}

	slog.Info("stock adjusted", "user", claims.Username, "product_id", req.ProductID, "location_id", req.LocationID, "delta", req.Delta)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "stock adjusted"})
}
