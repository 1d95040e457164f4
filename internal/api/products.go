package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/medequip/depot/internal/common"
	"github.com/medequip/depot/internal/dbx"
	"github.com/medequip/depot/internal/imaging"
	"github.com/medequip/depot/internal/model"
	"github.com/medequip/depot/internal/store"
)

// ProductsHandler handles product and device endpoints.
type ProductsHandler struct {
	DB *sql.DB
}

type productRequest struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Reference string `json:"reference"`
	Brand     string `json:"brand"`
	Model     string `json:"model"`
	Status    string `json:"status"`
}

func (req *productRequest) input() (store.ProductInput, error) {
	if req.Name == "" {
		return store.ProductInput{}, errors.New("name required")
	}
	if req.Kind == "" {
		req.Kind = model.ProductKindProduct
	}
	if req.Status == "" {
		req.Status = model.ProductStatusActive
	}
	if !model.ValidProductKind(req.Kind) {
		return store.ProductInput{}, errors.New("kind must be 'product' or 'device'")
	}
	if !model.ValidProductStatus(req.Status) {
		return store.ProductInput{}, errors.New("status must be 'active', 'maintenance' or 'retired'")
	}
	return store.ProductInput{
		Name:      req.Name,
		Kind:      req.Kind,
		Reference: req.Reference,
		Brand:     req.Brand,
		Model:     req.Model,
		Status:    req.Status,
	}, nil
}

// List handles GET /api/products.
func (h *ProductsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := store.ListProducts(r.Context(), h.DB, q.Get("kind"), q.Get("status"))
	if err != nil {
		writeServiceError(w, "list products", err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	jsonResponse(w, http.StatusOK, products)
}

// Create handles POST /api/products.
func (h *ProductsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	var product *model.Product
	err = audited(r.Context(), h.DB, func(ctx context.Context, tx dbx.DBTX) (store.ActionInput, error) {
		var err error
		if product, err = store.CreateProduct(ctx, tx, in); err != nil {
			return store.ActionInput{}, err
		}
		return actionEntry(r, model.ActionCreate, model.EntityProduct, product.ID, map[string]any{"name": product.Name, "kind": product.Kind}), nil
	})
	if err != nil {
		writeServiceError(w, "create product", err)
		return
	}

	jsonResponse(w, http.StatusCreated, product)
}

// Get handles GET /api/products/{id}. The response includes where the
// product is held.
func (h *ProductsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product")
	if !ok {
		return
	}

	product, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		writeServiceError(w, "get product", err)
		return
	}
	if product == nil {
		jsonError(w, http.StatusNotFound, "product not found")
		return
	}

	dist, err := store.GetProductDistribution(r.Context(), h.DB, id)
	if err != nil {
		writeServiceError(w, "get product distribution", err)
		return
	}
	if dist == nil {
		dist = []model.Stock{}
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"product":      product,
		"distribution": dist,
	})
}

// Update handles PUT /api/products/{id}.
func (h *ProductsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product")
	if !ok {
		return
	}

	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in, err := req.input()
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	var product *model.Product
	err = audited(r.Context(), h.DB, func(ctx context.Context, tx dbx.DBTX) (store.ActionInput, error) {
		if err := store.UpdateProduct(ctx, tx, id, in); err != nil {
			return store.ActionInput{}, err
		}
		var err error
		if product, err = store.GetProduct(ctx, tx, id); err != nil {
			return store.ActionInput{}, err
		}
		if product == nil || product.DeletedAt != nil {
			return store.ActionInput{}, fmt.Errorf("product %d: %w", id, common.ErrNotFound)
		}
		return actionEntry(r, model.ActionUpdate, model.EntityProduct, id, map[string]any{"status": in.Status}), nil
	})
	if err != nil {
		writeServiceError(w, "update product", err)
		return
	}

	jsonResponse(w, http.StatusOK, product)
}

// Delete handles DELETE /api/products/{id}.
func (h *ProductsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product")
	if !ok {
		return
	}

	err := audited(r.Context(), h.DB, func(ctx context.Context, tx dbx.DBTX) (store.ActionInput, error) {
		if err := store.DeleteProduct(ctx, tx, id); err != nil {
			return store.ActionInput{}, err
		}
		return actionEntry(r, model.ActionDelete, model.EntityProduct, id, nil), nil
	})
	if err != nil {
		writeServiceError(w, "delete product", err)
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("product deleted", "user", claims.Username, "product_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

// UploadPhoto handles PUT /api/products/{id}/photo. The body is a multipart
// form with a "photo" file field.
func (h *ProductsHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxPhotoSize+(1<<20))
	if err := r.ParseMultipartForm(imaging.MaxPhotoSize); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "photo file required")
		return
	}
	defer file.Close()

	photo, err := imaging.NormalizePhoto(file)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := store.GetProduct(r.Context(), h.DB, id)
	if err != nil {
		writeServiceError(w, "upload photo", err)
		return
	}
	if product == nil || product.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "product not found")
		return
	}

	if err := store.SetProductPhoto(r.Context(), h.DB, id, photo.Data); err != nil {
		writeServiceError(w, "upload photo", err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]int{"width": photo.Width, "height": photo.Height})
}

// GetPhoto handles GET /api/products/{id}/photo.
func (h *ProductsHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product")
	if !ok {
		return
	}

	data, err := store.GetProductPhoto(r.Context(), h.DB, id)
	if err != nil {
		writeServiceError(w, "get photo", err)
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no photo")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
