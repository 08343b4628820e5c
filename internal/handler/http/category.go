package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avelar/fintrack/internal/service"
	"github.com/avelar/fintrack/pkg/httputil"
	"github.com/avelar/fintrack/pkg/validator"
)

// CategoryHandler exposes the category endpoints. Reads are open to any
// authenticated user; writes are admin only.
type CategoryHandler struct {
	categories *service.CategoryService
	logger     *slog.Logger
}

// NewCategoryHandler creates a CategoryHandler.
func NewCategoryHandler(categories *service.CategoryService, logger *slog.Logger) *CategoryHandler {
	return &CategoryHandler{
		categories: categories,
		logger:     logger,
	}
}

type createCategoryRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
	Type string `json:"type" validate:"required,oneof=income expense"`
}

type updateCategoryRequest struct {
	Name *string `json:"name" validate:"omitempty,min=1,max=100"`
	Type *string `json:"type" validate:"omitempty,oneof=income expense"`
}

// List handles GET /api/v1/categories. An optional type query parameter
// narrows the listing to income or expense categories.
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	categories, err := h.categories.List(r.Context(), r.URL.Query().Get("type"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, "categories retrieved successfully", categories)
}

// Get handles GET /api/v1/categories/{id}.
func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	category, err := h.categories.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, "category retrieved successfully", category)
}

// Create handles POST /api/v1/categories (admin only).
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req createCategoryRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	category, err := h.categories.Create(r.Context(), service.CreateCategoryInput{
		Name: req.Name,
		Type: req.Type,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusCreated, "category created successfully", category)
}

// Update handles PUT /api/v1/categories/{id} (admin only).
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req updateCategoryRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	category, err := h.categories.Update(r.Context(), chi.URLParam(r, "id"), service.UpdateCategoryInput{
		Name: req.Name,
		Type: req.Type,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, "category updated successfully", category)
}

// Delete handles DELETE /api/v1/categories/{id} (admin only).
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.categories.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, "category deleted successfully", nil)
}
