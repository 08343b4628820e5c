package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avelar/fintrack/internal/domain"
	"github.com/avelar/fintrack/internal/service"
	apperrors "github.com/avelar/fintrack/pkg/errors"
	"github.com/avelar/fintrack/pkg/httputil"
	"github.com/avelar/fintrack/pkg/pagination"
	"github.com/avelar/fintrack/pkg/validator"
)

const (
	dateLayout = "2006-01-02"

	// maxReceiptBody leaves headroom over the 10MB file limit for the
	// multipart framing. The service enforces the file size itself.
	maxReceiptBody = 11 << 20
)

// TransactionHandler exposes the transaction and dashboard endpoints. Every
// operation is scoped to the authenticated user.
type TransactionHandler struct {
	transactions *service.TransactionService
	logger       *slog.Logger
}

// NewTransactionHandler creates a TransactionHandler.
func NewTransactionHandler(transactions *service.TransactionService, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		transactions: transactions,
		logger:       logger,
	}
}

type createTransactionRequest struct {
	CategoryID string  `json:"category_id" validate:"required,uuid4"`
	Type       string  `json:"type" validate:"required,oneof=income expense"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	OccurredOn string  `json:"occurred_on" validate:"required,datetime=2006-01-02"`
	Notes      string  `json:"notes" validate:"omitempty,max=500"`
}

type updateTransactionRequest struct {
	CategoryID *string  `json:"category_id" validate:"omitempty,uuid4"`
	Type       *string  `json:"type" validate:"omitempty,oneof=income expense"`
	Amount     *float64 `json:"amount" validate:"omitempty,gt=0"`
	OccurredOn *string  `json:"occurred_on" validate:"omitempty,datetime=2006-01-02"`
	Notes      *string  `json:"notes" validate:"omitempty,max=500"`
}

// Create handles POST /api/v1/transactions.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req createTransactionRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	occurredOn, err := time.Parse(dateLayout, req.OccurredOn)
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("occurred_on must be in YYYY-MM-DD format"), h.logger)
		return
	}

	tx, err := h.transactions.Create(r.Context(), user.ID, service.CreateTransactionInput{
		CategoryID: req.CategoryID,
		Type:       req.Type,
		Amount:     req.Amount,
		OccurredOn: occurredOn,
		Notes:      req.Notes,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusCreated, "transaction created successfully", tx)
}

// List handles GET /api/v1/transactions with filter, sort, and pagination
// query parameters.
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	params := pagination.FromRequest(r)

	transactions, total, err := h.transactions.List(r.Context(), user.ID, filter, params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WritePaginated(w, r, "transactions retrieved successfully", transactions, pagination.NewPage(total, params))
}

// Get handles GET /api/v1/transactions/{id}.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	tx, err := h.transactions.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, "transaction retrieved successfully", tx)
}

// Update handles PUT /api/v1/transactions/{id}.
func (h *TransactionHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req updateTransactionRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	input := service.UpdateTransactionInput{
		CategoryID: req.CategoryID,
		Type:       req.Type,
		Amount:     req.Amount,
		Notes:      req.Notes,
	}
	if req.OccurredOn != nil {
		occurredOn, err := time.Parse(dateLayout, *req.OccurredOn)
		if err != nil {
			httputil.WriteError(w, r, apperrors.InvalidInput("occurred_on must be in YYYY-MM-DD format"), h.logger)
			return
		}
		input.OccurredOn = &occurredOn
	}

	tx, err := h.transactions.Update(r.Context(), user.ID, chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, "transaction updated successfully", tx)
}

// Delete handles DELETE /api/v1/transactions/{id}.
func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	if err := h.transactions.Delete(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, "transaction deleted successfully", nil)
}

// UploadReceipt handles POST /api/v1/transactions/{id}/receipt. The file is
// sent as a multipart form under the "receipt" field.
func (h *TransactionHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBody)
	if err := r.ParseMultipartForm(maxReceiptBody); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid multipart form"), h.logger)
		return
	}

	file, header, err := r.FormFile("receipt")
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("receipt file is required"), h.logger)
		return
	}
	defer file.Close()

	tx, err := h.transactions.UploadReceipt(r.Context(), user.ID, chi.URLParam(r, "id"), service.UploadReceiptInput{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        file,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, "receipt uploaded successfully", tx)
}

// Stats handles GET /api/v1/dashboard/stats with optional start_date and
// end_date query parameters.
func (h *TransactionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	start, err := dateFromQuery(r, "start_date")
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	end, err := dateFromQuery(r, "end_date")
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	stats, err := h.transactions.Stats(r.Context(), user.ID, start, end)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, r, http.StatusOK, "dashboard stats retrieved successfully", stats)
}

func filterFromQuery(r *http.Request) (domain.TransactionFilter, error) {
	q := r.URL.Query()

	filter := domain.TransactionFilter{
		Type:       q.Get("type"),
		CategoryID: q.Get("category_id"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sort_by"),
		SortOrder:  q.Get("sort_order"),
	}

	start, err := dateFromQuery(r, "start_date")
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	end, err := dateFromQuery(r, "end_date")
	if err != nil {
		return domain.TransactionFilter{}, err
	}
	filter.StartDate = start
	filter.EndDate = end

	return filter, nil
}

func dateFromQuery(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}

	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, apperrors.InvalidInput(name + " must be in YYYY-MM-DD format")
	}
	return &parsed, nil
}
