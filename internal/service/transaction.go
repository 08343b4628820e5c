package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avelar/fintrack/internal/domain"
	"github.com/avelar/fintrack/internal/event"
	"github.com/avelar/fintrack/internal/repository"
	"github.com/avelar/fintrack/internal/storage"
	apperrors "github.com/avelar/fintrack/pkg/errors"
	"github.com/avelar/fintrack/pkg/pagination"
)

// maxReceiptSize caps receipt uploads at 10 MiB.
const maxReceiptSize = 10 << 20

// TransactionService implements the business logic for transactions,
// receipts, and dashboard aggregation.
type TransactionService struct {
	transactions repository.TransactionRepository
	categories   repository.CategoryRepository
	statsCache   repository.StatsCache
	files        storage.Storage
	producer     event.Publisher
	logger       *slog.Logger
}

// NewTransactionService creates a new transaction service.
func NewTransactionService(
	transactions repository.TransactionRepository,
	categories repository.CategoryRepository,
	statsCache repository.StatsCache,
	files storage.Storage,
	producer event.Publisher,
	logger *slog.Logger,
) *TransactionService {
	return &TransactionService{
		transactions: transactions,
		categories:   categories,
		statsCache:   statsCache,
		files:        files,
		producer:     producer,
		logger:       logger,
	}
}

// CreateTransactionInput holds the parameters for recording a transaction.
type CreateTransactionInput struct {
	CategoryID string
	Type       string
	Amount     float64
	OccurredOn time.Time
	Notes      string
}

// UpdateTransactionInput holds the parameters for updating a transaction.
type UpdateTransactionInput struct {
	CategoryID *string
	Type       *string
	Amount     *float64
	OccurredOn *time.Time
	Notes      *string
}

// UploadReceiptInput holds the parameters for attaching a receipt file.
type UploadReceiptInput struct {
	FileName    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// Create records a new transaction for the user.
func (s *TransactionService) Create(ctx context.Context, userID string, input CreateTransactionInput) (*domain.Transaction, error) {
	if input.Amount <= 0 {
		return nil, apperrors.InvalidInput("amount must be greater than zero")
	}
	if !domain.IsValidCategoryType(input.Type) {
		return nil, apperrors.InvalidInput("type must be income or expense")
	}
	if input.OccurredOn.IsZero() {
		return nil, apperrors.InvalidInput("date is required")
	}

	category, err := s.categories.GetByID(ctx, input.CategoryID)
	if err != nil {
		return nil, apperrors.InvalidInput("unknown category")
	}
	if category.Type != input.Type {
		return nil, apperrors.InvalidInput(fmt.Sprintf("category %s is a %s category", category.Name, category.Type))
	}

	now := time.Now().UTC()
	tx := &domain.Transaction{
		ID:         uuid.New().String(),
		UserID:     userID,
		CategoryID: input.CategoryID,
		Type:       input.Type,
		Amount:     input.Amount,
		OccurredOn: input.OccurredOn,
		Notes:      input.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.transactions.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	s.invalidateStats(ctx, userID)

	if err := s.producer.PublishTransactionCreated(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish transaction.created event",
			slog.String("transaction_id", tx.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "transaction created",
		slog.String("transaction_id", tx.ID),
		slog.String("user_id", userID),
	)

	return tx, nil
}

// Get retrieves one of the user's transactions.
func (s *TransactionService) Get(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	tx, err := s.transactions.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// List returns a filtered page of the user's transactions plus the total count.
func (s *TransactionService) List(ctx context.Context, userID string, filter domain.TransactionFilter, params pagination.Params) ([]domain.Transaction, int, error) {
	if filter.Type != "" && !domain.IsValidCategoryType(filter.Type) {
		return nil, 0, apperrors.InvalidInput("type must be income or expense")
	}

	transactions, total, err := s.transactions.List(ctx, userID, filter, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	return transactions, total, nil
}

// Update modifies one of the user's transactions.
func (s *TransactionService) Update(ctx context.Context, userID, id string, input UpdateTransactionInput) (*domain.Transaction, error) {
	tx, err := s.transactions.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get transaction for update: %w", err)
	}

	if input.Type != nil {
		if !domain.IsValidCategoryType(*input.Type) {
			return nil, apperrors.InvalidInput("type must be income or expense")
		}
		tx.Type = *input.Type
	}
	if input.CategoryID != nil {
		tx.CategoryID = *input.CategoryID
	}
	if input.Amount != nil {
		if *input.Amount <= 0 {
			return nil, apperrors.InvalidInput("amount must be greater than zero")
		}
		tx.Amount = *input.Amount
	}
	if input.OccurredOn != nil {
		tx.OccurredOn = *input.OccurredOn
	}
	if input.Notes != nil {
		tx.Notes = *input.Notes
	}

	// The category must exist and agree with the (possibly updated) type.
	category, err := s.categories.GetByID(ctx, tx.CategoryID)
	if err != nil {
		return nil, apperrors.InvalidInput("unknown category")
	}
	if category.Type != tx.Type {
		return nil, apperrors.InvalidInput(fmt.Sprintf("category %s is a %s category", category.Name, category.Type))
	}

	if err := s.transactions.Update(ctx, tx); err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}

	s.invalidateStats(ctx, userID)

	s.logger.InfoContext(ctx, "transaction updated",
		slog.String("transaction_id", tx.ID),
		slog.String("user_id", userID),
	)

	return tx, nil
}

// Delete removes one of the user's transactions along with any stored receipt.
func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	tx, err := s.transactions.GetByID(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("get transaction for delete: %w", err)
	}

	if err := s.transactions.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if tx.ReceiptKey != "" {
		if err := s.files.Delete(ctx, tx.ReceiptKey); err != nil {
			s.logger.WarnContext(ctx, "failed to remove receipt file",
				slog.String("transaction_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	s.invalidateStats(ctx, userID)

	if err := s.producer.PublishTransactionDeleted(ctx, userID, id); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish transaction.deleted event",
			slog.String("transaction_id", id),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "transaction deleted",
		slog.String("transaction_id", id),
		slog.String("user_id", userID),
	)

	return nil
}

// UploadReceipt validates and stores a receipt file for the transaction,
// replacing any previous one.
func (s *TransactionService) UploadReceipt(ctx context.Context, userID, id string, input UploadReceiptInput) (*domain.Transaction, error) {
	if input.Size <= 0 {
		return nil, apperrors.InvalidInput("receipt file is empty")
	}
	if input.Size > maxReceiptSize {
		return nil, apperrors.InvalidInput("receipt file exceeds the 10MB limit")
	}
	if !allowedReceiptType(input.ContentType) {
		return nil, apperrors.InvalidInput("receipt must be an image or a PDF")
	}

	tx, err := s.transactions.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get transaction for receipt: %w", err)
	}

	oldKey := tx.ReceiptKey
	key := receiptKey(userID, id, input.FileName)

	result, err := s.files.Upload(ctx, &storage.UploadInput{
		Key:         key,
		ContentType: input.ContentType,
		Size:        input.Size,
		Data:        input.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("store receipt: %w", err)
	}

	if err := s.transactions.SetReceipt(ctx, userID, id, result.Key, result.URL); err != nil {
		return nil, fmt.Errorf("record receipt: %w", err)
	}

	if oldKey != "" && oldKey != result.Key {
		if err := s.files.Delete(ctx, oldKey); err != nil {
			s.logger.WarnContext(ctx, "failed to remove replaced receipt",
				slog.String("transaction_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	tx.ReceiptKey = result.Key
	tx.ReceiptURL = result.URL

	s.logger.InfoContext(ctx, "receipt uploaded",
		slog.String("transaction_id", id),
		slog.String("user_id", userID),
		slog.Int64("size", input.Size),
	)

	return tx, nil
}

// Stats returns the user's income/expense aggregate over an optional date
// range, served from cache when a fresh entry exists.
func (s *TransactionService) Stats(ctx context.Context, userID string, start, end *time.Time) (*domain.DashboardStats, error) {
	if cached, err := s.statsCache.Get(ctx, userID, start, end); err == nil {
		return cached, nil
	}

	stats, err := s.transactions.Stats(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}

	if err := s.statsCache.Set(ctx, userID, start, end, stats); err != nil {
		s.logger.WarnContext(ctx, "failed to cache dashboard stats",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return stats, nil
}

// invalidateStats drops the user's cached aggregates after any write.
func (s *TransactionService) invalidateStats(ctx context.Context, userID string) {
	if err := s.statsCache.InvalidateUser(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate stats cache",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// allowedReceiptType accepts any image format plus PDF.
func allowedReceiptType(contentType string) bool {
	if strings.HasPrefix(contentType, "image/") {
		return true
	}
	return contentType == "application/pdf"
}

// receiptKey builds a per-user storage key that keeps the original extension.
func receiptKey(userID, txID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("receipts/%s/%s%s", userID, txID, ext)
}
