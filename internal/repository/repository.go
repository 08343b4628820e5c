package repository

import (
	"context"
	"time"

	"github.com/avelar/fintrack/internal/domain"
	"github.com/avelar/fintrack/pkg/pagination"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetByIdentifier retrieves a user whose email or phone number matches
	// the given identifier.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)

	// Update modifies an existing user's profile fields.
	Update(ctx context.Context, user *domain.User) error

	// UpdatePassword replaces the user's password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// SetRefreshToken stores the hash of the user's single live refresh token,
	// replacing whatever was there.
	SetRefreshToken(ctx context.Context, id, tokenHash string) error

	// RotateRefreshToken swaps oldHash for newHash only if oldHash is still
	// the stored value. It returns false when the stored value no longer
	// matches, which means the caller lost a concurrent rotation race.
	RotateRefreshToken(ctx context.Context, id, oldHash, newHash string) (bool, error)

	// ClearRefreshToken revokes the user's refresh token.
	ClearRefreshToken(ctx context.Context, id string) error

	// SetResetToken stores the password-reset token hash and its expiry,
	// overwriting any previous reset artifact.
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error

	// GetByResetToken retrieves the user holding an unexpired reset token
	// with the given hash.
	GetByResetToken(ctx context.Context, tokenHash string) (*domain.User, error)

	// ResetPassword atomically sets the new password hash, clears the reset
	// artifact, and revokes the refresh token.
	ResetPassword(ctx context.Context, id, passwordHash string) error

	// UpdateLastLogin records a successful authentication.
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	// List returns a page of users plus the total count.
	List(ctx context.Context, params pagination.Params) ([]domain.User, int, error)

	// Delete removes a user from the store by their identifier.
	Delete(ctx context.Context, id string) error
}

// CategoryRepository defines the interface for category persistence operations.
type CategoryRepository interface {
	Create(ctx context.Context, category *domain.Category) error
	GetByID(ctx context.Context, id string) (*domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
	ListByType(ctx context.Context, categoryType string) ([]domain.Category, error)
	Update(ctx context.Context, category *domain.Category) error
	Delete(ctx context.Context, id string) error
}

// TransactionRepository defines the interface for transaction persistence operations.
type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error

	// GetByID retrieves a transaction owned by the given user.
	GetByID(ctx context.Context, userID, id string) (*domain.Transaction, error)

	// List returns a filtered page of the user's transactions plus the total count.
	List(ctx context.Context, userID string, filter domain.TransactionFilter, params pagination.Params) ([]domain.Transaction, int, error)

	Update(ctx context.Context, tx *domain.Transaction) error

	// SetReceipt records the stored receipt key and public URL on a transaction.
	SetReceipt(ctx context.Context, userID, id, receiptKey, receiptURL string) error

	// Delete removes a transaction owned by the given user.
	Delete(ctx context.Context, userID, id string) error

	// Stats aggregates income and expense totals for the user over an
	// optional date range.
	Stats(ctx context.Context, userID string, start, end *time.Time) (*domain.DashboardStats, error)
}

// StatsCache caches dashboard aggregates keyed by user and date range.
type StatsCache interface {
	Get(ctx context.Context, userID string, start, end *time.Time) (*domain.DashboardStats, error)
	Set(ctx context.Context, userID string, start, end *time.Time, stats *domain.DashboardStats) error

	// InvalidateUser drops every cached range for the user.
	InvalidateUser(ctx context.Context, userID string) error
}
