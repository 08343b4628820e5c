package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/avelar/fintrack/internal/auth"
	"github.com/avelar/fintrack/internal/domain"
	"github.com/avelar/fintrack/internal/event"
	"github.com/avelar/fintrack/internal/service"
	"github.com/avelar/fintrack/internal/storage/memory"
	apperrors "github.com/avelar/fintrack/pkg/errors"
	"github.com/avelar/fintrack/pkg/httputil"
	"github.com/avelar/fintrack/pkg/pagination"
)

// ============================================================================
// Mock Repositories
// ============================================================================

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	args := m.Called(ctx, identifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) Update(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *mockUserRepo) SetRefreshToken(ctx context.Context, id, tokenHash string) error {
	args := m.Called(ctx, id, tokenHash)
	return args.Error(0)
}

func (m *mockUserRepo) RotateRefreshToken(ctx context.Context, id, oldHash, newHash string) (bool, error) {
	args := m.Called(ctx, id, oldHash, newHash)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserRepo) ClearRefreshToken(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepo) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, id, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *mockUserRepo) GetByResetToken(ctx context.Context, tokenHash string) (*domain.User, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) ResetPassword(ctx context.Context, id, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockUserRepo) List(ctx context.Context, params pagination.Params) ([]domain.User, int, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.User), args.Int(1), args.Error(2)
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockCategoryRepo struct {
	mock.Mock
}

func (m *mockCategoryRepo) Create(ctx context.Context, category *domain.Category) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

func (m *mockCategoryRepo) GetByID(ctx context.Context, id string) (*domain.Category, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Category), args.Error(1)
}

func (m *mockCategoryRepo) List(ctx context.Context) ([]domain.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Category), args.Error(1)
}

func (m *mockCategoryRepo) ListByType(ctx context.Context, categoryType string) ([]domain.Category, error) {
	args := m.Called(ctx, categoryType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Category), args.Error(1)
}

func (m *mockCategoryRepo) Update(ctx context.Context, category *domain.Category) error {
	args := m.Called(ctx, category)
	return args.Error(0)
}

func (m *mockCategoryRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockTransactionRepo struct {
	mock.Mock
}

func (m *mockTransactionRepo) Create(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *mockTransactionRepo) GetByID(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *mockTransactionRepo) List(ctx context.Context, userID string, filter domain.TransactionFilter, params pagination.Params) ([]domain.Transaction, int, error) {
	args := m.Called(ctx, userID, filter, params)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.Transaction), args.Int(1), args.Error(2)
}

func (m *mockTransactionRepo) Update(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *mockTransactionRepo) SetReceipt(ctx context.Context, userID, id, receiptKey, receiptURL string) error {
	args := m.Called(ctx, userID, id, receiptKey, receiptURL)
	return args.Error(0)
}

func (m *mockTransactionRepo) Delete(ctx context.Context, userID, id string) error {
	args := m.Called(ctx, userID, id)
	return args.Error(0)
}

func (m *mockTransactionRepo) Stats(ctx context.Context, userID string, start, end *time.Time) (*domain.DashboardStats, error) {
	args := m.Called(ctx, userID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DashboardStats), args.Error(1)
}

type mockStatsCache struct {
	mock.Mock
}

func (m *mockStatsCache) Get(ctx context.Context, userID string, start, end *time.Time) (*domain.DashboardStats, error) {
	args := m.Called(ctx, userID, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DashboardStats), args.Error(1)
}

func (m *mockStatsCache) Set(ctx context.Context, userID string, start, end *time.Time, stats *domain.DashboardStats) error {
	args := m.Called(ctx, userID, start, end, stats)
	return args.Error(0)
}

func (m *mockStatsCache) InvalidateUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// ============================================================================
// Test Helpers
// ============================================================================

const (
	testUserID     = "550e8400-e29b-41d4-a716-446655440001"
	testAdminID    = "550e8400-e29b-41d4-a716-446655440002"
	testCategoryID = "550e8400-e29b-41d4-a716-446655440003"
	testTxID       = "550e8400-e29b-41d4-a716-446655440004"
)

func handlerTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// handlerTestPublisher satisfies event.Publisher without a broker.
type handlerTestPublisher struct{}

func (handlerTestPublisher) PublishUserRegistered(context.Context, *domain.User) error { return nil }
func (handlerTestPublisher) PublishUserUpdated(context.Context, *domain.User) error    { return nil }
func (handlerTestPublisher) PublishUserPasswordReset(context.Context, string, string) error {
	return nil
}
func (handlerTestPublisher) PublishTransactionCreated(context.Context, *domain.Transaction) error {
	return nil
}
func (handlerTestPublisher) PublishTransactionDeleted(context.Context, string, string) error {
	return nil
}

func handlerTestEventPublisher() event.Publisher {
	return handlerTestPublisher{}
}

func handlerTestTokenManager() *auth.TokenManager {
	return auth.NewTokenManager(
		"test-access-secret-for-testing-only",
		"test-refresh-secret-for-testing-only",
		time.Hour,
		7*24*time.Hour,
		time.Hour,
	)
}

func handlerTestAuthService(users *mockUserRepo) *service.AuthService {
	return service.NewAuthService(users, handlerTestTokenManager(), handlerTestEventPublisher(), handlerTestLogger(), true)
}

func handlerTestUserService(users *mockUserRepo) *service.UserService {
	return service.NewUserService(users, handlerTestEventPublisher(), handlerTestLogger())
}

func handlerTestCategoryService(categories *mockCategoryRepo) *service.CategoryService {
	return service.NewCategoryService(categories, handlerTestLogger())
}

func handlerTestTransactionService(transactions *mockTransactionRepo, categories *mockCategoryRepo, stats *mockStatsCache) *service.TransactionService {
	files := memory.New("http://localhost:8080")
	return service.NewTransactionService(transactions, categories, stats, files, handlerTestEventPublisher(), handlerTestLogger())
}

func sampleActiveUser() *domain.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte("SecurePass123"), bcrypt.MinCost)
	now := time.Now().UTC()
	return &domain.User{
		ID:           testUserID,
		FirstName:    "John",
		LastName:     "Doe",
		Email:        "john@example.com",
		PhoneNumber:  "+15550001111",
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func sampleAdminUser() *domain.User {
	admin := sampleActiveUser()
	admin.ID = testAdminID
	admin.Email = "admin@example.com"
	admin.Role = domain.RoleAdmin
	return admin
}

func domainNotFound() error {
	return apperrors.NotFound("resource", testTxID)
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}
