package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/avelar/fintrack/internal/auth"
	"github.com/avelar/fintrack/internal/domain"
	"github.com/avelar/fintrack/internal/event"
	"github.com/avelar/fintrack/internal/repository"
	apperrors "github.com/avelar/fintrack/pkg/errors"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// AuthService implements the business logic for authentication and session
// lifecycle operations.
type AuthService struct {
	users    repository.UserRepository
	tokens   *auth.TokenManager
	producer event.Publisher
	logger   *slog.Logger

	// echoResetToken gates whether ForgotPassword returns the plaintext reset
	// artifact to the caller. Enabled only in development configurations.
	echoResetToken bool
}

// NewAuthService creates a new authentication service.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenManager,
	producer event.Publisher,
	logger *slog.Logger,
	echoResetToken bool,
) *AuthService {
	return &AuthService{
		users:          users,
		tokens:         tokens,
		producer:       producer,
		logger:         logger,
		echoResetToken: echoResetToken,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Password    string
}

// Register creates a new user account, hashes the password, and issues the
// first token pair.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, *domain.TokenPair, error) {
	if input.Email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if input.FirstName == "" {
		return nil, nil, apperrors.InvalidInput("first name is required")
	}
	if input.LastName == "" {
		return nil, nil, apperrors.InvalidInput("last name is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Email:        strings.ToLower(strings.TrimSpace(input.Email)),
		PhoneNumber:  strings.TrimSpace(input.PhoneNumber),
		PasswordHash: string(hashedPassword),
		Role:         domain.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("issue session: %w", err)
	}

	// Publish registration event (non-blocking on failure).
	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, tokens, nil
}

// Login authenticates a user by email or phone number, returning a fresh
// token pair. The failure for an unknown identifier and a wrong password is
// identical so callers cannot tell which accounts exist.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*domain.User, *domain.TokenPair, error) {
	if identifier == "" {
		return nil, nil, apperrors.InvalidInput("identifier is required")
	}
	if password == "" {
		return nil, nil, apperrors.InvalidInput("password is required")
	}

	user, err := s.users.GetByIdentifier(ctx, strings.TrimSpace(identifier))
	if err != nil {
		// Only an absent account maps to the uniform credentials failure.
		// A directory outage is transient and must not read as a 401.
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.UnauthorizedCode("INVALID_CREDENTIALS", "invalid credentials")
		}
		return nil, nil, fmt.Errorf("look up user by identifier: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, apperrors.UnauthorizedCode("INVALID_CREDENTIALS", "invalid credentials")
	}

	if !user.IsActive {
		return nil, nil, apperrors.UnauthorizedCode("ACCOUNT_DEACTIVATED", "account is deactivated")
	}

	// Rotates the stored refresh hash, so any previously issued refresh
	// token stops working.
	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("issue session: %w", err)
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to record last login",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	user.LastLoginAt = &now

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, tokens, nil
}

// Refresh exchanges a valid refresh token for a new pair. The stored hash is
// swapped with a compare-and-set so a replayed or concurrent refresh with the
// same token loses the race and fails instead of minting a second session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidInput("refresh token is required")
	}

	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.UnauthorizedCode("INVALID_REFRESH_TOKEN", "invalid or expired refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.UnauthorizedCode("INVALID_REFRESH_TOKEN", "invalid or expired refresh token")
		}
		return nil, fmt.Errorf("look up user for refresh: %w", err)
	}

	if !user.IsActive {
		return nil, apperrors.UnauthorizedCode("ACCOUNT_DEACTIVATED", "account is deactivated")
	}

	access, refresh, err := s.tokens.GeneratePair(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}

	swapped, err := s.users.RotateRefreshToken(ctx, user.ID, auth.HashToken(refreshToken), auth.HashToken(refresh))
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !swapped {
		// The presented token is signed and unexpired but no longer the
		// stored one: either it was already rotated (reuse) or the session
		// was revoked.
		s.logger.WarnContext(ctx, "refresh token reuse detected",
			slog.String("user_id", user.ID),
		)
		return nil, apperrors.UnauthorizedCode("INVALID_REFRESH_TOKEN", "invalid or expired refresh token")
	}

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("user_id", user.ID),
	)

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Logout revokes the user's refresh token. Outstanding access tokens stay
// valid until they expire.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged out",
		slog.String("user_id", userID),
	)

	return nil
}

// ChangePassword allows an authenticated user to change their password.
// Existing sessions are not revoked; the user proved possession of the
// current password, so nothing suggests the account is compromised.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return apperrors.InvalidInput("current password is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	if currentPassword == newPassword {
		return apperrors.InvalidInput("new password must be different from current password")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user for password change: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return apperrors.Unauthorized("current password is incorrect")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(hashedPassword)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("user_id", user.ID),
	)

	return nil
}

// ForgotPassword generates a reset artifact for the account. An unknown email
// produces the same empty-handed success as a known one so the endpoint cannot
// be used to enumerate accounts. The plaintext token is returned only when the
// service is configured to echo it (development mode); production delivery
// happens out of band via the published event.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	if email == "" {
		return "", apperrors.InvalidInput("email is required")
	}

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		// Unknown emails get the same generic success as known ones, but a
		// failing directory is a real error, not a success that stored nothing.
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email",
				slog.String("email", email),
			)
			return "", nil
		}
		return "", fmt.Errorf("look up user by email: %w", err)
	}

	plaintext, hash, expiresAt, err := s.tokens.NewResetToken()
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	// Overwrites any pending reset, so only the newest artifact redeems.
	if err := s.users.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}

	if err := s.producer.PublishUserPasswordReset(ctx, user.ID, user.Email); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.password_reset event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("user_id", user.ID),
	)

	if s.echoResetToken {
		return plaintext, nil
	}
	return "", nil
}

// ResetPassword redeems a reset artifact and sets a new password. The stored
// artifact is cleared and the refresh token revoked in the same update, so the
// token is single-use and every device has to log in again.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return apperrors.InvalidInput("reset token is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByResetToken(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.UnauthorizedCode("INVALID_RESET_TOKEN", "invalid or expired reset token")
		}
		return fmt.Errorf("look up user by reset token: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := s.users.ResetPassword(ctx, user.ID, string(hashedPassword)); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset completed",
		slog.String("user_id", user.ID),
	)

	return nil
}

// issueSession mints an access/refresh pair and persists the refresh token
// hash, superseding whatever was stored before.
func (s *AuthService) issueSession(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	access, refresh, err := s.tokens.GeneratePair(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}

	if err := s.users.SetRefreshToken(ctx, user.ID, auth.HashToken(refresh)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// validatePassword checks that the password meets minimum complexity requirements.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit {
		return apperrors.InvalidInput("password must contain at least one uppercase letter, one lowercase letter, and one digit")
	}

	return nil
}
