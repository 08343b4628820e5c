package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/avelar/fintrack/internal/auth"
	"github.com/avelar/fintrack/internal/domain"
	"github.com/avelar/fintrack/internal/repository"
	apperrors "github.com/avelar/fintrack/pkg/errors"
	"github.com/avelar/fintrack/pkg/httputil"
	"github.com/avelar/fintrack/pkg/logger"
)

type contextKey struct{ name string }

var userContextKey = &contextKey{"authenticated-user"}

// UserFromContext returns the authenticated user attached by Authenticate or
// OptionalAuthenticate.
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	return user, ok
}

// Gate turns a bearer token into a verified identity on the request context.
type Gate struct {
	tokens *auth.TokenManager
	users  repository.UserRepository
	logger *slog.Logger
}

// NewGate creates the authentication middleware.
func NewGate(tokens *auth.TokenManager, users repository.UserRepository, logger *slog.Logger) *Gate {
	return &Gate{
		tokens: tokens,
		users:  users,
		logger: logger,
	}
}

// Authenticate requires a valid access token and an active account. An
// expired token gets its own code so clients know to refresh instead of
// logging in again.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := g.resolve(r)
		if err != nil {
			httputil.WriteError(w, r, err, g.logger)
			return
		}
		next.ServeHTTP(w, r.WithContext(g.identityContext(r.Context(), user)))
	})
}

// OptionalAuthenticate attaches an identity when a valid token is presented
// and proceeds anonymously otherwise. It never fails the request.
func (g *Gate) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := g.resolve(r); err == nil {
			r = r.WithContext(g.identityContext(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// identityContext attaches the user to the context and rebinds the
// request-scoped logger so log lines from here on carry the user id.
func (g *Gate) identityContext(ctx context.Context, user *domain.User) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	ctx = logger.WithUserID(ctx, user.ID)
	return logger.NewContext(ctx, logger.WithContext(ctx, g.logger))
}

// RequireRole rejects authenticated users whose role does not match.
// It must run after Authenticate.
func RequireRole(role string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), logger)
				return
			}
			if user.Role != role {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// resolve extracts and verifies the bearer token, then loads the identity.
func (g *Gate) resolve(r *http.Request) (*domain.User, error) {
	token := auth.BearerFromRequest(r)
	if token == "" {
		return nil, apperrors.UnauthorizedCode("MISSING_TOKEN", "authentication token is required")
	}

	claims, err := g.tokens.ValidateAccessToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, apperrors.UnauthorizedCode("TOKEN_EXPIRED", "access token has expired, please refresh")
		}
		return nil, apperrors.UnauthorizedCode("INVALID_TOKEN", "invalid authentication token")
	}

	user, err := g.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.UnauthorizedCode("INVALID_TOKEN", "account no longer exists")
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, apperrors.UnauthorizedCode("ACCOUNT_DEACTIVATED", "account is deactivated")
	}

	return user, nil
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				httputil.WriteError(w, r, &apperrors.AppError{
					Code:    "UNSUPPORTED_MEDIA_TYPE",
					Message: "Content-Type must be application/json",
					Status:  http.StatusUnsupportedMediaType,
				}, nil)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
