package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/avelar/fintrack/pkg/httputil"
)

// Recovery recovers from panics and returns a 500 error instead of crashing.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.ErrorContext(r.Context(), "panic recovered",
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)

					httputil.WriteJSON(w, http.StatusInternalServerError, httputil.Response{
						Success: false,
						Error:   &httputil.ErrorBody{Code: "INTERNAL_ERROR", Message: "an internal error occurred"},
						Meta:    httputil.Meta{Timestamp: time.Now().UTC(), Path: r.URL.Path},
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
