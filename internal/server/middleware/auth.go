package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/louieee/chatclone/internal/auth"
)

// PrincipalResolver turns a bearer token into an authenticated principal.
type PrincipalResolver func(ctx context.Context, token string) (*auth.Principal, error)

// NewAuthMiddleware guards the REST routes. It expects an
// "Authorization: Bearer <token>" header and rejects the request when the
// token does not resolve. The resolved principal lands in the request
// metadata for handlers downstream.
func NewAuthMiddleware(logger *slog.Logger, resolve PrincipalResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				// something went wrong with previous middlewares
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header", slog.String("ip", reqMeta.IP))
				http.Error(w, "Missing token", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == "" || tokenString == authHeader {
				logger.Warn("Malformed Authorization header", slog.String("ip", reqMeta.IP))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := resolve(r.Context(), tokenString)
			if err != nil {
				logger.Warn("Invalid token presented", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			reqMeta.Principal = principal
			next.ServeHTTP(w, r)
		})
	}
}
