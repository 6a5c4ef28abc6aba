package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// NewRequestLogger logs one line per request after the handler returns. It
// runs after the metadata middleware, so the line carries the client IP and,
// for authenticated API requests, the user id a later middleware resolved
// into the shared metadata.
func NewRequestLogger(logger *slog.Logger) Middleware {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)

			attrs := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)),
			}
			if meta, ok := ReqMetadataFrom(r.Context()); ok {
				attrs = append(attrs, slog.String("ip", meta.IP))
				if meta.Principal != nil {
					attrs = append(attrs, slog.Int64("userID", meta.Principal.ID))
				}
			}
			logger.Info("Request handled", attrs...)
		})
	}
}
