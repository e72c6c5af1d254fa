package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/frahmantamala/billpay-relay/internal/transport"
)

// RecoveryMiddleware turns a panic into a 500. Gateway routes get the plain
// FAIL body so the gateway retries, API routes get the JSON error envelope.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered",
						"error", err,
						"method", r.Method,
						"path", maskPath(r.URL.Path),
						"stack", string(debug.Stack()))

					if strings.HasPrefix(r.URL.Path, "/toyyib/") {
						base.WriteText(w, http.StatusInternalServerError, "FAIL")
						return
					}
					base.WriteError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
