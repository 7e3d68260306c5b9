package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/relayhub/core/logger"
)

// Check is a dependency probe. A non-nil error marks the service not ready.
type Check func(ctx context.Context) error

// Readiness runs every check in order and answers 503 on the first failure.
func Readiness(log *slog.Logger, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "Readiness check failed", logger.Component("health"), logger.Error(err))
				writeText(w, http.StatusServiceUnavailable, "NOT READY")
				return
			}
		}

		writeText(w, http.StatusOK, "READY")
	}
}
