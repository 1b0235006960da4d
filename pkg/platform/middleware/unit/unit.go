package unit

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"chronicle/internal/pending"
	"chronicle/pkg/requestcontext"
)

// Scope assigns each request a unit-of-work ID and releases that unit's staged
// before-snapshots when the request ends. The release runs in a defer so it
// covers every exit path, including panics and handler errors; without it, an
// entry staged by a write that failed before its post-hook would be paired
// with an unrelated future mutation of the same key.
func Scope(cache pending.Cache, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			unitID := uuid.NewString()
			ctx := requestcontext.WithUnitID(r.Context(), unitID)
			ctx = requestcontext.WithRequestID(ctx, unitID)

			defer func() {
				// Release must proceed even when the request context was
				// cancelled mid-flight.
				if err := cache.ReleaseUnit(context.WithoutCancel(ctx), unitID); err != nil {
					logger.WarnContext(ctx, "pending release failed",
						"error", err, "unit_id", unitID)
				}
			}()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
