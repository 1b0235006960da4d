package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chronicle/internal/pending"
	"chronicle/pkg/platform/middleware/auth"
	"chronicle/pkg/platform/middleware/metadata"
	"chronicle/pkg/platform/middleware/unit"
)

// RouterDeps bundles what the router needs beyond the handlers themselves.
type RouterDeps struct {
	Pending    pending.Cache
	SigningKey []byte
	Logger     *slog.Logger
}

// NewRouter wires the middleware chain and all endpoints. Order matters:
// client metadata and the unit scope must be installed before anything that
// stages snapshots, and actor resolution before anything that records.
func NewRouter(deps RouterDeps, handlers ...interface{ Register(chi.Router) }) http.Handler {
	r := chi.NewRouter()

	r.Use(metadata.ClientMetadata)
	r.Use(unit.Scope(deps.Pending, deps.Logger))
	r.Use(auth.ResolveActor(deps.SigningKey, deps.Logger))

	for _, h := range handlers {
		h.Register(r)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
