package httptransport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/internal/audit"
	auditmemory "chronicle/internal/audit/store/memory"
	"chronicle/internal/authevents"
	"chronicle/pkg/requestcontext"
)

func newAuthRouter(t *testing.T) (chi.Router, *auditmemory.InMemoryStore, string) {
	t.Helper()
	users := authevents.NewInMemoryUserStore()
	userID, err := users.Seed("ada", "hunter2")
	require.NoError(t, err)

	trail := auditmemory.NewInMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := authevents.NewService(users, audit.NewRecorder(trail, logger, nil),
		[]byte("test-signing-key"), time.Hour, logger)

	router := chi.NewRouter()
	NewAuthHandler(service, logger).Register(router)
	return router, trail, userID
}

func postJSON(router chi.Router, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestLoginEndpoint_Success(t *testing.T) {
	router, trail, userID := newAuthRouter(t)

	rec := postJSON(router, "/auth/login", `{"username":"ada","password":"hunter2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["token"])

	records, err := trail.Find(context.Background(), audit.Filter{Action: audit.ActionLogin})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, userID, records[0].ActorID)
}

func TestLoginEndpoint_BadCredentials(t *testing.T) {
	router, trail, _ := newAuthRouter(t)

	rec := postJSON(router, "/auth/login", `{"username":"ada","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", decodeBody(t, rec)["error"])

	records, err := trail.Find(context.Background(), audit.Filter{Action: audit.ActionFailedLogin})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestLoginEndpoint_MalformedRequests(t *testing.T) {
	router, _, _ := newAuthRouter(t)

	rec := postJSON(router, "/auth/login", `{"username":"ada"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(router, "/auth/login", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutEndpoint(t *testing.T) {
	router, trail, userID := newAuthRouter(t)

	// Without an authenticated actor the endpoint refuses.
	rec := postJSON(router, "/auth/logout", `{"username":"ada"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	authed := chi.NewRouter()
	authed.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithActor(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	authed.Mount("/", router)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(`{"username":"ada"}`))
	authed.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	records, err := trail.Find(context.Background(), audit.Filter{Action: audit.ActionLogout})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, userID, records[0].ActorID)
}
