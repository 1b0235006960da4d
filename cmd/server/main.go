package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"chronicle/internal/audit"
	auditmetrics "chronicle/internal/audit/metrics"
	auditmemory "chronicle/internal/audit/store/memory"
	auditpostgres "chronicle/internal/audit/store/postgres"
	"chronicle/internal/audit/worker"
	"chronicle/internal/authevents"
	entitymemory "chronicle/internal/entity/memory"
	"chronicle/internal/interceptor"
	"chronicle/internal/pending"
	pendingmemory "chronicle/internal/pending/memory"
	pendingredis "chronicle/internal/pending/redis"
	"chronicle/internal/platform/config"
	"chronicle/internal/platform/httpserver"
	"chronicle/internal/platform/logger"
	"chronicle/internal/rollback"
	"chronicle/internal/schema"
	httptransport "chronicle/internal/transport/http"
)

const (
	systemInboxSize = 256
	sessionTokenTTL = 12 * time.Hour
	shutdownTimeout = 10 * time.Second
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Engine logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)
	metrics := auditmetrics.New()

	// Audit store: postgres when configured, memory otherwise.
	var auditStore audit.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		auditStore = auditpostgres.New(db)
	} else {
		auditStore = auditmemory.NewInMemoryStore()
	}

	// Pending cache: redis when configured, memory otherwise.
	var pendingCache pending.Cache
	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		pendingCache = pendingredis.NewCache(client, pendingredis.WithTTL(cfg.PendingTTL))
	} else {
		pendingCache = pendingmemory.NewCache(
			pendingmemory.WithTTL(cfg.PendingTTL),
			pendingmemory.WithMetrics(metrics),
		)
	}

	recorder := audit.NewRecorder(auditStore, log, metrics)

	// Entity layer and hooks. Domain packages register their descriptors on
	// the registry before serving traffic.
	registry := schema.NewRegistry()
	entityStore := entitymemory.NewStore(registry, nil)
	hooks := interceptor.New(registry, pendingCache, recorder, entityStore, log)
	entityStore.SetHooks(hooks)

	rollbackEngine := rollback.New(registry, entityStore, log, metrics)

	// Reference authentication layer feeding LOGIN/LOGOUT/FAILED_LOGIN.
	users := authevents.NewInMemoryUserStore()
	authService := authevents.NewService(users, recorder, []byte(cfg.SigningKey), sessionTokenTTL, log)

	// Async lane for scheduled-job completion reports.
	systemInbox := make(chan audit.Record, systemInboxSize)
	systemWorker := worker.NewWorker(recorder, systemInbox)

	router := httptransport.NewRouter(
		httptransport.RouterDeps{
			Pending:    pendingCache,
			SigningKey: []byte(cfg.SigningKey),
			Logger:     log,
		},
		httptransport.NewHandler(auditStore, rollbackEngine, log),
		httptransport.NewAuthHandler(authService, log),
		httptransport.NewSystemHandler(systemInbox, log),
	)

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting chronicle", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := systemWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return httpserver.Shutdown(srv, shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}
