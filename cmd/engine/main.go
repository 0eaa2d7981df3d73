// Order engine - conversational ordering over a remote commerce API with
// local catalog and order fallback.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"order-engine/internal/adapter"
	"order-engine/internal/cache"
	"order-engine/internal/catalog"
	"order-engine/internal/config"
	"order-engine/internal/conversation"
	"order-engine/internal/handler"
	"order-engine/internal/middleware"
	"order-engine/internal/order"
	"order-engine/internal/pricing"
	"order-engine/internal/remote"
	"order-engine/internal/store"
	"order-engine/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("tenants", len(cfg.Tenants)),
		slog.String("database", cfg.Database.Path),
		slog.Bool("redis", cfg.Redis.Addr != ""),
	)

	db, err := store.Open(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close(db)

	local, err := catalog.LoadLocal(cfg.CatalogFile)
	if err != nil {
		return fmt.Errorf("loading local catalog: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var shared cache.Store
	if cfg.Redis.Addr != "" {
		rs, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   "order-engine:",
		})
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rs.Close()
		shared = rs
	}

	commerce, closeRemote, err := createRemote(ctx, cfg, reg, logger)
	if err != nil {
		return fmt.Errorf("creating remote client: %w", err)
	}
	defer closeRemote()

	resolver := catalog.NewResolver(commerce, local, cfg.Tenants, catalog.ResolverConfig{
		ProductTTL: cfg.Cache.ProductTTL.Std(),
		CatalogTTL: cfg.Cache.CatalogTTL.Std(),
		MaxEntries: cfg.Cache.MaxEntries,
		Shared:     shared,
	}, logger)

	repo := order.NewRepository(db)
	orchestrator := order.NewOrchestrator(repo, commerce, cfg.Tenants, logger)
	engine := conversation.NewEngine(resolver, pricing.New(cfg.Engine.MaxQuantity), orchestrator, cfg.Tenants, conversation.Options{
		SessionTTL:  cfg.Engine.SessionTTL.Std(),
		MaxSessions: cfg.Cache.MaxEntries,
		Logger:      logger,
	})

	h := handler.New(handler.Deps{
		Engine:     engine,
		Orders:     repo,
		Reconciler: order.NewReconciler(repo, commerce, logger),
		Gatherer:   reg,
	}, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Recovery must be outermost to catch panics from the other middleware.
	// Metrics sits innermost so r.Pattern is set by the mux before it reads it.
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
	)(middleware.NewHTTPMetrics(reg).Middleware()(mux))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return engine.Sessions().RunJanitor(gctx, time.Minute)
	})

	if interval := cfg.Engine.ResubmitInterval.Std(); interval > 0 && commerce != nil {
		resubmitter := order.NewResubmitter(orchestrator, interval, logger)
		g.Go(func() error {
			return resubmitter.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// createRemote builds the remote commerce client when any tenant needs it.
// A nil Commerce keeps every tenant on the local catalog and local orders.
func createRemote(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (adapter.Commerce, func(), error) {
	noop := func() {}
	if cfg.Remote.BaseURL == "" {
		logger.Info("remote commerce API not configured; all tenants run locally")
		return nil, noop, nil
	}

	source, closeSource, err := createSecretSource(ctx, cfg)
	if err != nil {
		return nil, noop, err
	}

	creds := cache.NewCredentialCache(cfg.Tenants, source, cache.Config{
		TTL:        cfg.Cache.CredentialTTL.Std(),
		MaxEntries: len(cfg.Tenants) + 1,
	}, logger)

	client, err := remote.New(remote.Config{
		BaseURL:       cfg.Remote.BaseURL,
		Timeout:       cfg.Remote.Timeout.Std(),
		MaxRetries:    cfg.Remote.MaxRetries,
		BaseBackoff:   cfg.Remote.BaseBackoff.Std(),
		MaxBackoff:    cfg.Remote.MaxBackoff.Std(),
		MaxConcurrent: cfg.Remote.MaxConcurrent,
		MaxPerTenant:  cfg.Remote.MaxPerTenant,
		QueueWait:     cfg.Remote.QueueWait.Std(),
		MinAPIVersion: cfg.Remote.MinAPIVersion,
		Transport: transport.New(transport.Options{
			MaxIdleConnsPerHost: cfg.Remote.MaxPerTenant,
			MaxConnsPerHost:     cfg.Remote.MaxConcurrent,
			ChromeTLS:           cfg.Remote.ChromeTLS,
		}),
		Registerer: reg,
		Logger:     logger,
	}, creds)
	if err != nil {
		closeSource()
		return nil, noop, err
	}
	return client, closeSource, nil
}

// multiSource routes each tenant to the source its config names.
type multiSource struct {
	sealed  cache.SecretSource
	manager cache.SecretSource
}

func (m multiSource) Open(ctx context.Context, tenantID string, tenant config.Tenant) (string, error) {
	switch {
	case tenant.SealedSecret != "" && m.sealed != nil:
		return m.sealed.Open(ctx, tenantID, tenant)
	case tenant.SecretName != "" && m.manager != nil:
		return m.manager.Open(ctx, tenantID, tenant)
	}
	return "", fmt.Errorf("tenant %s: no secret source configured for its credential", tenantID)
}

// createSecretSource opens sealed secrets with SECRET_BOX_KEY and reads named
// secrets from Secret Manager when a GCP project is configured.
func createSecretSource(ctx context.Context, cfg *config.Config) (cache.SecretSource, func(), error) {
	var src multiSource
	closer := func() {}

	if cfg.SecretBoxKey != "" {
		sealed, err := cache.NewSealedSource(cfg.SecretBoxKey)
		if err != nil {
			return nil, closer, err
		}
		src.sealed = sealed
	}
	if cfg.GCPProject != "" {
		sm, err := cache.NewSecretManagerSource(ctx, cfg.GCPProject)
		if err != nil {
			return nil, closer, err
		}
		src.manager = sm
		closer = func() { sm.Close() }
	}
	if src.sealed == nil && src.manager == nil {
		return nil, closer, errors.New("remote access needs SECRET_BOX_KEY or GCP_PROJECT for tenant credentials")
	}
	return src, closer, nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for Cloud Logging compatibility.
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	if cfg.Environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
