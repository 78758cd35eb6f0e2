// Package app wires configuration, storage, domain services and the HTTP
// server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/customer"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/handler"
	"github.com/xenking/kart-orders/internal/storage/memory"
	"github.com/xenking/kart-orders/internal/storage/postgres"
	"github.com/xenking/kart-orders/pkg/health"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

const bootstrapKeyID = "bootstrap"

// repositories bundles one storage backend.
type repositories struct {
	customers customer.Repository
	products  product.Repository
	orders    order.Repository
	apikeys   auth.Repository
	close     func()
}

// openRepositories connects the configured storage driver. Postgres also gets
// migrated and registered as a readiness check.
func openRepositories(ctx context.Context, cfg *Config, h *health.Health) (*repositories, error) {
	if cfg.Storage.Driver == DriverMemory {
		return &repositories{
			customers: memory.NewCustomerRepository(),
			products:  memory.NewProductRepository(),
			orders:    memory.NewOrderRepository(),
			apikeys:   memory.NewAPIKeyRepository(),
			close:     func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))

	return &repositories{
		customers: postgres.NewCustomerRepository(pool),
		products:  postgres.NewProductRepository(pool),
		orders:    postgres.NewOrderRepository(pool),
		apikeys:   postgres.NewAPIKeyRepository(pool),
		close:     pool.Close,
	}, nil
}

// newServer builds the routed and instrumented HTTP handler.
func newServer(
	ctx context.Context,
	lg *zap.Logger,
	m httpmiddleware.TelemetryProvider,
	cfg *Config,
	repos *repositories,
	h *health.Health,
) (http.Handler, error) {
	if cfg.BootstrapAPIKey != "" {
		key := auth.APIKeyInfo{
			ID:      bootstrapKeyID,
			KeyHash: auth.HashKeyHex([]byte(cfg.APIKeyPepper), cfg.BootstrapAPIKey),
			Name:    "bootstrap",
			Scopes:  []string{auth.ScopeWrite},
			Active:  true,
		}
		if err := repos.apikeys.Upsert(ctx, key); err != nil {
			return nil, errors.Wrap(err, "register bootstrap api key")
		}
		lg.Info("Registered bootstrap API key")
	}

	orderService, err := order.NewService(repos.customers, repos.products, repos.orders,
		order.WithTracerProvider(m.TracerProvider()),
		order.WithMeterProvider(m.MeterProvider()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create order service")
	}

	api := handler.NewHandler(
		customer.NewService(repos.customers),
		product.NewService(repos.products),
		orderService,
	)
	security := handler.NewSecurityHandler(repos.apikeys, []byte(cfg.APIKeyPepper))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", h.LiveEndpoint)
	mux.HandleFunc("GET /readyz", h.ReadyEndpoint)
	api.Register(mux, security)

	find := httpmiddleware.MakeRouteFinder(mux)
	return httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader, httpmiddleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.Instrument("kart-orders", find, m),
		httpmiddleware.LogRequests(find),
		httpmiddleware.Labeler(find),
	), nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.TelemetryProvider, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	repos, err := openRepositories(ctx, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer repos.close()

	h, err := newServer(ctx, lg, m, cfg, repos, healthSvc)
	if err != nil {
		return err
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           h,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
