// Package app wires the marketplace server: configuration, storage, domain
// services, the HTTP surface and graceful shutdown.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/terangacraft/marketplace/internal/blob"
	"github.com/terangacraft/marketplace/internal/domain/artisan"
	"github.com/terangacraft/marketplace/internal/domain/cart"
	"github.com/terangacraft/marketplace/internal/domain/payment"
	"github.com/terangacraft/marketplace/internal/domain/pricing"
	"github.com/terangacraft/marketplace/internal/domain/promo"
	"github.com/terangacraft/marketplace/internal/handler"
	"github.com/terangacraft/marketplace/internal/notify"
	"github.com/terangacraft/marketplace/internal/postgres"
	"github.com/terangacraft/marketplace/internal/settlement"
	"github.com/terangacraft/marketplace/pkg/health"
	"github.com/terangacraft/marketplace/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	cartRepo := postgres.NewCartRepository(pool)
	promoRepo := postgres.NewPromoRepository(pool)
	attemptRepo := postgres.NewAttemptRepository(pool)
	checkoutStore := postgres.NewCheckoutStore(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	artisanRepo := postgres.NewArtisanRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)
	ledger := postgres.NewStockLedger(pool)

	// Expired reservation sweeper.
	go sweepExpired(ctx, ledger, cfg.Stock.SweepInterval)

	// Promo validation behind a bloom pre-filter warmed from the repository.
	promoValidator, err := promo.NewBloomValidator(ctx, promoRepo, promo.NewRepoValidator(promoRepo))
	if err != nil {
		return errors.Wrap(err, "warm promo filter")
	}

	// Settlement gateway: real provider when configured, static otherwise.
	var gateway payment.Gateway
	if cfg.Settlement.URL != "" {
		gateway = settlement.NewHTTPGateway(cfg.Settlement.URL)
	} else {
		lg.Warn("No settlement URL configured, using static dev gateway")
		gateway = &settlement.StaticGateway{Result: payment.Result{Authorized: true, Reference: "dev"}}
	}

	// Artisan document store: object storage when configured.
	var blobs artisan.BlobStore
	if cfg.Blob.Endpoint != "" {
		store, err := blob.NewMinioStore(ctx, blob.Config{
			Endpoint:  cfg.Blob.Endpoint,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
			Bucket:    cfg.Blob.Bucket,
			UseSSL:    cfg.Blob.UseSSL,
		})
		if err != nil {
			return errors.Wrap(err, "connect blob store")
		}
		blobs = store
	} else {
		lg.Warn("No blob endpoint configured, documents are stored in memory")
		blobs = blob.NewMemoryStore()
	}

	// Notifications over SMTP when configured.
	var notifier notify.Dispatcher = notify.Noop{}
	if cfg.SMTP.Host != "" {
		notifier = notify.NewMailer(notify.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		})
	}

	// Domain services.
	engine := pricing.NewEngine(
		decimal.NewFromInt(cfg.Pricing.DeliveryFee),
		decimal.NewFromInt(cfg.Pricing.FreeDeliveryThreshold),
	)
	cartSvc := cart.NewService(cartRepo, productRepo, ledger, cfg.Stock.ReservationTTL)
	orchestrator := payment.NewOrchestrator(
		cartRepo, cartRepo, ledger, engine, promoValidator,
		attemptRepo, checkoutStore, gateway, notifier,
		payment.Config{
			MaxAttempts:       cfg.Payment.MaxAttempts,
			SettlementTimeout: cfg.Settlement.Timeout,
			ProcessingHold:    cfg.Payment.ProcessingHold,
		},
	)
	workflow := artisan.NewWorkflow(artisanRepo, blobs, productRepo, notifier)

	// HTTP surface.
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	securityHandler := handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper))
	h := handler.NewHandler(productRepo, cartSvc, orchestrator, workflow, orderRepo, engine, promoValidator, securityHandler)
	h.Routes(router)

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/api/", router)

	handlerStack := httpmiddleware.Wrap(mux,
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			AllowOrigins:     cfg.CORS.Origins,
			AllowHeaders:     []string{"Content-Type", "X-Cart-Owner", "X-API-Key"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           86400,
		}),
		httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		}),
		httpmiddleware.RequestID(),
		httpmiddleware.InjectLogger(zctx.From(ctx)),
		httpmiddleware.LogRequests(),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(handlerStack, "market-api",
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
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
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// sweepExpired periodically releases reservations whose hold window elapsed.
func sweepExpired(ctx context.Context, ledger *postgres.StockLedger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := ledger.ReleaseExpired(ctx, time.Now().UTC())
			if err != nil {
				zctx.From(ctx).Error("reservation sweep failed", zap.Error(err))
				continue
			}
			if swept > 0 {
				zctx.From(ctx).Info("released expired reservations", zap.Int("count", swept))
			}
		}
	}
}
