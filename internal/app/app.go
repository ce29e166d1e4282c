package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/storefront/internal/catalog"
	"github.com/utafrali/storefront/internal/checkout"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/orderapi"
	"github.com/utafrali/storefront/internal/payment"
	"github.com/utafrali/storefront/internal/payment/card"
	"github.com/utafrali/storefront/internal/payment/crypto"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/tracing"
)

// App wires together all dependencies and runs the storefront shell.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	coordinator    *checkout.Coordinator
	handler        *handler.CheckoutHandler
	producer       *pkgkafka.Producer
	wallet         *crypto.KeyedWallet
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: tracerShutdown,
	}
	healthHandler := health.NewHandler()

	// Order API client behind retries and a circuit breaker.
	cbCfg := cfg.CircuitBreaker()
	cbClient := httpclient.NewCircuitBreakerClient(httpclient.New(cfg.HTTPClient()), cbCfg, logger)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
	)
	api := orderapi.New(cbClient, cfg.OrderAPI(), logger)
	logger.Info("order api client initialized",
		slog.String("base_url", api.BaseURL()),
		slog.String("auth_scheme", cfg.OrderAPI().AuthScheme),
	)
	healthHandler.RegisterNonCritical("order_api", func(context.Context) error {
		if cbClient.State() == gobreaker.StateOpen {
			return errors.New("order api circuit breaker is open")
		}
		return nil
	})

	// Payment widgets. Crypto payments need a signing wallet.
	cardWidget := card.New(card.Config{
		PaymentMethod: cfg.StripePaymentMethod,
		ReturnURL:     cfg.StripeReturnURL,
		APIURL:        cfg.StripeAPIURL,
	}, logger)

	var wallet crypto.Wallet
	if cfg.CryptoEnabled() {
		kw, err := crypto.DialKeyedWallet(ctx, cfg.EthRPCURL, cfg.WalletPrivateKey)
		if err != nil {
			_ = a.closeTracer()
			return nil, fmt.Errorf("connect wallet: %w", err)
		}
		a.wallet = kw
		wallet = kw
		logger.Info("wallet connected", slog.String("address", kw.Address().Hex()))
		healthHandler.RegisterNonCritical("eth_rpc", func(ctx context.Context) error {
			_, err := kw.ChainID(ctx)
			return err
		})
	} else {
		logger.Info("no wallet configured, crypto payments disabled")
	}
	cryptoWidget := crypto.New(wallet, logger)

	// Analytics events.
	var publisher event.Publisher = event.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	cat := catalog.Default(cfg.OrderCollectionID)
	a.coordinator = checkout.New(api, payment.NewRegistry(cardWidget, cryptoWidget), publisher, checkout.Config{
		CollectionLocator: cat.CollectionLocator(),
		RecipientEmail:    cfg.RecipientEmail,
		Payment:           cfg.Payment(),
		CreateMaxRetries:  uint(cfg.CreateMaxRetries),
	}, logger)

	if addr := cryptoWidget.WalletAddress(); addr != "" {
		if err := a.coordinator.ConnectWallet(ctx, addr); err != nil {
			_ = a.closeResources()
			_ = a.closeTracer()
			return nil, fmt.Errorf("connect wallet to checkout: %w", err)
		}
	}

	a.handler = handler.NewCheckoutHandler(a.coordinator, cat, logger)
	router := handler.NewRouter(a.handler, healthHandler, config.ServiceName, logger)

	a.httpServer = &http.Server{
		Addr:              cfg.ShellHTTPAddr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Handler returns the shell's HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run serves the shell until ctx is canceled or the server fails, then shuts
// everything down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			a.logger.Info("shutdown signal received")
		}
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Checkout dialog (cancels in-flight order calls and polling)
// 3. Background checkout work started by requests
// 4. Tracer (flush pending spans)
// 5. Kafka producer and wallet connection
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Close the dialog so polls and retries stop. No request can reopen it.
	a.coordinator.Close()

	// 3. Background Open/Pay calls return once their session is cancelled.
	a.handler.Wait()

	// 4. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if err := a.closeTracer(); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close Kafka producer and the RPC connection.
	if err := a.closeResources(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeTracer() error {
	if a.tracerShutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return a.tracerShutdown(ctx)
}

func (a *App) closeResources() error {
	var err error
	if a.producer != nil {
		err = a.producer.Close()
	}
	if a.wallet != nil {
		a.wallet.Close()
	}
	return err
}
