package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	appbasket "github.com/Zhima-Mochi/minishop-checkout/internal/application/basket"
	"github.com/Zhima-Mochi/minishop-checkout/internal/application/notification"
	apporder "github.com/Zhima-Mochi/minishop-checkout/internal/application/order"
	apppay "github.com/Zhima-Mochi/minishop-checkout/internal/application/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/config"
	dombasket "github.com/Zhima-Mochi/minishop-checkout/internal/domain/basket"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	dompay "github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	obsinfra "github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payflow"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/Zhima-Mochi/minishop-checkout/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-checkout/internal/presentation/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config_invalid", zap.Error(err))
	}

	baseLogger := logging.MustNewLogger(logging.Options{
		Service: cfg.Service,
		Env:     cfg.Env,
		Site:    cfg.Site.Code,
		Level:   cfg.Log.Level,
		File:    cfg.Log.File,
	})
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	systemLogger := logging.System(baseLogger)

	if err := run(cfg, baseLogger); err != nil {
		systemLogger.Fatal("service_failed", zap.Error(err))
	}
}

// backend is the set of stores the use cases run against.
type backend struct {
	baskets   dombasket.Repository
	offers    dombasket.OfferCatalog
	orders    domorder.Repository
	payments  dompay.Repository
	responses dompay.ResponseRepository
	tx        application.TxManager
	health    func(ctx context.Context) error
	close     func()
}

func run(cfg *config.Config, baseLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zaplogger.New(baseLogger)
	systemLogger := logger.With(
		observability.F("trace_id", logging.SystemID),
		observability.F("span_id", logging.SystemID),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	oteltrace.InstallPropagator()
	tel := obsinfra.New(oteltrace.New(cfg.Service), logger, prometrics.New("", "", reg))

	be, err := openBackend(ctx, cfg, systemLogger)
	if err != nil {
		return err
	}
	defer be.close()

	bus := outbox.NewBus(logger, tel)

	var fulfillment apporder.Fulfillment = kafka.NewLogFulfillment(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		pub := kafka.NewFulfillmentPublisher(kafka.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.Kafka.Topic, tel)
		defer func() { _ = pub.Close() }()
		fulfillment = pub
		systemLogger.Info("fulfillment_kafka_enabled",
			observability.F("brokers", cfg.Kafka.Brokers),
			observability.F("topic", cfg.Kafka.Topic),
		)
	}
	apporder.NewFulfillmentWorker(bus, fulfillment, tel).Start()
	bus.Start(ctx)

	processor := payflow.New(cfg.Payflow, nil)
	resolver := appbasket.NewResolveBasketUseCase(be.baskets, be.offers, tel)
	// The token amount and the placed order total must use the same method.
	shipping := domorder.NoShippingRequired{}

	dispatcher := notification.New(notification.Deps{
		Processor: processor,
		Recorder:  apppay.NewRecordResponseUseCase(be.responses, be.baskets, tel),
		Resolver:  resolver,
		Handler:   apppay.NewHandlePaymentUseCase(be.payments, id.UUIDGenerator{}, tel),
		Placer:    apporder.NewPlaceOrderUseCase(be.orders, be.baskets, tel),
		Tx:        be.tx,
		Publisher: bus,
		Shipping:  shipping,
	}, tel)

	handler := httppresentation.NewHandler(httppresentation.Deps{
		Dispatcher: dispatcher,
		Initiator:  apppay.NewInitiatePaymentUseCase(resolver, be.baskets, processor, shipping, cfg.Payment.InitiateTimeout, tel),
		Orders:     be.orders,
		Responses:  be.responses,
		Processor:  processor,
		Site: httppresentation.Site{
			Code:       cfg.Site.Code,
			ReceiptURL: cfg.Site.ReceiptURL,
			ErrorURL:   cfg.Site.ErrorURL,
		},
		Health: be.health,
	}, logger, tel)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/", handler.Router())

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start", observability.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			systemLogger.Error("http_server_error", observability.F("error", err))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	bus.Stop(shutdownCtx)
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, log observability.Logger) (*backend, error) {
	if cfg.Database.URL != "" {
		store, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, err
			}
		}
		log.Info("store_selected", observability.F("store", "postgres"))
		return &backend{
			baskets:   store.Baskets(),
			offers:    store.Offers(),
			orders:    store.Orders(),
			payments:  store.Payments(),
			responses: store.Responses(),
			tx:        store,
			health:    store.Ping,
			close:     store.Close,
		}, nil
	}

	store := memory.NewStore()
	if err := seedDemoBasket(ctx, store.Baskets(), cfg.Site.Code); err != nil {
		return nil, err
	}
	log.Warn("store_selected", observability.F("store", "memory"), observability.F("durable", false))
	return &backend{
		baskets:   store.Baskets(),
		offers:    memory.NewOfferCatalog(),
		orders:    store.Orders(),
		payments:  store.Payments(),
		responses: store.Responses(),
		tx:        store,
		close:     func() {},
	}, nil
}

// seedDemoBasket gives the in-memory store one payable basket so the
// checkout flow can be exercised locally.
func seedDemoBasket(ctx context.Context, baskets dombasket.Repository, siteCode string) error {
	b, err := dombasket.New(1, "demo-user", siteCode, "USD", []dombasket.Line{{
		ProductID: "course-seat-demo",
		Title:     "Verified seat",
		Quantity:  1,
		UnitPrice: decimal.RequireFromString("49.00"),
	}})
	if err != nil {
		return err
	}
	return baskets.Save(ctx, b)
}
