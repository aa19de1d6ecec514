package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MarketPulse/internal/broadcast"
	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/forecast"
	"MarketPulse/internal/handler/api"
	"MarketPulse/internal/marketdata"
	"MarketPulse/internal/pipeline"
	"MarketPulse/internal/portfolio"
	tradesignal "MarketPulse/internal/signal"
	"MarketPulse/pkg/cache"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	pkgkafka "MarketPulse/pkg/kafka"
	applogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/metrics"

	"github.com/labstack/echo/v4"
)

// App encapsulates the application lifecycle: dependency wiring, the
// refresh loop and the HTTP server.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	store      cache.Store
	producer   *pkgkafka.Producer
	orch       *pipeline.Orchestrator
	bcast      *broadcast.Broadcaster
	httpServer *xhttp.Server
}

// New wires the dependency graph from configuration.
func New(cfg *config.Config) (*App, error) {
	log, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, err
	}

	var store cache.Store
	if cfg.Store.Redis.Enabled {
		store, err = cache.NewRedisStore(
			cache.WithRedisAddr(cfg.Store.Redis.Addr),
			cache.WithRedisPassword(cfg.Store.Redis.Password),
			cache.WithRedisDB(cfg.Store.Redis.DB),
			cache.WithRedisPrefix(cfg.Store.Redis.Prefix),
		)
		if err != nil {
			return nil, err
		}
		log.Info("redis store connected", applogger.String("addr", cfg.Store.Redis.Addr))
	} else {
		store = cache.NewMemoryStore()
		log.Info("in-memory store active")
	}

	rec := metrics.New()

	source := marketdata.New(marketdata.Config{
		BinanceURL:     cfg.Market.BinanceURL,
		CoinbaseURL:    cfg.Market.CoinbaseURL,
		RequestTimeout: cfg.Market.RequestTimeout,
		ContextDays:    cfg.Market.ContextDays,
		CacheTTL:       cfg.Market.CacheTTL,
	}, store, log)

	settings := models.DefaultSettings()
	if cfg.Market.Ticker != "" {
		settings.Ticker = cfg.Market.Ticker
	}

	minuteModel := forecast.NewModel(models.Horizon{
		ID:           "minute",
		GridInterval: time.Minute,
		Steps:        settings.MinuteHorizon,
	}, store, log, cfg.Store.ArtifactTTL)
	longModel := forecast.NewModel(models.Horizon{
		ID:           "hour",
		GridInterval: 5 * time.Minute,
		Steps:        settings.LongHorizonSteps,
	}, store, log, cfg.Store.ArtifactTTL)

	broadcastOpts := []broadcast.Option{broadcast.WithMetrics(rec)}
	var producer *pkgkafka.Producer
	if cfg.Kafka.Enabled {
		producer, err = pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
			pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		)
		if err != nil {
			return nil, err
		}
		broadcastOpts = append(broadcastOpts,
			broadcast.WithSink(producer, cfg.Kafka.Topic, settings.Ticker))
		log.Info("kafka snapshot publisher enabled",
			applogger.Strings("brokers", cfg.Kafka.Brokers),
			applogger.String("topic", cfg.Kafka.Topic))
	}
	bcast := broadcast.New(cfg.Broadcast.SubscriberBuffer, log, broadcastOpts...)

	orch := pipeline.New(pipeline.Deps{
		Source:      source,
		Minute:      minuteModel,
		Long:        longModel,
		Engine:      tradesignal.New(settings.BuyMultiplier, settings.SellMultiplier),
		Simulator:   portfolio.New(settings.ChartPoints),
		Broadcaster: bcast,
		Metrics:     rec,
		Log:         log,
		Settings:    settings,
	})

	return &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		producer: producer,
		orch:     orch,
		bcast:    bcast,
	}, nil
}

// Run starts the refresh loop and HTTP server and blocks until a
// shutdown signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(handlers{
		api.NewPipelineHandler(a.log, a.orch),
		api.NewWSHandler(a.log, a.bcast),
	},
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	go a.orch.Run(ctx)
	a.log.Info("pipeline started", applogger.String("ticker", a.orch.Settings().Ticker))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}
	a.log.Info("http server listening", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
	return nil
}

// handlers registers several route groups as one xhttp.Handler.
type handlers []xhttp.Handler

func (hs handlers) RegisterRoutes(e *echo.Echo) {
	for _, h := range hs {
		h.RegisterRoutes(e)
	}
}
