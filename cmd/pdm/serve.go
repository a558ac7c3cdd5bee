package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/xela07ax/pdm-core/internal/alerting"
	"github.com/xela07ax/pdm-core/internal/domain"
	"github.com/xela07ax/pdm-core/internal/failure"
	"github.com/xela07ax/pdm-core/internal/features"
	"github.com/xela07ax/pdm-core/internal/history"
	"github.com/xela07ax/pdm-core/internal/inference"
	"github.com/xela07ax/pdm-core/internal/infra"
	"github.com/xela07ax/pdm-core/internal/infra/auth"
	"github.com/xela07ax/pdm-core/internal/ingest"
	"github.com/xela07ax/pdm-core/internal/pipeline"
	"github.com/xela07ax/pdm-core/internal/reporting"
	"github.com/xela07ax/pdm-core/internal/repository/postgres"
	"github.com/xela07ax/pdm-core/internal/telemetry"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Consume sensor telemetry, detect anomalies and serve reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := infra.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			logger, err := infra.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *infra.Config, logger *zap.Logger) error {
	// 1. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	// 2. Инфраструктура и ресурсы (все опциональны)
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	var db *sql.DB
	if cfg.Database.URL != "" {
		var err error
		if db, err = postgres.Open(ctx, cfg.Database.URL, postgres.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}); err != nil {
			return err
		}
		defer db.Close()
	}

	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		var err error
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("pdm-core"),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats disconnected", zap.Error(err))
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
			}),
		)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
	}

	// 3. Инференс
	gateway, closeBackend, err := buildGateway(cfg.Inference, metrics, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	// 4. Алерты: лог всегда, остальное по конфигу
	hub := alerting.NewHub(logger, cfg.Server.AllowedOrigins...)
	go hub.Run(ctx)

	sinks := alerting.MultiSink{alerting.NewLogSink(logger), hub}
	if rdb != nil {
		sinks = append(sinks, alerting.NewRedisSink(rdb))
	}
	if nc != nil {
		sinks = append(sinks, alerting.NewNATSSink(nc))
	}
	var journal *alerting.Journal
	if db != nil {
		journal = alerting.NewJournal(postgres.NewAlertRepo(db), alerting.JournalConfig{
			BufferSize:    cfg.Pipeline.JournalBufferSize,
			BatchSize:     cfg.Pipeline.JournalBatchSize,
			FlushInterval: cfg.Pipeline.JournalFlushInterval,
		}, metrics, logger)
		journal.Start()
		sinks = append(sinks, journal)
	}
	dispatcher := alerting.NewDispatcher(sinks, metrics, logger)

	// 5. Порог детекции меняется на лету через Redis
	thresholds := infra.NewThresholdWatcher(rdb, cfg.Pipeline.DetectionThreshold, logger)
	if err := thresholds.Init(ctx); err != nil {
		logger.Warn("using default detection threshold", zap.Error(err))
	}
	go thresholds.StartListener(ctx)

	// 6. Ядро конвейера
	window := features.NewWindow(cfg.Pipeline.WindowCapacity)
	store := history.NewStore(cfg.Pipeline.HistoryCapacity, metrics)
	opts := []pipeline.Option{
		pipeline.WithThresholds(thresholds),
		pipeline.WithMetrics(metrics),
		pipeline.WithFailureEvery(cfg.Pipeline.FailureEvery),
		pipeline.WithHistoryLimit(cfg.Pipeline.FailureHistoryLimit),
	}
	var readings *postgres.ReadingRepo
	if db != nil {
		readings = postgres.NewReadingRepo(db)
		opts = append(opts, pipeline.WithHistoryProvider(readings))
	}
	pipe := pipeline.New(
		window,
		gateway,
		failure.NewEstimator(gateway, cfg.Pipeline.FailureFeatureWindow, logger),
		dispatcher,
		store,
		logger,
		opts...,
	)

	// 7. Ingestion
	var subscriber *ingest.NATSSubscriber
	if nc != nil {
		var proc ingest.Processor = pipe
		if readings != nil {
			proc = &persistingProcessor{repo: readings, next: pipe, logger: logger}
		}
		subscriber = ingest.NewNATSSubscriber(nc, cfg.NATS.SensorsSubject, cfg.NATS.MaxInFlight, proc, logger)
		if err := subscriber.Start(ctx); err != nil {
			return err
		}
	} else {
		logger.Warn("nats url is empty, telemetry ingestion disabled")
	}

	// 8. HTTP: отчеты и метрики
	var validator auth.TokenValidator
	if len(cfg.Auth.PublicKey) > 0 {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			return fmt.Errorf("auth public key: %w", err)
		}
		validator = auth.NewRS256Validator(pub)
	} else {
		logger.Warn("auth public key is not configured, reporting API is open")
	}

	var health []reporting.Option
	if readings != nil {
		health = append(health, reporting.WithHealthCheck("postgres", readings.Ping))
	}
	if rdb != nil {
		health = append(health, reporting.WithHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	api := reporting.NewServer(logger, validator,
		reporting.NewReportHandler(store, gateway),
		reporting.NewOperationsHandler(pipe),
		hub,
		health...,
	)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	metricsSrv := &http.Server{
		Addr:    cfg.Metrics.Addr,
		Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}

	errCh := make(chan error, 2)
	for _, s := range []*http.Server{srv, metricsSrv} {
		go func(s *http.Server) {
			logger.Info("http server started", zap.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", s.Addr, err)
			}
		}(s)
	}

	// 9. Graceful Shutdown
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	// Даем 5 секунд на завершение запросов
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if subscriber != nil {
		subscriber.Stop()
	}
	for _, s := range []*http.Server{srv, metricsSrv} {
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", zap.String("addr", s.Addr), zap.Error(err))
		}
	}
	if journal != nil {
		journal.Stop()
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logger.Warn("nats drain failed", zap.Error(err))
		}
	}
	logger.Info("pdm core exited properly")
	return runErr
}

// buildGateway собирает шлюз: локальные модели из каталога плюс удаленный бэкенд за защитой.
func buildGateway(cfg infra.InferenceConfig, metrics *telemetry.Metrics, logger *zap.Logger) (*inference.Gateway, func(), error) {
	registry := inference.DefaultRegistry()
	if cfg.ModelDir != "" {
		if err := registry.LoadDir(cfg.ModelDir); err != nil {
			if cfg.Backend == "local" {
				return nil, nil, err
			}
			logger.Warn("local models not loaded", zap.Error(err))
		}
	}

	closer := func() {}
	var remote inference.Backend
	switch cfg.Backend {
	case "local":
	case "http":
		if cfg.URL == "" {
			return nil, nil, errors.New("inference.url is required for http backend")
		}
		remote = inference.NewHTTPBackend(cfg.URL, cfg.APIKey, &http.Client{Timeout: cfg.Timeout})
	case "grpc":
		if cfg.GRPCTarget == "" {
			return nil, nil, errors.New("inference.grpc_target is required for grpc backend")
		}
		conn, err := grpc.NewClient(cfg.GRPCTarget, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("grpc dial %s: %w", cfg.GRPCTarget, err)
		}
		closer = func() { _ = conn.Close() }
		remote = inference.NewGRPCBackend(conn)
	default:
		return nil, nil, fmt.Errorf("unknown inference backend %q", cfg.Backend)
	}

	if remote != nil {
		remote = inference.NewReliableBackend(remote, inference.ReliabilityConfig{
			Name:                cfg.Backend,
			RateLimit:           cfg.RateLimit,
			Burst:               cfg.RateBurst,
			Attempts:            cfg.RetryAttempts,
			MaxRequests:         cfg.CBMaxRequests,
			Interval:            cfg.CBInterval,
			OpenTimeout:         cfg.CBTimeout,
			ConsecutiveFailures: cfg.CBFailures,
		}, metrics, logger)
	}

	gw := inference.NewGateway(registry, remote, logger,
		inference.WithTimeout(cfg.Timeout),
		inference.WithTargetLatency(cfg.TargetLatency),
		inference.WithMetrics(metrics),
	)
	return gw, closer, nil
}

// persistingProcessor сохраняет замер в Postgres перед обработкой,
// чтобы прогноз отказа видел историю и после рестарта.
type persistingProcessor struct {
	repo   *postgres.ReadingRepo
	next   ingest.Processor
	logger *zap.Logger
}

func (p *persistingProcessor) Observe(ctx context.Context, r domain.SensorReading) {
	if err := p.repo.Append(ctx, r); err != nil {
		p.logger.Warn("failed to persist reading", zap.String("machine_id", r.MachineID), zap.Error(err))
	}
	p.next.Observe(ctx, r)
}
