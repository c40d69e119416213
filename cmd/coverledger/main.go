package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CoverLedger/internal/config"
	"CoverLedger/internal/core"
	"CoverLedger/internal/ingestion"
	"CoverLedger/internal/observability"
	"CoverLedger/internal/oracle"
	"CoverLedger/internal/persistence"
	"CoverLedger/internal/projection"
	"CoverLedger/internal/query"
	"CoverLedger/internal/server"
	"CoverLedger/internal/state"

	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLoggerWithLevel("coverledger", observability.ParseLogLevel(cfg.LogLevel))
	if os.Getenv("GOGC") == "" {
		logger.Warn().Msg("GOGC not set, recommend GOGC=400 for production")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("CoverLedger exited with error")
	}
	logger.Info().Msg("CoverLedger shutdown complete")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	level := observability.ParseLogLevel(cfg.LogLevel)
	component := func(name string) zerolog.Logger {
		return observability.NewLoggerWithLevel(name, level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	// --- Redis (optional) ---
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}

	// --- NATS ---
	var (
		nc *nats.Conn
		js jetstream.JetStream
	)

	metrics := observability.NewMetrics()
	priceOracle, redisOracle := buildOracle(cfg, redisClient, metrics, component("oracle"))

	// Dependencies come up concurrently; any failure aborts startup.
	startup, startupCtx := errgroup.WithContext(ctx)
	startup.Go(func() error {
		if err := db.PingContext(startupCtx); err != nil {
			return fmt.Errorf("postgres ping: %w", err)
		}
		logger.Info().Msg("Postgres connected")
		return nil
	})
	startup.Go(func() error {
		conn, jetStream, err := ingestion.ConnectNATS(cfg.NATS.URL, component("nats"))
		if err != nil {
			return err
		}
		nc, js = conn, jetStream
		logger.Info().Msg("NATS connected")
		return nil
	})
	if redisOracle != nil {
		startup.Go(func() error {
			if err := redisOracle.Health(startupCtx); err != nil {
				return err
			}
			logger.Info().Msg("Redis connected")
			return nil
		})
	}
	if err := startup.Wait(); err != nil {
		if nc != nil {
			nc.Close()
		}
		return err
	}
	defer nc.Close()

	// --- Migrations ---
	if _, err := persistence.NewMigrator(db, migrationsFS(cfg), component("migrator")).Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// --- Deterministic core ---
	// The persist channel blocks (backpressure); the projection channel drops.
	persistCh := make(chan core.CoreOutput, cfg.Pipeline.PersistChanSize)
	projCh := make(chan core.CoreOutput, cfg.Pipeline.ProjectionChanSize)

	ledgerCore, err := core.NewDeterministicCore(core.CoreConfig{
		Admin:               state.Principal(cfg.Ledger.Admin),
		InitialFund:         cfg.Ledger.InitialFund,
		InitialYear:         cfg.Ledger.InitialYear,
		MaxRecords:          cfg.Ledger.MaxRecords,
		IdempotencyCapacity: cfg.Pipeline.IdempotencyLRUCapacity,
		Logger:              component("core"),
	}, persistCh, projCh, persistence.NewPostgresIdempotencyChecker(db), priceOracle, metrics)
	if err != nil {
		return err
	}

	// --- Recovery: snapshot + replay, then projections from the recovered state ---
	snapMgr := persistence.NewSnapshotManager(db)
	if _, err := persistence.Recover(ctx, ledgerCore, snapMgr, metrics, component("recovery")); err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	if err := projection.Rebuild(ctx, db, ledgerCore.CreateSnapshotState()); err != nil {
		return fmt.Errorf("rebuild projections: %w", err)
	}

	if err := ingestion.EnsureStreams(ctx, js, component("nats")); err != nil {
		return fmt.Errorf("ensure NATS streams: %w", err)
	}

	// --- Pipeline workers ---
	// They outlive the ingress so everything the core accepted gets written.
	pipeCtx, stopPipeline := context.WithCancel(context.Background())
	defer stopPipeline()

	publisher := ingestion.NewOutboundPublisher(js, cfg.Pipeline.PublishChanSize, metrics, component("publisher"))
	persistWorker := persistence.NewPersistenceWorker(db, persistCh,
		cfg.Pipeline.PersistBatchSize, cfg.Pipeline.PersistFlushTimeout, metrics, component("persistence"))
	persistWorker.OnFlush(publisher.Enqueue)
	projWorker := projection.NewProjectionWorker(db, projCh, metrics, component("projection"))

	var pipeline errgroup.Group
	pipeline.Go(func() error { return persistWorker.Run(pipeCtx) })
	pipeline.Go(func() error { return projWorker.Run(pipeCtx) })
	publisherDone := make(chan error, 1)
	go func() { publisherDone <- publisher.Run(pipeCtx) }()

	// --- Ingress and serving ---
	rawCh := make(chan ingestion.RawEvent, cfg.Pipeline.IngestChanSize)
	subscriber := ingestion.NewNATSSubscriber(js, rawCh, component("nats"))
	processor := ingestion.NewCommandProcessor(ledgerCore, rawCh, metrics, component("ingestion"))

	snapshotter := persistence.NewSnapshotter(ledgerCore, snapMgr, cfg.Pipeline.SnapshotInterval, metrics, component("snapshot"))
	healthChecker := observability.NewHealthChecker()
	grpcServer := server.NewGRPCServer(cfg.Server.GRPCAddr, cfg.Server.HTTPAddr, &server.ServerDeps{
		Core:          ledgerCore,
		DB:            db,
		QueryService:  query.NewQueryService(db, cfg.Ledger.InitialFund),
		SnapshotMgr:   snapMgr,
		Snapshotter:   snapshotter,
		HealthChecker: healthChecker,
		Metrics:       metrics,
		Logger:        component("server"),
	})

	serving, serveCtx := errgroup.WithContext(ctx)
	serving.Go(func() error { return ignoreCanceled(processor.Run(serveCtx)) })
	serving.Go(func() error { return ignoreCanceled(snapshotter.Run(serveCtx)) })
	serving.Go(func() error { return grpcServer.StartGRPC(serveCtx) })
	serving.Go(func() error { return grpcServer.StartHTTPGateway(serveCtx) })
	serving.Go(func() error { return serveMetrics(serveCtx, cfg.Server.MetricsAddr, logger) })
	serving.Go(func() error {
		monitorChannels(serveCtx, metrics, map[string]func() (int, int){
			"persist":    func() (int, int) { return len(persistCh), cap(persistCh) },
			"projection": func() (int, int) { return len(projCh), cap(projCh) },
			"ingest":     func() (int, int) { return len(rawCh), cap(rawCh) },
		})
		return nil
	})

	if err := subscriber.Subscribe(serveCtx, ingestion.DefaultSubjects()); err != nil {
		stop()
		_ = serving.Wait()
		return fmt.Errorf("nats subscribe: %w", err)
	}

	healthChecker.SetReady(true)
	logger.Info().
		Int64("sequence", ledgerCore.GetSequence()).
		Str("grpc", cfg.Server.GRPCAddr).
		Str("http", cfg.Server.HTTPAddr).
		Str("metrics", cfg.Server.MetricsAddr).
		Msg("CoverLedger ready")

	// --- Graceful shutdown ---
	// Stop ingress, wait for the servers, flush the pipeline, then snapshot.
	<-serveCtx.Done()
	healthChecker.SetReady(false)
	logger.Info().Msg("shutting down")

	subscriber.Stop()
	stop()
	serveErr := serving.Wait()
	if serveErr != nil {
		logger.Error().Err(serveErr).Msg("service failed")
	}

	close(persistCh)
	close(projCh)
	if err := pipeline.Wait(); err != nil {
		logger.Error().Err(err).Msg("pipeline drain failed")
	}
	stopPipeline()
	<-publisherDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := snapshotter.TakeSnapshot(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("final snapshot failed")
	} else {
		logger.Info().Int64("sequence", ledgerCore.GetSequence()).Msg("final snapshot saved")
	}

	return serveErr
}

// buildOracle prefers Redis-published prices, falling back to the configured
// default, behind a short-lived cache. The Redis oracle is nil without a client.
func buildOracle(
	cfg *config.Config,
	client *redis.Client,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (oracle.PriceOracle, *oracle.Redis) {
	fixed := oracle.NewFixed(cfg.Oracle.DefaultValue)
	if client == nil {
		logger.Info().Int64("value", cfg.Oracle.DefaultValue).Msg("using fixed price oracle")
		return fixed, nil
	}

	redisOracle := oracle.NewRedis(client,
		oracle.WithFallback(fixed),
		oracle.WithMaxAge(cfg.Oracle.MaxAge),
		oracle.WithMetrics(metrics),
	)
	if cfg.Oracle.CacheTTL <= 0 {
		return redisOracle, redisOracle
	}
	return oracle.NewCached(redisOracle, cfg.Oracle.CacheTTL, metrics), redisOracle
}

func migrationsFS(cfg *config.Config) fs.FS {
	if cfg.Postgres.MigrationsDir != "" {
		return os.DirFS(cfg.Postgres.MigrationsDir)
	}
	return persistence.MigrationsFS()
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func monitorChannels(ctx context.Context, metrics *observability.Metrics, channels map[string]func() (int, int)) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, stat := range channels {
				size, capacity := stat()
				metrics.SetChannelMetrics(name, size, capacity)
			}
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
