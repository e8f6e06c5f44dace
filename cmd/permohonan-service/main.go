// cmd/permohonan-service/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"permohonan-service/internal/api"
	"permohonan-service/internal/audit"
	"permohonan-service/internal/cleanup"
	awsclient "permohonan-service/internal/common/aws"
	"permohonan-service/internal/common/camunda"
	"permohonan-service/internal/common/config"
	"permohonan-service/internal/common/database"
	commonhttp "permohonan-service/internal/common/http"
	"permohonan-service/internal/common/logger"
	"permohonan-service/internal/common/observability"
	"permohonan-service/internal/common/retry"
	"permohonan-service/internal/dispatch"
	"permohonan-service/internal/repository/postgres"
	"permohonan-service/internal/services/attachment"
	"permohonan-service/internal/services/catalog"
	"permohonan-service/internal/services/lifecycle"
	"permohonan-service/internal/storage"

	re "permohonan-service/internal/workers/audit/record-event"
	sd "permohonan-service/internal/workers/document/scan-document"
	fr "permohonan-service/internal/workers/submission/forward-review"
	sn "permohonan-service/internal/workers/submission/send-notification"

	"github.com/aws/aws-sdk-go-v2/aws"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync() //nolint:errcheck
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"version": cfg.App.Version,
	})

	if err := run(cfg, log); err != nil {
		log.Error("service stopped with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()
	if err := obs.EnableTracing(cfg.App.Name, cfg.Tracing.JaegerEndpoint, cfg.Tracing.SampleRatio); err != nil {
		log.Warn("tracing disabled", map[string]interface{}{"error": err.Error()})
	}

	readiness := map[string]api.ReadinessCheck{}

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err := retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		return err
	}
	defer pg.Close()
	readiness["postgres"] = pg.Ping
	log.Info("PostgreSQL connected successfully", nil)

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pg.DB); err != nil {
			return err
		}
		log.Info("database migrations applied", nil)
	}

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	if cfg.Database.Redis.Address != "" {
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			return err
		}
		defer rdb.Close()
		readiness["redis"] = rdb.Ping
		log.Info("Redis connected successfully", nil)
	}

	// --- Audit sink ---
	backends := audit.Backends{Postgres: audit.NewPostgresSink(pg.DB)}
	if cfg.Audit.Enabled && cfg.Audit.Backend == "elasticsearch" {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			return err
		}
		readiness["elasticsearch"] = es.Ping
		backends.Elasticsearch = audit.NewElasticsearchSink(es.Client, cfg.Audit.Index)
	}
	sink, err := audit.New(cfg.Audit, backends, log)
	if err != nil {
		return err
	}

	// --- AWS clients, only when a backend needs them ---
	var awsCfg aws.Config
	if cfg.Storage.Backend == "s3" || cfg.Notifications.Backend == sn.BackendSNS || cfg.Notifications.Backend == sn.BackendSES {
		awsCfg, err = awsclient.LoadConfig(ctx, cfg.AWS)
		if err != nil {
			return err
		}
	}

	// --- Document store ---
	var store storage.DocumentStore
	switch cfg.Storage.Backend {
	case "s3":
		store = storage.NewS3Store(awsclient.NewS3Client(awsCfg, cfg.AWS.Endpoint != ""), cfg.Storage.S3Bucket, cfg.Storage.S3Prefix)
	default:
		store = storage.NewLocalStore(cfg.Storage.LocalRoot)
	}

	// --- Catalog ---
	var cache catalog.Cache = catalog.NewMemoryCache()
	if rdb != nil {
		cache = catalog.NewRedisCache(rdb.Client)
	}
	catalogSvc := catalog.NewService(cfg.Catalog, cache, log)

	// --- Side-effect dispatcher ---
	var queue dispatch.Queue
	if cfg.Dispatch.Queue == "redis" {
		queue = dispatch.NewRedisQueue(rdb.Client, cfg.Dispatch.QueueKey)
	} else {
		log.Warn("using in-memory dispatch queue; pending side effects are lost on restart", nil)
		queue = dispatch.NewMemoryQueue()
	}
	policy := retry.Policy{
		MaxAttempts: cfg.Dispatch.MaxAttempts,
		Backoff:     config.GetDurations(cfg.Dispatch.Backoff),
	}
	dispatcher := dispatch.New(queue, sink, policy, log,
		dispatch.WithObservability(obs),
		dispatch.WithPollTimeout(config.GetDuration(cfg.Dispatch.PollTimeout)),
		dispatch.WithPromoteInterval(config.GetDuration(cfg.Dispatch.PromoteInterval)),
	)
	readiness["dispatch-queue"] = dispatcher.CheckQueue

	var zeebe *camunda.Client
	if cfg.Review.Backend == fr.BackendZeebe {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: cfg.Camunda.Plaintext,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, log, "Zeebe client initialization")
		if err != nil {
			return err
		}
		defer zeebe.Close()
		readiness["zeebe"] = zeebe.HealthCheck
	}

	if err := registerConsumers(cfg, dispatcher, sink, store, awsCfg, zeebe, log); err != nil {
		return err
	}

	// --- Domain services ---
	repo := postgres.NewRepository(pg.DB, log)
	lifecycleSvc := lifecycle.NewService(lifecycle.Deps{
		Repository:    repo,
		Directory:     postgres.NewDirectory(pg.DB),
		Catalog:       catalogSvc,
		Audit:         sink,
		Dispatcher:    dispatcher,
		Observability: obs,
	}, log)

	ledger := cleanup.NewPostgresLedger(pg.DB)
	attachments := attachment.NewManager(cfg.Uploads, attachment.Deps{
		Repository:   repo,
		Requirements: catalogSvc,
		Store:        store,
		Dispatcher:   dispatcher,
		Orphans:      ledger,
	}, log)

	// --- Orphan sweeper ---
	if cfg.Cleanup.Enabled {
		sweeper := cleanup.NewSweeper(ledger, store, cfg.Cleanup.BatchSize, log)
		c, err := sweeper.Schedule(cfg.Cleanup.Schedule, 5*time.Minute)
		if err != nil {
			return fmt.Errorf("schedule orphan sweeper: %w", err)
		}
		c.Start()
		defer c.Stop()
		log.Info("orphan sweeper scheduled", map[string]interface{}{"schedule": cfg.Cleanup.Schedule})
	}

	// --- Dispatcher workers ---
	dispatchDone := make(chan error, 1)
	go func() { dispatchDone <- dispatcher.Run(ctx, cfg.Dispatch.Concurrency) }()

	// --- HTTP server ---
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.New(lifecycleSvc, attachments, catalogSvc, cfg.Uploads.MaxSizeBytes, readiness, log).Routes(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received", nil)
	case err := <-serverErr:
		stop()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", map[string]interface{}{"error": err.Error()})
	}

	select {
	case err := <-dispatchDone:
		if err != nil {
			return err
		}
	case <-shutdownCtx.Done():
		log.Warn("dispatcher did not stop before the shutdown deadline", nil)
	}
	catalogSvc.Wait()

	log.Info("permohonan service stopped", nil)
	return nil
}

func registerConsumers(cfg *config.Config, d *dispatch.Dispatcher, sink audit.Sink, store storage.DocumentStore, awsCfg aws.Config, zeebe *camunda.Client, log logger.Logger) error {
	if config.IsWorkerEnabled(cfg, re.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, re.TaskType)
		d.Register(re.TaskType, re.NewHandler(sink, config.GetDuration(wcfg.Timeout), log))
	}

	if config.IsWorkerEnabled(cfg, sn.TaskType) {
		ncfg := sn.LoadConfig(cfg.Notifications)
		clients := sn.Clients{}
		switch ncfg.Backend {
		case sn.BackendSNS:
			clients.SNS = awsclient.NewSNSClient(awsCfg)
		case sn.BackendSES:
			clients.SES = awsclient.NewSESClient(awsCfg)
		default:
			clients.HTTP = commonhttp.NewClient("notification-gateway", ncfg.Timeout, ncfg.RatePerSecond)
		}
		h, err := sn.NewHandler(ncfg, clients, log)
		if err != nil {
			return err
		}
		d.Register(sn.TaskType, h)
	}

	if config.IsWorkerEnabled(cfg, fr.TaskType) {
		rcfg := fr.LoadConfig(cfg.Review)
		var starter fr.ProcessStarter
		if zeebe != nil {
			starter = zeebe
		}
		h, err := fr.NewHandler(rcfg, commonhttp.NewClient("review-queue", rcfg.Timeout, rcfg.RatePerSecond), starter, log)
		if err != nil {
			return err
		}
		d.Register(fr.TaskType, h)
	}

	if cfg.Antivirus.Enabled && config.IsWorkerEnabled(cfg, sd.TaskType) {
		acfg := sd.LoadConfig(cfg.Antivirus)
		scanner := sd.NewHTTPScanner(commonhttp.NewClient("antivirus", acfg.Timeout, 0), acfg.URL)
		d.Register(sd.TaskType, sd.NewHandler(acfg, store, scanner, sink, log))
	}
	return nil
}
