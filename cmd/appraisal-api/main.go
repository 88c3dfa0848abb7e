// cmd/appraisal-api/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"loan-appraiser/internal/api"
	"loan-appraiser/internal/appraisal/apiclient"
	"loan-appraiser/internal/appraisal/intake"
	"loan-appraiser/internal/appraisal/repository"
	"loan-appraiser/internal/appraisal/search"
	"loan-appraiser/internal/appraisal/session"
	"loan-appraiser/internal/appraisal/submission"
	"loan-appraiser/internal/appraisal/wizard"
	"loan-appraiser/internal/common/auth"
	"loan-appraiser/internal/common/camunda"
	"loan-appraiser/internal/common/config"
	"loan-appraiser/internal/common/database"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/common/observability"
)

const pruneInterval = time.Minute

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
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
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting appraisal API...",
		zap.String("environment", cfg.App.Environment),
		zap.String("submissionMode", cfg.Submission.Mode),
		zap.String("sessionStore", cfg.Session.Store),
	)

	obs := observability.New("appraisal-api")
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []api.Option

	// --- Redis (sessions / tokens) ---
	var rdb *database.RedisClient
	if cfg.Session.Store == config.StoreRedis || cfg.Submission.TokenStore == config.StoreRedis {
		rdb = database.NewRedis(cfg.Database.Redis)
		err = retryWithBackoff(func() error { return rdb.Ping(ctx) }, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rdb.Close()
		opts = append(opts, api.WithCheck("redis", rdb.Ping))
		zapLog.Info("Redis connected successfully")
	}

	// --- PostgreSQL (applications, reports) ---
	var repo *repository.Repository
	if cfg.Database.Postgres.Host != "" {
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()

		repo = repository.New(pg.DB, log)
		if err := repo.Migrate(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		opts = append(opts, api.WithReports(repo), api.WithCheck("postgres", pg.Ping))
		zapLog.Info("PostgreSQL connected successfully")
	}

	// --- Elasticsearch (search) ---
	var index *search.Index
	if url := cfg.Database.Elasticsearch.GetURL(); url != "" {
		var es *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		if err := es.EnsureIndex(ctx, cfg.Database.Elasticsearch.Index, search.Mapping); err != nil {
			zapLog.Fatal("search index setup failed", zap.Error(err))
		}
		index = search.New(es.Client, cfg.Database.Elasticsearch.Index)
		opts = append(opts, api.WithSearch(index), api.WithCheck("elasticsearch", es.Ping))
		zapLog.Info("Elasticsearch connected successfully", zap.String("index", index.Name()))
	}

	// --- Submission collaborator ---
	var submitter submission.Submitter
	switch cfg.Submission.Mode {
	case config.SubmissionModeRemote:
		var tokens auth.TokenStore = auth.NewMemoryTokenStore(auth.Tokens{
			Access:  os.Getenv("APPRAISAL_API_ACCESS_TOKEN"),
			Refresh: os.Getenv("APPRAISAL_API_REFRESH_TOKEN"),
		})
		if cfg.Submission.TokenStore == config.StoreRedis {
			tokens = auth.NewRedisTokenStore(rdb.Client, cfg.App.Name+":tokens:")
		}
		submitter = apiclient.New(cfg.Submission.BaseURL, config.GetDuration(cfg.Submission.Timeout), tokens, log)
		zapLog.Info("Submitting to remote API", zap.String("baseURL", cfg.Submission.BaseURL))

	default:
		var zb *camunda.Client
		err = retryWithBackoff(func() error {
			var err error
			zb, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zb.Close()
		opts = append(opts, api.WithCheck("zeebe", zb.HealthCheck))

		intakeOpts := []intake.Option{intake.WithProcessStarter(zb)}
		if index != nil {
			intakeOpts = append(intakeOpts, intake.WithIndexer(index))
		}
		submitter = intake.New(repo, log, intakeOpts...)
		zapLog.Info("Submitting through local intake", zap.String("processId", cfg.Camunda.ProcessID))
	}

	// --- Sessions ---
	store, err := session.NewStore(cfg.Session, redisCmdable(rdb))
	if err != nil {
		zapLog.Fatal("session store setup failed", zap.Error(err))
	}
	handler := submission.NewHandler(submitter, log,
		submission.WithTracer(obs.Tracer()),
		submission.WithRecorder(obs),
	)
	sessions := session.NewManager(store, log, wizard.WithSubmitter(handler), wizard.WithLogger(log))
	defer sessions.Close()
	go prune(ctx, sessions, store, log)

	// --- HTTP server ---
	opts = append(opts, api.WithAllowedOrigins(cfg.Server.AllowedOrigins))
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.New(sessions, log, opts...).Routes(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, draining requests...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Appraisal API stopped gracefully")
}

// prune drops expired sessions from the live cache and, for the in-memory store,
// from the store itself.
func prune(ctx context.Context, sessions *session.Manager, store session.Store, log logger.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept := 0
			if mem, ok := store.(*session.MemoryStore); ok {
				swept = mem.Sweep()
			}
			pruned := sessions.Prune(ctx)
			if swept+pruned > 0 {
				log.Debug("sessions pruned", map[string]interface{}{
					"swept":  swept,
					"pruned": pruned,
					"live":   sessions.Live(),
				})
			}
		}
	}
}

func redisCmdable(c *database.RedisClient) redis.Cmdable {
	if c == nil {
		return nil
	}
	return c.Client
}
