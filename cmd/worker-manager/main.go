// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"loan-appraiser/internal/appraisal/repository"
	"loan-appraiser/internal/appraisal/search"
	"loan-appraiser/internal/common/aws"
	"loan-appraiser/internal/common/camunda"
	"loan-appraiser/internal/common/config"
	"loan-appraiser/internal/common/database"
	"loan-appraiser/internal/common/logger"
	"loan-appraiser/internal/common/observability"

	ia "loan-appraiser/internal/workers/appraisal/index-application"
	sa "loan-appraiser/internal/workers/appraisal/score-application"
	sn "loan-appraiser/internal/workers/appraisal/send-notification"
)

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

	zapLog.Info("Starting worker manager...")

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zb *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zb, err = camunda.NewClientWithConfig(camunda.ConfigFrom(cfg.Camunda))
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
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

	repo := repository.New(pg.DB, log)
	if err := repo.Migrate(ctx); err != nil {
		zapLog.Fatal("schema migration failed", zap.Error(err))
	}
	zapLog.Info("PostgreSQL connected successfully")

	manager := camunda.NewWorkerManager(zb.GetClient(), log, camunda.WithJobRecorder(obs))

	// --- score-application ---
	scoreCfg := sa.FromAppConfig(cfg)
	if err := scoreCfg.Validate(); err != nil {
		zapLog.Fatal("invalid score-application config", zap.Error(err))
	}
	manager.Register(sa.TaskType, workerConfig(cfg, sa.TaskType, scoreCfg.Enabled),
		sa.NewHandler(scoreCfg, repo, log).Handle)

	// --- index-application ---
	indexCfg := ia.FromAppConfig(cfg)
	if indexCfg.Enabled && cfg.Database.Elasticsearch.GetURL() != "" {
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
		if err := es.EnsureIndex(ctx, indexCfg.Index, search.Mapping); err != nil {
			zapLog.Fatal("search index setup failed", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")

		index := search.New(es.Client, indexCfg.Index)
		manager.Register(ia.TaskType, workerConfig(cfg, ia.TaskType, true),
			ia.NewHandler(indexCfg, repo, index, log).Handle)
	} else {
		zapLog.Info("index-application disabled: no elasticsearch configured")
	}

	// --- send-notification ---
	notifyCfg := sn.FromAppConfig(cfg)
	var (
		email sn.EmailSender
		sms   sn.SMSSender
	)
	if notifyCfg.EmailEnabled || notifyCfg.SMSEnabled {
		awsCfg, err := aws.LoadConfig(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config load failed", zap.Error(err))
		}
		if notifyCfg.EmailEnabled {
			email = aws.NewSESClient(awsCfg, notifyCfg.FromEmail)
		}
		if notifyCfg.SMSEnabled {
			sms = aws.NewSNSClient(awsCfg, cfg.Integrations.AWS.SNS.DefaultSMSSenderID)
		}
		zapLog.Info("AWS clients initialized",
			zap.Bool("ses", notifyCfg.EmailEnabled),
			zap.Bool("sns", notifyCfg.SMSEnabled),
		)
	}
	manager.Register(sn.TaskType, workerConfig(cfg, sn.TaskType, notifyCfg.Enabled),
		sn.NewHandler(notifyCfg, repo, email, sms, log).Handle)

	zapLog.Info("Workers registered", zap.Int("count", manager.Count()))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		rctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := pg.Ping(rctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "postgres: "+err.Error())
			return
		}
		if err := zb.HealthCheck(rctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "zeebe: "+err.Error())
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Server.Address, Handler: mux}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	manager.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down health server", zap.Error(err))
	}
	if err := zb.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// workerConfig returns the configured worker settings with the handler's own switch applied.
func workerConfig(cfg *config.Config, taskType string, enabled bool) config.WorkerConfig {
	wc := config.GetWorkerConfig(cfg, taskType)
	wc.Enabled = wc.Enabled && enabled
	return wc
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
