package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/activities"
	"github.com/prime-labs/prime-orchestrator/internal/config"
	"github.com/prime-labs/prime-orchestrator/internal/db"
	"github.com/prime-labs/prime-orchestrator/internal/health"
	"github.com/prime-labs/prime-orchestrator/internal/httpapi"
	"github.com/prime-labs/prime-orchestrator/internal/llm"
	"github.com/prime-labs/prime-orchestrator/internal/research"
	"github.com/prime-labs/prime-orchestrator/internal/streaming"
	"github.com/prime-labs/prime-orchestrator/internal/taskstatus"
	"github.com/prime-labs/prime-orchestrator/internal/tools"
	"github.com/prime-labs/prime-orchestrator/internal/workflows"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Redis backs the task status store; without it the background task
	// API cannot function.
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Fatal("Invalid Redis URL", zap.String("url", cfg.Redis.URL), zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()
	statusStore := taskstatus.NewStore(rdb, cfg.Research.TaskStatusTTL, logger)

	// Postgres is optional: without it the query_database tool and
	// report persistence are disabled, everything else works.
	var dbClient *db.Client
	if cfg.Research.PersistReports {
		dbClient, err = db.NewClient(&db.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		}, logger)
		if err != nil {
			logger.Warn("Postgres unavailable, continuing without persistence", zap.Error(err))
			dbClient = nil
		} else {
			defer dbClient.Close()
		}
	}

	// Research pipeline: tool registry feeding the LLM client's tool loop.
	registry := tools.NewRegistry(cfg.Tools.ProjectRoot, toolDB(dbClient), logger)
	llmClient := llm.NewClient(llm.Config{
		BaseURL:            cfg.LLM.BaseURL,
		Model:              cfg.LLM.Model,
		APIKeyEnv:          cfg.LLM.APIKeyEnv,
		MaxTokens:          cfg.LLM.MaxTokens,
		Temperature:        cfg.LLM.Temperature,
		TopP:               cfg.LLM.TopP,
		Timeout:            cfg.LLM.Timeout,
		RateLimitPerSecond: cfg.LLM.RateLimitPerSecond,
		RateLimitBurst:     cfg.LLM.RateLimitBurst,
	}, registry, logger)
	pipeline := research.NewPipeline(llmClient, research.Options{
		SynthesisPreviewChars: cfg.Research.SynthesisPreviewChars,
	}, logger)

	streams := streaming.Get()

	// Temporal is optional too: without it the task endpoints answer
	// 503 while the synchronous endpoint keeps working.
	var temporalClient client.Client
	var wrk worker.Worker
	temporalClient, err = client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		logger.Warn("Temporal unavailable, background tasks disabled", zap.Error(err))
		temporalClient = nil
	} else {
		defer temporalClient.Close()

		wrk = worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{})
		wrk.RegisterWorkflow(workflows.ResearchWorkflow)
		wrk.RegisterActivity(activities.NewActivities(pipeline, statusStore, dbClient, streams, logger))
		if err := wrk.Start(); err != nil {
			logger.Fatal("Failed to start Temporal worker", zap.Error(err))
		}
		defer wrk.Stop()
		logger.Info("Temporal worker started", zap.String("task_queue", cfg.Temporal.TaskQueue))
	}

	// API server.
	apiMux := http.NewServeMux()
	httpapi.NewResearchHandler(pipeline, logger, cfg.Server.AuthToken).RegisterRoutes(apiMux)
	httpapi.NewTasksHandler(taskLauncher(temporalClient), statusStore, streams,
		cfg.Temporal.TaskQueue, logger, cfg.Server.AuthToken).RegisterRoutes(apiMux)
	httpapi.NewStreamingHandler(streams, logger, cfg.Server.AuthToken).RegisterRoutes(apiMux)

	apiSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      apiMux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // deep research runs are slow
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Server.Port))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Health and metrics on the admin port.
	hm := health.NewManager(logger)
	hm.Register("redis", true, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if dbClient != nil {
		hm.Register("postgres", false, func(ctx context.Context) error {
			return dbClient.Ping(ctx)
		})
	}
	if temporalClient != nil {
		hm.Register("temporal", false, func(ctx context.Context) error {
			_, err := temporalClient.CheckHealth(ctx, &client.CheckHealthRequest{})
			return err
		})
	}

	adminMux := http.NewServeMux()
	health.NewHTTPHandler(hm, logger).RegisterRoutes(adminMux)
	adminMux.Handle("/metrics", promhttp.Handler())
	adminSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HealthPort),
		Handler:      adminMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Admin server listening", zap.Int("port", cfg.Server.HealthPort))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Admin server failed", zap.Error(err))
		}
	}()

	// Block until shutdown signal.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("Shutting down", zap.String("signal", s.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown error", zap.Error(err))
	}
	if err := adminSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin server shutdown error", zap.Error(err))
	}
}

// toolDB unwraps the optional Postgres client for the tool registry.
func toolDB(c *db.Client) *sqlx.DB {
	if c == nil {
		return nil
	}
	return c.DB()
}

// taskLauncher converts a possibly-nil Temporal client into the narrow
// interface the task API takes. A typed nil inside the interface would
// defeat the handler's nil check.
func taskLauncher(c client.Client) httpapi.TaskLauncher {
	if c == nil {
		return nil
	}
	return c
}
