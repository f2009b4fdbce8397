package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Deployer/internal/api"
	"github.com/shaiso/Deployer/internal/config"
	"github.com/shaiso/Deployer/internal/connector"
	"github.com/shaiso/Deployer/internal/container"
	"github.com/shaiso/Deployer/internal/diagnostics"
	"github.com/shaiso/Deployer/internal/mq"
	"github.com/shaiso/Deployer/internal/pipeline"
	"github.com/shaiso/Deployer/internal/repo"
	"github.com/shaiso/Deployer/internal/telemetry"
)

// localTransactionsService — сервис интеграции транзакций автономного сервера.
const localTransactionsService = "transactions.local"

var startTime = time.Now()

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(telemetry.LogConfig{Level: cfg.Log.Level, Format: cfg.Log.Format})
	logger.Info("starting deployer-server",
		"workers", cfg.Workers,
		"concurrency", cfg.Concurrency,
		"appclient", cfg.AppClient,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("deployer-server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)

	var (
		observers []container.Observer
		recorders []pipeline.Recorder
		store     repo.DeploymentStore
	)

	// Журнал deployments
	if cfg.DBURL != "" {
		pool, err := repo.NewPool(ctx, cfg.DBURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		store = repo.NewDeploymentRepo(pool)
		logger.Info("connected to database")
	} else {
		store = repo.NewMemoryDeploymentRepo()
		logger.Info("using in-memory deployment journal")
	}
	recorders = append(recorders, store)

	// Шина событий
	if cfg.RabbitMQURL != "" {
		conn, err := mq.NewConnection(mq.ConnectionConfig{
			URL:       cfg.RabbitMQURL,
			OnConnect: mq.DeclareTopology,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer conn.Close()
		events := mq.NewEventPublisher(mq.NewPublisher(conn, logger), logger)
		observers = append(observers, events)
		recorders = append(recorders, events)
		logger.Info("connected to rabbitmq", "topology", mq.TopologyInfo())
	}

	c := container.New(container.Config{
		Workers:   cfg.Workers,
		Observers: observers,
		Metrics:   metrics,
		Logger:    logger,
	})

	activator := connector.NewActivator(connector.Config{
		AppClient:               cfg.AppClient,
		LegacySecurityAvailable: cfg.LegacySecurityAvailable,
	}, logger)
	if err := activator.ActivateServices(c); err != nil {
		return err
	}
	err := c.AddService(localTransactionsService, connector.LocalTransactions{}).
		Provides(connector.CapabilityTransactionIntegration).
		Install()
	if err != nil {
		return fmt.Errorf("install %s: %w", localTransactionsService, err)
	}

	chain := pipeline.NewChain()
	if err := activator.ActivateProcessors(chain); err != nil {
		return err
	}
	p := chain.Build(pipeline.Config{
		Container:   c,
		Recorders:   recorders,
		Concurrency: cfg.Concurrency,
		Metrics:     metrics,
		Logger:      logger,
	})

	reporter := diagnostics.New(diagnostics.Config{
		Source:   c,
		Schedule: cfg.DiagnosticsSchedule,
		Metrics:  metrics,
		Logger:   logger,
	})
	diagDone := make(chan struct{})
	go func() {
		defer close(diagDone)
		if cfg.DiagnosticsSchedule == "" {
			return
		}
		if err := reporter.Run(ctx); err != nil {
			logger.Error("diagnostics error", "error", err)
		}
	}()

	handler := api.NewHandler(api.Config{
		Pipeline:    p,
		Store:       store,
		Diagnostics: reporter,
		Logger:      logger,
	})

	if len(cfg.Deployments) > 0 {
		archives := make([]*connector.Archive, 0, len(cfg.Deployments))
		for _, file := range cfg.Deployments {
			a, err := connector.LoadArchive(file)
			if err != nil {
				return err
			}
			archives = append(archives, a)
		}
		// Упавшие архивы не мешают старту сервера
		if err := handler.DeployArchives(ctx, archives); err != nil {
			logger.Warn("startup deployments failed", "error", err)
		}
	}

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Ожидаем сигнал завершения или падение сервера
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
		cancel()
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	handler.UndeployAll(shutdownCtx)
	if err := c.Shutdown(shutdownCtx); err != nil {
		logger.Error("container shutdown error", "error", err)
	}
	<-diagDone
	return nil
}
