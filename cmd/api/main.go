package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/Macrina/Listify-Agent-sub000/internal/adapters/http"
	"github.com/Macrina/Listify-Agent-sub000/internal/bootstrap"
	"github.com/Macrina/Listify-Agent-sub000/internal/config"
	"github.com/Macrina/Listify-Agent-sub000/internal/observability/logging"
	"github.com/Macrina/Listify-Agent-sub000/internal/observability/metrics"
)

const serviceName = "listify-api"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	os.Exit(run(cfg))
}

// run serves until a signal arrives or a server fails and returns the process
// exit code.
func run(cfg config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	pipelineMetrics := metrics.NewPipelineMetrics(serviceName, httpMetrics.Registry())

	app, err := bootstrap.New(ctx, cfg,
		bootstrap.WithObserver(pipelineMetrics),
		bootstrap.WithRetryHook(pipelineMetrics.ObserveRetry),
	)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		return 1
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, app.Extractor, app.Lists,
		httpadapter.WithExtractionRecorder(httpMetrics),
	).Handler()

	apiServer := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      httpMetrics.Middleware(serviceName, router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RunTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", httpMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api_listening", "port", cfg.APIPort, "store_driver", cfg.StoreDriver, "llm_provider", cfg.LLMProvider)
		return serve(apiServer)
	})
	g.Go(func() error {
		slog.Info("metrics_listening", "port", cfg.MetricsPort)
		return serve(metricsServer)
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil {
		slog.Error("server_error", "error", err)
		return 1
	}
	slog.Info("api_stopped")
	return 0
}

func serve(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
