// Package main is the entry point for the occasions subject API.
//
// It loads configuration, wires the record store, the schedule coordinator
// and metrics, mounts the subject routes on the core chassis and serves them.
//
// Inside AWS Lambda, API Gateway proxy events reach the chi router through
// chiadapter. Anywhere else it runs as a plain HTTP server with graceful
// shutdown on SIGINT/SIGTERM.
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

	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"

	"occasions/internal/api/handlers"
	"occasions/internal/app"
	"occasions/internal/config"
	"occasions/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel).With("service", cfg.Service, "component", "api")
	logger.Info("occasions API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	deps, err := app.Build(context.Background(), cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("wiring dependencies: %w", err)
	}

	srv, err := newServer(cfg, logger, deps)
	if err != nil {
		deps.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// newServer builds the chassis and mounts the subject routes.
func newServer(cfg *config.Config, logger *slog.Logger, deps *app.Deps) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}

	srv.Metrics = deps.Metrics
	srv.HealthProbes = append(srv.HealthProbes, core.ProbeFunc{ProbeName: "store", Fn: deps.Store.Ping})
	srv.Closers = append(srv.Closers, deps.Close)

	subjects := handlers.NewSubjectHandler(deps.Store, deps.Coordinator, srv.Validator, nil, logger)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, subjects.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

// isLambdaEnvironment reports whether the process runs inside the Lambda
// runtime.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// runLambda bridges API Gateway proxy events to the router. lambda.Start
// never returns.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	adapter := chiadapter.New(srv.Router())
	logger.Info("serving API Gateway proxy events")
	lambda.Start(adapter.ProxyWithContext)
	return nil
}

func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
