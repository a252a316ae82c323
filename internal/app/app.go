// Package app holds the cold-start wiring shared by every entrypoint:
// configuration, the JSON logger, AWS clients, the record store, the
// schedule coordinator and the metrics recorder.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"

	"occasions/internal/config"
	"occasions/internal/metrics"
	"occasions/internal/schedule"
	"occasions/internal/store"
	"occasions/internal/types"
)

// NewLogger creates a JSON slog.Logger on stdout at the given level.
// Unknown levels fall back to info.
func NewLogger(level string) *slog.Logger {
	return newLoggerTo(os.Stdout, level)
}

func newLoggerTo(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// LoadConfig picks the secret provider for the current environment and loads
// the configuration. Local runs read secrets straight from the environment.
func LoadConfig() (*config.Config, error) {
	var provider config.SecretProvider = config.NewEnvVarProvider()
	if os.Getenv("APP_ENV") != "local" {
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
		provider = config.NewSSMProvider(region)
	}
	return config.LoadConfig(provider)
}

// Deps are the long-lived dependencies built once per process.
type Deps struct {
	Config      *config.Config
	Logger      *slog.Logger
	AWS         aws.Config
	Store       store.SubjectStore
	Coordinator *schedule.Coordinator
	Metrics     metrics.Recorder

	closeStore func()
}

// Close releases the record store.
func (d *Deps) Close() {
	if d.closeStore != nil {
		d.closeStore()
	}
}

// Build wires the shared dependencies. clock may be nil for wall time.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, clock types.Clock) (*Deps, error) {
	awsCfg, err := cfg.AWS.LoadAWS(ctx)
	if err != nil {
		return nil, err
	}

	subjects, closeStore, err := store.Open(ctx, cfg.Store, awsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening record store: %w", err)
	}

	registry := schedule.NewRegistry(scheduler.NewFromConfig(awsCfg), cfg.Scheduler, logger)
	coordinator := schedule.NewCoordinator(registry, clock, cfg.Scheduler.Disabled, logger)

	recorder := metrics.New(
		cfg.Observability.MetricsEnabled,
		cloudwatch.NewFromConfig(awsCfg),
		cfg.Observability.MetricNamespace,
		logger,
	)

	return &Deps{
		Config:      cfg,
		Logger:      logger,
		AWS:         awsCfg,
		Store:       subjects,
		Coordinator: coordinator,
		Metrics:     recorder,
		closeStore:  closeStore,
	}, nil
}
