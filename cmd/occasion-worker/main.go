// Package main is the entrypoint for the Occasion Worker Lambda function.
//
// The worker consumes the firing queue the Timer Service targets. Each
// message names one subject; the worker delivers that subject's greeting and
// arms next year's schedule.
//
// Cold start (main):
//  1. Load configuration and build the JSON logger.
//  2. Build the delivery client (circuit breaker, timeout, user agent).
//  3. Wire the record store, schedule coordinator and metrics.
//  4. Register Handler.Handle with lambda.Start.
//
// Batch semantics: the function is configured with ReportBatchItemFailures.
// Malformed payloads, firings for deleted subjects and subjects whose stored
// zone cannot be resolved are acknowledged and counted as dropped. Any other failure lists that message in
// BatchItemFailures so SQS redelivers only it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"occasions/internal/app"
	"occasions/internal/config"
	"occasions/internal/external"
	"occasions/internal/metrics"
	"occasions/internal/types"
	"occasions/internal/worker"
)

// Drop and failure reasons reported on the Reason dimension.
const (
	reasonMalformed  = "malformed"
	reasonNotFound   = "subject_not_found"
	reasonBadZone    = "invalid_timezone"
	reasonDelivery   = "delivery"
	reasonScheduler  = "scheduler"
	reasonStore      = "store"
	reasonUnexpected = "unexpected"
)

// FiringHandler processes one decoded firing.
type FiringHandler interface {
	Handle(ctx context.Context, firing types.FiringMessage) error
}

// Handler adapts SQS batches to the occasion worker.
type Handler struct {
	worker  FiringHandler
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// Handle processes every record independently and returns the ids of the
// ones SQS should redeliver.
func (h *Handler) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range event.Records {
		if err := h.processMessage(ctx, record); err != nil {
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

// processMessage returns an error only for failures worth retrying.
func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	logger := h.logger.With("message_id", record.MessageId)
	ctx = types.WithLogger(ctx, logger)

	if sent, ok := record.Attributes["SentTimestamp"]; ok {
		if sentAt, err := parseMillisTimestamp(sent); err == nil {
			h.metrics.RecordQueueLag(ctx, h.now().Sub(sentAt))
		}
	}

	var firing types.FiringMessage
	if err := json.Unmarshal([]byte(record.Body), &firing); err != nil {
		logger.Warn("dropping undecodable firing", "error", err)
		h.metrics.RecordFiringDropped(ctx, reasonMalformed)
		return nil
	}

	err := h.worker.Handle(ctx, firing)
	switch {
	case err == nil:
		h.metrics.RecordFiringDelivered(ctx)
		return nil

	case types.HasCode(err, types.ErrCodeValidationMalformedFiring):
		logger.Warn("dropping malformed firing", "error", err)
		h.metrics.RecordFiringDropped(ctx, reasonMalformed)
		return nil

	case types.HasCode(err, types.ErrCodeNotFoundSubject):
		logger.Info("dropping firing for deleted subject", "subject_id", firing.SubjectID)
		h.metrics.RecordFiringDropped(ctx, reasonNotFound)
		return nil

	case types.HasCode(err, types.ErrCodeValidationInvalidTimezone):
		// The stored zone can never resolve, so a redelivery would only
		// repeat the greeting.
		logger.Error("dropping firing for subject with unresolvable time zone",
			"subject_id", firing.SubjectID, "error", err)
		h.metrics.RecordFiringDropped(ctx, reasonBadZone)
		return nil
	}

	reason := failureReason(err)
	logger.Error("firing failed; message will be retried",
		"subject_id", firing.SubjectID,
		"reason", reason,
		"error", err,
	)
	h.metrics.RecordFiringFailed(ctx, reason)
	return err
}

func failureReason(err error) string {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return reasonUnexpected
	}
	switch appErr.Code {
	case types.ErrCodeUpstreamDelivery, types.ErrCodeUpstreamUnavailable, types.ErrCodeUpstreamRateLimited:
		return reasonDelivery
	case types.ErrCodeUpstreamScheduler:
		return reasonScheduler
	case types.ErrCodeInternalDB:
		return reasonStore
	default:
		return reasonUnexpected
	}
}

// parseMillisTimestamp parses the SQS SentTimestamp attribute (epoch ms).
func parseMillisTimestamp(ms string) (time.Time, error) {
	millis, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(millis), nil
}

// newDeliverySender validates the delivery endpoint and builds the sender.
func newDeliverySender(cfg config.DeliveryConfig) (*external.WebhookSender, error) {
	raw := cfg.URL.Unmask()
	if raw == "" {
		return nil, fmt.Errorf("DELIVERY_URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("DELIVERY_URL must be an absolute http(s) URL")
	}

	base := external.NewBaseClient(&http.Client{Timeout: cfg.Timeout}, "delivery", cfg.UserAgent)
	return external.NewWebhookSender(base, raw), nil
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.LogLevel).With("service", cfg.Service, "component", "occasion-worker")
	logger.Info("occasion worker initializing (cold start)",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
	)

	sender, err := newDeliverySender(cfg.Delivery)
	if err != nil {
		logger.Error("invalid delivery configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	deps, err := app.Build(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("failed to wire dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	handler := &Handler{
		worker:  worker.NewOccasionWorker(deps.Store, sender, deps.Coordinator, deps.Metrics, logger),
		metrics: deps.Metrics,
		logger:  logger,
		now:     time.Now,
	}

	logger.Info("occasion worker initialized",
		"store_driver", cfg.Store.Driver,
		"scheduler_disabled", cfg.Scheduler.Disabled,
		"delivery_timeout", cfg.Delivery.Timeout.String(),
	)

	lambda.Start(handler.Handle)
}
