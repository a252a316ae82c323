// Package worker handles a single occasion firing: look the subject up,
// deliver the greeting and re-arm next year's schedule.
package worker

import (
	"context"
	"log/slog"
	"time"

	"occasions/internal/types"
)

// SubjectReader is the record-store lookup used by the worker. Implementations
// return an *types.AppError with ErrCodeNotFoundSubject for missing ids.
type SubjectReader interface {
	Get(ctx context.Context, id string) (*types.Subject, error)
}

// Sender delivers notification text.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Armer re-arms a subject's schedule.
type Armer interface {
	Arm(ctx context.Context, subject *types.Subject) error
}

// Metrics receives delivery telemetry. Implementations must not fail the
// firing.
type Metrics interface {
	RecordDeliveryLatency(ctx context.Context, d time.Duration)
}

// OccasionWorker processes firings. It holds no mutable state and is safe
// for concurrent use.
type OccasionWorker struct {
	subjects SubjectReader
	sender   Sender
	armer    Armer
	metrics  Metrics
	logger   *slog.Logger
}

// NewOccasionWorker creates an OccasionWorker. metrics may be nil.
func NewOccasionWorker(subjects SubjectReader, sender Sender, armer Armer, metrics Metrics, logger *slog.Logger) *OccasionWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &OccasionWorker{
		subjects: subjects,
		sender:   sender,
		armer:    armer,
		metrics:  metrics,
		logger:   logger,
	}
}

// GreetingText is the delivered message for a subject.
func GreetingText(subject *types.Subject) string {
	return "Hey, " + subject.DisplayName() + " it's your birthday"
}

// Handle processes one firing. It returns ErrCodeValidationMalformedFiring
// when the payload has no subject id, ErrCodeNotFoundSubject when the record
// is gone, and otherwise whatever the delivery or re-arm step returned.
// Nothing is retried here.
func (w *OccasionWorker) Handle(ctx context.Context, firing types.FiringMessage) error {
	if firing.SubjectID == "" {
		return types.NewAppError(types.ErrCodeValidationMalformedFiring, "firing payload has no subject id", nil)
	}

	log := types.LoggerFromContext(ctx, w.logger).With("subject_id", firing.SubjectID)

	subject, err := w.subjects.Get(ctx, firing.SubjectID)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := w.sender.Send(ctx, GreetingText(subject)); err != nil {
		return err
	}
	if w.metrics != nil {
		w.metrics.RecordDeliveryLatency(ctx, time.Since(start))
	}
	log.InfoContext(ctx, "occasion delivered")

	if err := w.armer.Arm(ctx, subject); err != nil {
		log.ErrorContext(ctx, "re-arm after delivery failed", "error", err)
		return err
	}
	return nil
}
