package schedule

import (
	"context"
	"log/slog"
	"time"

	"occasions/internal/occasion"
	"occasions/internal/types"
)

// namePrefix keeps schedule names stable for the lifetime of a subject.
const namePrefix = "event-user-"

// Name returns the schedule name for a subject id.
func Name(subjectID string) string {
	return namePrefix + subjectID
}

// ScheduleRegistry is the timer-service contract the Coordinator drives.
type ScheduleRegistry interface {
	Arm(ctx context.Context, name string, at time.Time, payload types.FiringMessage) error
	Disarm(ctx context.Context, name string) error
}

// Coordinator keeps a subject's pending schedule aligned with its record.
// Arm is idempotent and is called on create, update and after every
// delivery.
type Coordinator struct {
	registry ScheduleRegistry
	clock    types.Clock
	disabled bool
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator. When disabled is true Arm and Disarm
// only log, which is how offline runs work without a timer service.
func NewCoordinator(registry ScheduleRegistry, clock types.Clock, disabled bool, logger *slog.Logger) *Coordinator {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry: registry,
		clock:    clock,
		disabled: disabled,
		logger:   logger,
	}
}

// NextFiring returns the instant the subject's schedule would be armed for
// right now.
func (c *Coordinator) NextFiring(subject *types.Subject) (time.Time, error) {
	return occasion.NextOccurrence(subject.Birthday, subject.TimeZone, c.clock.Now())
}

// Arm computes the subject's next occasion and arms or replaces its
// schedule. Registry failures are returned unchanged.
func (c *Coordinator) Arm(ctx context.Context, subject *types.Subject) error {
	name := Name(subject.ID)

	if c.disabled {
		c.logger.InfoContext(ctx, "scheduler disabled, skipping arm",
			"subject_id", subject.ID, "schedule_name", name)
		return nil
	}

	at, err := c.NextFiring(subject)
	if err != nil {
		return err
	}
	log := c.logger.With("subject_id", subject.ID, "schedule_name", name, "fire_at", at)

	payload := types.FiringMessage{SubjectID: subject.ID, Type: types.FiringTypeOccasion}
	if err := c.registry.Arm(ctx, name, at, payload); err != nil {
		return err
	}

	log.InfoContext(ctx, "occasion armed")
	return nil
}

// Disarm removes any pending schedule for the subject.
func (c *Coordinator) Disarm(ctx context.Context, subjectID string) error {
	name := Name(subjectID)
	log := c.logger.With("subject_id", subjectID, "schedule_name", name)

	if c.disabled {
		log.InfoContext(ctx, "scheduler disabled, skipping disarm")
		return nil
	}

	if err := c.registry.Disarm(ctx, name); err != nil {
		return err
	}

	log.InfoContext(ctx, "occasion disarmed")
	return nil
}
