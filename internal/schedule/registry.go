// Package schedule keeps exactly one pending one-shot schedule per subject
// in EventBridge Scheduler and computes when it should fire.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	schedtypes "github.com/aws/aws-sdk-go-v2/service/scheduler/types"

	"occasions/internal/config"
	"occasions/internal/types"
)

// atExpressionLayout renders one-time schedule expressions: at(yyyy-mm-ddThh:mm:ss).
const atExpressionLayout = "2006-01-02T15:04:05"

// expressionTimezone pins the at() expression to UTC; instants are always
// computed in UTC before they reach the registry.
const expressionTimezone = "UTC"

// SchedulerAPI is the subset of the EventBridge Scheduler client used by
// Registry.
type SchedulerAPI interface {
	CreateSchedule(ctx context.Context, params *scheduler.CreateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error)
	UpdateSchedule(ctx context.Context, params *scheduler.UpdateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.UpdateScheduleOutput, error)
	DeleteSchedule(ctx context.Context, params *scheduler.DeleteScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.DeleteScheduleOutput, error)
}

// Registry stores named one-shot schedules whose target is the firing queue.
// It holds no local state; the service enforces name uniqueness.
type Registry struct {
	client    SchedulerAPI
	group     string
	targetARN string
	roleARN   string
	logger    *slog.Logger
}

// NewRegistry creates a Registry for the configured group and target.
func NewRegistry(client SchedulerAPI, cfg config.SchedulerConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		client:    client,
		group:     cfg.Group,
		targetARN: cfg.TargetARN,
		roleARN:   cfg.RoleARN,
		logger:    logger,
	}
}

// Arm creates the schedule, or replaces it when one with the same name is
// already pending. Replacing is done with the identical definition.
func (r *Registry) Arm(ctx context.Context, name string, at time.Time, payload types.FiringMessage) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("schedule: failed to marshal firing payload: %w", err)
	}

	expr := "at(" + at.UTC().Format(atExpressionLayout) + ")"
	window := &schedtypes.FlexibleTimeWindow{Mode: schedtypes.FlexibleTimeWindowModeOff}
	target := &schedtypes.Target{
		Arn:     aws.String(r.targetARN),
		RoleArn: aws.String(r.roleARN),
		Input:   aws.String(string(body)),
	}

	_, err = r.client.CreateSchedule(ctx, &scheduler.CreateScheduleInput{
		Name:                       aws.String(name),
		GroupName:                  aws.String(r.group),
		ScheduleExpression:         aws.String(expr),
		ScheduleExpressionTimezone: aws.String(expressionTimezone),
		FlexibleTimeWindow:         window,
		ActionAfterCompletion:      schedtypes.ActionAfterCompletionDelete,
		Target:                     target,
	})
	if err == nil {
		r.logger.DebugContext(ctx, "schedule created", "schedule_name", name, "expression", expr)
		return nil
	}

	var conflict *schedtypes.ConflictException
	if !errors.As(err, &conflict) {
		return types.NewAppError(types.ErrCodeUpstreamScheduler,
			fmt.Sprintf("failed to create schedule %s", name), err)
	}

	_, err = r.client.UpdateSchedule(ctx, &scheduler.UpdateScheduleInput{
		Name:                       aws.String(name),
		GroupName:                  aws.String(r.group),
		ScheduleExpression:         aws.String(expr),
		ScheduleExpressionTimezone: aws.String(expressionTimezone),
		FlexibleTimeWindow:         window,
		ActionAfterCompletion:      schedtypes.ActionAfterCompletionDelete,
		Target:                     target,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamScheduler,
			fmt.Sprintf("failed to update schedule %s", name), err)
	}

	r.logger.DebugContext(ctx, "schedule replaced", "schedule_name", name, "expression", expr)
	return nil
}

// Disarm deletes the named schedule. A schedule that does not exist counts
// as deleted.
func (r *Registry) Disarm(ctx context.Context, name string) error {
	_, err := r.client.DeleteSchedule(ctx, &scheduler.DeleteScheduleInput{
		Name:      aws.String(name),
		GroupName: aws.String(r.group),
	})
	if err == nil {
		return nil
	}

	var notFound *schedtypes.ResourceNotFoundException
	if errors.As(err, &notFound) {
		r.logger.DebugContext(ctx, "schedule already absent", "schedule_name", name)
		return nil
	}
	return types.NewAppError(types.ErrCodeUpstreamScheduler,
		fmt.Sprintf("failed to delete schedule %s", name), err)
}
