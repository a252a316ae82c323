// Package metrics publishes occasion telemetry to CloudWatch. Publishing is
// best-effort: failures are logged and never returned to callers.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"occasions/internal/types"
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Recorder is everything the worker, API and tools emit.
type Recorder interface {
	RecordFiringDelivered(ctx context.Context)
	RecordFiringDropped(ctx context.Context, reason string)
	RecordFiringFailed(ctx context.Context, reason string)
	RecordDeliveryLatency(ctx context.Context, d time.Duration)
	RecordQueueLag(ctx context.Context, lag time.Duration)
	RecordSubjectsArmed(ctx context.Context, n int)
	RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration)
}

var (
	_ Recorder = (*CloudWatch)(nil)
	_ Recorder = Noop{}
)

// CloudWatch implements Recorder with one PutMetricData call per event.
//
// Metrics emitted:
//   - FiringDelivered, FiringDropped {Reason}, FiringFailed {Reason}
//   - DeliveryLatency, FiringQueueLag (milliseconds)
//   - SubjectsArmed (count per reconcile run)
//   - APILatency {Method, Endpoint, Status}
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewCloudWatch creates a CloudWatch recorder. An empty namespace falls back
// to types.MetricNamespace.
func NewCloudWatch(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatch {
	if namespace == "" {
		namespace = types.MetricNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

func (m *CloudWatch) RecordFiringDelivered(ctx context.Context) {
	m.put(ctx, count(types.MetricFiringDelivered, 1))
}

func (m *CloudWatch) RecordFiringDropped(ctx context.Context, reason string) {
	m.put(ctx, count(types.MetricFiringDropped, 1, dim(types.DimReason, reason)))
}

func (m *CloudWatch) RecordFiringFailed(ctx context.Context, reason string) {
	m.put(ctx, count(types.MetricFiringFailed, 1, dim(types.DimReason, reason)))
}

func (m *CloudWatch) RecordDeliveryLatency(ctx context.Context, d time.Duration) {
	m.put(ctx, millis(types.MetricDeliveryLatency, d))
}

// RecordQueueLag tracks the time between SQS enqueue and worker pickup.
func (m *CloudWatch) RecordQueueLag(ctx context.Context, lag time.Duration) {
	m.put(ctx, millis(types.MetricFiringQueueLag, lag))
}

func (m *CloudWatch) RecordSubjectsArmed(ctx context.Context, n int) {
	m.put(ctx, count(types.MetricSubjectsArmed, float64(n)))
}

func (m *CloudWatch) RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration) {
	m.put(ctx, millis(types.MetricAPILatency, duration,
		dim(types.DimMethod, method),
		dim(types.DimEndpoint, endpoint),
		dim(types.DimStatus, status),
	))
}

func (m *CloudWatch) put(ctx context.Context, datum cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.logger.WarnContext(ctx, "failed to publish metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err,
		)
	}
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func count(name string, v float64, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(v),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: dims,
	}
}

func millis(name string, d time.Duration, dims ...cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Dimensions: dims,
	}
}

// Noop discards everything. Used when METRICS_ENABLED=false.
type Noop struct{}

func (Noop) RecordFiringDelivered(context.Context)                                {}
func (Noop) RecordFiringDropped(context.Context, string)                          {}
func (Noop) RecordFiringFailed(context.Context, string)                           {}
func (Noop) RecordDeliveryLatency(context.Context, time.Duration)                 {}
func (Noop) RecordQueueLag(context.Context, time.Duration)                        {}
func (Noop) RecordSubjectsArmed(context.Context, int)                             {}
func (Noop) RecordRequest(context.Context, string, string, string, time.Duration) {}

// New returns a CloudWatch recorder, or Noop when disabled.
func New(enabled bool, client CloudWatchClient, namespace string, logger *slog.Logger) Recorder {
	if !enabled || client == nil {
		return Noop{}
	}
	return NewCloudWatch(client, namespace, logger)
}
