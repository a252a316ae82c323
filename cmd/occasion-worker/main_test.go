package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occasions/internal/config"
	"occasions/internal/metrics"
	"occasions/internal/types"
)

// --- Mock Types ---

type mockWorker struct {
	errs  map[string]error
	calls []types.FiringMessage
}

func (m *mockWorker) Handle(_ context.Context, firing types.FiringMessage) error {
	m.calls = append(m.calls, firing)
	if firing.SubjectID == "" {
		return types.NewAppError(types.ErrCodeValidationMalformedFiring, "no subject id", nil)
	}
	return m.errs[firing.SubjectID]
}

type mockRecorder struct {
	metrics.Noop
	delivered int
	dropped   []string
	failed    []string
	lags      []time.Duration
}

func (m *mockRecorder) RecordFiringDelivered(context.Context) { m.delivered++ }
func (m *mockRecorder) RecordFiringDropped(_ context.Context, reason string) {
	m.dropped = append(m.dropped, reason)
}
func (m *mockRecorder) RecordFiringFailed(_ context.Context, reason string) {
	m.failed = append(m.failed, reason)
}
func (m *mockRecorder) RecordQueueLag(_ context.Context, lag time.Duration) {
	m.lags = append(m.lags, lag)
}

// --- Helpers ---

var testNow = time.Date(2025, 6, 15, 13, 0, 5, 0, time.UTC)

func newTestHandler(w FiringHandler) (*Handler, *mockRecorder) {
	rec := &mockRecorder{}
	return &Handler{
		worker:  w,
		metrics: rec,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     func() time.Time { return testNow },
	}, rec
}

func firingRecord(id, subjectID string) events.SQSMessage {
	body, _ := json.Marshal(types.FiringMessage{SubjectID: subjectID, Type: types.FiringTypeOccasion})
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func failedIDs(resp events.SQSEventResponse) []string {
	ids := make([]string, 0, len(resp.BatchItemFailures))
	for _, f := range resp.BatchItemFailures {
		ids = append(ids, f.ItemIdentifier)
	}
	return ids
}

// --- Tests ---

func TestHandle_AllDelivered(t *testing.T) {
	w := &mockWorker{}
	h, rec := newTestHandler(w)

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		firingRecord("m1", "s-1"),
		firingRecord("m2", "s-2"),
	}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, 2, rec.delivered)
	require.Len(t, w.calls, 2)
	assert.Equal(t, "s-1", w.calls[0].SubjectID)
}

func TestHandle_PartialBatchFailure(t *testing.T) {
	w := &mockWorker{errs: map[string]error{
		"s-2": types.NewAppError(types.ErrCodeUpstreamDelivery, "delivery failed", nil),
		"s-3": types.NewAppError(types.ErrCodeUpstreamScheduler, "arm failed", nil),
	}}
	h, rec := newTestHandler(w)

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		firingRecord("m1", "s-1"),
		firingRecord("m2", "s-2"),
		firingRecord("m3", "s-3"),
	}})

	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, failedIDs(resp))
	assert.Equal(t, 1, rec.delivered)
	assert.Equal(t, []string{reasonDelivery, reasonScheduler}, rec.failed)
}

func TestHandle_PermanentFailuresAreAcknowledged(t *testing.T) {
	w := &mockWorker{errs: map[string]error{
		"gone": types.NewAppError(types.ErrCodeNotFoundSubject, "subject not found", nil),
	}}
	h, rec := newTestHandler(w)

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad-json", Body: "{not json"},
		{MessageId: "empty", Body: "{}"},
		firingRecord("m-gone", "gone"),
	}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, []string{reasonMalformed, reasonMalformed, reasonNotFound}, rec.dropped)
	assert.Len(t, w.calls, 2, "undecodable body never reaches the worker")
}

func TestHandle_UnresolvableZoneAcknowledged(t *testing.T) {
	w := &mockWorker{errs: map[string]error{
		"s-1": types.NewAppError(types.ErrCodeValidationInvalidTimezone, `unknown time zone "Atlantis/Capital"`, nil),
	}}
	h, rec := newTestHandler(w)

	resp, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{firingRecord("m1", "s-1")}})

	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, []string{reasonBadZone}, rec.dropped)
	assert.Empty(t, rec.failed)
}

func TestHandle_GenericErrorRetried(t *testing.T) {
	w := &mockWorker{errs: map[string]error{"s-1": errors.New("boom")}}
	h, rec := newTestHandler(w)

	resp, _ := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{firingRecord("m1", "s-1")}})

	assert.Equal(t, []string{"m1"}, failedIDs(resp))
	assert.Equal(t, []string{reasonUnexpected}, rec.failed)
}

func TestHandle_RecordsQueueLag(t *testing.T) {
	h, rec := newTestHandler(&mockWorker{})

	msg := firingRecord("m1", "s-1")
	msg.Attributes = map[string]string{
		"SentTimestamp": strconv.FormatInt(testNow.Add(-5*time.Second).UnixMilli(), 10),
	}
	_, err := h.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{msg}})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.lags)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, reasonDelivery, failureReason(types.NewAppError(types.ErrCodeUpstreamRateLimited, "429", nil)))
	assert.Equal(t, reasonStore, failureReason(types.NewAppError(types.ErrCodeInternalDB, "db", nil)))
	assert.Equal(t, reasonUnexpected, failureReason(errors.New("x")))
}

func TestParseMillisTimestamp(t *testing.T) {
	got, err := parseMillisTimestamp("1750000000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1750000000000), got.UnixMilli())

	_, err = parseMillisTimestamp("soon")
	assert.Error(t, err)
}

func TestNewDeliverySender(t *testing.T) {
	_, err := newDeliverySender(config.DeliveryConfig{})
	assert.ErrorContains(t, err, "required")

	_, err = newDeliverySender(config.DeliveryConfig{URL: types.SecretString("not a url")})
	assert.ErrorContains(t, err, "absolute")

	s, err := newDeliverySender(config.DeliveryConfig{
		URL:       types.SecretString("https://hooks.example.com/T000/B000"),
		Timeout:   time.Second,
		UserAgent: "test",
	})
	require.NoError(t, err)
	assert.NotNil(t, s)
}
