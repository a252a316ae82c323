package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occasions/internal/config"
)

type mockHealthProbe struct {
	name     string
	checkErr error
	delay    time.Duration
	panicMsg string
	called   atomic.Bool
}

func (m *mockHealthProbe) Name() string { return m.name }

func (m *mockHealthProbe) Check(ctx context.Context) error {
	m.called.Store(true)
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.checkErr
}

func newTestServerForHealth(t *testing.T, probes ...HealthProbe) *Server {
	t.Helper()
	srv, err := NewServer(&config.Config{Environment: "local"}, testLogger())
	require.NoError(t, err)
	srv.HealthProbes = probes
	return srv
}

func doHealth(t *testing.T, srv *Server) (int, healthResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHandleHealth_NoProbes(t *testing.T) {
	code, body := doHealth(t, newTestServerForHealth(t))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body.Status)
	assert.Empty(t, body.Components)
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	store := &mockHealthProbe{name: "store"}
	sched := &mockHealthProbe{name: "scheduler"}

	code, body := doHealth(t, newTestServerForHealth(t, store, sched))

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Components["store"].Status)
	assert.Equal(t, "healthy", body.Components["scheduler"].Status)
	assert.True(t, store.called.Load())
	assert.True(t, sched.called.Load())
}

func TestHandleHealth_OneUnhealthy(t *testing.T) {
	code, body := doHealth(t, newTestServerForHealth(t,
		&mockHealthProbe{name: "store", checkErr: errors.New("table not found")},
		&mockHealthProbe{name: "scheduler"},
	))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "table not found", body.Components["store"].Message)
	assert.Equal(t, "healthy", body.Components["scheduler"].Status)
}

func TestHandleHealth_ProbePanicIsUnhealthy(t *testing.T) {
	code, body := doHealth(t, newTestServerForHealth(t, &mockHealthProbe{name: "store", panicMsg: "boom"}))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Components["store"].Message, "probe panicked: boom")
}

func TestHandleHealth_SlowProbeTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the health deadline")
	}
	code, body := doHealth(t, newTestServerForHealth(t, &mockHealthProbe{name: "store", delay: 5 * time.Second}))

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Components["store"].Status)
}

func TestProbeFunc(t *testing.T) {
	p := ProbeFunc{ProbeName: "store", Fn: func(context.Context) error { return nil }}
	assert.Equal(t, "store", p.Name())
	assert.NoError(t, p.Check(context.Background()))
}
