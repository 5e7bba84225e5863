package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aman-churiwal/x402-gateway/internal/apierror"
)

func TestExecuteRelaysResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/translate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "req-123", r.Header.Get("X-Request-Id"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"translated":"[ES] hello"}`))
	}))
	defer srv.Close()

	c := NewClient([]string{srv.URL}, time.Second, 1, zap.NewNop())

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Request-Id", "req-123")

	res, err := c.Execute(context.Background(), http.MethodPost, "/api/translate", header, []byte(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"translated":"[ES] hello"}`, string(res.Body))
	assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
}

func TestExecuteRelaysBackendErrorsVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unsupported language"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient([]string{srv.URL}, time.Second, 1, zap.NewNop())

	res, err := c.Execute(context.Background(), http.MethodPost, "/api/translate", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient([]string{srv.URL}, time.Second, 3, zap.NewNop())

	res, err := c.Execute(context.Background(), http.MethodGet, "/api/languages", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecuteExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient([]string{srv.URL}, time.Second, 2, zap.NewNop())

	_, err := c.Execute(context.Background(), http.MethodGet, "/api/languages", nil, nil)
	require.Error(t, err)
	assert.Equal(t, apierror.ReasonBackendUnavailable, apierror.ReasonOf(err))
}

func TestExecuteRoundRobinsTargets(t *testing.T) {
	var hitsA, hitsB atomic.Int32

	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsA.Add(1)
	}))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hitsB.Add(1)
	}))
	defer b.Close()

	c := NewClient([]string{a.URL, b.URL}, time.Second, 1, zap.NewNop())

	for i := 0; i < 4; i++ {
		_, err := c.Execute(context.Background(), http.MethodGet, "/", nil, nil)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(2), hitsA.Load())
	assert.Equal(t, int32(2), hitsB.Load())
}

func TestExecutePassesThroughContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient([]string{srv.URL}, 5*time.Second, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Execute(ctx, http.MethodGet, "/", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteWithoutTargets(t *testing.T) {
	c := NewClient(nil, time.Second, 1, zap.NewNop())

	var res *Result
	var err error
	require.NotPanics(t, func() {
		res, err = c.Execute(context.Background(), http.MethodGet, "/", nil, nil)
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, apierror.ReasonBackendUnavailable, apierror.ReasonOf(err))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	// A closed listener makes every attempt fail fast.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient([]string{srv.URL}, time.Second, 1, zap.NewNop())

	for i := 0; i < 5; i++ {
		_, err := c.Execute(context.Background(), http.MethodGet, "/", nil, nil)
		require.Error(t, err)
	}
	assert.Equal(t, stateOpen, c.breaker.currentState())

	_, err := c.Execute(context.Background(), http.MethodGet, "/", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit open")
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	b := newBreaker(2, 10*time.Millisecond)

	fail := func() error { return assert.AnError }
	require.Error(t, b.call(fail))
	require.Error(t, b.call(fail))
	require.Equal(t, stateOpen, b.currentState())

	assert.ErrorIs(t, b.call(func() error { return nil }), ErrCircuitOpen)

	time.Sleep(15 * time.Millisecond)

	require.NoError(t, b.call(func() error { return nil }))
	assert.Equal(t, stateClosed, b.currentState())
}
