package backend

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aman-churiwal/x402-gateway/internal/apierror"
	"github.com/aman-churiwal/x402-gateway/internal/metrics"
	"github.com/aman-churiwal/x402-gateway/internal/retry"
)

// Result is a completed backend response, buffered so it can be relayed
// verbatim to the caller.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client forwards admitted requests to the service backend. The payload
// is opaque to the gateway. Transient failures (network errors, 502-504)
// are retried with bounded backoff across the configured targets before
// surfacing as a backend_unavailable refusal, which is deliberately
// distinct from payment and quota refusals.
type Client struct {
	targets []string
	next    atomic.Uint64
	http    *http.Client
	breaker *breaker
	retry   retry.Config
	log     *zap.Logger
}

const maxResponseBytes = 4 << 20

func NewClient(targets []string, timeout time.Duration, maxRetries int, log *zap.Logger) *Client {
	cfg := retry.Default()
	if maxRetries > 0 {
		cfg.MaxAttempts = maxRetries
	}

	return &Client{
		targets: targets,
		http:    &http.Client{Timeout: timeout},
		breaker: newBreaker(5, 30*time.Second),
		retry:   cfg,
		log:     log,
	}
}

// transientError marks failures worth another attempt.
type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te transientError
	return errors.As(err, &te)
}

// Execute forwards one request and returns the buffered response.
func (c *Client) Execute(ctx context.Context, method, path string, header http.Header, body []byte) (*Result, error) {
	if len(c.targets) == 0 {
		return nil, apierror.New(apierror.ReasonBackendUnavailable, "no backend targets configured")
	}

	start := time.Now()

	var result *Result
	err := c.breaker.call(func() error {
		return retry.Do(ctx, c.retry, isTransient, func() error {
			res, attemptErr := c.attempt(ctx, method, path, header, body)
			if attemptErr != nil {
				return attemptErr
			}
			result = res
			return nil
		})
	})

	metrics.BackendDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		c.log.Warn("backend call failed",
			zap.String("path", path),
			zap.String("breaker", c.breaker.currentState().String()),
			zap.Error(err))
		return nil, apierror.New(apierror.ReasonBackendUnavailable, "backend: %v", err)
	}

	return result, nil
}

func (c *Client) attempt(ctx context.Context, method, path string, header http.Header, body []byte) (*Result, error) {
	target := c.pickTarget()

	req, err := http.NewRequestWithContext(ctx, method, target+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for _, k := range []string{"Content-Type", "Accept", "X-Request-Id"} {
		if v := header.Get(k); v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transientError{err}
	}
	defer resp.Body.Close()

	// Gateway-class errors from the backend are worth retrying on
	// another target; everything else is relayed as-is.
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		io.Copy(io.Discard, resp.Body)
		return nil, transientError{errors.New("backend returned " + resp.Status)}
	}

	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transientError{err}
	}

	return &Result{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       buf,
	}, nil
}

// pickTarget rotates round-robin across targets.
func (c *Client) pickTarget() string {
	if len(c.targets) == 1 {
		return c.targets[0]
	}
	n := c.next.Add(1)
	return c.targets[int(n-1)%len(c.targets)]
}
