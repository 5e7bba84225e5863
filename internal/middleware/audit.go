package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aman-churiwal/x402-gateway/internal/models"
)

// AuditSink receives flushed audit batches, typically the audit log
// repository.
type AuditSink interface {
	CreateBatch(ctx context.Context, logs []models.AuditLog) error
}

// AuditTrail persists admission decisions asynchronously. Entries are
// batched to keep the hot path off the database; a full buffer drops
// entries rather than blocking requests.
type AuditTrail struct {
	sink AuditSink
	log  *zap.Logger

	mu      sync.Mutex
	closed  bool
	entries chan models.AuditLog
	done    chan struct{}
}

func NewAuditTrail(sink AuditSink, bufferSize int, log *zap.Logger) *AuditTrail {
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	t := &AuditTrail{
		sink:    sink,
		log:     log,
		entries: make(chan models.AuditLog, bufferSize),
		done:    make(chan struct{}),
	}
	go t.worker()
	return t
}

func (t *AuditTrail) worker() {
	batch := make([]models.AuditLog, 0, 100)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := t.sink.CreateBatch(ctx, batch); err != nil {
			t.log.Warn("failed to insert audit batch", zap.Int("size", len(batch)), zap.Error(err))
		}
		cancel()
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-t.entries:
			if !ok {
				flush()
				close(t.done)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// record hands an entry to the worker. Entries arriving after Close
// (stragglers draining during shutdown) are dropped; a full buffer drops
// too rather than blocking the request.
func (t *AuditTrail) record(entry models.AuditLog) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	select {
	case t.entries <- entry:
	default:
		t.log.Warn("audit buffer full, dropping entry",
			zap.String("subscriber", entry.SubscriberID))
	}
}

// Close flushes outstanding entries and stops the worker. Safe to call
// more than once.
func (t *AuditTrail) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.entries)
	t.mu.Unlock()

	<-t.done
}

// Middleware records the admission outcome of each metered request.
func (t *AuditTrail) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		t.record(models.AuditLog{
			Timestamp:      start,
			SubscriberID:   c.GetString(CtxSubscriberID),
			Tier:           c.GetString(CtxTier),
			PeriodKey:      c.GetString(CtxPeriodKey),
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			StatusCode:     c.Writer.Status(),
			Admitted:       c.GetBool(CtxAdmitted),
			Reason:         c.GetString(CtxDenyReason),
			ResponseTimeMs: int(time.Since(start).Milliseconds()),
			IPAddress:      c.ClientIP(),
		})
	}
}
