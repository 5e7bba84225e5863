package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/aman-churiwal/x402-gateway/internal/models"
)

// memorySink collects flushed batches in memory.
type memorySink struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *memorySink) CreateBatch(ctx context.Context, logs []models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, logs...)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func newAuditRouter(t *AuditTrail) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(t.Middleware())
	r.POST("/api/translate", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestAuditTrailFlushesOnClose(t *testing.T) {
	sink := &memorySink{}
	trail := NewAuditTrail(sink, 8, zap.NewNop())
	r := newAuditRouter(trail)

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/translate", nil))
	}
	trail.Close()

	assert.Equal(t, 3, sink.count())
}

func TestAuditTrailDropsEntriesAfterClose(t *testing.T) {
	sink := &memorySink{}
	trail := NewAuditTrail(sink, 8, zap.NewNop())
	r := newAuditRouter(trail)

	trail.Close()

	// A request finishing after shutdown must not panic on the closed
	// entry channel; its audit entry is dropped.
	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/translate", nil))
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, sink.count())
}

func TestAuditTrailCloseIsIdempotent(t *testing.T) {
	trail := NewAuditTrail(&memorySink{}, 8, zap.NewNop())

	assert.NotPanics(t, func() {
		trail.Close()
		trail.Close()
	})
}

func TestAuditTrailCloseRacesWithRequests(t *testing.T) {
	trail := NewAuditTrail(&memorySink{}, 64, zap.NewNop())
	r := newAuditRouter(trail)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotPanics(t, func() {
				r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/translate", nil))
			})
		}()
	}

	trail.Close()
	wg.Wait()
}
