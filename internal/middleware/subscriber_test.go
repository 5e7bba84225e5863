package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func runSubscriber(header string) (id string, anon bool) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Subscriber())
	r.GET("/", func(c *gin.Context) {
		id = c.GetString(CtxSubscriberID)
		anon = c.GetBool(CtxAnonymous)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(SubscriberHeader, header)
	}
	r.ServeHTTP(httptest.NewRecorder(), req)
	return id, anon
}

func TestSubscriberFromHeader(t *testing.T) {
	id, anon := runSubscriber("alice")
	assert.Equal(t, "alice", id)
	assert.False(t, anon)
}

func TestSubscriberAnonymousKeyedByIP(t *testing.T) {
	id, anon := runSubscriber("")
	assert.True(t, anon)
	assert.Contains(t, id, "anon:")
}

func TestBurstLimitRejectsFlood(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(BurstLimit(1, 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[3])
}
