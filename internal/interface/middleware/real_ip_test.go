package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func resolveIP(t *testing.T, setup func(r *http.Request)) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var got string
	r := gin.New()
	r.Use(RealIP())
	r.GET("/", func(c *gin.Context) {
		got = c.GetString("real_ip")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:4321"
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return got
}

func TestRealIP_XRealIPWins(t *testing.T) {
	got := resolveIP(t, func(r *http.Request) {
		r.Header.Set("X-Real-IP", "203.0.113.7")
		r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	})
	assert.Equal(t, "203.0.113.7", got)
}

func TestRealIP_ForwardedForFirstEntry(t *testing.T) {
	got := resolveIP(t, func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	})
	assert.Equal(t, "198.51.100.1", got)
}

func TestRealIP_FallsBackToPeerAddress(t *testing.T) {
	got := resolveIP(t, nil)
	assert.Equal(t, "192.0.2.10", got)
}

func TestRealIP_IgnoresGarbageHeaders(t *testing.T) {
	got := resolveIP(t, func(r *http.Request) {
		r.Header.Set("X-Real-IP", "not-an-ip")
		r.Header.Set("X-Forwarded-For", "also-garbage")
	})
	assert.Equal(t, "192.0.2.10", got)
}
