package modules

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/reachkit/reach/internal/container"
	handlers "github.com/reachkit/reach/internal/interface/http"
	"github.com/reachkit/reach/internal/interface/middleware"
	"github.com/reachkit/reach/pkg/response"
	"github.com/reachkit/reach/pkg/token"
)

// SubscriberModule wires the subscription routes under /api.
// Public: GET /ping, POST /subscribe, GET /subscribers/:identifier,
// GET /subscribers/search, GET /templates/:name.
// Token-guarded: PUT /preferences/:uid, PUT /unsubscribe/:uid,
// PUT /resubscribe/:uid, DELETE /subscribers/:uid (ChangePreferences)
// and GET /verify (VerifyEmail). The token travels as ?token=.

type SubscriberModule struct {
	Handler   *handlers.SubscriberHandler
	Templates *handlers.TemplateHandler
	Authority *token.Authority
}

func NewSubscriberModule(h *handlers.SubscriberHandler, th *handlers.TemplateHandler, authority *token.Authority) *SubscriberModule {
	return &SubscriberModule{Handler: h, Templates: th, Authority: authority}
}

func (m *SubscriberModule) Register(rg *gin.RouterGroup) {
	rdb := container.GetRedis()
	logger := container.GetLogger()

	pingLimiter := middleware.RateLimit(rdb, 3, time.Minute, middleware.KeyByIP(), nil)
	subscribeLimiter := middleware.RateLimit(rdb, 5, time.Minute, middleware.KeyByIP(), nil)
	lookupLimiter := middleware.RateLimit(rdb, 60, time.Minute, middleware.KeyByIP(), nil)
	tokenLimiter := middleware.RateLimit(rdb, 30, time.Minute, middleware.KeyByIPAndPath(), nil)

	rg.GET("/ping", pingLimiter, func(c *gin.Context) {
		resp := response.Success[any](c, http.StatusOK, gin.H{"ping": "pong"}, "pong", nil)
		c.JSON(resp.Status, resp)
	})

	rg.POST("/subscribe", subscribeLimiter, m.Handler.Register)
	rg.GET("/subscribers/search", lookupLimiter, m.Handler.Search)
	rg.GET("/subscribers/:identifier", lookupLimiter, m.Handler.Get)
	rg.GET("/templates/:name", lookupLimiter, m.Templates.Preview)

	prefsGuard := middleware.RequireCapability(m.Authority, logger, token.ChangePreferences)
	verifyGuard := middleware.RequireCapability(m.Authority, logger, token.VerifyEmail)

	rg.PUT("/preferences/:uid", tokenLimiter, prefsGuard, m.Handler.UpdatePreferences)
	rg.PUT("/unsubscribe/:uid", tokenLimiter, prefsGuard, m.Handler.Unsubscribe)
	rg.PUT("/resubscribe/:uid", tokenLimiter, prefsGuard, m.Handler.Resubscribe)
	rg.DELETE("/subscribers/:uid", tokenLimiter, prefsGuard, m.Handler.Delete)
	rg.GET("/verify", tokenLimiter, verifyGuard, m.Handler.VerifyEmail)
}
