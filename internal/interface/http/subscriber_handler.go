package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/reachkit/reach/config"
	"github.com/reachkit/reach/internal/application"
	"github.com/reachkit/reach/internal/domain/entity"
	"github.com/reachkit/reach/internal/interface/middleware"
	"github.com/reachkit/reach/pkg/mailer"
	tpl "github.com/reachkit/reach/pkg/mailer/templates"
	"github.com/reachkit/reach/pkg/response"
	"github.com/reachkit/reach/pkg/token"
	"github.com/reachkit/reach/pkg/validation"
)

// JobPublisher is the slice of RabbitPublisher the handler needs.
type JobPublisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// SubscriberHandler sequences token verification, ledger transitions and
// email dispatch. Emails are enqueued only after the triggering transition
// committed, and an enqueue failure never fails the request.
type SubscriberHandler struct {
	Ledger    *application.Ledger
	Authority *token.Authority
	Pub       JobPublisher
	Logger    *logrus.Logger
	Cfg       *config.Config
}

func NewSubscriberHandler(ledger *application.Ledger, authority *token.Authority, pub JobPublisher, logger *logrus.Logger, cfg *config.Config) *SubscriberHandler {
	return &SubscriberHandler{Ledger: ledger, Authority: authority, Pub: pub, Logger: logger, Cfg: cfg}
}

type registerRequest struct {
	Email  string `json:"email" binding:"required,email"`
	Name   string `json:"name" binding:"omitempty,displayname"`
	Source string `json:"source" binding:"omitempty,sourcetag"`
}

type preferencesRequest struct {
	Marketing *bool `json:"marketing" binding:"required"`
	Product   *bool `json:"product" binding:"required"`
	Content   *bool `json:"content" binding:"required"`
}

type updatePreferencesRequest struct {
	Name        string              `json:"name" binding:"omitempty,displayname"`
	Email       string              `json:"email" binding:"omitempty,email"`
	Preferences *preferencesRequest `json:"preferences"`
}

func subscriberJSON(s *entity.Subscriber) gin.H {
	return gin.H{
		"uid":            s.UID,
		"email":          s.Email,
		"name":           s.Name,
		"source":         s.Source,
		"email_verified": s.EmailVerified,
		"preferences":    s.Preferences,
		"created_at":     s.CreatedAt,
		"updated_at":     s.UpdatedAt,
	}
}

// capabilityLink builds a front-end URL carrying a freshly minted token.
func (h *SubscriberHandler) capabilityLink(base, uid string, perm token.Permission, boundEmail string) (string, error) {
	tok, err := h.Authority.Issue(uid, perm, boundEmail)
	if err != nil {
		return "", err
	}
	return base + "?token=" + url.QueryEscape(tok), nil
}

func (h *SubscriberHandler) enqueue(c *gin.Context, job mailer.EmailJob) {
	if h.Pub == nil || h.Cfg == nil || !h.Cfg.MailSendEnabled {
		return
	}
	if err := h.Pub.PublishJSON(c.Request.Context(), job); err != nil && h.Logger != nil {
		h.Logger.WithError(err).WithField("template", job.Template).Warn("failed to enqueue email job")
	}
}

func (h *SubscriberHandler) sendWelcome(c *gin.Context, s *entity.Subscriber) {
	link, err := h.capabilityLink(h.Cfg.PreferencesURL, s.UID, token.ChangePreferences, "")
	if err != nil {
		h.Logger.WithError(err).Warn("mint preferences token failed")
		return
	}
	h.enqueue(c, mailer.EmailJob{
		To:       s.Email,
		Template: tpl.Welcome,
		Data:     tpl.NewWelcomeData(h.Cfg, s.Name, s.Email, link),
	})
}

// sendVerification mints a VerifyEmail token bound to the record's current
// address. A stale token bound to a previous address can never confirm the
// new one.
func (h *SubscriberHandler) sendVerification(c *gin.Context, s *entity.Subscriber) {
	link, err := h.capabilityLink(h.Cfg.VerifyEmailURL, s.UID, token.VerifyEmail, s.Email)
	if err != nil {
		h.Logger.WithError(err).Warn("mint verify token failed")
		return
	}
	h.enqueue(c, mailer.EmailJob{
		To:       s.Email,
		Template: tpl.VerifyEmail,
		Data:     tpl.NewVerifyEmailData(h.Cfg, s.Name, s.Email, link, tpl.WithExpiresAt(time.Now().Add(token.Validity))),
	})
}

func (h *SubscriberHandler) sendUnsubscribeConfirmation(c *gin.Context, s *entity.Subscriber) {
	link, err := h.capabilityLink(h.Cfg.PreferencesURL, s.UID, token.ChangePreferences, "")
	if err != nil {
		h.Logger.WithError(err).Warn("mint preferences token failed")
		return
	}
	h.enqueue(c, mailer.EmailJob{
		To:       s.Email,
		Template: tpl.Unsubscribe,
		Data:     tpl.NewUnsubscribeData(h.Cfg, s.Name, s.Email, link),
	})
}

func (h *SubscriberHandler) sendPreferencesUpdated(c *gin.Context, s *entity.Subscriber) {
	link, err := h.capabilityLink(h.Cfg.PreferencesURL, s.UID, token.ChangePreferences, "")
	if err != nil {
		h.Logger.WithError(err).Warn("mint preferences token failed")
		return
	}
	h.enqueue(c, mailer.EmailJob{
		To:       s.Email,
		Template: tpl.PreferencesUpdated,
		Data:     tpl.NewPreferencesUpdatedData(h.Cfg, s.Name, s.Email, link),
	})
}

// grantFor returns the verified grant and enforces that its subject matches
// the uid the route addresses. A mismatch gets the same generic response as
// any other bad link.
func (h *SubscriberHandler) grantFor(c *gin.Context, uid string) (token.Grant, bool) {
	grant, ok := middleware.GrantFrom(c)
	if !ok || grant.Subject != uid {
		resp := response.Error[any](c, http.StatusUnauthorized, "invalid or expired link", nil)
		c.AbortWithStatusJSON(resp.Status, resp)
		return token.Grant{}, false
	}
	return grant, true
}

// Register POST /api/subscribe
// A duplicate signup is never an error for the caller: default preferences
// mean "already on the list", customized preferences mean an implicit
// resubscribe.
func (h *SubscriberHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp := response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		c.JSON(resp.Status, resp)
		return
	}

	existing, err := h.Ledger.Lookup(c.Request.Context(), req.Email)
	if err == nil && existing != nil {
		if existing.Preferences.IsDefault() {
			resp := response.Success[any](c, http.StatusOK, nil, "You're already on our list! Stay tuned for updates.", nil)
			c.JSON(resp.Status, resp)
			return
		}
		if _, err := h.Ledger.Resubscribe(c.Request.Context(), existing.UID); err != nil {
			resp := response.Error[any](c, http.StatusInternalServerError, "could not resubscribe, try again later", nil)
			c.JSON(resp.Status, resp)
			return
		}
		resp := response.Success[any](c, http.StatusOK, nil, "Welcome back! You've been successfully resubscribed.", nil)
		c.JSON(resp.Status, resp)
		return
	}
	if err != nil && !errors.Is(err, application.ErrNotFound) {
		resp := response.Error[any](c, http.StatusInternalServerError, "error storing subscription", nil)
		c.JSON(resp.Status, resp)
		return
	}

	s, err := h.Ledger.Register(c.Request.Context(), req.Email, req.Name, req.Source)
	if err != nil {
		if errors.Is(err, application.ErrDuplicateSubscriber) {
			// Lost the race against a concurrent signup for the same email.
			resp := response.Success[any](c, http.StatusOK, nil, "You're already on our list! Stay tuned for updates.", nil)
			c.JSON(resp.Status, resp)
			return
		}
		resp := response.Error[any](c, http.StatusInternalServerError, "error storing subscription", nil)
		c.JSON(resp.Status, resp)
		return
	}

	// The insert has committed; emails are best effort from here on.
	h.sendWelcome(c, s)
	h.sendVerification(c, s)

	resp := response.Success(c, http.StatusCreated, gin.H{"uid": s.UID}, "Thanks for subscribing! We're excited to have you!", nil)
	c.JSON(resp.Status, resp)
}

// Get GET /api/subscribers/:identifier (email or uid)
func (h *SubscriberHandler) Get(c *gin.Context) {
	s, err := h.Ledger.Lookup(c.Request.Context(), c.Param("identifier"))
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			resp := response.Error[any](c, http.StatusNotFound, "subscriber not found", nil)
			c.JSON(resp.Status, resp)
			return
		}
		resp := response.Error[any](c, http.StatusInternalServerError, "lookup failed", nil)
		c.JSON(resp.Status, resp)
		return
	}
	resp := response.Success(c, http.StatusOK, subscriberJSON(s), "subscriber", nil)
	c.JSON(resp.Status, resp)
}

// UpdatePreferences PUT /api/preferences/:uid?token= (ChangePreferences)
func (h *SubscriberHandler) UpdatePreferences(c *gin.Context) {
	uid := c.Param("uid")
	if _, ok := h.grantFor(c, uid); !ok {
		return
	}

	var req updatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp := response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		c.JSON(resp.Status, resp)
		return
	}

	in := application.UpdateInput{Name: req.Name, Email: req.Email}
	if req.Preferences != nil {
		in.Preferences = &entity.EmailPreferences{
			Marketing: *req.Preferences.Marketing,
			Product:   *req.Preferences.Product,
			Content:   *req.Preferences.Content,
		}
	}

	s, emailChanged, err := h.Ledger.UpdatePreferences(c.Request.Context(), uid, in)
	if err != nil {
		switch {
		case errors.Is(err, application.ErrNotFound):
			resp := response.Error[any](c, http.StatusNotFound, "subscriber not found", nil)
			c.JSON(resp.Status, resp)
		case errors.Is(err, application.ErrDuplicateSubscriber):
			resp := response.Error[any](c, http.StatusConflict, "that email is already registered", nil)
			c.JSON(resp.Status, resp)
		default:
			resp := response.Error[any](c, http.StatusInternalServerError, "preferences update failed", nil)
			c.JSON(resp.Status, resp)
		}
		return
	}

	if emailChanged {
		// The address change reset verification; the new address has to
		// prove itself with a token bound to it.
		h.sendVerification(c, s)
	}
	h.sendPreferencesUpdated(c, s)

	resp := response.Success(c, http.StatusOK, subscriberJSON(s), "Preferences updated! You're all set!", nil)
	c.JSON(resp.Status, resp)
}

// Unsubscribe PUT /api/unsubscribe/:uid?token= (ChangePreferences)
func (h *SubscriberHandler) Unsubscribe(c *gin.Context) {
	uid := c.Param("uid")
	if _, ok := h.grantFor(c, uid); !ok {
		return
	}

	current, err := h.Ledger.Lookup(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			resp := response.Error[any](c, http.StatusNotFound, "subscriber not found", nil)
			c.JSON(resp.Status, resp)
			return
		}
		resp := response.Error[any](c, http.StatusInternalServerError, "could not unsubscribe, try again later", nil)
		c.JSON(resp.Status, resp)
		return
	}
	alreadyUnsubscribed := current.Preferences.Unsubscribed()

	s, err := h.Ledger.Unsubscribe(c.Request.Context(), uid)
	if err != nil {
		resp := response.Error[any](c, http.StatusInternalServerError, "could not unsubscribe, try again later", nil)
		c.JSON(resp.Status, resp)
		return
	}

	// No redundant confirmation when this was already a no-op.
	if !alreadyUnsubscribed {
		h.sendUnsubscribeConfirmation(c, s)
	}

	resp := response.Success[any](c, http.StatusOK, nil, "You've been unsubscribed! Bye for now.", nil)
	c.JSON(resp.Status, resp)
}

// Resubscribe PUT /api/resubscribe/:uid?token= (ChangePreferences)
func (h *SubscriberHandler) Resubscribe(c *gin.Context) {
	uid := c.Param("uid")
	if _, ok := h.grantFor(c, uid); !ok {
		return
	}

	s, err := h.Ledger.Resubscribe(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			resp := response.Error[any](c, http.StatusNotFound, "subscriber not found", nil)
			c.JSON(resp.Status, resp)
			return
		}
		resp := response.Error[any](c, http.StatusInternalServerError, "could not resubscribe, try again later", nil)
		c.JSON(resp.Status, resp)
		return
	}
	resp := response.Success(c, http.StatusOK, subscriberJSON(s), "Welcome back! You've been successfully resubscribed.", nil)
	c.JSON(resp.Status, resp)
}

// VerifyEmail GET /api/verify?token= (VerifyEmail)
// The token's bound email must match the record's current address, so a
// token minted before an address change can no longer confirm anything.
func (h *SubscriberHandler) VerifyEmail(c *gin.Context) {
	grant, ok := middleware.GrantFrom(c)
	if !ok {
		resp := response.Error[any](c, http.StatusUnauthorized, "invalid or expired link", nil)
		c.JSON(resp.Status, resp)
		return
	}

	s, err := h.Ledger.Lookup(c.Request.Context(), grant.Subject)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			resp := response.Error[any](c, http.StatusNotFound, "subscriber not found", nil)
			c.JSON(resp.Status, resp)
			return
		}
		resp := response.Error[any](c, http.StatusInternalServerError, "verification failed", nil)
		c.JSON(resp.Status, resp)
		return
	}

	if grant.BoundEmail == "" || grant.BoundEmail != s.Email {
		if h.Logger != nil {
			h.Logger.WithField("uid", s.UID).Debug("verify token bound to a different email")
		}
		resp := response.Error[any](c, http.StatusUnauthorized, "invalid or expired link", nil)
		c.JSON(resp.Status, resp)
		return
	}
	if s.EmailVerified {
		resp := response.Error[any](c, http.StatusConflict, "email already verified", nil)
		c.JSON(resp.Status, resp)
		return
	}

	if _, err := h.Ledger.ConfirmEmailVerified(c.Request.Context(), s.UID); err != nil {
		if errors.Is(err, application.ErrAlreadyVerified) {
			resp := response.Error[any](c, http.StatusConflict, "email already verified", nil)
			c.JSON(resp.Status, resp)
			return
		}
		resp := response.Error[any](c, http.StatusInternalServerError, "verification failed", nil)
		c.JSON(resp.Status, resp)
		return
	}

	resp := response.Success[any](c, http.StatusOK, gin.H{"verified": true}, "Email verified. Thanks!", nil)
	c.JSON(resp.Status, resp)
}

// Delete DELETE /api/subscribers/:uid?token= (ChangePreferences)
func (h *SubscriberHandler) Delete(c *gin.Context) {
	uid := c.Param("uid")
	if _, ok := h.grantFor(c, uid); !ok {
		return
	}

	if err := h.Ledger.Delete(c.Request.Context(), uid); err != nil {
		if errors.Is(err, application.ErrNotFound) {
			resp := response.Error[any](c, http.StatusNotFound, "subscriber not found", nil)
			c.JSON(resp.Status, resp)
			return
		}
		resp := response.Error[any](c, http.StatusInternalServerError, "delete failed", nil)
		c.JSON(resp.Status, resp)
		return
	}
	resp := response.Success[any](c, http.StatusOK, gin.H{"deleted": true}, "Subscription removed.", nil)
	c.JSON(resp.Status, resp)
}

// Search GET /api/subscribers/search?q=
func (h *SubscriberHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		resp := response.Error[any](c, http.StatusBadRequest, "missing query", nil)
		c.JSON(resp.Status, resp)
		return
	}
	size := 10
	if v := c.Query("size"); v != "" {
		if n, err := parseSize(v); err == nil {
			size = n
		}
	}
	hits, err := h.Ledger.Search(c.Request.Context(), q, size)
	if err != nil {
		resp := response.Error[any](c, http.StatusInternalServerError, "search failed", nil)
		c.JSON(resp.Status, resp)
		return
	}
	resp := response.Success(c, http.StatusOK, hits, "results", map[string]any{"count": len(hits)})
	c.JSON(resp.Status, resp)
}

func parseSize(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		n = 1
	}
	if n > 50 {
		n = 50
	}
	return n, nil
}
