package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/reachkit/reach/config"
	tpl "github.com/reachkit/reach/pkg/mailer/templates"
	"github.com/reachkit/reach/pkg/response"
)

// TemplateHandler serves rendered HTML previews of the transactional emails
// so the templates can be checked in a browser without sending anything.
type TemplateHandler struct {
	Cfg *config.Config
}

func NewTemplateHandler(cfg *config.Config) *TemplateHandler {
	return &TemplateHandler{Cfg: cfg}
}

// Preview GET /api/templates/:name
func (h *TemplateHandler) Preview(c *gin.Context) {
	name := c.Param("name")

	var data map[string]any
	sampleLink := h.Cfg.BaseURL + "/preview"
	switch name {
	case tpl.Welcome:
		data = tpl.NewWelcomeData(h.Cfg, "Sam", "sam@example.com", sampleLink)
	case tpl.VerifyEmail:
		data = tpl.NewVerifyEmailData(h.Cfg, "Sam", "sam@example.com", sampleLink)
	case tpl.Unsubscribe:
		data = tpl.NewUnsubscribeData(h.Cfg, "Sam", "sam@example.com", sampleLink)
	case tpl.PreferencesUpdated:
		data = tpl.NewPreferencesUpdatedData(h.Cfg, "Sam", "sam@example.com", sampleLink)
	default:
		resp := response.Error[any](c, http.StatusNotFound, "unknown template", nil)
		c.JSON(resp.Status, resp)
		return
	}

	html, err := tpl.RenderHTML(name, data)
	if err != nil {
		resp := response.Error[any](c, http.StatusInternalServerError, "render failed", nil)
		c.JSON(resp.Status, resp)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
