package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/reachkit/reach/pkg/response"
	"github.com/reachkit/reach/pkg/token"
)

const ctxGrantKey = "capability_grant"

// RequireCapability verifies the token query parameter against the allowed
// permission set and injects the resulting Grant into the Gin context.
// Handlers behind this middleware read the grant with GrantFrom and never see
// the raw token.
//
// Every verification failure maps to the same generic response so the link
// never reveals whether it was tampered, expired, or minted for another
// action; the concrete reason is only logged.
func RequireCapability(authority *token.Authority, logger *logrus.Logger, allowed ...token.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("token")
		if raw == "" {
			resp := response.Error[any](c, http.StatusUnauthorized, "invalid or expired link", nil)
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		grant, err := authority.Verify(raw, allowed...)
		if err != nil {
			if logger != nil {
				logger.WithError(err).WithField("path", c.FullPath()).Debug("capability verification failed")
			}
			resp := response.Error[any](c, http.StatusUnauthorized, "invalid or expired link", nil)
			c.AbortWithStatusJSON(resp.Status, resp)
			return
		}
		c.Set(ctxGrantKey, grant)
		c.Next()
	}
}

// GrantFrom returns the verified grant stored by RequireCapability.
func GrantFrom(c *gin.Context) (token.Grant, bool) {
	v, ok := c.Get(ctxGrantKey)
	if !ok {
		return token.Grant{}, false
	}
	g, ok := v.(token.Grant)
	return g, ok
}
