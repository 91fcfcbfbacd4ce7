package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	log "github.com/sirupsen/logrus"

	"setlistify/apperrors"
	"setlistify/models"
	"setlistify/sentryhelper"
)

const (
	accessTokenKey    = "accessToken"
	adminPasswordHead = "X-Admin-Pw"
)

// EnsureToken loads the session, refreshing the access token when it is
// about to expire, and aborts with 401 when there is no usable session.
func (m *Manager) EnsureToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		pair, err := m.tokenStore(c).Get(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(accessTokenKey, pair.AccessToken)
		c.Next()
	}
}

func accessToken(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}

// AdminGuard admits requests carrying the admin password, either in the
// X-Admin-Pw header or as adminPassword in the JSON body.
func (m *Manager) AdminGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.service == nil || m.adminPassword == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service account not configured"})
			return
		}

		password := c.GetHeader(adminPasswordHead)
		if password == "" {
			var req models.PlaylistRequest
			if err := c.ShouldBindBodyWith(&req, binding.JSON); err == nil {
				password = req.AdminPassword
			}
		}

		if subtle.ConstantTimeCompare([]byte(password), []byte(m.adminPassword)) != 1 {
			log.Warnf("Rejected admin request from %s", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

// respondError writes {"error": message} with the status err maps to.
// Server-side failures also go to Sentry.
func respondError(c *gin.Context, err error) {
	status := apperrors.StatusCode(err)
	logger := log.WithFields(log.Fields{
		"module": "handlers",
		"path":   c.FullPath(),
		"status": status,
	})

	if status >= http.StatusInternalServerError {
		logger.Errorf("request failed: %v", err)
		sentryhelper.CaptureException(c.Request.Context(), err)
	} else {
		logger.Debugf("request rejected: %v", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperrors.Message(err)})
}
