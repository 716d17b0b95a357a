package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/GoPolymarket/riskgate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const HeaderAdminKey = "X-Admin-Key"

// AdminMiddleware guards administrative routes such as day state reset.
// An empty adminKey closes them entirely.
func AdminMiddleware(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin key not configured"})
			c.Abort()
			return
		}
		got := c.GetHeader(HeaderAdminKey)
		if subtle.ConstantTimeCompare([]byte(got), []byte(adminKey)) != 1 {
			_ = c.Error(apperrors.New(apperrors.ErrAuthFailed, "invalid admin key", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
