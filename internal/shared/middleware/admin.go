package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	// AdminSecretHeader carries the static admin shared secret.
	AdminSecretHeader = "X-Admin-Secret"

	skipQueryLogKey = "skip_query_log"
)

// AdminSecret returns a middleware that guards admin endpoints with a shared secret.
// When hash is set it is treated as a bcrypt hash of the secret; otherwise the
// header is compared against secret in constant time. An unset secret denies all.
func AdminSecret(secret, hash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(skipQueryLogKey, true)

		provided := c.GetHeader(AdminSecretHeader)
		if provided == "" || !adminSecretMatches(provided, secret, hash) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "FORBIDDEN",
					"message": "Forbidden",
				},
			})
			return
		}

		c.Next()
	}
}

func adminSecretMatches(provided, secret, hash string) bool {
	if hash != "" {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(provided)) == nil
	}
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) == 1
}
