package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// GatewayIDHeader 网关服务凭证 ID。
	GatewayIDHeader = "CF-Access-Client-Id"
	// GatewaySecretHeader 网关服务凭证密钥。
	GatewaySecretHeader = "CF-Access-Client-Secret"
)

// GatewayMiddleware 校验网关服务凭证头。clientID 为空时不校验。
func GatewayMiddleware(clientID, clientSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if clientID == "" {
			c.Next()
			return
		}
		id := c.GetHeader(GatewayIDHeader)
		secret := c.GetHeader(GatewaySecretHeader)
		if subtle.ConstantTimeCompare([]byte(id), []byte(clientID)) != 1 ||
			subtle.ConstantTimeCompare([]byte(secret), []byte(clientSecret)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid gateway credentials"})
			c.Abort()
			return
		}
		c.Next()
	}
}
