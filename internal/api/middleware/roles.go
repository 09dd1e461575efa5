package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StaffOnly 只放行携带 staff 权限令牌的请求。
// 必须挂在 AuthMiddleware 之后。
func StaffOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if value, ok := c.Get("isStaff"); ok {
			if isStaff, ok := value.(bool); ok && isStaff {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff access required"})
	}
}
