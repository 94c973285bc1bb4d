package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vladikoff/email2feed/internal/auth/jwt"
)

// ContextOwnerKey 上下文中保存所有者标识的键
const ContextOwnerKey = "owner"

// JWTAuth JWT认证中间件
type JWTAuth struct {
	jwtManager *jwt.Manager
	log        *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(jwtManager *jwt.Manager, log *zap.Logger) *JWTAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuth{
		jwtManager: jwtManager,
		log:        log,
	}
}

// RequireAuth 要求有效的访问令牌
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "需要登录",
			})
			return
		}

		claims, err := ja.jwtManager.ValidateToken(token, jwt.KindAccess)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "令牌无效或已过期",
			})
			return
		}

		c.Set(ContextOwnerKey, claims.Owner())
		c.Next()
	}
}

// Owner 返回已认证的所有者标识
func Owner(c *gin.Context) string {
	return c.GetString(ContextOwnerKey)
}

// extractToken 从 Authorization 头或 cookie 提取令牌
func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}
	return ""
}
