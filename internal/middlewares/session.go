package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/MiniChat/internal/services"
)

const sessionKey = "session"

// SessionParser 由 AuthService 实现
type SessionParser interface {
	ParseSession(token string) (*services.Session, error)
}

// SessionMiddleware 解析 Bearer token。
// required 为 true 时缺少或携带无效 token 都返回 401；
// 否则退化为 SoftSessionMiddleware，过期的 token 视同未携带，由请求体决定身份
func SessionMiddleware(parser SessionParser, required bool) gin.HandlerFunc {
	if !required {
		return SoftSessionMiddleware(parser)
	}
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"answer": false,
				"error":  "未提供认证 Token",
			})
			return
		}

		session, err := parser.ParseSession(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"answer": false,
				"error":  "Token 无效或已过期",
			})
			return
		}

		c.Set(sessionKey, session)
		c.Next()
	}
}

// SessionFrom 取出当前请求的会话，没有时返回 nil
func SessionFrom(c *gin.Context) *services.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*services.Session); ok {
			return s
		}
	}
	return nil
}

// BearerToken 从 Authorization 头中取出 token
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// SoftSessionMiddleware 只读接口使用：有效 token 解析为会话，无效或过期的 token 被忽略
func SoftSessionMiddleware(parser SessionParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := BearerToken(c.GetHeader("Authorization")); token != "" {
			if session, err := parser.ParseSession(token); err == nil {
				c.Set(sessionKey, session)
			}
		}
		c.Next()
	}
}
