package middleware

import (
	"github.com/dushixiang/copyrank/internal/xe"
	"github.com/dushixiang/copyrank/pkg/nostd"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// OperatorAuthConfig 运维接口认证配置
type OperatorAuthConfig struct {
	TokenHash string // 令牌的 bcrypt 哈希，为空时运维接口全部拒绝
	Logger    *zap.Logger
}

// OperatorAuth 运维令牌认证中间件
func OperatorAuth(config OperatorAuthConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.TokenHash == "" {
				return xe.ErrOperatorDisabled
			}

			token := nostd.GetToken(c)
			if token == "" {
				config.Logger.Warn("operator token missing",
					zap.String("path", c.Request().URL.Path),
					zap.String("remote_ip", c.RealIP()))
				return xe.ErrInvalidToken
			}

			if err := nostd.BcryptMatch([]byte(config.TokenHash), []byte(token)); err != nil {
				config.Logger.Warn("invalid operator token",
					zap.String("path", c.Request().URL.Path),
					zap.String("remote_ip", c.RealIP()))
				return xe.ErrInvalidToken
			}

			return next(c)
		}
	}
}
