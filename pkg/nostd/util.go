package nostd

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const Token = "Copyrank-Token"

// GetToken 依次从请求头、Authorization Bearer、查询参数中读取运维令牌
func GetToken(c echo.Context) string {
	token := c.Request().Header.Get(Token)
	if len(token) > 0 {
		return token
	}
	if auth := c.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
		if t, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return t
		}
	}
	return c.QueryParam(Token)
}
