package internal

import (
	"errors"
	"net/http"

	"github.com/dushixiang/copyrank/internal/xe"
	"github.com/go-orz/orz"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func WithErrorHandler(logger *zap.Logger) func(next echo.HandlerFunc) echo.HandlerFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var he *echo.HTTPError
			if errors.As(err, &he) {
				return c.JSON(he.Code, orz.Map{
					"code":    he.Code,
					"message": he.Message,
				})
			}

			var oe *orz.Error
			if errors.As(err, &oe) {
				code := http.StatusBadRequest
				switch {
				case errors.Is(err, xe.ErrInvalidToken), errors.Is(err, xe.ErrOperatorDisabled):
					code = http.StatusUnauthorized
				case errors.Is(err, xe.ErrCycleRunning):
					code = http.StatusConflict
				}
				return c.JSON(code, orz.Map{
					"code":    oe.Code,
					"message": err.Error(),
				})
			}

			logger.Error("api", zap.String("path", c.Path()), zap.Error(err))

			return c.JSON(http.StatusInternalServerError, orz.Map{
				"code":    http.StatusInternalServerError,
				"message": err.Error(),
			})
		}
	}
}
