package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// requestLogger logs one line per request.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				ctx.Error(err)
			}
			req := ctx.Request()
			logger.Info("request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", ctx.Response().Status),
				zap.Duration("latency", time.Since(start)))
			return nil
		}
	}
}

// recoverer turns a handler panic into a 500 response.
func recoverer(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						panic(r)
					}
					logger.Error("handler panic", zap.Any("panic", r), zap.Stack("stack"))
					err = echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprint(r))
				}
			}()
			return next(ctx)
		}
	}
}
