package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// requestID returns the id set by the requestid middleware, if any
func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals("requestid").(string)
	return id
}

func Logger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()

		logLevel := slog.LevelInfo
		if status >= 500 {
			logLevel = slog.LevelError
		} else if status >= 400 {
			logLevel = slog.LevelWarn
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("latency", latency),
			slog.String("ip", c.IP()),
			slog.String("request_id", requestID(c)),
		}
		if studentID := c.Query("student_id"); studentID != "" {
			attrs = append(attrs, slog.String("student_id", studentID))
		}

		logger.Log(c.Context(), logLevel, "http request", attrs...)

		return err
	}
}
