package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
)

func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    "HTTP_ERROR",
					"message": fiberErr.Message,
				},
			})
		}

		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			if appErr.StatusCode >= 500 {
				logger.Error("internal error",
					slog.String("code", appErr.Code),
					slog.String("message", appErr.Message),
					slog.Any("error", appErr.Err),
					slog.String("path", c.Path()),
					slog.String("request_id", requestID(c)),
				)
			}

			return writeError(c, appErr)
		}

		// details stay in the log
		logger.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Path()),
			slog.String("request_id", requestID(c)),
		)

		return writeError(c, domain.ErrInternal)
	}
}

func writeError(c *fiber.Ctx, appErr *domain.AppError) error {
	return c.Status(appErr.StatusCode).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}
