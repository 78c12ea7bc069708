package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
)

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantLogged bool
	}{
		{
			name:       "app error",
			err:        domain.ErrInvalidViolationType,
			wantStatus: 422,
			wantCode:   "INVALID_VIOLATION_TYPE",
		},
		{
			name:       "wrapped app error",
			err:        fmt.Errorf("report: %w", domain.ErrValidationFailed.WithError(errors.New("exam_id is required"))),
			wantStatus: 422,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "internal app error is logged",
			err:        domain.ErrAnalysisFailed.WithError(errors.New("detector offline")),
			wantStatus: 500,
			wantCode:   "ANALYSIS_FAILED",
			wantLogged: true,
		},
		{
			name:       "fiber error",
			err:        fiber.ErrUpgradeRequired,
			wantStatus: 426,
			wantCode:   "HTTP_ERROR",
		},
		{
			name:       "unknown error hides details",
			err:        errors.New("pq: password authentication failed"),
			wantStatus: 500,
			wantCode:   "INTERNAL_ERROR",
			wantLogged: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&logs, nil))

			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
			app.Get("/test", func(c *fiber.Ctx) error {
				return tt.err
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			raw, _ := io.ReadAll(resp.Body)
			var body errorBody
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotContains(t, string(raw), "password")

			assert.Equal(t, tt.wantLogged, logs.Len() > 0)
		})
	}
}

func TestRecover(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	app := fiber.New()
	app.Use(Recover(logger))
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Contains(t, logs.String(), "panic recovered")
	assert.Contains(t, logs.String(), "boom")
}
