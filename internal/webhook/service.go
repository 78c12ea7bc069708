package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
)

var ErrQueueFull = errors.New("webhook queue full")

type Service struct {
	cfg    Config
	client *http.Client
	queue  chan Job
	logger *slog.Logger
}

func NewService(cfg Config, logger *slog.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = defaults.RetryBase
	}

	return &Service{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		queue:  make(chan Job, cfg.QueueSize),
		logger: logger,
	}
}

// Enabled reports whether an endpoint is configured
func (s *Service) Enabled() bool {
	return s.cfg.URL != ""
}

// Notify enqueues a violation event for delivery. It never blocks; when the
// queue is full the event is dropped and ErrQueueFull is returned.
func (s *Service) Notify(_ context.Context, event domain.ViolationEvent) error {
	if !s.Enabled() {
		return nil
	}

	job := Job{
		Event: EventPayload{
			Type:      event.Type,
			ExamID:    event.ExamID,
			Data:      event.Violation,
			Timestamp: time.Now().UTC(),
		},
	}

	select {
	case s.queue <- job:
		return nil
	default:
		s.logger.Warn("webhook queue full, dropping event",
			"event_type", event.Type,
			"exam_id", event.ExamID,
		)
		return ErrQueueFull
	}
}

// Send performs a single signed delivery attempt
func (s *Service) Send(ctx context.Context, event EventPayload) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	signature := Sign(s.cfg.Secret, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set("X-Proctor-Event", event.Type)
	req.Header.Set("User-Agent", "Proctor-Webhook/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("send webhook: HTTP %d", resp.StatusCode)
	}

	return nil
}
