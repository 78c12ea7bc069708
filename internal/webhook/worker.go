package webhook

import (
	"context"
	"log/slog"
	"time"
)

const maxRetryDelay = 5 * time.Minute

// Worker drains the service queue, retrying failed deliveries with
// exponential backoff
type Worker struct {
	service *Service
	logger  *slog.Logger
	stopCh  chan struct{}
}

func NewWorker(service *Service, logger *slog.Logger) *Worker {
	return &Worker{
		service: service,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("webhook worker started", "enabled", w.service.Enabled())

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("webhook worker stopped")
			return
		case job := <-w.service.queue:
			w.processJob(ctx, &job)
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) processJob(ctx context.Context, job *Job) {
	for {
		err := w.service.Send(ctx, job.Event)
		if err == nil {
			w.logger.Info("webhook delivered",
				"event_type", job.Event.Type,
				"exam_id", job.Event.ExamID,
				"attempts", job.Attempts+1,
			)
			return
		}

		job.Attempts++
		if job.Attempts >= w.service.cfg.MaxAttempts {
			w.logger.Warn("webhook delivery failed",
				"event_type", job.Event.Type,
				"exam_id", job.Event.ExamID,
				"attempts", job.Attempts,
				"error", err,
			)
			return
		}

		delay := w.retryDelay(job.Attempts)
		w.logger.Info("webhook scheduled for retry",
			"event_type", job.Event.Type,
			"attempts", job.Attempts,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-time.After(delay):
		}
	}
}

func (w *Worker) retryDelay(attempts int) time.Duration {
	delay := w.service.cfg.RetryBase * time.Duration(1<<(attempts-1))
	if delay > maxRetryDelay || delay <= 0 {
		return maxRetryDelay
	}
	return delay
}
