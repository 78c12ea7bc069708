package webhook

import (
	"time"
)

// Config describes the single outbound endpoint notified of recorded violations
type Config struct {
	URL         string
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
	QueueSize   int
	RetryBase   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:     10 * time.Second,
		MaxAttempts: 5,
		QueueSize:   256,
		RetryBase:   time.Second,
	}
}

type EventPayload struct {
	Type      string      `json:"type"`
	ExamID    string      `json:"exam_id"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type Job struct {
	Event    EventPayload
	Attempts int
}
