package ws

import (
	"time"
)

type EventType string

const (
	EventViolationRecorded EventType = "violation.recorded"
	EventFrameAnalyzed     EventType = "frame.analyzed"
	EventIdentityVerified  EventType = "identity.verified"
)

type Event struct {
	ExamID    string      `json:"exam_id"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
