package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/proctor/internal/audit"
	"github.com/saturnino-fabrica-de-software/proctor/internal/dedup"
	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/repository"
	"github.com/saturnino-fabrica-de-software/proctor/internal/ws"
)

const (
	DefaultDuplicateWindow = 2 * time.Second

	frameViolationConfidence  = 0.8
	reportViolationConfidence = 1.0
)

// FramePipeline is satisfied by *proctor.Pipeline
type FramePipeline interface {
	DetectViolations(ctx context.Context, img image.Image) (domain.Verdict, error)
}

// Broadcaster is satisfied by *ws.Hub
type Broadcaster interface {
	BroadcastToExam(examID string, eventType ws.EventType, data interface{})
}

// Notifier is satisfied by *webhook.Service
type Notifier interface {
	Notify(ctx context.Context, event domain.ViolationEvent) error
}

type AnalyzeFrameInput struct {
	StudentID string
	ExamID    string
	Image     image.Image
}

type AnalyzeFrameResult struct {
	Verdict  domain.Verdict
	Recorded []domain.Violation
}

type ReportInput struct {
	StudentID  string
	ExamID     string
	Type       domain.ViolationType
	Confidence float64
	Details    string
}

type ViolationService struct {
	repo        repository.ViolationRepositoryInterface
	pipeline    FramePipeline
	guard       dedup.Guard
	broadcaster Broadcaster
	notifier    Notifier
	auditLogger audit.Logger
	logger      *slog.Logger
	window      time.Duration
	now         func() time.Time
}

type ViolationOption func(*ViolationService)

func WithDuplicateWindow(window time.Duration) ViolationOption {
	return func(s *ViolationService) {
		s.window = window
	}
}

func WithGuard(guard dedup.Guard) ViolationOption {
	return func(s *ViolationService) {
		s.guard = guard
	}
}

func WithBroadcaster(b Broadcaster) ViolationOption {
	return func(s *ViolationService) {
		s.broadcaster = b
	}
}

func WithNotifier(n Notifier) ViolationOption {
	return func(s *ViolationService) {
		s.notifier = n
	}
}

func WithViolationAudit(logger audit.Logger) ViolationOption {
	return func(s *ViolationService) {
		s.auditLogger = logger
	}
}

func WithViolationLogger(logger *slog.Logger) ViolationOption {
	return func(s *ViolationService) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) ViolationOption {
	return func(s *ViolationService) {
		s.now = now
	}
}

func NewViolationService(repo repository.ViolationRepositoryInterface, pipeline FramePipeline, opts ...ViolationOption) *ViolationService {
	s := &ViolationService{
		repo:        repo,
		pipeline:    pipeline,
		auditLogger: &audit.NoOpLogger{},
		logger:      slog.Default(),
		window:      DefaultDuplicateWindow,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzeFrame runs the pipeline over a frame and records each raised flag
// that was not already recorded within the duplicate window.
func (s *ViolationService) AnalyzeFrame(ctx context.Context, in AnalyzeFrameInput) (*AnalyzeFrameResult, error) {
	if in.StudentID == "" || in.ExamID == "" {
		return nil, domain.ErrValidationFailed
	}
	if in.Image == nil {
		return nil, domain.ErrInvalidImage
	}

	verdict, err := s.pipeline.DetectViolations(ctx, in.Image)
	if err != nil {
		return nil, fmt.Errorf("student %s exam %s: detect violations: %w", in.StudentID, in.ExamID, err)
	}

	result := &AnalyzeFrameResult{
		Verdict:  verdict,
		Recorded: []domain.Violation{},
	}

	// A failed flag does not stop the others from being recorded
	var errs []error
	now := s.now()
	for _, vtype := range verdict.Flagged() {
		v, err := s.recordFrameViolation(ctx, in, vtype, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if v != nil {
			result.Recorded = append(result.Recorded, *v)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	_ = s.auditLogger.Log(ctx, audit.Event{
		EventType: audit.EventFrameAnalyzed,
		StudentID: in.StudentID,
		ExamID:    in.ExamID,
		Success:   true,
		Metadata: map[string]string{
			"flags":    fmt.Sprint(verdict.Flagged()),
			"recorded": fmt.Sprint(len(result.Recorded)),
		},
	})

	return result, nil
}

// recordFrameViolation returns nil when vtype is a duplicate. A slot taken
// from the guard is released again when nothing gets stored.
func (s *ViolationService) recordFrameViolation(ctx context.Context, in AnalyzeFrameInput, vtype domain.ViolationType, now time.Time) (*domain.Violation, error) {
	held := false
	if s.guard != nil {
		acquired, err := s.guard.Acquire(ctx, in.StudentID, in.ExamID, vtype, s.window)
		switch {
		case err != nil:
			s.logger.Warn("dedup guard unavailable, falling back to store",
				"student_id", in.StudentID,
				"exam_id", in.ExamID,
				"type", vtype,
				"error", err,
			)
		case !acquired:
			return nil, nil
		default:
			held = true
		}
	}

	exists, err := s.repo.ExistsWithin(ctx, in.StudentID, in.ExamID, vtype, now.Add(-s.window))
	if err != nil {
		s.release(ctx, in, vtype, held)
		return nil, fmt.Errorf("student %s exam %s: check duplicate %s: %w", in.StudentID, in.ExamID, vtype, err)
	}
	if exists {
		return nil, nil
	}

	v := &domain.Violation{
		StudentID:  in.StudentID,
		ExamID:     in.ExamID,
		Type:       vtype,
		Confidence: frameViolationConfidence,
		Timestamp:  now,
		Details:    "Detected " + string(vtype),
	}
	if err := s.repo.Insert(ctx, v); err != nil {
		s.release(ctx, in, vtype, held)
		return nil, fmt.Errorf("student %s exam %s: record %s: %w", in.StudentID, in.ExamID, vtype, err)
	}

	s.publish(ctx, v, audit.EventViolationRecorded)
	return v, nil
}

func (s *ViolationService) release(ctx context.Context, in AnalyzeFrameInput, vtype domain.ViolationType, held bool) {
	if !held {
		return
	}
	if err := s.guard.Release(ctx, in.StudentID, in.ExamID, vtype); err != nil {
		s.logger.Warn("release dedup slot failed",
			"student_id", in.StudentID,
			"exam_id", in.ExamID,
			"type", vtype,
			"error", err,
		)
	}
}

// ReportViolation records a client-side violation without duplicate suppression
func (s *ViolationService) ReportViolation(ctx context.Context, in ReportInput) (*domain.Violation, error) {
	if in.StudentID == "" || in.ExamID == "" {
		return nil, domain.ErrValidationFailed
	}
	if !in.Type.IsValid() {
		return nil, domain.ErrInvalidViolationType
	}

	confidence := in.Confidence
	if confidence <= 0 {
		confidence = reportViolationConfidence
	}

	v := &domain.Violation{
		StudentID:  in.StudentID,
		ExamID:     in.ExamID,
		Type:       in.Type,
		Confidence: confidence,
		Timestamp:  s.now(),
		Details:    in.Details,
	}
	if err := s.repo.Insert(ctx, v); err != nil {
		return nil, fmt.Errorf("student %s exam %s: report %s: %w", in.StudentID, in.ExamID, in.Type, err)
	}

	s.publish(ctx, v, audit.EventViolationReported)
	return v, nil
}

// ListViolations returns the pair's violations, newest first
func (s *ViolationService) ListViolations(ctx context.Context, studentID, examID string) ([]domain.Violation, error) {
	if studentID == "" || examID == "" {
		return nil, domain.ErrValidationFailed
	}

	violations, err := s.repo.ListByStudentExam(ctx, studentID, examID)
	if err != nil {
		return nil, fmt.Errorf("student %s exam %s: list violations: %w", studentID, examID, err)
	}
	return violations, nil
}

// publish is best effort
func (s *ViolationService) publish(ctx context.Context, v *domain.Violation, eventType audit.EventType) {
	event := domain.NewViolationEvent(v)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToExam(v.ExamID, ws.EventViolationRecorded, event)
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, event); err != nil {
			s.logger.Warn("webhook notify failed", "violation_id", v.ID, "error", err)
		}
	}

	_ = s.auditLogger.Log(ctx, audit.Event{
		EventType: eventType,
		StudentID: v.StudentID,
		ExamID:    v.ExamID,
		Success:   true,
		Metadata: map[string]string{
			"violation_id": v.ID.String(),
			"type":         string(v.Type),
		},
	})
}
