package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/imaging"
	"github.com/saturnino-fabrica-de-software/proctor/internal/service"
)

// ViolationService interface for the service
type ViolationService interface {
	AnalyzeFrame(ctx context.Context, in service.AnalyzeFrameInput) (*service.AnalyzeFrameResult, error)
	ReportViolation(ctx context.Context, in service.ReportInput) (*domain.Violation, error)
	ListViolations(ctx context.Context, studentID, examID string) ([]domain.Violation, error)
}

// ProctorHandler handles frame analysis and the violation log
type ProctorHandler struct {
	service ViolationService
	logger  *slog.Logger
}

func NewProctorHandler(service ViolationService, logger *slog.Logger) *ProctorHandler {
	return &ProctorHandler{
		service: service,
		logger:  logger,
	}
}

type AnalyzeFrameRequest struct {
	Image     string `json:"image"`
	StudentID string `json:"student_id"`
	ExamID    string `json:"exam_id"`
}

type AnalyzeFrameResponse struct {
	Success    bool           `json:"success"`
	Violations domain.Verdict `json:"violations"`
}

type ViolationResponse struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
	Details    string  `json:"details"`
}

type ViolationsResponse struct {
	Success    bool                `json:"success"`
	Violations []ViolationResponse `json:"violations"`
}

type ReportViolationRequest struct {
	StudentID     string  `json:"student_id"`
	ExamID        string  `json:"exam_id"`
	ViolationType string  `json:"violation_type"`
	Details       string  `json:"details"`
	Confidence    float64 `json:"confidence"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// AnalyzeFrame POST /analyze_frame
func (h *ProctorHandler) AnalyzeFrame(c *fiber.Ctx) error {
	var req AnalyzeFrameRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	studentID := strings.TrimSpace(req.StudentID)
	examID := strings.TrimSpace(req.ExamID)
	if studentID == "" || examID == "" {
		return domain.ErrValidationFailed.WithError(errors.New("student_id and exam_id are required"))
	}

	frame, err := imaging.DecodeBase64(req.Image)
	if err != nil {
		return domain.ErrInvalidImage.WithError(err)
	}

	result, err := h.service.AnalyzeFrame(c.Context(), service.AnalyzeFrameInput{
		StudentID: studentID,
		ExamID:    examID,
		Image:     frame,
	})
	if err != nil {
		var appErr *domain.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return domain.ErrAnalysisFailed.WithError(err)
	}

	return c.JSON(AnalyzeFrameResponse{
		Success:    true,
		Violations: result.Verdict,
	})
}

// GetViolations GET /get_violations?student_id=&exam_id=
func (h *ProctorHandler) GetViolations(c *fiber.Ctx) error {
	studentID := strings.TrimSpace(c.Query("student_id"))
	examID := strings.TrimSpace(c.Query("exam_id"))
	if studentID == "" || examID == "" {
		return domain.ErrValidationFailed.WithError(errors.New("student_id and exam_id are required"))
	}

	violations, err := h.service.ListViolations(c.Context(), studentID, examID)
	if err != nil {
		return err
	}

	out := make([]ViolationResponse, 0, len(violations))
	for _, v := range violations {
		out = append(out, ViolationResponse{
			Type:       string(v.Type),
			Confidence: v.Confidence,
			Timestamp:  v.Timestamp.UTC().Format(time.RFC3339),
			Details:    v.Details,
		})
	}

	return c.JSON(ViolationsResponse{
		Success:    true,
		Violations: out,
	})
}

// ReportViolation POST /report_violation
func (h *ProctorHandler) ReportViolation(c *fiber.Ctx) error {
	var req ReportViolationRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	v, err := h.service.ReportViolation(c.Context(), service.ReportInput{
		StudentID:  strings.TrimSpace(req.StudentID),
		ExamID:     strings.TrimSpace(req.ExamID),
		Type:       domain.ViolationType(req.ViolationType),
		Confidence: req.Confidence,
		Details:    req.Details,
	})
	if err != nil {
		return err
	}

	h.logger.Debug("client violation reported",
		"student_id", v.StudentID,
		"exam_id", v.ExamID,
		"type", v.Type,
	)

	return c.JSON(SuccessResponse{Success: true})
}
