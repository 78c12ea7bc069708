package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/proctor/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/service"
)

// testLogger returns a logger that discards all output
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(testLogger()),
	})
}

// pngBase64 encodes a small solid frame
func pngBase64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 90, B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type MockViolationService struct {
	mock.Mock
}

func (m *MockViolationService) AnalyzeFrame(ctx context.Context, in service.AnalyzeFrameInput) (*service.AnalyzeFrameResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AnalyzeFrameResult), args.Error(1)
}

func (m *MockViolationService) ReportViolation(ctx context.Context, in service.ReportInput) (*domain.Violation, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Violation), args.Error(1)
}

func (m *MockViolationService) ListViolations(ctx context.Context, studentID, examID string) ([]domain.Violation, error) {
	args := m.Called(ctx, studentID, examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Violation), args.Error(1)
}

type MockVerificationService struct {
	mock.Mock
}

func (m *MockVerificationService) LoadReferenceImages(ctx context.Context, studentID string) (bool, error) {
	args := m.Called(ctx, studentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockVerificationService) VerifyFace(ctx context.Context, studentID string, img image.Image) (*domain.VerificationResult, error) {
	args := m.Called(ctx, studentID, img)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VerificationResult), args.Error(1)
}

func (m *MockVerificationService) GetVerificationStatus(studentID string) domain.VerificationStatus {
	args := m.Called(studentID)
	return args.Get(0).(domain.VerificationStatus)
}

func (m *MockVerificationService) UnloadReferences(studentID string) {
	m.Called(studentID)
}

type MockReferenceImageStore struct {
	mock.Mock
}

func (m *MockReferenceImageStore) Save(ctx context.Context, studentID, view string, img image.Image) (*domain.ReferenceImage, error) {
	args := m.Called(ctx, studentID, view, img)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReferenceImage), args.Error(1)
}

func (m *MockReferenceImageStore) List(ctx context.Context, studentID string) ([]domain.ReferenceImage, error) {
	args := m.Called(ctx, studentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ReferenceImage), args.Error(1)
}
