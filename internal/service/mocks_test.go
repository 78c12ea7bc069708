package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
	"github.com/saturnino-fabrica-de-software/proctor/internal/ws"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockViolationRepository struct {
	mock.Mock
}

func (m *MockViolationRepository) Insert(ctx context.Context, v *domain.Violation) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *MockViolationRepository) ExistsWithin(ctx context.Context, studentID, examID string, vtype domain.ViolationType, since time.Time) (bool, error) {
	args := m.Called(ctx, studentID, examID, vtype, since)
	return args.Bool(0), args.Error(1)
}

func (m *MockViolationRepository) ListByStudentExam(ctx context.Context, studentID, examID string) ([]domain.Violation, error) {
	args := m.Called(ctx, studentID, examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Violation), args.Error(1)
}

type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) DetectViolations(ctx context.Context, img image.Image) (domain.Verdict, error) {
	args := m.Called(ctx, img)
	return args.Get(0).(domain.Verdict), args.Error(1)
}

type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) BroadcastToExam(examID string, eventType ws.EventType, data interface{}) {
	m.Called(examID, eventType, data)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, event domain.ViolationEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) Acquire(ctx context.Context, studentID, examID string, vtype domain.ViolationType, window time.Duration) (bool, error) {
	args := m.Called(ctx, studentID, examID, vtype, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockGuard) Release(ctx context.Context, studentID, examID string, vtype domain.ViolationType) error {
	args := m.Called(ctx, studentID, examID, vtype)
	return args.Error(0)
}

// memoryViolationRepository honours the time window like the postgres store
type memoryViolationRepository struct {
	mu         sync.Mutex
	violations []domain.Violation
	// failInserts makes the next n inserts fail
	failInserts int
}

func (r *memoryViolationRepository) Insert(_ context.Context, v *domain.Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInserts > 0 {
		r.failInserts--
		return errors.New("connection reset")
	}
	r.violations = append(r.violations, *v)
	return nil
}

func (r *memoryViolationRepository) ExistsWithin(_ context.Context, studentID, examID string, vtype domain.ViolationType, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.violations {
		if v.StudentID == studentID && v.ExamID == examID && v.Type == vtype && !v.Timestamp.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryViolationRepository) ListByStudentExam(_ context.Context, studentID, examID string) ([]domain.Violation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Violation{}
	for i := len(r.violations) - 1; i >= 0; i-- {
		v := r.violations[i]
		if v.StudentID == studentID && v.ExamID == examID {
			out = append(out, v)
		}
	}
	return out, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stubReferenceStore serves in-memory images; refs whose filename is in
// broken fail to open
type stubReferenceStore struct {
	refs    []domain.ReferenceImage
	images  map[string]image.Image
	broken  map[string]bool
	listErr error

	mu    sync.Mutex
	lists int
}

func (s *stubReferenceStore) listCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func (s *stubReferenceStore) List(_ context.Context, _ string) ([]domain.ReferenceImage, error) {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.refs, nil
}

func (s *stubReferenceStore) Open(_ context.Context, ref domain.ReferenceImage) (image.Image, error) {
	if s.broken[ref.Filename] {
		return nil, errors.New("corrupt file")
	}
	img, ok := s.images[ref.Filename]
	if !ok {
		return nil, errors.New("not found")
	}
	return img, nil
}

// tonedImage returns a uniform image whose red channel identifies it
func tonedImage(tone uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: tone, G: 10, B: 10, A: 255})
		}
	}
	return img
}

// toneEmbedder maps an image's red tone onto a configured embedding
type toneEmbedder struct {
	vectors map[uint8]provider.Embedding
	fail    map[uint8]bool
}

func (e *toneEmbedder) ExtractEmbedding(_ context.Context, img image.Image) (provider.Embedding, error) {
	b := img.Bounds()
	r, _, _, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	tone := uint8(r >> 8)
	if e.fail[tone] {
		return nil, errors.New("model error")
	}
	v, ok := e.vectors[tone]
	if !ok {
		return nil, errors.New("unknown tone")
	}
	return v, nil
}

// stubLocator finds a centred face unless the image's tone is in missing
type stubLocator struct {
	missing map[uint8]bool
	err     error
}

func (l *stubLocator) LocateFace(_ context.Context, img image.Image) (provider.BoundingBox, bool, error) {
	if l.err != nil {
		return provider.BoundingBox{}, false, l.err
	}
	b := img.Bounds()
	r, _, _, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	if l.missing[uint8(r>>8)] {
		return provider.BoundingBox{}, false, nil
	}
	return provider.BoundingBox{
		X:      float64(b.Min.X) + float64(b.Dx())/4,
		Y:      float64(b.Min.Y) + float64(b.Dy())/4,
		Width:  float64(b.Dx()) / 2,
		Height: float64(b.Dy()) / 2,
	}, true, nil
}
