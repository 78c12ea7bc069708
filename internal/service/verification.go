package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/saturnino-fabrica-de-software/proctor/internal/audit"
	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/imaging"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
)

const DefaultVerificationThreshold = 0.85

// ReferenceStore lists and opens the stored reference photos of a student
type ReferenceStore interface {
	List(ctx context.Context, studentID string) ([]domain.ReferenceImage, error)
	Open(ctx context.Context, ref domain.ReferenceImage) (image.Image, error)
}

// loadStripes bounds the mutexes serialising reference loads. Students that
// hash to the same stripe wait on each other; the set of locks never grows.
const loadStripes = 64

// ReferenceSets guarda os embeddings de referência em memória, por aluno.
// Cada conjunto é imutável depois de publicado; uma nova carga substitui o
// conjunto inteiro.
type ReferenceSets struct {
	mu    sync.RWMutex
	sets  map[string]map[string]provider.Embedding
	locks [loadStripes]sync.Mutex
}

func NewReferenceSets() *ReferenceSets {
	return &ReferenceSets{
		sets: make(map[string]map[string]provider.Embedding),
	}
}

// studentLock returns the mutex serialising loads for studentID
func (r *ReferenceSets) studentLock(studentID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(studentID))
	return &r.locks[h.Sum32()%loadStripes]
}

func (r *ReferenceSets) Get(studentID string) (map[string]provider.Embedding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.sets[studentID]
	return set, ok
}

func (r *ReferenceSets) Replace(studentID string, set map[string]provider.Embedding) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sets[studentID] = set
}

func (r *ReferenceSets) Delete(studentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sets, studentID)
}

type VerificationService struct {
	store       ReferenceStore
	locator     provider.FaceLocator
	embedder    provider.EmbeddingExtractor
	refs        *ReferenceSets
	threshold   float64
	auditLogger audit.Logger
	logger      *slog.Logger
}

type VerificationOption func(*VerificationService)

func WithVerificationThreshold(threshold float64) VerificationOption {
	return func(s *VerificationService) {
		s.threshold = threshold
	}
}

func WithVerificationAudit(logger audit.Logger) VerificationOption {
	return func(s *VerificationService) {
		s.auditLogger = logger
	}
}

func WithVerificationLogger(logger *slog.Logger) VerificationOption {
	return func(s *VerificationService) {
		s.logger = logger
	}
}

func NewVerificationService(
	store ReferenceStore,
	locator provider.FaceLocator,
	embedder provider.EmbeddingExtractor,
	opts ...VerificationOption,
) *VerificationService {
	s := &VerificationService{
		store:       store,
		locator:     locator,
		embedder:    embedder,
		refs:        NewReferenceSets(),
		threshold:   DefaultVerificationThreshold,
		auditLogger: &audit.NoOpLogger{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadReferenceImages computes one embedding per stored view and publishes
// the set. It returns false, leaving any previous set untouched, when no
// image yields an embedding.
func (s *VerificationService) LoadReferenceImages(ctx context.Context, studentID string) (bool, error) {
	lock := s.refs.studentLock(studentID)
	lock.Lock()
	defer lock.Unlock()

	return s.load(ctx, studentID)
}

// load must be called with the student lock held
func (s *VerificationService) load(ctx context.Context, studentID string) (bool, error) {
	refs, err := s.store.List(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("student %s: list references: %w", studentID, err)
	}

	set := make(map[string]provider.Embedding, len(refs))
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		img, err := s.store.Open(ctx, ref)
		if err != nil {
			s.logger.Warn("skipping unreadable reference image",
				"student_id", studentID,
				"file", ref.Filename,
				"error", err,
			)
			continue
		}

		emb, err := s.referenceEmbedding(ctx, imaging.ToRGBA(img))
		if err != nil {
			s.logger.Warn("skipping reference image without embedding",
				"student_id", studentID,
				"file", ref.Filename,
				"error", err,
			)
			continue
		}

		// refs are oldest first within a view
		set[ref.View] = emb
	}

	if len(set) == 0 {
		s.logAudit(ctx, audit.Event{
			EventType: audit.EventReferencesLoaded,
			StudentID: studentID,
			Success:   false,
			Error:     domain.ErrMsgNoReferences,
			Metadata:  map[string]string{"files": strconv.Itoa(len(refs))},
		})
		return false, nil
	}

	s.refs.Replace(studentID, set)

	s.logAudit(ctx, audit.Event{
		EventType: audit.EventReferencesLoaded,
		StudentID: studentID,
		Success:   true,
		Metadata: map[string]string{
			"files": strconv.Itoa(len(refs)),
			"views": strconv.Itoa(len(set)),
		},
	})
	return true, nil
}

// referenceEmbedding embeds the located face, or the whole image when no face
// is found
func (s *VerificationService) referenceEmbedding(ctx context.Context, img image.Image) (provider.Embedding, error) {
	box, found, err := s.locator.LocateFace(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("locate face: %w", err)
	}

	target := img
	if found {
		if crop, ok := imaging.Crop(img, box.Rect()); ok {
			target = crop
		}
	}

	emb, err := s.embedder.ExtractEmbedding(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("extract embedding: %w", err)
	}
	if len(emb) == 0 {
		return nil, fmt.Errorf("extract embedding: empty vector")
	}
	return emb, nil
}

// VerifyFace compares the face in img against the student's references,
// loading them on first use.
func (s *VerificationService) VerifyFace(ctx context.Context, studentID string, img image.Image) (*domain.VerificationResult, error) {
	refs, err := s.snapshot(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		s.auditVerify(ctx, studentID, nil, domain.ErrMsgNoReferences)
		return domain.VerificationFailure(domain.ErrMsgNoReferences), nil
	}

	rgba := imaging.ToRGBA(img)

	box, found, err := s.locator.LocateFace(ctx, rgba)
	if err != nil {
		return nil, fmt.Errorf("student %s: locate live face: %w", studentID, err)
	}
	var crop image.Image
	if found {
		crop, found = imaging.Crop(rgba, box.Rect())
	}
	if !found {
		s.auditVerify(ctx, studentID, nil, domain.ErrMsgNoLiveFace)
		return domain.VerificationFailure(domain.ErrMsgNoLiveFace), nil
	}

	live, err := s.embedder.ExtractEmbedding(ctx, crop)
	if err != nil || len(live) == 0 {
		s.logger.Warn("live embedding failed", "student_id", studentID, "error", err)
		s.auditVerify(ctx, studentID, nil, domain.ErrMsgEmbeddingFailed)
		return domain.VerificationFailure(domain.ErrMsgEmbeddingFailed), nil
	}

	best, ok := s.bestDistance(studentID, refs, live)
	if !ok {
		s.auditVerify(ctx, studentID, nil, domain.ErrMsgEmbeddingFailed)
		return domain.VerificationFailure(domain.ErrMsgEmbeddingFailed), nil
	}

	result := &domain.VerificationResult{
		Success:      true,
		Verified:     best < s.threshold,
		BestDistance: best,
		Threshold:    s.threshold,
		Message:      domain.MessageDifferentPerson,
	}
	if result.Verified {
		result.Message = domain.MessageSamePerson
	}

	s.auditVerify(ctx, studentID, result, "")
	return result, nil
}

// snapshot returns the published set for studentID, loading it when absent
func (s *VerificationService) snapshot(ctx context.Context, studentID string) (map[string]provider.Embedding, error) {
	if set, ok := s.refs.Get(studentID); ok {
		return set, nil
	}

	lock := s.refs.studentLock(studentID)
	lock.Lock()
	defer lock.Unlock()

	if set, ok := s.refs.Get(studentID); ok {
		return set, nil
	}
	if _, err := s.load(ctx, studentID); err != nil {
		return nil, err
	}
	set, _ := s.refs.Get(studentID)
	return set, nil
}

func (s *VerificationService) bestDistance(studentID string, refs map[string]provider.Embedding, live provider.Embedding) (float64, bool) {
	best := math.Inf(1)
	compared := 0
	for _, view := range sortedViews(refs) {
		ref := refs[view]
		if len(ref) != len(live) {
			s.logger.Warn("embedding dimension mismatch",
				"student_id", studentID,
				"view", view,
				"reference_dim", len(ref),
				"live_dim", len(live),
			)
			continue
		}
		d := floats.Distance(ref, live, 2)
		if d < best {
			best = d
		}
		compared++
	}
	return best, compared > 0
}

// GetVerificationStatus reports what is loaded for studentID
func (s *VerificationService) GetVerificationStatus(studentID string) domain.VerificationStatus {
	set, ok := s.refs.Get(studentID)
	return domain.VerificationStatus{
		Loaded:         ok && len(set) > 0,
		ReferenceCount: len(set),
		ReferenceViews: sortedViews(set),
	}
}

// UnloadReferences drops the loaded set so the next verification reloads
func (s *VerificationService) UnloadReferences(studentID string) {
	lock := s.refs.studentLock(studentID)
	lock.Lock()
	defer lock.Unlock()

	s.refs.Delete(studentID)
}

func (s *VerificationService) auditVerify(ctx context.Context, studentID string, result *domain.VerificationResult, failure string) {
	event := audit.Event{
		EventType: audit.EventIdentityVerified,
		StudentID: studentID,
		Success:   result != nil,
		Error:     failure,
	}
	if result != nil {
		event.Metadata = map[string]string{
			"verified":      strconv.FormatBool(result.Verified),
			"best_distance": strconv.FormatFloat(result.BestDistance, 'f', 4, 64),
		}
	}
	s.logAudit(ctx, event)
}

func (s *VerificationService) logAudit(ctx context.Context, event audit.Event) {
	_ = s.auditLogger.Log(ctx, event)
}

func sortedViews(set map[string]provider.Embedding) []string {
	views := make([]string, 0, len(set))
	for v := range set {
		views = append(views, v)
	}
	sort.Strings(views)
	return views
}
