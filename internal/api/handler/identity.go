package handler

import (
	"context"
	"image"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/imaging"
	"github.com/saturnino-fabrica-de-software/proctor/internal/refstore"
)

const (
	msgReferencesLoaded     = "Reference images loaded successfully"
	msgReferencesLoadFailed = "Failed to load reference images"
)

// VerificationService interface for the service
type VerificationService interface {
	LoadReferenceImages(ctx context.Context, studentID string) (bool, error)
	VerifyFace(ctx context.Context, studentID string, img image.Image) (*domain.VerificationResult, error)
	GetVerificationStatus(studentID string) domain.VerificationStatus
	UnloadReferences(studentID string)
}

// ReferenceImageStore persists reference photos
type ReferenceImageStore interface {
	Save(ctx context.Context, studentID, view string, img image.Image) (*domain.ReferenceImage, error)
	List(ctx context.Context, studentID string) ([]domain.ReferenceImage, error)
}

// IdentityHandler handles reference photos and identity verification
type IdentityHandler struct {
	verifier VerificationService
	store    ReferenceImageStore
	logger   *slog.Logger
}

func NewIdentityHandler(verifier VerificationService, store ReferenceImageStore, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{
		verifier: verifier,
		store:    store,
		logger:   logger,
	}
}

type UploadFaceImageRequest struct {
	Image     string `json:"image"`
	StudentID string `json:"student_id"`
	ViewType  string `json:"view_type"`
}

type UploadFaceImageResponse struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
}

type FaceImageResponse struct {
	Filename  string `json:"filename"`
	ViewType  string `json:"view_type"`
	Timestamp string `json:"timestamp"`
	Size      int64  `json:"size"`
}

type FaceImagesResponse struct {
	Success bool                `json:"success"`
	Images  []FaceImageResponse `json:"images"`
}

type VerifyFaceRequest struct {
	StudentID string `json:"student_id"`
	Image     string `json:"image"`
}

type VerificationStatusResponse struct {
	Success bool                      `json:"success"`
	Status  domain.VerificationStatus `json:"status"`
}

type LoadReferencesRequest struct {
	StudentID string `json:"student_id"`
}

// studentID validates a student identifier taken from the request
func studentID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if err := refstore.ValidateKey(id); err != nil {
		return "", domain.ErrValidationFailed.WithError(err)
	}
	return id, nil
}

// UploadFaceImage POST /upload_face_image
func (h *IdentityHandler) UploadFaceImage(c *fiber.Ctx) error {
	var req UploadFaceImageRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	student, err := studentID(req.StudentID)
	if err != nil {
		return err
	}
	view := strings.TrimSpace(req.ViewType)
	if err := refstore.ValidateKey(view); err != nil {
		return domain.ErrInvalidView.WithError(err)
	}

	img, err := imaging.DecodeBase64(req.Image)
	if err != nil {
		return domain.ErrInvalidImage.WithError(err)
	}

	ref, err := h.store.Save(c.Context(), student, view, img)
	if err != nil {
		return err
	}

	h.verifier.UnloadReferences(student)

	h.logger.Info("reference image stored",
		"student_id", student,
		"view", view,
		"file", ref.Filename,
	)

	return c.JSON(UploadFaceImageResponse{
		Success:  true,
		Filename: ref.Filename,
	})
}

// GetFaceImages GET /get_face_images?student_id=
func (h *IdentityHandler) GetFaceImages(c *fiber.Ctx) error {
	student, err := studentID(c.Query("student_id"))
	if err != nil {
		return err
	}

	refs, err := h.store.List(c.Context(), student)
	if err != nil {
		return err
	}

	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Timestamp.After(refs[j].Timestamp)
	})

	images := make([]FaceImageResponse, 0, len(refs))
	for _, ref := range refs {
		images = append(images, FaceImageResponse{
			Filename:  ref.Filename,
			ViewType:  ref.View,
			Timestamp: ref.Timestamp.UTC().Format(time.RFC3339),
			Size:      ref.Size,
		})
	}

	return c.JSON(FaceImagesResponse{
		Success: true,
		Images:  images,
	})
}

// VerifyFace POST /verify_face
func (h *IdentityHandler) VerifyFace(c *fiber.Ctx) error {
	var req VerifyFaceRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	student, err := studentID(req.StudentID)
	if err != nil {
		return err
	}

	img, err := imaging.DecodeBase64(req.Image)
	if err != nil {
		return domain.ErrInvalidImage.WithError(err)
	}

	result, err := h.verifier.VerifyFace(c.Context(), student, img)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

// VerificationStatus GET /face_verification_status?student_id=
func (h *IdentityHandler) VerificationStatus(c *fiber.Ctx) error {
	student, err := studentID(c.Query("student_id"))
	if err != nil {
		return err
	}

	return c.JSON(VerificationStatusResponse{
		Success: true,
		Status:  h.verifier.GetVerificationStatus(student),
	})
}

// LoadReferenceImages POST /load_reference_images
func (h *IdentityHandler) LoadReferenceImages(c *fiber.Ctx) error {
	var req LoadReferencesRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	student, err := studentID(req.StudentID)
	if err != nil {
		return err
	}

	ok, err := h.verifier.LoadReferenceImages(c.Context(), student)
	if err != nil {
		return err
	}

	message := msgReferencesLoaded
	if !ok {
		message = msgReferencesLoadFailed
	}

	return c.JSON(SuccessResponse{
		Success: ok,
		Message: message,
	})
}
