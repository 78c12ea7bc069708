package face

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/proctor/internal/audit"
	"github.com/saturnino-fabrica-de-software/proctor/internal/config"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider/inference"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider/rekognition"
)

// ProviderType defines supported model backends
type ProviderType string

const (
	// ProviderTypeInference is the YOLO + FaceMesh sidecar (default detector)
	ProviderTypeInference ProviderType = "inference"
	// ProviderTypeRekognition is AWS Rekognition (cloud detector, planar landmarks)
	ProviderTypeRekognition ProviderType = "rekognition"
	// ProviderTypeDeepFace is the DeepFace API (default embedding backend)
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeMock is the in-process mock for development and tests
	ProviderTypeMock ProviderType = "mock"
)

// Backends groups the capability providers used by the pipeline and the
// verification service.
type Backends struct {
	Detector  provider.ObjectDetector
	Landmarks provider.LandmarkExtractor
	Locator   provider.FaceLocator
	Embedder  provider.EmbeddingExtractor
}

// NewBackends creates the providers selected by configuration
//
// Environment variables:
//   - DETECTOR_PROVIDER: "inference", "rekognition" or "mock" (default: "inference")
//   - EMBEDDING_PROVIDER: "deepface" or "mock" (default: "deepface")
//   - INFERENCE_URL, DEEPFACE_URL: sidecar URLs
//   - AWS_REGION: AWS region for Rekognition (credentials via the AWS SDK chain)
func NewBackends(ctx context.Context, cfg *config.Config, auditLogger audit.Logger) (*Backends, error) {
	b := &Backends{}

	switch ProviderType(cfg.DetectorProvider) {
	case ProviderTypeInference, "":
		prov := createInferenceProvider(cfg)
		b.Detector, b.Landmarks = prov, prov

	case ProviderTypeRekognition:
		prov, err := createRekognitionProvider(ctx, cfg, auditLogger)
		if err != nil {
			return nil, err
		}
		b.Detector, b.Landmarks = prov, prov

	case ProviderTypeMock:
		prov := mock.New()
		b.Detector, b.Landmarks = prov, prov

	default:
		return nil, fmt.Errorf("unknown detector provider: %s (supported: %s, %s, %s)",
			cfg.DetectorProvider, ProviderTypeInference, ProviderTypeRekognition, ProviderTypeMock)
	}

	switch ProviderType(cfg.EmbeddingProvider) {
	case ProviderTypeDeepFace, "":
		prov := createDeepFaceProvider(cfg)
		b.Locator, b.Embedder = prov, prov

	case ProviderTypeMock:
		prov := mock.New()
		b.Locator, b.Embedder = prov, prov

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: %s, %s)",
			cfg.EmbeddingProvider, ProviderTypeDeepFace, ProviderTypeMock)
	}

	return b, nil
}

// createRekognitionProvider creates an AWS Rekognition provider instance
func createRekognitionProvider(ctx context.Context, cfg *config.Config, auditLogger audit.Logger) (*rekognition.Provider, error) {
	rekogConfig := rekognition.DefaultConfig()
	if cfg.AWSRegion != "" {
		rekogConfig.Region = cfg.AWSRegion
	}

	var opts []rekognition.ProviderOption
	if auditLogger != nil {
		opts = append(opts, rekognition.WithAuditLogger(auditLogger))
	}

	prov, err := rekognition.NewProvider(ctx, rekogConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("create rekognition provider: %w", err)
	}
	return prov, nil
}

// createInferenceProvider creates an inference sidecar provider instance
func createInferenceProvider(cfg *config.Config) *inference.Provider {
	inferenceConfig := inference.DefaultConfig()
	if cfg.InferenceURL != "" {
		inferenceConfig.BaseURL = cfg.InferenceURL
	}
	return inference.NewProvider(inferenceConfig)
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Config) *deepface.Provider {
	deepfaceConfig := deepface.DefaultConfig()
	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	return deepface.NewProvider(deepfaceConfig)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// HealthChecks returns a probe for every backend that exposes one, keyed by role
func (b *Backends) HealthChecks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if hc, ok := b.Detector.(healthChecker); ok {
		checks["detector"] = hc.Health
	}
	if hc, ok := b.Embedder.(healthChecker); ok {
		checks["embedder"] = hc.Health
	}
	return checks
}
