package deepface

import (
	"context"
	"fmt"
	"image"

	"github.com/saturnino-fabrica-de-software/proctor/internal/imaging"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
)

// Provider implementa provider.FaceLocator e provider.EmbeddingExtractor usando a API DeepFace
type Provider struct {
	client    *Client
	normalize bool
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client:    NewClient(config),
		normalize: config.Normalize,
	}
}

// Health reports whether the DeepFace API is reachable
func (p *Provider) Health(ctx context.Context) error {
	return p.client.Health(ctx)
}

// LocateFace returns the largest face DeepFace detects in img. A 4xx from
// DeepFace with detection enforced means no face was found.
func (p *Provider) LocateFace(ctx context.Context, img image.Image) (provider.BoundingBox, bool, error) {
	payload, err := imaging.EncodeDataURL(img)
	if err != nil {
		return provider.BoundingBox{}, false, fmt.Errorf("locate face: %w", err)
	}

	resp, err := p.client.Represent(ctx, payload, true)
	if err != nil {
		if isClientError(err) {
			return provider.BoundingBox{}, false, nil
		}
		return provider.BoundingBox{}, false, fmt.Errorf("locate face: %w", err)
	}

	var best *FacialArea
	for i := range resp.Results {
		area := resp.Results[i].FacialArea
		if area.W <= 0 || area.H <= 0 {
			continue
		}
		if best == nil || area.W*area.H > best.W*best.H {
			best = &resp.Results[i].FacialArea
		}
	}
	if best == nil {
		return provider.BoundingBox{}, false, nil
	}

	origin := img.Bounds().Min
	return provider.BoundingBox{
		X:      float64(origin.X + best.X),
		Y:      float64(origin.Y + best.Y),
		Width:  float64(best.W),
		Height: float64(best.H),
	}, true, nil
}

// ExtractEmbedding computes the embedding of an already cropped face.
func (p *Provider) ExtractEmbedding(ctx context.Context, img image.Image) (provider.Embedding, error) {
	payload, err := imaging.EncodeDataURL(img)
	if err != nil {
		return nil, fmt.Errorf("extract embedding: %w", err)
	}

	resp, err := p.client.RepresentAligned(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("extract embedding: %w", err)
	}

	if len(resp.Results) == 0 || len(resp.Results[0].Embedding) == 0 {
		return nil, ErrNoFaceInResponse
	}

	embedding := provider.Embedding(resp.Results[0].Embedding)
	if p.normalize {
		embedding = NormalizeEmbedding(embedding)
	}
	return embedding, nil
}

var (
	_ provider.FaceLocator        = (*Provider)(nil)
	_ provider.EmbeddingExtractor = (*Provider)(nil)
)
