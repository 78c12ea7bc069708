package mock

import (
	"context"
	"crypto/sha256"
	"image"
	"math"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
)

const embeddingDimension = 512

// Provider implementa todas as interfaces de provider para testes e desenvolvimento
// Campos vazios usam o comportamento padrão: uma face frontal cobrindo o centro do frame
type Provider struct {
	Detections []provider.Detection
	Landmarks  []provider.LandmarkSet
	NoFace     bool
}

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

// Detect simula detecção retornando as detecções configuradas ou uma face central
func (p *Provider) Detect(ctx context.Context, img image.Image) ([]provider.Detection, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, domain.ErrInvalidImage
	}

	if p.Detections != nil {
		return p.Detections, nil
	}
	if p.NoFace {
		return []provider.Detection{}, nil
	}

	return []provider.Detection{
		{Class: provider.ClassFace, Confidence: 0.99, Box: centralBox(img.Bounds())},
	}, nil
}

// ExtractLandmarks retorna os landmarks configurados ou uma face frontal
func (p *Provider) ExtractLandmarks(ctx context.Context, img image.Image) ([]provider.LandmarkSet, error) {
	if p.NoFace {
		return nil, provider.ErrNoFace
	}
	if p.Landmarks != nil {
		return p.Landmarks, nil
	}
	return []provider.LandmarkSet{FrontalLandmarks()}, nil
}

// LocateFace simula localização da face no centro da imagem
func (p *Provider) LocateFace(ctx context.Context, img image.Image) (provider.BoundingBox, bool, error) {
	if img == nil || img.Bounds().Empty() {
		return provider.BoundingBox{}, false, domain.ErrInvalidImage
	}
	if p.NoFace {
		return provider.BoundingBox{}, false, nil
	}
	return centralBox(img.Bounds()), true, nil
}

// ExtractEmbedding gera embedding determinístico baseado no hash dos pixels
func (p *Provider) ExtractEmbedding(ctx context.Context, img image.Image) (provider.Embedding, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, domain.ErrInvalidImage
	}
	return generateEmbedding(pixelBytes(img)), nil
}

// FrontalLandmarks returns a flat, centred face looking straight at the
// camera with an eye aspect ratio of 0.3.
func FrontalLandmarks() provider.LandmarkSet {
	var l provider.LandmarkSet
	l[provider.NoseTip] = provider.Point3{X: 0.5, Y: 0.55}
	l[provider.LeftEyeOuter] = provider.Point3{X: 0.3, Y: 0.4}
	l[provider.RightEyeOuter] = provider.Point3{X: 0.7, Y: 0.4}
	l[provider.MouthLeft] = provider.Point3{X: 0.38, Y: 0.72}
	l[provider.MouthRight] = provider.Point3{X: 0.62, Y: 0.72}
	l[provider.Chin] = provider.Point3{X: 0.5, Y: 0.9}
	l[provider.LeftEyeInner] = provider.Point3{X: 0.42, Y: 0.4}
	l[provider.RightEyeInner] = provider.Point3{X: 0.58, Y: 0.4}
	l[provider.LeftEyeTop] = provider.Point3{X: 0.36, Y: 0.382}
	l[provider.LeftEyeBottom] = provider.Point3{X: 0.36, Y: 0.418}
	l[provider.RightEyeTop] = provider.Point3{X: 0.64, Y: 0.382}
	l[provider.RightEyeBottom] = provider.Point3{X: 0.64, Y: 0.418}
	return l
}

func centralBox(b image.Rectangle) provider.BoundingBox {
	w := float64(b.Dx())
	h := float64(b.Dy())
	return provider.BoundingBox{
		X:      float64(b.Min.X) + w*0.1,
		Y:      float64(b.Min.Y) + h*0.1,
		Width:  w * 0.8,
		Height: h * 0.8,
	}
}

func pixelBytes(img image.Image) []byte {
	b := img.Bounds()
	buf := make([]byte, 0, b.Dx()*b.Dy()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			buf = append(buf, byte(r>>8), byte(g>>8), byte(bl>>8), byte(a>>8))
		}
	}
	return buf
}

// generateEmbedding gera embedding determinístico baseado no hash da imagem
func generateEmbedding(data []byte) provider.Embedding {
	hash := sha256.Sum256(data)
	embedding := make(provider.Embedding, embeddingDimension)
	hashLen := len(hash)

	for i := 0; i < embeddingDimension; i++ {
		idx := i % hashLen
		//nolint:gosec // idx is always < hashLen due to modulo operation
		embedding[i] = (float64(hash[idx])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return embedding
	}

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

var (
	_ provider.ObjectDetector     = (*Provider)(nil)
	_ provider.LandmarkExtractor  = (*Provider)(nil)
	_ provider.FaceLocator        = (*Provider)(nil)
	_ provider.EmbeddingExtractor = (*Provider)(nil)
)
