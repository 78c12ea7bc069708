package inference

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/saturnino-fabrica-de-software/proctor/internal/imaging"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
)

// meshIndex maps LandmarkSet positions onto MediaPipe FaceMesh indices.
var meshIndex = [provider.LandmarkCount]int{
	provider.NoseTip:        1,
	provider.LeftEyeOuter:   33,
	provider.RightEyeOuter:  263,
	provider.MouthLeft:      61,
	provider.MouthRight:     291,
	provider.Chin:           199,
	provider.LeftEyeInner:   133,
	provider.RightEyeInner:  362,
	provider.LeftEyeTop:     159,
	provider.LeftEyeBottom:  145,
	provider.RightEyeTop:    386,
	provider.RightEyeBottom: 374,
}

// Provider implements ObjectDetector and LandmarkExtractor on the inference sidecar
type Provider struct {
	client *Client
}

var (
	_ provider.ObjectDetector    = (*Provider)(nil)
	_ provider.LandmarkExtractor = (*Provider)(nil)
)

// NewProvider creates a new inference provider
func NewProvider(config Config) *Provider {
	return &Provider{client: NewClient(config)}
}

// NewProviderWithClient creates a provider with a custom client (useful for testing)
func NewProviderWithClient(client *Client) *Provider {
	return &Provider{client: client}
}

// Detect runs YOLO over the frame. Class names are lowercased and box
// coordinates are shifted into the frame's coordinate space.
func (p *Provider) Detect(ctx context.Context, img image.Image) ([]provider.Detection, error) {
	encoded, err := imaging.EncodeDataURL(img)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	resp, err := p.client.Detect(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	origin := img.Bounds().Min
	detections := make([]provider.Detection, 0, len(resp.Detections))
	for _, d := range resp.Detections {
		if d.Box.X2 <= d.Box.X1 || d.Box.Y2 <= d.Box.Y1 {
			continue
		}
		detections = append(detections, provider.Detection{
			Class:      normaliseClass(d.Class),
			Confidence: d.Confidence,
			Box: provider.BoundingBox{
				X:      float64(origin.X) + d.Box.X1,
				Y:      float64(origin.Y) + d.Box.Y1,
				Width:  d.Box.X2 - d.Box.X1,
				Height: d.Box.Y2 - d.Box.Y1,
			},
		})
	}
	return detections, nil
}

// ExtractLandmarks runs FaceMesh over a face crop
func (p *Provider) ExtractLandmarks(ctx context.Context, img image.Image) ([]provider.LandmarkSet, error) {
	encoded, err := imaging.EncodeDataURL(img)
	if err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}

	resp, err := p.client.Landmarks(ctx, encoded)
	if err != nil {
		return nil, fmt.Errorf("landmarks: %w", err)
	}

	sets := make([]provider.LandmarkSet, 0, len(resp.Faces))
	for _, face := range resp.Faces {
		set, ok := toLandmarkSet(face.Landmarks)
		if !ok {
			continue
		}
		sets = append(sets, set)
	}
	if len(sets) == 0 {
		return nil, provider.ErrNoFace
	}
	return sets, nil
}

// Health checks if the sidecar is reachable
func (p *Provider) Health(ctx context.Context) error {
	return p.client.Health(ctx)
}

func toLandmarkSet(mesh [][3]float64) (provider.LandmarkSet, bool) {
	var set provider.LandmarkSet
	for i, idx := range meshIndex {
		if idx >= len(mesh) {
			return set, false
		}
		pt := mesh[idx]
		set[i] = provider.Point3{X: pt[0], Y: pt[1], Z: pt[2]}
	}
	return set, true
}

// normaliseClass maps COCO labels onto detection classes. Stock YOLO weights
// have no face class; their person class (0) is treated as the face box.
func normaliseClass(class string) string {
	c := strings.ToLower(strings.TrimSpace(class))
	switch c {
	case "person":
		return provider.ClassFace
	case "cellphone", "mobile phone", "phone":
		return provider.ClassCellPhone
	case "tvmonitor":
		return provider.ClassTV
	}
	return c
}
