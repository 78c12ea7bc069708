package rekognition

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"github.com/saturnino-fabrica-de-software/proctor/internal/audit"
	"github.com/saturnino-fabrica-de-software/proctor/internal/imaging"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
)

const (
	// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
	maxImageSize = 5 * 1024 * 1024
	// minImageSize is the minimum image size for valid processing
	minImageSize = 100

	jpegQuality = 90
)

// Provider implements object detection, landmark extraction and face
// location on top of AWS Rekognition. Landmarks carry no depth, so head pose
// derived from them is always frontal.
type Provider struct {
	client      *Client
	auditLogger audit.Logger
}

// ProviderOption defines optional configuration for Provider
type ProviderOption func(*Provider)

// WithAuditLogger sets the audit logger for the provider
func WithAuditLogger(logger audit.Logger) ProviderOption {
	return func(p *Provider) {
		p.auditLogger = logger
	}
}

var (
	_ provider.ObjectDetector    = (*Provider)(nil)
	_ provider.LandmarkExtractor = (*Provider)(nil)
	_ provider.FaceLocator       = (*Provider)(nil)
)

// NewProvider creates a new Rekognition provider using the default AWS credential chain
func NewProvider(ctx context.Context, cfg Config, opts ...ProviderOption) (*Provider, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create rekognition client: %w", err)
	}
	return NewProviderWithClient(client, opts...), nil
}

// NewProviderWithClient creates a provider around an existing client
func NewProviderWithClient(client *Client, opts ...ProviderOption) *Provider {
	p := &Provider{client: client}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// logAudit logs an audit event if an audit logger is configured
// Audit failure does not affect the operation (fire-and-forget)
func (p *Provider) logAudit(ctx context.Context, op string, err error, metadata map[string]string) {
	if p.auditLogger == nil {
		return
	}

	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["operation"] = op

	event := audit.Event{
		EventType: audit.EventProviderInvocation,
		Provider:  "rekognition",
		Success:   err == nil,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	_ = p.auditLogger.Log(ctx, event)
}

// validateImage checks if image data is valid for Rekognition processing
func validateImage(image []byte) error {
	if len(image) == 0 {
		return ErrInvalidImage
	}
	if len(image) < minImageSize {
		return fmt.Errorf("%w: image too small (%d bytes, minimum %d)", ErrInvalidImage, len(image), minImageSize)
	}
	if len(image) > maxImageSize {
		return fmt.Errorf("%w: image too large (%d bytes, maximum %d)", ErrInvalidImage, len(image), maxImageSize)
	}
	return nil
}

// encode downsizes and JPEG-encodes img. Boxes come back as ratios, so
// downsizing does not affect coordinates.
func (p *Provider) encode(img image.Image) ([]byte, error) {
	fitted := imaging.Fit(img, p.client.config.MaxImageSide)
	data, err := imaging.EncodeJPEG(fitted, jpegQuality)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if err := validateImage(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Detect runs DetectFaces and DetectLabels over the frame and merges the
// results into lowercase detection classes.
func (p *Provider) Detect(ctx context.Context, img image.Image) ([]provider.Detection, error) {
	data, err := p.encode(img)
	if err != nil {
		p.logAudit(ctx, "detect", err, nil)
		return nil, fmt.Errorf("detect: %w", err)
	}

	faces, err := p.client.rekognition.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: data},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		err = classifyError("detect faces", err)
		p.logAudit(ctx, "detect", err, nil)
		return nil, err
	}

	labels, err := p.client.rekognition.DetectLabels(ctx, &rekognition.DetectLabelsInput{
		Image:         &types.Image{Bytes: data},
		MaxLabels:     aws.Int32(p.client.config.MaxLabels),
		MinConfidence: aws.Float32(p.client.config.MinLabelConfidence),
	})
	if err != nil {
		err = classifyError("detect labels", err)
		p.logAudit(ctx, "detect", err, nil)
		return nil, err
	}

	bounds := img.Bounds()
	detections := make([]provider.Detection, 0, len(faces.FaceDetails)+len(labels.Labels))

	for _, face := range faces.FaceDetails {
		if face.BoundingBox == nil {
			continue
		}
		detections = append(detections, provider.Detection{
			Class:      provider.ClassFace,
			Confidence: percent(face.Confidence),
			Box:        toBox(face.BoundingBox, bounds),
		})
	}

	for _, label := range labels.Labels {
		class, ok := labelClass(aws.ToString(label.Name))
		if !ok {
			continue
		}
		for _, inst := range label.Instances {
			if inst.BoundingBox == nil {
				continue
			}
			detections = append(detections, provider.Detection{
				Class:      class,
				Confidence: percent(inst.Confidence),
				Box:        toBox(inst.BoundingBox, bounds),
			})
		}
	}

	p.logAudit(ctx, "detect", nil, map[string]string{
		"faces_count":      strconv.Itoa(len(faces.FaceDetails)),
		"detections_count": strconv.Itoa(len(detections)),
	})

	return detections, nil
}

// ExtractLandmarks maps Rekognition landmarks for every face in the crop.
// Faces missing any required landmark are skipped.
func (p *Provider) ExtractLandmarks(ctx context.Context, img image.Image) ([]provider.LandmarkSet, error) {
	details, err := p.detectFaces(ctx, img)
	if err != nil {
		return nil, err
	}

	sets := make([]provider.LandmarkSet, 0, len(details))
	for _, face := range details {
		if set, ok := toLandmarkSet(face.Landmarks); ok {
			sets = append(sets, set)
		}
	}
	if len(sets) == 0 {
		return nil, provider.ErrNoFace
	}
	return sets, nil
}

// LocateFace returns the largest face in img.
func (p *Provider) LocateFace(ctx context.Context, img image.Image) (provider.BoundingBox, bool, error) {
	details, err := p.detectFaces(ctx, img)
	if err != nil {
		return provider.BoundingBox{}, false, err
	}

	var best provider.BoundingBox
	found := false
	for _, face := range details {
		if face.BoundingBox == nil {
			continue
		}
		box := toBox(face.BoundingBox, img.Bounds())
		if !found || box.Width*box.Height > best.Width*best.Height {
			best = box
			found = true
		}
	}
	return best, found, nil
}

func (p *Provider) detectFaces(ctx context.Context, img image.Image) ([]types.FaceDetail, error) {
	data, err := p.encode(img)
	if err != nil {
		p.logAudit(ctx, "detect_faces", err, nil)
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	out, err := p.client.rekognition.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: data},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		err = classifyError("detect faces", err)
		p.logAudit(ctx, "detect_faces", err, nil)
		return nil, err
	}

	p.logAudit(ctx, "detect_faces", nil, map[string]string{
		"faces_count": strconv.Itoa(len(out.FaceDetails)),
	})
	return out.FaceDetails, nil
}

// labelClass normalises Rekognition label names onto detection classes
func labelClass(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "cell phone", "mobile phone", "phone":
		return provider.ClassCellPhone, true
	case "laptop", "pc", "computer":
		return provider.ClassLaptop, true
	case "tv", "television":
		return provider.ClassTV, true
	case "monitor", "screen", "display":
		return provider.ClassMonitor, true
	case "person":
		return provider.ClassPerson, true
	}
	return "", false
}

// toBox converts a ratio bounding box into pixel coordinates of bounds
func toBox(b *types.BoundingBox, bounds image.Rectangle) provider.BoundingBox {
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())
	return provider.BoundingBox{
		X:      float64(bounds.Min.X) + float64(aws.ToFloat32(b.Left))*w,
		Y:      float64(bounds.Min.Y) + float64(aws.ToFloat32(b.Top))*h,
		Width:  float64(aws.ToFloat32(b.Width)) * w,
		Height: float64(aws.ToFloat32(b.Height)) * h,
	}
}

func percent(v *float32) float64 {
	return float64(aws.ToFloat32(v)) / 100.0
}

// landmarkIndex maps Rekognition landmark types onto LandmarkSet positions.
var landmarkIndex = map[types.LandmarkType]int{
	types.LandmarkTypeNose:          provider.NoseTip,
	types.LandmarkTypeLeftEyeLeft:   provider.LeftEyeOuter,
	types.LandmarkTypeRightEyeRight: provider.RightEyeOuter,
	types.LandmarkTypeMouthLeft:     provider.MouthLeft,
	types.LandmarkTypeMouthRight:    provider.MouthRight,
	types.LandmarkTypeChinBottom:    provider.Chin,
	types.LandmarkTypeLeftEyeRight:  provider.LeftEyeInner,
	types.LandmarkTypeRightEyeLeft:  provider.RightEyeInner,
	types.LandmarkTypeLeftEyeUp:     provider.LeftEyeTop,
	types.LandmarkTypeLeftEyeDown:   provider.LeftEyeBottom,
	types.LandmarkTypeRightEyeUp:    provider.RightEyeTop,
	types.LandmarkTypeRightEyeDown:  provider.RightEyeBottom,
}

func toLandmarkSet(landmarks []types.Landmark) (provider.LandmarkSet, bool) {
	var set provider.LandmarkSet
	seen := 0
	for _, lm := range landmarks {
		idx, ok := landmarkIndex[lm.Type]
		if !ok || lm.X == nil || lm.Y == nil {
			continue
		}
		set[idx] = provider.Point3{X: float64(*lm.X), Y: float64(*lm.Y)}
		seen++
	}
	return set, seen == provider.LandmarkCount
}
