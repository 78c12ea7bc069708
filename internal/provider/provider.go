package provider

import (
	"context"
	"errors"
	"image"
	"math"
)

// ErrNoFace é retornado pelo LandmarkExtractor quando nenhuma face é encontrada
var ErrNoFace = errors.New("no face found")

// ObjectDetector define a interface para detectores de objetos e faces
type ObjectDetector interface {
	// Detect roda o detector uma vez sobre o frame inteiro
	// As caixas retornadas estão em pixels absolutos do frame analisado
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// LandmarkExtractor define a interface para extração de landmarks faciais
type LandmarkExtractor interface {
	// ExtractLandmarks recebe o recorte de uma face
	// Retorna ErrNoFace quando nenhuma face é encontrada no recorte
	ExtractLandmarks(ctx context.Context, img image.Image) ([]LandmarkSet, error)
}

// FaceLocator localiza a face principal de uma imagem para verificação de identidade
type FaceLocator interface {
	// LocateFace retorna found=false quando nenhuma face é localizada
	LocateFace(ctx context.Context, img image.Image) (box BoundingBox, found bool, err error)
}

// EmbeddingExtractor extrai o vetor de características de uma face
type EmbeddingExtractor interface {
	ExtractEmbedding(ctx context.Context, img image.Image) (Embedding, error)
}

// Detection class labels, normalised to lowercase.
const (
	ClassFace      = "face"
	ClassPerson    = "person"
	ClassCellPhone = "cell phone"
	ClassLaptop    = "laptop"
	ClassTV        = "tv"
	ClassMonitor   = "monitor"
)

// IsDeviceClass reports whether class is a prohibited device.
func IsDeviceClass(class string) bool {
	switch class {
	case ClassCellPhone, ClassLaptop, ClassTV, ClassMonitor:
		return true
	}
	return false
}

// Detection represents one object found in a frame
type Detection struct {
	Class      string      `json:"class"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// BoundingBox represents an area of the image in absolute pixel coordinates
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect converts the box to an image.Rectangle, rounding outwards.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(b.X)),
		int(math.Floor(b.Y)),
		int(math.Ceil(b.X+b.Width)),
		int(math.Ceil(b.Y+b.Height)),
	)
}

// Point3 is a normalised landmark coordinate.
type Point3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Landmark indices inside a LandmarkSet.
const (
	NoseTip = iota
	LeftEyeOuter
	RightEyeOuter
	MouthLeft
	MouthRight
	Chin
	LeftEyeInner
	RightEyeInner
	LeftEyeTop
	LeftEyeBottom
	RightEyeTop
	RightEyeBottom

	LandmarkCount
)

// LandmarkSet holds the fixed landmarks used for pose and gaze, with x and y
// in [0,1] relative to the face crop and z as relative depth.
type LandmarkSet [LandmarkCount]Point3

// IsFinite reports whether every coordinate is a finite number.
func (l LandmarkSet) IsFinite() bool {
	for _, p := range l {
		for _, v := range [3]float64{p.X, p.Y, p.Z} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Embedding is a fixed-length face feature vector.
type Embedding []float64
