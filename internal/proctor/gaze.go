package proctor

import (
	"math"

	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
)

// Default attention limits.
const (
	DefaultYawLimit   = 30.0
	DefaultPitchLimit = 20.0
	DefaultEARMin     = 0.2
	DefaultEARMax     = 0.5
)

// PoseSolver estimates head orientation from a landmark set.
type PoseSolver interface {
	Estimate(landmarks provider.LandmarkSet) (Pose, error)
}

// GazeAssessment carries the intermediate values behind a gaze decision.
type GazeAssessment struct {
	EAR           float64 `json:"ear"`
	Pose          Pose    `json:"pose"`
	EARAvailable  bool    `json:"ear_available"`
	PoseAvailable bool    `json:"pose_available"`
	LookingAway   bool    `json:"looking_away"`
}

// GazeClassifier decides whether a face is attending to the screen using
// head pose and the eye aspect ratio.
type GazeClassifier struct {
	pose       PoseSolver
	yawLimit   float64
	pitchLimit float64
	earMin     float64
	earMax     float64
}

func NewGazeClassifier(pose PoseSolver) *GazeClassifier {
	return &GazeClassifier{
		pose:       pose,
		yawLimit:   DefaultYawLimit,
		pitchLimit: DefaultPitchLimit,
		earMin:     DefaultEARMin,
		earMax:     DefaultEARMax,
	}
}

// IsLookingAway reports whether the face in landmarks is turned away, has
// its eyes closed or has its eyes unusually wide open.
func (g *GazeClassifier) IsLookingAway(landmarks provider.LandmarkSet) bool {
	return g.Evaluate(landmarks).LookingAway
}

// Evaluate estimates the pose itself and then applies Assess.
func (g *GazeClassifier) Evaluate(landmarks provider.LandmarkSet) GazeAssessment {
	pose, err := g.pose.Estimate(landmarks)
	return g.Assess(landmarks, pose, err == nil)
}

// Assess classifies using an already computed pose. When poseAvailable is
// false only the eye aspect ratio is considered; an eye ratio that cannot be
// measured contributes nothing.
func (g *GazeClassifier) Assess(landmarks provider.LandmarkSet, pose Pose, poseAvailable bool) GazeAssessment {
	a := GazeAssessment{PoseAvailable: poseAvailable}
	if poseAvailable {
		a.Pose = pose
		if math.Abs(pose.Yaw) > g.yawLimit || math.Abs(pose.Pitch) > g.pitchLimit {
			a.LookingAway = true
		}
	}

	ear, ok := EyeAspectRatio(landmarks)
	a.EAR = ear
	a.EARAvailable = ok
	if ok && (ear <= g.earMin || ear >= g.earMax) {
		a.LookingAway = true
	}

	return a
}

// EyeAspectRatio averages the vertical over horizontal eye opening of both
// eyes in the image plane. ok is false when either eye has zero width or the
// ratio is not finite.
func EyeAspectRatio(l provider.LandmarkSet) (float64, bool) {
	left, okL := eyeRatio(l[provider.LeftEyeTop], l[provider.LeftEyeBottom], l[provider.LeftEyeOuter], l[provider.LeftEyeInner])
	right, okR := eyeRatio(l[provider.RightEyeTop], l[provider.RightEyeBottom], l[provider.RightEyeOuter], l[provider.RightEyeInner])
	if !okL || !okR {
		return 0, false
	}
	ear := (left + right) / 2
	if math.IsNaN(ear) || math.IsInf(ear, 0) {
		return 0, false
	}
	return ear, true
}

func eyeRatio(top, bottom, outer, inner provider.Point3) (float64, bool) {
	width := math.Hypot(outer.X-inner.X, outer.Y-inner.Y)
	if width == 0 || math.IsNaN(width) {
		return 0, false
	}
	return math.Hypot(top.X-bottom.X, top.Y-bottom.Y) / width, true
}
