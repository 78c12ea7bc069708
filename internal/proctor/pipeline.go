// Package proctor classifies single webcam frames for exam rule violations.
package proctor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/imaging"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
)

// Thresholds configures detection confidence and head-turn limits.
type Thresholds struct {
	FaceConfidence   float64
	DeviceConfidence float64
	YawLimit         float64
	PitchLimit       float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		FaceConfidence:   0.5,
		DeviceConfidence: 0.35,
		YawLimit:         DefaultYawLimit,
		PitchLimit:       DefaultPitchLimit,
	}
}

// Pipeline runs the detector, landmark extractor, pose estimator and gaze
// classifier over a frame. It holds no per-frame state and is safe for
// concurrent use.
type Pipeline struct {
	detector   provider.ObjectDetector
	landmarks  provider.LandmarkExtractor
	pose       PoseSolver
	gaze       *GazeClassifier
	thresholds Thresholds
	logger     *slog.Logger
}

// PipelineOption configures optional Pipeline dependencies
type PipelineOption func(*Pipeline)

func WithThresholds(t Thresholds) PipelineOption {
	return func(p *Pipeline) {
		p.thresholds = t
	}
}

func WithPoseSolver(s PoseSolver) PipelineOption {
	return func(p *Pipeline) {
		p.pose = s
	}
}

func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func NewPipeline(detector provider.ObjectDetector, landmarks provider.LandmarkExtractor, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		detector:   detector,
		landmarks:  landmarks,
		pose:       NewPoseEstimator(),
		thresholds: DefaultThresholds(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.gaze = NewGazeClassifier(p.pose)
	return p
}

// DetectViolations classifies one frame. Only a detector failure over the
// whole frame is returned as an error; failures on individual faces skip
// that face.
func (p *Pipeline) DetectViolations(ctx context.Context, frame image.Image) (domain.Verdict, error) {
	var verdict domain.Verdict

	detections, err := p.detector.Detect(ctx, frame)
	if err != nil {
		return verdict, fmt.Errorf("detect objects: %w", err)
	}

	var faces []provider.BoundingBox
	for _, d := range detections {
		switch {
		case d.Class == provider.ClassFace && d.Confidence > p.thresholds.FaceConfidence:
			faces = append(faces, d.Box)
		case provider.IsDeviceClass(d.Class) && d.Confidence > p.thresholds.DeviceConfidence:
			verdict.DeviceDetected = true
		}
	}

	if len(faces) > 1 {
		verdict.MultipleFaces = true
	}

	for i, box := range faces {
		if err := ctx.Err(); err != nil {
			return verdict, err
		}
		verdict = verdict.Merge(p.analyzeFace(ctx, frame, i, box))
	}

	return verdict, nil
}

func (p *Pipeline) analyzeFace(ctx context.Context, frame image.Image, index int, box provider.BoundingBox) domain.Verdict {
	var verdict domain.Verdict

	crop, ok := imaging.Crop(frame, box.Rect())
	if !ok {
		p.logger.Debug("skipping empty face crop", "face", index)
		return verdict
	}

	sets, err := p.landmarks.ExtractLandmarks(ctx, crop)
	if err != nil {
		if !errors.Is(err, provider.ErrNoFace) {
			p.logger.Debug("landmark extraction failed", "face", index, "error", err)
		}
		return verdict
	}

	for _, set := range sets {
		pose, err := p.pose.Estimate(set)
		poseOK := err == nil
		if poseOK {
			if math.Abs(pose.Yaw) > p.thresholds.YawLimit || math.Abs(pose.Pitch) > p.thresholds.PitchLimit {
				verdict.HeadTurning = true
			}
		} else {
			p.logger.Debug("pose unavailable", "face", index, "error", err)
		}

		if p.gaze.Assess(set, pose, poseOK).LookingAway {
			verdict.LookingAway = true
		}
	}

	return verdict
}
