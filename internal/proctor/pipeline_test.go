package proctor

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
	"github.com/saturnino-fabrica-de-software/proctor/internal/provider/mock"
)

type failingDetector struct{ err error }

func (f failingDetector) Detect(context.Context, image.Image) ([]provider.Detection, error) {
	return nil, f.err
}

// countingExtractor records how many crops it was asked to analyse.
type countingExtractor struct {
	mu    sync.Mutex
	calls int
	sets  []provider.LandmarkSet
	err   error
}

func (c *countingExtractor) ExtractLandmarks(context.Context, image.Image) ([]provider.LandmarkSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.sets, c.err
}

func frame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 200, 100))
}

func faceAt(x float64, conf float64) provider.Detection {
	return provider.Detection{
		Class:      provider.ClassFace,
		Confidence: conf,
		Box:        provider.BoundingBox{X: x, Y: 10, Width: 40, Height: 40},
	}
}

func TestPipeline_NoDetections(t *testing.T) {
	p := NewPipeline(&mock.Provider{Detections: []provider.Detection{}}, mock.New())

	verdict, err := p.DetectViolations(context.Background(), frame())

	require.NoError(t, err)
	assert.Equal(t, domain.Verdict{}, verdict)
}

func TestPipeline_MultipleFacesByCount(t *testing.T) {
	for n := 0; n <= 3; n++ {
		dets := make([]provider.Detection, 0, n)
		for i := 0; i < n; i++ {
			dets = append(dets, faceAt(float64(i*50), 0.9))
		}
		p := NewPipeline(&mock.Provider{Detections: dets}, mock.New())

		verdict, err := p.DetectViolations(context.Background(), frame())

		require.NoError(t, err)
		assert.Equal(t, n > 1, verdict.MultipleFaces, "faces=%d", n)
		assert.False(t, verdict.LookingAway, "faces=%d", n)
		assert.False(t, verdict.HeadTurning, "faces=%d", n)
	}
}

func TestPipeline_ConfidenceThresholds(t *testing.T) {
	tests := []struct {
		name       string
		detections []provider.Detection
		want       domain.Verdict
	}{
		{
			name:       "face at threshold is ignored",
			detections: []provider.Detection{faceAt(0, 0.9), faceAt(50, 0.5)},
			want:       domain.Verdict{},
		},
		{
			name:       "face above threshold counts",
			detections: []provider.Detection{faceAt(0, 0.9), faceAt(50, 0.51)},
			want:       domain.Verdict{MultipleFaces: true},
		},
		{
			name:       "phone at threshold is ignored",
			detections: []provider.Detection{{Class: provider.ClassCellPhone, Confidence: 0.35}},
			want:       domain.Verdict{},
		},
		{
			name:       "phone above threshold",
			detections: []provider.Detection{{Class: provider.ClassCellPhone, Confidence: 0.36}},
			want:       domain.Verdict{DeviceDetected: true},
		},
		{
			name:       "laptop",
			detections: []provider.Detection{{Class: provider.ClassLaptop, Confidence: 0.8}},
			want:       domain.Verdict{DeviceDetected: true},
		},
		{
			name:       "monitor",
			detections: []provider.Detection{{Class: provider.ClassTV, Confidence: 0.4}},
			want:       domain.Verdict{DeviceDetected: true},
		},
		{
			name:       "person is not a device",
			detections: []provider.Detection{{Class: provider.ClassPerson, Confidence: 0.99}},
			want:       domain.Verdict{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(&mock.Provider{Detections: tt.detections}, mock.New())

			verdict, err := p.DetectViolations(context.Background(), frame())

			require.NoError(t, err)
			assert.Equal(t, tt.want, verdict)
		})
	}
}

func TestPipeline_HeadTurning(t *testing.T) {
	tests := []struct {
		name string
		pose Pose
		want bool
	}{
		{name: "frontal", pose: Pose{}, want: false},
		{name: "yaw 30", pose: Pose{Yaw: 30}, want: false},
		{name: "yaw 31", pose: Pose{Yaw: 31}, want: true},
		{name: "yaw -31", pose: Pose{Yaw: -31}, want: true},
		{name: "pitch 20", pose: Pose{Pitch: 20}, want: false},
		{name: "pitch 21", pose: Pose{Pitch: 21}, want: true},
		{name: "pitch -21", pose: Pose{Pitch: -21}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline(mock.New(), mock.New(), WithPoseSolver(stubPose{pose: tt.pose}))

			verdict, err := p.DetectViolations(context.Background(), frame())

			require.NoError(t, err)
			assert.Equal(t, tt.want, verdict.HeadTurning)
			assert.Equal(t, tt.want, verdict.LookingAway)
			assert.False(t, verdict.MultipleFaces)
		})
	}
}

func TestPipeline_HeadTurningFromLandmarks(t *testing.T) {
	tests := []struct {
		name      string
		landmarks provider.LandmarkSet
		want      bool
	}{
		{name: "frontal", landmarks: mock.FrontalLandmarks(), want: false},
		{name: "yaw 35", landmarks: yawFixture(35), want: true},
		{name: "yaw 10", landmarks: yawFixture(10), want: false},
		{name: "pitch 25", landmarks: pitchFixture(25), want: true},
		{name: "pitch 15", landmarks: pitchFixture(15), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			landmarks := &mock.Provider{Landmarks: []provider.LandmarkSet{tt.landmarks}}
			p := NewPipeline(mock.New(), landmarks)

			verdict, err := p.DetectViolations(context.Background(), frame())

			require.NoError(t, err)
			assert.Equal(t, tt.want, verdict.HeadTurning)
		})
	}
}

func TestPipeline_PoseUnavailableUsesEAROnly(t *testing.T) {
	p := NewPipeline(mock.New(), mock.New(), WithPoseSolver(stubPose{pose: Pose{Yaw: 80}, err: ErrPoseUnavailable}))

	verdict, err := p.DetectViolations(context.Background(), frame())

	require.NoError(t, err)
	assert.False(t, verdict.HeadTurning)
	assert.False(t, verdict.LookingAway)
}

func TestPipeline_DetectorFailure(t *testing.T) {
	boom := errors.New("model offline")
	p := NewPipeline(failingDetector{err: boom}, mock.New())

	_, err := p.DetectViolations(context.Background(), frame())

	assert.ErrorIs(t, err, boom)
}

func TestPipeline_LandmarkFailuresAreSkipped(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "no face in crop", err: provider.ErrNoFace},
		{name: "extractor error", err: errors.New("timeout")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := &countingExtractor{err: tt.err}
			dets := []provider.Detection{faceAt(0, 0.9), faceAt(100, 0.9)}
			p := NewPipeline(&mock.Provider{Detections: dets}, extractor)

			verdict, err := p.DetectViolations(context.Background(), frame())

			require.NoError(t, err)
			assert.Equal(t, domain.Verdict{MultipleFaces: true}, verdict)
			assert.Equal(t, 2, extractor.calls)
		})
	}
}

func TestPipeline_EmptyCropIsSkipped(t *testing.T) {
	extractor := &countingExtractor{sets: []provider.LandmarkSet{mock.FrontalLandmarks()}}
	dets := []provider.Detection{
		{Class: provider.ClassFace, Confidence: 0.9, Box: provider.BoundingBox{X: 500, Y: 500, Width: 20, Height: 20}},
	}
	p := NewPipeline(&mock.Provider{Detections: dets}, extractor)

	verdict, err := p.DetectViolations(context.Background(), frame())

	require.NoError(t, err)
	assert.Equal(t, domain.Verdict{}, verdict)
	assert.Equal(t, 0, extractor.calls)
}

func TestPipeline_FlagsAreORedAcrossFaces(t *testing.T) {
	extractor := &countingExtractor{sets: []provider.LandmarkSet{mock.FrontalLandmarks(), yawFixture(35)}}
	p := NewPipeline(mock.New(), extractor)

	verdict, err := p.DetectViolations(context.Background(), frame())

	require.NoError(t, err)
	assert.True(t, verdict.HeadTurning)
	assert.True(t, verdict.LookingAway)
}

func TestPipeline_ConcurrentUse(t *testing.T) {
	p := NewPipeline(mock.New(), mock.New())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdict, err := p.DetectViolations(context.Background(), frame())
			assert.NoError(t, err)
			assert.Equal(t, domain.Verdict{}, verdict)
		}()
	}
	wg.Wait()
}
