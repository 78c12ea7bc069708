package proctor

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/saturnino-fabrica-de-software/proctor/internal/provider"
)

// ErrPoseUnavailable is returned when the landmarks do not admit a pose.
var ErrPoseUnavailable = errors.New("head pose unavailable")

// Pose represents face orientation angles in degrees
type Pose struct {
	Pitch float64 `json:"pitch"` // up/down rotation
	Yaw   float64 `json:"yaw"`   // left/right rotation
	Roll  float64 `json:"roll"`  // tilted rotation
}

// Camera is a distortion-free pinhole model.
type Camera struct {
	Focal float64
	CX    float64
	CY    float64
}

// DefaultCamera is the synthetic camera over the 100x100 normalised frame.
var DefaultCamera = Camera{Focal: 500, CX: 50, CY: 50}

const landmarkScale = 100

// poseLandmarks are the six correspondences fed to the solver.
var poseLandmarks = [...]int{
	provider.NoseTip,
	provider.LeftEyeOuter,
	provider.RightEyeOuter,
	provider.MouthLeft,
	provider.MouthRight,
	provider.Chin,
}

const numPosePoints = len(poseLandmarks)

// Initial rotations tried by the solver. Identity comes first so that an
// exact frontal fit is never displaced by an equally good mirror solution.
var rotationSeeds = [][3]float64{
	{},
	axisAngle([3]float64{0, 1, 0}, 30),
	axisAngle([3]float64{0, 1, 0}, -30),
	axisAngle([3]float64{0, 1, 0}, 60),
	axisAngle([3]float64{0, 1, 0}, -60),
	axisAngle([3]float64{1, 0, 0}, 30),
	axisAngle([3]float64{1, 0, 0}, -30),
	axisAngle([3]float64{1, 0, 0}, 60),
	axisAngle([3]float64{1, 0, 0}, -60),
}

// PoseEstimator recovers head orientation from a landmark set by solving the
// perspective-n-point problem against the landmarks' own 3D coordinates.
// It is stateless and safe for concurrent use.
type PoseEstimator struct {
	camera        Camera
	maxIterations int
}

func NewPoseEstimator() *PoseEstimator {
	return &PoseEstimator{camera: DefaultCamera, maxIterations: 100}
}

// NewPoseEstimatorWithCamera overrides the synthetic camera.
func NewPoseEstimatorWithCamera(camera Camera) *PoseEstimator {
	return &PoseEstimator{camera: camera, maxIterations: 100}
}

// Estimate returns pitch, yaw and roll in degrees.
func (e *PoseEstimator) Estimate(landmarks provider.LandmarkSet) (Pose, error) {
	if !landmarks.IsFinite() {
		return Pose{}, ErrPoseUnavailable
	}

	var object [numPosePoints][3]float64
	var img [numPosePoints][2]float64
	for i, idx := range poseLandmarks {
		p := landmarks[idx]
		object[i] = [3]float64{p.X * landmarkScale, p.Y * landmarkScale, p.Z * landmarkScale}
		img[i] = [2]float64{p.X * landmarkScale, p.Y * landmarkScale}
	}

	if degenerate(object[:]) || degenerate2D(img[:]) {
		return Pose{}, ErrPoseUnavailable
	}

	s := &pnpSolver{camera: e.camera, object: object, image: img, maxIterations: e.maxIterations}

	bestCost := math.Inf(1)
	var best []float64
	for _, seed := range rotationSeeds {
		params, ok := s.initialise(seed)
		if !ok {
			continue
		}
		params, cost := s.refine(params)
		if !s.valid(params) || math.IsNaN(cost) {
			continue
		}
		if cost < bestCost {
			bestCost = cost
			best = params
		}
	}

	if best == nil || math.IsInf(bestCost, 0) {
		return Pose{}, ErrPoseUnavailable
	}

	pose := eulerAngles(rodrigues([3]float64{best[0], best[1], best[2]}))
	if !floats.HasNaN([]float64{pose.Pitch, pose.Yaw, pose.Roll}) &&
		!math.IsInf(pose.Pitch, 0) && !math.IsInf(pose.Yaw, 0) && !math.IsInf(pose.Roll, 0) {
		return pose, nil
	}
	return Pose{}, ErrPoseUnavailable
}

// degenerate reports whether the points are coincident or collinear.
func degenerate(points [][3]float64) bool {
	n := len(points)
	centred := mat.NewDense(n, 3, nil)
	var mean [3]float64
	for _, p := range points {
		for j := 0; j < 3; j++ {
			mean[j] += p[j] / float64(n)
		}
	}
	for i, p := range points {
		for j := 0; j < 3; j++ {
			centred.Set(i, j, p[j]-mean[j])
		}
	}

	var svd mat.SVD
	if !svd.Factorize(centred, mat.SVDNone) {
		return true
	}
	sv := svd.Values(nil)
	return sv[0] < 1e-6 || sv[1] < 1e-6*sv[0]
}

func degenerate2D(points [][2]float64) bool {
	lifted := make([][3]float64, len(points))
	for i, p := range points {
		lifted[i] = [3]float64{p[0], p[1], 0}
	}
	return degenerate(lifted)
}

// pnpSolver minimises reprojection error over a rotation vector and a
// translation, parameters laid out as [rx ry rz tx ty tz].
type pnpSolver struct {
	camera        Camera
	object        [numPosePoints][3]float64
	image         [numPosePoints][2]float64
	maxIterations int
}

const numResiduals = 2 * numPosePoints

// initialise fixes the rotation at seed and solves the translation by linear
// least squares on the normalised projection equations.
func (s *pnpSolver) initialise(seed [3]float64) ([]float64, bool) {
	r := rodrigues(seed)
	a := mat.NewDense(numResiduals, 3, nil)
	b := mat.NewVecDense(numResiduals, nil)

	for i := 0; i < numPosePoints; i++ {
		q := rotate(r, s.object[i])
		xn := (s.image[i][0] - s.camera.CX) / s.camera.Focal
		yn := (s.image[i][1] - s.camera.CY) / s.camera.Focal

		a.Set(2*i, 0, 1)
		a.Set(2*i, 2, -xn)
		b.SetVec(2*i, xn*q[2]-q[0])

		a.Set(2*i+1, 1, 1)
		a.Set(2*i+1, 2, -yn)
		b.SetVec(2*i+1, yn*q[2]-q[1])
	}

	var t mat.VecDense
	if err := t.SolveVec(a, b); err != nil {
		return nil, false
	}
	if t.AtVec(2) <= 0 {
		return nil, false
	}

	return []float64{seed[0], seed[1], seed[2], t.AtVec(0), t.AtVec(1), t.AtVec(2)}, true
}

// refine runs Levenberg-Marquardt from params and returns the final
// parameters with their squared reprojection error.
func (s *pnpSolver) refine(params []float64) ([]float64, float64) {
	residual := make([]float64, numResiduals)
	s.residuals(params, residual)
	cost := floats.Dot(residual, residual)

	lambda := 1e-3
	jac := mat.NewDense(numResiduals, 6, nil)
	candidate := make([]float64, 6)
	candRes := make([]float64, numResiduals)

	for iter := 0; iter < s.maxIterations && cost > 1e-18; iter++ {
		s.jacobian(params, jac)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)
		var jtr mat.VecDense
		jtr.MulVec(jac.T(), mat.NewVecDense(numResiduals, residual))

		improved := false
		for !improved && lambda < 1e12 {
			damped := mat.DenseCopyOf(&jtj)
			for k := 0; k < 6; k++ {
				d := jtj.At(k, k)
				damped.Set(k, k, d+lambda*math.Max(d, 1e-9))
			}

			var step mat.VecDense
			rhs := mat.NewVecDense(6, nil)
			rhs.ScaleVec(-1, &jtr)
			if err := step.SolveVec(damped, rhs); err != nil {
				lambda *= 10
				continue
			}

			for k := range candidate {
				candidate[k] = params[k] + step.AtVec(k)
			}
			s.residuals(candidate, candRes)
			candCost := floats.Dot(candRes, candRes)

			if candCost < cost {
				copy(params, candidate)
				copy(residual, candRes)
				converged := cost-candCost < 1e-12*cost || mat.Norm(&step, 2) < 1e-12
				cost = candCost
				lambda = math.Max(lambda/10, 1e-12)
				improved = true
				if converged {
					return params, cost
				}
			} else {
				lambda *= 10
			}
		}
		if !improved {
			break
		}
	}

	return params, cost
}

// valid rejects solutions that place any point behind the camera.
func (s *pnpSolver) valid(params []float64) bool {
	if floats.HasNaN(params) {
		return false
	}
	r := rodrigues([3]float64{params[0], params[1], params[2]})
	for i := 0; i < numPosePoints; i++ {
		q := rotate(r, s.object[i])
		if q[2]+params[5] <= 0 {
			return false
		}
	}
	return true
}

func (s *pnpSolver) residuals(params []float64, out []float64) {
	r := rodrigues([3]float64{params[0], params[1], params[2]})
	for i := 0; i < numPosePoints; i++ {
		q := rotate(r, s.object[i])
		x := q[0] + params[3]
		y := q[1] + params[4]
		z := q[2] + params[5]
		if z <= 1e-9 {
			out[2*i] = 1e6
			out[2*i+1] = 1e6
			continue
		}
		out[2*i] = s.camera.Focal*x/z + s.camera.CX - s.image[i][0]
		out[2*i+1] = s.camera.Focal*y/z + s.camera.CY - s.image[i][1]
	}
}

// jacobian fills jac with central differences of the residuals.
func (s *pnpSolver) jacobian(params []float64, jac *mat.Dense) {
	plus := make([]float64, numResiduals)
	minus := make([]float64, numResiduals)
	p := make([]float64, len(params))

	for j := range params {
		h := 1e-6 * math.Max(1, math.Abs(params[j]))
		copy(p, params)
		p[j] = params[j] + h
		s.residuals(p, plus)
		p[j] = params[j] - h
		s.residuals(p, minus)
		for i := 0; i < numResiduals; i++ {
			jac.Set(i, j, (plus[i]-minus[i])/(2*h))
		}
	}
}

func rotate(r mat.Matrix, p [3]float64) [3]float64 {
	return [3]float64{
		r.At(0, 0)*p[0] + r.At(0, 1)*p[1] + r.At(0, 2)*p[2],
		r.At(1, 0)*p[0] + r.At(1, 1)*p[1] + r.At(1, 2)*p[2],
		r.At(2, 0)*p[0] + r.At(2, 1)*p[1] + r.At(2, 2)*p[2],
	}
}
