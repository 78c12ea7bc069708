package proctor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const rad2deg = 180 / math.Pi

// rodrigues converts a rotation vector (axis * angle in radians) to a 3x3
// rotation matrix.
func rodrigues(r [3]float64) *mat.Dense {
	theta := math.Sqrt(r[0]*r[0] + r[1]*r[1] + r[2]*r[2])
	if theta < 1e-12 {
		return mat.NewDense(3, 3, []float64{
			1, -r[2], r[1],
			r[2], 1, -r[0],
			-r[1], r[0], 1,
		})
	}

	kx, ky, kz := r[0]/theta, r[1]/theta, r[2]/theta
	c := math.Cos(theta)
	s := math.Sin(theta)
	v := 1 - c

	return mat.NewDense(3, 3, []float64{
		c + kx*kx*v, kx*ky*v - kz*s, kx*kz*v + ky*s,
		ky*kx*v + kz*s, c + ky*ky*v, ky*kz*v - kx*s,
		kz*kx*v - ky*s, kz*ky*v + kx*s, c + kz*kz*v,
	})
}

// eulerAngles decomposes a rotation matrix into pitch (x), yaw (y) and roll
// (z) in degrees.
func eulerAngles(m mat.Matrix) Pose {
	r21, r11 := m.At(1, 0), m.At(0, 0)
	r31, r32, r33 := m.At(2, 0), m.At(2, 1), m.At(2, 2)

	return Pose{
		Pitch: math.Atan2(r32, r33) * rad2deg,
		Yaw:   math.Atan2(-r31, math.Sqrt(r32*r32+r33*r33)) * rad2deg,
		Roll:  math.Atan2(r21, r11) * rad2deg,
	}
}

func axisAngle(axis [3]float64, degrees float64) [3]float64 {
	a := degrees / rad2deg
	return [3]float64{axis[0] * a, axis[1] * a, axis[2] * a}
}
