package factor

import (
	"math"

	"github.com/tchmukai/rsf"
	"github.com/tchmukai/rsf/state"
)

// Odom4ECEFFactor ties two consecutive Point3/Angle pose pairs to one
// Odom3 measurement (3-D body-frame velocity plus yaw-rate, sampled at
// T1 and assumed to hold over [T0,T1]). The residual has 4 rows: the
// displacement error in the local ENU frame at the first pose (3), with
// the measured body-frame displacement rotated into ENU by the heading
// at T0, plus the wrapped heading error (1). The displacement is not
// compared in the body frame, so the per-axis odometry std-devs weight
// the E, N and U rows.
// The ECEF-to-ENU rotation is built once from the first pose and held
// fixed through the Jacobian, the same locally-constant-linearization
// treatment the error models apply to their own reweighting factor (see
// errormodel package doc) — the rotation's own dependence on position
// is second-order within one odometry step.
type Odom4ECEFFactor struct {
	base

	T0, T1             float64
	Vx, Vy, Vz, YawRate float64 // measured body-frame velocity and yaw-rate
}

// NewOdom4ECEF builds a factor referencing Point3/Angle states at both
// t0 and t1, predicting the transition from the body-frame velocity and
// yaw-rate measured over [t0,t1].
func NewOdom4ECEF(t0, t1, vx, vy, vz, yawRate float64) *Odom4ECEFFactor {
	return &Odom4ECEFFactor{T0: t0, T1: t1, Vx: vx, Vy: vy, Vz: vz, YawRate: yawRate}
}

func (f *Odom4ECEFFactor) Type() Type { return Odom4ECEF }

func (f *Odom4ECEFFactor) Refs() []Ref {
	return []Ref{
		{Kind: state.Point3, Timestamp: f.T0},
		{Kind: state.Angle, Timestamp: f.T0},
		{Kind: state.Point3, Timestamp: f.T1},
		{Kind: state.Angle, Timestamp: f.T1},
	}
}

func (f *Odom4ECEFFactor) Dim() int { return 4 }

// enuRotationRows returns the three ECEF->ENU rotation rows at base, by
// reusing PosXYZ.ToENU itself: since point.ToENU(base) is linear in
// point's offset from base, and base.ToENU(base) is the zero vector,
// applying it to each unit-offset point reads off the rotation's
// columns directly instead of re-deriving base's trig terms by hand.
func enuRotationRows(base rsf.PosXYZ) (e, n, u [3]float64) {
	ptX := rsf.PosXYZ{X: base.X + 1, Y: base.Y, Z: base.Z}
	ptY := rsf.PosXYZ{X: base.X, Y: base.Y + 1, Z: base.Z}
	ptZ := rsf.PosXYZ{X: base.X, Y: base.Y, Z: base.Z + 1}
	colX := ptX.ToENU(base)
	colY := ptY.ToENU(base)
	colZ := ptZ.ToENU(base)
	e = [3]float64{colX.E, colY.E, colZ.E}
	n = [3]float64{colX.N, colY.N, colZ.N}
	u = [3]float64{colX.U, colY.U, colZ.U}
	return
}

func dot3(r [3]float64, v [3]float64) float64 {
	return r[0]*v[0] + r[1]*v[1] + r[2]*v[2]
}

func (f *Odom4ECEFFactor) Evaluate(values [][]float64) ([]float64, [][][]float64) {
	pos0 := rsf.PosXYZ{X: values[0][0], Y: values[0][1], Z: values[0][2]}
	theta0 := values[1][0]
	pos1 := rsf.PosXYZ{X: values[2][0], Y: values[2][1], Z: values[2][2]}
	theta1 := values[3][0]

	dt := f.T1 - f.T0
	d := [3]float64{pos1.X - pos0.X, pos1.Y - pos0.Y, pos1.Z - pos0.Z}
	rowE, rowN, rowU := enuRotationRows(pos0)
	actualE := dot3(rowE, d)
	actualN := dot3(rowN, d)
	actualU := dot3(rowU, d)

	// Predicted body-frame displacement, rotated into the local ENU
	// tangent plane by the heading at t0.
	bx, by, bz := f.Vx*dt, f.Vy*dt, f.Vz*dt
	sinT, cosT := math.Sin(theta0), math.Cos(theta0)
	predE := bx*cosT - by*sinT
	predN := bx*sinT + by*cosT
	predU := bz

	headingErr := state.WrapAngle(theta1 - theta0 - f.YawRate*dt)

	residual := []float64{
		actualE - predE,
		actualN - predN,
		actualU - predU,
		headingErr,
	}

	jacPos0 := [][]float64{
		{-rowE[0], -rowE[1], -rowE[2]},
		{-rowN[0], -rowN[1], -rowN[2]},
		{-rowU[0], -rowU[1], -rowU[2]},
		{0, 0, 0},
	}
	jacAngle0 := [][]float64{
		{bx*sinT + by*cosT},
		{-bx*cosT + by*sinT},
		{0},
		{-1},
	}
	jacPos1 := [][]float64{
		{rowE[0], rowE[1], rowE[2]},
		{rowN[0], rowN[1], rowN[2]},
		{rowU[0], rowU[1], rowU[2]},
		{0, 0, 0},
	}
	jacAngle1 := [][]float64{
		{0},
		{0},
		{0},
		{1},
	}

	return residual, [][][]float64{jacPos0, jacAngle0, jacPos1, jacAngle1}
}
