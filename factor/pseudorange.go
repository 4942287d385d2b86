package factor

import (
	"github.com/tchmukai/rsf"
	"github.com/tchmukai/rsf/state"
)

// Pseudorange3ECEFFactor ties a Point3 receiver position and a
// ClockError state to one satellite pseudorange observation. The raw
// residual is predicted-minus-measured range, predicted range being
// geometric distance plus the speed-of-light-scaled satellite clock bias
// plus the receiver clock error (already a range, in meters); grounded on calcspp.go's solveSppEquations, which builds the
// same row from EucDist/DistDx/DistDy/DistDz before weighting it.
type Pseudorange3ECEFFactor struct {
	base

	PositionTime  float64
	ClockTime     float64
	SatPos        rsf.PosXYZ
	SatClockBias  float64 // seconds
	Pseudorange   float64 // meters
}

// NewPseudorange3ECEF builds a factor referencing the Point3 position
// state and ClockError state both living at t.
func NewPseudorange3ECEF(t float64, satPos rsf.PosXYZ, satClockBias, pseudorange float64) *Pseudorange3ECEFFactor {
	return &Pseudorange3ECEFFactor{
		PositionTime: t,
		ClockTime:    t,
		SatPos:       satPos,
		SatClockBias: satClockBias,
		Pseudorange:  pseudorange,
	}
}

func (f *Pseudorange3ECEFFactor) Type() Type { return Pseudorange3ECEF }

func (f *Pseudorange3ECEFFactor) Refs() []Ref {
	return []Ref{
		{Kind: state.Point3, Timestamp: f.PositionTime},
		{Kind: state.ClockError, Timestamp: f.ClockTime},
	}
}

func (f *Pseudorange3ECEFFactor) Dim() int { return 1 }

func (f *Pseudorange3ECEFFactor) Evaluate(values [][]float64) ([]float64, [][][]float64) {
	recv := rsf.PosXYZ{X: values[0][0], Y: values[0][1], Z: values[0][2]}
	clockErr := values[1][0]

	rng := rsf.EucDist(&f.SatPos, &recv)
	predicted := rng + rsf.C*f.SatClockBias + clockErr
	residual := []float64{predicted - f.Pseudorange}

	jacPos := [][]float64{{
		rsf.DistDx(&f.SatPos, &recv),
		rsf.DistDy(&f.SatPos, &recv),
		rsf.DistDz(&f.SatPos, &recv),
	}}
	jacClock := [][]float64{{1.0}}

	return residual, [][][]float64{jacPos, jacClock}
}
