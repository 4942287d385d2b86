package factor

import "github.com/tchmukai/rsf/state"

// ConstDrift1Factor is the random-walk factor tying two consecutive
// (ClockError, ClockDrift) state pairs together: clock error is
// predicted to advance by drift*dt and drift itself is predicted to
// stay constant, so the error model controls how tightly both are
// allowed to wander between epochs. Grounded on IV19_GNSS.cpp's
// ConstDrift1 factor, bound to a 2-D GaussianDiagonal noise (StdCCED)
// rather than a per-measurement std-dev.
type ConstDrift1Factor struct {
	base

	T0, T1 float64
}

func NewConstDrift1(t0, t1 float64) *ConstDrift1Factor {
	return &ConstDrift1Factor{T0: t0, T1: t1}
}

func (f *ConstDrift1Factor) Type() Type { return ConstDrift1 }

func (f *ConstDrift1Factor) Refs() []Ref {
	return []Ref{
		{Kind: state.ClockError, Timestamp: f.T0},
		{Kind: state.ClockDrift, Timestamp: f.T0},
		{Kind: state.ClockError, Timestamp: f.T1},
		{Kind: state.ClockDrift, Timestamp: f.T1},
	}
}

func (f *ConstDrift1Factor) Dim() int { return 2 }

// Evaluate computes the 2-row residual
// [clkErr1 - clkErr0 - dt*clkDrift0, clkDrift1 - clkDrift0] against the
// four referenced blocks in Refs() order: (ClockError_t0, ClockDrift_t0,
// ClockError_t1, ClockDrift_t1).
func (f *ConstDrift1Factor) Evaluate(values [][]float64) ([]float64, [][][]float64) {
	clkErr0, clkDrift0 := values[0][0], values[1][0]
	clkErr1, clkDrift1 := values[2][0], values[3][0]
	dt := f.T1 - f.T0

	residual := []float64{
		clkErr1 - clkErr0 - dt*clkDrift0,
		clkDrift1 - clkDrift0,
	}

	jacClkErr0 := [][]float64{{-1}, {0}}
	jacClkDrift0 := [][]float64{{-dt}, {-1}}
	jacClkErr1 := [][]float64{{1}, {0}}
	jacClkDrift1 := [][]float64{{0}, {1}}

	return residual, [][][]float64{jacClkErr0, jacClkDrift0, jacClkErr1, jacClkDrift1}
}
