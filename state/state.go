// Package state implements the tagged-variant state variables of the
// factor graph: Point3, Angle, ClockError and ClockDrift. Each carries a
// fixed-size numeric parameter block and a local parameterization that is
// identity everywhere except Angle, which wraps its tangent-space sum.
//
// Grounded on the teacher's PosXYZ/PosLLH/PosENU value types (pos.go) for
// the idea of small, fixed-shape numeric structs, generalized into a
// closed variable-kind enum per the spec's tagged-variant design note.
package state

import "math"

// Kind identifies the closed set of variable kinds the graph supports.
type Kind int

const (
	Point3 Kind = iota
	Angle
	ClockError
	ClockDrift
)

// Dim returns the parameter-block width of a kind.
func (k Kind) Dim() int {
	switch k {
	case Point3:
		return 3
	default:
		return 1
	}
}

func (k Kind) String() string {
	switch k {
	case Point3:
		return "Point3"
	case Angle:
		return "Angle"
	case ClockError:
		return "ClockError"
	case ClockDrift:
		return "ClockDrift"
	default:
		return "Unknown"
	}
}

// Retract applies delta to mean following the kind's local
// parameterization: plain vector addition for every kind except Angle,
// which wraps the result back into (-pi, pi].
func (k Kind) Retract(mean, delta []float64) []float64 {
	out := make([]float64, len(mean))
	for i := range mean {
		out[i] = mean[i] + delta[i]
	}
	if k == Angle {
		out[0] = WrapAngle(out[0])
	}
	return out
}

// WrapAngle normalizes an angle to (-pi, pi], the same convention every
// bearing computed via math.Atan2 in this module already satisfies.
func WrapAngle(a float64) float64 {
	return math.Atan2(math.Sin(a), math.Cos(a))
}

// Variable is one graph state: a kind, the timestamp it lives at, its
// current mean, and (once solved) its marginal covariance diagonal.
type Variable struct {
	Kind      Kind
	Timestamp float64
	Mean      []float64
	Cov       []float64 // diagonal marginal variance, optional
}

// NewVariable creates a variable of kind k at timestamp t with a
// zero-valued mean.
func NewVariable(k Kind, t float64) *Variable {
	return &Variable{Kind: k, Timestamp: t, Mean: make([]float64, k.Dim())}
}

// SetMean overwrites the variable's mean in place, applying the kind's
// normalization (Angle wrap) so the invariant "Angle states remain
// normalized" holds even for direct external writes.
func (v *Variable) SetMean(mean []float64) {
	copy(v.Mean, mean)
	if v.Kind == Angle {
		v.Mean[0] = WrapAngle(v.Mean[0])
	}
}

// Retract applies delta to the variable's mean in place using its kind's
// local parameterization.
func (v *Variable) Retract(delta []float64) {
	v.Mean = v.Kind.Retract(v.Mean, delta)
}
