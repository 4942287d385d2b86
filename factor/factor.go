// Package factor implements the closed set of measurement factors the
// graph can hold: Pseudorange3_ECEF, Odom4_ECEF and ConstDrift1.
//
// Each Factor is a tagged-variant member of a single dispatch point
// (Evaluate), exactly as the spec's design note on closed sum types
// asks for, grounded on the teacher's calcspp.go solveSppEquations,
// which hand-builds a design-matrix row per satellite from DistDx/
// DistDy/DistDz before handing it to SolveLS. Every Evaluate here
// generalizes that per-row Jacobian construction to an arbitrary
// multi-state residual block.
package factor

import (
	"github.com/tchmukai/rsf/errormodel"
	"github.com/tchmukai/rsf/state"
)

// Type identifies the closed set of factor kinds.
type Type int

const (
	Pseudorange3ECEF Type = iota
	Odom4ECEF
	ConstDrift1
)

func (t Type) String() string {
	switch t {
	case Pseudorange3ECEF:
		return "Pseudorange3_ECEF"
	case Odom4ECEF:
		return "Odom4_ECEF"
	case ConstDrift1:
		return "ConstDrift1"
	default:
		return "Unknown"
	}
}

// Ref identifies one state block a factor reads and writes, by kind and
// timestamp — the (kind, timestamp) pair is the graph's state key.
type Ref struct {
	Kind      state.Kind
	Timestamp float64
}

// Factor is the interface every measurement factor satisfies. Evaluate
// receives the current mean of every referenced state, in Refs() order,
// and returns the raw (unwhitened) residual together with its Jacobian
// w.r.t. each referenced block, jac[i] having shape Dim() x Refs()[i].Kind.Dim().
type Factor interface {
	Type() Type
	Refs() []Ref
	Dim() int
	Evaluate(values [][]float64) (residual []float64, jac [][][]float64)
	ErrorModel() errormodel.Model
	SetErrorModel(m errormodel.Model)
}

// base holds the error model every factor carries, since SetErrorModel/
// ErrorModel is identical plumbing across all three kinds.
type base struct {
	model errormodel.Model
}

func (b *base) ErrorModel() errormodel.Model     { return b.model }
func (b *base) SetErrorModel(m errormodel.Model) { b.model = m }
