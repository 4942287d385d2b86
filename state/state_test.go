package state

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDim(t *testing.T) {
	assert.Equal(t, 3, Point3.Dim())
	assert.Equal(t, 1, Angle.Dim())
	assert.Equal(t, 1, ClockError.Dim())
	assert.Equal(t, 1, ClockDrift.Dim())
}

func TestWrapAngle(t *testing.T) {
	assert.InDelta(t, 0, WrapAngle(2*math.Pi), 1e-9)
	assert.InDelta(t, math.Pi/2, WrapAngle(math.Pi/2), 1e-9)
	assert.InDelta(t, -math.Pi/2, WrapAngle(-5*math.Pi/2), 1e-9)
}

func TestRetractPoint3(t *testing.T) {
	mean := []float64{1, 2, 3}
	delta := []float64{0.1, -0.2, 0.3}
	out := Point3.Retract(mean, delta)
	assert.InDeltaSlice(t, []float64{1.1, 1.8, 3.3}, out, 1e-9)
}

func TestRetractAngleWraps(t *testing.T) {
	mean := []float64{3.0}
	delta := []float64{1.0}
	out := Angle.Retract(mean, delta)
	assert.InDelta(t, WrapAngle(4.0), out[0], 1e-9)
}

func TestVariableSetMeanWrapsAngle(t *testing.T) {
	v := NewVariable(Angle, 0)
	v.SetMean([]float64{4 * math.Pi})
	assert.InDelta(t, 0, v.Mean[0], 1e-9)
}

func TestVariableRetractInPlace(t *testing.T) {
	v := NewVariable(Point3, 0)
	v.SetMean([]float64{0, 0, 0})
	v.Retract([]float64{1, 2, 3})
	assert.Equal(t, []float64{1, 2, 3}, v.Mean)
}
