package factor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tchmukai/rsf"
)

func TestPseudorangeResidualZeroAtExactRange(t *testing.T) {
	sat := rsf.PosXYZ{X: 20000000, Y: 0, Z: 0}
	recv := rsf.PosXYZ{X: 6378137, Y: 0, Z: 0}
	rng := rsf.EucDist(&sat, &recv)

	f := NewPseudorange3ECEF(0, sat, 0, rng)
	residual, jac := f.Evaluate([][]float64{{recv.X, recv.Y, recv.Z}, {0}})
	assert.InDelta(t, 0, residual[0], 1e-6)
	require.Len(t, jac, 2)
	assert.Len(t, jac[0][0], 3)
	assert.InDelta(t, 1.0, jac[1][0][0], 1e-9)
}

func TestPseudorangeResidualIncludesSatelliteClockBias(t *testing.T) {
	sat := rsf.PosXYZ{X: 20000000, Y: 0, Z: 0}
	recv := rsf.PosXYZ{X: 6378137, Y: 0, Z: 0}
	rng := rsf.EucDist(&sat, &recv)
	satClockBias := 1e-6 // seconds

	f := NewPseudorange3ECEF(0, sat, satClockBias, rng)
	residual, _ := f.Evaluate([][]float64{{recv.X, recv.Y, recv.Z}, {0}})
	assert.InDelta(t, rsf.C*satClockBias, residual[0], 1e-3)
}

func TestPseudorangeRefs(t *testing.T) {
	f := NewPseudorange3ECEF(5.0, rsf.PosXYZ{}, 0, 0)
	refs := f.Refs()
	require.Len(t, refs, 2)
	assert.Equal(t, 5.0, refs[0].Timestamp)
	assert.Equal(t, 5.0, refs[1].Timestamp)
}

func TestConstDrift1Residual(t *testing.T) {
	f := NewConstDrift1(0, 1)
	// (ClockError_t0, ClockDrift_t0, ClockError_t1, ClockDrift_t1)
	residual, jac := f.Evaluate([][]float64{{1.0}, {0.2}, {1.25}, {0.25}})
	assert.InDelta(t, 0.05, residual[0], 1e-9)
	assert.InDelta(t, 0.05, residual[1], 1e-9)
	require.Len(t, jac, 4)
	assert.InDelta(t, -1, jac[0][0][0], 1e-9)
	assert.InDelta(t, -1, jac[1][0][0], 1e-9)
	assert.InDelta(t, -1, jac[1][1][0], 1e-9)
	assert.InDelta(t, 1, jac[2][0][0], 1e-9)
	assert.InDelta(t, 1, jac[3][1][0], 1e-9)
}

func TestOdomZeroMotionZeroResidual(t *testing.T) {
	f := NewOdom4ECEF(0, 1, 0, 0, 0, 0)
	pos := []float64{6378137, 0, 0}
	residual, _ := f.Evaluate([][]float64{pos, {0}, pos, {0}})
	for i, r := range residual {
		assert.InDelta(t, 0, r, 1e-6, "residual[%d]", i)
	}
}

func TestOdomHeadingWraps(t *testing.T) {
	f := NewOdom4ECEF(0, 1, 0, 0, 0, 0)
	pos := []float64{6378137, 0, 0}
	residual, jac := f.Evaluate([][]float64{pos, {0}, pos, {6.28318530718}})
	assert.InDelta(t, 0, residual[3], 1e-6)
	require.Len(t, jac, 4)
	assert.InDelta(t, 1, jac[3][3][0], 1e-9)
}
