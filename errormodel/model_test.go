package errormodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tchmukai/rsf/gmm"
)

func TestGaussianEvaluate(t *testing.T) {
	g := &Gaussian{Sigma: []float64{2}}
	r, jac := g.Evaluate([]float64{4})
	assert.InDelta(t, 2, r[0], 1e-9)
	assert.InDelta(t, 0.5, jac[0][0], 1e-9)
}

func TestDCSPassesSmallResidualsThrough(t *testing.T) {
	d := &DCS{Sigma: []float64{1}, Phi: 1}
	r, _ := d.Evaluate([]float64{0.01})
	assert.InDelta(t, 0.01, r[0], 1e-3)
}

func TestDCSShrinksLargeResiduals(t *testing.T) {
	d := &DCS{Sigma: []float64{1}, Phi: 1}
	r, _ := d.Evaluate([]float64{100})
	assert.Less(t, r[0], 100.0)
}

func TestCDCEShrinksWithResidualMagnitude(t *testing.T) {
	c := &CDCE{Sigma: 1, Nu: 1}
	rSmall, _ := c.Evaluate([]float64{0.1})
	rLarge, _ := c.Evaluate([]float64{10})
	assert.Less(t, rLarge[0]/10, rSmall[0]/0.1)
}

func TestMaxMixSelectsDominantComponent(t *testing.T) {
	mix := &gmm.Mixture{Components: []gmm.Component{
		{Mean: 0, Std: 1, Weight: 0.9},
		{Mean: 20, Std: 5, Weight: 0.1},
	}}
	mm := &MaxMix{Mix: mix}
	r, jac := mm.Evaluate([]float64{0.1})
	require.Len(t, r, 2)
	assert.InDelta(t, 0.1, r[0], 1e-9)
	assert.InDelta(t, 1, jac[0][0], 1e-9)
}

func TestSumMixIsSmoothAcrossModes(t *testing.T) {
	mix := &gmm.Mixture{Components: []gmm.Component{
		{Mean: 0, Std: 1, Weight: 0.9},
		{Mean: 10, Std: 1, Weight: 0.1},
	}}
	sm := &SumMix{Mix: mix}
	r1, _ := sm.Evaluate([]float64{4.9})
	r2, _ := sm.Evaluate([]float64{5.1})
	assert.InDelta(t, r1[0], r2[0], 0.5)
}

func TestMaxMixEqualsSumMixForSingleComponent(t *testing.T) {
	// With exactly one component of weight 1, both likelihoods reduce to
	// the same Gaussian cost; the solver only ever sees the squared
	// residual norm, so that (not the signed per-element residual) is
	// what must agree between the two formulations.
	mix := &gmm.Mixture{Components: []gmm.Component{
		{Mean: 1.5, Std: 2, Weight: 1},
	}}
	mm := &MaxMix{Mix: mix}
	sm := &SumMix{Mix: mix}

	for _, x := range []float64{-3, 0, 1.5, 4.2} {
		rMax, _ := mm.Evaluate([]float64{x})
		rSum, _ := sm.Evaluate([]float64{x})
		costMax := rMax[0]*rMax[0] + rMax[1]*rMax[1]
		costSum := rSum[0] * rSum[0]
		assert.InDelta(t, costMax, costSum, 1e-9, "x=%v", x)
	}
}

func TestDispatchKnownTokens(t *testing.T) {
	for _, tok := range []string{"gauss", "dcs", "cdce", "sm", "mm", "stsm", "stmm", "stsm_vbi", "stmm_vbi"} {
		m, _, err := New(tok, Config{})
		require.NoError(t, err, tok)
		require.NotNil(t, m, tok)
	}
}

func TestDispatchUnknownToken(t *testing.T) {
	_, _, err := New("bogus", Config{})
	assert.Error(t, err)
}
