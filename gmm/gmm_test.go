package gmm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitSpread(t *testing.T) {
	m := InitSpread(3, 10)
	require.Equal(t, 3, m.NumComponents())
	assert.InDelta(t, -10, m.Components[0].Mean, 1e-9)
	assert.InDelta(t, 10, m.Components[2].Mean, 1e-9)
	sum := 0.0
	for _, c := range m.Components {
		sum += c.Weight
	}
	assert.InDelta(t, 1, sum, 1e-9)
}

func TestNormalize(t *testing.T) {
	m := &Mixture{Components: []Component{{Weight: 2}, {Weight: 2}}}
	m.Normalize()
	assert.InDelta(t, 0.5, m.Components[0].Weight, 1e-9)
}

func TestRemoveOffset(t *testing.T) {
	m := &Mixture{Components: []Component{
		{Mean: 5, Std: 1, Weight: 0.9},
		{Mean: 50, Std: 10, Weight: 0.1},
	}}
	m.RemoveOffset()
	assert.InDelta(t, 0, m.Components[0].Mean, 1e-9)
	assert.InDelta(t, 45, m.Components[1].Mean, 1e-9)
}

func TestSortByWeightAndRemoveLast(t *testing.T) {
	m := &Mixture{Components: []Component{
		{Weight: 0.7}, {Weight: 0.1}, {Weight: 0.2},
	}}
	m.SortByWeight()
	assert.InDelta(t, 0.7, m.Components[0].Weight, 1e-9)
	m.RemoveLastComponent()
	assert.Equal(t, 2, m.NumComponents())
}

func TestPruneSmallWeights(t *testing.T) {
	m := &Mixture{Components: []Component{
		{Mean: 0, Std: 1, Weight: 0.98},
		{Mean: 10, Std: 1, Weight: 0.02},
	}}
	m.PruneSmallWeights(0.05)
	require.Equal(t, 1, m.NumComponents())
	assert.InDelta(t, 1, m.Components[0].Weight, 1e-9)
}

func TestMergeSimilar(t *testing.T) {
	m := &Mixture{Components: []Component{
		{Mean: 0, Std: 1, Weight: 0.5},
		{Mean: 0.1, Std: 1, Weight: 0.5},
	}}
	m.MergeSimilar(1.0, 2.0)
	assert.Equal(t, 1, m.NumComponents())
}

func TestFitEMRecoversSingleGaussian(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	samples := make([]float64, 2000)
	for i := range samples {
		samples[i] = rng.NormFloat64()*2 + 5
	}
	m := InitSpread(1, 5)
	err := m.FitEM(samples, EMConfig{})
	require.NoError(t, err)
	assert.InDelta(t, 5, m.Components[0].Mean, 0.5)
	assert.InDelta(t, 2, m.Components[0].Std, 0.5)
}

func TestFitVBIEnforcesMaxComponents(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	samples := make([]float64, 500)
	for i := range samples {
		samples[i] = rng.NormFloat64()
	}
	m := InitSpread(8, 5)
	err := m.FitVBI(samples, VBIConfig{MaxComponents: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, m.NumComponents(), 3)
}

func TestLogSumExpMatchesNaiveForSmallInputs(t *testing.T) {
	v := []float64{0, 1, 2}
	want := math.Log(math.Exp(0) + math.Exp(1) + math.Exp(2))
	assert.InDelta(t, want, logSumExp(v), 1e-9)
}
