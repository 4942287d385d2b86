package errormodel

import (
	"math"

	"github.com/tchmukai/rsf/gmm"
)

// logTerm evaluates log(w_k * |S_k| * exp(-0.5*z^2)) = log(w_k/std_k) -
// 0.5*z^2 for one component at x — the spec's per-component mixture
// likelihood term, which deliberately omits the Gaussian normalizing
// constant 1/sqrt(2*pi) that gmm.Component.LogProb carries (that
// constant is needed for a correct EM/VBI density fit but must be
// dropped here so MaxMix and SumMix agree on a single-component
// mixture, per the "MaxMix == SumMix for K=1, w=1" invariant).
func logTerm(c gmm.Component, x float64) float64 {
	z := (x - c.Mean) / c.Std
	return math.Log(c.Weight/c.Std) - 0.5*z*z
}

// normConst is the constant C used to keep the GMM pseudo-residual's
// squared form non-negative: C = max_k(weight_k / std_k), so the
// selected/dominant component always contributes a non-positive log
// term. This mirrors the max-mixture hypothesis-selection trick
// (Olson & Agarwal): picking C as the largest weight/std ratio in the
// mixture, rather than a fixed constant, keeps the pseudo-residual
// well-defined for any mixture the estimator produces.
func normConst(mix *gmm.Mixture) float64 {
	max := 0.0
	for _, c := range mix.Components {
		ws := c.Weight / c.Std
		if ws > max {
			max = ws
		}
	}
	if max == 0 {
		max = 1
	}
	return max
}

func logSumExp(v []float64) float64 {
	maxV := math.Inf(-1)
	for _, x := range v {
		if x > maxV {
			maxV = x
		}
	}
	if math.IsInf(maxV, -1) {
		return maxV
	}
	sum := 0.0
	for _, x := range v {
		sum += math.Exp(x - maxV)
	}
	return maxV + math.Log(sum)
}

// MaxMix implements the Max-Mixture likelihood: the residual is built
// from the single best-fitting component (hard hypothesis selection),
// giving a pseudo-residual with discontinuous derivatives at component
// boundaries. Every component is still scored to find the best one.
//
// Mix is held by pointer so SetNewErrorModel can atomically re-bind a
// freshly-estimated mixture onto a live factor without losing the
// parameter-block identity of the factor itself — the Go equivalent of
// libRSF's replace-by-pointer-swap "static" GMM state.
type MaxMix struct {
	Mix *gmm.Mixture
}

func (m *MaxMix) Kind() Kind { return KindGMMMaxMix }
func (m *MaxMix) Dim(int) int { return 2 }

func (m *MaxMix) Evaluate(e []float64) ([]float64, [][]float64) {
	x := e[0]
	best := math.Inf(-1)
	bestIdx := 0
	for i, c := range m.Mix.Components {
		lp := logTerm(c, x)
		if lp > best {
			best = lp
			bestIdx = i
		}
	}
	ck := m.Mix.Components[bestIdx]
	sk := 1.0 / ck.Std
	r1 := sk * (x - ck.Mean)

	c := normConst(m.Mix)
	wk := ck.Weight / ck.Std
	term := -2 * math.Log(wk/c)
	if term < 0 {
		term = 0
	}
	r2 := math.Sqrt(term)

	r := []float64{r1, r2}
	jac := [][]float64{{sk}, {0}}
	return r, jac
}

// SumMix implements the Sum-Mixture likelihood: the pseudo-residual is
// derived from the full mixture density, smooth and differentiable
// everywhere at the cost of evaluating every component per sample.
type SumMix struct {
	Mix *gmm.Mixture
}

func (s *SumMix) Kind() Kind { return KindGMMSumMix }
func (s *SumMix) Dim(int) int { return 1 }

func (s *SumMix) Evaluate(e []float64) ([]float64, [][]float64) {
	x := e[0]
	logs := make([]float64, len(s.Mix.Components))
	for i, c := range s.Mix.Components {
		logs[i] = logTerm(c, x)
	}
	logL := logSumExp(logs)

	c := normConst(s.Mix)
	arg := -2 * (logL - math.Log(c))
	if arg < 0 {
		arg = 0
	}
	r := math.Sqrt(arg)

	dLogLdx := 0.0
	for i, comp := range s.Mix.Components {
		resp := math.Exp(logs[i] - logL)
		dLogLdx += resp * (-(x - comp.Mean) / (comp.Std * comp.Std))
	}
	drdx := 0.0
	if r > 1e-12 {
		drdx = -dLogLdx / r
	}
	return []float64{r}, [][]float64{{drdx}}
}
