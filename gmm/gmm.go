// Package gmm implements online 1-D Gaussian Mixture Model estimation:
// Expectation-Maximization and Variational Bayesian Inference fits over a
// flat slice of scalar residuals, plus the bookkeeping (offset removal,
// pruning, merging) the self-tuning error models need.
//
// All fitting here is a pure function of its inputs (no package-level
// mutable state), per the "side-effect-free evaluators" and "static
// mixture state" design notes: callers own the *Mixture they grow across
// time steps.
package gmm

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// Component is one Gaussian in the mixture.
type Component struct {
	Mean   float64
	Std    float64
	Weight float64
}

func (c Component) dist() distuv.Normal {
	return distuv.Normal{Mu: c.Mean, Sigma: c.Std}
}

// LogProb returns log(w * N(x; mean, std)).
func (c Component) LogProb(x float64) float64 {
	return math.Log(c.Weight) + c.dist().LogProb(x)
}

// Prob returns w * N(x; mean, std).
func (c Component) Prob(x float64) float64 {
	return c.Weight * c.dist().Prob(x)
}

// Mixture is an ordered, reorderable list of Gaussian components whose
// weights sum to 1 once Normalize has been called.
type Mixture struct {
	Components []Component
}

// InitSpread builds a k-component mixture with equal weights 1/k, means
// spread evenly across [-rng, rng] (or a single mean at 0 when k == 1),
// and every standard deviation set to rng.
func InitSpread(k int, rng float64) *Mixture {
	if k < 1 {
		k = 1
	}
	m := &Mixture{Components: make([]Component, k)}
	w := 1.0 / float64(k)
	if k == 1 {
		m.Components[0] = Component{Mean: 0, Std: rng, Weight: 1}
		return m
	}
	step := 2 * rng / float64(k-1)
	for i := 0; i < k; i++ {
		m.Components[i] = Component{Mean: -rng + step*float64(i), Std: rng, Weight: w}
	}
	return m
}

// NumComponents returns the current mixture order.
func (m *Mixture) NumComponents() int { return len(m.Components) }

// AddComponent appends c to the mixture.
func (m *Mixture) AddComponent(c Component) {
	m.Components = append(m.Components, c)
}

// RemoveLastComponent drops the last component in the list — callers
// sort by weight first to make this "remove the weakest".
func (m *Mixture) RemoveLastComponent() {
	if len(m.Components) > 0 {
		m.Components = m.Components[:len(m.Components)-1]
	}
}

// SortByWeight orders components descending by weight, so the weakest is
// last (ready for RemoveLastComponent).
func (m *Mixture) SortByWeight() {
	sort.Slice(m.Components, func(i, j int) bool {
		return m.Components[i].Weight > m.Components[j].Weight
	})
}

// Normalize rescales weights to sum to 1. No-op on an empty mixture.
func (m *Mixture) Normalize() {
	sum := 0.0
	for _, c := range m.Components {
		sum += c.Weight
	}
	if sum <= 0 {
		return
	}
	for i := range m.Components {
		m.Components[i].Weight /= sum
	}
}

// DominantIndex returns the index of the highest-weight component.
func (m *Mixture) DominantIndex() int {
	best := 0
	for i, c := range m.Components {
		if c.Weight > m.Components[best].Weight {
			best = i
		}
	}
	return best
}

// RemoveOffset shifts every component's mean by -mu0, where mu0 is the
// mean of the highest-weight component, so the dominant (LOS) mode
// becomes zero-centered.
func (m *Mixture) RemoveOffset() {
	if len(m.Components) == 0 {
		return
	}
	mu0 := m.Components[m.DominantIndex()].Mean
	for i := range m.Components {
		m.Components[i].Mean -= mu0
	}
}

// PruneSmallWeights drops components with weight below wMin and
// renormalizes. Leaves at least one component.
func (m *Mixture) PruneSmallWeights(wMin float64) {
	if len(m.Components) <= 1 {
		return
	}
	kept := m.Components[:0]
	for _, c := range m.Components {
		if c.Weight >= wMin {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		kept = m.Components[:1]
	}
	m.Components = kept
	m.Normalize()
}

// MergeSimilar merges component pairs whose means differ by less than
// meanTol (in units of the narrower component's std) and whose std ratio
// is within stdRatioMax.
func (m *Mixture) MergeSimilar(meanTol, stdRatioMax float64) {
	changed := true
	for changed {
		changed = false
		for i := 0; i < len(m.Components); i++ {
			for j := i + 1; j < len(m.Components); j++ {
				a, b := m.Components[i], m.Components[j]
				ratio := a.Std / b.Std
				if ratio < 1 {
					ratio = 1 / ratio
				}
				sigma := math.Min(a.Std, b.Std)
				if sigma <= 0 {
					continue
				}
				if math.Abs(a.Mean-b.Mean) < meanTol*sigma && ratio <= stdRatioMax {
					merged := mergeTwo(a, b)
					m.Components[i] = merged
					m.Components = append(m.Components[:j], m.Components[j+1:]...)
					changed = true
					break
				}
			}
			if changed {
				break
			}
		}
	}
}

func mergeTwo(a, b Component) Component {
	w := a.Weight + b.Weight
	mean := (a.Weight*a.Mean + b.Weight*b.Mean) / w
	varA := a.Std*a.Std + (a.Mean-mean)*(a.Mean-mean)
	varB := b.Std*b.Std + (b.Mean-mean)*(b.Mean-mean)
	variance := (a.Weight*varA + b.Weight*varB) / w
	return Component{Mean: mean, Std: math.Sqrt(variance), Weight: w}
}

// logSumExp computes log(sum(exp(v))) in a numerically stable way.
func logSumExp(v []float64) float64 {
	max := math.Inf(-1)
	for _, x := range v {
		if x > max {
			max = x
		}
	}
	if math.IsInf(max, -1) {
		return max
	}
	sum := 0.0
	for _, x := range v {
		sum += math.Exp(x - max)
	}
	return max + math.Log(sum)
}

// ErrDegenerate names a collapsed (non-positive) component variance.
// FitEM and FitVBI never return it: they clamp every component std to
// at least MinStd, so a fit cannot produce such a component.
var ErrDegenerate = errors.New("gmm: degenerate component variance")

// convergedStreak is how many consecutive iterations must fall below
// Tolerance before a fit stops early.
const convergedStreak = 10

// EMConfig tunes a FitEM call.
type EMConfig struct {
	MaxIterations         int     // default 100
	Tolerance             float64 // log-likelihood convergence threshold, default 1e-5
	MinStd                float64 // floor applied to every component std, default 1e-3
	RemoveSmallComponents bool
	WMin                  float64 // weight floor used when RemoveSmallComponents is set, default 1e-3
	MergeSimilarComponents bool
	MergeMeanTol          float64 // default 0.5
	MergeStdRatioMax      float64 // default 2
}

func (c EMConfig) withDefaults() EMConfig {
	if c.MaxIterations == 0 {
		c.MaxIterations = 100
	}
	if c.Tolerance == 0 {
		c.Tolerance = 1e-5
	}
	if c.MinStd == 0 {
		c.MinStd = 1e-3
	}
	if c.WMin == 0 {
		c.WMin = 1e-3
	}
	if c.MergeMeanTol == 0 {
		c.MergeMeanTol = 0.5
	}
	if c.MergeStdRatioMax == 0 {
		c.MergeStdRatioMax = 2
	}
	return c
}

// FitEM re-estimates m's components from samples using up to
// cfg.MaxIterations EM iterations, stopping early once the
// log-likelihood change stays below cfg.Tolerance for convergedStreak
// iterations in a row (no automatic model-order growth — the caller fixes
// the order by the shape of m when it's passed in). After convergence,
// components may be pruned and merged per cfg.
func (m *Mixture) FitEM(samples []float64, cfg EMConfig) error {
	cfg = cfg.withDefaults()
	k := len(m.Components)
	if k == 0 || len(samples) == 0 {
		return nil
	}
	resp := make([][]float64, len(samples))
	for i := range resp {
		resp[i] = make([]float64, k)
	}
	prevLL := math.Inf(-1)
	streak := 0
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		ll := 0.0
		logs := make([]float64, k)
		for n, x := range samples {
			for j, c := range m.Components {
				logs[j] = c.LogProb(x)
			}
			lse := logSumExp(logs)
			ll += lse
			for j := range logs {
				resp[n][j] = math.Exp(logs[j] - lse)
			}
		}
		for j := range m.Components {
			wSum := 0.0
			meanSum := 0.0
			for n, x := range samples {
				wSum += resp[n][j]
				meanSum += resp[n][j] * x
			}
			if wSum <= 0 {
				continue
			}
			mean := meanSum / wSum
			varSum := 0.0
			for n, x := range samples {
				d := x - mean
				varSum += resp[n][j] * d * d
			}
			std := math.Sqrt(varSum / wSum)
			if std < cfg.MinStd {
				std = cfg.MinStd
			}
			m.Components[j].Mean = mean
			m.Components[j].Std = std
			m.Components[j].Weight = wSum / float64(len(samples))
		}
		if math.Abs(ll-prevLL) < cfg.Tolerance {
			streak++
			if streak >= convergedStreak {
				break
			}
		} else {
			streak = 0
		}
		prevLL = ll
	}
	m.Normalize()
	if cfg.RemoveSmallComponents {
		m.PruneSmallWeights(cfg.WMin)
	}
	if cfg.MergeSimilarComponents {
		m.MergeSimilar(cfg.MergeMeanTol, cfg.MergeStdRatioMax)
	}
	return nil
}

// VBIConfig tunes a FitVBI call. FitVBI follows a Normal-Wishart
// variational Bayesian update and lets the component count shrink: the
// caller grows the mixture (AddComponent) before calling, and FitVBI
// drops the lowest-weight component whenever the resulting order would
// exceed MaxComponents, mirroring the reference implementation's
// sortComponentsByWeight/removeLastComponent pair.
type VBIConfig struct {
	MaxIterations int     // default 100
	Tolerance     float64 // default 1e-5
	MinStd        float64 // default 1e-3
	PriorWishartDOF float64 // Normal-Wishart prior degrees of freedom, default 1
	PriorMeanPrec   float64 // prior precision on the mean, default 1e-3
	MaxComponents   int     // default 5
}

func (c VBIConfig) withDefaults() VBIConfig {
	if c.MaxIterations == 0 {
		c.MaxIterations = 100
	}
	if c.Tolerance == 0 {
		c.Tolerance = 1e-5
	}
	if c.MinStd == 0 {
		c.MinStd = 1e-3
	}
	if c.PriorWishartDOF == 0 {
		c.PriorWishartDOF = 1
	}
	if c.PriorMeanPrec == 0 {
		c.PriorMeanPrec = 1e-3
	}
	if c.MaxComponents == 0 {
		c.MaxComponents = 5
	}
	return c
}

// FitVBI re-estimates m's components with a Normal-Wishart variational
// update, then enforces cfg.MaxComponents by repeatedly sorting by
// weight and dropping the weakest component.
func (m *Mixture) FitVBI(samples []float64, cfg VBIConfig) error {
	cfg = cfg.withDefaults()
	if len(m.Components) == 0 || len(samples) == 0 {
		return nil
	}
	n := float64(len(samples))
	k := len(m.Components)
	resp := make([][]float64, len(samples))
	for i := range resp {
		resp[i] = make([]float64, k)
	}
	prevLL := math.Inf(-1)
	streak := 0
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		ll := 0.0
		logs := make([]float64, k)
		for s, x := range samples {
			for j, c := range m.Components {
				logs[j] = c.LogProb(x)
			}
			lse := logSumExp(logs)
			ll += lse
			for j := range logs {
				resp[s][j] = math.Exp(logs[j] - lse)
			}
		}
		for j := range m.Components {
			nk := 0.0
			meanSum := 0.0
			for s, x := range samples {
				nk += resp[s][j]
				meanSum += resp[s][j] * x
			}
			// Normal-Wishart posterior mean blends the prior (at 0,
			// precision PriorMeanPrec) with the weighted sample mean.
			meanPost := meanSum / (nk + cfg.PriorMeanPrec)
			varSum := cfg.PriorWishartDOF
			for s, x := range samples {
				d := x - meanPost
				varSum += resp[s][j] * d * d
			}
			std := math.Sqrt(varSum / (nk + cfg.PriorWishartDOF))
			if std < cfg.MinStd {
				std = cfg.MinStd
			}
			m.Components[j].Mean = meanPost
			m.Components[j].Std = std
			m.Components[j].Weight = (nk + 1) / (n + float64(k))
		}
		if math.Abs(ll-prevLL) < cfg.Tolerance {
			streak++
			if streak >= convergedStreak {
				break
			}
		} else {
			streak = 0
		}
		prevLL = ll
	}
	m.Normalize()
	for m.NumComponents() > cfg.MaxComponents {
		m.SortByWeight()
		m.RemoveLastComponent()
		m.Normalize()
	}
	return nil
}
