// Package errormodel implements the measurement error kernels a factor
// can be bound to: plain Gaussian, the two closed-form robust kernels
// (DCS, cDCE), and the two Gaussian-Mixture likelihood formulations
// (MaxMix, SumMix) in mixture.go.
//
// Every kernel except SumMix is an IRLS-style reweighting: Evaluate
// computes the whitened residual at the current linearization point and
// a Jacobian that treats the kernel's own weight as locally constant
// (SumMix returns the exact derivative of its residual instead), the same
// simplification the teacher's SolveLS applies when it folds a fixed
// weight matrix into the normal equations rather than re-deriving it
// each iteration. This is the standard first-order treatment for
// kernels of this shape (equivalent to one IRLS step per solve
// iteration) and is documented as a deliberate choice, not an omission.
package errormodel

import "math"

// Kind identifies the closed set of error model kinds a Factor can be
// bound to.
type Kind int

const (
	KindGaussian Kind = iota
	KindDCS
	KindCDCE
	KindGMMMaxMix
	KindGMMSumMix
)

func (k Kind) String() string {
	switch k {
	case KindGaussian:
		return "Gaussian"
	case KindDCS:
		return "DCS"
	case KindCDCE:
		return "cDCE"
	case KindGMMMaxMix:
		return "MaxMix"
	case KindGMMSumMix:
		return "SumMix"
	default:
		return "Unknown"
	}
}

// Model whitens a factor's raw residual e, returning the whitened
// residual r and its Jacobian w.r.t. e (Dim(len(e)) x len(e)).
//
// No model keeps the residuals it whitens; the samples for FitEM/FitVBI
// come from graph.FactorGraph.ComputeUnweightedError.
type Model interface {
	Kind() Kind
	Dim(rawDim int) int
	Evaluate(e []float64) (r []float64, jac [][]float64)
}

// Gaussian is the trivial whitening r = W*e, W = diag(1/sigma).
type Gaussian struct {
	Sigma []float64
}

func (g *Gaussian) Kind() Kind    { return KindGaussian }
func (g *Gaussian) Dim(d int) int { return d }

func (g *Gaussian) Evaluate(e []float64) ([]float64, [][]float64) {
	d := len(e)
	r := make([]float64, d)
	jac := make([][]float64, d)
	for i := 0; i < d; i++ {
		w := 1.0 / g.Sigma[i]
		r[i] = w * e[i]
		jac[i] = make([]float64, d)
		jac[i][i] = w
	}
	return r, jac
}

// DCS implements Dynamic Covariance Scaling: given the nominal whitened
// residual r = W*e (W = diag(1/Sigma)) and scalar sum-of-squares
// s = r . r, the scale factor k = min(1, 2*Phi/(Phi+s)) shrinks
// outlier-sized residuals toward zero while passing small residuals
// through unchanged.
type DCS struct {
	Sigma []float64
	Phi   float64
}

func (d *DCS) Kind() Kind    { return KindDCS }
func (d *DCS) Dim(n int) int { return n }

func (d *DCS) Evaluate(e []float64) ([]float64, [][]float64) {
	n := len(e)
	r := make([]float64, n)
	s := 0.0
	for i := 0; i < n; i++ {
		r[i] = e[i] / d.Sigma[i]
		s += r[i] * r[i]
	}
	k := 1.0
	if d.Phi > 0 {
		k = math.Min(1.0, 2*d.Phi/(d.Phi+s))
	}
	sk := math.Sqrt(k)
	out := make([]float64, n)
	jac := make([][]float64, n)
	for i := 0; i < n; i++ {
		out[i] = sk * r[i]
		jac[i] = make([]float64, n)
		jac[i][i] = sk / d.Sigma[i]
	}
	return out, jac
}

// CDCE implements closed-form Dynamic Covariance Estimation for a
// scalar residual: with unit whitening, e is scaled by
// sqrt(sigma^2 / (sigma^2 + e^2/nu)), so the weight is 1 for small |e|
// and shrinks smoothly once |e| grows past sigma*sqrt(nu).
type CDCE struct {
	Sigma float64
	Nu    float64
}

func (c *CDCE) Kind() Kind    { return KindCDCE }
func (c *CDCE) Dim(n int) int { return n }

func (c *CDCE) Evaluate(e []float64) ([]float64, [][]float64) {
	x := e[0]
	nu := c.Nu
	if nu <= 0 {
		nu = 1
	}
	varEff := c.Sigma*c.Sigma + x*x/nu
	w := c.Sigma / math.Sqrt(varEff)
	r := []float64{w * x}
	jac := [][]float64{{w}}
	return r, jac
}
