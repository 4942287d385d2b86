package errormodel

import (
	"fmt"

	"github.com/tchmukai/rsf/gmm"
)

// TuningType says whether, and how, a bound Model should be re-estimated
// from accumulated residuals as new epochs arrive.
type TuningType int

const (
	TuningNone TuningType = iota
	TuningEM
	TuningVBI
)

// Config carries every knob the nine CLI error-model tokens need. Zero
// values fall back to the defaults noted per field.
type Config struct {
	Sigma float64 // pseudorange nominal std dev, meters. Default 5.
	Phi   float64 // DCS shape parameter. Default 1.
	Nu    float64 // cDCE degrees of freedom. Default 1.

	InitComponents int     // GMM starting component count. Default 2.
	InitSpread     float64 // GMM initial component spread, meters. Default 10.
	MaxComponents  int     // VBI component cap. Default 5.
	PriorDOF       float64 // VBI Normal-Wishart prior degrees of freedom. Default 1.
}

func (c Config) withDefaults() Config {
	if c.Sigma == 0 {
		c.Sigma = 5
	}
	if c.Phi == 0 {
		c.Phi = 1
	}
	if c.Nu == 0 {
		c.Nu = 1
	}
	if c.InitComponents == 0 {
		c.InitComponents = 2
	}
	if c.InitSpread == 0 {
		c.InitSpread = 10
	}
	if c.MaxComponents == 0 {
		c.MaxComponents = 5
	}
	if c.PriorDOF == 0 {
		c.PriorDOF = 1
	}
	return c
}

// New dispatches one of the nine CLI error-model tokens into a bound
// Model plus the TuningType the application driver must run at every
// epoch to keep it current. This is the single point in the codebase
// that maps a command-line string to a concrete kernel, grounded on the
// original's ParseErrorModel token switch.
func New(token string, cfg Config) (Model, TuningType, error) {
	cfg = cfg.withDefaults()
	switch token {
	case "gauss":
		return &Gaussian{Sigma: []float64{cfg.Sigma}}, TuningNone, nil
	case "dcs":
		return &DCS{Sigma: []float64{cfg.Sigma}, Phi: cfg.Phi}, TuningNone, nil
	case "cdce":
		return &CDCE{Sigma: cfg.Sigma, Nu: cfg.Nu}, TuningNone, nil
	case "mm":
		return &MaxMix{Mix: initMixture(cfg)}, TuningNone, nil
	case "sm":
		return &SumMix{Mix: initMixture(cfg)}, TuningNone, nil
	case "stmm":
		return &MaxMix{Mix: initMixture(cfg)}, TuningEM, nil
	case "stsm":
		return &SumMix{Mix: initMixture(cfg)}, TuningEM, nil
	case "stmm_vbi":
		return &MaxMix{Mix: initMixture(cfg)}, TuningVBI, nil
	case "stsm_vbi":
		return &SumMix{Mix: initMixture(cfg)}, TuningVBI, nil
	default:
		return nil, TuningNone, fmt.Errorf("errormodel: unknown token %q", token)
	}
}

func initMixture(cfg Config) *gmm.Mixture {
	return gmm.InitSpread(cfg.InitComponents, cfg.InitSpread)
}

// PerMeasurement returns the Model an individual factor should bind to
// given its own measurement std-dev sigma: a fresh scalar-sigma
// instance of the same kernel kind for Gaussian/DCS/cDCE (mirroring the
// original's per-satellite `NoisePseudorange.setStdDevDiagonal(
// Pseudorange.getStdDev())`), or base unchanged for the GMM-backed
// kinds, whose components already encode the noise structure and must
// stay shared so SetNewErrorModel can re-bind every factor at once.
func PerMeasurement(base Model, sigma float64) Model {
	switch m := base.(type) {
	case *Gaussian:
		return &Gaussian{Sigma: []float64{sigma}}
	case *DCS:
		return &DCS{Sigma: []float64{sigma}, Phi: m.Phi}
	case *CDCE:
		return &CDCE{Sigma: sigma, Nu: m.Nu}
	default:
		return base
	}
}
