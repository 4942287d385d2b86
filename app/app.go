// Package app wires the dataset, factor graph and I/O layers into the
// epoch-by-epoch driver: read the input stream, grow the sliding
// window, solve, tune the bound error model, evict, repeat.
//
// The INIT -> STEADY -> DONE phase machine and the per-scenario
// parameter lookup by input file name are grounded on
// cmd/gortk/main.go's processEpochs/processSingleEpoch/epochState
// pattern, and on IV19_GNSS.cpp's own two-stage initialization (a
// throwaway Gaussian-only SimpleGraph solved once for a coarse fix,
// before the main graph is built).
package app

import (
	"fmt"
	"math"
	"path/filepath"

	"github.com/tchmukai/rsf"
	"github.com/tchmukai/rsf/errormodel"
	"github.com/tchmukai/rsf/factor"
	"github.com/tchmukai/rsf/gmm"
	"github.com/tchmukai/rsf/graph"
	"github.com/tchmukai/rsf/rsfio"
	"github.com/tchmukai/rsf/state"
)

// Phase is the driver's current stage.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSteady
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseSteady:
		return "STEADY"
	case PhaseDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// windowSize is the sliding window length, in seconds, kept behind the
// latest epoch before states are evicted.
const windowSize = 60

// Config collects everything Run needs.
type Config struct {
	InputFile       string
	OutputFile      string
	ErrorModelToken string
	Verbosity       int
}

// scenario holds the hard-coded constant-clock-error-drift (CCED) noise
// std-devs the original implementation picks by input file name —
// grounded on IV19_GNSS.cpp's StdCCED literal compare against
// "Chemnitz_Input.txt".
type scenario struct {
	ClockErrSigma   float64
	ClockDriftSigma float64
}

func scenarioFor(path string) scenario {
	switch filepath.Base(path) {
	case "Chemnitz_Input.txt":
		return scenario{ClockErrSigma: 0.1, ClockDriftSigma: 0.009}
	default:
		return scenario{ClockErrSigma: 0.05, ClockDriftSigma: 0.01}
	}
}

// Run executes the full fusion pipeline described by cfg.
func Run(cfg Config) error {
	rsf.DBG_ = cfg.Verbosity

	phase := PhaseInit
	rsf.PrintD(1, "phase=%s input=%s\n", phase, cfg.InputFile)

	in, err := rsfio.ReadInput(cfg.InputFile)
	if err != nil {
		return fmt.Errorf("app: run: %w", err)
	}
	scn := scenarioFor(cfg.InputFile)

	model, tuning, err := errormodel.New(cfg.ErrorModelToken, errormodel.Config{})
	if err != nil {
		return fmt.Errorf("app: run: %w", err)
	}

	epochs := in.EpochTimes()
	if len(epochs) == 0 {
		return fmt.Errorf("app: run: no epochs in %s", cfg.InputFile)
	}

	// Odom4_ECEF's Gaussian noise is fixed for the whole run from the
	// first odometry record, exactly as IV19_GNSS.cpp reads
	// InputData.getElement(Odom3, TimestampFirst) once outside the
	// per-epoch loop.
	var odomNoise *errormodel.Gaussian
	if first, ok := in.FirstOdom(); ok {
		odomNoise = &errormodel.Gaussian{Sigma: []float64{first.StdVx, first.StdVy, first.StdVz, first.StdYawRate}}
	}
	driftNoise := &errormodel.Gaussian{Sigma: []float64{scn.ClockErrSigma, scn.ClockDriftSigma}}

	g := graph.New()
	var results []rsfio.PositionRecord

	t0 := epochs[0]
	if err := initEpoch(g, model, t0, in.PseudorangesAt(t0)); err != nil {
		return fmt.Errorf("app: run: %w", err)
	}
	// Spec's INIT stage is solve; tune; solve again (IV19_GNSS.cpp:373-375:
	// Graph.solve, TuneErrorModel, Graph.solve) — the first solve here
	// gives the GMM estimator residuals linearized at a converged fix
	// rather than initEpoch's coarse seed.
	preReport, err := g.Solve(graph.SolveOptions{})
	if err != nil {
		return fmt.Errorf("app: run: solve at t=%g: %w", t0, err)
	}
	graph.PrintReport(preReport)
	if tuning != errormodel.TuningNone {
		samples, err := g.ComputeUnweightedError(factor.Pseudorange3ECEF)
		if err != nil {
			return fmt.Errorf("app: run: %w", err)
		}
		tuneModel(model, samples, tuning)
	}
	report, err := g.Solve(graph.SolveOptions{})
	if err != nil {
		return fmt.Errorf("app: run: solve at t=%g: %w", t0, err)
	}
	graph.PrintReport(report)
	results = append(results, recordAt(g, t0))

	phase = PhaseSteady
	rsf.PrintD(1, "phase=%s\n", phase)

	for i := 1; i < len(epochs); i++ {
		t := epochs[i]
		prevT := epochs[i-1]

		posVar := g.AddState(state.Point3, t)
		g.AddState(state.Angle, t)
		g.AddState(state.ClockError, t)
		g.AddState(state.ClockDrift, t)

		prevMean, err := g.GetStateData(state.Point3, prevT)
		if err != nil {
			return fmt.Errorf("app: run: %w", err)
		}
		posVar.SetMean(prevMean)

		for _, meas := range in.PseudorangesAt(t) {
			f := factor.NewPseudorange3ECEF(t, meas.SatPos, meas.SatClockBias, meas.Range)
			f.SetErrorModel(errormodel.PerMeasurement(model, meas.Sigma))
			if err := g.AddFactor(f); err != nil {
				return fmt.Errorf("app: run: %w", err)
			}
		}

		driftFactor := factor.NewConstDrift1(prevT, t)
		driftFactor.SetErrorModel(driftNoise)
		if err := g.AddFactor(driftFactor); err != nil {
			return fmt.Errorf("app: run: %w", err)
		}

		for _, od := range in.OdomAt(t) {
			of := factor.NewOdom4ECEF(prevT, t, od.Vx, od.Vy, od.Vz, od.YawRate)
			of.SetErrorModel(odomNoise)
			if err := g.AddFactor(of); err != nil {
				return fmt.Errorf("app: run: %w", err)
			}
		}

		if tuning != errormodel.TuningNone {
			samples, err := g.ComputeUnweightedError(factor.Pseudorange3ECEF)
			if err != nil {
				return fmt.Errorf("app: run: %w", err)
			}
			tuneModel(model, samples, tuning)
		}

		report, err := g.Solve(graph.SolveOptions{})
		if err != nil {
			return fmt.Errorf("app: run: solve at t=%g: %w", t, err)
		}
		graph.PrintReport(report)

		g.RemoveAllStatesOutsideWindow(t-windowSize, t)

		results = append(results, recordAt(g, t))
	}

	phase = PhaseDone
	rsf.PrintD(1, "phase=%s epochs=%d\n", phase, len(epochs))

	if err := rsfio.WriteOutput(cfg.OutputFile, results); err != nil {
		return fmt.Errorf("app: run: %w", err)
	}
	return nil
}

// initEpoch implements spec's INIT stage: a throwaway Gaussian-only
// subgraph (Point3 + ClockError, all pseudoranges at t0) is solved once
// for a coarse fix, which seeds the main graph g before Angle and
// ClockDrift states and the configured error model's pseudorange
// factors are added.
func initEpoch(g *graph.FactorGraph, model errormodel.Model, t0 float64, pseudoranges []rsfio.PseudorangeMeasurement) error {
	throwaway := graph.New()
	posVar := throwaway.AddState(state.Point3, t0)
	posVar.SetMean(coarseStart(pseudoranges))
	clockVar := throwaway.AddState(state.ClockError, t0)

	for _, meas := range pseudoranges {
		f := factor.NewPseudorange3ECEF(t0, meas.SatPos, meas.SatClockBias, meas.Range)
		f.SetErrorModel(&errormodel.Gaussian{Sigma: []float64{meas.Sigma}})
		if err := throwaway.AddFactor(f); err != nil {
			return err
		}
	}
	if _, err := throwaway.Solve(graph.SolveOptions{}); err != nil {
		return fmt.Errorf("init subgraph solve: %w", err)
	}

	mainPos := g.AddState(state.Point3, t0)
	mainPos.SetMean(posVar.Mean)
	mainClock := g.AddState(state.ClockError, t0)
	mainClock.SetMean(clockVar.Mean)
	g.AddState(state.Angle, t0)
	g.AddState(state.ClockDrift, t0)

	for _, meas := range pseudoranges {
		f := factor.NewPseudorange3ECEF(t0, meas.SatPos, meas.SatClockBias, meas.Range)
		f.SetErrorModel(errormodel.PerMeasurement(model, meas.Sigma))
		if err := g.AddFactor(f); err != nil {
			return err
		}
	}
	return nil
}

func recordAt(g *graph.FactorGraph, t float64) rsfio.PositionRecord {
	mean, err := g.GetStateData(state.Point3, t)
	if err != nil {
		return rsfio.PositionRecord{Time: t}
	}
	return rsfio.PositionRecord{Time: t, Pos: rsf.PosXYZ{X: mean[0], Y: mean[1], Z: mean[2]}}
}

// coarseStart picks a starting position on the Earth's surface
// along the mean line-of-sight direction to the visible satellites,
// rather than at their centroid (which sits far outside Earth).
func coarseStart(ps []rsfio.PseudorangeMeasurement) []float64 {
	if len(ps) == 0 {
		return []float64{rsf.Re, 0, 0}
	}
	var x, y, z float64
	for _, p := range ps {
		x += p.SatPos.X
		y += p.SatPos.Y
		z += p.SatPos.Z
	}
	n := float64(len(ps))
	mean := rsf.PosXYZ{X: x / n, Y: y / n, Z: z / n}
	scale := rsf.Re / rsf.EucDist(&rsf.PosXYZ{}, &mean)
	return []float64{mean.X * scale, mean.Y * scale, mean.Z * scale}
}

func tuneModel(model errormodel.Model, samples []float64, tuning errormodel.TuningType) {
	if len(samples) == 0 {
		return
	}
	switch m := model.(type) {
	case *errormodel.MaxMix:
		fitMixture(m.Mix, samples, tuning)
	case *errormodel.SumMix:
		fitMixture(m.Mix, samples, tuning)
	}
}

func fitMixture(mix *gmm.Mixture, samples []float64, tuning errormodel.TuningType) {
	switch tuning {
	case errormodel.TuningEM:
		_ = mix.FitEM(samples, gmm.EMConfig{RemoveSmallComponents: true, MergeSimilarComponents: true})
	case errormodel.TuningVBI:
		if mix.NumComponents() < 5 {
			k := mix.NumComponents()
			mean := 0.0
			for _, x := range samples {
				mean += x
			}
			mean /= float64(len(samples))
			mix.AddComponent(gmm.Component{Mean: mean, Std: sampleStdev(samples), Weight: 1 / float64(k+1)})
			mix.Normalize()
		}
		_ = mix.FitVBI(samples, gmm.VBIConfig{MaxComponents: 5})
	}
	mix.RemoveOffset()
}

// sampleStdev is the sample standard deviation of the current residual
// window, the seed std-dev for the new component FitVBI's caller grows
// the mixture by each time step (IV19_GNSS.cpp:220-244's
// GetVarianceEstimate over the current batch).
func sampleStdev(samples []float64) float64 {
	if len(samples) < 2 {
		return 1
	}
	var mean float64
	for _, x := range samples {
		mean += x
	}
	mean /= float64(len(samples))
	var ss float64
	for _, x := range samples {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(samples)-1))
}
