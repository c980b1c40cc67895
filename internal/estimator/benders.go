package estimator

import (
	"context"
	"math"

	"github.com/grussorusso/serverledge-estimator/internal/benders"
	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"github.com/grussorusso/serverledge-estimator/internal/solver/lpsolve"
	"github.com/grussorusso/serverledge-estimator/internal/verify"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
)

func DefaultBendersOptions() benders.Options {
	return benders.Options{
		Iterations: benders.DefaultIterations,
		MaxCuts:    benders.DefaultMaxCuts,
		NewModel:   lpsolve.New,
		Params:     solver.DefaultParams(),
		Workers:    verify.DefaultWorkers,
	}
}

// BendersLowerBound runs the decomposition and returns the best bound with
// the per-iteration report.
func BendersLowerBound(ctx context.Context, in *workload.Instance, opts benders.Options) (uint64, *benders.Report, error) {
	if opts.NewModel == nil {
		opts.NewModel = lpsolve.New
	}
	report, err := benders.Run(ctx, in, opts)
	if err != nil {
		return 0, nil, err
	}
	return report.Bound, report, nil
}

// BendersLowerBoundArrays is BendersLowerBound over the raw input arrays.
func BendersLowerBoundArrays(ctx context.Context, arrival, duration, app, appColdStart []uint64,
	appResources, hostResources [][]uint64, keepalive, iterations, maxCuts uint64) (uint64, error) {
	in := &workload.Instance{
		Arrival:       arrival,
		Duration:      duration,
		App:           app,
		AppColdStart:  appColdStart,
		AppResources:  appResources,
		HostResources: hostResources,
		Keepalive:     keepalive,
	}
	opts := DefaultBendersOptions()
	opts.Iterations = clampInt(iterations)
	opts.MaxCuts = clampInt(maxCuts)
	b, _, err := BendersLowerBound(ctx, in, opts)
	return b, err
}

type BendersEstimator struct {
	Options  benders.Options
	RoundMul float64
	// LastReport is the report of the most recent Estimate call.
	LastReport *benders.Report
}

func (e *BendersEstimator) Name() string { return "benders" }

func (e *BendersEstimator) Estimate(ctx context.Context, in *workload.Instance) (Estimation, error) {
	b, report, err := BendersLowerBound(ctx, in, e.Options)
	if err != nil {
		return Estimation{}, err
	}
	e.LastReport = report
	return scaled(LowerBound, b, e.RoundMul), nil
}

func clampInt(v uint64) int {
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
