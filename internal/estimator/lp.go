package estimator

import (
	"context"
	"math"

	"github.com/grussorusso/serverledge-estimator/internal/logging"
	"github.com/grussorusso/serverledge-estimator/internal/master"
	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"github.com/grussorusso/serverledge-estimator/internal/solver/lpsolve"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
	"github.com/sirupsen/logrus"
)

// NoEstimate is the init estimate sentinel: no objective cap.
const NoEstimate uint64 = math.MaxUint64

type LPOptions struct {
	// InitEstimate caps the latency sum; NoEstimate disables the cap.
	InitEstimate uint64
	// IntegerStarts trades speed for a tighter bound.
	IntegerStarts bool
	NewModel      solver.Factory
	Params        solver.Params
}

func DefaultLPOptions() LPOptions {
	return LPOptions{InitEstimate: NoEstimate, NewModel: lpsolve.New, Params: solver.DefaultParams()}
}

// LPLowerBound solves the master without cuts or packing and returns its
// objective minus the arrival sum.
func LPLowerBound(ctx context.Context, in *workload.Instance, opts LPOptions) (uint64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	if opts.NewModel == nil {
		opts.NewModel = lpsolve.New
	}
	mo := master.Options{
		IntegerStarts: opts.IntegerStarts,
		NewModel:      opts.NewModel,
	}
	if opts.InitEstimate != NoEstimate {
		estimate := opts.InitEstimate
		mo.ObjectiveCap = &estimate
	}
	f, err := master.Build(in, mo)
	if err != nil {
		return 0, err
	}
	sol, err := f.Solve(ctx, opts.Params)
	if err != nil {
		return 0, err
	}
	logging.GetLogger().WithFields(logrus.Fields{
		"invocations": in.Len(),
		"bound":       sol.Bound,
		"elapsed":     sol.Elapsed,
	}).Info("lp lower bound")
	return sol.Bound, nil
}

// LPLowerBoundArrays is LPLowerBound over the raw input arrays.
func LPLowerBoundArrays(ctx context.Context, arrival, duration, app, appColdStart []uint64, keepalive, initEstimate uint64) (uint64, error) {
	in := &workload.Instance{
		Arrival:      arrival,
		Duration:     duration,
		App:          app,
		AppColdStart: appColdStart,
		Keepalive:    keepalive,
	}
	opts := DefaultLPOptions()
	opts.InitEstimate = initEstimate
	return LPLowerBound(ctx, in, opts)
}

type LPEstimator struct {
	Options  LPOptions
	RoundMul float64
}

func (e *LPEstimator) Name() string { return "lp" }

func (e *LPEstimator) Estimate(ctx context.Context, in *workload.Instance) (Estimation, error) {
	b, err := LPLowerBound(ctx, in, e.Options)
	if err != nil {
		return Estimation{}, err
	}
	return scaled(LowerBound, b, e.RoundMul), nil
}
