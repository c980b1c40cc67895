package estimator

import (
	"context"

	"github.com/grussorusso/serverledge-estimator/internal/localsearch"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
)

// LocalSearchUpperBound returns the latency of the best feasible schedule
// the local search finds.
func LocalSearchUpperBound(ctx context.Context, in *workload.Instance, opts localsearch.Options) (uint64, error) {
	res, err := localsearch.Search(ctx, in, opts)
	if err != nil {
		return 0, err
	}
	return res.Schedule.Latency, nil
}

type LocalSearchEstimator struct {
	Options  localsearch.Options
	RoundMul float64
}

func (e *LocalSearchEstimator) Name() string { return "localsearch" }

func (e *LocalSearchEstimator) Estimate(ctx context.Context, in *workload.Instance) (Estimation, error) {
	u, err := LocalSearchUpperBound(ctx, in, e.Options)
	if err != nil {
		return Estimation{}, err
	}
	return scaled(UpperBound, u, e.RoundMul), nil
}
