package api

import (
	"fmt"

	"github.com/grussorusso/serverledge-estimator/internal/benders"
	"github.com/grussorusso/serverledge-estimator/internal/config"
	"github.com/grussorusso/serverledge-estimator/internal/estimator"
	"github.com/grussorusso/serverledge-estimator/internal/localsearch"
	"github.com/grussorusso/serverledge-estimator/internal/metrics"
	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"github.com/grussorusso/serverledge-estimator/internal/solver/lpsolve"
	_ "github.com/grussorusso/serverledge-estimator/internal/solver/simplex"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
)

// Methods lists the estimation methods served by /estimate/:method.
var Methods = []string{"lp", "benders", "pathcover", "localsearch"}

// NewEstimator builds the estimator for method from the current
// configuration.
func NewEstimator(method string) (estimator.Estimator, error) {
	roundMul := config.GetFloat(config.ROUND_MUL, 1.0)
	newModel, err := solver.Lookup(config.GetString(config.SOLVER_BACKEND, lpsolve.Name))
	if err != nil {
		return nil, err
	}
	params := solver.DefaultParams()
	params.RelativeGap = config.GetFloat(config.SOLVER_MIP_GAP, params.RelativeGap)
	params.NodeLimit = config.GetInt(config.SOLVER_NODE_LIMIT, 0)

	switch method {
	case "lp":
		opts := estimator.DefaultLPOptions()
		opts.IntegerStarts = config.GetBool(config.LP_INTEGER_STARTS, false)
		opts.NewModel = newModel
		opts.Params = params
		return &estimator.LPEstimator{Options: opts, RoundMul: roundMul}, nil
	case "benders":
		opts := estimator.DefaultBendersOptions()
		opts.Iterations = config.GetInt(config.BENDERS_ITERATIONS, benders.DefaultIterations)
		opts.MaxCuts = config.GetInt(config.BENDERS_MAX_CUTS, benders.DefaultMaxCuts)
		opts.Workers = config.GetInt(config.CP_WORKERS, opts.Workers)
		opts.NewModel = newModel
		opts.Params = params
		if metrics.Enabled {
			opts.Observer = metrics.ObserveIteration
		}
		return &estimator.BendersEstimator{Options: opts, RoundMul: roundMul}, nil
	case "pathcover":
		return &estimator.PathCoverEstimator{RoundMul: roundMul}, nil
	case "localsearch":
		opts := localsearch.DefaultOptions()
		opts.Iterations = config.GetInt(config.LOCALSEARCH_ITERATIONS, opts.Iterations)
		opts.Seed = int64(config.GetInt(config.LOCALSEARCH_SEED, int(opts.Seed)))
		return &estimator.LocalSearchEstimator{Options: opts, RoundMul: roundMul}, nil
	default:
		return nil, fmt.Errorf("%w: unknown estimation method %q", estimator.ErrInvalidInput, method)
	}
}

// InstanceFromTrace applies the configured round multiplier and keepalive
// override to a parsed trace.
func InstanceFromTrace(t *workload.Trace) (*workload.Instance, error) {
	t.Keepalive = config.GetFloat(config.KEEPALIVE, t.Keepalive)
	return t.Instance(config.GetFloat(config.ROUND_MUL, 1.0))
}

// cacheOptions renders the settings that change the result of method.
func cacheOptions(method string) string {
	milp := fmt.Sprintf("backend=%s gap=%v nodes=%d",
		config.GetString(config.SOLVER_BACKEND, lpsolve.Name),
		config.GetFloat(config.SOLVER_MIP_GAP, solver.DefaultParams().RelativeGap),
		config.GetInt(config.SOLVER_NODE_LIMIT, 0))
	switch method {
	case "lp":
		return fmt.Sprintf("integer=%v %s", config.GetBool(config.LP_INTEGER_STARTS, false), milp)
	case "benders":
		return fmt.Sprintf("iterations=%d cuts=%d %s",
			config.GetInt(config.BENDERS_ITERATIONS, benders.DefaultIterations),
			config.GetInt(config.BENDERS_MAX_CUTS, benders.DefaultMaxCuts), milp)
	case "localsearch":
		return fmt.Sprintf("iterations=%d seed=%d",
			config.GetInt(config.LOCALSEARCH_ITERATIONS, localsearch.DefaultIterations),
			config.GetInt(config.LOCALSEARCH_SEED, int(localsearch.DefaultOptions().Seed)))
	default:
		return ""
	}
}
