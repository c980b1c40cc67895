// Package verify checks a candidate schedule against the full cumulative
// model of the fleet: every job is an optional fixed interval on each host
// and every (host, resource) pair is a cumulative resource.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/logging"
	"github.com/grussorusso/serverledge-estimator/internal/packing"
	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"github.com/grussorusso/serverledge-estimator/internal/solver/cp"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
	"github.com/sirupsen/logrus"
)

const DefaultWorkers = 8

type Options struct {
	Workers int
}

// Result holds the unsatisfiable core, empty when every job fits.
type Result struct {
	// Core is the first dropped job followed by all accepted jobs, as
	// indexes into the verified jobs.
	Core     []int
	Accepted int
	Branches int64
	Elapsed  time.Duration
}

func (r *Result) Feasible() bool {
	return len(r.Core) == 0
}

// Verify maximizes the number of jobs placed on the fleet at their fixed
// start times.
func Verify(ctx context.Context, in *workload.Instance, jobs []packing.Job, opts Options) (*Result, error) {
	begin := time.Now()
	m := cp.NewModel()
	hosts := len(in.HostResources)
	active := make([]cp.BoolVar, len(jobs))
	intervals := make([][]cp.IntervalVar, len(jobs))
	for k, j := range jobs {
		active[k] = m.NewBoolVar(fmt.Sprintf("%d", k))
		assign := make([]cp.BoolVar, hosts)
		for h := 0; h < hosts; h++ {
			assign[h] = m.NewBoolVar(fmt.Sprintf("assign_%d_%d", k, h))
			intervals[k] = append(intervals[k], m.NewOptionalFixedSizeInterval(j.Start, j.Len, assign[h]))
		}
		m.AddEquality(assign, active[k])
	}
	for h, capacity := range in.HostResources {
		for r, c := range capacity {
			cum := m.AddCumulative(int64(c))
			for k, j := range jobs {
				cum.AddDemand(intervals[k][h], int64(in.Demand(j.Invocation)[r]))
			}
		}
	}
	m.Maximize(active...)

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	sol, err := m.Solve(ctx, cp.Params{Workers: workers})
	if err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}
	if sol.Status != solver.Optimal {
		return nil, fmt.Errorf("%w: verifier ended with status %s", solver.ErrSolverContract, sol.Status)
	}

	res := &Result{Accepted: sol.Objective, Branches: sol.Branches, Elapsed: time.Since(begin)}
	for k := range jobs {
		if !sol.Value(active[k]) {
			res.Core = append(res.Core, k)
			break
		}
	}
	if len(res.Core) > 0 {
		for k := range jobs {
			if sol.Value(active[k]) {
				res.Core = append(res.Core, k)
			}
		}
	}
	logging.GetLogger().WithFields(logrus.Fields{
		"jobs":     len(jobs),
		"accepted": res.Accepted,
		"branches": res.Branches,
		"elapsed":  res.Elapsed,
	}).Debug("verifier finished")
	return res, nil
}
