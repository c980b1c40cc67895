// Package benders drives the decomposition: it repeatedly solves the master,
// separates the candidate schedule with the packing test and the cumulative
// verifier, and turns every infeasibility into a no-good cut.
package benders

import (
	"context"
	"fmt"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/catalog"
	"github.com/grussorusso/serverledge-estimator/internal/localsearch"
	"github.com/grussorusso/serverledge-estimator/internal/logging"
	"github.com/grussorusso/serverledge-estimator/internal/master"
	"github.com/grussorusso/serverledge-estimator/internal/packing"
	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"github.com/grussorusso/serverledge-estimator/internal/verify"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
	"github.com/sirupsen/logrus"
)

// ErrNumerical is returned when the master solution disagrees with its own
// interval indicators.
var ErrNumerical = master.ErrNumerical

const (
	DefaultIterations = 30
	DefaultMaxCuts    = 3000
)

type Termination int

const (
	// Feasible means the verifier accepted the master's candidate.
	Feasible Termination = iota
	IterationBudget
)

func (t Termination) String() string {
	if t == Feasible {
		return "feasible"
	}
	return "iteration_budget"
}

// Observer is called after every iteration.
type Observer func(it Iteration)

type Options struct {
	Iterations int
	MaxCuts    int
	// Horizon bounds master start times. 0 takes the smaller of
	// workload.SerialHorizon and the horizon of the greedy schedule.
	Horizon  int64
	NewModel solver.Factory
	Params   solver.Params
	Workers  int
	Observer Observer
}

// Iteration records one pass of the loop.
type Iteration struct {
	Index     int
	Horizon   int64
	Objective float64
	Bound     uint64
	Best      uint64
	// Cuts and Intervals are the live cuts and catalog intervals the master was built with.
	Cuts        int
	Intervals   int
	Refs        int
	CutItems    int
	Evicted     int
	FirstStarts int
	PackingCuts int
	Verified    bool
	CoreSize    int
	Elapsed     time.Duration
}

type Report struct {
	Bound       uint64
	Termination Termination
	Iterations  []Iteration
	Elapsed     time.Duration
}

// DefaultHorizon is the tightest start time bound known before solving. An
// optimal schedule starts every invocation no later than its arrival plus the
// latency of any feasible schedule, here the greedy one.
func DefaultHorizon(in *workload.Instance) (int64, error) {
	h := in.SerialHorizon()
	greedy, err := localsearch.Greedy(in)
	if err != nil {
		return 0, err
	}
	return min(h, localsearch.Horizon(in, greedy)), nil
}

// Run computes the decomposition lower bound of in.
func Run(ctx context.Context, in *workload.Instance, opts Options) (*Report, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := in.ValidateFleet(); err != nil {
		return nil, err
	}
	if opts.NewModel == nil {
		return nil, fmt.Errorf("benders: no solver backend")
	}
	horizon := opts.Horizon
	if horizon == 0 {
		h, err := DefaultHorizon(in)
		if err != nil {
			return nil, err
		}
		horizon = h
	}
	log := logging.GetLogger()
	log.WithField("horizon", horizon).Debug("master horizon")
	begin := time.Now()
	store := NewCutStore(in.Len())
	report := &Report{Termination: IterationBudget}

	for t := 0; t < opts.Iterations; t++ {
		iterBegin := time.Now()
		it := Iteration{Index: t, Horizon: horizon}
		evicted, err := store.Evict(opts.MaxCuts)
		if err != nil {
			return nil, err
		}
		it.Evicted = evicted
		it.Cuts = store.Len()
		it.Intervals = store.Catalog().Len()
		log.WithFields(logrus.Fields{"iteration": t, "cuts": it.Cuts}).Info("building master")

		f, err := master.Build(in, master.Options{
			Cuts:          store.Cuts(),
			Catalog:       store.Catalog(),
			Triangle:      true,
			IntegerStarts: true,
			Horizon:       horizon,
			NewModel:      opts.NewModel,
		})
		if err != nil {
			return nil, err
		}
		sol, err := f.Solve(ctx, opts.Params)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", t, err)
		}
		it.Objective = sol.Objective
		it.Bound = sol.Bound
		if sol.Bound > report.Bound {
			report.Bound = sol.Bound
		}
		it.Best = report.Bound
		log.WithFields(logrus.Fields{
			"iteration": t,
			"objective": sol.Bound,
			"bound":     report.Bound,
		}).Info("master solved")

		if err := f.CheckCuts(sol); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", t, err)
		}

		jobs := candidate(in, sol)
		it.FirstStarts = len(jobs)
		cuts, _, err := packing.Separate(ctx, in, jobs, packing.Options{NewModel: opts.NewModel, Params: opts.Params})
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", t, err)
		}
		it.PackingCuts = len(cuts)
		done := false
		if len(cuts) > 0 {
			for _, c := range cuts {
				store.Add(c)
			}
		} else {
			res, err := verify.Verify(ctx, in, jobs, verify.Options{Workers: opts.Workers})
			if err != nil {
				return nil, fmt.Errorf("iteration %d: %w", t, err)
			}
			it.Verified = true
			it.CoreSize = len(res.Core)
			if res.Feasible() {
				done = true
			} else {
				store.Add(pointCut(jobs, res.Core))
			}
		}
		it.Refs = store.Catalog().TotalRefs()
		it.CutItems = store.Items()
		it.Elapsed = time.Since(iterBegin)
		report.Iterations = append(report.Iterations, it)
		if opts.Observer != nil {
			opts.Observer(it)
		}
		if done {
			report.Termination = Feasible
			log.WithFields(logrus.Fields{"iteration": t, "bound": report.Bound}).Info("candidate is fleet feasible")
			break
		}
	}
	report.Elapsed = time.Since(begin)
	return report, nil
}

// candidate keeps the first-start invocations: the others run inside the
// container of their chain head.
func candidate(in *workload.Instance, sol *master.Solution) []packing.Job {
	var jobs []packing.Job
	for i := range sol.First {
		if sol.First[i] {
			jobs = append(jobs, packing.Job{Invocation: i, Start: sol.Start[i], Len: in.OccupancyLen(i)})
		}
	}
	return jobs
}

// pointCut pins every core job to its exact start time.
func pointCut(jobs []packing.Job, core []int) master.Cut {
	cut := make(master.Cut, len(core))
	for p, k := range core {
		j := jobs[k]
		cut[p] = catalog.Key{Invocation: j.Invocation, Interval: catalog.Interval{L: j.Start, R: j.Start}}
	}
	return cut
}
