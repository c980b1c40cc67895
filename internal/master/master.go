// Package master builds the master MILP shared by the LP lower bound and the
// decomposition: first-start indicators, reuse links between invocations of
// the same application, integer start times and the no-good cuts collected so
// far, linked to start times through interval indicators.
package master

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/catalog"
	"github.com/grussorusso/serverledge-estimator/internal/logging"
	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
	"github.com/sirupsen/logrus"
)

// ErrNumerical is returned when an interval indicator disagrees with the
// start time it is supposed to describe.
var ErrNumerical = errors.New("numerical inconsistency")

const (
	objectiveEps = 1e-6
	startEps     = 0.1
)

// Cut forbids the conjunction "first_i = 1 and start_i in iv" over all of its
// items: sum(first) + sum(v) <= 2|cut| - 1.
type Cut []catalog.Key

// Options selects the master variant.
type Options struct {
	// Cuts are added as no-good rows; every interval they use must be live in Catalog.
	Cuts    []Cut
	Catalog *catalog.Catalog
	// Triangle adds same(i,j) + same(j,k) + same(i,k) <= 2 for k < j < i.
	// The right hand side is 2, not 1: a chain k -> j -> i sets same(i,j) and
	// same(j,k), so only the third link closing the triangle is excluded.
	Triangle bool
	// IntegerStarts makes start times integer; otherwise they are continuous.
	IntegerStarts bool
	// Horizon is the largest start time; 0 means workload.ColdHorizon.
	Horizon int64
	// ObjectiveCap, when set, bounds the latency sum from above.
	ObjectiveCap *uint64

	NewModel solver.Factory
}

type link struct {
	pred int
	v    solver.Var
}

type indicator struct {
	v, delta solver.Var
}

// Formulation is one master model, built fresh for every iteration.
type Formulation struct {
	in    *workload.Instance
	model solver.Model
	bigM  float64

	first []solver.Var
	start []solver.Var
	links [][]link
	aux   map[catalog.Key]indicator
	cuts  []Cut
}

// BigM returns the constant used to switch rows off.
func BigM(in *workload.Instance, horizon int64) float64 {
	var slack uint64
	for i := 0; i < in.Len(); i++ {
		if s := in.ColdStart(i) + in.Duration[i]; s > slack {
			slack = s
		}
	}
	return float64(2*horizon) + float64(slack)
}

// Build creates the master for in. The instance must be valid.
func Build(in *workload.Instance, opts Options) (*Formulation, error) {
	if opts.NewModel == nil {
		return nil, fmt.Errorf("master: no solver backend")
	}
	horizon := opts.Horizon
	if horizon == 0 {
		horizon = in.ColdHorizon()
	}
	n := in.Len()
	f := &Formulation{
		in:    in,
		model: opts.NewModel(),
		bigM:  BigM(in, horizon),
		first: make([]solver.Var, n),
		start: make([]solver.Var, n),
		links: make([][]link, n),
		aux:   make(map[catalog.Key]indicator),
		cuts:  opts.Cuts,
	}
	m := f.model
	M := f.bigM
	H := float64(horizon)

	obj := make([]solver.Term, 0, 2*n)
	for i := 0; i < n; i++ {
		f.first[i] = m.AddBoolVar(fmt.Sprintf("first_%d", i))
		if opts.IntegerStarts {
			f.start[i] = m.AddIntVar(float64(in.Arrival[i]), H, fmt.Sprintf("start_%d", i))
		} else {
			f.start[i] = m.AddNumVar(float64(in.Arrival[i]), H, fmt.Sprintf("start_%d", i))
		}
		obj = append(obj,
			solver.Term{Var: f.start[i], Coef: 1},
			solver.Term{Var: f.first[i], Coef: float64(in.ColdStart(i))})
	}
	if opts.ObjectiveCap != nil {
		m.AddConstraint(-solver.Inf, float64(*opts.ObjectiveCap+in.ArrivalSum()), obj...)
	}

	if opts.Catalog != nil {
		for i := 0; i < n; i++ {
			for _, iv := range opts.Catalog.Live(i) {
				f.addIndicator(i, iv)
			}
		}
	}

	for i := 0; i < n; i++ {
		for j := 0; j < i; j++ {
			if !in.Chainable(j, i) {
				continue
			}
			same := m.AddBoolVar(fmt.Sprintf("same_%d_%d", i, j))
			f.links[i] = append(f.links[i], link{pred: j, v: same})
			cold := float64(in.ColdStart(j))
			dur := float64(in.Duration[j])
			// same = 1 => start_j + cold_j*first_j + dur_j <= start_i
			m.AddConstraint(-solver.Inf, M-dur,
				solver.Term{Var: f.start[j], Coef: 1},
				solver.Term{Var: f.first[j], Coef: cold},
				solver.Term{Var: same, Coef: M},
				solver.Term{Var: f.start[i], Coef: -1})
			// same = 1 => start_i <= start_j + cold_j*first_j + dur_j + K
			m.AddConstraint(-M-dur-float64(in.Keepalive), solver.Inf,
				solver.Term{Var: f.start[j], Coef: 1},
				solver.Term{Var: f.first[j], Coef: cold},
				solver.Term{Var: same, Coef: -M},
				solver.Term{Var: f.start[i], Coef: -1})
		}
		from := []solver.Term{{Var: f.first[i], Coef: 1}}
		to := []solver.Term{{Var: f.first[i], Coef: M}}
		for _, l := range f.links[i] {
			from = append(from, solver.Term{Var: l.v, Coef: 1})
			to = append(to, solver.Term{Var: l.v, Coef: 1})
		}
		m.AddConstraint(1, solver.Inf, from...)
		m.AddConstraint(0, M, to...)
	}

	if opts.Triangle {
		f.addTriangles()
	}

	for _, cut := range opts.Cuts {
		terms := make([]solver.Term, 0, 2*len(cut))
		for _, k := range cut {
			ind, ok := f.aux[k]
			if !ok {
				return nil, fmt.Errorf("master: cut references interval %v of invocation %d that is not in the catalog", k.Interval, k.Invocation)
			}
			terms = append(terms,
				solver.Term{Var: f.first[k.Invocation], Coef: 1},
				solver.Term{Var: ind.v, Coef: 1})
		}
		m.AddConstraint(-solver.Inf, float64(2*len(cut)-1), terms...)
	}

	m.SetObjective(solver.Minimize, obj...)
	return f, nil
}

// addIndicator links v to "l <= start_i <= r"; delta picks the side on which
// an outside start lies.
func (f *Formulation) addIndicator(i int, iv catalog.Interval) {
	m := f.model
	M := f.bigM
	l, r := float64(iv.L), float64(iv.R)
	v := m.AddBoolVar(fmt.Sprintf("in_%d_%d_%d", i, iv.L, iv.R))
	delta := m.AddBoolVar(fmt.Sprintf("side_%d_%d_%d", i, iv.L, iv.R))
	s := f.start[i]
	m.AddConstraint(l-M, solver.Inf, solver.Term{Var: s, Coef: 1}, solver.Term{Var: v, Coef: -M})
	m.AddConstraint(-solver.Inf, r+M, solver.Term{Var: s, Coef: 1}, solver.Term{Var: v, Coef: M})
	m.AddConstraint(r+1, solver.Inf, solver.Term{Var: s, Coef: 1}, solver.Term{Var: v, Coef: M}, solver.Term{Var: delta, Coef: M})
	m.AddConstraint(-solver.Inf, M+l-1, solver.Term{Var: s, Coef: 1}, solver.Term{Var: v, Coef: -M}, solver.Term{Var: delta, Coef: M})
	f.aux[catalog.Key{Invocation: i, Interval: iv}] = indicator{v: v, delta: delta}
}

func (f *Formulation) addTriangles() {
	n := len(f.links)
	linked := make([]map[int]solver.Var, n)
	for i := range f.links {
		linked[i] = make(map[int]solver.Var, len(f.links[i]))
		for _, l := range f.links[i] {
			linked[i][l.pred] = l.v
		}
	}
	for i := 0; i < n; i++ {
		for _, ij := range f.links[i] {
			j := ij.pred
			for _, jk := range f.links[j] {
				ik, ok := linked[i][jk.pred]
				if !ok {
					continue
				}
				f.model.AddConstraint(-solver.Inf, 2,
					solver.Term{Var: ij.v, Coef: 1},
					solver.Term{Var: jk.v, Coef: 1},
					solver.Term{Var: ik, Coef: 1})
			}
		}
	}
}

func (f *Formulation) NumVars() int { return f.model.NumVars() }

func (f *Formulation) NumConstraints() int { return f.model.NumConstraints() }

func (f *Formulation) NumIndicators() int { return len(f.aux) }

// Solution is the rounded outcome of a master solve.
type Solution struct {
	Objective float64
	// Bound is floor(Objective + eps) minus the sum of arrivals.
	Bound uint64
	First []bool
	Start []int64
	// Pred is the reused predecessor of each non-first invocation, -1 otherwise.
	Pred    []int
	Elapsed time.Duration
}

// Solve runs the backend and rounds the result.
func (f *Formulation) Solve(ctx context.Context, p solver.Params) (*Solution, error) {
	log := logging.GetLogger()
	begin := time.Now()
	status, err := f.model.Solve(ctx, p)
	if err := solver.RequireOptimal("master", status, err); err != nil {
		return nil, err
	}
	elapsed := time.Since(begin)
	log.WithFields(logrus.Fields{
		"vars":        f.model.NumVars(),
		"constraints": f.model.NumConstraints(),
		"elapsed":     elapsed,
	}).Debug("master solved")

	n := f.in.Len()
	sol := &Solution{
		Objective: f.model.ObjectiveValue(),
		First:     make([]bool, n),
		Start:     make([]int64, n),
		Pred:      make([]int, n),
		Elapsed:   elapsed,
	}
	shift := int64(f.in.ArrivalSum())
	total := int64(math.Floor(sol.Objective + objectiveEps))
	if total < shift {
		return nil, fmt.Errorf("%w: master objective %v below the arrival sum %d", ErrNumerical, sol.Objective, shift)
	}
	sol.Bound = uint64(total - shift)
	for i := 0; i < n; i++ {
		sol.First[i] = f.model.Value(f.first[i]) > 0.5
		sol.Start[i] = int64(math.Floor(f.model.Value(f.start[i]) + startEps))
		sol.Pred[i] = -1
		if !sol.First[i] {
			for _, l := range f.links[i] {
				if f.model.Value(l.v) > 0.5 {
					sol.Pred[i] = l.pred
					break
				}
			}
		}
	}
	return sol, nil
}

// CheckCuts verifies that every cut holds for sol and that every indicator
// agrees with the rounded start time it describes.
func (f *Formulation) CheckCuts(sol *Solution) error {
	for c, cut := range f.cuts {
		hits := 0
		for _, k := range cut {
			if sol.First[k.Invocation] {
				hits++
			}
			inside := k.Contains(sol.Start[k.Invocation])
			flag := f.model.Value(f.aux[k].v) > 0.5
			if inside != flag {
				return fmt.Errorf("%w: indicator %v of invocation %d is %v but start is %d",
					ErrNumerical, k.Interval, k.Invocation, flag, sol.Start[k.Invocation])
			}
			if inside {
				hits++
			}
		}
		if hits > 2*len(cut)-1 {
			return fmt.Errorf("%w: cut %d violated by the master solution", ErrNumerical, c)
		}
	}
	return nil
}
