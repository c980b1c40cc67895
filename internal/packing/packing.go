// Package packing is the sweep-line overload separator. It walks the start
// and end events of a candidate schedule and, after every block of
// simultaneous events, checks that the jobs alive at that moment can be
// packed on the fleet at once.
package packing

import (
	"context"
	"fmt"
	"math"

	"github.com/grussorusso/serverledge-estimator/internal/catalog"
	"github.com/grussorusso/serverledge-estimator/internal/logging"
	"github.com/grussorusso/serverledge-estimator/internal/master"
	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// Job is one first-start invocation of the candidate schedule. It holds its
// container resources during [Start, Start+Len).
type Job struct {
	Invocation int
	Start      int64
	Len        int64
}

type event struct {
	time int64
	end  bool
	job  int
}

// Options configures the assignment MILP solved for each overloaded block.
type Options struct {
	NewModel solver.Factory
	Params   solver.Params
}

// Stats counts the work of one Separate call.
type Stats struct {
	Blocks int
	MILPs  int
}

// Separate returns one cut for every event block whose alive jobs do not fit
// on the fleet. No cuts means the candidate passes the overload test.
func Separate(ctx context.Context, in *workload.Instance, jobs []Job, opts Options) ([]master.Cut, Stats, error) {
	var stats Stats
	events := make([]event, 0, 2*len(jobs))
	for k, j := range jobs {
		events = append(events, event{time: j.Start, job: k}, event{time: j.Start + j.Len, end: true, job: k})
	}
	slices.SortFunc(events, func(a, b event) int {
		switch {
		case a.time != b.time:
			if a.time < b.time {
				return -1
			}
			return 1
		case a.end != b.end:
			if !a.end {
				return -1
			}
			return 1
		default:
			return a.job - b.job
		}
	})

	alive := make([]bool, len(jobs))
	count := 0
	var cuts []master.Cut
	for ptr := 0; ptr < len(events); {
		next := ptr
		for next < len(events) && events[next].time == events[ptr].time {
			e := events[next]
			if alive[e.job] == e.end {
				if e.end {
					count--
				} else {
					count++
				}
				alive[e.job] = !e.end
			}
			next++
		}
		if count == 0 {
			ptr = next
			continue
		}
		stats.Blocks++
		// ends are still pending, so there is a next event
		r := events[next].time
		items := make([]int, 0, count)
		for k, a := range alive {
			if a {
				items = append(items, k)
			}
		}
		ptr = next

		if firstFit(in, jobs, items) {
			continue
		}
		stats.MILPs++
		accepted, err := assign(ctx, in, jobs, items, opts)
		if err != nil {
			return nil, stats, err
		}
		if len(accepted) == len(items) {
			continue
		}
		cut := overloadCut(jobs, items, accepted, r)
		logging.GetLogger().WithFields(logrus.Fields{
			"time":  events[ptr-1].time,
			"alive": len(items),
			"fit":   len(accepted),
		}).Debug("overloaded block")
		cuts = append(cuts, cut)
	}
	return cuts, stats, nil
}

// overloadCut forbids the first dropped job together with every accepted
// job being alive just before r.
func overloadCut(jobs []Job, items []int, accepted map[int]bool, r int64) master.Cut {
	window := func(k int) catalog.Key {
		l := r - jobs[k].Len
		if l < 0 {
			l = 0
		}
		return catalog.Key{Invocation: jobs[k].Invocation, Interval: catalog.Interval{L: l, R: r - 1}}
	}
	cut := make(master.Cut, 0, len(accepted)+1)
	for _, k := range items {
		if !accepted[k] {
			cut = append(cut, window(k))
			break
		}
	}
	for _, k := range items {
		if accepted[k] {
			cut = append(cut, window(k))
		}
	}
	return cut
}

// firstFit tries to place the items in order on the first host with room.
func firstFit(in *workload.Instance, jobs []Job, items []int) bool {
	free := make([][]uint64, len(in.HostResources))
	for h, c := range in.HostResources {
		free[h] = append([]uint64(nil), c...)
	}
	for _, k := range items {
		dem := in.Demand(jobs[k].Invocation)
		placed := false
		for h := range free {
			if fits(dem, free[h]) {
				for r := range dem {
					free[h][r] -= dem[r]
				}
				placed = true
				break
			}
		}
		if !placed {
			return false
		}
	}
	return true
}

func fits(dem, free []uint64) bool {
	for r := range dem {
		if dem[r] > free[r] {
			return false
		}
	}
	return true
}

// assign solves max sum(active) over the host assignment of the items and
// returns the accepted ones.
func assign(ctx context.Context, in *workload.Instance, jobs []Job, items []int, opts Options) (map[int]bool, error) {
	m := opts.NewModel()
	hosts := len(in.HostResources)
	x := make([][]solver.Var, len(items))
	active := make([]solver.Var, len(items))
	obj := make([]solver.Term, len(items))
	for p := range items {
		active[p] = m.AddBoolVar(fmt.Sprintf("active_%d", p))
		obj[p] = solver.Term{Var: active[p], Coef: 1}
		row := []solver.Term{{Var: active[p], Coef: -1}}
		for h := 0; h < hosts; h++ {
			x[p] = append(x[p], m.AddBoolVar(fmt.Sprintf("x_%d_%d", p, h)))
			row = append(row, solver.Term{Var: x[p][h], Coef: 1})
		}
		m.AddConstraint(0, 0, row...)
	}
	for h, capacity := range in.HostResources {
		for r, c := range capacity {
			var row []solver.Term
			for p, k := range items {
				if d := in.Demand(jobs[k].Invocation)[r]; d > 0 {
					row = append(row, solver.Term{Var: x[p][h], Coef: float64(d)})
				}
			}
			if len(row) > 0 {
				m.AddConstraint(-solver.Inf, float64(c), row...)
			}
		}
	}
	m.SetObjective(solver.Maximize, obj...)
	status, err := m.Solve(ctx, opts.Params)
	if err := solver.RequireOptimal("packing assignment", status, err); err != nil {
		return nil, err
	}
	accepted := make(map[int]bool, len(items))
	if int(math.Floor(m.ObjectiveValue()+0.1)) == len(items) {
		for _, k := range items {
			accepted[k] = true
		}
		return accepted, nil
	}
	for p, k := range items {
		if m.Value(active[p]) > 0.5 {
			accepted[k] = true
		}
	}
	return accepted, nil
}
