package benders

import (
	"context"
	"testing"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/catalog"
	"github.com/grussorusso/serverledge-estimator/internal/master"
	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"github.com/grussorusso/serverledge-estimator/internal/solver/lpsolve"
	"github.com/grussorusso/serverledge-estimator/internal/solver/simplex"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
	"github.com/grussorusso/serverledge-estimator/utils"
	"github.com/stretchr/testify/require"
)

func options() Options {
	return Options{
		Iterations: DefaultIterations,
		MaxCuts:    DefaultMaxCuts,
		NewModel:   simplex.New,
		Params:     solver.DefaultParams(),
		Workers:    2,
	}
}

// sameApp builds n invocations of one application that needs a whole host.
func sameApp(arrival, duration []uint64, cold, keepalive uint64, hosts int) *workload.Instance {
	in := &workload.Instance{
		Arrival:      arrival,
		Duration:     duration,
		AppColdStart: []uint64{cold},
		AppResources: [][]uint64{{4, 1024}},
		Keepalive:    keepalive,
	}
	for range arrival {
		in.App = append(in.App, 0)
	}
	for h := 0; h < hosts; h++ {
		in.HostResources = append(in.HostResources, []uint64{4, 1024})
	}
	return in
}

// contended has two applications that exclude each other on a single host,
// with index order different from arrival order.
func contended() *workload.Instance {
	return &workload.Instance{
		Arrival:       []uint64{5, 6, 5},
		Duration:      []uint64{3, 1, 2},
		App:           []uint64{0, 1, 0},
		AppColdStart:  []uint64{1, 3},
		AppResources:  [][]uint64{{2}, {3}},
		HostResources: [][]uint64{{3}},
	}
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name  string
		in    *workload.Instance
		bound uint64
	}{
		{"single invocation", sameApp([]uint64{0}, []uint64{10}, 5, 0, 1), 5},
		{"warm reuse", sameApp([]uint64{0, 20}, []uint64{10, 10}, 5, 100, 1), 5},
		{"keepalive expired", sameApp([]uint64{0, 20}, []uint64{10, 10}, 5, 0, 1), 10},
		{"contended host", sameApp([]uint64{0, 0}, []uint64{10, 10}, 1, 0, 1), 13},
		{"two hosts", sameApp([]uint64{0, 0}, []uint64{10, 10}, 1, 0, 2), 2},
		{"three on one host", sameApp([]uint64{0, 0, 0}, []uint64{10, 10, 10}, 1, 0, 1), 36},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Run(context.Background(), tt.in, options())
			require.NoError(t, err)
			utils.AssertEquals(t, tt.bound, report.Bound)
			utils.AssertEquals(t, Feasible, report.Termination)
		})
	}
}

func TestContendedHostIterations(t *testing.T) {
	report, err := Run(context.Background(), sameApp([]uint64{0, 0}, []uint64{10, 10}, 1, 0, 1), options())
	require.NoError(t, err)
	utils.AssertEquals(t, 2, len(report.Iterations))

	first := report.Iterations[0]
	utils.AssertEquals(t, uint64(2), first.Bound)
	utils.AssertEquals(t, 1, first.PackingCuts)
	utils.AssertFalse(t, first.Verified)

	second := report.Iterations[1]
	utils.AssertEquals(t, uint64(13), second.Bound)
	utils.AssertEquals(t, 1, second.Cuts)
	utils.AssertEquals(t, 2, second.Intervals)
	utils.AssertTrue(t, second.Verified)
	utils.AssertEquals(t, 0, second.CoreSize)
}

func TestContendedApplicationsTerminate(t *testing.T) {
	backends := map[string]solver.Factory{
		simplex.Name: simplex.New,
		lpsolve.Name: lpsolve.New,
	}
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			opts := options()
			opts.NewModel = factory
			report, err := Run(ctx, contended(), opts)
			require.NoError(t, err)
			utils.AssertEquals(t, Feasible, report.Termination)
			utils.AssertEquals(t, uint64(14), report.Bound)
		})
	}
}

func TestDefaultHorizon(t *testing.T) {
	// the greedy schedule of 13 beats serialising both invocations
	in := sameApp([]uint64{0, 0}, []uint64{10, 10}, 1, 0, 1)
	utils.AssertEquals(t, int64(24), in.SerialHorizon())
	h, err := DefaultHorizon(in)
	require.NoError(t, err)
	utils.AssertEquals(t, int64(13), h)

	h, err = DefaultHorizon(contended())
	require.NoError(t, err)
	utils.AssertEquals(t, int64(21), h)

	var seen []int64
	opts := options()
	opts.Observer = func(it Iteration) { seen = append(seen, it.Horizon) }
	_, err = Run(context.Background(), in, opts)
	require.NoError(t, err)
	for _, got := range seen {
		utils.AssertEquals(t, int64(13), got)
	}

	seen = nil
	opts.Horizon = 30
	_, err = Run(context.Background(), in, opts)
	require.NoError(t, err)
	utils.AssertEquals(t, int64(30), seen[0])
}

func TestBoundIsMonotone(t *testing.T) {
	in := sameApp([]uint64{0, 0, 0, 3}, []uint64{10, 10, 10, 4}, 1, 0, 1)
	var last uint64
	opts := options()
	opts.Observer = func(it Iteration) {
		utils.AssertTrue(t, it.Best >= last)
		utils.AssertTrue(t, it.Best >= it.Bound)
		last = it.Best
	}
	report, err := Run(context.Background(), in, opts)
	require.NoError(t, err)
	utils.AssertEquals(t, last, report.Bound)
}

func TestIterationBudget(t *testing.T) {
	in := sameApp([]uint64{0, 0, 0}, []uint64{10, 10, 10}, 1, 0, 1)
	opts := options()
	opts.Iterations = 1
	report, err := Run(context.Background(), in, opts)
	require.NoError(t, err)
	utils.AssertEquals(t, IterationBudget, report.Termination)
	utils.AssertEquals(t, uint64(3), report.Bound)

	opts.Iterations = 0
	report, err = Run(context.Background(), in, opts)
	require.NoError(t, err)
	utils.AssertEquals(t, uint64(0), report.Bound)
	utils.AssertEquals(t, 0, len(report.Iterations))
}

func TestRefcountsFollowCutsUnderEviction(t *testing.T) {
	in := sameApp([]uint64{0, 0, 0}, []uint64{10, 10, 10}, 1, 0, 1)
	opts := options()
	opts.MaxCuts = 1
	opts.Iterations = 10
	opts.Observer = func(it Iteration) {
		utils.AssertEquals(t, it.CutItems, it.Refs)
		utils.AssertTrue(t, it.Cuts <= 1)
	}
	report, err := Run(context.Background(), in, opts)
	require.NoError(t, err)
	// with a single live cut the bound can only be partially tightened
	utils.AssertTrue(t, report.Bound >= 3)
	utils.AssertTrue(t, report.Bound <= 36)
}

func TestEvictionRestoresCatalog(t *testing.T) {
	s := NewCutStore(3)
	before := s.Catalog().Snapshot()
	s.Add(master.Cut{
		{Invocation: 0, Interval: catalog.Interval{L: 0, R: 10}},
		{Invocation: 1, Interval: catalog.Interval{L: 0, R: 10}},
	})
	utils.AssertEquals(t, 2, s.Catalog().Len())
	dropped, err := s.Evict(0)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, 1, dropped)
	utils.AssertMapEquals(t, before, s.Catalog().Snapshot())
}

func TestEvictionKeepsSharedIntervals(t *testing.T) {
	shared := catalog.Key{Invocation: 1, Interval: catalog.Interval{L: 0, R: 10}}
	older := master.Cut{{Invocation: 0, Interval: catalog.Interval{L: 0, R: 10}}, shared}
	newer := master.Cut{shared, {Invocation: 2, Interval: catalog.Interval{L: 4, R: 4}}}

	s := NewCutStore(3)
	s.Add(older)
	s.Add(newer)
	utils.AssertEquals(t, 2, s.Catalog().Refs(shared.Invocation, shared.Interval))

	dropped, err := s.Evict(1)
	utils.AssertNil(t, err)
	utils.AssertEquals(t, 1, dropped)
	utils.AssertEquals(t, 1, s.Len())
	utils.AssertEquals(t, s.Items(), s.Catalog().TotalRefs())

	only := NewCutStore(3)
	only.Add(newer)
	utils.AssertMapEquals(t, only.Catalog().Snapshot(), s.Catalog().Snapshot())
}

func TestCutQueueWraps(t *testing.T) {
	q := newCutQueue(2)
	q.enqueue(master.Cut{{Invocation: 0}})
	q.enqueue(master.Cut{{Invocation: 1}})
	utils.AssertEquals(t, 0, q.dequeue()[0].Invocation)
	for k := 2; k < 5; k++ {
		q.enqueue(master.Cut{{Invocation: k}})
	}
	utils.AssertEquals(t, 4, q.len())
	var got []int
	for _, c := range q.slice() {
		got = append(got, c[0].Invocation)
	}
	utils.AssertSliceEquals(t, []int{1, 2, 3, 4}, got)
	for k := 1; k < 5; k++ {
		utils.AssertEquals(t, k, q.dequeue()[0].Invocation)
	}
	utils.AssertTrue(t, q.dequeue() == nil)
}

func TestInvalidInput(t *testing.T) {
	in := sameApp([]uint64{0, 0}, []uint64{10}, 1, 0, 1)
	_, err := Run(context.Background(), in, options())
	require.ErrorIs(t, err, workload.ErrInvalidInput)
}
