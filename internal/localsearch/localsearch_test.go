package localsearch

import (
	"context"
	"math/rand"
	"testing"

	"github.com/grussorusso/serverledge-estimator/internal/workload"
	"github.com/grussorusso/serverledge-estimator/utils"
	"github.com/stretchr/testify/require"
)

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

// contended has three invocations of two applications that exclude each
// other on a single host; index order is not arrival order.
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

func TestGreedyScenarios(t *testing.T) {
	tests := []struct {
		name       string
		in         *workload.Instance
		latency    uint64
		containers int
	}{
		{"single invocation", sameApp([]uint64{0}, []uint64{10}, 5, 0, 1), 5, 1},
		{"warm reuse", sameApp([]uint64{0, 20}, []uint64{10, 10}, 5, 100, 1), 5, 1},
		{"keepalive expired", sameApp([]uint64{0, 20}, []uint64{10, 10}, 5, 0, 1), 10, 2},
		{"contended host", sameApp([]uint64{0, 0}, []uint64{10, 10}, 1, 0, 1), 13, 2},
		{"two hosts", sameApp([]uint64{0, 0}, []uint64{10, 10}, 1, 0, 2), 2, 2},
		{"arrival order differs from index order", contended(), 15, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Greedy(tt.in)
			require.NoError(t, err)
			require.NoError(t, s.Validate(tt.in))
			utils.AssertEquals(t, tt.latency, s.Latency)
			utils.AssertEquals(t, tt.containers, len(s.Containers))
		})
	}
}

func TestWarmInvocationWaitsForBusyContainer(t *testing.T) {
	// the second arrival finds the container busy until 18 and waits for it
	// rather than for the host to free up for a cold start
	in := sameApp([]uint64{0, 4}, []uint64{10, 3}, 8, 5, 1)
	s, err := Greedy(in)
	require.NoError(t, err)
	require.NoError(t, s.Validate(in))
	utils.AssertEquals(t, 1, len(s.Containers))
	utils.AssertEquals(t, int64(18), s.Start[1])
	utils.AssertEquals(t, uint64(8+14), s.Latency)
	utils.AssertEquals(t, int64(26), s.Containers[0].End)
}

func TestSearchReordersPlacements(t *testing.T) {
	in := contended()
	res, err := Search(context.Background(), in, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, res.Schedule.Validate(in))
	utils.AssertEquals(t, uint64(15), res.Initial)
	utils.AssertEquals(t, uint64(14), res.Schedule.Latency)
	utils.AssertTrue(t, res.Improved >= 1)
}

func TestSearchIsDeterministic(t *testing.T) {
	in := randomInstance(rand.New(rand.NewSource(11)), 10)
	opts := Options{Iterations: 300, Seed: 5}
	a, err := Search(context.Background(), in, opts)
	require.NoError(t, err)
	b, err := Search(context.Background(), in, opts)
	require.NoError(t, err)
	utils.AssertEquals(t, a.Schedule.Latency, b.Schedule.Latency)
	utils.AssertSliceEquals(t, a.Schedule.Start, b.Schedule.Start)
}

func TestRandomSchedulesAreFeasible(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 30; round++ {
		in := randomInstance(rng, 4+rng.Intn(8))
		greedy, err := Greedy(in)
		require.NoError(t, err)
		require.NoError(t, greedy.Validate(in), "round %d", round)

		res, err := Search(context.Background(), in, Options{Iterations: 200, Seed: int64(round)})
		require.NoError(t, err)
		require.NoError(t, res.Schedule.Validate(in), "round %d", round)
		utils.AssertEquals(t, greedy.Latency, res.Initial)
		utils.AssertTrueMsg(t, res.Schedule.Latency <= greedy.Latency, "search worsened the greedy schedule")
		for i, s := range res.Schedule.Start {
			utils.AssertTrue(t, s <= Horizon(in, greedy))
			utils.AssertTrue(t, s >= int64(in.Arrival[i]))
		}
	}
}

func TestValidateRejectsOverload(t *testing.T) {
	in := sameApp([]uint64{0, 0}, []uint64{10, 10}, 1, 0, 1)
	s := &Schedule{
		Containers: []Container{
			{Host: 0, App: 0, Invocations: []int{0}, Start: 0, End: 11},
			{Host: 0, App: 0, Invocations: []int{1}, Start: 5, End: 16},
		},
		Start:   []int64{0, 5},
		Latency: 1 + 6,
	}
	require.ErrorContains(t, s.Validate(in), "overloaded")

	s.Containers[1].Start, s.Containers[1].End, s.Start[1] = 11, 22, 11
	s.Latency = 1 + 12
	require.NoError(t, s.Validate(in))
}

func TestValidateRejectsBrokenChain(t *testing.T) {
	in := sameApp([]uint64{0, 20}, []uint64{10, 10}, 5, 2, 1)
	s := &Schedule{
		Containers: []Container{{Host: 0, App: 0, Invocations: []int{0, 1}, Start: 0, End: 32}},
		Start:      []int64{0, 20},
		Latency:    5,
	}
	// the container expires at 17, before the second arrival
	require.ErrorContains(t, s.Validate(in), "outside")
}

func TestSearchHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Search(ctx, contended(), DefaultOptions())
	require.ErrorIs(t, err, context.Canceled)
}

func TestInvalidFleet(t *testing.T) {
	in := contended()
	in.HostResources = [][]uint64{{2}}
	_, err := Greedy(in)
	utils.AssertErrorIs(t, err, workload.ErrInvalidInput)
}

func TestHorizon(t *testing.T) {
	in := contended()
	s, err := Greedy(in)
	require.NoError(t, err)
	utils.AssertEquals(t, int64(6+15), Horizon(in, s))
}

func randomInstance(rng *rand.Rand, n int) *workload.Instance {
	in := &workload.Instance{
		AppColdStart:  []uint64{uint64(rng.Intn(4)), uint64(1 + rng.Intn(4))},
		AppResources:  [][]uint64{{uint64(1 + rng.Intn(3)), uint64(rng.Intn(2))}, {uint64(1 + rng.Intn(4)), 1}},
		HostResources: [][]uint64{{4, 1}, {3, 2}},
		Keepalive:     uint64(rng.Intn(4)),
	}
	for i := 0; i < n; i++ {
		in.Arrival = append(in.Arrival, uint64(rng.Intn(20)))
		in.Duration = append(in.Duration, uint64(rng.Intn(6)))
		in.App = append(in.App, uint64(rng.Intn(2)))
	}
	return in
}
