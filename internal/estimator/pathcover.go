package estimator

import (
	"context"

	"github.com/grussorusso/serverledge-estimator/internal/workload"
)

// PathCoverLowerBound charges one cold start per reuse chain. Within an
// application, j may hand its container to i when i would otherwise wait
// less than a cold start for it (a_j + d_j < a_i + c); every schedule's
// reuse links form a matching in that graph, so c times the unmatched
// invocations bounds its cold start and waiting cost from below.
func PathCoverLowerBound(in *workload.Instance) (uint64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	byApp := make([][]int, len(in.AppColdStart))
	for i, a := range in.App {
		byApp[a] = append(byApp[a], i)
	}
	var total uint64
	for a, invs := range byApp {
		cold := in.AppColdStart[a]
		if cold == 0 || len(invs) == 0 {
			continue
		}
		adj := make([][]int, len(invs))
		for p, j := range invs {
			for q, i := range invs {
				if p != q && in.Arrival[j]+in.Duration[j] < in.Arrival[i]+cold {
					adj[p] = append(adj[p], q)
				}
			}
		}
		total += cold * uint64(len(invs)-maxMatching(adj, len(invs)))
	}
	return total, nil
}

// maxMatching is Kuhn's augmenting path algorithm on a bipartite graph
// whose left side is adj's index set.
func maxMatching(adj [][]int, right int) int {
	match := make([]int, right)
	for k := range match {
		match[k] = -1
	}
	var seen []bool
	var augment func(u int) bool
	augment = func(u int) bool {
		for _, v := range adj[u] {
			if seen[v] {
				continue
			}
			seen[v] = true
			if match[v] < 0 || augment(match[v]) {
				match[v] = u
				return true
			}
		}
		return false
	}
	size := 0
	for u := range adj {
		seen = make([]bool, right)
		if augment(u) {
			size++
		}
	}
	return size
}

type PathCoverEstimator struct {
	RoundMul float64
}

func (e *PathCoverEstimator) Name() string { return "pathcover" }

func (e *PathCoverEstimator) Estimate(_ context.Context, in *workload.Instance) (Estimation, error) {
	b, err := PathCoverLowerBound(in)
	if err != nil {
		return Estimation{}, err
	}
	return scaled(LowerBound, b, e.RoundMul), nil
}
