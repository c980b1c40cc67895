package simplex

import (
	"container/heap"
	"context"
	"math"

	"github.com/grussorusso/serverledge-estimator/internal/solver"
)

type node struct {
	lo, hi []float64
	bound  float64
	depth  int
}

// nodeQueue orders open nodes by bound, deeper nodes first on ties.
type nodeQueue []*node

func (q nodeQueue) Len() int { return len(q) }
func (q nodeQueue) Less(i, j int) bool {
	if q[i].bound != q[j].bound {
		return q[i].bound < q[j].bound
	}
	return q[i].depth > q[j].depth
}
func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *nodeQueue) Push(x any)   { *q = append(*q, x.(*node)) }
func (q *nodeQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	*q = old[:len(old)-1]
	return n
}

// branchVar returns the integer variable farthest from integrality, or -1.
func (m *Model) branchVar(x []float64) int {
	best, bestFrac := -1, 0.0
	for j, v := range m.vars {
		if !v.integer {
			continue
		}
		f := x[j] - math.Floor(x[j])
		d := math.Min(f, 1-f)
		if d > m.IntTolerance && d > bestFrac {
			best, bestFrac = j, d
		}
	}
	return best
}

func (m *Model) pruneLimit(incumbent float64, gap float64) float64 {
	return incumbent - math.Max(1e-9, gap*math.Abs(incumbent))
}

// Solve runs best-first branch and bound over LP relaxations. ctx is
// honoured inside every relaxation, not only between nodes.
func (m *Model) Solve(ctx context.Context, p solver.Params) (solver.Status, error) {
	m.status, m.values, m.objective, m.nodes = solver.NotSolved, nil, 0, 0
	if err := ctx.Err(); err != nil {
		return m.status, err
	}
	c := m.minCost()

	lo := make([]float64, len(m.vars))
	hi := make([]float64, len(m.vars))
	for j, v := range m.vars {
		lo[j], hi[j] = v.lb, v.ub
	}

	root, err := m.relax(ctx, c, lo, hi)
	m.nodes = 1
	if err != nil {
		m.status = root.status
		return m.status, err
	}
	if root.status != solver.Optimal {
		m.status = root.status
		return m.status, nil
	}

	var incumbent []float64
	incCost := math.Inf(1)
	queue := &nodeQueue{}
	open := func(n *node, r relaxation) {
		j := m.branchVar(r.x)
		if j < 0 {
			if r.cost < incCost {
				incCost, incumbent = r.cost, r.x
			}
			return
		}
		if incumbent != nil && r.cost >= m.pruneLimit(incCost, p.RelativeGap) {
			return
		}
		down := &node{lo: n.lo, hi: append([]float64(nil), n.hi...), bound: r.cost, depth: n.depth + 1}
		down.hi[j] = math.Floor(r.x[j])
		up := &node{lo: append([]float64(nil), n.lo...), hi: n.hi, bound: r.cost, depth: n.depth + 1}
		up.lo[j] = math.Ceil(r.x[j])
		heap.Push(queue, down)
		heap.Push(queue, up)
	}
	open(&node{lo: lo, hi: hi}, root)

	limited := false
	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			m.status = solver.NotSolved
			return m.status, err
		}
		if p.NodeLimit > 0 && m.nodes >= p.NodeLimit {
			limited = true
			break
		}
		n := heap.Pop(queue).(*node)
		if incumbent != nil && n.bound >= m.pruneLimit(incCost, p.RelativeGap) {
			continue
		}
		r, err := m.relax(ctx, c, n.lo, n.hi)
		m.nodes++
		if err != nil {
			m.status = r.status
			return m.status, err
		}
		switch r.status {
		case solver.Optimal:
			open(n, r)
		case solver.Unbounded:
			m.status = solver.Unbounded
			return m.status, nil
		}
	}

	if incumbent == nil {
		if limited {
			m.status = solver.NotSolved
		} else {
			m.status = solver.Infeasible
		}
		return m.status, nil
	}
	m.values = m.snap(incumbent)
	m.objective = 0
	for j, v := range m.values {
		m.objective += m.obj[j] * v
	}
	if limited {
		m.status = solver.Feasible
	} else {
		m.status = solver.Optimal
	}
	return m.status, nil
}

func (m *Model) snap(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		if m.vars[j].integer {
			v = math.Round(v)
		}
		out[j] = math.Min(math.Max(v, m.vars[j].lb), m.vars[j].ub)
	}
	return out
}
