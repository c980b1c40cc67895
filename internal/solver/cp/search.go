package cp

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"golang.org/x/sync/errgroup"
)

const unset int8 = -1

type state struct {
	m      *Model
	vals   []int8
	trail  []BoolVar
	queue  []int
	queued []bool
}

func newState(m *Model) *state {
	s := &state{m: m, vals: make([]int8, len(m.names)), queued: make([]bool, len(m.cons))}
	for i := range s.vals {
		s.vals[i] = unset
	}
	return s
}

func (s *state) clone() *state {
	return &state{m: s.m, vals: append([]int8(nil), s.vals...), queued: make([]bool, len(s.m.cons))}
}

func (s *state) assign(v BoolVar, val int8) bool {
	switch s.vals[v] {
	case val:
		return true
	case unset:
	default:
		return false
	}
	s.vals[v] = val
	s.trail = append(s.trail, v)
	for _, c := range s.m.watch[v] {
		if !s.queued[c] {
			s.queued[c] = true
			s.queue = append(s.queue, c)
		}
	}
	return true
}

// fixpoint runs queued constraints until nothing changes.
func (s *state) fixpoint() bool {
	for len(s.queue) > 0 {
		c := s.queue[0]
		s.queue = s.queue[1:]
		s.queued[c] = false
		if !s.m.cons[c].propagate(s) {
			for _, q := range s.queue {
				s.queued[q] = false
			}
			s.queue = s.queue[:0]
			return false
		}
	}
	return true
}

func (s *state) undo(mark int) {
	for len(s.trail) > mark {
		v := s.trail[len(s.trail)-1]
		s.trail = s.trail[:len(s.trail)-1]
		s.vals[v] = unset
	}
}

func (s *state) nextUnset() BoolVar {
	for v, val := range s.vals {
		if val == unset {
			return BoolVar(v)
		}
	}
	return -1
}

// objectiveBound counts objective vars that may still be true.
func (s *state) objectiveBound() int {
	n := 0
	for _, v := range s.m.objective {
		if s.vals[v] != 0 {
			n++
		}
	}
	return n
}

// Params tunes Solve.
type Params struct {
	// Workers is the number of parallel search goroutines; values below 1 mean 1.
	Workers int
}

// Solution is the outcome of Solve.
type Solution struct {
	Status    solver.Status
	Objective int
	values    []int8
	// Branches counts search decisions over all workers.
	Branches int64
}

func (r *Solution) Value(v BoolVar) bool {
	return r.values != nil && r.values[v] == 1
}

// incumbent is shared by the workers. Candidates are ranked by objective and,
// on ties, by the lower subproblem index so the result does not depend on
// goroutine timing.
type incumbent struct {
	key    atomic.Int64
	mu     sync.Mutex
	values []int8
	n      int64
}

func (b *incumbent) rank(obj int, sub int) int64 {
	return int64(obj)*(b.n+1) + (b.n - int64(sub))
}

func (b *incumbent) offer(obj int, sub int, vals []int8) {
	k := b.rank(obj, sub)
	b.mu.Lock()
	defer b.mu.Unlock()
	if k > b.key.Load() {
		b.key.Store(k)
		b.values = append([]int8(nil), vals...)
	}
}

// Solve maximizes the objective by depth first search. The top of the tree is
// split into subproblems that the workers share.
func (m *Model) Solve(ctx context.Context, p Params) (*Solution, error) {
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	root := newState(m)
	for c := range m.cons {
		root.queued[c] = true
		root.queue = append(root.queue, c)
	}
	if !root.fixpoint() {
		return &Solution{Status: solver.Infeasible}, nil
	}
	subs := split(root, 4*workers)

	best := &incumbent{n: int64(len(subs))}
	best.key.Store(-1)
	var branches atomic.Int64
	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for k := range subs {
			select {
			case jobs <- k:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for k := range jobs {
				n, err := subs[k].search(gctx, k, best)
				branches.Add(n)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Solution{Branches: branches.Load()}
	if best.values == nil {
		res.Status = solver.Infeasible
		return res, nil
	}
	res.Status = solver.Optimal
	res.values = best.values
	for _, v := range m.objective {
		if res.values[v] == 1 {
			res.Objective++
		}
	}
	return res, nil
}

// split expands the root breadth first, keeping the children in search order,
// until there are at least want open subproblems or nothing is left to branch.
func split(root *state, want int) []*state {
	level := []*state{root}
	for len(level) < want {
		next := make([]*state, 0, 2*len(level))
		grew := false
		for _, s := range level {
			v := s.nextUnset()
			if v < 0 {
				next = append(next, s)
				continue
			}
			grew = true
			for _, val := range []int8{1, 0} {
				c := s.clone()
				if c.assign(v, val) && c.fixpoint() {
					c.trail = c.trail[:0]
					next = append(next, c)
				}
			}
		}
		level = next
		if !grew {
			break
		}
	}
	return level
}

func (s *state) search(ctx context.Context, sub int, best *incumbent) (int64, error) {
	var branches int64
	var dfs func() error
	dfs = func() error {
		if branches&1023 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if best.rank(s.objectiveBound(), sub) <= best.key.Load() {
			return nil
		}
		v := s.nextUnset()
		if v < 0 {
			best.offer(s.objectiveBound(), sub, s.vals)
			return nil
		}
		for _, val := range []int8{1, 0} {
			branches++
			mark := len(s.trail)
			if s.assign(v, val) && s.fixpoint() {
				if err := dfs(); err != nil {
					return err
				}
			}
			s.undo(mark)
		}
		return nil
	}
	err := dfs()
	return branches, err
}
