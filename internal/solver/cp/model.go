// Package cp is a small constraint programming solver over boolean variables.
// It supports optional fixed-size intervals, cumulative resources, boolean
// sum equalities and the maximization of a sum of booleans, which is all the
// fleet verifier needs.
package cp

import "fmt"

type BoolVar int

// IntervalVar is an interval with a fixed start and size, present iff its
// presence literal is true.
type IntervalVar int

type interval struct {
	start, size int64
	presence    BoolVar
}

type constraint interface {
	vars() []BoolVar
	// propagate fixes implied values; it returns false on a conflict.
	propagate(s *state) bool
}

// Model is built once and solved once.
type Model struct {
	names     []string
	intervals []interval
	cons      []constraint
	watch     [][]int
	objective []BoolVar
}

func NewModel() *Model {
	return &Model{}
}

func (m *Model) NewBoolVar(name string) BoolVar {
	m.names = append(m.names, name)
	m.watch = append(m.watch, nil)
	return BoolVar(len(m.names) - 1)
}

func (m *Model) NumVars() int { return len(m.names) }

// NewOptionalFixedSizeInterval creates [start, start+size) gated by presence.
func (m *Model) NewOptionalFixedSizeInterval(start, size int64, presence BoolVar) IntervalVar {
	if size < 0 {
		panic(fmt.Sprintf("cp: negative interval size %d", size))
	}
	m.intervals = append(m.intervals, interval{start: start, size: size, presence: presence})
	return IntervalVar(len(m.intervals) - 1)
}

func (m *Model) add(c constraint) {
	idx := len(m.cons)
	m.cons = append(m.cons, c)
	for _, v := range c.vars() {
		m.watch[v] = append(m.watch[v], idx)
	}
}

// AddEquality posts sum(vars) == target.
func (m *Model) AddEquality(vars []BoolVar, target BoolVar) {
	m.add(&sumEq{terms: append([]BoolVar(nil), vars...), target: target})
}

// AddCumulative returns a resource of the given capacity; demands are added
// through the returned handle.
func (m *Model) AddCumulative(capacity int64) *Cumulative {
	c := &Cumulative{model: m, capacity: capacity}
	m.cons = append(m.cons, c)
	c.index = len(m.cons) - 1
	return c
}

// Maximize sets the objective to the number of true vars.
func (m *Model) Maximize(vars ...BoolVar) {
	m.objective = append([]BoolVar(nil), vars...)
}

// Cumulative bounds the total demand of the present intervals at any time.
type Cumulative struct {
	model    *Model
	index    int
	capacity int64
	items    []demand
}

type demand struct {
	iv     interval
	amount int64
}

func (c *Cumulative) AddDemand(iv IntervalVar, amount int64) {
	it := c.model.intervals[iv]
	if it.size == 0 || amount == 0 {
		return
	}
	c.items = append(c.items, demand{iv: it, amount: amount})
	c.model.watch[it.presence] = append(c.model.watch[it.presence], c.index)
}

func (c *Cumulative) vars() []BoolVar {
	out := make([]BoolVar, len(c.items))
	for k, d := range c.items {
		out[k] = d.iv.presence
	}
	return out
}

// load is the demand of the present items covering time t.
func (c *Cumulative) load(s *state, t int64) int64 {
	var sum int64
	for _, d := range c.items {
		if s.vals[d.iv.presence] == 1 && d.iv.start <= t && t < d.iv.start+d.iv.size {
			sum += d.amount
		}
	}
	return sum
}

// peak is the largest load over [from, to).
func (c *Cumulative) peak(s *state, from, to int64) int64 {
	best := c.load(s, from)
	for _, d := range c.items {
		if s.vals[d.iv.presence] == 1 && d.iv.start > from && d.iv.start < to {
			if l := c.load(s, d.iv.start); l > best {
				best = l
			}
		}
	}
	return best
}

func (c *Cumulative) propagate(s *state) bool {
	for _, d := range c.items {
		if s.vals[d.iv.presence] == 1 && c.load(s, d.iv.start) > c.capacity {
			return false
		}
	}
	for _, d := range c.items {
		if s.vals[d.iv.presence] != unset {
			continue
		}
		if d.amount+c.peak(s, d.iv.start, d.iv.start+d.iv.size) > c.capacity {
			if !s.assign(d.iv.presence, 0) {
				return false
			}
		}
	}
	return true
}

type sumEq struct {
	terms  []BoolVar
	target BoolVar
}

func (c *sumEq) vars() []BoolVar {
	return append(append([]BoolVar(nil), c.terms...), c.target)
}

func (c *sumEq) propagate(s *state) bool {
	ones, open := 0, -1
	unfixed := 0
	for k, v := range c.terms {
		switch s.vals[v] {
		case 1:
			ones++
		case unset:
			unfixed++
			open = k
		}
	}
	if ones > 1 {
		return false
	}
	if ones == 1 {
		for _, v := range c.terms {
			if s.vals[v] == unset && !s.assign(v, 0) {
				return false
			}
		}
		return s.assign(c.target, 1)
	}
	if unfixed == 0 {
		return s.assign(c.target, 0)
	}
	switch s.vals[c.target] {
	case 0:
		for _, v := range c.terms {
			if s.vals[v] == unset && !s.assign(v, 0) {
				return false
			}
		}
	case 1:
		if unfixed == 1 {
			return s.assign(c.terms[open], 1)
		}
	}
	return true
}
