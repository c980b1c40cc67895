// Package catalog tracks, per invocation, the start-time intervals referenced
// by live cuts. The master materializes one indicator per live interval.
package catalog

import (
	"fmt"

	"github.com/google/btree"
)

// Interval is the closed range [L, R] of start times.
type Interval struct {
	L, R int64
}

func (iv Interval) Contains(t int64) bool {
	return iv.L <= t && t <= iv.R
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%d,%d]", iv.L, iv.R)
}

// Key identifies one indicator.
type Key struct {
	Invocation int
	Interval
}

type entry struct {
	iv   Interval
	refs int
}

func less(a, b *entry) bool {
	if a.iv.L != b.iv.L {
		return a.iv.L < b.iv.L
	}
	return a.iv.R < b.iv.R
}

// Catalog is owned by a single decomposition run and is not safe for
// concurrent use.
type Catalog struct {
	trees []*btree.BTreeG[*entry]
	refs  int
	live  int
}

func New(invocations int) *Catalog {
	c := &Catalog{trees: make([]*btree.BTreeG[*entry], invocations)}
	for i := range c.trees {
		c.trees[i] = btree.NewG[*entry](8, less)
	}
	return c
}

// Reserve adds one reference to (i, iv), creating the interval if needed.
func (c *Catalog) Reserve(i int, iv Interval) {
	c.refs++
	if e, ok := c.trees[i].Get(&entry{iv: iv}); ok {
		e.refs++
		return
	}
	c.trees[i].ReplaceOrInsert(&entry{iv: iv, refs: 1})
	c.live++
}

// Release drops one reference; the interval disappears with its last one.
func (c *Catalog) Release(i int, iv Interval) error {
	e, ok := c.trees[i].Get(&entry{iv: iv})
	if !ok {
		return fmt.Errorf("release of unreserved interval %v for invocation %d", iv, i)
	}
	c.refs--
	e.refs--
	if e.refs == 0 {
		c.trees[i].Delete(e)
		c.live--
	}
	return nil
}

// Live returns the live intervals of i ordered by (L, R).
func (c *Catalog) Live(i int) []Interval {
	out := make([]Interval, 0, c.trees[i].Len())
	c.trees[i].Ascend(func(e *entry) bool {
		out = append(out, e.iv)
		return true
	})
	return out
}

// Refs returns the reference count of (i, iv), zero if not live.
func (c *Catalog) Refs(i int, iv Interval) int {
	if e, ok := c.trees[i].Get(&entry{iv: iv}); ok {
		return e.refs
	}
	return 0
}

// Len is the number of live intervals over all invocations.
func (c *Catalog) Len() int { return c.live }

// TotalRefs is the sum of the reference counts of all live intervals.
func (c *Catalog) TotalRefs() int { return c.refs }

func (c *Catalog) Invocations() int { return len(c.trees) }

// Snapshot copies the reference counts, for comparisons in tests and reports.
func (c *Catalog) Snapshot() map[Key]int {
	out := make(map[Key]int, c.live)
	for i, t := range c.trees {
		t.Ascend(func(e *entry) bool {
			out[Key{Invocation: i, Interval: e.iv}] = e.refs
			return true
		})
	}
	return out
}
