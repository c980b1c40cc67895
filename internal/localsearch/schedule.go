// Package localsearch builds feasible schedules of a workload: a greedy
// construction and a hill climbing search over its decisions. The latency of
// any schedule it returns is an upper bound on the optimum.
package localsearch

import (
	"fmt"
	"sort"

	"github.com/grussorusso/serverledge-estimator/internal/workload"
)

// Container is one cold start on a host and the invocations it serves, in
// index order. It holds the application's resources during [Start, End).
type Container struct {
	Host        int
	App         uint64
	Invocations []int
	Start       int64
	End         int64
	// finish is the end of the last execution; End is finish plus keepalive.
	finish int64
}

// Schedule is a fleet-feasible execution of every invocation.
type Schedule struct {
	Containers []Container
	// Start is the deployment start of a chain head and the execution start
	// of a warm invocation.
	Start   []int64
	Latency uint64
}

// plan holds the decisions the decoder follows.
type plan struct {
	order []int
	cold  []bool
	host  []int
}

func initialPlan(in *workload.Instance) plan {
	n := in.Len()
	p := plan{order: make([]int, n), cold: make([]bool, n), host: make([]int, n)}
	for i := range p.order {
		p.order[i] = i
		p.host[i] = -1
	}
	sort.SliceStable(p.order, func(x, y int) bool {
		return in.Arrival[p.order[x]] < in.Arrival[p.order[y]]
	})
	return p
}

func (p plan) clone() plan {
	return plan{
		order: append([]int(nil), p.order...),
		cold:  append([]bool(nil), p.cold...),
		host:  append([]int(nil), p.host...),
	}
}

// Greedy places invocations by arrival: each one reuses the container that
// serves it soonest, or starts cold on the host where it starts first,
// whichever costs less latency.
func Greedy(in *workload.Instance) (*Schedule, error) {
	if err := in.ValidateFleet(); err != nil {
		return nil, err
	}
	return decode(in, initialPlan(in)), nil
}

// Horizon bounds every start time of an optimal schedule: no invocation
// waits longer than the whole latency of s.
func Horizon(in *workload.Instance, s *Schedule) int64 {
	var last uint64
	for _, a := range in.Arrival {
		if a > last {
			last = a
		}
	}
	return int64(last + s.Latency)
}

type decoder struct {
	in     *workload.Instance
	s      *Schedule
	onHost [][]int
}

// decode follows p.order. The decoder never fails on a valid fleet: a cold
// start can always be delayed past every reservation of a host that fits it.
func decode(in *workload.Instance, p plan) *Schedule {
	d := &decoder{
		in:     in,
		s:      &Schedule{Start: make([]int64, in.Len())},
		onHost: make([][]int, len(in.HostResources)),
	}
	for _, i := range p.order {
		d.place(i, p.cold[i], p.host[i])
	}
	return d.s
}

func (d *decoder) place(i int, forceCold bool, host int) {
	in := d.in
	a := int64(in.Arrival[i])
	dur := int64(in.Duration[i])
	keep := int64(in.Keepalive)
	dem := in.Demand(i)

	reuse, reuseStart := -1, int64(0)
	if !forceCold {
		for k := range d.s.Containers {
			c := &d.s.Containers[k]
			last := c.Invocations[len(c.Invocations)-1]
			if c.App != in.App[i] || !in.Chainable(last, i) || a > c.finish+keep {
				continue
			}
			start := max(a, c.finish)
			if end := start + dur + keep; end > c.End && !d.fits(c.Host, dem, c.End, end, k) {
				continue
			}
			if reuse < 0 || start < reuseStart {
				reuse, reuseStart = k, start
			}
		}
	}

	cold := int64(in.ColdStart(i))
	length := in.OccupancyLen(i)
	pinned := host >= 0 && host < len(in.HostResources) && fitsAlone(in.HostResources[host], dem)
	coldHost, coldStart := -1, int64(0)
	for h := range in.HostResources {
		if (pinned && h != host) || !fitsAlone(in.HostResources[h], dem) {
			continue
		}
		s := d.earliest(h, dem, a, length)
		if coldHost < 0 || s < coldStart {
			coldHost, coldStart = h, s
		}
	}

	if reuse >= 0 && (coldHost < 0 || reuseStart-a <= coldStart-a+cold) {
		c := &d.s.Containers[reuse]
		c.Invocations = append(c.Invocations, i)
		c.finish = reuseStart + dur
		c.End = max(c.End, c.finish+keep)
		d.s.Start[i] = reuseStart
		d.s.Latency += uint64(reuseStart - a)
		return
	}
	d.s.Containers = append(d.s.Containers, Container{
		Host:        coldHost,
		App:         in.App[i],
		Invocations: []int{i},
		Start:       coldStart,
		End:         coldStart + length,
		finish:      coldStart + cold + dur,
	})
	d.onHost[coldHost] = append(d.onHost[coldHost], len(d.s.Containers)-1)
	d.s.Start[i] = coldStart
	d.s.Latency += uint64(coldStart-a) + uint64(cold)
}

// earliest is the first time from which dem fits on h for length ticks.
// Candidates are from itself and every reservation end after it.
func (d *decoder) earliest(h int, dem []uint64, from, length int64) int64 {
	candidates := []int64{from}
	for _, k := range d.onHost[h] {
		if e := d.s.Containers[k].End; e > from {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(x, y int) bool { return candidates[x] < candidates[y] })
	for _, t := range candidates {
		if d.fits(h, dem, t, t+length, -1) {
			return t
		}
	}
	return candidates[len(candidates)-1]
}

// fits reports whether dem can be added on h during [from, to), ignoring
// container skip.
func (d *decoder) fits(h int, dem []uint64, from, to int64, skip int) bool {
	var res []reservation
	for _, k := range d.onHost[h] {
		c := d.s.Containers[k]
		if k == skip || c.End <= from || c.Start >= to {
			continue
		}
		res = append(res, reservation{start: max(c.Start, from), end: min(c.End, to), dem: d.in.AppResources[c.App]})
	}
	res = append(res, reservation{start: from, end: to, dem: dem})
	return peakFits(res, d.in.HostResources[h])
}

type reservation struct {
	start, end int64
	dem        []uint64
}

// peakFits sweeps half-open reservations: a release at t happens before an
// acquisition at t.
func peakFits(res []reservation, capacity []uint64) bool {
	type event struct {
		t   int64
		add bool
		dem []uint64
	}
	events := make([]event, 0, 2*len(res))
	for _, r := range res {
		if r.end <= r.start {
			continue
		}
		events = append(events, event{t: r.start, add: true, dem: r.dem}, event{t: r.end, dem: r.dem})
	}
	sort.Slice(events, func(x, y int) bool {
		if events[x].t != events[y].t {
			return events[x].t < events[y].t
		}
		return !events[x].add && events[y].add
	})
	used := make([]uint64, len(capacity))
	for _, e := range events {
		for r := range used {
			if e.add {
				used[r] += e.dem[r]
			} else {
				used[r] -= e.dem[r]
			}
		}
		if !e.add {
			continue
		}
		for r := range used {
			if used[r] > capacity[r] {
				return false
			}
		}
	}
	return true
}

func fitsAlone(capacity, dem []uint64) bool {
	for r := range capacity {
		if dem[r] > capacity[r] {
			return false
		}
	}
	return true
}

// Validate checks s against in: every invocation is served once by a chain
// that respects reuse and keepalive, and no host is ever overloaded.
func (s *Schedule) Validate(in *workload.Instance) error {
	seen := make([]bool, in.Len())
	keep := int64(in.Keepalive)
	var latency uint64
	byHost := make([][]reservation, len(in.HostResources))
	for k, c := range s.Containers {
		if c.Host < 0 || c.Host >= len(in.HostResources) || len(c.Invocations) == 0 {
			return fmt.Errorf("container %d is malformed", k)
		}
		var finish int64
		for p, i := range c.Invocations {
			if seen[i] {
				return fmt.Errorf("invocation %d is served twice", i)
			}
			seen[i] = true
			if in.App[i] != c.App {
				return fmt.Errorf("invocation %d runs in a container of app %d", i, c.App)
			}
			start := s.Start[i]
			if start < int64(in.Arrival[i]) {
				return fmt.Errorf("invocation %d starts at %d before its arrival", i, start)
			}
			if p == 0 {
				if start != c.Start {
					return fmt.Errorf("container %d starts at %d, its head at %d", k, c.Start, start)
				}
				finish = start + int64(in.ColdStart(i)+in.Duration[i])
				latency += uint64(start-int64(in.Arrival[i])) + in.ColdStart(i)
				continue
			}
			prev := c.Invocations[p-1]
			if !in.Chainable(prev, i) {
				return fmt.Errorf("invocation %d cannot reuse the container of %d", i, prev)
			}
			if start < finish || start > finish+keep {
				return fmt.Errorf("invocation %d starts at %d outside [%d, %d]", i, start, finish, finish+keep)
			}
			finish = start + int64(in.Duration[i])
			latency += uint64(start - int64(in.Arrival[i]))
		}
		if c.End != finish+keep {
			return fmt.Errorf("container %d ends at %d, expected %d", k, c.End, finish+keep)
		}
		byHost[c.Host] = append(byHost[c.Host], reservation{start: c.Start, end: c.End, dem: in.AppResources[c.App]})
	}
	for i, ok := range seen {
		if !ok {
			return fmt.Errorf("invocation %d is not served", i)
		}
	}
	for h, res := range byHost {
		if !peakFits(res, in.HostResources[h]) {
			return fmt.Errorf("host %d is overloaded", h)
		}
	}
	if latency != s.Latency {
		return fmt.Errorf("latency is %d, recorded %d", latency, s.Latency)
	}
	return nil
}
