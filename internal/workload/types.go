// Package workload holds the immutable input of every estimator: the
// invocation trace, the per-application cold start costs and resource
// footprints, and the host fleet.
package workload

import "errors"

// ErrInvalidInput is returned (wrapped) for any shape violation of an Instance.
var ErrInvalidInput = errors.New("invalid input")

// Instance is one estimation problem. All times share the same integer
// tick and all resource amounts share consistent units per dimension.
type Instance struct {
	Arrival  []uint64
	Duration []uint64
	App      []uint64

	// AppColdStart is indexed by application id.
	AppColdStart []uint64
	// AppResources[a][k] is the demand of application a on resource k.
	AppResources [][]uint64
	// HostResources[h][k] is the capacity of host h on resource k.
	HostResources [][]uint64

	Keepalive uint64
}

// Len returns the number of invocations.
func (in *Instance) Len() int {
	return len(in.Arrival)
}

// Dims returns the number of resource dimensions of the fleet.
func (in *Instance) Dims() int {
	if len(in.HostResources) == 0 {
		return 0
	}
	return len(in.HostResources[0])
}

// ColdStart returns the cold start cost paid by invocation i.
func (in *Instance) ColdStart(i int) uint64 {
	return in.AppColdStart[in.App[i]]
}

// Demand returns the resource footprint of invocation i.
func (in *Instance) Demand(i int) []uint64 {
	return in.AppResources[in.App[i]]
}

// ArrivalSum is the constant shift between the master objective and the latency.
func (in *Instance) ArrivalSum() uint64 {
	var s uint64
	for _, a := range in.Arrival {
		s += a
	}
	return s
}

// ColdHorizon is max_i(arrival_i + cold_i): every invocation can start
// cold at its arrival without exceeding it.
func (in *Instance) ColdHorizon() int64 {
	var h int64
	for i := range in.Arrival {
		if t := int64(in.Arrival[i] + in.ColdStart(i)); t > h {
			h = t
		}
	}
	return h
}

// SerialHorizon bounds the start time of every invocation in some optimal
// fleet-feasible schedule: running all invocations cold, one after the
// other, after the last arrival never exceeds it.
func (in *Instance) SerialHorizon() int64 {
	h := in.ColdHorizon()
	for i := range in.Arrival {
		h += int64(in.ColdStart(i) + in.Duration[i] + in.Keepalive)
	}
	return h + 1
}

// OccupancyLen is the time a cold container of invocation i holds its
// resources: cold start, execution and the keepalive window.
func (in *Instance) OccupancyLen(i int) int64 {
	return int64(in.Keepalive + in.ColdStart(i) + in.Duration[i])
}

// Chainable reports whether invocation i may reuse the container that ran
// invocation j (j < i, same application, j could finish before i would
// otherwise be ready).
func (in *Instance) Chainable(j, i int) bool {
	return j < i && in.App[i] == in.App[j] &&
		in.Arrival[j]+in.Duration[j] < in.Arrival[i]+in.ColdStart(i)
}
