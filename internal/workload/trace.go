package workload

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Resource is a named amount, e.g. {name: mem, amount: 4096}.
type Resource struct {
	Name   string `yaml:"name" json:"name"`
	Amount uint64 `yaml:"amount" json:"amount"`
}

type HostSpec struct {
	Resources []Resource `yaml:"resources" json:"resources"`
}

type AppSpec struct {
	ColdStart float64    `yaml:"cold_start" json:"cold_start"`
	Resources []Resource `yaml:"resources" json:"resources"`
}

type RequestSpec struct {
	Time     float64 `yaml:"time" json:"time"`
	Duration float64 `yaml:"duration" json:"duration"`
	App      int     `yaml:"app" json:"app"`
}

// Trace is the on-disk description of a workload and its fleet. Times are
// expressed in seconds and turned into integer ticks by Instance.
type Trace struct {
	Keepalive float64       `yaml:"keepalive" json:"keepalive"`
	Hosts     []HostSpec    `yaml:"hosts" json:"hosts"`
	Apps      []AppSpec     `yaml:"apps" json:"apps"`
	Requests  []RequestSpec `yaml:"requests" json:"requests"`
}

// LoadTrace reads a YAML (or JSON) trace file.
func LoadTrace(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read trace %s: %w", path, err)
	}
	return ParseTrace(data)
}

func ParseTrace(data []byte) (*Trace, error) {
	var t Trace
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: could not parse trace: %v", ErrInvalidInput, err)
	}
	return &t, nil
}

// Instance converts the trace into integer ticks (value*roundMul, rounded).
// Resource names get dense ids in first-seen order over the hosts, and
// requests are ordered by (time, duration, app).
func (t *Trace) Instance(roundMul float64) (*Instance, error) {
	if roundMul <= 0 {
		return nil, fmt.Errorf("%w: round multiplier must be positive, got %v", ErrInvalidInput, roundMul)
	}
	var errs *multierror.Error
	tick := func(what string, v float64) uint64 {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			errs = multierror.Append(errs, fmt.Errorf("%s is not a non-negative time: %v", what, v))
			return 0
		}
		return uint64(math.Round(v * roundMul))
	}

	resourceIds := make(map[string]int)
	for _, h := range t.Hosts {
		for _, r := range h.Resources {
			if _, ok := resourceIds[r.Name]; !ok {
				resourceIds[r.Name] = len(resourceIds)
			}
		}
	}

	in := &Instance{Keepalive: tick("keepalive", t.Keepalive)}
	in.HostResources = make([][]uint64, len(t.Hosts))
	for h, spec := range t.Hosts {
		in.HostResources[h] = make([]uint64, len(resourceIds))
		for _, r := range spec.Resources {
			in.HostResources[h][resourceIds[r.Name]] = r.Amount
		}
	}
	for a, spec := range t.Apps {
		in.AppColdStart = append(in.AppColdStart, tick(fmt.Sprintf("app %d cold start", a), spec.ColdStart))
		demand := make([]uint64, len(resourceIds))
		for _, r := range spec.Resources {
			id, ok := resourceIds[r.Name]
			if !ok {
				errs = multierror.Append(errs, fmt.Errorf("app %d uses resource %q that no host provides", a, r.Name))
				continue
			}
			demand[id] = r.Amount
		}
		in.AppResources = append(in.AppResources, demand)
	}

	type item struct {
		time, dur uint64
		app       int
	}
	items := make([]item, 0, len(t.Requests))
	for k, r := range t.Requests {
		if r.App < 0 || r.App >= len(t.Apps) {
			errs = multierror.Append(errs, fmt.Errorf("request %d references unknown app %d", k, r.App))
			continue
		}
		items = append(items, item{
			time: tick(fmt.Sprintf("request %d time", k), r.Time),
			dur:  tick(fmt.Sprintf("request %d duration", k), r.Duration),
			app:  r.App,
		})
	}
	if err := wrapInvalid(errs); err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(x, y int) bool {
		if items[x].time != items[y].time {
			return items[x].time < items[y].time
		}
		if items[x].dur != items[y].dur {
			return items[x].dur < items[y].dur
		}
		return items[x].app < items[y].app
	})
	for _, it := range items {
		in.Arrival = append(in.Arrival, it.time)
		in.Duration = append(in.Duration, it.dur)
		in.App = append(in.App, uint64(it.app))
	}
	return in, nil
}

// Digest is a stable content hash of the instance, used as a cache key.
func (in *Instance) Digest() string {
	h := sha256.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	putSlice := func(s []uint64) {
		put(uint64(len(s)))
		for _, v := range s {
			put(v)
		}
	}
	putSlice(in.Arrival)
	putSlice(in.Duration)
	putSlice(in.App)
	putSlice(in.AppColdStart)
	put(uint64(len(in.AppResources)))
	for _, r := range in.AppResources {
		putSlice(r)
	}
	put(uint64(len(in.HostResources)))
	for _, r := range in.HostResources {
		putSlice(r)
	}
	put(in.Keepalive)
	return hex.EncodeToString(h.Sum(nil))
}
