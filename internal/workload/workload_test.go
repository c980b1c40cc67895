package workload

import (
	"strings"
	"testing"

	"github.com/grussorusso/serverledge-estimator/utils"
)

func twoInvocations() *Instance {
	return &Instance{
		Arrival:       []uint64{0, 20},
		Duration:      []uint64{10, 10},
		App:           []uint64{0, 0},
		AppColdStart:  []uint64{5},
		AppResources:  [][]uint64{{1}},
		HostResources: [][]uint64{{1}},
		Keepalive:     100,
	}
}

func TestHorizons(t *testing.T) {
	in := twoInvocations()
	utils.AssertEquals(t, int64(25), in.ColdHorizon())
	// 25 + 2*(5+10+100) + 1
	utils.AssertEquals(t, int64(256), in.SerialHorizon())
	utils.AssertEquals(t, int64(115), in.OccupancyLen(0))
	utils.AssertEquals(t, uint64(20), in.ArrivalSum())
}

func TestChainable(t *testing.T) {
	in := twoInvocations()
	utils.AssertTrue(t, in.Chainable(0, 1))
	utils.AssertFalse(t, in.Chainable(1, 0))
	utils.AssertFalse(t, in.Chainable(0, 0))

	// the first one cannot finish before the second is ready cold
	in.Arrival = []uint64{0, 0}
	in.AppColdStart = []uint64{1}
	utils.AssertFalse(t, in.Chainable(0, 1))
}

func TestValidateReportsEveryViolation(t *testing.T) {
	in := &Instance{
		Arrival:      []uint64{0, 1, 2},
		Duration:     []uint64{1},
		App:          []uint64{0, 3, 0},
		AppColdStart: []uint64{1},
	}
	err := in.Validate()
	utils.AssertErrorIs(t, err, ErrInvalidInput)
	utils.AssertTrue(t, strings.Contains(err.Error(), "1 durations for 3 arrivals"))
	utils.AssertTrue(t, strings.Contains(err.Error(), "unknown app 3"))
}

func TestValidateFleet(t *testing.T) {
	utils.AssertNil(t, twoInvocations().ValidateFleet())

	in := twoInvocations()
	in.AppResources = [][]uint64{{2}}
	utils.AssertErrorIs(t, in.ValidateFleet(), ErrInvalidInput)

	in = twoInvocations()
	in.HostResources = [][]uint64{{1}, {1, 1}}
	utils.AssertErrorIs(t, in.ValidateFleet(), ErrInvalidInput)

	in = twoInvocations()
	in.HostResources = nil
	utils.AssertErrorIs(t, in.ValidateFleet(), ErrInvalidInput)
}

const sampleTrace = `
keepalive: 6
hosts:
  - resources: [{name: mem, amount: 4096}, {name: cpu, amount: 4000}]
  - resources: [{name: cpu, amount: 2000}]
apps:
  - cold_start: 0.5
    resources: [{name: cpu, amount: 1000}, {name: mem, amount: 256}]
  - cold_start: 1.25
    resources: [{name: mem, amount: 128}]
requests:
  - {time: 3.0, duration: 1.0, app: 1}
  - {time: 0.5, duration: 2.0, app: 0}
  - {time: 0.5, duration: 1.0, app: 1}
`

func TestTraceInstance(t *testing.T) {
	tr, err := ParseTrace([]byte(sampleTrace))
	utils.AssertNil(t, err)
	in, err := tr.Instance(10)
	utils.AssertNil(t, err)

	utils.AssertEquals(t, uint64(60), in.Keepalive)
	utils.AssertSliceEquals(t, []uint64{5, 13}, in.AppColdStart)
	// mem first, then cpu (first-seen order over hosts)
	utils.AssertSliceEquals(t, []uint64{4096, 4000}, in.HostResources[0])
	utils.AssertSliceEquals(t, []uint64{0, 2000}, in.HostResources[1])
	utils.AssertSliceEquals(t, []uint64{256, 1000}, in.AppResources[0])
	utils.AssertSliceEquals(t, []uint64{128, 0}, in.AppResources[1])

	utils.AssertSliceEquals(t, []uint64{5, 5, 30}, in.Arrival)
	utils.AssertSliceEquals(t, []uint64{10, 20, 10}, in.Duration)
	utils.AssertSliceEquals(t, []uint64{1, 0, 1}, in.App)
	utils.AssertNil(t, in.ValidateFleet())
}

func TestTraceRejectsUnknownResource(t *testing.T) {
	tr := &Trace{
		Hosts: []HostSpec{{Resources: []Resource{{Name: "mem", Amount: 1}}}},
		Apps:  []AppSpec{{ColdStart: 1, Resources: []Resource{{Name: "gpu", Amount: 1}}}},
	}
	_, err := tr.Instance(1)
	utils.AssertErrorIs(t, err, ErrInvalidInput)

	tr.Apps[0].Resources = nil
	tr.Requests = []RequestSpec{{Time: -1, Duration: 1, App: 0}}
	_, err = tr.Instance(1)
	utils.AssertErrorIs(t, err, ErrInvalidInput)
}

func TestDigestIsStable(t *testing.T) {
	a, b := twoInvocations(), twoInvocations()
	utils.AssertEquals(t, a.Digest(), b.Digest())
	b.Keepalive = 0
	utils.AssertTrue(t, a.Digest() != b.Digest())
}
