package logging

import (
	"testing"
	"time"

	"github.com/grussorusso/serverledge-estimator/utils"
)

func TestLogRingWrapsAround(t *testing.T) {
	l := new(Log)
	for k := 0; k < Capacity+5; k++ {
		l.Update(Record{Method: "lp", Bound: uint64(k), Iterations: 2, Elapsed: 10 * time.Millisecond})
	}
	recent := l.Recent()
	utils.AssertEquals(t, Capacity, len(recent))
	utils.AssertEquals(t, uint64(5), recent[0].Bound)
	utils.AssertEquals(t, uint64(Capacity+4), recent[Capacity-1].Bound)

	status := l.GetLogStatus()
	utils.AssertEquals(t, Capacity+5, status.Estimations)
	utils.AssertInDelta(t, 2, status.AvgIterations, 1e-9)
	utils.AssertInDelta(t, 10, status.AvgElapsedMs, 1e-9)
}

func TestLogStatusCountsFailures(t *testing.T) {
	l := new(Log)
	l.Update(Record{Method: "benders", Failed: true})
	l.Update(Record{Method: "benders", Bound: 13, Iterations: 3})
	status := l.GetLogStatus()
	utils.AssertEquals(t, 1, status.Failures)
	utils.AssertEquals(t, 2, status.Estimations)
}

func TestSetLogLevel(t *testing.T) {
	utils.AssertNil(t, SetLogLevel("debug"))
	utils.AssertEquals(t, "debug", GetLogger().GetLevel().String())
	utils.AssertNonNil(t, SetLogLevel("verbose-ish"))
	utils.AssertNil(t, SetLogLevel("info"))
}
