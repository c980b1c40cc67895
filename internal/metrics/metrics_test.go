package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/benders"
	"github.com/grussorusso/serverledge-estimator/internal/config"
	"github.com/grussorusso/serverledge-estimator/utils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/viper"
)

func TestObserveIteration(t *testing.T) {
	before := testutil.ToFloat64(iterations)
	ObserveIteration(benders.Iteration{Cuts: 4, Intervals: 9, Best: 13, PackingCuts: 2})
	ObserveIteration(benders.Iteration{Cuts: 6, Intervals: 11, Best: 15, CoreSize: 3})

	utils.AssertEquals(t, before+2, testutil.ToFloat64(iterations))
	utils.AssertEquals(t, 6.0, testutil.ToFloat64(liveCuts))
	utils.AssertEquals(t, 11.0, testutil.ToFloat64(liveIntervals))
	utils.AssertEquals(t, 15.0, testutil.ToFloat64(bestBound))
	utils.AssertTrue(t, testutil.ToFloat64(cutsAdded.WithLabelValues("packing")) >= 2)
	utils.AssertTrue(t, testutil.ToFloat64(cutsAdded.WithLabelValues("verifier")) >= 1)
}

func TestRecordEstimation(t *testing.T) {
	RecordEstimation("lp", 20*time.Millisecond, nil)
	RecordEstimation("lp", 10*time.Millisecond, errors.New("boom"))
	utils.AssertEquals(t, 1.0, testutil.ToFloat64(estimations.WithLabelValues("lp", "ok")))
	utils.AssertEquals(t, 1.0, testutil.ToFloat64(estimations.WithLabelValues("lp", "error")))

	families, err := Registry().Gather()
	utils.AssertNil(t, err)
	utils.AssertTrue(t, len(families) > 0)
}

func TestInitSetsEnabledBeforeReturning(t *testing.T) {
	defer viper.Reset()
	config.Set(config.METRICS_ENABLED, true)
	utils.AssertTrue(t, Init())
	utils.AssertTrue(t, Enabled)

	config.Set(config.METRICS_ENABLED, false)
	utils.AssertFalse(t, Init())
	utils.AssertFalse(t, Enabled)
}
