package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/grussorusso/serverledge-estimator/internal/benders"
	"github.com/grussorusso/serverledge-estimator/utils"
)

func TestSpansAreExported(t *testing.T) {
	var out bytes.Buffer
	ctx := context.Background()
	shutdown, err := SetupOTelSDK(ctx, &out)
	utils.AssertNil(t, err)

	_, span := Tracer().Start(ctx, "estimate")
	IterationEvent(span, benders.Iteration{Index: 0, Bound: 13, Best: 13, PackingCuts: 1})
	span.End()

	utils.AssertNil(t, shutdown(ctx))
	utils.AssertTrue(t, strings.Contains(out.String(), `"Name":"estimate"`))
	utils.AssertTrue(t, strings.Contains(out.String(), `"iteration"`))
}
