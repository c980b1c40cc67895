package telemetry

import (
	"context"
	"errors"
	"io"

	"github.com/grussorusso/serverledge-estimator/internal/benders"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/grussorusso/serverledge-estimator"

// SetupOTelSDK bootstraps the OpenTelemetry pipeline, exporting spans as
// JSON to w. If it does not return an error, make sure to call shutdown for
// proper cleanup.
func SetupOTelSDK(ctx context.Context, w io.Writer) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	// shutdown calls cleanup functions registered via shutdownFuncs.
	// The errors from the calls are joined.
	// Each registered cleanup will be invoked once.
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracerProvider, err := newTraceProvider(w)
	if err != nil {
		err = errors.Join(err, shutdown(ctx))
		return
	}
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)
	return
}

func newTraceProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter)), nil
}

// Tracer returns the tracer of the estimator; spans are dropped until
// SetupOTelSDK installs a provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// IterationEvent adds a decomposition iteration to span as an event.
func IterationEvent(span trace.Span, it benders.Iteration) {
	span.AddEvent("iteration", trace.WithAttributes(
		attribute.Int("index", it.Index),
		attribute.Int64("bound", int64(it.Bound)),
		attribute.Int64("best", int64(it.Best)),
		attribute.Int("cuts", it.Cuts),
		attribute.Int("packing_cuts", it.PackingCuts),
		attribute.Bool("verified", it.Verified),
	))
}
