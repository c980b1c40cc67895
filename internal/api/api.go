package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/benders"
	"github.com/grussorusso/serverledge-estimator/internal/cache"
	"github.com/grussorusso/serverledge-estimator/internal/config"
	"github.com/grussorusso/serverledge-estimator/internal/estimator"
	"github.com/grussorusso/serverledge-estimator/internal/logging"
	"github.com/grussorusso/serverledge-estimator/internal/metrics"
	"github.com/grussorusso/serverledge-estimator/internal/solver"
	"github.com/grussorusso/serverledge-estimator/internal/store"
	"github.com/grussorusso/serverledge-estimator/internal/telemetry"
	"github.com/grussorusso/serverledge-estimator/internal/workload"
	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Server holds the state shared by the handlers.
type Server struct {
	Store store.Store
	Cache *cache.Cache[Response]
	Log   *logging.Log

	// ctx bounds asynchronous estimations.
	ctx context.Context
}

func NewServer(ctx context.Context, s store.Store, c *cache.Cache[Response]) *Server {
	return &Server{Store: s, Cache: c, Log: &logging.Log{}, ctx: ctx}
}

// Estimate handles POST /estimate/:method with a trace body.
func (s *Server) Estimate(c echo.Context) error {
	method := c.Param("method")
	if !slices.Contains(Methods, method) {
		return c.JSON(http.StatusNotFound, "unknown method")
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, err.Error())
	}
	trace, err := workload.ParseTrace(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, err.Error())
	}
	in, err := InstanceFromTrace(trace)
	if err == nil {
		err = in.Validate()
	}
	if err != nil {
		return c.JSON(http.StatusBadRequest, err.Error())
	}

	if c.QueryParam("async") == "true" {
		reqId := shortuuid.New()
		go s.publish(reqId, method, in)
		return c.JSON(http.StatusOK, AsyncResponse{ReqId: reqId})
	}

	resp, err := s.run(c.Request().Context(), method, in)
	if err != nil {
		return c.JSON(httpStatus(err), resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// run computes (or recalls) one estimation and records it.
func (s *Server) run(ctx context.Context, method string, in *workload.Instance) (Response, error) {
	log := logging.GetLogger().WithFields(logrus.Fields{"method": method, "invocations": in.Len()})
	key := cache.Key(method, in.Digest(), cacheOptions(method))
	if cached, ok := s.Cache.Get(key); ok {
		log.Debug("cache hit")
		cached.Cached = true
		return cached, nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "estimate", trace.WithAttributes(
		attribute.String("method", method),
		attribute.Int("invocations", in.Len()),
	))
	defer span.End()

	resp := Response{Method: method}
	est, err := NewEstimator(method)
	if err != nil {
		resp.Error = err.Error()
		return resp, err
	}
	if b, ok := est.(*estimator.BendersEstimator); ok {
		observe := b.Options.Observer
		b.Options.Observer = func(it benders.Iteration) {
			telemetry.IterationEvent(span, it)
			if observe != nil {
				observe(it)
			}
		}
	}
	start := time.Now()
	e, err := est.Estimate(ctx, in)
	elapsed := time.Since(start)
	metrics.RecordEstimation(method, elapsed, err)

	record := logging.Record{Method: method, Elapsed: elapsed, Failed: err != nil}
	if b, ok := est.(*estimator.BendersEstimator); ok && b.LastReport != nil {
		resp.Iterations = len(b.LastReport.Iterations)
		record.Iterations = resp.Iterations
	}
	if err != nil {
		log.WithError(err).Warn("estimation failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "estimation failed")
		s.Log.Update(record)
		resp.Error = err.Error()
		return resp, err
	}
	record.Bound = e.Ticks
	s.Log.Update(record)
	log.WithFields(logrus.Fields{"bound": e.Ticks, "elapsed": elapsed}).Info("estimation completed")

	resp.Success = true
	resp.Estimation = &e
	s.Cache.Set(key, resp, cache.DefaultExpiration)
	return resp, nil
}

// publish runs an asynchronous estimation and stores its outcome.
func (s *Server) publish(reqId, method string, in *workload.Instance) {
	log := logging.GetLogger().WithField("reqId", reqId)
	resp, _ := s.run(s.ctx, method, in)
	payload, err := json.Marshal(resp)
	if err != nil {
		log.WithError(err).Error("could not marshal response")
		return
	}
	ttl := time.Duration(config.GetInt(config.STORE_TTL, 1800)) * time.Second
	if err := s.Store.Put(s.ctx, store.ResultKey(reqId), payload, ttl); err != nil {
		log.WithError(err).Error("could not publish response")
	}
}

// PollAsyncResult checks for the result of an asynchronous estimation.
func (s *Server) PollAsyncResult(c echo.Context) error {
	reqId := c.Param("reqId")
	if len(reqId) == 0 {
		return c.JSON(http.StatusNotFound, "")
	}
	payload, found, err := s.Store.Get(c.Request().Context(), store.ResultKey(reqId))
	if err != nil {
		logging.GetLogger().WithError(err).Error("could not read the store")
		return c.JSON(http.StatusInternalServerError, "")
	}
	if !found {
		return c.JSON(http.StatusNotFound, "request not found")
	}
	return c.JSONBlob(http.StatusOK, payload)
}

// GetServerStatus reports counters over recent estimations.
func (s *Server) GetServerStatus(c echo.Context) error {
	st := s.Log.GetLogStatus()
	hits, misses := s.Cache.Stats()
	response := StatusInformation{
		Estimations:   st.Estimations,
		Failures:      st.Failures,
		AvgElapsedMs:  st.AvgElapsedMs,
		AvgIterations: st.AvgIterations,
		CacheItems:    s.Cache.Len(),
		CacheHits:     hits,
		CacheMisses:   misses,
		Methods:       Methods,
		Backends:      solver.Backends(),
	}
	return c.JSON(http.StatusOK, response)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, estimator.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
