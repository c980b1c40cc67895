package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/grussorusso/serverledge-estimator/internal/cache"
	"github.com/grussorusso/serverledge-estimator/internal/config"
	"github.com/grussorusso/serverledge-estimator/internal/estimator"
	"github.com/grussorusso/serverledge-estimator/internal/store"
	"github.com/labstack/echo/v4"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// Two overlapping requests of one app on two hosts: the second arrives
// while the first still runs, so both pay a cold start (2+2 ticks).
const overlapping = `
keepalive: 10
hosts:
  - resources: [{name: mem, amount: 1}]
  - resources: [{name: mem, amount: 1}]
apps:
  - cold_start: 2
    resources: [{name: mem, amount: 1}]
requests:
  - {time: 0, duration: 5, app: 0}
  - {time: 1, duration: 5, app: 0}
`

func newTestServer() (*echo.Echo, *Server) {
	e := echo.New()
	s := NewServer(context.Background(), store.NewMemory(16), cache.New[Response](cache.NoExpiration, 0, 16))
	RegisterRoutes(e, s)
	return e, s
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, "application/yaml")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestEstimateSync(t *testing.T) {
	e, s := newTestServer()
	rec := do(e, http.MethodPost, "/estimate/pathcover", overlapping)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.False(t, resp.Cached)
	require.Equal(t, estimator.LowerBound, resp.Estimation.Kind)
	require.Equal(t, uint64(4), resp.Estimation.Ticks)

	rec = do(e, http.MethodPost, "/estimate/pathcover", overlapping)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Cached)
	require.Equal(t, 1, s.Log.GetLogStatus().Estimations)
}

func TestEstimateBenders(t *testing.T) {
	e, _ := newTestServer()
	rec := do(e, http.MethodPost, "/estimate/benders", overlapping)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, uint64(4), resp.Estimation.Ticks)
	require.GreaterOrEqual(t, resp.Iterations, 1)
}

func TestEstimateLocalSearch(t *testing.T) {
	e, _ := newTestServer()
	rec := do(e, http.MethodPost, "/estimate/localsearch", overlapping)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, estimator.UpperBound, resp.Estimation.Kind)
	require.Equal(t, uint64(4), resp.Estimation.Ticks)
}

func TestCacheKeyTracksSolverSettings(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	for _, method := range []string{"lp", "benders"} {
		base := cacheOptions(method)

		config.Set(config.SOLVER_NODE_LIMIT, 50)
		limited := cacheOptions(method)
		require.NotEqual(t, base, limited, method)

		config.Set(config.SOLVER_BACKEND, "simplex")
		require.NotEqual(t, limited, cacheOptions(method), method)
		viper.Reset()
		require.Equal(t, base, cacheOptions(method), method)
	}

	base := cacheOptions("localsearch")
	config.Set(config.LOCALSEARCH_SEED, 99)
	require.NotEqual(t, base, cacheOptions("localsearch"))
}

func TestEstimateRejectsBadInput(t *testing.T) {
	e, _ := newTestServer()
	require.Equal(t, http.StatusNotFound, do(e, http.MethodPost, "/estimate/guess", overlapping).Code)
	require.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/estimate/lp", "requests: [").Code)

	noHosts := `
apps: [{cold_start: 1}]
requests: [{time: 0, duration: 1, app: 3}]
`
	require.Equal(t, http.StatusBadRequest, do(e, http.MethodPost, "/estimate/lp", noHosts).Code)
}

func TestEstimateAsyncAndPoll(t *testing.T) {
	e, _ := newTestServer()
	rec := do(e, http.MethodPost, "/estimate/lp?async=true", overlapping)
	require.Equal(t, http.StatusOK, rec.Code)

	var async AsyncResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &async))
	require.NotEmpty(t, async.ReqId)

	var resp Response
	require.Eventually(t, func() bool {
		rec := do(e, http.MethodGet, "/poll/"+async.ReqId, "")
		if rec.Code != http.StatusOK {
			return false
		}
		return json.Unmarshal(rec.Body.Bytes(), &resp) == nil
	}, 5*time.Second, 10*time.Millisecond)
	require.True(t, resp.Success)
	require.Equal(t, "lp", resp.Method)
	require.Equal(t, uint64(4), resp.Estimation.Ticks)

	require.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/poll/missing", "").Code)
}

func TestStatus(t *testing.T) {
	e, _ := newTestServer()
	do(e, http.MethodPost, "/estimate/pathcover", overlapping)
	do(e, http.MethodPost, "/estimate/pathcover", overlapping)

	rec := do(e, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st StatusInformation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, 1, st.Estimations)
	require.Equal(t, 1, st.CacheItems)
	require.Equal(t, int64(1), st.CacheHits)
	require.Contains(t, st.Backends, "simplex")
	require.Contains(t, st.Backends, "lpsolve")
	require.Equal(t, Methods, st.Methods)
}
