package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/qubicctl/internal/testutil/testlog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("mock-live", "GET", "/v1/tick-info", 200, 12*time.Millisecond)
	RecordUpstream("http", "tick-info", "200", 8*time.Millisecond, true)
	RecordDispatch("processed")
	SetDispatchDepth(2)
	SetNetworkTick(1500, 120)
	RecordTickStall()

	require.Equal(t, float64(2), testutil.ToFloat64(dispatchDepth))
	require.Equal(t, float64(1500), testutil.ToFloat64(networkTick))
	require.Equal(t, float64(120), testutil.ToFloat64(networkEpoch))
}

func newObservedRouter(service string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Observe(service, RouteOperations{
		"/v1/tick-info":          OpTickInfo,
		"/v1/querySmartContract": OpQuerySmartContract,
	}, Component("test")))
	r.GET("/v1/tick-info", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/v1/private", func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	})
	r.POST("/v1/querySmartContract", func(c *gin.Context) {
		TagContract(c, 8, 2)
		c.String(http.StatusOK, "ok")
	})
	return r
}

func serve(r *gin.Engine, method, path string) int {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec.Code
}

func TestObserveLabelsRequestsByOperation(t *testing.T) {
	testlog.Start(t)
	r := newObservedRouter("observe-ops")

	tick := httpRequests.WithLabelValues("observe-ops", "GET", OpTickInfo, "200")
	unmatched := httpRequests.WithLabelValues("observe-ops", "GET", opUnmatched, "404")
	beforeTick, beforeUnmatched := testutil.ToFloat64(tick), testutil.ToFloat64(unmatched)

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/tick-info"))
	require.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/v1/nope/123"))
	require.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/v1/nope/456"))

	require.Equal(t, beforeTick+1, testutil.ToFloat64(tick))
	require.Equal(t, beforeUnmatched+2, testutil.ToFloat64(unmatched))
}

func TestObserveCountsUnauthorized(t *testing.T) {
	testlog.Start(t)
	r := newObservedRouter("observe-auth")

	rejected := httpUnauthorized.WithLabelValues("observe-auth", opOther)
	before := testutil.ToFloat64(rejected)
	require.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/v1/private"))
	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/tick-info"))
	require.Equal(t, before+1, testutil.ToFloat64(rejected))
}

func TestObserveTagsContractQueries(t *testing.T) {
	testlog.Start(t)
	r := newObservedRouter("observe-ccf")

	calls := contractQueries.WithLabelValues("observe-ccf", "8", "2", "200")
	before := testutil.ToFloat64(calls)
	require.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/v1/querySmartContract"))
	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/v1/tick-info"))
	require.Equal(t, before+1, testutil.ToFloat64(calls))
}
