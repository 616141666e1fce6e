package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMetricsManager_Counters(t *testing.T) {
	mm := NewMetricsManager(zap.NewNop().Sugar())

	mm.SessionOpened()
	mm.SessionOpened()
	mm.SessionClosed("deleted")
	mm.RecordClaim("claimed")
	mm.RecordClaim("not_found")
	mm.RecordClaim("not_found")
	mm.RecordGateDenial("both")
	mm.RecordOAuthCallback("github", StatusSuccess)
	mm.SetPendingEntries(3)
	mm.RecordUpstream("clickup", 502, 10*time.Millisecond)
	mm.RecordUpstream("clickup", 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(mm.sessionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(mm.sessionsOpened))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.sessionsClosed.WithLabelValues("deleted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mm.claims.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.gateDenials.WithLabelValues("both")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.callbacks.WithLabelValues("github", StatusSuccess)))
	assert.Equal(t, 3.0, testutil.ToFloat64(mm.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.upstreamCalls.WithLabelValues("clickup", "5xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.upstreamCalls.WithLabelValues("clickup", "none")))
}

func TestMetricsManager_NilReceiver(t *testing.T) {
	var mm *MetricsManager
	assert.NotPanics(t, func() {
		mm.SessionOpened()
		mm.RecordClaim("claimed")
		mm.RecordUpstream("github", 200, time.Millisecond)
		mm.SetPendingEntries(1)
	})
}

func TestMetricsManager_HTTPMiddlewareAndHandler(t *testing.T) {
	mm := NewMetricsManager(zap.NewNop().Sugar())

	h := mm.HTTPMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	for _, path := range []string{"/mcp", "/mcp", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(mm.httpRequests.WithLabelValues("POST", "/mcp", "202")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mm.httpRequests.WithLabelValues("POST", "unmatched", "404")))

	srv := httptest.NewServer(mm.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "devbridge_http_requests_total")
	assert.Contains(t, string(body), "devbridge_uptime_seconds")
}
