package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTool(t *testing.T) {
	m := New("test")

	m.ObserveTool("get_latest_price", "success", 20*time.Millisecond)
	m.ObserveTool("get_latest_price", "success", 30*time.Millisecond)
	m.ObserveTool("get_latest_price", "error", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("get_latest_price", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.toolCalls.WithLabelValues("get_latest_price", "error")))
}

func TestObserveBrokerRequest(t *testing.T) {
	m := New("test")

	m.ObserveBrokerRequest("/orders/", 200, time.Millisecond)
	m.ObserveBrokerRequest("/orders/", 0, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.brokerRequests.WithLabelValues("/orders/", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.brokerRequests.WithLabelValues("/orders/", "error")))
}

func TestObserveAnalysis(t *testing.T) {
	m := New("test")

	m.ObserveAnalysis(48.5, 2)
	m.ObserveAnalysis(-3, 1)

	assert.Equal(t, -3.0, testutil.ToFloat64(m.lastTotalProfit))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.skippedOrders))
}

func TestHandler(t *testing.T) {
	m := New("test")
	m.ObserveTool("login", "success", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_tool_calls_total{status="success",tool="login"} 1`)
}
