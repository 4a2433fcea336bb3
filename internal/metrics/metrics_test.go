package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersUpdateCounters(t *testing.T) {
	m := New()

	m.RecordSale("Cash", 3)
	m.RecordItemsSold(2)
	m.RecordPayment("Cash")
	m.RecordSaleDeleted(1)
	m.RecordStockRejection()
	m.RecordHTTPRequest(http.MethodPost, "/api/v1/sales", http.StatusCreated, 20*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.salesCreated.WithLabelValues("Cash")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.itemsSold))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.paymentsRecorded.WithLabelValues("Cash")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.salesDeleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.restoresSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stockRejections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/api/v1/sales", "201")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSale("Cash", 1)
		m.RecordPayment("Cash")
		m.RecordSaleDeleted(0)
		m.RecordStockRejection()
		m.RecordHTTPRequest("GET", "/healthz", 200, time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.RecordStockRejection()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "dressify_stock_rejections_total 1"))
}
