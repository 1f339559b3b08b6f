package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ItemStatus("accepted")
		m.BatchScheduled(nil)
		m.OperationSettled("complete")
		m.StatusWrite("updated")
		m.Reconciled(time.Second, 1, 1, 1, 1)
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNew(reg)

	m.ItemStatus("accepted")
	m.ItemStatus("accepted")
	m.ItemStatus("rejected")
	m.BatchScheduled(errors.New("redis down"))
	m.Reconciled(10*time.Millisecond, 2, 1, 0, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.itemsSubmitted.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.itemsSubmitted.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchesScheduled.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.galleryRows.WithLabelValues("inserted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.galleryRows.WithLabelValues("invalid")))
}

func TestMustNew_ToleratesDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNew(reg)

	var second *Metrics
	assert.NotPanics(t, func() { second = MustNew(reg) })
	second.OperationSettled("complete")
	assert.Equal(t, 1.0, testutil.ToFloat64(first.operations.WithLabelValues("complete")))
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNew(reg)
	m.OperationSettled("complete")

	app := fiber.New()
	app.Get("/metrics", Handler(reg))

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, string(body), `gallerysync_consumer_operations_total{status="complete"} 1`)
}
