package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	t.Run("Should count outcomes and entities", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := New(reg)
		m.ObserveExtract(OutcomeOK, 10*time.Millisecond, 3)
		m.ObserveExtract(OutcomeInvalid, 0, 0)
		m.Fallback()
		m.CacheLookup(true)
		m.CacheLookup(false)
		m.CacheLookup(false)

		assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(OutcomeOK)))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues(OutcomeInvalid)))
		assert.Equal(t, 3.0, testutil.ToFloat64(m.entities))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbacks))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookup.WithLabelValues("miss")))
	})

	t.Run("Should be a no-op through a nil pointer", func(t *testing.T) {
		var m *Metrics
		m.ObserveExtract(OutcomeOK, time.Second, 1)
		m.Fallback()
		m.CacheLookup(true)
	})

	t.Run("Should serve the model state gauge", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		WatchModelState(reg, "fastino/gliner2-multi-v1", func() float64 { return 2 })

		rec := httptest.NewRecorder()
		Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		assert.Contains(t, rec.Body.String(), `nerapi_model_state{model="fastino/gliner2-multi-v1"} 2`)
	})
}
