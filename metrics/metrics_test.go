package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/billbatista/acasinha-debts/eventlogger"
	"github.com/billbatista/acasinha-debts/ledger"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/debts/{debtID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 2; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, fmt.Sprintf("/debts/%d", i), nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requestsTotal.WithLabelValues("/debts/{debtID}", "404")))
}

func TestDebtMutationOutcomes(t *testing.T) {
	m := New()
	m.DebtMutation("create", nil)
	m.DebtMutation("create", ledger.ErrEmptyName)
	m.DebtMutation("edit_record", ledger.ErrRecordNotFound)
	m.DebtMutation("edit_record", ledger.ErrConflict)
	m.DebtMutation("delete_record", ledger.ErrLastRecord)
	m.DebtMutation("delete_debt", errors.New("connection reset"))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.mutationsTotal.WithLabelValues("create", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.mutationsTotal.WithLabelValues("create", "invalid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.mutationsTotal.WithLabelValues("edit_record", "not_found")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.mutationsTotal.WithLabelValues("edit_record", "conflict")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.mutationsTotal.WithLabelValues("delete_record", "rejected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.mutationsTotal.WithLabelValues("delete_debt", "error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.EventDropped(eventlogger.NewEvent(eventlogger.WithType("debt.created")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `debts_events_dropped_total{event_type="debt.created"} 1`))
}

func TestRecorderFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
	var _ http.Flusher = sr
	sr.Flush()
	assert.True(t, rec.Flushed)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.DebtMutation("create", nil)
	m.EventDropped(eventlogger.Event{})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
