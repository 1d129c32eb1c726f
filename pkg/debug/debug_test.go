package debug

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, mux http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadiness(t *testing.T) {
	t.Cleanup(func() {
		SetNotReady()
		SetReadyCheck(nil)
	})

	mux := GetMux()
	assert.Equal(t, http.StatusOK, get(t, mux, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, mux, "/ready").Code)

	SetReady()
	assert.Equal(t, http.StatusOK, get(t, mux, "/ready").Code)

	SetReadyCheck(func() bool { return false })
	assert.Equal(t, http.StatusServiceUnavailable, get(t, mux, "/ready").Code)
}

func TestMetricsAndCustomHandlers(t *testing.T) {
	RegisterHandlerFunc("/tables", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("PUB.tbl1\n"))
	})

	mux := GetMux()

	rec := get(t, mux, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "go_goroutines"))

	rec = get(t, mux, "/tables")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PUB.tbl1\n", rec.Body.String())
}

func TestRegister_ReusesExistingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	newCounter := func() prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: "zaptable_test_total", Help: "test"})
	}

	first := Register(reg, newCounter())
	second := Register(reg, newCounter())
	assert.Same(t, first, second)

	unregistered := newCounter()
	assert.Same(t, unregistered, Register(nil, unregistered))
}
