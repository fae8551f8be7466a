package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSubmissionCountsOutcomes(t *testing.T) {
	before := testutil.ToFloat64(submissionsTotal.WithLabelValues("failure"))
	RecordSubmission(false)
	assert.Equal(t, before+1, testutil.ToFloat64(submissionsTotal.WithLabelValues("failure")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/wizard/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/wizard/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	n := testutil.CollectAndCount(httpRequestDuration, "flightclaim_http_request_duration_seconds")
	assert.GreaterOrEqual(t, n, 1)

	out := httptest.NewRecorder()
	Handler().ServeHTTP(out, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, out.Body.String(), `path="/v1/wizard/{id}"`)
}
