package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareRecordsStatusAndRoute(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/cache/{key}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/v1/tools/scrape", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	})

	ok := httpRequestsTotal.WithLabelValues("GET", "200")
	gone := httpRequestsTotal.WithLabelValues("POST", "410")
	ok0, gone0 := testutil.ToFloat64(ok), testutil.ToFloat64(gone)

	ts := httptest.NewServer(r)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/cache/apple")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	resp, err = http.Post(ts.URL+"/v1/tools/scrape", "application/json", nil)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	require.InDelta(t, 1, testutil.ToFloat64(ok)-ok0, 0)
	require.InDelta(t, 1, testutil.ToFloat64(gone)-gone0, 0)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}
