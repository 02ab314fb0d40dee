package fingerprint

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sodav-monitor/sodav/pkg/isrc"
	"github.com/sodav-monitor/sodav/pkg/observability"
)

func testConfig(url string) Config {
	cfg := DefaultConfig()
	cfg.AcoustIDURL = url
	cfg.AudDURL = url
	cfg.AcoustIDKey = "acoustid-key"
	cfg.AudDToken = "audd-token"
	cfg.Timeout = 2 * time.Second
	cfg.Breaker = BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, MinRequests: 2, FailureRatio: 0.5}
	return cfg
}

func TestAcoustIDClient_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "acoustid-key", r.PostForm.Get("client"))
		assert.Equal(t, "AQADtMmybfGO8", r.PostForm.Get("fingerprint"))
		assert.Equal(t, "30", r.PostForm.Get("duration"))
		assert.Equal(t, "recordings isrcs", r.PostForm.Get("meta"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","results":[{"id":"a","score":0.97,"recordings":[{"id":"r","isrcs":["FRGFV9400246"]}]}]}`))
	}))
	defer srv.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	client := NewAcoustIDClient(testConfig(srv.URL), metrics, nil)

	resp, err := client.Lookup(context.Background(), "AQADtMmybfGO8", 30)
	require.NoError(t, err)
	code, ok := isrc.ExtractFromAcoustID(resp)
	assert.True(t, ok)
	assert.Equal(t, "FRGFV9400246", code)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProviderRequestsTotal.WithLabelValues("acoustid", "success")))
}

func TestAcoustIDClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","error":{"message":"invalid API key"}}`))
	}))
	defer srv.Close()

	_, err := NewAcoustIDClient(testConfig(srv.URL), nil, nil).Lookup(context.Background(), "fp", 10)
	assert.ErrorContains(t, err, `status "error"`)
	assert.NotErrorIs(t, err, ErrProviderUnavailable)
}

func TestAudDClient_Recognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "audd-token", r.PostForm.Get("api_token"))
		assert.Equal(t, "https://cdn.sodav.sn/clips/1.mp3", r.PostForm.Get("url"))
		assert.Equal(t, "apple_music,spotify", r.PostForm.Get("return"))
		w.Write([]byte(`{"status":"success","result":{"artist":"Youssou N'Dour","title":"7 Seconds","spotify":{"external_ids":{"isrc":"GBAYE6900001"}}}}`))
	}))
	defer srv.Close()

	resp, err := NewAudDClient(testConfig(srv.URL), nil, nil).Recognize(context.Background(), "https://cdn.sodav.sn/clips/1.mp3")
	require.NoError(t, err)
	code, ok := isrc.ExtractFromAudD(resp)
	assert.True(t, ok)
	assert.Equal(t, "GBAYE6900001", code)
	assert.Equal(t, "7 Seconds", resp.Result.Title)
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	client := NewAudDClient(testConfig(srv.URL), metrics, nil)

	for i := 0; i < 2; i++ {
		_, err := client.Recognize(context.Background(), "https://cdn.sodav.sn/x.mp3")
		assert.ErrorIs(t, err, ErrProviderUnavailable)
		var status *StatusError
		assert.True(t, errors.As(err, &status))
	}

	_, err := client.Recognize(context.Background(), "https://cdn.sodav.sn/x.mp3")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.Equal(t, int32(2), calls.Load(), "open breaker fails fast")
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ProviderBreakerState.WithLabelValues("audd")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProviderRequestsTotal.WithLabelValues("audd", "rejected")))
}

func TestBreaker_ClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewAcoustIDClient(testConfig(srv.URL), nil, nil)
	for i := 0; i < 5; i++ {
		_, err := client.Lookup(context.Background(), "fp", 10)
		var status *StatusError
		require.True(t, errors.As(err, &status))
		assert.Equal(t, http.StatusBadRequest, status.Code)
		assert.NotErrorIs(t, err, ErrProviderUnavailable)
	}
	assert.Equal(t, "closed", client.breaker.State().String())
}

func TestBreaker_UnreachableProvider(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewAcoustIDClient(testConfig(url), nil, nil).Lookup(context.Background(), "fp", 10)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}
