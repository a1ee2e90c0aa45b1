package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lox/barowatch/internal/pressure"
	"github.com/lox/barowatch/internal/store"
)

const sampleResponse = `{
  "latitude": 33.6,
  "longitude": 133.0,
  "timezone": "Asia/Tokyo",
  "hourly_units": {"time": "iso8601", "pressure_msl": "hPa"},
  "hourly": {
    "time": ["2025-03-01T00:00", "2025-03-01T01:00", "2025-03-01T02:00", "2025-03-01T03:00"],
    "pressure_msl": [101325, 1012.5, 1011.0, null]
  }
}`

type fakeRecorder struct {
	runs     []*store.FetchRun
	payloads [][]byte
}

func (f *fakeRecorder) StartFetchRun(source, endpoint, location string) (*store.FetchRun, error) {
	run := &store.FetchRun{ID: int64(len(f.runs) + 1), Source: source, Endpoint: endpoint}
	f.runs = append(f.runs, run)
	return run, nil
}

func (f *fakeRecorder) CompleteFetchRun(run *store.FetchRun) error { return nil }

func (f *fakeRecorder) StoreRawPayload(runID int64, source, endpoint, location string, payload []byte) (int64, error) {
	f.payloads = append(f.payloads, payload)
	return int64(len(f.payloads)), nil
}

func newTestClient(t *testing.T, url string, recorder FetchRecorder) *OpenMeteo {
	t.Helper()
	return NewOpenMeteo(OpenMeteoConfig{
		BaseURL:         url,
		Timezone:        "Asia/Tokyo",
		Timeout:         5 * time.Second,
		RetryMaxElapsed: 2 * time.Second,
	}, recorder, zap.NewNop())
}

func TestOpenMeteo_FetchSeries(t *testing.T) {
	var query map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/jma", r.URL.Path)
		q := r.URL.Query()
		query = map[string]string{
			"latitude":      q.Get("latitude"),
			"longitude":     q.Get("longitude"),
			"hourly":        q.Get("hourly"),
			"timezone":      q.Get("timezone"),
			"forecast_days": q.Get("forecast_days"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	samples, err := newTestClient(t, srv.URL, rec).FetchSeries(context.Background(), 33.59, 132.97)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"latitude":      "33.5900",
		"longitude":     "132.9700",
		"hourly":        "pressure_msl",
		"timezone":      "Asia/Tokyo",
		"forecast_days": "2",
	}, query)

	require.Len(t, samples, 3, "series stops at the first null")
	assert.Equal(t, pressure.Sample{Label: "2025-03-01 00:00", HPa: 1013.25}, samples[0])
	assert.Equal(t, 1012.5, samples[1].HPa)

	require.Len(t, rec.runs, 1)
	assert.True(t, rec.runs[0].Success)
	assert.Equal(t, int64(3), rec.runs[0].SamplesParsed.Int64)
	assert.Len(t, rec.payloads, 1)
}

func TestOpenMeteo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	samples, err := newTestClient(t, srv.URL, nil).FetchSeries(context.Background(), 33.59, 132.97)
	require.NoError(t, err)
	assert.Len(t, samples, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenMeteo_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":true,"reason":"Latitude must be in range of -90 to 90°."}`))
	}))
	defer srv.Close()

	rec := &fakeRecorder{}
	_, err := newTestClient(t, srv.URL, rec).FetchSeries(context.Background(), 133, 33)

	var upstream *pressure.UpstreamError
	require.True(t, errors.As(err, &upstream), "err = %v", err)
	assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
	assert.Equal(t, int32(1), calls.Load())

	require.Len(t, rec.runs, 1)
	assert.False(t, rec.runs[0].Success)
	assert.True(t, rec.runs[0].ErrorMessage.Valid)
}

func TestOpenMeteo_PersistentServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).FetchSeries(context.Background(), 33.59, 132.97)

	var upstream *pressure.UpstreamError
	require.True(t, errors.As(err, &upstream), "err = %v", err)
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode)
}

func TestOpenMeteo_MissingVariable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hourly":{"time":["2025-03-01T00:00"],"surface_pressure":[1000.1]}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).FetchSeries(context.Background(), 33.59, 132.97)
	assert.True(t, errors.Is(err, pressure.ErrDataUnavailable), "err = %v", err)
}

func TestOpenMeteo_AllNull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hourly":{"time":["2025-03-01T00:00"],"pressure_msl":[null]}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).FetchSeries(context.Background(), 33.59, 132.97)
	assert.True(t, errors.Is(err, pressure.ErrDataUnavailable), "err = %v", err)
}

func TestForecastDays(t *testing.T) {
	tests := []struct {
		horizon int
		want    int
	}{
		{1, 1},
		{24, 1},
		{25, 2},
		{48, 2},
		{72, 3},
	}
	for _, tt := range tests {
		if got := forecastDays(tt.horizon); got != tt.want {
			t.Errorf("forecastDays(%d) = %d, want %d", tt.horizon, got, tt.want)
		}
	}
}
