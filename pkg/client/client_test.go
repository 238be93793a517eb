package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/dockpipe/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts = append([]Option{WithRetryWait(time.Millisecond, 2*time.Millisecond)}, opts...)
	c, err := NewClient(server.URL+"/", opts...)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	_, err = NewClient("ftp://host")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidParam))

	c, err := NewClient("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.Equal(t, 3, c.retryMax)
	assert.Contains(t, c.userAgent, "dockpipe-go-client/")
}

func TestOptions(t *testing.T) {
	hc := &http.Client{Timeout: time.Second}
	c, err := NewClient("http://x", WithHTTPClient(hc), WithRetryMax(0), WithUserAgent("ua"),
		WithRetryWait(time.Second, time.Millisecond))
	require.NoError(t, err)
	assert.Same(t, hc, c.httpClient)
	assert.Equal(t, 0, c.retryMax)
	assert.Equal(t, "ua", c.userAgent)
	assert.Equal(t, time.Second, c.retryWaitMin)
	assert.Equal(t, 5*time.Second, c.retryWaitMax)
}

func TestTop(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/results/top/2", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count":2,"entries":[{"rank":1,"name":"b","score":-9.1},{"rank":2,"name":"a","score":-8}]}`))
	})

	r, err := c.Top(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, 2, r.Count)
	assert.Equal(t, Entry{Rank: 1, Name: "b", Score: -9.1}, r.Entries[0])
}

func TestRuns_Query(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/runs", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "rec.pdbqt", r.URL.Query().Get("receptor"))
		_, _ = w.Write([]byte(`{"count":1,"runs":[{"id":"r1","status":"succeeded","duration":1500000000}]}`))
	})

	list, err := c.Runs(context.Background(), "rec.pdbqt", 5)
	require.NoError(t, err)
	require.Len(t, list.Runs, 1)
	assert.Equal(t, "r1", list.Runs[0].ID)
	assert.Equal(t, 1500*time.Millisecond, list.Runs[0].Duration)
}

func TestLeaderboard_EscapesReceptor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/leaderboard/my rec.pdbqt", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"count":0,"entries":[]}`))
	})
	_, err := c.Leaderboard(context.Background(), "my rec.pdbqt", 0)
	require.NoError(t, err)
}

func TestAPIError_NotFoundIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":"COMMON_005","message":"run nope"}`))
	})

	_, err := c.Run(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "run nope", apiErr.Message)
	assert.NotEmpty(t, apiErr.RequestID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestAPIError_UnavailableIsNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":"COMMON_014","message":"archive storage is not configured"}`))
	})

	_, err := c.Archive(context.Background(), "r1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsUnavailable())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestServerErrorIsRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"count":0,"entries":[]}`))
	})

	r, err := c.Results(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, r.Count)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestServerErrorGivesUpAfterRetryMax(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, WithRetryMax(1))

	_, err := c.Results(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestCalculateBackoff_Capped(t *testing.T) {
	c, err := NewClient("http://x", WithRetryWait(100*time.Millisecond, 300*time.Millisecond))
	require.NoError(t, err)
	for attempt := 1; attempt <= 6; attempt++ {
		b := c.calculateBackoff(attempt)
		assert.GreaterOrEqual(t, b, 100*time.Millisecond)
		assert.LessOrEqual(t, b, 375*time.Millisecond)
	}
}
