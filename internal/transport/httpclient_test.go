package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_Ok(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"stat":"ok"}`))
	}))
	defer srv.Close()

	c, err := New(Settings{Timeout: time.Second})
	require.NoError(t, err)

	resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, Ok, resp.Result)
	assert.Equal(t, `{"stat":"ok"}`, string(resp.Body))
}

func TestDo_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := New(Settings{Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
}

func TestDo_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := New(Settings{Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
}

func TestDo_CancelledViaInterruptFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Settings{Timeout: time.Second})
	require.NoError(t, err)

	var interrupted atomic.Int32
	interrupted.Store(1)

	_, err = c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL, Interrupted: &interrupted})
	require.Error(t, err)
}

func TestDo_RetriesOnTimeoutThenGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Settings{Timeout: 10 * time.Millisecond, MaxRetry: 2})
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.Error(t, err)
	// Should have attempted MaxRetry+1 = 3 times, each bounded by the 10ms
	// client timeout, well under the 100ms handler sleep each time.
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}
