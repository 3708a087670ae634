package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSleep records requested waits instead of sleeping.
func fakeSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestRetryOnServerErrorThenSuccess(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(zap.NewNop())
	var waits []time.Duration
	c.sleep = fakeSleep(&waits)

	body, err := c.Do(context.Background(), http.MethodGet, srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, 4, attempts)
	// Exponential schedule: 1s, 2s, 4s.
	require.Len(t, waits, 3)
	assert.Equal(t, 1*time.Second, waits[0])
	assert.Equal(t, 2*time.Second, waits[1])
	assert.Equal(t, 4*time.Second, waits[2])
}

func TestRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(zap.NewNop())
	var waits []time.Duration
	c.sleep = fakeSleep(&waits)

	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, Options{})
	require.Error(t, err)
	te, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindServer, te.Kind)
	assert.Equal(t, http.StatusBadGateway, te.Status)
	assert.Len(t, waits, 3)
}

func TestRetryAfterHeaderHonored(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(zap.NewNop())
	var waits []time.Duration
	c.sleep = fakeSleep(&waits)

	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, Options{})
	require.NoError(t, err)
	require.Len(t, waits, 1)
	assert.GreaterOrEqual(t, waits[0], 2*time.Second)
}

func TestNonRetryableClientError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"message is required"}`))
	}))
	defer srv.Close()

	c := New(zap.NewNop())
	var waits []time.Duration
	c.sleep = fakeSleep(&waits)

	_, err := c.Do(context.Background(), http.MethodPost, srv.URL, Options{Body: map[string]string{}})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, waits)

	te, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindValidation, te.Kind)
	assert.Equal(t, "message is required", te.Message)
}

func TestErrorMessageFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := New(zap.NewNop())
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Request failed: 400")
}

func TestAuthErrorClassification(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		c := New(zap.NewNop())
		_, err := c.Do(context.Background(), http.MethodGet, srv.URL, Options{})
		require.Error(t, err)
		assert.True(t, IsAuth(err), "status %d should classify as auth", status)
		srv.Close()
	}
}

func TestNotFoundClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(zap.NewNop())
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, Options{})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestNetworkFailureRetries(t *testing.T) {
	// Point at a server that is already closed.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New(zap.NewNop())
	var waits []time.Duration
	c.sleep = fakeSleep(&waits)

	_, err := c.Do(context.Background(), http.MethodGet, url, Options{})
	require.Error(t, err)
	te, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindNetwork, te.Kind)
	assert.Len(t, waits, 3)
}

func TestBearerTokenHeader(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := New(zap.NewNop())
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, Options{BearerToken: "tok-1"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", got)
}
