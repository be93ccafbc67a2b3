package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-assistant/llm/providers/shared"
)

func noSleep(t *RetryTransport) *[]time.Duration {
	var waits []time.Duration
	t.sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	return &waits
}

func TestRetryTransportRetriesRateLimitedGet(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	rt := NewRetryTransport(http.DefaultTransport, shared.ClientOptions{RetryMax: 3, RetryBackoff: time.Millisecond})
	waits := noSleep(rt)
	client := &http.Client{Transport: rt}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *waits, 2)
}

func TestRetryTransportReturnsLastResponseWhenExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rt := NewRetryTransport(http.DefaultTransport, shared.ClientOptions{RetryMax: 2, RetryBackoff: time.Millisecond})
	noSleep(rt)

	resp, err := (&http.Client{Transport: rt}).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryTransportDoesNotRetryPostByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rt := NewRetryTransport(http.DefaultTransport, shared.ClientOptions{RetryMax: 3})
	noSleep(rt)

	resp, err := (&http.Client{Transport: rt}).Post(srv.URL, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryTransportReplaysPostBody(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := NewRetryTransport(http.DefaultTransport, shared.ClientOptions{RetryMax: 2, RetryPost: true})
	noSleep(rt)

	resp, err := (&http.Client{Transport: rt}).Post(srv.URL, "application/json", strings.NewReader(`{"q":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`{"q":1}`, `{"q":1}`}, bodies)
}

func TestRetryTransportHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt := NewRetryTransport(http.DefaultTransport, shared.ClientOptions{RetryMax: 1, MaxBackoff: time.Minute})
	waits := noSleep(rt)

	resp, err := (&http.Client{Transport: rt}).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Len(t, *waits, 1)
	assert.Equal(t, 2*time.Second, (*waits)[0])
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	initial := 100 * time.Millisecond
	maxWait := time.Second

	for attempt := 1; attempt <= 8; attempt++ {
		d := Backoff(attempt, initial, maxWait)
		assert.LessOrEqual(t, d, maxWait, "attempt %d", attempt)
		assert.Greater(t, d, time.Duration(0))
	}

	// attempt 3 is in [200ms, 400ms].
	d := Backoff(3, initial, maxWait)
	assert.GreaterOrEqual(t, d, 200*time.Millisecond)
	assert.LessOrEqual(t, d, 400*time.Millisecond)
}

func TestHTTPClientGetJSONMapsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"name":"repo"}`))
		case "/auth":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(shared.ClientOptions{APIKey: "key", RetryMax: 0})

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, client.GetJSON(context.Background(), srv.URL+"/ok", nil, &out))
	assert.Equal(t, "repo", out.Name)

	err := client.GetJSON(context.Background(), srv.URL+"/auth", nil, &out)
	var pe *shared.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, shared.ErrAuth, pe.Code)
	assert.Contains(t, pe.Message, "Bad credentials")
}

func TestRateLimiterReusesLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter()
	a := rl.GetLimiter("api.github.com", 1, 1)
	b := rl.GetLimiter("api.github.com", 5, 5)
	c := rl.GetLimiter("hacker-news.firebaseio.com", 1, 1)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.True(t, a.Allow())
	assert.False(t, a.Allow())
}
