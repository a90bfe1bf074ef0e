package tdapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTokenProvider implements TokenProvider for testing.
type mockTokenProvider struct {
	token string
	err   error
	calls int
}

func (m *mockTokenProvider) Token() (string, error) {
	m.calls++
	return m.token, m.err
}

// mockRefresher also implements TokenRefresher.
type mockRefresher struct {
	mockTokenProvider
	refreshed  string
	refreshErr error
	refreshes  int
}

func (m *mockRefresher) RefreshToken(_ context.Context) (string, error) {
	m.refreshes++
	return m.refreshed, m.refreshErr
}

func newTestClient(url string, provider TokenProvider) *Client {
	return NewClient(url, provider).WithRateLimit(0)
}

func TestNewClient(t *testing.T) {
	provider := &mockTokenProvider{token: "test-token"}
	client := NewClient("https://api.example.com", provider)

	assert.NotNil(t, client)
	assert.Equal(t, "https://api.example.com", client.BaseURL)
	assert.NotNil(t, client.HTTPClient)
	assert.NotNil(t, client.limiter)
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	provider := &mockTokenProvider{token: "test-token"}
	client := NewClient("https://api.example.com/", provider)

	assert.Equal(t, "https://api.example.com", client.BaseURL)
}

func TestClient_WithRateLimitDisabled(t *testing.T) {
	client := NewClient("https://api.example.com", nil).WithRateLimit(0)
	assert.Nil(t, client.limiter)
}

func TestNewLimiter_Burst(t *testing.T) {
	assert.Equal(t, 10, newLimiter(120).Burst())
	assert.Equal(t, 1, newLimiter(5).Burst())
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/test-path", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	provider := &mockTokenProvider{token: "test-token"}
	client := newTestClient(server.URL, provider)

	resp, err := client.Get(context.Background(), "/test-path")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, `{"status":"ok"}`, string(body))
}

func TestClient_GetWithParams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/test", r.URL.Path)
		assert.Equal(t, "value1", r.URL.Query().Get("key1"))
		assert.Equal(t, "value2", r.URL.Query().Get("key2"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &mockTokenProvider{token: "test-token"})

	params := map[string]string{"key1": "value1", "key2": "value2"}
	resp, err := client.GetWithParams(context.Background(), "/test", params)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_RequestHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL, &mockTokenProvider{token: "test-token"})

	resp, err := client.Get(context.Background(), "/marketdata/quotes")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_TokenProviderError(t *testing.T) {
	client := newTestClient("http://unused", &mockTokenProvider{err: errors.New("no token")})

	_, err := client.Get(context.Background(), "/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get token")
}

func TestClient_TokenRefreshOn401(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if callCount == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer new-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := &mockTokenProvider{token: "old-token"}
	client := newTestClient(server.URL, provider)

	// After first 401, provider returns new token
	provider.token = "new-token"

	resp, err := client.Get(context.Background(), "/protected")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, callCount, "should have made 2 requests (original + retry)")
	assert.Equal(t, 2, provider.calls, "should have called token provider twice")
}

func TestClient_ForcedRefreshOn401(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		if len(seen) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := &mockRefresher{
		mockTokenProvider: mockTokenProvider{token: "stale"},
		refreshed:         "forced",
	}
	client := newTestClient(server.URL, provider)

	resp, err := client.Get(context.Background(), "/protected")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, []string{"Bearer stale", "Bearer forced"}, seen)
	assert.Equal(t, 1, provider.refreshes)
	assert.Equal(t, 1, provider.calls)
}

func TestClient_RefreshFailureRetriesWithOldToken(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := &mockRefresher{
		mockTokenProvider: mockTokenProvider{token: "stale"},
		refreshErr:        errors.New("exchange failed"),
	}
	client := newTestClient(server.URL, provider)

	resp, err := client.Get(context.Background(), "/protected")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, []string{"Bearer stale", "Bearer stale"}, seen)
}

func TestClient_NoRetryOn401WithoutProvider(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClientWithToken(server.URL, "static-token").WithRateLimit(0)

	resp, err := client.Get(context.Background(), "/protected")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, callCount, "should only make 1 request without provider")
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	client := NewClientWithToken("http://unused", "t").WithRateLimit(1)
	// Drain the single burst token.
	require.True(t, client.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, "/x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
}

func TestNewClientWithToken(t *testing.T) {
	client := NewClientWithToken("https://api.example.com", "my-token")

	assert.NotNil(t, client)
	assert.Equal(t, "https://api.example.com", client.BaseURL)
	assert.Nil(t, client.TokenProvider)
}
