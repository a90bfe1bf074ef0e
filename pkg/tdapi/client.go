// Package tdapi provides a Go client for the TD Ameritrade REST API.
//
// Authentication is delegated to a TokenProvider so callers can plug in a
// token source that renews credentials in the background.
package tdapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the production REST endpoint.
	DefaultBaseURL = "https://api.tdameritrade.com/v1"

	// DefaultRequestsPerMinute matches the API's per-application limit.
	DefaultRequestsPerMinute = 120
)

// TokenProvider is an interface for obtaining authentication tokens.
// Implementations should handle token caching and refresh logic internally.
type TokenProvider interface {
	// Token returns the current access token.
	Token() (string, error)
}

// TokenRefresher is optionally implemented by a TokenProvider that can
// force a new access token. It is used once after a 401 response.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) (string, error)
}

// Client handles HTTP requests to the TD Ameritrade API.
type Client struct {
	BaseURL       string
	TokenProvider TokenProvider
	HTTPClient    *http.Client

	limiter *rate.Limiter

	// staticToken is used when a fixed token is provided (no refresh capability)
	staticToken string
}

// NewClient creates a new API client with the given base URL and token provider.
// Requests are paced at DefaultRequestsPerMinute.
func NewClient(baseURL string, tokenProvider TokenProvider) *Client {
	return &Client{
		BaseURL:       strings.TrimSuffix(baseURL, "/"),
		TokenProvider: tokenProvider,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: newLimiter(DefaultRequestsPerMinute),
	}
}

// NewClientWithToken creates a new API client with a static token.
// The client will not attempt to refresh the token on 401 responses.
func NewClientWithToken(baseURL, token string) *Client {
	return &Client{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		staticToken: token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: newLimiter(DefaultRequestsPerMinute),
	}
}

// WithRateLimit replaces the request pacing. Zero or negative disables it.
func (c *Client) WithRateLimit(requestsPerMinute int) *Client {
	c.limiter = newLimiter(requestsPerMinute)
	return c
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	// Allow a short burst so a handful of parallel calls are not serialized.
	burst := perMinute / 12
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}

// Get performs a GET request to the specified path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, path)
}

// GetWithParams performs a GET request to the specified path with query parameters.
func (c *Client) GetWithParams(ctx context.Context, path string, params map[string]string) (*http.Response, error) {
	if len(params) > 0 {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		path = path + "?" + query.Encode()
	}
	return c.do(ctx, path)
}

// getToken returns the current authentication token.
func (c *Client) getToken() (string, error) {
	if c.TokenProvider != nil {
		return c.TokenProvider.Token()
	}
	return c.staticToken, nil
}

// refreshToken asks the provider for a newer token after a 401.
func (c *Client) refreshToken(ctx context.Context) (string, error) {
	if r, ok := c.TokenProvider.(TokenRefresher); ok {
		return r.RefreshToken(ctx)
	}
	return c.TokenProvider.Token()
}

// do performs a GET with auth header injection. On 401, if a TokenProvider
// is configured, it refreshes the token and retries once.
func (c *Client) do(ctx context.Context, path string) (*http.Response, error) {
	token, err := c.getToken()
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	resp, err := c.doOnce(ctx, path, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.TokenProvider != nil {
		_ = resp.Body.Close()

		newToken, refreshErr := c.refreshToken(ctx)
		if refreshErr != nil {
			// Refresh failed, re-do request to get a fresh response
			return c.doOnce(ctx, path, token)
		}

		return c.doOnce(ctx, path, newToken)
	}

	return resp, nil
}

// doOnce performs a single HTTP request.
func (c *Client) doOnce(ctx context.Context, path, token string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}
