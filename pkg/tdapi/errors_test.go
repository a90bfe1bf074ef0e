package tdapi

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "with message",
			err:      &APIError{StatusCode: 400, Message: "Invalid request"},
			expected: "API error (400): Invalid request",
		},
		{
			name:     "without message uses status text",
			err:      &APIError{StatusCode: 404},
			expected: "API error (404): Not Found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAPIError_StatusChecks(t *testing.T) {
	tests := []struct {
		name           string
		statusCode     int
		isUnauthorized bool
		isRateLimited  bool
	}{
		{"401", 401, true, false},
		{"429", 429, false, true},
		{"404", 404, false, false},
		{"500", 500, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{StatusCode: tt.statusCode}
			assert.Equal(t, tt.isUnauthorized, err.IsUnauthorized())
			assert.Equal(t, tt.isRateLimited, err.IsRateLimited())
		})
	}
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestCheckResponse(t *testing.T) {
	assert.NoError(t, CheckResponse(response(200, "")))

	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error field", 400, `{"error":"Bad symbol"}`, "Bad symbol"},
		{"message field", 403, `{"message":"Forbidden here"}`, "Forbidden here"},
		{"empty json", 500, `{}`, ""},
		{"plain text first line", 500, "Gateway exploded\nstack trace", "Gateway exploded"},
		{"html is dropped", 502, "<html><body>Bad Gateway</body></html>", ""},
		{"empty body", 404, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckResponse(response(tt.status, tt.body))
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestCheckResponse_LongTextIsTruncated(t *testing.T) {
	err := CheckResponse(response(500, strings.Repeat("x", 500)))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Len(t, apiErr.Message, maxErrorText+3)
}

func TestCheckResponse_RetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"30", 30 * time.Second},
		{" 5 ", 5 * time.Second},
		{"", 0},
		{"0", 0},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			resp := response(http.StatusTooManyRequests, `{"error":"Individual App's transactions per seconds restriction reached."}`)
			resp.Header.Set("Retry-After", tt.header)

			var apiErr *APIError
			require.ErrorAs(t, CheckResponse(resp), &apiErr)
			assert.True(t, apiErr.IsRateLimited())
			assert.Equal(t, tt.want, apiErr.RetryAfter)
		})
	}
}

func TestDecodeJSON_Invalid(t *testing.T) {
	var out map[string]any
	err := DecodeJSON(response(200, "{"), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}
