package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTokenURL is the production token endpoint.
const DefaultTokenURL = "https://api.tdameritrade.com/v1/oauth2/token"

// Grant types and access types sent to the token endpoint.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"

	AccessTypeOffline = "offline"
)

// ExchangeRequest is the form posted to the token endpoint. Empty fields are
// still sent.
type ExchangeRequest struct {
	GrantType    string
	RefreshToken string
	AccessType   string
	Code         string
	ClientID     string
	RedirectURI  string
}

// target names the token(s) the request is expected to produce.
func (r ExchangeRequest) target() string {
	switch {
	case r.GrantType == GrantAuthorizationCode:
		return "both"
	case r.AccessType == AccessTypeOffline:
		return "refresh"
	default:
		return "access"
	}
}

func (r ExchangeRequest) form() url.Values {
	return url.Values{
		"grant_type":    {r.GrantType},
		"refresh_token": {r.RefreshToken},
		"access_type":   {r.AccessType},
		"code":          {r.Code},
		"client_id":     {r.ClientID},
		"redirect_uri":  {r.RedirectURI},
	}
}

// ExchangeResponse is the token endpoint's reply. Either token may be absent
// depending on the grant.
type ExchangeResponse struct {
	AccessToken           string `json:"access_token"`
	RefreshToken          string `json:"refresh_token"`
	TokenType             string `json:"token_type"`
	ExpiresIn             int64  `json:"expires_in"`
	RefreshTokenExpiresIn int64  `json:"refresh_token_expires_in"`
	Scope                 string `json:"scope"`
}

// Exchanger performs one call to the token endpoint.
type Exchanger interface {
	Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error)
}

// HTTPExchanger posts form-encoded requests to a token endpoint.
type HTTPExchanger struct {
	TokenURL   string
	HTTPClient *http.Client
}

// NewHTTPExchanger returns an exchanger for tokenURL with a 30 second timeout.
// An empty tokenURL selects DefaultTokenURL.
func NewHTTPExchanger(tokenURL string) *HTTPExchanger {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &HTTPExchanger{
		TokenURL:   tokenURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Exchange posts req and decodes the response. Every failure is an
// *ExchangeError.
func (e *HTTPExchanger) Exchange(ctx context.Context, req ExchangeRequest) (*ExchangeResponse, error) {
	fail := func(status int, body string, err error) error {
		return &ExchangeError{Grant: req.GrantType, Token: req.target(), StatusCode: status, Body: body, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.TokenURL, strings.NewReader(req.form().Encode()))
	if err != nil {
		return nil, fail(0, "", fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fail(0, "", fmt.Errorf("failed to exchange token: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fail(resp.StatusCode, strings.TrimSpace(string(body)), nil)
	}

	var out ExchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fail(resp.StatusCode, "", fmt.Errorf("failed to decode response: %w", err))
	}
	return &out, nil
}
