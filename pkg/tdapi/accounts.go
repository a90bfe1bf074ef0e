package tdapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Additional fields accepted by GetUserPrincipals.
const (
	FieldStreamerSubscriptionKeys = "streamerSubscriptionKeys"
	FieldStreamerConnectionInfo   = "streamerConnectionInfo"
	FieldPreferences              = "preferences"
	FieldSurrogateIDs             = "surrogateIds"
)

// GetUserPrincipals retrieves the authenticated user's principals.
// Duplicate fields are dropped.
func (c *Client) GetUserPrincipals(ctx context.Context, fields ...string) (*UserPrincipals, error) {
	params := map[string]string{}
	if f := uniqueJoin(fields); f != "" {
		params["fields"] = f
	}

	resp, err := c.GetWithParams(ctx, "/userprincipals", params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return nil, err
	}

	var principals UserPrincipals
	if err := DecodeJSON(resp, &principals); err != nil {
		return nil, err
	}
	return &principals, nil
}

// GetAccounts retrieves all linked accounts. Fields may include
// "positions" and "orders".
func (c *Client) GetAccounts(ctx context.Context, fields ...string) ([]SecuritiesAccount, error) {
	params := map[string]string{}
	if f := uniqueJoin(fields); f != "" {
		params["fields"] = f
	}

	resp, err := c.GetWithParams(ctx, "/accounts", params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return nil, err
	}

	var envelopes []AccountEnvelope
	if err := DecodeJSON(resp, &envelopes); err != nil {
		return nil, err
	}

	accounts := make([]SecuritiesAccount, 0, len(envelopes))
	for _, e := range envelopes {
		accounts = append(accounts, e.SecuritiesAccount)
	}
	return accounts, nil
}

// GetAccount retrieves a single account.
func (c *Client) GetAccount(ctx context.Context, accountID string, fields ...string) (*SecuritiesAccount, error) {
	if accountID == "" {
		return nil, fmt.Errorf("accountID is required")
	}

	params := map[string]string{}
	if f := uniqueJoin(fields); f != "" {
		params["fields"] = f
	}

	resp, err := c.GetWithParams(ctx, "/accounts/"+url.PathEscape(accountID), params)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return nil, err
	}

	var envelope AccountEnvelope
	if err := DecodeJSON(resp, &envelope); err != nil {
		return nil, err
	}
	return &envelope.SecuritiesAccount, nil
}

func uniqueJoin(fields []string) string {
	seen := make(map[string]bool, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return strings.Join(out, ",")
}
