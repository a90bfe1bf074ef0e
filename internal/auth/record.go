// Package auth manages TD Ameritrade OAuth2 credentials: it classifies token
// expiry, exchanges codes and refresh tokens, persists the result and keeps
// the access token renewed in the background.
package auth

import "time"

const (
	// ExpiryUnset marks an expiry that is unknown. Any value <= 0 is unset.
	ExpiryUnset int64 = -1

	// AccessTokenLifetime is how long a freshly issued access token lives.
	AccessTokenLifetime = 1800 * time.Second

	// RefreshTokenLifetime is how long a freshly issued refresh token lives.
	RefreshTokenLifetime = 7776000 * time.Second
)

// TokenRecord is the persisted credential state. Expiries are unix seconds.
type TokenRecord struct {
	AccessToken        string
	AccessTokenExpiry  int64
	RefreshToken       string
	RefreshTokenExpiry int64
	ClientID           string
	RedirectURI        string
}

// EmptyRecord returns a record with no tokens and both expiries unset.
func EmptyRecord() TokenRecord {
	return TokenRecord{
		AccessTokenExpiry:  ExpiryUnset,
		RefreshTokenExpiry: ExpiryUnset,
	}
}

// HasCredentials reports whether the record can be renewed without a new
// interactive login.
func (r TokenRecord) HasCredentials() bool {
	return r.AccessToken != "" && r.RefreshToken != "" &&
		r.ClientID != "" && r.RedirectURI != ""
}

// SecondsUntilAccessExpiry returns the access token's remaining lifetime,
// or 0 when it is unset or already expired.
func (r TokenRecord) SecondsUntilAccessExpiry(now time.Time) int64 {
	return secondsUntil(r.AccessTokenExpiry, now)
}

// SecondsUntilRefreshExpiry returns the refresh token's remaining lifetime,
// or 0 when it is unset or already expired.
func (r TokenRecord) SecondsUntilRefreshExpiry(now time.Time) int64 {
	return secondsUntil(r.RefreshTokenExpiry, now)
}

// withoutTokens keeps the application registration and drops everything else.
func (r TokenRecord) withoutTokens() TokenRecord {
	out := EmptyRecord()
	out.ClientID = r.ClientID
	out.RedirectURI = r.RedirectURI
	return out
}

func expirySet(expiry int64) bool {
	return expiry > 0
}

func secondsUntil(expiry int64, now time.Time) int64 {
	if !expirySet(expiry) {
		return 0
	}
	if d := expiry - now.Unix(); d > 0 {
		return d
	}
	return 0
}
