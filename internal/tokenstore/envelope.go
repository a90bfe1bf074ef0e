// Package tokenstore persists the credential record. Every backend stores the
// same versioned JSON document and replaces it whole on save.
package tokenstore

import (
	"encoding/json"
	"fmt"

	"github.com/jonandersen/tda/internal/auth"
)

// formatVersion is written into every persisted record.
const formatVersion = 1

// envelope is the persisted JSON layout of an auth.TokenRecord.
type envelope struct {
	Version            int    `json:"version"`
	AccessToken        string `json:"access_token"`
	AccessTokenExpiry  int64  `json:"access_token_expiry"`
	RefreshToken       string `json:"refresh_token"`
	RefreshTokenExpiry int64  `json:"refresh_token_expiry"`
	ClientID           string `json:"client_id"`
	RedirectURI        string `json:"redirect_uri"`
}

func encode(rec auth.TokenRecord) ([]byte, error) {
	return json.MarshalIndent(envelope{
		Version:            formatVersion,
		AccessToken:        rec.AccessToken,
		AccessTokenExpiry:  rec.AccessTokenExpiry,
		RefreshToken:       rec.RefreshToken,
		RefreshTokenExpiry: rec.RefreshTokenExpiry,
		ClientID:           rec.ClientID,
		RedirectURI:        rec.RedirectURI,
	}, "", "  ")
}

// decode accepts the current version and unversioned (version 0) documents.
func decode(data []byte) (auth.TokenRecord, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return auth.TokenRecord{}, fmt.Errorf("invalid token record: %w", err)
	}
	if env.Version > formatVersion {
		return auth.TokenRecord{}, fmt.Errorf("unsupported token record version %d", env.Version)
	}
	return auth.TokenRecord{
		AccessToken:        env.AccessToken,
		AccessTokenExpiry:  env.AccessTokenExpiry,
		RefreshToken:       env.RefreshToken,
		RefreshTokenExpiry: env.RefreshTokenExpiry,
		ClientID:           env.ClientID,
		RedirectURI:        env.RedirectURI,
	}, nil
}
