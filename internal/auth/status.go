package auth

import (
	"strings"
	"time"
)

// Status is the renewal work a token record needs. Bits 0 and 1 combine;
// StatusReauthenticate stands alone.
type Status int

const (
	// StatusOK means both tokens are comfortably valid.
	StatusOK Status = 0
	// StatusAccessRenewal (bit 0) means the access token is unset or expires
	// within AccessRenewalMargin.
	StatusAccessRenewal Status = 1 << 0
	// StatusRefreshRenewal (bit 1) means the refresh token expires within
	// RefreshRenewalMargin.
	StatusRefreshRenewal Status = 1 << 1
	// StatusReauthenticate means the refresh token is unusable and an
	// interactive login is required.
	StatusReauthenticate Status = 4
)

const (
	// AccessRenewalMargin is how early the access token is renewed.
	AccessRenewalMargin = 180 * time.Second
	// RefreshRenewalMargin is how early the refresh token is renewed.
	RefreshRenewalMargin = 86400 * time.Second
)

// Classify computes the renewal status of rec at now.
func Classify(rec TokenRecord, now time.Time) Status {
	ts := now.Unix()

	if !expirySet(rec.RefreshTokenExpiry) || ts >= rec.RefreshTokenExpiry {
		return StatusReauthenticate
	}

	status := StatusOK
	if !expirySet(rec.AccessTokenExpiry) || ts+int64(AccessRenewalMargin/time.Second) >= rec.AccessTokenExpiry {
		status |= StatusAccessRenewal
	}
	if ts+int64(RefreshRenewalMargin/time.Second) >= rec.RefreshTokenExpiry {
		status |= StatusRefreshRenewal
	}
	return status
}

// NeedsAccessRenewal reports whether bit 0 is set.
func (s Status) NeedsAccessRenewal() bool {
	return !s.NeedsReauth() && s&StatusAccessRenewal != 0
}

// NeedsRefreshRenewal reports whether bit 1 is set.
func (s Status) NeedsRefreshRenewal() bool {
	return !s.NeedsReauth() && s&StatusRefreshRenewal != 0
}

// NeedsReauth reports whether a full interactive login is required.
func (s Status) NeedsReauth() bool {
	return s == StatusReauthenticate
}

func (s Status) String() string {
	switch {
	case s == StatusOK:
		return "ok"
	case s.NeedsReauth():
		return "reauthenticate"
	case s < 0 || s > StatusAccessRenewal|StatusRefreshRenewal:
		return "invalid"
	}

	var parts []string
	if s.NeedsRefreshRenewal() {
		parts = append(parts, "refresh_renewal")
	}
	if s.NeedsAccessRenewal() {
		parts = append(parts, "access_renewal")
	}
	return strings.Join(parts, "+")
}
