package cmd

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonandersen/tda/internal/auth"
)

func newTestTokenCmd(store auth.Store, tokenURL string, now time.Time, jsonMode bool) *tokenOptions {
	return &tokenOptions{
		manager:  testManagers(store, tokenURL),
		now:      func() time.Time { return now },
		jsonMode: func() bool { return jsonMode },
	}
}

func TestTokenStatusCmd(t *testing.T) {
	now := time.Now()
	rec := freshRecord(now)
	opts := newTestTokenCmd(testStore(t, &rec), "http://unused", now, false)

	out, err := execute(t, newTokenCmd(*opts), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "Client ID:")
	assert.Contains(t, out, testClientID)
	assert.Contains(t, out, "(in 25m0s)")
	assert.Contains(t, out, "(in 1440h0m0s)")
}

func TestTokenStatusCmd_JSON(t *testing.T) {
	now := time.Now()
	rec := freshRecord(now)
	rec.AccessTokenExpiry = now.Add(time.Minute).Unix()
	opts := newTestTokenCmd(testStore(t, &rec), "http://unused", now, true)

	out, err := execute(t, newTokenCmd(*opts), "status")
	require.NoError(t, err)

	var got tokenStatus
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "access_renewal", got.Status)
	assert.True(t, got.LoggedIn)
	assert.Equal(t, int64(60), got.SecondsUntilAccessExpiry)
	assert.Equal(t, rec.RefreshTokenExpiry, got.RefreshTokenExpiry)
}

func TestTokenStatusCmd_NotLoggedIn(t *testing.T) {
	opts := newTestTokenCmd(testStore(t, nil), "http://unused", time.Now(), false)

	out, err := execute(t, newTokenCmd(*opts), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "reauthenticate")
	assert.Contains(t, out, "Not configured")
	assert.Contains(t, out, "false")
}

func TestTokenRefreshCmd_RenewsWhenDue(t *testing.T) {
	ts := newTokenServer(t)
	now := time.Now()
	rec := freshRecord(now)
	rec.AccessTokenExpiry = now.Add(time.Minute).Unix()
	store := testStore(t, &rec)

	opts := newTestTokenCmd(store, ts.URL, now, false)
	_, err := execute(t, newTokenCmd(*opts), "refresh")
	require.NoError(t, err)
	assert.Equal(t, int32(1), ts.refreshGrants.Load())

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-renewed", loaded.AccessToken)
	assert.Equal(t, "refresh-current", loaded.RefreshToken)
}

func TestTokenRefreshCmd_NothingToDo(t *testing.T) {
	ts := newTokenServer(t)
	now := time.Now()
	rec := freshRecord(now)

	opts := newTestTokenCmd(testStore(t, &rec), ts.URL, now, false)
	out, err := execute(t, newTokenCmd(*opts), "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to renew")
	assert.Equal(t, int32(0), ts.refreshGrants.Load())
}

func TestTokenRefreshCmd_Force(t *testing.T) {
	ts := newTokenServer(t)
	now := time.Now()
	rec := freshRecord(now)
	store := testStore(t, &rec)

	opts := newTestTokenCmd(store, ts.URL, now, false)
	_, err := execute(t, newTokenCmd(*opts), "refresh", "--force")
	require.NoError(t, err)
	assert.Equal(t, int32(1), ts.refreshGrants.Load())

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-renewed", loaded.AccessToken)
}

func TestTokenRefreshCmd_NotLoggedIn(t *testing.T) {
	ts := newTokenServer(t)
	opts := newTestTokenCmd(testStore(t, nil), ts.URL, time.Now(), false)

	_, err := execute(t, newTokenCmd(*opts), "refresh")
	require.ErrorIs(t, err, auth.ErrNotLoggedIn)
	assert.Equal(t, int32(0), ts.refreshGrants.Load())
}

func TestTokenRefreshCmd_Rejected(t *testing.T) {
	ts := newTokenServer(t)
	ts.status.Store(401)
	now := time.Now()
	rec := freshRecord(now)
	rec.AccessTokenExpiry = auth.ExpiryUnset

	opts := newTestTokenCmd(testStore(t, &rec), ts.URL, now, false)
	_, err := execute(t, newTokenCmd(*opts), "refresh")
	require.Error(t, err)

	var exErr *auth.ExchangeError
	require.ErrorAs(t, err, &exErr)
	assert.Equal(t, 401, exErr.StatusCode)
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "-", formatRemaining(auth.ExpiryUnset, 0))
	assert.Contains(t, formatRemaining(1_700_000_000, 0), "(expired)")
	assert.Contains(t, formatRemaining(1_700_000_000, 90), "(in 1m30s)")
}
