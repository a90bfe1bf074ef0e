package cmd

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonandersen/tda/internal/auth"
	"github.com/jonandersen/tda/internal/tokenstore"
)

func newTestDaemonCmd(store tokenstore.Store, tokenURL string, in io.Reader, onListen func(string)) *cobra.Command {
	return newDaemonCmd(daemonOptions{
		open: func(cmd *cobra.Command, opts sessionOptions) (*session, error) {
			return testSession(store, tokenURL, opts), nil
		},
		in:       in,
		onListen: onListen,
	})
}

// startDaemon runs cmd in the background until the returned cancel is called.
func startDaemon(t *testing.T, cmd *cobra.Command, args ...string) (*syncBuffer, context.CancelFunc, <-chan error) {
	t.Helper()
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()
	return out, cancel, done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
		return nil
	}
}

func TestDaemonCmd_ServesMetrics(t *testing.T) {
	ts := newTokenServer(t)
	rec := freshRecord(time.Now())
	store := testStore(t, &rec)

	addrs := make(chan string, 1)
	cmd := newTestDaemonCmd(store, ts.URL, strings.NewReader(""), func(addr string) { addrs <- addr })
	out, cancel, done := startDaemon(t, cmd, "--metrics-addr", "127.0.0.1:0")

	var addr string
	select {
	case addr = <-addrs:
	case err := <-done:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics listener not started")
	}

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "tda_access_token_expiry_timestamp_seconds "+strconv.FormatFloat(float64(rec.AccessTokenExpiry), 'g', -1, 64))
	assert.Contains(t, text, "tda_next_renewal_delay_seconds")
	assert.Contains(t, text, "go_goroutines")

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Contains(t, out.String(), "Renewing credentials in the background")
	assert.Contains(t, out.String(), "Stopping.")
	assert.Equal(t, int32(0), ts.refreshGrants.Load())
}

func TestDaemonCmd_LogsInWithoutCredentials(t *testing.T) {
	ts := newTokenServer(t)
	store := testStore(t, nil)

	cmd := newTestDaemonCmd(store, ts.URL, strings.NewReader("the-code\n"), nil)
	_, cancel, done := startDaemon(t, cmd)

	require.Eventually(t, func() bool {
		rec, err := store.Load(context.Background())
		return err == nil && rec.AccessToken == "access-from-code"
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done))
	assert.Equal(t, int32(1), ts.codeGrants.Load())
}

func TestDaemonCmd_RenewsOnStart(t *testing.T) {
	ts := newTokenServer(t)
	rec := freshRecord(time.Now())
	rec.AccessTokenExpiry = auth.ExpiryUnset
	store := testStore(t, &rec)

	cmd := newTestDaemonCmd(store, ts.URL, strings.NewReader(""), nil)
	out, cancel, done := startDaemon(t, cmd)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Renewing credentials")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, waitDone(t, done))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-renewed", loaded.AccessToken)
}

func TestDaemonCmd_InitFailure(t *testing.T) {
	ts := newTokenServer(t)
	ts.status.Store(400)
	rec := freshRecord(time.Now())
	rec.AccessTokenExpiry = auth.ExpiryUnset

	cmd := newTestDaemonCmd(testStore(t, &rec), ts.URL, strings.NewReader(""), nil)
	_, _, done := startDaemon(t, cmd)

	err := waitDone(t, done)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize credentials")
}
