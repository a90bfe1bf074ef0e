package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/jonandersen/tda/internal/auth"
	"github.com/jonandersen/tda/internal/config"
	"github.com/jonandersen/tda/internal/logging"
	"github.com/jonandersen/tda/internal/tokenstore"
	"github.com/jonandersen/tda/pkg/tdapi"
)

const (
	testClientID    = "CONSUMERKEY"
	testRedirectURI = "https://127.0.0.1:8080/callback"
)

// tokenServer is a fake token endpoint that counts calls per grant.
type tokenServer struct {
	*httptest.Server
	codeGrants    atomic.Int32
	refreshGrants atomic.Int32
	status        atomic.Int32
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.status.Store(http.StatusOK)
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if status := int(ts.status.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Form.Get("grant_type") == "authorization_code":
			ts.codeGrants.Add(1)
			_, _ = w.Write([]byte(`{"access_token":"access-from-code","refresh_token":"refresh-from-code","expires_in":1800}`))
		case r.Form.Get("access_type") == "offline":
			ts.refreshGrants.Add(1)
			_, _ = w.Write([]byte(`{"refresh_token":"refresh-renewed","refresh_token_expires_in":7776000}`))
		default:
			ts.refreshGrants.Add(1)
			_, _ = w.Write([]byte(`{"access_token":"access-renewed","expires_in":1800}`))
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

// freshRecord is a logged-in record that needs no renewal.
func freshRecord(now time.Time) auth.TokenRecord {
	return auth.TokenRecord{
		AccessToken:        "access-current",
		AccessTokenExpiry:  now.Add(25 * time.Minute).Unix(),
		RefreshToken:       "refresh-current",
		RefreshTokenExpiry: now.Add(60 * 24 * time.Hour).Unix(),
		ClientID:           testClientID,
		RedirectURI:        testRedirectURI,
	}
}

// testStore returns a file store in a temp dir, seeded with rec if non-nil.
func testStore(t *testing.T, rec *auth.TokenRecord) *tokenstore.FileStore {
	t.Helper()
	store := tokenstore.NewFileStore(filepath.Join(t.TempDir(), "tokens.json"))
	if rec != nil {
		require.NoError(t, store.Save(context.Background(), *rec))
	}
	return store
}

func newTestManager(store auth.Store, tokenURL string, authorizer auth.Authorizer) *auth.Manager {
	m := auth.NewManager(auth.Options{
		Store:       store,
		Exchanger:   auth.NewHTTPExchanger(tokenURL),
		Authorizer:  authorizer,
		Logger:      logging.Discard(),
		ClientID:    testClientID,
		RedirectURI: testRedirectURI,
	})
	m.Load(context.Background())
	return m
}

// testManagers is a managerFactory over store and a fake token endpoint.
func testManagers(store auth.Store, tokenURL string) managerFactory {
	return func(cmd *cobra.Command, authorizer auth.Authorizer) (*auth.Manager, error) {
		return newTestManager(store, tokenURL, authorizer), nil
	}
}

// testSession builds a session like openSession does, over store.
func testSession(store tokenstore.Store, tokenURL string, opts sessionOptions) *session {
	cfg := config.DefaultConfig()
	cfg.ClientID = testClientID
	cfg.RedirectURI = testRedirectURI
	cfg.TokenURL = tokenURL

	logger := logging.Discard()
	manager := auth.NewManager(auth.Options{
		Store:       store,
		Exchanger:   auth.NewHTTPExchanger(tokenURL),
		Authorizer:  opts.authorizer,
		Logger:      logger,
		Metrics:     opts.metrics,
		ClientID:    cfg.ClientID,
		RedirectURI: cfg.RedirectURI,
	})
	manager.Load(context.Background())
	return &session{cfg: cfg, logger: logger, store: store, manager: manager}
}

func testAPIClient(baseURL string) *tdapi.Client {
	return tdapi.NewClientWithToken(baseURL, "test-token").WithRateLimit(0)
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// newBlockingReader returns a reader whose Read blocks until the writer is
// closed.
func newBlockingReader() (*io.PipeReader, *io.PipeWriter) {
	return io.Pipe()
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
