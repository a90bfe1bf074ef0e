package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonandersen/tda/internal/logging"
	"github.com/jonandersen/tda/internal/metrics"
)

// DefaultAuthorizeTimeout bounds the interactive login.
const DefaultAuthorizeTimeout = 3 * time.Minute

// ErrNotLoggedIn is returned by Token when no access token is held.
var ErrNotLoggedIn = errors.New("not logged in: run 'tda login'")

// Options configures a Manager. Store and Exchanger are required.
type Options struct {
	Store      Store
	Exchanger  Exchanger
	Authorizer Authorizer
	Clock      Clock
	Logger     logging.Logger
	Metrics    *metrics.Recorder

	// ClientID and RedirectURI fill a record that has none yet.
	ClientID    string
	RedirectURI string
	// AuthURL overrides DefaultAuthURL.
	AuthURL string
	// AuthorizeTimeout overrides DefaultAuthorizeTimeout.
	AuthorizeTimeout time.Duration
}

// Manager owns the credential record. Readers get a consistent snapshot
// without locking; renewals are serialized.
type Manager struct {
	opts    Options
	current atomic.Pointer[TokenRecord]
	mu      sync.Mutex
}

// NewManager returns a Manager holding an empty record. Call Init or Load
// to read the persisted one.
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.AuthorizeTimeout <= 0 {
		opts.AuthorizeTimeout = DefaultAuthorizeTimeout
	}
	m := &Manager{opts: opts}
	empty := EmptyRecord()
	m.current.Store(&empty)
	return m
}

// Snapshot returns the current record.
func (m *Manager) Snapshot() TokenRecord {
	return *m.current.Load()
}

// Status classifies the current record.
func (m *Manager) Status() Status {
	return Classify(m.Snapshot(), m.opts.Clock.Now())
}

// BearerToken returns the current access token, possibly empty.
func (m *Manager) BearerToken() string {
	return m.Snapshot().AccessToken
}

// Token implements tdapi.TokenProvider.
func (m *Manager) Token() (string, error) {
	token := m.BearerToken()
	if token == "" {
		return "", ErrNotLoggedIn
	}
	return token, nil
}

// Load replaces the in-memory record with the persisted one. Unreadable
// records load as empty.
func (m *Manager) Load(ctx context.Context) TokenRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := LoadOrEmpty(ctx, m.opts.Store, m.opts.Logger)
	m.current.Store(&rec)
	m.opts.Metrics.SetExpiries(rec.AccessTokenExpiry, rec.RefreshTokenExpiry)
	return rec
}

// Init loads the persisted record and brings it up to date. Without stored
// credentials it runs Bootstrap and returns StatusReauthenticate; otherwise
// it returns the status Renew acted on.
func (m *Manager) Init(ctx context.Context) (Status, error) {
	rec := m.Load(ctx)
	if !rec.HasCredentials() {
		m.opts.Logger.Info(ctx, "no stored credentials, starting login")
		return StatusReauthenticate, m.Bootstrap(ctx)
	}
	return m.Renew(ctx)
}

// EnsureFresh renews the credentials if the current record needs it.
func (m *Manager) EnsureFresh(ctx context.Context) error {
	if m.Status() == StatusOK {
		return nil
	}
	_, err := m.Renew(ctx)
	return err
}

// Renew classifies the record and performs the renewal it calls for. When
// both tokens need renewal the refresh token is renewed and persisted first.
func (m *Manager) Renew(ctx context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Classify(m.Snapshot(), m.opts.Clock.Now())
	m.opts.Logger.Debug(ctx, "renewal check", "status", status.String())

	if status.NeedsReauth() {
		return status, m.bootstrapLocked(ctx)
	}
	if status.NeedsRefreshRenewal() {
		if err := m.renewRefreshLocked(ctx); err != nil {
			return status, err
		}
	}
	if status.NeedsAccessRenewal() {
		if err := m.renewAccessLocked(ctx); err != nil {
			return status, err
		}
	}
	return status, nil
}

// RefreshToken forces a new access token. It implements tdapi.TokenRefresher
// and is used after the API rejects the current token.
func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if Classify(m.Snapshot(), m.opts.Clock.Now()).NeedsReauth() {
		return "", ErrNotLoggedIn
	}
	if err := m.renewAccessLocked(ctx); err != nil {
		return "", err
	}
	return m.Snapshot().AccessToken, nil
}

// Bootstrap runs the interactive login and stores both new tokens.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bootstrapLocked(ctx)
}

// Logout persists a record without tokens. The client id and redirect uri
// are kept so the next login needs no configuration.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.commit(ctx, m.Snapshot().withoutTokens()); err != nil {
		return err
	}
	m.opts.Logger.Info(ctx, "logged out")
	return nil
}

func (m *Manager) bootstrapLocked(ctx context.Context) (err error) {
	defer func() { m.opts.Metrics.ObserveBootstrap(err) }()

	rec := m.Snapshot()
	if rec.ClientID == "" {
		rec.ClientID = m.opts.ClientID
	}
	if rec.RedirectURI == "" {
		rec.RedirectURI = m.opts.RedirectURI
	}
	if rec.ClientID == "" || rec.RedirectURI == "" {
		return &BootstrapError{Stage: "config", Err: errors.New("client id and redirect uri are required: run 'tda configure'")}
	}
	if m.opts.Authorizer == nil {
		return &BootstrapError{Stage: "authorize", Err: errors.New("no interactive authorizer available")}
	}
	if err := m.commit(ctx, rec); err != nil {
		return &BootstrapError{Stage: "persist", Err: err}
	}

	authCtx, cancel := context.WithTimeout(ctx, m.opts.AuthorizeTimeout)
	defer cancel()

	code, err := m.opts.Authorizer.Authorize(authCtx, AuthorizationRequest{
		ClientID:    rec.ClientID,
		RedirectURI: rec.RedirectURI,
		AuthURL:     m.opts.AuthURL,
		State:       uuid.NewString(),
	})
	if err != nil {
		return &BootstrapError{Stage: "authorize", Err: err}
	}
	if code == "" {
		return &BootstrapError{Stage: "authorize", Err: errors.New("empty authorization code")}
	}

	req := ExchangeRequest{
		GrantType:   GrantAuthorizationCode,
		AccessType:  AccessTypeOffline,
		Code:        code,
		ClientID:    rec.ClientID,
		RedirectURI: rec.RedirectURI,
	}
	resp, err := m.exchange(ctx, req, true, true)
	if err != nil {
		return &BootstrapError{Stage: "exchange", Err: err}
	}

	now := m.opts.Clock.Now()
	rec.AccessToken = resp.AccessToken
	rec.AccessTokenExpiry = now.Add(AccessTokenLifetime).Unix()
	rec.RefreshToken = resp.RefreshToken
	rec.RefreshTokenExpiry = now.Add(RefreshTokenLifetime).Unix()

	if err := m.commit(ctx, rec); err != nil {
		return &BootstrapError{Stage: "persist", Err: err}
	}
	m.opts.Logger.Info(ctx, "login complete")
	return nil
}

func (m *Manager) renewAccessLocked(ctx context.Context) error {
	rec := m.Snapshot()
	req := ExchangeRequest{
		GrantType:    GrantRefreshToken,
		RefreshToken: rec.RefreshToken,
		ClientID:     rec.ClientID,
		RedirectURI:  rec.RedirectURI,
	}
	resp, err := m.exchange(ctx, req, true, false)
	if err != nil {
		return err
	}

	rec.AccessToken = resp.AccessToken
	rec.AccessTokenExpiry = m.opts.Clock.Now().Add(AccessTokenLifetime).Unix()
	if err := m.commit(ctx, rec); err != nil {
		return err
	}
	m.opts.Logger.Info(ctx, "access token renewed", "expires_at", rec.AccessTokenExpiry)
	return nil
}

func (m *Manager) renewRefreshLocked(ctx context.Context) error {
	rec := m.Snapshot()
	req := ExchangeRequest{
		GrantType:    GrantRefreshToken,
		RefreshToken: rec.RefreshToken,
		AccessType:   AccessTypeOffline,
		ClientID:     rec.ClientID,
		RedirectURI:  rec.RedirectURI,
	}
	resp, err := m.exchange(ctx, req, false, true)
	if err != nil {
		return err
	}

	rec.RefreshToken = resp.RefreshToken
	rec.RefreshTokenExpiry = m.opts.Clock.Now().Add(RefreshTokenLifetime).Unix()
	if err := m.commit(ctx, rec); err != nil {
		return err
	}
	m.opts.Logger.Info(ctx, "refresh token renewed", "expires_at", rec.RefreshTokenExpiry)
	return nil
}

// exchange calls the token endpoint and checks that the tokens the grant
// must produce are present. Every failure is an *ExchangeError.
func (m *Manager) exchange(ctx context.Context, req ExchangeRequest, needAccess, needRefresh bool) (*ExchangeResponse, error) {
	resp, err := m.opts.Exchanger.Exchange(ctx, req)
	if err == nil {
		switch {
		case resp == nil:
			err = errors.New("empty response")
		case needAccess && resp.AccessToken == "":
			err = missingToken(req, "access_token")
		case needRefresh && resp.RefreshToken == "":
			err = missingToken(req, "refresh_token")
		}
	}

	if err != nil {
		var exErr *ExchangeError
		if !errors.As(err, &exErr) {
			err = &ExchangeError{Grant: req.GrantType, Token: req.target(), Err: err}
		}
		m.opts.Metrics.ObserveExchange(req.GrantType, req.target(), err)
		m.opts.Logger.Warn(ctx, "token exchange failed", "grant", req.GrantType, "token", req.target(), "error", err)
		return nil, err
	}

	m.opts.Metrics.ObserveExchange(req.GrantType, req.target(), nil)
	return resp, nil
}

// commit publishes rec and writes it through to the store.
func (m *Manager) commit(ctx context.Context, rec TokenRecord) error {
	m.current.Store(&rec)
	m.opts.Metrics.SetExpiries(rec.AccessTokenExpiry, rec.RefreshTokenExpiry)
	if err := m.opts.Store.Save(ctx, rec); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

func missingToken(req ExchangeRequest, field string) error {
	return &ExchangeError{
		Grant:      req.GrantType,
		Token:      req.target(),
		StatusCode: 200,
		Err:        fmt.Errorf("response is missing %s", field),
	}
}
