package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jonandersen/tda/internal/auth"
	"github.com/jonandersen/tda/internal/config"
	"github.com/jonandersen/tda/internal/keyring"
	"github.com/jonandersen/tda/internal/logging"
	"github.com/jonandersen/tda/internal/metrics"
	"github.com/jonandersen/tda/internal/tokenstore"
	"github.com/jonandersen/tda/pkg/tdapi"
)

// session is the configured credential stack for one command run.
type session struct {
	cfg     *config.Config
	logger  logging.Logger
	store   tokenstore.Store
	manager *auth.Manager
}

var (
	sessionsMu sync.Mutex
	sessions   []*session
)

// sessionOptions customizes openSession for commands that log in or
// export metrics.
type sessionOptions struct {
	authorizer auth.Authorizer
	metrics    *metrics.Recorder
}

// openSession loads the config, opens the configured token store and
// returns a Manager holding the persisted record. Sessions are closed when
// the command returns.
func openSession(ctx context.Context, cmd *cobra.Command, opts sessionOptions) (*session, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(cmd.ErrOrStderr(), cfg.LogLevel)

	store, err := tokenstore.Open(cfg.Store.Backend, cfg.Store.Path, config.ConfigDir(), keyring.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	manager := auth.NewManager(auth.Options{
		Store:       store,
		Exchanger:   auth.NewHTTPExchanger(cfg.TokenURL),
		Authorizer:  opts.authorizer,
		Logger:      logger,
		Metrics:     opts.metrics,
		ClientID:    cfg.ClientID,
		RedirectURI: cfg.RedirectURI,
		AuthURL:     cfg.AuthURL,
	})
	manager.Load(ctx)

	s := &session{cfg: cfg, logger: logger, store: store, manager: manager}
	sessionsMu.Lock()
	sessions = append(sessions, s)
	sessionsMu.Unlock()
	return s, nil
}

// apiClient returns a REST client authenticated by the session. Expired
// tokens are renewed first; a session that needs a new login fails.
func (s *session) apiClient(ctx context.Context) (*tdapi.Client, error) {
	if s.manager.Status().NeedsReauth() {
		return nil, auth.ErrNotLoggedIn
	}
	if err := s.manager.EnsureFresh(ctx); err != nil {
		return nil, fmt.Errorf("failed to renew credentials: %w", err)
	}
	return tdapi.NewClient(s.cfg.APIBaseURL, s.manager).WithRateLimit(s.cfg.RequestsPerMinute), nil
}

func (s *session) close() error {
	return s.store.Close()
}

func closeSessions() {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.close())
	}
	sessions = nil
	if err := errors.Join(errs...); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// managerFactory opens the credential manager for a command. Tests swap it
// for one backed by a temporary store.
type managerFactory func(cmd *cobra.Command, authorizer auth.Authorizer) (*auth.Manager, error)

// sessionManager is the production managerFactory.
func sessionManager(cmd *cobra.Command, authorizer auth.Authorizer) (*auth.Manager, error) {
	s, err := openSession(cmdContext(cmd), cmd, sessionOptions{authorizer: authorizer})
	if err != nil {
		return nil, err
	}
	return s.manager, nil
}

// sessionClient is the PreRunE helper of the REST commands.
func sessionClient(cmd *cobra.Command) (*tdapi.Client, *config.Config, error) {
	ctx := cmdContext(cmd)
	s, err := openSession(ctx, cmd, sessionOptions{})
	if err != nil {
		return nil, nil, err
	}
	client, err := s.apiClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, s.cfg, nil
}
