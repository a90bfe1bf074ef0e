package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAuthURL is the interactive login page.
const DefaultAuthURL = "https://auth.tdameritrade.com/auth"

// clientIDSuffix turns a consumer key into the OAuth client id the login
// page expects.
const clientIDSuffix = "@AMER.OAUTHAP"

// AuthorizationRequest describes one interactive login.
type AuthorizationRequest struct {
	ClientID    string
	RedirectURI string
	AuthURL     string
	State       string
}

// Authorizer obtains a one-time authorization code, typically by sending the
// user through the login page. Implementations must return when ctx is done.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthorizationRequest) (string, error)
}

// AuthorizationURL returns the login page URL for req.
func AuthorizationURL(req AuthorizationRequest) string {
	authURL := req.AuthURL
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	clientID := req.ClientID
	if !strings.HasSuffix(clientID, clientIDSuffix) {
		clientID += clientIDSuffix
	}
	cfg := oauth2.Config{
		ClientID:    clientID,
		RedirectURL: req.RedirectURI,
		Endpoint:    oauth2.Endpoint{AuthURL: authURL},
	}
	return cfg.AuthCodeURL(req.State)
}

// codeFromInput extracts the authorization code from a pasted redirect URL
// or returns the input itself when it is a bare code.
func codeFromInput(input, state string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("no authorization code entered")
	}
	if !strings.Contains(input, "code=") {
		// A bare code may itself be URL-encoded.
		if decoded, err := url.PathUnescape(input); err == nil {
			return decoded, nil
		}
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URL: %w", err)
	}
	return codeFromQuery(u.Query(), state)
}

func codeFromQuery(q url.Values, state string) (string, error) {
	if msg := q.Get("error"); msg != "" {
		return "", fmt.Errorf("authorization denied: %s", msg)
	}
	if got := q.Get("state"); got != "" && state != "" && got != state {
		return "", errors.New("authorization state mismatch")
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect has no code parameter")
	}
	return code, nil
}

// PasteAuthorizer prints the login URL and reads back the URL the browser
// was redirected to (or the bare code). One goroutine reads In for the
// lifetime of the authorizer, so a line typed after a timed-out attempt is
// delivered to the next one.
type PasteAuthorizer struct {
	In  io.Reader
	Out io.Writer

	once  sync.Once
	lines chan pastedLine
}

type pastedLine struct {
	text string
	err  error
}

// readLines feeds p.lines until In fails. The final error is delivered
// once and the channel is closed.
func (p *PasteAuthorizer) readLines() {
	defer close(p.lines)
	r := bufio.NewReader(p.In)
	for {
		line, err := r.ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			p.lines <- pastedLine{text: line}
			continue
		}
		if err != nil {
			p.lines <- pastedLine{err: err}
			return
		}
		p.lines <- pastedLine{text: line}
	}
}

// Authorize implements Authorizer.
func (p *PasteAuthorizer) Authorize(ctx context.Context, req AuthorizationRequest) (string, error) {
	p.once.Do(func() {
		p.lines = make(chan pastedLine)
		go p.readLines()
	})

	_, _ = fmt.Fprintf(p.Out, "Open this URL in a browser and log in:\n\n  %s\n\n", AuthorizationURL(req))
	_, _ = fmt.Fprint(p.Out, "Paste the URL you were redirected to: ")

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for authorization code: %w", ctx.Err())
	case line, ok := <-p.lines:
		if !ok {
			return "", fmt.Errorf("failed to read authorization code: %w", io.ErrUnexpectedEOF)
		}
		if line.err != nil {
			return "", fmt.Errorf("failed to read authorization code: %w", line.err)
		}
		return codeFromInput(line.text, req.State)
	}
}

// CallbackAuthorizer serves the redirect URI locally and captures the code
// when the browser is sent back to it.
type CallbackAuthorizer struct {
	Out io.Writer
	// Addr overrides the listen address derived from the redirect URI.
	Addr string
	// OnListen is called once the listener is ready.
	OnListen func(listenAddr, loginURL string)
}

// Authorize implements Authorizer.
func (c *CallbackAuthorizer) Authorize(ctx context.Context, req AuthorizationRequest) (string, error) {
	redirect, err := url.Parse(req.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("invalid redirect URI: %w", err)
	}

	addr := c.Addr
	if addr == "" {
		addr = redirect.Host
		if redirect.Port() == "" {
			addr = net.JoinHostPort(redirect.Hostname(), "80")
		}
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	path := redirect.Path
	if path == "" {
		path = "/"
	}

	type result struct {
		code string
		err  error
	}
	ch := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		code, err := codeFromQuery(r.URL.Query(), req.State)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		} else {
			_, _ = fmt.Fprintln(w, "Login complete. You can close this window.")
		}
		select {
		case ch <- result{code, err}:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	loginURL := AuthorizationURL(req)
	if c.Out != nil {
		_, _ = fmt.Fprintf(c.Out, "Open this URL in a browser and log in:\n\n  %s\n\nWaiting for redirect on %s ...\n", loginURL, ln.Addr())
	}
	if c.OnListen != nil {
		c.OnListen(ln.Addr().String(), loginURL)
	}

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for authorization redirect: %w", ctx.Err())
	case r := <-ch:
		return r.code, r.err
	}
}
