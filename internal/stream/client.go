// Package stream connects to the streaming server and performs the ADMIN
// control exchange (login, quality of service, logout).
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/jonandersen/tda/internal/logging"
	"github.com/jonandersen/tda/pkg/tdapi"
)

// QOSLevel is the update rate requested from the server.
type QOSLevel int

const (
	QOSExpress  QOSLevel = iota // 500 ms
	QOSRealTime                 // 750 ms
	QOSFast                     // 1 s
	QOSModerate                 // 1.5 s
	QOSSlow                     // 3 s
	QOSDelayed                  // 5 s
)

const (
	serviceAdmin = "ADMIN"

	requestIDLogin  = "0"
	requestIDLogout = "1"
	requestIDQOS    = "2"
)

// Request is a single command sent to the server.
type Request struct {
	Service    string            `json:"service"`
	RequestID  string            `json:"requestid"`
	Command    string            `json:"command"`
	Account    string            `json:"account"`
	Parameters map[string]string `json:"parameters"`
}

// Response acknowledges a Request.
type Response struct {
	Service   string `json:"service"`
	RequestID string `json:"requestid"`
	Command   string `json:"command"`
	Timestamp int64  `json:"timestamp"`
	Content   struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"content"`
}

// message is any frame the server sends. Only responses are inspected.
type message struct {
	Response []Response `json:"response"`
	Notify   []any      `json:"notify"`
	Data     []any      `json:"data"`
}

// CommandError is a command the server answered with a non-zero code.
type CommandError struct {
	Command string
	Code    int
	Msg     string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s rejected (code %d): %s", e.Command, e.Code, e.Msg)
}

// Client is a connection to the streaming server.
type Client struct {
	conn       *websocket.Conn
	principals *tdapi.UserPrincipals
	account    tdapi.PrincipalAccount
	logger     logging.Logger
}

type dialOptions struct {
	url    string
	logger logging.Logger
}

// Option configures Dial.
type Option func(*dialOptions)

// WithURL overrides the socket URL derived from the streamer info.
func WithURL(u string) Option {
	return func(o *dialOptions) { o.url = u }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *dialOptions) { o.logger = l }
}

// SocketURL returns the websocket URL for the streamer info.
func SocketURL(info *tdapi.StreamerInfo) string {
	return "wss://" + info.StreamerSocketURL + "/ws"
}

// Dial connects to the streaming server described by principals, which
// must have been fetched with tdapi.FieldStreamerConnectionInfo.
func Dial(ctx context.Context, principals *tdapi.UserPrincipals, opts ...Option) (*Client, error) {
	if principals == nil || principals.StreamerInfo == nil {
		return nil, errors.New("user principals have no streamer info")
	}
	if len(principals.Accounts) == 0 {
		return nil, errors.New("user principals have no accounts")
	}

	o := dialOptions{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.url == "" {
		o.url = SocketURL(principals.StreamerInfo)
	}

	conn, _, err := websocket.Dial(ctx, o.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", o.url, err)
	}
	o.logger.Debug(ctx, "stream connected", "url", o.url)

	return &Client{
		conn:       conn,
		principals: principals,
		account:    principals.Accounts[0],
		logger:     o.logger,
	}, nil
}

// Credential builds the URL-encoded credential string for the LOGIN command.
func Credential(p *tdapi.UserPrincipals) (string, error) {
	info := p.StreamerInfo
	acct := p.Accounts[0]

	ts, err := parseTokenTimestamp(info.TokenTimestamp)
	if err != nil {
		return "", err
	}

	pairs := [][2]string{
		{"userid", acct.AccountID},
		{"token", info.Token},
		{"company", acct.Company},
		{"segment", acct.Segment},
		{"cddomain", acct.AccountCdDomainID},
		{"usergroup", info.UserGroup},
		{"accesslevel", info.AccessLevel},
		{"authorized", "Y"},
		{"timestamp", strconv.FormatInt(ts.UnixMilli(), 10)},
		{"appid", info.AppID},
		{"acl", info.ACL},
	}

	parts := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		parts = append(parts, kv[0]+"="+kv[1])
	}
	return url.QueryEscape(strings.Join(parts, "&")), nil
}

func parseTokenTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid token timestamp %q", s)
}

// Login authenticates the connection and waits for the server to accept it.
func (c *Client) Login(ctx context.Context) error {
	credential, err := Credential(c.principals)
	if err != nil {
		return err
	}
	return c.command(ctx, requestIDLogin, "LOGIN", map[string]string{
		"credential": credential,
		"token":      c.principals.StreamerInfo.Token,
		"version":    "1.0",
	})
}

// SetQOS changes the update rate.
func (c *Client) SetQOS(ctx context.Context, level QOSLevel) error {
	return c.command(ctx, requestIDQOS, "QOS", map[string]string{
		"qoslevel": strconv.Itoa(int(level)),
	})
}

// Logout ends the session. The server may close the connection instead of
// answering, which is not an error.
func (c *Client) Logout(ctx context.Context) error {
	err := c.command(ctx, requestIDLogout, "LOGOUT", map[string]string{})
	if websocket.CloseStatus(err) != -1 {
		return nil
	}
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

func (c *Client) command(ctx context.Context, requestID, command string, params map[string]string) error {
	req := Request{
		Service:    serviceAdmin,
		RequestID:  requestID,
		Command:    command,
		Account:    c.account.AccountID,
		Parameters: params,
	}
	if err := wsjson.Write(ctx, c.conn, req); err != nil {
		return fmt.Errorf("failed to send %s: %w", command, err)
	}
	c.logger.Debug(ctx, "stream request sent", "command", command)

	resp, err := c.await(ctx, command)
	if err != nil {
		return err
	}
	if resp.Content.Code != 0 {
		return &CommandError{Command: command, Code: resp.Content.Code, Msg: resp.Content.Msg}
	}
	c.logger.Debug(ctx, "stream command accepted", "command", command, "msg", resp.Content.Msg)
	return nil
}

// await reads frames until the ADMIN response to command arrives. Other
// frames (heartbeats, data) are skipped.
func (c *Client) await(ctx context.Context, command string) (*Response, error) {
	for {
		var msg message
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			return nil, fmt.Errorf("waiting for %s response: %w", command, err)
		}
		for i := range msg.Response {
			r := msg.Response[i]
			if r.Service == serviceAdmin && r.Command == command {
				return &r, nil
			}
		}
	}
}
