package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonandersen/tda/internal/logging"
	"github.com/jonandersen/tda/internal/stream"
)

const principalsBody = `{
	"userId": "jdoe",
	"streamerInfo": {
		"streamerSocketUrl": "streamer-ws.tdameritrade.com",
		"token": "stream-token",
		"tokenTimestamp": "2021-05-28T14:00:00+0000",
		"userGroup": "ACCT",
		"accessLevel": "ACCT",
		"acl": "AKBPCHDRMF",
		"appId": "APPID"
	},
	"accounts": [{
		"accountId": "123456789",
		"company": "AMER",
		"segment": "ADVNCED",
		"accountCdDomainId": "A000000012345678"
	}]
}`

// streamerServer serves /userprincipals and an ADMIN-only streamer on /ws.
type streamerServer struct {
	*httptest.Server

	mu       sync.Mutex
	commands []string
	code     int
}

func newStreamerServer(t *testing.T) *streamerServer {
	t.Helper()
	s := &streamerServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/userprincipals", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "streamerConnectionInfo", r.URL.Query().Get("fields"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(principalsBody))
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.CloseNow() }()

		for {
			var req stream.Request
			if err := wsjson.Read(r.Context(), conn, &req); err != nil {
				return
			}
			s.mu.Lock()
			s.commands = append(s.commands, req.Command)
			code := s.code
			s.mu.Unlock()

			resp := map[string]any{"response": []any{map[string]any{
				"service":   "ADMIN",
				"requestid": req.RequestID,
				"command":   req.Command,
				"content":   map[string]any{"code": code, "msg": "msg"},
			}}}
			if err := wsjson.Write(r.Context(), conn, resp); err != nil {
				return
			}
		}
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *streamerServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func newTestStreamOptions(s *streamerServer, jsonMode bool) *streamOptions {
	return &streamOptions{
		client:    testAPIClient(s.URL),
		streamURL: s.URL + "/ws",
		logger:    logging.Discard(),
		jsonMode:  jsonMode,
	}
}

func TestStreamCheckCmd(t *testing.T) {
	server := newStreamerServer(t)

	out, err := execute(t, newStreamCmd(newTestStreamOptions(server, false)), "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Login:")
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "123456789")
	assert.NotContains(t, out, "QOS")
	assert.Equal(t, []string{"LOGIN", "LOGOUT"}, server.seen())
}

func TestStreamCheckCmd_QOS(t *testing.T) {
	server := newStreamerServer(t)

	out, err := execute(t, newStreamCmd(newTestStreamOptions(server, true)), "check", "--qos", "0")
	require.NoError(t, err)

	var got streamCheck
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Login)
	require.NotNil(t, got.QOS)
	assert.Equal(t, 0, *got.QOS)
	assert.True(t, strings.HasSuffix(got.URL, "/ws"))
	assert.Equal(t, []string{"LOGIN", "QOS", "LOGOUT"}, server.seen())
}

func TestStreamCheckCmd_LoginRejected(t *testing.T) {
	server := newStreamerServer(t)
	server.mu.Lock()
	server.code = 3
	server.mu.Unlock()

	_, err := execute(t, newStreamCmd(newTestStreamOptions(server, false)), "check")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream login failed")

	var cmdErr *stream.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.Code)
}

func TestStreamCheckCmd_InvalidQOS(t *testing.T) {
	server := newStreamerServer(t)

	_, err := execute(t, newStreamCmd(newTestStreamOptions(server, false)), "check", "--qos", "9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--qos must be between 0 and 5")
	assert.Empty(t, server.seen())
}
