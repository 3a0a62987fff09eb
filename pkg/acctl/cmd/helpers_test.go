/*
SPDX-FileCopyrightText: 2025 Deutsche Telekom AG

SPDX-License-Identifier: Apache-2.0
*/

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/telekom/account-client/pkg/acctl/config"
)

const testClientID = "3c49430b43dfba77"

type queuedCommand struct {
	Index int64  `json:"index"`
	Name  string `json:"command"`
}

// accountServer fakes the token, profile, commands and audit endpoints.
type accountServer struct {
	*httptest.Server

	mu          sync.Mutex
	commands    []queuedCommand
	audited     []map[string]any
	tokenCalls  int
	lastRequest url.Values
}

func newAccountServer(t *testing.T) *accountServer {
	t.Helper()
	s := &accountServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.tokenCalls++
		s.lastRequest = r.PostForm
		s.mu.Unlock()
		if r.PostForm.Get("code") != "goodcode" || r.PostForm.Get("code_verifier") == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		writeJSON(w, map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "bearer",
			"expires_in":    3600,
			"keys_jwe":      "eyJrZXlzIjp0cnVlfQ",
		})
	})
	mux.HandleFunc("GET /v1/profile", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, map[string]string{"uid": "uid-1", "email": "alice@example.com"})
	})
	mux.HandleFunc("GET /v1/account/device/commands", func(w http.ResponseWriter, r *http.Request) {
		since, _ := strconv.ParseInt(r.URL.Query().Get("index"), 10, 64)
		s.mu.Lock()
		defer s.mu.Unlock()
		var (
			index    = since
			messages = []map[string]any{}
		)
		for _, c := range s.commands {
			if c.Index <= since {
				continue
			}
			index = max(index, c.Index)
			messages = append(messages, map[string]any{
				"index": c.Index,
				"data":  map[string]any{"command": c.Name, "sender": "device-2", "payload": map[string]string{"uri": "https://example.com"}},
			})
		}
		writeJSON(w, map[string]any{"index": index, "last": true, "messages": messages})
	})
	mux.HandleFunc("POST /audit", func(w http.ResponseWriter, r *http.Request) {
		var event map[string]any
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.audited = append(s.audited, event)
		s.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *accountServer) queue(commands ...queuedCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, commands...)
}

func (s *accountServer) auditedTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.audited))
	for _, e := range s.audited {
		types = append(types, fmt.Sprint(e["type"]))
	}
	return types
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// testEnv is one isolated acctl installation.
type testEnv struct {
	t          *testing.T
	server     *accountServer
	configPath string
	stateDir   string
	redirect   string
	// browser is called with every authorization URL acctl prints.
	browser func(authURL string) error
	stdin   io.Reader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, key := range []string{"ACCTL_ACCOUNT", "ACCTL_OUTPUT", "ACCTL_TOKEN_STORAGE", "ACCTL_VERBOSE", "ACCTL_NO_BROWSER", "ACCTL_CONFIG"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	env := &testEnv{
		t:          t,
		server:     newAccountServer(t),
		configPath: filepath.Join(dir, "config.yaml"),
		stateDir:   filepath.Join(dir, "accounts"),
		redirect:   "http://" + freeLoopbackAddr(t) + "/callback",
	}
	env.browser = env.approve("goodcode")
	env.writeConfig(nil)
	return env
}

func (e *testEnv) writeConfig(mutate func(*config.Config)) {
	e.t.Helper()
	cfg := config.DefaultConfig()
	cfg.CurrentAccount = "default"
	cfg.Accounts = []config.Account{{
		Name:        "default",
		Server:      e.server.URL,
		ClientID:    testClientID,
		RedirectURI: e.redirect,
		Scopes:      []string{"profile"},
	}}
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(e.t, config.Save(e.configPath, &cfg))
}

// approve plays the browser: it follows the redirect with code.
func (e *testEnv) approve(code string) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}
		state := u.Query().Get("state")
		go func() {
			resp, err := http.Get(e.redirect + "?code=" + url.QueryEscape(code) + "&state=" + url.QueryEscape(state))
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	}
}

func (e *testEnv) run(args ...string) (string, error) {
	e.t.Helper()
	return e.runContext(context.Background(), args...)
}

func (e *testEnv) runContext(ctx context.Context, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	root := NewRootCommand(Config{
		ConfigPath:   e.configPath,
		OutputWriter: buf,
		StateDir:     e.stateDir,
		HTTPClient:   e.server.Client(),
		OpenBrowser:  e.browser,
		Logger:       zaptest.NewLogger(e.t),
	})
	if e.stdin != nil {
		root.SetIn(e.stdin)
	}
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "acctl %v", args)
	return out
}

func (e *testEnv) login() {
	e.t.Helper()
	e.mustRun("login")
}

func (e *testEnv) status() map[string]any {
	e.t.Helper()
	var status map[string]any
	require.NoError(e.t, json.Unmarshal([]byte(e.mustRun("status", "-o", "json")), &status))
	return status
}

func freeLoopbackAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func httpGet(rawURL string) (*http.Response, error) {
	return http.Get(rawURL) //nolint:gosec,noctx // test helper against a loopback listener
}
