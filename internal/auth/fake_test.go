package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/tdx/internal/shared"
)

// fakeTidal emulates the device authorization, token and sessions endpoints plus a few API routes.
type fakeTidal struct {
	*httptest.Server

	mu            sync.Mutex
	valid         string // access token the API currently accepts
	issued        int
	pendingPolls  int
	polls         int
	refreshCalls  int
	sessionCalls  int
	rejectRefresh bool
	expiresIn     int
	lastTokenBody map[string]any
}

func newFakeTidal(t *testing.T) *fakeTidal {
	t.Helper()

	f := &fakeTidal{expiresIn: 30}
	mux := http.NewServeMux()
	mux.HandleFunc("/device_authorization", f.handleDevice)
	mux.HandleFunc("/token", f.handleToken)
	mux.HandleFunc("/sessions", f.authorized(f.handleSessions))
	mux.HandleFunc("/protected", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Write(append([]byte("ok:"), body...))
	}))
	mux.HandleFunc("/revoked", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":401,"subStatus":11002}`, http.StatusUnauthorized)
	})
	mux.HandleFunc("/teapot", f.authorized(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "short and stout", http.StatusTeapot)
	}))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeTidal) config(dir string) Config {
	return Config{
		ClientID:       "client",
		ClientSecret:   "secret",
		Scopes:         []string{"r_usr", "w_usr", "w_sub"},
		DeviceAuthURL:  f.URL + "/device_authorization",
		TokenURL:       f.URL + "/token",
		SessionsURL:    f.URL + "/sessions",
		CredentialPath: filepath.Join(dir, "data", "token.json"),
		UserAgent:      "tdx-test",
	}
}

func (f *fakeTidal) setValid(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid = token
}

// expire makes the API reject every token until the next issuance.
func (f *fakeTidal) expire() { f.setValid("") }

func (f *fakeTidal) counts() (refreshes, sessions, polls int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls, f.sessionCalls, f.polls
}

func (f *fakeTidal) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ok := f.valid != "" && r.Header.Get("Authorization") == "Bearer "+f.valid
		f.mu.Unlock()

		if !ok {
			http.Error(w, `{"status":401,"subStatus":11003}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (f *fakeTidal) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method", http.StatusMethodNotAllowed)
		return
	}
	r.ParseForm()
	if r.PostForm.Get("client_id") != "client" || r.PostForm.Get("scope") != "r_usr w_usr w_sub" {
		http.Error(w, "bad client", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	expires := f.expiresIn
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"device_code":               "device-1",
		"user_code":                 "ABCDE",
		"verification_uri":          "link.tidal.com",
		"verification_uri_complete": "link.tidal.com/ABCDE",
		"expires_in":                expires,
		"interval":                  1,
	})
}

func (f *fakeTidal) handleToken(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	if r.PostForm.Get("client_secret") != "secret" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_client"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "urn:ietf:params:oauth:grant-type:device_code":
		f.polls++
		if f.polls <= f.pendingPolls {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "authorization_pending"})
			return
		}
	case "refresh_token":
		f.refreshCalls++
		if f.rejectRefresh || !strings.HasPrefix(r.PostForm.Get("refresh_token"), "refresh-") {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unsupported_grant_type"})
		return
	}

	f.issued++
	f.valid = fmt.Sprintf("access-%d", f.issued)
	f.lastTokenBody = map[string]any{
		"access_token":  f.valid,
		"refresh_token": fmt.Sprintf("refresh-%d", f.issued),
		"token_type":    "Bearer",
		"expires_in":    3600,
		"user":          map[string]any{"userId": 42},
	}
	writeJSON(w, http.StatusOK, f.lastTokenBody)
}

func (f *fakeTidal) handleSessions(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.sessionCalls++
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":   "session-1",
		"userId":      42,
		"countryCode": "US",
		"channelId":   1,
		"partnerId":   1,
		"client":      map[string]any{"id": 1},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// startedManager returns a manager restored from a credential the fake accepts.
func startedManager(t *testing.T, f *fakeTidal) *SessionManager {
	t.Helper()

	cfg := f.config(t.TempDir())
	if err := NewCredentialStore(cfg.CredentialPath).Save(Credential{
		AccessToken:  "access-0",
		RefreshToken: "refresh-0",
		TokenType:    "Bearer",
	}); err != nil {
		t.Fatalf("failed to seed credential: %v", err)
	}
	f.setValid("access-0")

	m := NewSessionManager(cfg, WithHTTPClient(f.Client()), WithLogger(shared.NewLogger(io.Discard)))
	if err := m.Start(t.Context()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	return m
}
