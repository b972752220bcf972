package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/shared"
	"golang.org/x/oauth2"
)

// State is the session lifecycle state.
type State int

const (
	Unauthenticated State = iota
	Authorizing
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authorizing:
		return "authorizing"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Config holds client credentials and endpoints for the session.
type Config struct {
	ClientID       string
	ClientSecret   string
	Scopes         []string
	DeviceAuthURL  string
	TokenURL       string
	SessionsURL    string
	CredentialPath string
	UserAgent      string
}

// ConfigFromShared builds a session Config from the application config.
func ConfigFromShared(c *shared.Config) Config {
	return Config{
		ClientID:       c.Tidal.ClientID,
		ClientSecret:   c.Tidal.ClientSecret,
		Scopes:         c.Tidal.Scopes,
		DeviceAuthURL:  c.Tidal.DeviceAuthURL,
		TokenURL:       c.Tidal.TokenURL,
		SessionsURL:    c.Tidal.APIURL + "/sessions",
		CredentialPath: c.Session.CredentialPath,
		UserAgent:      c.Tidal.UserAgent,
	}
}

// Identity is the account metadata derived from a valid access token. Only the session manager
// creates one, by calling the sessions endpoint.
type Identity struct {
	sessionID   string
	countryCode string
	userID      int64
}

func (i Identity) SessionID() string   { return i.sessionID }
func (i Identity) CountryCode() string { return i.countryCode }
func (i Identity) UserID() int64       { return i.userID }

type sessionResponse struct {
	SessionID   string `json:"sessionId"`
	UserID      int64  `json:"userId"`
	CountryCode string `json:"countryCode"`
}

// Option configures a [SessionManager].
type Option func(*SessionManager)

// WithHTTPClient sets the client used for every call, including token exchanges.
func WithHTTPClient(c *http.Client) Option {
	return func(m *SessionManager) { m.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *SessionManager) { m.logger = l }
}

// WithNotifier sets the callback that shows the device verification link to the operator.
func WithNotifier(fn func(DeviceCode)) Option {
	return func(m *SessionManager) { m.notify = fn }
}

// SessionManager owns the bearer credential and identity and hides refresh and retry from callers.
//
// authMu serialises state transitions (login, refresh, identity derivation). mu guards the
// credential snapshot so ordinary calls proceed concurrently.
type SessionManager struct {
	cfg    Config
	oauth  *oauth2.Config
	store  *CredentialStore
	client *http.Client
	logger *log.Logger
	notify func(DeviceCode)
	now    func() time.Time

	authMu sync.Mutex

	mu          sync.RWMutex
	cred        Credential
	identity    Identity
	hasIdentity bool
	state       State
}

// NewSessionManager creates an unauthenticated session manager. Call [SessionManager.Start] before use.
func NewSessionManager(cfg Config, opts ...Option) *SessionManager {
	m := &SessionManager{
		cfg:    cfg,
		store:  NewCredentialStore(cfg.CredentialPath),
		client: http.DefaultClient,
		now:    time.Now,
		state:  Unauthenticated,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = shared.NewLogger(nil)
	}
	m.logger = shared.WithLogger(m.logger, "component", "session")

	if m.notify == nil {
		m.notify = func(dc DeviceCode) {
			m.logger.Info("authorize this device", "url", dc.VerificationURL, "code", dc.UserCode, "expires_in", dc.ExpiresIn)
		}
	}

	m.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			DeviceAuthURL: cfg.DeviceAuthURL,
			TokenURL:      cfg.TokenURL,
			AuthStyle:     oauth2.AuthStyleInParams,
		},
	}

	return m
}

// State returns the current lifecycle state.
func (m *SessionManager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity returns the derived identity, if the session is authenticated.
func (m *SessionManager) Identity() (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity, m.hasIdentity
}

// SessionID returns the derived session id, or "" before authentication.
func (m *SessionManager) SessionID() string {
	id, _ := m.Identity()
	return id.SessionID()
}

// CountryCode returns the derived country code, or "" before authentication.
func (m *SessionManager) CountryCode() string {
	id, _ := m.Identity()
	return id.CountryCode()
}

// CredentialPath returns the location of the persisted credential.
func (m *SessionManager) CredentialPath() string {
	return m.store.Path()
}

// Start loads the persisted credential and derives the identity, refreshing once if derivation fails.
// Without a credential file it runs the device-code flow.
func (m *SessionManager) Start(ctx context.Context) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	cred, err := m.store.Load()
	if errors.Is(err, fs.ErrNotExist) {
		m.logger.Info("no credential file, starting device authorization", "path", m.store.Path())
		return m.login(ctx)
	}
	if err != nil {
		m.setState(Unauthenticated)
		return fmt.Errorf("%w: %w", shared.ErrAuth, err)
	}

	m.setCredential(cred)

	identity, err := m.deriveIdentity(ctx, cred)
	if err == nil {
		m.setIdentity(identity, Authenticated)
		m.logger.Info("session restored", "country", identity.CountryCode())
		return nil
	}

	m.logger.Warn("identity derivation failed, refreshing", "error", err)
	if err := m.refreshLocked(ctx); err != nil {
		m.setState(Unauthenticated)
		return fmt.Errorf("%w: session could not be restored: %w", shared.ErrAuth, err)
	}

	return nil
}

// Login runs the device-code flow unconditionally, replacing any persisted credential on success.
func (m *SessionManager) Login(ctx context.Context) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()
	return m.login(ctx)
}

// Refresh exchanges the refresh token for a new access token, re-derives the identity and persists the
// credential. A rejected refresh token leaves the session unauthenticated and the file untouched.
func (m *SessionManager) Refresh(ctx context.Context) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()
	return m.refreshLocked(ctx)
}

// Logout forgets the in-memory credential and removes the credential file.
func (m *SessionManager) Logout() error {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	m.mu.Lock()
	m.cred = Credential{}
	m.identity = Identity{}
	m.hasIdentity = false
	m.state = Unauthenticated
	m.mu.Unlock()

	return m.store.Remove()
}

// refreshIfStale refreshes unless another caller already replaced the token that failed.
func (m *SessionManager) refreshIfStale(ctx context.Context, failedToken string) error {
	m.authMu.Lock()
	defer m.authMu.Unlock()

	if cur := m.credential(); cur.Valid() && cur.AccessToken != failedToken {
		m.logger.Debug("token already refreshed by a concurrent call")
		return nil
	}

	return m.refreshLocked(ctx)
}

// refreshLocked requires authMu.
func (m *SessionManager) refreshLocked(ctx context.Context) error {
	prev := m.credential()
	prevState := m.State()

	if prev.RefreshToken == "" {
		m.setState(Unauthenticated)
		return fmt.Errorf("%w: no refresh token available", shared.ErrAuth)
	}

	m.setState(Refreshing)
	m.logger.Debug("refreshing access token")

	src := m.oauth.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: prev.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		if refreshRejected(err) {
			m.setState(Unauthenticated)
			m.logger.Error("refresh token rejected, run the device flow again", "error", err)
			return fmt.Errorf("%w: refresh token rejected: %w", shared.ErrAuth, err)
		}
		m.setState(prevState)
		return fmt.Errorf("%w: refresh failed: %w", shared.ErrTransientNetwork, err)
	}

	next := credentialFromToken(tok, prev.RefreshToken)
	m.setCredential(next)

	identity, err := m.deriveIdentity(ctx, next)
	if err != nil {
		if IsAuthFailure(err) {
			m.setState(Unauthenticated)
		} else {
			m.setState(Authenticated)
		}
		return fmt.Errorf("failed to derive identity after refresh: %w", err)
	}

	// A rotated refresh token only lives in memory until this succeeds.
	if err := m.store.Save(next); err != nil {
		m.setState(prevState)
		m.logger.Error("failed to persist refreshed credential", "path", m.store.Path(), "error", err)
		return fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	m.setIdentity(identity, Authenticated)
	m.logger.Info("access token refreshed")
	return nil
}

// refreshRejected reports whether the token endpoint refused the refresh token itself.
func refreshRejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client" || re.ErrorCode == "unauthorized_client" {
		return true
	}
	if re.Response == nil {
		return false
	}
	code := re.Response.StatusCode
	return code == http.StatusBadRequest || isAuthStatus(code)
}

// deriveIdentity calls the sessions endpoint with cred.
func (m *SessionManager) deriveIdentity(ctx context.Context, cred Credential) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.SessionsURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.send(req, cred)
	if err != nil {
		return Identity{}, err
	}
	defer resp.Body.Close()

	var payload sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Identity{}, fmt.Errorf("%w: failed to decode session: %v", shared.ErrUpstreamRejected, err)
	}
	if payload.SessionID == "" {
		return Identity{}, fmt.Errorf("%w: session response has no session id", shared.ErrUpstreamRejected)
	}

	return Identity{
		sessionID:   payload.SessionID,
		countryCode: payload.CountryCode,
		userID:      payload.UserID,
	}, nil
}

func (m *SessionManager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.client)
}

func (m *SessionManager) credential() Credential {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred
}

func (m *SessionManager) setCredential(c Credential) {
	m.mu.Lock()
	m.cred = c
	m.mu.Unlock()
}

func (m *SessionManager) setIdentity(i Identity, s State) {
	m.mu.Lock()
	m.identity = i
	m.hasIdentity = true
	m.state = s
	m.mu.Unlock()
}

func (m *SessionManager) setState(s State) {
	m.mu.Lock()
	m.state = s
	if s == Unauthenticated {
		m.hasIdentity = false
	}
	m.mu.Unlock()
}
