package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/tdx/internal/shared"
	"golang.org/x/oauth2"
)

// defaultDeviceExpiry bounds polling when the authorization server omits expires_in.
const defaultDeviceExpiry = 5 * time.Minute

// DeviceCode is what the operator needs to authorize this device.
type DeviceCode struct {
	UserCode        string
	VerificationURL string
	ExpiresIn       time.Duration
}

// deviceAuthResponse accepts both the RFC 8628 field names and the camelCase variants some
// authorization servers return.
type deviceAuthResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int64  `json:"expires_in"`
	Interval                int64  `json:"interval"`

	DeviceCodeCamel              string `json:"deviceCode"`
	UserCodeCamel                string `json:"userCode"`
	VerificationURICamel         string `json:"verificationUri"`
	VerificationURICompleteCamel string `json:"verificationUriComplete"`
	ExpiresInCamel               int64  `json:"expiresIn"`
}

func (r deviceAuthResponse) normalize(now time.Time) *oauth2.DeviceAuthResponse {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}

	expiresIn := r.ExpiresIn
	if expiresIn == 0 {
		expiresIn = r.ExpiresInCamel
	}
	expiry := defaultDeviceExpiry
	if expiresIn > 0 {
		expiry = time.Duration(expiresIn) * time.Second
	}

	return &oauth2.DeviceAuthResponse{
		DeviceCode:              pick(r.DeviceCode, r.DeviceCodeCamel),
		UserCode:                pick(r.UserCode, r.UserCodeCamel),
		VerificationURI:         pick(r.VerificationURI, r.VerificationURICamel),
		VerificationURIComplete: pick(r.VerificationURIComplete, r.VerificationURICompleteCamel),
		Expiry:                  now.Add(expiry),
		Interval:                r.Interval,
	}
}

// login runs the device-code flow. Requires authMu.
//
// Nothing is written to disk unless the token endpoint returns a credential before the device code expires.
func (m *SessionManager) login(ctx context.Context) error {
	m.setState(Authorizing)

	da, err := m.requestDeviceCode(ctx)
	if err != nil {
		m.setState(Unauthenticated)
		return err
	}

	link := da.VerificationURIComplete
	if link == "" {
		link = da.VerificationURI
	}
	m.notify(DeviceCode{
		UserCode:        da.UserCode,
		VerificationURL: shared.EnsureScheme(link),
		ExpiresIn:       da.Expiry.Sub(m.now()).Round(time.Second),
	})

	tok, err := m.oauth.DeviceAccessToken(m.oauthContext(ctx), da)
	if err != nil {
		m.setState(Unauthenticated)
		return classifyDeviceError(err)
	}

	cred := credentialFromToken(tok, "")
	if err := m.store.Save(cred); err != nil {
		m.setState(Unauthenticated)
		return err
	}
	m.setCredential(cred)

	identity, err := m.deriveIdentity(ctx, cred)
	if err != nil {
		m.setState(Unauthenticated)
		return fmt.Errorf("%w: failed to derive identity after login: %w", shared.ErrAuth, err)
	}

	m.setIdentity(identity, Authenticated)
	m.logger.Info("device authorized", "country", identity.CountryCode(), "path", m.store.Path())
	return nil
}

// requestDeviceCode posts client_id and scope to the device authorization endpoint.
func (m *SessionManager) requestDeviceCode(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	form := url.Values{
		"client_id": {m.cfg.ClientID},
		"scope":     {strings.Join(m.cfg.Scopes, " ")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.DeviceAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if m.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", m.cfg.UserAgent)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: device authorization: %w", shared.ErrTransientNetwork, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp)
	}
	defer resp.Body.Close()

	var payload deviceAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: failed to decode device authorization: %v", shared.ErrUpstreamRejected, err)
	}

	da := payload.normalize(m.now())
	if da.DeviceCode == "" {
		return nil, fmt.Errorf("%w: device authorization has no device code", shared.ErrUpstreamRejected)
	}

	return da, nil
}

// classifyDeviceError maps polling failures onto the error taxonomy.
func classifyDeviceError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: device code expired before authorization", shared.ErrTimedOut)
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "expired_token":
			return fmt.Errorf("%w: device code expired before authorization", shared.ErrTimedOut)
		case "access_denied":
			return fmt.Errorf("%w: authorization denied: %w", shared.ErrAuth, err)
		}
		return fmt.Errorf("%w: device token: %w", shared.ErrUpstreamRejected, err)
	}

	return fmt.Errorf("%w: device token: %w", shared.ErrTransientNetwork, err)
}
