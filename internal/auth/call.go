package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/tdx/internal/shared"
)

// callStep is the state of one authenticated call: attempt → refreshAndRetry → done.
type callStep int

const (
	stepAttempt callStep = iota
	stepRefreshAndRetry
	stepDone
)

// Do sends req with the bearer credential attached.
//
// An authorization failure or transport error triggers exactly one refresh followed by one replay of
// the identical request. A failure on the replay is returned verbatim. Non-auth non-2xx responses are
// returned as [*StatusError] without retry. On success the caller owns resp.Body.
func (m *SessionManager) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	callID := shared.GenerateID()
	logger := m.logger.With("call", callID, "method", req.Method, "path", req.URL.Path)

	var (
		resp *http.Response
		err  error
	)

	for step := stepAttempt; step != stepDone; {
		cred := m.credential()
		if !cred.Valid() {
			return nil, fmt.Errorf("%w: session is %s", shared.ErrAuth, m.State())
		}

		attempt := req
		if step == stepRefreshAndRetry {
			if attempt, err = replay(req); err != nil {
				return nil, err
			}
		}

		resp, err = m.send(attempt, cred)

		switch {
		case err == nil:
			step = stepDone
		case step == stepAttempt && retryable(err) && replayable(req):
			logger.Debug("call failed, refreshing and retrying once", "error", err)
			if rerr := m.refreshIfStale(ctx, cred.AccessToken); rerr != nil {
				logger.Warn("refresh before retry failed", "error", rerr)
				return nil, rerr
			}
			step = stepRefreshAndRetry
		default:
			logger.Debug("call failed", "error", err)
			return nil, err
		}
	}

	return resp, nil
}

// send performs one HTTP round trip with cred and maps failures onto the error taxonomy.
func (m *SessionManager) send(req *http.Request, cred Credential) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", cred.Header())
	if m.cfg.UserAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", m.cfg.UserAgent)
	}

	resp, err := m.client.Do(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrTransientNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp)
	}

	return resp, nil
}

func retryable(err error) bool {
	return errors.Is(err, shared.ErrAuth) || errors.Is(err, shared.ErrTransientNetwork)
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// replay returns a copy of req with a fresh body.
func replay(req *http.Request) (*http.Request, error) {
	r := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		r.Body = body
	}
	return r, nil
}
