package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/tdx/internal/auth"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin runs the device-code flow and persists the resulting credential.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	m, err := r.sessionManager()
	if err != nil {
		return err
	}

	if err := m.Login(ctx); err != nil {
		return err
	}

	id, _ := m.Identity()
	r.writePlain("%s\n", r.styles.OK("Authorized"))
	r.writePlain("Country: %s\n", id.CountryCode())
	r.writePlain("Credential saved to: %s\n", m.CredentialPath())
	return nil
}

// AuthStatus restores the persisted session and reports its identity.
//
// Unlike other commands, status never starts the device flow: without a credential it only reports
// that the device is not authorized.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	m, err := r.sessionManager()
	if err != nil {
		return err
	}

	r.writePlainHeader("Session")

	if !auth.NewCredentialStore(m.CredentialPath()).Exists() {
		r.writePlain("State: %s\n", auth.Unauthenticated)
		r.writePlain("%s\n", r.styles.Warn("No credential at "+m.CredentialPath()))
		return nil
	}

	if err := m.Start(ctx); err != nil {
		r.writePlain("State: %s\n", m.State())
		r.writePlain("%s\n", r.styles.Err(err.Error()))
		if errors.Is(err, shared.ErrAuth) {
			return nil
		}
		return err
	}

	id, _ := m.Identity()
	r.writePlain("State: %s\n", m.State())
	r.writePlain("User: %d\n", id.UserID())
	r.writePlain("Country: %s\n", id.CountryCode())
	r.writePlain("Credential: %s\n", m.CredentialPath())
	return nil
}

// AuthRefresh forces a token refresh.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	m, err := r.startedSession(ctx)
	if err != nil {
		return err
	}

	if err := m.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	return r.writePlain("%s\n", r.styles.OK("Access token refreshed"))
}

// AuthLogout removes the persisted credential.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	m, err := r.sessionManager()
	if err != nil {
		return err
	}

	if err := m.Logout(); err != nil {
		return err
	}

	r.logger.Info("logged out", "path", m.CredentialPath())
	return r.writePlain("%s\n", r.styles.OK("Logged out"))
}
