package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/desertthunder/tdx/internal/shared"
	"golang.org/x/oauth2"
)

// Credential is the bearer credential persisted between runs.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Valid reports whether the credential can be attached to a request.
func (c Credential) Valid() bool {
	return c.AccessToken != ""
}

// Header returns the Authorization header value, e.g. "Bearer abc".
func (c Credential) Header() string {
	typ := c.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	return typ + " " + c.AccessToken
}

// credentialFromToken converts an oauth2 token response. The previous refresh token is kept when the
// server does not rotate it.
func credentialFromToken(tok *oauth2.Token, previousRefresh string) Credential {
	c := Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if c.RefreshToken == "" {
		c.RefreshToken = previousRefresh
	}
	if c.TokenType == "" {
		c.TokenType = "Bearer"
	}
	return c
}

// CredentialStore reads and writes the credential file.
//
// Writes go to a temp file in the same directory and are renamed over the target, so a reader
// never observes a partially written credential.
type CredentialStore struct {
	path string
}

// NewCredentialStore creates a store for the file at path.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Path returns the credential file location.
func (s *CredentialStore) Path() string {
	return s.path
}

// Exists reports whether a credential file is present.
func (s *CredentialStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the credential file. A missing file yields an error matching [fs.ErrNotExist].
func (s *CredentialStore) Load() (Credential, error) {
	var c Credential

	data, err := os.ReadFile(s.path)
	if err != nil {
		return c, fmt.Errorf("failed to read credential file: %w", err)
	}

	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse credential file: %w", err)
	}

	if !c.Valid() {
		return c, fmt.Errorf("credential file %s has no access token", s.path)
	}

	return c, nil
}

// Save atomically replaces the credential file, creating parent directories on first write.
func (s *CredentialStore) Save(c Credential) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: failed to create credential directory: %v", shared.ErrStorageIO, err)
	}

	tmp, err := os.CreateTemp(dir, ".credential-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %v", shared.ErrStorageIO, err)
	}
	tmpPath := tmp.Name()

	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to write credential: %v", shared.ErrStorageIO, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(0600); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to close credential file: %v", shared.ErrStorageIO, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to replace credential file: %v", shared.ErrStorageIO, err)
	}

	return nil
}

// Remove deletes the credential file. Removing a missing file is not an error.
func (s *CredentialStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: failed to remove credential file: %v", shared.ErrStorageIO, err)
	}
	return nil
}
