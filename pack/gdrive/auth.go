package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
)

var (
	// ErrNoCredentials indicates the OAuth client secret file is missing.
	ErrNoCredentials = errors.New("google client secret not configured")

	// ErrNoToken indicates no stored token exists yet.
	ErrNoToken = errors.New("google drive token not found")
)

// OAuthConfig reads an installed-app client secret file.
func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	if credentialsFile == "" {
		return nil, ErrNoCredentials
	}
	b, err := os.ReadFile(credentialsFile) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	cfg, err := google.ConfigFromJSON(b, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}
	return cfg, nil
}

// LoadToken reads a stored token.
func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoToken, path)
		}
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken writes a token with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// savingTokenSource persists refreshed tokens so the next process start
// does not need a new consent.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		// A failed save only costs a refresh on the next start.
		_ = SaveToken(s.path, tok)
	}
	return tok, nil
}

// TokenSource builds a refreshing token source from the client secret and
// the stored token.
func TokenSource(ctx context.Context, credentialsFile, tokenFile string) (oauth2.TokenSource, error) {
	cfg, err := OAuthConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return &savingTokenSource{
		base: cfg.TokenSource(ctx, tok),
		path: tokenFile,
		last: tok.AccessToken,
	}, nil
}
