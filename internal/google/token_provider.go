package google

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenProvider supplies OAuth tokens for Google APIs.
type TokenProvider interface {
	TokenSource(ctx context.Context) (oauth2.TokenSource, error)
}

// FileTokenProvider reads credentials and token from disk.
type FileTokenProvider struct {
	CredentialsFile string
	TokenFile       string
}

// NewFileTokenProvider creates a file-based token provider.
func NewFileTokenProvider(credentialsFile, tokenFile string) *FileTokenProvider {
	return &FileTokenProvider{CredentialsFile: credentialsFile, TokenFile: tokenFile}
}

// TokenSource returns a refreshing token source backed by the token file.
func (p *FileTokenProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	conf, err := LoadOAuthConfig(p.CredentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(p.TokenFile)
	if err != nil {
		return nil, err
	}
	ts := conf.TokenSource(ctx, tok)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("cached token is invalid: %w", err)
	}
	return ts, nil
}
