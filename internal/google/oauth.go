package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// LoadOAuthConfig reads a Google client credentials JSON file.
func LoadOAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	conf, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	return conf, nil
}

// LoadToken reads a token file in JSON or legacy two-field form.
func LoadToken(tokenFile string) (*oauth2.Token, error) {
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("no valid Google OAuth token found: %w", err)
	}
	return parseToken(data)
}

func parseToken(data []byte) (*oauth2.Token, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var tok oauth2.Token
		if err := json.Unmarshal([]byte(trimmed), &tok); err != nil {
			return nil, fmt.Errorf("invalid token file: %w", err)
		}
		if tok.RefreshToken == "" && tok.AccessToken == "" {
			return nil, fmt.Errorf("invalid token file: no access or refresh token")
		}
		return &tok, nil
	}

	f := strings.Fields(trimmed)
	if len(f) != 2 {
		return nil, fmt.Errorf("invalid token format")
	}
	// Expired on purpose so the first call refreshes.
	return &oauth2.Token{
		AccessToken:  f[0],
		TokenType:    "Bearer",
		RefreshToken: f[1],
		Expiry:       time.Unix(1, 0),
	}, nil
}

// NewHTTPClient returns an OAuth2 HTTP client for the provider's token.
// The client is pinned to HTTP/1.1 to avoid HTTP/2 protocol errors seen
// against the Gmail API.
func NewHTTPClient(ctx context.Context, p TokenProvider) (*http.Client, error) {
	ts, err := p.TokenSource(ctx)
	if err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base:   &http.Transport{ForceAttemptHTTP2: false},
		},
		Timeout: 60 * time.Second,
	}, nil
}
