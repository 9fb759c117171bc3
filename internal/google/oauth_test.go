package google

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseToken(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		wantAccess  string
		wantRefresh string
		wantErr     bool
	}{
		{
			name:        "legacy pair",
			data:        "access123 refresh456\n",
			wantAccess:  "access123",
			wantRefresh: "refresh456",
		},
		{
			name:        "json token",
			data:        `{"access_token":"a","refresh_token":"r","token_type":"Bearer"}`,
			wantAccess:  "a",
			wantRefresh: "r",
		},
		{name: "single field", data: "onlyone", wantErr: true},
		{name: "three fields", data: "a b c", wantErr: true},
		{name: "empty json", data: "{}", wantErr: true},
		{name: "broken json", data: "{", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := parseToken([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tok.AccessToken != tt.wantAccess {
				t.Errorf("AccessToken = %q, want %q", tok.AccessToken, tt.wantAccess)
			}
			if tok.RefreshToken != tt.wantRefresh {
				t.Errorf("RefreshToken = %q, want %q", tok.RefreshToken, tt.wantRefresh)
			}
		})
	}
}

func TestLoadToken_MissingFile(t *testing.T) {
	if _, err := LoadToken(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("LoadToken() expected error for missing file")
	}
}

func TestLoadOAuthConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	creds := `{"installed":{"client_id":"id","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`
	if err := os.WriteFile(path, []byte(creds), 0o600); err != nil {
		t.Fatal(err)
	}

	conf, err := LoadOAuthConfig(path)
	if err != nil {
		t.Fatalf("LoadOAuthConfig() error = %v", err)
	}
	if conf.ClientID != "id" {
		t.Errorf("ClientID = %q, want %q", conf.ClientID, "id")
	}
	if len(conf.Scopes) != len(Scopes) {
		t.Errorf("Scopes = %v, want %v", conf.Scopes, Scopes)
	}

	if _, err := LoadOAuthConfig(filepath.Join(dir, "absent.json")); err == nil {
		t.Error("LoadOAuthConfig() expected error for missing file")
	}
}
