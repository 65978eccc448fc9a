package shared

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestTokenFile(t *testing.T) {
	t.Run("Save then Load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tokens.json")
		store := &TokenFile{Path: path}
		expiry := time.Unix(1_900_000_000, 0)

		if err := store.Save(&oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: expiry}); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat failed: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected 0600 permissions, got %v", info.Mode().Perm())
		}

		tok, err := store.Load()
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if tok.AccessToken != "a" || tok.RefreshToken != "r" {
			t.Errorf("unexpected token %+v", tok)
		}
		if !tok.Expiry.Equal(expiry) {
			t.Errorf("expected expiry %v, got %v", expiry, tok.Expiry)
		}
	})

	t.Run("reads strava token body", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tokens.json")
		body := `{"token_type":"Bearer","access_token":"abc","expires_at":1700000000,"expires_in":21600,"refresh_token":"def"}`
		if err := os.WriteFile(path, []byte(body), 0600); err != nil {
			t.Fatal(err)
		}

		tok, err := (&TokenFile{Path: path}).Load()
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if tok.Expiry.Unix() != 1700000000 {
			t.Errorf("expected expires_at to map onto Expiry, got %v", tok.Expiry)
		}
		if tok.Valid() {
			t.Error("token expired in 2023 should not be valid")
		}
	})

	t.Run("env fallback when file is missing", func(t *testing.T) {
		env := map[string]string{
			"STRAVA_ACCESS_TOKEN":  "env-access",
			"STRAVA_REFRESH_TOKEN": "env-refresh",
			"STRAVA_EXPIRES_AT":    "1900000000",
		}
		store := &TokenFile{
			Path:   filepath.Join(t.TempDir(), "missing.json"),
			Getenv: func(k string) string { return env[k] },
		}

		tok, err := store.Load()
		if err != nil {
			t.Fatalf("load failed: %v", err)
		}
		if tok.AccessToken != "env-access" || tok.RefreshToken != "env-refresh" {
			t.Errorf("unexpected token %+v", tok)
		}
	})

	t.Run("missing file without env", func(t *testing.T) {
		store := &TokenFile{Path: filepath.Join(t.TempDir(), "missing.json")}
		_, err := store.Load()
		if !errors.Is(err, ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("zero expiry forces refresh", func(t *testing.T) {
		tok := StoredToken{AccessToken: "a", RefreshToken: "r"}.Token()
		if tok.Valid() {
			t.Error("token without expiry should be treated as expired")
		}
	})
}
