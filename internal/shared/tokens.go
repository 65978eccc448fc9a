package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// StoredToken is the on-disk token layout. It matches the body Strava returns from its token endpoint.
type StoredToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type,omitempty"`
}

// TokenStore loads and persists an OAuth token.
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(*oauth2.Token) error
}

// TokenFile is a [TokenStore] backed by a JSON file.
//
// When the file does not exist and Getenv is set, Load falls back to
// STRAVA_ACCESS_TOKEN, STRAVA_REFRESH_TOKEN and STRAVA_EXPIRES_AT so CI jobs can inject secrets.
type TokenFile struct {
	Path   string
	Getenv func(string) string
}

// NewTokenFile returns a TokenFile at path that reads environment fallbacks from the process.
func NewTokenFile(path string) *TokenFile {
	return &TokenFile{Path: path, Getenv: os.Getenv}
}

// Load reads the token file.
func (f *TokenFile) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		if tok := f.fromEnv(); tok != nil {
			return tok, nil
		}
		return nil, fmt.Errorf("%w: no token at %s", ErrMissingCredentials, f.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var st StoredToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: malformed token file %s: %v", ErrInvalidCredentials, f.Path, err)
	}
	if st.AccessToken == "" && st.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token file %s is empty", ErrMissingCredentials, f.Path)
	}
	return st.Token(), nil
}

// Save writes tok to the token file with owner-only permissions.
func (f *TokenFile) Save(tok *oauth2.Token) error {
	if tok == nil {
		return fmt.Errorf("%w: nil token", ErrInvalidInput)
	}
	data, err := MarshalJSON(FromOAuthToken(tok), true)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(f.Path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (f *TokenFile) fromEnv() *oauth2.Token {
	if f.Getenv == nil {
		return nil
	}
	access := f.Getenv("STRAVA_ACCESS_TOKEN")
	refresh := f.Getenv("STRAVA_REFRESH_TOKEN")
	if access == "" && refresh == "" {
		return nil
	}
	expiresAt, _ := strconv.ParseInt(f.Getenv("STRAVA_EXPIRES_AT"), 10, 64)
	return StoredToken{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}.Token()
}

// Token converts the stored form into an [oauth2.Token].
//
// A zero ExpiresAt yields an already-expired token so the first use triggers a refresh.
func (s StoredToken) Token() *oauth2.Token {
	tokenType := s.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	expiry := time.Unix(s.ExpiresAt, 0)
	if s.ExpiresAt == 0 {
		expiry = time.Unix(1, 0)
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    tokenType,
		Expiry:       expiry,
	}
}

// FromOAuthToken converts an [oauth2.Token] into its stored form.
func FromOAuthToken(tok *oauth2.Token) StoredToken {
	st := StoredToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		st.ExpiresAt = tok.Expiry.Unix()
	}
	return st
}
