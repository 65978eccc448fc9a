package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/ridesync/internal/shared"
)

// memoryStore is a [shared.TokenStore] kept in memory.
type memoryStore struct {
	mu    sync.Mutex
	tok   *oauth2.Token
	saves int
	err   error
}

func (m *memoryStore) Load() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	if m.tok == nil {
		return nil, shared.ErrMissingCredentials
	}
	cp := *m.tok
	return &cp, nil
}

func (m *memoryStore) Save(tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.tok = &cp
	m.saves++
	return nil
}

var testCreds = shared.StravaConfig{ClientID: "cid", ClientSecret: "secret"}

func newTestStrava(t *testing.T, srv *httptest.Server, store shared.TokenStore) *StravaService {
	t.Helper()
	s, err := NewStravaService(testCreds, store, StravaOpts{
		HTTPClient: srv.Client(),
		BaseURL:    srv.URL + "/api/v3",
		TokenURL:   srv.URL + "/oauth/token",
		Logger:     shared.NewLogger(&strings.Builder{}),
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return s
}

func TestStravaService(t *testing.T) {
	t.Run("NewStravaService", func(t *testing.T) {
		t.Run("Missing Client ID", func(t *testing.T) {
			_, err := NewStravaService(shared.StravaConfig{ClientSecret: "s"}, &memoryStore{}, StravaOpts{})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})

		t.Run("Missing Store", func(t *testing.T) {
			if _, err := NewStravaService(testCreds, nil, StravaOpts{}); err == nil {
				t.Error("expected error for nil store")
			}
		})

		t.Run("AuthCodeURL", func(t *testing.T) {
			s, err := NewStravaService(testCreds, &memoryStore{}, StravaOpts{})
			if err != nil {
				t.Fatal(err)
			}
			u := s.AuthCodeURL("state123")
			for _, want := range []string{"www.strava.com/oauth/authorize", "client_id=cid", "approval_prompt=force", "state=state123", "activity%3Aread_all"} {
				if !strings.Contains(u, want) {
					t.Errorf("auth URL %s missing %s", u, want)
				}
			}
		})
	})

	t.Run("ListPage", func(t *testing.T) {
		t.Run("Sends paging params and maps activities", func(t *testing.T) {
			after := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v3/athlete/activities" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				q := r.URL.Query()
				if q.Get("after") != "1746057600" || q.Get("page") != "2" || q.Get("per_page") != "50" {
					t.Errorf("unexpected query %v", q)
				}
				if r.Header.Get("Authorization") != "Bearer valid" {
					t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`[
					{"id": 1234567890123, "name": "Zwift - Watopia", "type": "VirtualRide", "sport_type": "VirtualRide", "start_date": "2025-05-02T06:00:00Z"},
					{"id": 2, "name": "Lunch Run", "type": "Run", "sport_type": "Run", "start_date": "2025-05-02T12:00:00Z"}
				]`))
			}))
			defer srv.Close()

			store := &memoryStore{tok: &oauth2.Token{AccessToken: "valid", Expiry: time.Now().Add(time.Hour)}}
			activities, err := newTestStrava(t, srv, store).ListPage(context.Background(), after, 2, 50)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(activities) != 2 {
				t.Fatalf("expected 2 activities, got %d", len(activities))
			}
			if activities[0].ID != "1234567890123" || activities[0].Kind != "VirtualRide" {
				t.Errorf("unexpected first activity %+v", activities[0])
			}
			if store.saves != 0 {
				t.Error("valid token should not be re-saved")
			}
		})

		t.Run("Empty Page", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[]`))
			}))
			defer srv.Close()

			store := &memoryStore{tok: &oauth2.Token{AccessToken: "valid", Expiry: time.Now().Add(time.Hour)}}
			activities, err := newTestStrava(t, srv, store).ListPage(context.Background(), time.Now(), 1, 50)
			if err != nil {
				t.Fatal(err)
			}
			if len(activities) != 0 {
				t.Errorf("expected empty page, got %d", len(activities))
			}
		})

		t.Run("Invalid Page", func(t *testing.T) {
			s, _ := NewStravaService(testCreds, &memoryStore{}, StravaOpts{})
			if _, err := s.ListPage(context.Background(), time.Now(), 0, 50); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})

		t.Run("Server Error", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "rate limit", http.StatusTooManyRequests)
			}))
			defer srv.Close()

			store := &memoryStore{tok: &oauth2.Token{AccessToken: "valid", Expiry: time.Now().Add(time.Hour)}}
			_, err := newTestStrava(t, srv, store).ListPage(context.Background(), time.Now(), 1, 50)
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Errorf("expected ErrAPIRequest, got %v", err)
			}
		})
	})

	t.Run("Token", func(t *testing.T) {
		t.Run("Refreshes expired token and persists it", func(t *testing.T) {
			var refreshes int
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/oauth/token":
					refreshes++
					r.ParseForm()
					if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "old-refresh" {
						t.Errorf("unexpected refresh form %v", r.Form)
					}
					if r.Form.Get("client_id") != "cid" {
						t.Errorf("client credentials should be sent in params, got %v", r.Form)
					}
					w.Header().Set("Content-Type", "application/json")
					json.NewEncoder(w).Encode(map[string]any{
						"token_type":    "Bearer",
						"access_token":  "fresh",
						"refresh_token": "new-refresh",
						"expires_in":    21600,
						"expires_at":    time.Now().Add(6 * time.Hour).Unix(),
					})
				case "/api/v3/athlete/activities":
					if r.Header.Get("Authorization") != "Bearer fresh" {
						t.Errorf("request should use refreshed token, got %q", r.Header.Get("Authorization"))
					}
					w.Write([]byte(`[]`))
				}
			}))
			defer srv.Close()

			store := &memoryStore{tok: &oauth2.Token{AccessToken: "stale", RefreshToken: "old-refresh", Expiry: time.Now().Add(-time.Minute)}}
			s := newTestStrava(t, srv, store)

			if _, err := s.ListPage(context.Background(), time.Now(), 1, 50); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if refreshes != 1 {
				t.Errorf("expected 1 refresh, got %d", refreshes)
			}
			if store.saves != 1 || store.tok.AccessToken != "fresh" || store.tok.RefreshToken != "new-refresh" {
				t.Errorf("refreshed token not persisted: %+v (saves=%d)", store.tok, store.saves)
			}

			if _, err := s.ListPage(context.Background(), time.Now(), 2, 50); err != nil {
				t.Fatal(err)
			}
			if refreshes != 1 {
				t.Errorf("fresh token should not be refreshed again, got %d refreshes", refreshes)
			}
		})

		t.Run("Refresh failure is fatal", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"message":"Bad Request","errors":[{"resource":"RefreshToken","code":"invalid"}]}`))
			}))
			defer srv.Close()

			store := &memoryStore{tok: &oauth2.Token{AccessToken: "stale", RefreshToken: "revoked", Expiry: time.Now().Add(-time.Hour)}}
			_, err := newTestStrava(t, srv, store).ListPage(context.Background(), time.Now(), 1, 50)
			if !errors.Is(err, shared.ErrRefreshFailed) {
				t.Errorf("expected ErrRefreshFailed, got %v", err)
			}
			if !IsAuthError(err) {
				t.Error("refresh failure should be an auth error")
			}
		})

		t.Run("Expired token without refresh token", func(t *testing.T) {
			store := &memoryStore{tok: &oauth2.Token{AccessToken: "stale", Expiry: time.Now().Add(-time.Hour)}}
			s, _ := NewStravaService(testCreds, store, StravaOpts{})
			_, err := s.Token(context.Background())
			if !errors.Is(err, shared.ErrNoRefreshToken) || !errors.Is(err, shared.ErrRefreshFailed) {
				t.Errorf("expected ErrNoRefreshToken wrapped in ErrRefreshFailed, got %v", err)
			}
		})

		t.Run("Missing token", func(t *testing.T) {
			s, _ := NewStravaService(testCreds, &memoryStore{}, StravaOpts{})
			if _, err := s.Token(context.Background()); !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("Athlete", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v3/athlete" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte(`{"id": 77, "firstname": "Ada", "lastname": "L"}`))
		}))
		defer srv.Close()

		store := &memoryStore{tok: &oauth2.Token{AccessToken: "valid", Expiry: time.Now().Add(time.Hour)}}
		athlete, err := newTestStrava(t, srv, store).Athlete(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if athlete.ID != 77 || athlete.FirstName != "Ada" {
			t.Errorf("unexpected athlete %+v", athlete)
		}
	})

	t.Run("Unauthorized maps to token expired", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		store := &memoryStore{tok: &oauth2.Token{AccessToken: "revoked", Expiry: time.Now().Add(time.Hour)}}
		_, err := newTestStrava(t, srv, store).Athlete(context.Background())
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})
}
