// Strava API implementation of [Source]
//
// Response types based on https://developers.strava.com/docs/reference/
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/ridesync/internal/models"
	"github.com/desertthunder/ridesync/internal/shared"
)

const (
	stravaAuthURL  = "https://www.strava.com/oauth/authorize"
	stravaTokenURL = "https://www.strava.com/oauth/token"
	stravaBaseURL  = "https://www.strava.com/api/v3"
	stravaScopes   = "activity:read_all,profile:read_all"
)

// StravaActivity is the summary activity returned by the listing endpoint.
type StravaActivity struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	SportType string    `json:"sport_type"`
	StartDate time.Time `json:"start_date"`
}

// StravaAthlete is the authenticated athlete's profile.
type StravaAthlete struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	City      string `json:"city"`
	Country   string `json:"country"`
}

// StravaService is the Source client.
type StravaService struct {
	config     *oauth2.Config
	store      shared.TokenStore
	httpClient *http.Client
	baseURL    string
	logger     *log.Logger
}

// StravaOpts configures [NewStravaService]. Nil and empty fields get defaults.
type StravaOpts struct {
	HTTPClient *http.Client
	BaseURL    string
	TokenURL   string
	Logger     *log.Logger
}

// NewStravaService creates the Strava client from its config section and a token store.
func NewStravaService(creds shared.StravaConfig, store shared.TokenStore, opts StravaOpts) (*StravaService, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: strava client_id and client_secret are required", shared.ErrMissingCredentials)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: no token store", shared.ErrInvalidConfig)
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = stravaBaseURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = stravaTokenURL
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	redirect := creds.RedirectURI
	if redirect == "" {
		redirect = "http://localhost:3000/callback"
	}

	return &StravaService{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  redirect,
			Scopes:       []string{stravaScopes},
			Endpoint: oauth2.Endpoint{
				AuthURL:   stravaAuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:      store,
		httpClient: opts.HTTPClient,
		baseURL:    opts.BaseURL,
		logger:     shared.WithLogger(opts.Logger, "service", "strava"),
	}, nil
}

// Name returns the display name of the service.
func (s *StravaService) Name() string { return "Strava" }

// OAuthConfig exposes the OAuth2 configuration for the callback handler.
func (s *StravaService) OAuthConfig() *oauth2.Config { return s.config }

// AuthCodeURL returns the consent page URL. approval_prompt=force makes Strava hand out a fresh refresh token.
func (s *StravaService) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.SetAuthURLParam("approval_prompt", "force"))
}

// Exchange trades an authorization code for a token and persists it.
func (s *StravaService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.config.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	if err := s.store.Save(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// Token returns a valid access token, refreshing and persisting it when the stored one has expired.
func (s *StravaService) Token(ctx context.Context) (*oauth2.Token, error) {
	tok, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	if tok.Valid() {
		return tok, nil
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, shared.ErrNoRefreshToken)
	}

	s.logger.Info("access token expired, refreshing", "expired_at", tok.Expiry.Format(time.RFC3339))

	fresh, err := s.config.TokenSource(s.clientContext(ctx), tok).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = tok.RefreshToken
	}
	if err := s.store.Save(fresh); err != nil {
		return nil, fmt.Errorf("%w: failed to persist refreshed token: %v", shared.ErrRefreshFailed, err)
	}

	s.logger.Debug("token refreshed", "expires_at", fresh.Expiry.Format(time.RFC3339))
	return fresh, nil
}

// clientContext makes the oauth2 package use the service's HTTP client.
func (s *StravaService) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

// doRequest performs an authenticated GET against the Strava API and decodes the JSON body into result.
func (s *StravaService) doRequest(ctx context.Context, endpoint string, query url.Values, result any) error {
	tok, err := s.Token(ctx)
	if err != nil {
		return err
	}

	apiURL := s.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: strava returned 401", shared.ErrTokenExpired)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: strava status %d: %s", shared.ErrAPIRequest, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
	}
	return nil
}

// ListPage fetches one page of the athlete's activities started after the given time.
func (s *StravaService) ListPage(ctx context.Context, after time.Time, page, perPage int) ([]models.Activity, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", shared.ErrInvalidArgument)
	}

	query := url.Values{}
	query.Set("after", strconv.FormatInt(after.Unix(), 10))
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	var raw []StravaActivity
	if err := s.doRequest(ctx, "/athlete/activities", query, &raw); err != nil {
		return nil, err
	}

	activities := make([]models.Activity, 0, len(raw))
	for _, a := range raw {
		activities = append(activities, a.Activity())
	}
	return activities, nil
}

// Athlete returns the authenticated athlete.
func (s *StravaService) Athlete(ctx context.Context) (*StravaAthlete, error) {
	var athlete StravaAthlete
	if err := s.doRequest(ctx, "/athlete", nil, &athlete); err != nil {
		return nil, err
	}
	return &athlete, nil
}

// API returns a raw client for the Strava API authorized with a current token.
func (s *StravaService) API(ctx context.Context) (*APIService, error) {
	tok, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	client := oauth2.NewClient(s.clientContext(ctx), oauth2.StaticTokenSource(tok))
	return NewAPIService(s.baseURL, client), nil
}

// Activity converts the API shape into the pipeline's [models.Activity].
func (a StravaActivity) Activity() models.Activity {
	return models.Activity{
		ID:        strconv.FormatInt(a.ID, 10),
		Name:      a.Name,
		Kind:      a.Type,
		SportType: a.SportType,
		StartTime: a.StartDate,
	}
}

// IsAuthError reports whether err means the user must re-run "auth strava".
func IsAuthError(err error) bool {
	return errors.Is(err, shared.ErrRefreshFailed) ||
		errors.Is(err, shared.ErrTokenExpired) ||
		errors.Is(err, shared.ErrMissingCredentials)
}
