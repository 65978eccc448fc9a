// package services defines the HTTP clients the sync pipeline talks to
//
// Strava (Source), Garmin Connect (Sink)
package services

import (
	"context"
	"time"

	"github.com/desertthunder/ridesync/internal/models"
	"golang.org/x/oauth2"
)

// Source lists activities one page at a time.
type Source interface {
	// ListPage returns the activities started after the given time. An empty page means there is nothing further.
	ListPage(ctx context.Context, after time.Time, page, perPage int) ([]models.Activity, error)
}

// Sink accepts activity files.
type Sink interface {
	Upload(ctx context.Context, path string) (*UploadResult, error)
}

// OAuthService is implemented by clients that can run the authorization code flow.
type OAuthService interface {
	AuthCodeURL(state string) string
	OAuthConfig() *oauth2.Config
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// UploadResult describes how the Sink answered an upload.
type UploadResult struct {
	Status    int
	Accepted  bool
	Duplicate bool
	UploadID  int64
	Message   string
}
