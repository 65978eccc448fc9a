// Package services implements the Source and Sink clients used by the sync pipeline.
//
// # Strava
//
// [StravaService] lists activities from the athlete activities endpoint. Every request first
// checks the stored token against its expires_at and refreshes it through [oauth2.Config.TokenSource]
// when needed; a refreshed token is written back to the token file. A failed refresh wraps
// [shared.ErrRefreshFailed] and ends the run.
//
// # Garmin Connect
//
// [GarminService] posts a single activity file as multipart form data. It authenticates either with
// a bearer token file or with headers captured from a logged-in browser (see [shared.ParseCurlCommand]).
//
// Status codes map to three outcomes:
//   - 2xx and 409 (already uploaded) : accepted
//   - other 4xx : rejected, no error
//   - 401/403, 5xx and transport failures : error
//
// # Raw requests
//
// [APIService] issues authenticated GETs for the "api get" debugging command.
package services
