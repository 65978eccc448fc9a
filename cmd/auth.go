package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ridesync/internal/server"
	"github.com/desertthunder/ridesync/internal/services"
	"github.com/desertthunder/ridesync/internal/shared"
)

// AuthStrava performs the OAuth2 authorization code flow for the Strava API.
//
// Starts a local callback server, opens the consent page and saves the exchanged token to credentials.strava.token_path.
func (r *Runner) AuthStrava(ctx context.Context, cmd *cli.Command) error {
	strava, err := r.stravaService()
	if err != nil {
		return fmt.Errorf("%w: set credentials.strava.client_id and client_secret in %s", err, r.configPath)
	}

	result, err := r.doOAuth(ctx, strava, cmd.Duration("timeout"), !cmd.Bool("no-browser"))
	if err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	r.writePlain("✓ Token saved to %s (expires %s)\n", r.config.Credentials.Strava.TokenPath, result.Token.Expiry.Local().Format(time.DateTime))
	r.writePlain("\nYou can now use: ridesync auth status\n")
	return nil
}

// doOAuth runs the authorization flow against a local callback server.
func (r *Runner) doOAuth(ctx context.Context, srv services.OAuthService, timeout time.Duration, openBrowser bool) (*server.OAuthResult, error) {
	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, r.config.Server.Port)
	callback, err := server.NewCallbackServer(addr, server.NewOAuthHandler(srv, state), r.logger)
	if err != nil {
		return nil, err
	}

	authURL := srv.AuthCodeURL(state)
	if openBrowser {
		r.writePlain("→ Opening browser for Strava authorization...\n")
		if err := shared.OpenURL(authURL); err != nil {
			r.logger.Warn("failed to open browser automatically", "error", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	} else {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	result, err := callback.Wait(ctx, timeout)
	if err != nil {
		return nil, err
	}
	if result.Scope != "" {
		r.logger.Info("authorization granted", "scope", result.Scope)
	}
	return result, nil
}

// AuthStatus loads (and refreshes if needed) the Strava token and prints the athlete.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	strava, err := r.stravaService()
	if err != nil {
		return err
	}

	athlete, err := strava.Athlete(ctx)
	if err != nil {
		if services.IsAuthError(err) {
			r.writePlain("Strava: ✗ Not authenticated\n")
			return fmt.Errorf("%w: run 'ridesync auth strava': %w", shared.ErrNotAuthenticated, err)
		}
		return err
	}

	r.writePlain("Strava: ✓ Authenticated as %s %s", athlete.FirstName, athlete.LastName)
	if athlete.Username != "" {
		r.writePlain(" (%s)", athlete.Username)
	}
	r.writePlain("\n")

	garmin := r.config.Credentials.Garmin
	switch {
	case garmin.TokenPath != "":
		r.writePlain("Garmin: token file %s\n", garmin.TokenPath)
	case garmin.HeadersPath != "":
		if _, err := shared.LoadSessionHeaders(garmin.HeadersPath); err != nil {
			r.writePlain("Garmin: ✗ %v\n", err)
		} else {
			r.writePlain("Garmin: session headers %s\n", garmin.HeadersPath)
		}
	default:
		r.writePlain("Garmin: ✗ Not configured (run 'ridesync auth garmin')\n")
	}
	return nil
}

// AuthGarmin stores Garmin Connect session headers parsed from a browser cURL command.
func (r *Runner) AuthGarmin(ctx context.Context, cmd *cli.Command) error {
	curlCmd := cmd.String("curl")
	curlFile := cmd.String("curl-file")
	outputPath := cmd.String("output")

	if curlCmd == "" && curlFile == "" {
		return fmt.Errorf("%w: either --curl or --curl-file must be provided", shared.ErrMissingArgument)
	}
	if curlCmd != "" && curlFile != "" {
		return fmt.Errorf("%w: cannot specify both --curl and --curl-file", shared.ErrInvalidArgument)
	}

	var headers *shared.SessionHeaders
	var err error
	if curlFile != "" {
		if headers, err = shared.ParseCurlFile(curlFile); err != nil {
			return fmt.Errorf("failed to parse cURL file: %w", err)
		}
		r.logger.Info("parsed cURL from file", "file", curlFile)
	} else {
		if headers, err = shared.ParseCurlCommand(curlCmd); err != nil {
			return fmt.Errorf("failed to parse cURL command: %w", err)
		}
		r.logger.Info("parsed cURL command")
	}

	if outputPath == "" {
		outputPath = r.config.Credentials.Garmin.HeadersPath
	}
	if outputPath == "" {
		outputPath = "garmin_headers.json"
	}

	if err := shared.SaveSessionHeaders(outputPath, headers); err != nil {
		return err
	}
	r.logger.Debug("session headers saved", "path", outputPath, "headers", len(headers.Headers), "cookie", headers.Cookie != "")

	r.writePlain("✓ Garmin Connect session saved to %s\n", outputPath)
	if outputPath != r.config.Credentials.Garmin.HeadersPath {
		r.writePlainln("Next step:")
		r.writePlain("Update %s with: credentials.garmin.headers_path = \"%s\"\n", r.configPath, outputPath)
	}
	return nil
}
