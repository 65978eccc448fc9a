// Garmin Connect upload implementation of [Sink]
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ridesync/internal/shared"
)

const garminUploadURL = "https://connect.garmin.com/upload-service/upload"

// GarminUploadResponse is the body returned by the upload service.
type GarminUploadResponse struct {
	DetailedImportResult struct {
		UploadID  int64          `json:"uploadId"`
		FileName  string         `json:"fileName"`
		Successes []garminImport `json:"successes"`
		Failures  []garminImport `json:"failures"`
	} `json:"detailedImportResult"`
}

type garminImport struct {
	InternalID int64 `json:"internalId"`
	Messages   []struct {
		Code    int    `json:"code"`
		Content string `json:"content"`
	} `json:"messages"`
}

// authorizer decorates an upload request with credentials.
type authorizer func(req *http.Request) error

// GarminService is the Sink client.
type GarminService struct {
	uploadURL  string
	httpClient *http.Client
	authorize  authorizer
	logger     *log.Logger
}

// NewGarminService creates the Garmin client, preferring a token file over captured browser headers.
func NewGarminService(cfg shared.GarminConfig, client *http.Client, logger *log.Logger) (*GarminService, error) {
	var auth authorizer
	switch {
	case cfg.TokenPath != "":
		store := &shared.TokenFile{Path: cfg.TokenPath}
		auth = func(req *http.Request) error {
			tok, err := store.Load()
			if err != nil {
				return err
			}
			if !tok.Valid() {
				return fmt.Errorf("%w: garmin token expired at %s", shared.ErrTokenExpired, tok.Expiry.Format(time.RFC3339))
			}
			tok.SetAuthHeader(req)
			return nil
		}
	case cfg.HeadersPath != "":
		headers, err := shared.LoadSessionHeaders(cfg.HeadersPath)
		if err != nil {
			return nil, err
		}
		auth = func(req *http.Request) error {
			headers.Apply(req)
			return nil
		}
	default:
		return nil, fmt.Errorf("%w: set credentials.garmin.token_path or headers_path", shared.ErrMissingCredentials)
	}

	return newGarminService(cfg.UploadURL, client, auth, logger), nil
}

func newGarminService(uploadURL string, client *http.Client, auth authorizer, logger *log.Logger) *GarminService {
	if uploadURL == "" {
		uploadURL = garminUploadURL
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &GarminService{
		uploadURL:  uploadURL,
		httpClient: client,
		authorize:  auth,
		logger:     shared.WithLogger(logger, "service", "garmin"),
	}
}

// Name returns the display name of the service.
func (g *GarminService) Name() string { return "Garmin Connect" }

// Upload sends the file at path to the upload service.
//
// Rejections are reported in the result with a nil error; an error means the request itself failed or was unauthorized.
func (g *GarminService) Upload(ctx context.Context, path string) (*UploadResult, error) {
	body, contentType, err := multipartFile(path)
	if err != nil {
		return nil, err
	}

	uploadURL := g.uploadURL + "/" + filepath.Ext(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := g.authorize(req); err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("NK", "NT")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	result := &UploadResult{Status: resp.StatusCode}

	var parsed GarminUploadResponse
	if json.Unmarshal(raw, &parsed) == nil {
		result.UploadID = parsed.DetailedImportResult.UploadID
		result.Message = firstMessage(parsed)
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		result.Accepted = true
	case code == http.StatusConflict:
		result.Accepted = true
		result.Duplicate = true
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return result, fmt.Errorf("%w: garmin returned %d", shared.ErrNotAuthenticated, code)
	case code >= 500:
		return result, fmt.Errorf("%w: garmin returned %d", shared.ErrAPIRequest, code)
	default:
		if result.Message == "" {
			result.Message = string(bytes.TrimSpace(raw))
		}
	}

	g.logger.Debug("upload response", "file", filepath.Base(path), "status", resp.StatusCode, "accepted", result.Accepted, "duplicate", result.Duplicate)
	return result, nil
}

// multipartFile wraps the file at path in a single-part "file" form.
func multipartFile(path string) (*bytes.Buffer, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read artifact: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return body, mw.FormDataContentType(), nil
}

func firstMessage(r GarminUploadResponse) string {
	for _, f := range r.DetailedImportResult.Failures {
		for _, m := range f.Messages {
			if m.Content != "" {
				return m.Content
			}
		}
	}
	return ""
}
