// Capturing a logged-in browser session from a "Copy as cURL" command.
package shared

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strings"
)

var (
	curlHeaderFlag = regexp.MustCompile(`(?:-H|--header)\s+(?:'([^']+)'|"([^"]+)")`)
	curlCookieFlag = regexp.MustCompile(`(?:-b|--cookie)\s+(?:'([^']+)'|"([^"]+)")`)
)

// headers a replayed request must compute for itself
var skippedHeaders = map[string]bool{
	"content-type":    true,
	"content-length":  true,
	"accept-encoding": true,
	"host":            true,
	"connection":      true,
}

// SessionHeaders are the request headers and cookie of a captured browser session.
type SessionHeaders struct {
	Headers map[string]string `json:"headers"`
	Cookie  string            `json:"cookie"`
}

// ParseCurlFile reads a file containing a cURL command and extracts its session headers.
func ParseCurlFile(path string) (*SessionHeaders, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curl file: %w", err)
	}
	return ParseCurlCommand(string(content))
}

// ParseCurlCommand extracts headers and the cookie from a cURL command line.
//
// A cookie passed with -b wins over a Cookie header.
func ParseCurlCommand(command string) (*SessionHeaders, error) {
	command = strings.ReplaceAll(command, "\\\r\n", " ")
	command = strings.ReplaceAll(command, "\\\n", " ")

	sh := &SessionHeaders{Headers: make(map[string]string)}
	var headerCookie string

	for _, match := range curlHeaderFlag.FindAllStringSubmatch(command, -1) {
		key, value, ok := strings.Cut(firstGroup(match), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		switch lower := strings.ToLower(key); {
		case lower == "cookie":
			if headerCookie == "" {
				headerCookie = value
			}
		case skippedHeaders[lower]:
		default:
			sh.Headers[key] = value
		}
	}

	if match := curlCookieFlag.FindStringSubmatch(command); match != nil {
		sh.Cookie = firstGroup(match)
	} else {
		sh.Cookie = headerCookie
	}

	if len(sh.Headers) == 0 && sh.Cookie == "" {
		return nil, fmt.Errorf("%w: no headers found in curl command", ErrInvalidInput)
	}
	return sh, nil
}

func firstGroup(match []string) string {
	for _, g := range match[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// Apply sets the captured headers and cookie on req.
func (s *SessionHeaders) Apply(req *http.Request) {
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}
	if s.Cookie != "" {
		req.Header.Set("Cookie", s.Cookie)
	}
}

// Get looks up a header case-insensitively.
func (s *SessionHeaders) Get(key string) string {
	for k, v := range s.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// SaveSessionHeaders writes s as JSON with owner-only permissions.
func SaveSessionHeaders(path string, s *SessionHeaders) error {
	data, err := MarshalJSON(s, true)
	if err != nil {
		return fmt.Errorf("failed to encode headers: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write headers file: %w", err)
	}
	return nil
}

// LoadSessionHeaders reads headers saved by [SaveSessionHeaders].
func LoadSessionHeaders(path string) (*SessionHeaders, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read headers file: %v", ErrMissingCredentials, err)
	}
	var s SessionHeaders
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: malformed headers file %s: %v", ErrInvalidCredentials, path, err)
	}
	if s.Headers == nil {
		s.Headers = make(map[string]string)
	}
	return &s, nil
}
