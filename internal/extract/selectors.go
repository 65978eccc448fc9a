package extract

import (
	"fmt"
	"sort"
	"strings"
)

// Selectors names every page anchor the session touches.
//
// ExportLink is a format string receiving the activity id. DashboardURL is a URL fragment, not a CSS selector.
type Selectors struct {
	CookieAccept   string
	Email          string
	EmailSubmit    string
	UsePassword    string
	Password       string
	PasswordSubmit string
	DashboardURL   string
	ExportMenu     string
	ExportLink     string
}

// DefaultSelectors matches Strava's mobile login and activity pages.
func DefaultSelectors() Selectors {
	return Selectors{
		CookieAccept:   "button[data-cy='accept-cookies'], .CookieBanner button, button[id*='cookie'], button[class*='cookie']",
		Email:          "#mobile-email",
		EmailSubmit:    "#mobile-login-button",
		UsePassword:    "[data-testid='use-password-cta'] button",
		Password:       "input[data-cy='password']",
		PasswordSubmit: "button[type='submit'].Button_primary___8ywh",
		DashboardURL:   "/dashboard",
		ExportMenu:     "button.slide-menu.drop-down-menu",
		ExportLink:     "a[href*='/activities/%s/export_original']",
	}
}

func (s *Selectors) fields() map[string]*string {
	return map[string]*string{
		"cookie_accept":   &s.CookieAccept,
		"email":           &s.Email,
		"email_submit":    &s.EmailSubmit,
		"use_password":    &s.UsePassword,
		"password":        &s.Password,
		"password_submit": &s.PasswordSubmit,
		"dashboard_url":   &s.DashboardURL,
		"export_menu":     &s.ExportMenu,
		"export_link":     &s.ExportLink,
	}
}

// WithOverrides returns a copy with the named entries replaced. Keys are snake_case field names.
func (s Selectors) WithOverrides(overrides map[string]string) (Selectors, error) {
	out := s
	fields := out.fields()
	for key, value := range overrides {
		dst, ok := fields[strings.ToLower(key)]
		if !ok {
			return s, fmt.Errorf("unknown selector %q (known: %s)", key, strings.Join(selectorNames(), ", "))
		}
		if strings.TrimSpace(value) == "" {
			return s, fmt.Errorf("selector %q is empty", key)
		}
		*dst = value
	}
	if strings.Count(out.ExportLink, "%s") != 1 {
		return s, fmt.Errorf("export_link must contain exactly one %%s, got %q", out.ExportLink)
	}
	return out, nil
}

// ExportLinkFor returns the export anchor for one activity.
func (s Selectors) ExportLinkFor(activityID string) string {
	return fmt.Sprintf(s.ExportLink, activityID)
}

func selectorNames() []string {
	var s Selectors
	names := make([]string, 0, 9)
	for k := range s.fields() {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
