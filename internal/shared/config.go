package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Sync        SyncConfig        `toml:"sync"`
	Browser     BrowserConfig     `toml:"browser"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Strava StravaConfig `toml:"strava"`
	Garmin GarminConfig `toml:"garmin"`
}

// StravaConfig holds the API application credentials, the token file and the web login used by the exporter.
type StravaConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
	TokenPath    string `toml:"token_path"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
}

// GarminConfig points the upload client at its endpoint and credentials.
//
// Either TokenPath (an OAuth2 token file) or HeadersPath (browser headers captured with "auth garmin") must be set.
type GarminConfig struct {
	UploadURL   string `toml:"upload_url"`
	TokenPath   string `toml:"token_path"`
	HeadersPath string `toml:"headers_path"`
}

// DatabaseConfig contains database connection settings.
//
// Driver is "sqlite3" (Path) or "postgres" (DSN).
type DatabaseConfig struct {
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	DSN          string `toml:"dsn"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings for the OAuth callback.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// SyncConfig controls which activities are listed and how many are processed per run.
type SyncConfig struct {
	WindowDays   int    `toml:"window_days"`
	ActivityType string `toml:"activity_type"`
	PageSize     int    `toml:"page_size"`
	PageDelayMS  int    `toml:"page_delay_ms"`
	Limit        int    `toml:"limit"`
	ScratchDir   string `toml:"scratch_dir"`
}

// BrowserConfig controls the export browser session.
type BrowserConfig struct {
	Headless           bool              `toml:"headless"`
	ExecPath           string            `toml:"exec_path"`
	UserAgent          string            `toml:"user_agent"`
	ViewportWidth      int               `toml:"viewport_width"`
	ViewportHeight     int               `toml:"viewport_height"`
	CookieTimeoutSec   int               `toml:"cookie_timeout_seconds"`
	ElementTimeoutSec  int               `toml:"element_timeout_seconds"`
	LoginTimeoutSec    int               `toml:"login_timeout_seconds"`
	DownloadTimeoutSec int               `toml:"download_timeout_seconds"`
	DownloadPauseMS    int               `toml:"download_pause_ms"`
	KeyDelayMinMS      int               `toml:"key_delay_min_ms"`
	KeyDelayMaxMS      int               `toml:"key_delay_max_ms"`
	ScreenshotsDir     string            `toml:"screenshots_dir"`
	Selectors          map[string]string `toml:"selectors"`
}

// MetricsConfig enables writing run metrics in the node exporter textfile format.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// PageDelay returns the courtesy delay between listing pages.
func (s SyncConfig) PageDelay() time.Duration {
	return time.Duration(s.PageDelayMS) * time.Millisecond
}

// CookieTimeout is how long the session looks for a consent prompt.
func (b BrowserConfig) CookieTimeout() time.Duration {
	return seconds(b.CookieTimeoutSec, 5)
}

// ElementTimeout bounds waits for form fields and menus.
func (b BrowserConfig) ElementTimeout() time.Duration {
	return seconds(b.ElementTimeoutSec, 20)
}

// LoginTimeout bounds the wait for the authenticated landing page.
func (b BrowserConfig) LoginTimeout() time.Duration {
	return seconds(b.LoginTimeoutSec, 30)
}

// DownloadTimeout bounds each activity export.
func (b BrowserConfig) DownloadTimeout() time.Duration {
	return seconds(b.DownloadTimeoutSec, 60)
}

// DownloadPause is the pause between consecutive exports.
func (b BrowserConfig) DownloadPause() time.Duration {
	return time.Duration(b.DownloadPauseMS) * time.Millisecond
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides secrets and a few run settings from the environment.
//
// Scheduled runs usually keep the Strava login out of the config file.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	setString(&c.Credentials.Strava.Username, "STRAVA_USER")
	setString(&c.Credentials.Strava.Password, "STRAVA_PASS")
	setString(&c.Credentials.Strava.ClientID, "STRAVA_CLIENT_ID")
	setString(&c.Credentials.Strava.ClientSecret, "STRAVA_CLIENT_SECRET")
	setString(&c.Database.DSN, "RIDESYNC_DATABASE_DSN")

	if v := getenv("ACTIVITY_DAYS_RANGE"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			c.Sync.WindowDays = days
		}
	}

	if strings.EqualFold(getenv("DEBUG_SCREENSHOTS"), "ON") && c.Browser.ScreenshotsDir == "" {
		c.Browser.ScreenshotsDir = "screenshots"
	}
}

// Validate checks the settings a sync run cannot do without.
func (c *Config) Validate() error {
	if c.Sync.WindowDays <= 0 {
		return fmt.Errorf("%w: sync.window_days must be positive", ErrInvalidConfig)
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("%w: sync.page_size must be positive", ErrInvalidConfig)
	}
	if c.Sync.ActivityType == "" {
		return fmt.Errorf("%w: sync.activity_type is empty", ErrInvalidConfig)
	}
	switch c.Database.Driver {
	case "", "sqlite3", "postgres":
	default:
		return fmt.Errorf("%w: unknown database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	return nil
}
