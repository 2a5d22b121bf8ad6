package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Catalog     CatalogConfig     `toml:"catalog"`
	Matching    MatchingConfig    `toml:"matching"`
	Resolve     ResolveConfig     `toml:"resolve"`
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
}

// CatalogConfig holds the tracker host, credentials and request budget.
type CatalogConfig struct {
	Host              string   `toml:"host"`
	Username          string   `toml:"username"`
	Password          string   `toml:"password"`
	SessionCookie     string   `toml:"session_cookie"`
	UserAgent         string   `toml:"user_agent"`
	FormatPreferences []string `toml:"format_preferences"`
	UseTokens         bool     `toml:"use_tokens"`
	RateBurst         int      `toml:"rate_burst"`
	RateWindow        Duration `toml:"rate_window"`
	TokenBurst        int      `toml:"token_burst"`
	TokenWindow       Duration `toml:"token_window"`
}

// MatchingConfig tunes the distance function.
type MatchingConfig struct {
	RestrictAlbum bool               `toml:"restrict_album"`
	LengthGrace   float64            `toml:"length_grace"`
	LengthMax     float64            `toml:"length_max"`
	Weights       map[string]float64 `toml:"weights"`
}

// ResolveConfig controls batch resolution and its outputs.
type ResolveConfig struct {
	Concurrency      int    `toml:"concurrency"`
	TorrentDirectory string `toml:"torrent_directory"`
	M3UDirectory     string `toml:"m3u_directory"`
	CheckBuffer      bool   `toml:"check_buffer"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the last issued token.
type SpotifyConfig struct {
	ClientID     string    `toml:"client_id"`
	ClientSecret string    `toml:"client_secret"`
	RedirectURI  string    `toml:"redirect_uri"`
	AccessToken  string    `toml:"access_token"`
	RefreshToken string    `toml:"refresh_token"`
	Expiry       time.Time `toml:"expiry,omitempty"`
}

// Map returns the credentials in the form accepted by the services package.
func (c SpotifyConfig) Map() map[string]string {
	m := map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"redirect_uri":  c.RedirectURI,
		"access_token":  c.AccessToken,
		"refresh_token": c.RefreshToken,
	}
	if !c.Expiry.IsZero() {
		m["expiry"] = c.Expiry.Format(time.RFC3339)
	}
	return m
}

// Update stores a freshly issued token.
func (c *SpotifyConfig) Update(token *oauth2.Token) {
	if token == nil {
		return
	}
	c.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		c.RefreshToken = token.RefreshToken
	}
	c.Expiry = token.Expiry
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// Duration is a [time.Duration] that reads and writes TOML strings such as "11s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, text, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// RefillRate converts a burst spread over a window into tokens per second.
func RefillRate(burst int, window Duration) float64 {
	if burst <= 0 || window.Duration <= 0 {
		return 0
	}
	return float64(burst) / window.Seconds()
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Catalog.RateBurst < 1:
		return fmt.Errorf("%w: catalog.rate_burst must be at least 1", ErrInvalidConfig)
	case c.Catalog.RateWindow.Duration <= 0:
		return fmt.Errorf("%w: catalog.rate_window must be positive", ErrInvalidConfig)
	case c.Catalog.TokenBurst < 1:
		return fmt.Errorf("%w: catalog.token_burst must be at least 1", ErrInvalidConfig)
	case c.Catalog.TokenWindow.Duration <= 0:
		return fmt.Errorf("%w: catalog.token_window must be positive", ErrInvalidConfig)
	case c.Matching.LengthMax <= 0:
		return fmt.Errorf("%w: matching.length_max must be positive", ErrInvalidConfig)
	case c.Resolve.Concurrency < 1:
		return fmt.Errorf("%w: resolve.concurrency must be at least 1", ErrInvalidConfig)
	}
	return nil
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

// SaveConfig writes the configuration back to disk.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Redacted returns a copy with every secret masked, suitable for printing.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}

	c.Catalog.Password = mask(c.Catalog.Password)
	c.Catalog.SessionCookie = mask(c.Catalog.SessionCookie)
	c.Credentials.Spotify.ClientSecret = mask(c.Credentials.Spotify.ClientSecret)
	c.Credentials.Spotify.AccessToken = mask(c.Credentials.Spotify.AccessToken)
	c.Credentials.Spotify.RefreshToken = mask(c.Credentials.Spotify.RefreshToken)
	return c
}
