package shared

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override secrets from the config file.
const (
	EnvCatalogUsername     = "REDLIST_CATALOG_USERNAME"
	EnvCatalogPassword     = "REDLIST_CATALOG_PASSWORD"
	EnvCatalogSession      = "REDLIST_CATALOG_SESSION"
	EnvSpotifyClientID     = "REDLIST_SPOTIFY_CLIENT_ID"
	EnvSpotifyClientSecret = "REDLIST_SPOTIFY_CLIENT_SECRET"
)

// LoadEnv reads the given dotenv files into the process environment.
//
// Missing files are ignored; variables already set in the environment win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv copies non-empty secret overrides from the environment into config.
func ApplyEnv(config *Config) {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	set(&config.Catalog.Username, EnvCatalogUsername)
	set(&config.Catalog.Password, EnvCatalogPassword)
	set(&config.Catalog.SessionCookie, EnvCatalogSession)
	set(&config.Credentials.Spotify.ClientID, EnvSpotifyClientID)
	set(&config.Credentials.Spotify.ClientSecret, EnvSpotifyClientSecret)
}
