package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/redlist/internal/services"
	"github.com/desertthunder/redlist/internal/shared"
)

// Setup creates the config file when it is missing, initializes the database and creates the
// download and playlist directories.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			return err
		}
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return fmt.Errorf("failed to load created config: %w", err)
		}
		shared.ApplyEnv(config)
		r.config = config
		r.writePlain("✓ Config written to %s\n", r.configPath)
	}

	r.logger.Info("initializing database", "path", r.config.Database.Path)
	if _, _, err := r.repos(); err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}

	r.writePlain("✓ Database ready at %s\n", r.config.Database.Path)

	for _, dir := range []string{r.config.Resolve.TorrentDirectory, r.config.Resolve.M3UDirectory} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	r.writePlainln("Next steps:")
	r.writePlain("1. Run 'redlist setup catalog --curl-file request.sh' to import a tracker session\n")
	r.writePlain("2. Run 'redlist library import <dir>' to index your music\n")
	return nil
}

// SetupCatalog stores the tracker session cookie (and user agent) found in a copied cURL command.
func (r *Runner) SetupCatalog(ctx context.Context, cmd *cli.Command) error {
	curlCmd := cmd.String("curl")
	curlFile := cmd.String("curl-file")

	if curlCmd == "" && curlFile == "" {
		return fmt.Errorf("%w: either --curl or --curl-file must be provided", shared.ErrMissingArgument)
	}

	if curlCmd != "" && curlFile != "" {
		return fmt.Errorf("%w: cannot specify both --curl and --curl-file", shared.ErrInvalidArgument)
	}

	var curlHeaders *shared.CurlHeaders
	var err error

	if curlFile != "" {
		curlHeaders, err = shared.ParseCurlFile(curlFile)
		if err != nil {
			return fmt.Errorf("failed to parse cURL file: %w", err)
		}
		r.logger.Info("parsed cURL from file", "file", curlFile)
	} else {
		curlHeaders, err = shared.ParseCurlCommand([]byte(curlCmd))
		if err != nil {
			return fmt.Errorf("failed to parse cURL command: %w", err)
		}
	}

	session, ok := curlHeaders.CookieValue(services.SessionCookie)
	if !ok || session == "" {
		return fmt.Errorf("%w: no %q cookie in the cURL command", shared.ErrInvalidInput, services.SessionCookie)
	}

	r.config.Catalog.SessionCookie = session
	if ua := curlHeaders.UserAgent(); ua != "" {
		r.config.Catalog.UserAgent = ua
	}

	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return err
	}

	r.logger.Debug("session cookie imported", "length", len(session))
	r.writePlain("✓ Tracker session saved to %s\n", r.configPath)
	r.writePlain("Run 'redlist catalog login' to test it\n")
	return nil
}

// ConfigShow prints the loaded configuration with every secret masked.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	redacted := r.config.Redacted()
	if cmd.Bool("json") {
		return r.writeJSON(redacted, true)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(redacted); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return r.writePlain("%s", buf.String())
}
