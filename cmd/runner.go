package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/redlist/internal/matching"
	"github.com/desertthunder/redlist/internal/repositories"
	"github.com/desertthunder/redlist/internal/services"
	"github.com/desertthunder/redlist/internal/shared"
	"github.com/desertthunder/redlist/internal/tasks"
)

// catalogClient is everything the commands need from the tracker.
type catalogClient interface {
	services.Service
	services.Catalog
	services.ArtifactFetcher
	Keys() services.AuthKeys
}

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Remote services and the database are created on first use so that commands which need none of
// them (setup, config show) work without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	catalog    catalogClient
	spotify    services.PlaylistSource
	db         *sql.DB
	library    *repositories.LibraryRepository
	history    *repositories.ResolutionRepository
	logger     *log.Logger
	output     io.Writer
	isTTY      func() bool
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Catalog    catalogClient
	Spotify    services.PlaylistSource
	DB         *sql.DB
	Logger     *log.Logger
	Output     io.Writer
	IsTTY      func() bool
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.IsTTY == nil {
		opts.IsTTY = stdoutIsTerminal
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		catalog:    opts.Catalog,
		spotify:    opts.Spotify,
		logger:     opts.Logger,
		output:     opts.Output,
		isTTY:      opts.IsTTY,
	}
	if opts.DB != nil {
		r.useDatabase(opts.DB)
	}
	return r
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, configCommand, spotifyCommand, libraryCommand, catalogCommand, resolveCommand, historyCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// load reads the config file named by --config, applies environment overrides and the log level.
//
// A missing file leaves the defaults in place.
func (r *Runner) load(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	r.configPath = cmd.String("config")
	if _, err := os.Stat(r.configPath); err == nil {
		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return ctx, err
		}
		r.config = config
	} else {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
	}

	shared.ApplyEnv(r.config)
	return ctx, nil
}

// catalogService returns the authenticated tracker client, creating it on first use.
func (r *Runner) catalogService(ctx context.Context) (catalogClient, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}

	svc, err := services.NewCatalogService(r.config.Catalog, services.WithCatalogLogger(r.logger))
	if err != nil {
		return nil, err
	}

	err = svc.Authenticate(ctx, map[string]string{
		"session":  r.config.Catalog.SessionCookie,
		"username": r.config.Catalog.Username,
		"password": r.config.Catalog.Password,
	})
	if err != nil {
		return nil, err
	}

	r.catalog = svc
	return svc, nil
}

// playlistSource returns the Spotify client, authenticated with the stored token.
func (r *Runner) playlistSource(ctx context.Context) (services.PlaylistSource, error) {
	if r.spotify != nil {
		return r.spotify, nil
	}

	creds := r.config.Credentials.Spotify
	svc, err := services.NewSpotifyService(creds.Map())
	if err != nil {
		return nil, err
	}
	svc.SetLogger(r.logger)
	svc.SetTokenRefreshCallback(func(token *oauth2.Token) {
		if err := r.saveTokens(token); err != nil {
			r.logger.Warn("failed to persist refreshed spotify token", "error", err)
		}
	})

	if creds.AccessToken == "" {
		return nil, fmt.Errorf("%w: run 'redlist spotify auth' first", shared.ErrNotAuthenticated)
	}
	if err := svc.Authenticate(ctx, creds.Map()); err != nil {
		return nil, err
	}

	r.spotify = svc
	return svc, nil
}

// repos opens the database on first use.
func (r *Runner) repos() (*repositories.LibraryRepository, *repositories.ResolutionRepository, error) {
	if r.db == nil {
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return nil, nil, err
		}
		r.useDatabase(db)
	}
	return r.library, r.history, nil
}

func (r *Runner) useDatabase(db *sql.DB) {
	r.db = db
	r.library = repositories.NewLibraryRepository(db)
	r.history = repositories.NewResolutionRepository(db)
}

// Close releases the database.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Runner) matcher() *matching.Matcher {
	return matching.NewMatcher(r.config.Matching)
}

// resolver builds a release resolver over catalog with the configured preferences.
func (r *Runner) resolver(catalog services.Catalog) (*tasks.Resolver, error) {
	prefs, err := tasks.CompilePreferences(r.config.Catalog.FormatPreferences)
	if err != nil {
		return nil, err
	}
	return tasks.NewResolver(catalog, r.matcher(), prefs, r.logger), nil
}

// saveTokens stores token in the config and writes the config file when one is known.
func (r *Runner) saveTokens(token *oauth2.Token) error {
	if r.config == nil {
		return fmt.Errorf("%w: config is nil", shared.ErrMissingConfig)
	}
	if token == nil {
		return fmt.Errorf("%w: token cannot be nil", shared.ErrInvalidArgument)
	}

	r.config.Credentials.Spotify.Update(token)
	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
