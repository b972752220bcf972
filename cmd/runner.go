package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tdx/internal/auth"
	"github.com/desertthunder/tdx/internal/repositories"
	"github.com/desertthunder/tdx/internal/services"
	"github.com/desertthunder/tdx/internal/shared"
	"github.com/desertthunder/tdx/internal/storage"
	"github.com/desertthunder/tdx/internal/tasks"
	"github.com/desertthunder/tdx/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The session, resolver, cache and catalog are built on first use so that commands which do not need
// them (setup, cache status) never touch the network or the credential file.
type Runner struct {
	config      *shared.Config
	httpClient  *http.Client
	logger      *log.Logger
	input       io.Reader
	output      io.Writer
	styles      *ui.Palette
	openBrowser func(string) error

	session *auth.SessionManager
	tidal   *services.TidalService
	cache   *storage.Cache
	db      *sql.DB
	catalog *repositories.CachedTrackRepository
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config      *shared.Config
	HTTPClient  *http.Client
	Logger      *log.Logger
	Input       io.Reader // terminal input for the picker; nil means stdin
	Output      io.Writer
	OpenBrowser func(string) error
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
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	return &Runner{
		config:      opts.Config,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		input:       opts.Input,
		output:      opts.Output,
		styles:      ui.DefaultPalette,
		openBrowser: opts.OpenBrowser,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, searchCommand, fetchCommand, tuiCommand, cacheCommand, apiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger. Collaborators built afterwards use the new logger.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// Close releases the catalog database, if it was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db, r.catalog = nil, nil
	return err
}

// sessionManager returns the session manager without starting it.
func (r *Runner) sessionManager() (*auth.SessionManager, error) {
	if r.session != nil {
		return r.session, nil
	}

	if r.config.Tidal.ClientID == "" || r.config.Tidal.ClientSecret == "" {
		return nil, fmt.Errorf("%w: set tidal.client_id and tidal.client_secret", shared.ErrMissingCredentials)
	}

	r.session = auth.NewSessionManager(
		auth.ConfigFromShared(r.config),
		auth.WithHTTPClient(r.httpClient),
		auth.WithLogger(r.logger),
		auth.WithNotifier(r.showDeviceCode),
	)
	return r.session, nil
}

// startedSession restores the persisted session, running the device flow when there is none.
func (r *Runner) startedSession(ctx context.Context) (*auth.SessionManager, error) {
	m, err := r.sessionManager()
	if err != nil {
		return nil, err
	}
	if m.State() == auth.Authenticated {
		return m, nil
	}
	if err := m.Start(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Runner) resolver(ctx context.Context) (*services.TidalService, error) {
	if r.tidal != nil {
		return r.tidal, nil
	}

	m, err := r.startedSession(ctx)
	if err != nil {
		return nil, err
	}

	r.tidal = services.NewTidalService(m, services.ConfigFromShared(r.config), services.WithLogger(r.logger))
	return r.tidal, nil
}

func (r *Runner) store() (*storage.Cache, error) {
	if r.cache != nil {
		return r.cache, nil
	}

	capacity, err := r.config.Cache.CapacityBytes()
	if err != nil {
		return nil, err
	}

	opts := []storage.Option{storage.WithLogger(r.logger)}
	if r.config.Cache.Extension != "" {
		opts = append(opts, storage.WithExtension(r.config.Cache.Extension))
	}

	c, err := storage.Open(r.config.Cache.Dir, capacity, opts...)
	if err != nil {
		return nil, err
	}
	r.cache = c
	return c, nil
}

func (r *Runner) trackCatalog() (*repositories.CachedTrackRepository, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db = db
	r.catalog = repositories.NewCachedTrackRepository(db)
	return r.catalog, nil
}

// fetchEngine wires the resolver, cache and catalog together. The catalog is optional: a database
// that cannot be opened is logged and fetching continues without it.
func (r *Runner) fetchEngine(ctx context.Context) (*tasks.FetchEngine, error) {
	resolver, err := r.resolver(ctx)
	if err != nil {
		return nil, err
	}
	cache, err := r.store()
	if err != nil {
		return nil, err
	}

	opts := tasks.EngineOpts{
		HTTPClient:        r.httpClient,
		RequestsPerSecond: r.config.Download.RequestsPerSecond,
		Timeout:           r.config.Download.TimeoutDuration(),
		Logger:            r.logger,
	}
	if catalog, err := r.trackCatalog(); err != nil {
		r.logger.Warn("track catalog unavailable", "error", err)
	} else {
		opts.Catalog = catalog
	}

	return tasks.NewFetchEngine(resolver, cache, opts), nil
}

// showDeviceCode prints the verification link for the operator and opens it when configured.
func (r *Runner) showDeviceCode(dc auth.DeviceCode) {
	r.writePlain("%s\n", r.styles.Title("Authorize this device"))
	r.writePlain("  Visit: %s\n", dc.VerificationURL)
	r.writePlain("  Code:  %s\n", dc.UserCode)
	r.writePlain("  %s\n", r.styles.Help(fmt.Sprintf("expires in %s", dc.ExpiresIn)))

	if !r.config.Tidal.OpenBrowser {
		return
	}
	if err := r.openBrowser(dc.VerificationURL); err != nil {
		r.logger.Warn("could not open browser", "error", err)
	}
}

// hint maps an error onto a one-line operator suggestion, or "" when there is none.
func hint(err error) string {
	switch {
	case errors.Is(err, shared.ErrMissingCredentials), errors.Is(err, shared.ErrInvalidConfig):
		return "check config.toml (run 'tdx setup config' to create one)"
	case errors.Is(err, shared.ErrAuth):
		return "run 'tdx auth login' to authorize this device again"
	case errors.Is(err, shared.ErrTimedOut):
		return "the request timed out; try again"
	case errors.Is(err, shared.ErrTransientNetwork):
		return "the service could not be reached; check the network and retry"
	case errors.Is(err, shared.ErrItemTooLarge):
		return "raise cache.capacity to store this track"
	default:
		return ""
	}
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
	r.writePlain("%v\n", r.styles.Title(title))
	r.writePlain("═══════════════════════════════════════\n")
}
