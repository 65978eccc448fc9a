package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/ridesync/internal/extract"
	"github.com/desertthunder/ridesync/internal/observability"
	"github.com/desertthunder/ridesync/internal/repositories"
	"github.com/desertthunder/ridesync/internal/services"
	"github.com/desertthunder/ridesync/internal/shared"
	"github.com/desertthunder/ridesync/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Storage and service clients are opened lazily so commands like "config init" work without credentials.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	httpClient *http.Client
	launcher   extract.Launcher
	metrics    *observability.Metrics

	source services.Source
	sink   services.Sink
	strava *services.StravaService

	ledger  repositories.Ledger
	runs    *repositories.RunRepository
	closers []func()
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Source, Sink and Launcher replace the Strava client, the Garmin client and Chrome.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	HTTPClient *http.Client
	Launcher   extract.Launcher
	Source     services.Source
	Sink       services.Sink
}

// NewRunner creates a new Runner with the provided configuration.
//
// A nil Config is loaded from the --config flag before the command runs.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Launcher == nil {
		opts.Launcher = extract.ChromeLauncher{Logger: opts.Logger}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		httpClient: opts.HTTPClient,
		launcher:   opts.Launcher,
		metrics:    observability.NewMetrics(),
		source:     opts.Source,
		sink:       opts.Sink,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		syncCommand, activitiesCommand, watchCommand, ledgerCommand, historyCommand,
		authCommand, configCommand, dbCommand, apiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before applies the global flags and loads the configuration.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	switch {
	case cmd.Bool("verbose"):
		shared.SetLogLevel(r.logger, log.DebugLevel)
	case cmd.Bool("quiet"):
		shared.SetLogLevel(r.logger, log.WarnLevel)
	}

	if r.configPath == "" {
		r.configPath = cmd.String("config")
	}
	if r.config != nil {
		return ctx, nil
	}

	config, err := r.loadConfig(r.configPath)
	if err != nil {
		return ctx, err
	}
	config.ApplyEnv(nil)
	r.config = config
	return ctx, nil
}

func (r *Runner) loadConfig(path string) (*shared.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return shared.DefaultConfig(), nil
	}
	config, err := shared.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("loaded config", "path", path)
	return config, nil
}

// after releases whatever the command opened.
func (r *Runner) after(ctx context.Context, cmd *cli.Command) error {
	r.close()
	return nil
}

func (r *Runner) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
	r.ledger, r.runs = nil, nil
}

// openStore opens the SQLite database (migrated) and the configured ledger backend.
//
// Run history always lives in SQLite; the ledger moves to Postgres when database.driver is "postgres".
func (r *Runner) openStore(ctx context.Context) error {
	if r.runs != nil {
		return nil
	}
	cfg := r.config.Database

	db, err := shared.NewDatabase(cfg.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", shared.ErrLedger, err)
	}
	shared.ConfigureDatabase(db, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("%w: failed to run migrations: %w", shared.ErrLedger, err)
	}
	r.closers = append(r.closers, func() { db.Close() })
	r.runs = repositories.NewRunRepository(db)

	switch cfg.Driver {
	case "postgres":
		pg, err := repositories.OpenPostgresLedger(ctx, cfg.DSN)
		if err != nil {
			return err
		}
		r.closers = append(r.closers, pg.Close)
		r.ledger = pg
		r.logger.Debug("using postgres ledger")
	default:
		r.ledger = repositories.NewLedgerRepository(db)
	}
	return nil
}

// stravaService builds the Strava client once per invocation.
func (r *Runner) stravaService() (*services.StravaService, error) {
	if r.strava != nil {
		return r.strava, nil
	}
	creds := r.config.Credentials.Strava
	srv, err := services.NewStravaService(creds, shared.NewTokenFile(creds.TokenPath), services.StravaOpts{
		HTTPClient: r.httpClient,
		Logger:     r.logger,
	})
	if err != nil {
		return nil, err
	}
	r.strava = srv
	return srv, nil
}

func (r *Runner) activitySource() (services.Source, error) {
	if r.source != nil {
		return r.source, nil
	}
	strava, err := r.stravaService()
	if err != nil {
		return nil, err
	}
	return strava, nil
}

func (r *Runner) uploadSink() (services.Sink, error) {
	if r.sink != nil {
		return r.sink, nil
	}
	garmin, err := services.NewGarminService(r.config.Credentials.Garmin, r.httpClient, r.logger)
	if err != nil {
		return nil, err
	}
	return garmin, nil
}

// newEngine wires the lister, export session, relay and ledger into a sync engine.
//
// A dry run never uploads, so missing Garmin credentials only produce a warning there.
func (r *Runner) newEngine(ctx context.Context, dryRun bool) (*tasks.SyncEngine, error) {
	if err := r.openStore(ctx); err != nil {
		return nil, err
	}

	source, err := r.activitySource()
	if err != nil {
		return nil, err
	}

	sink, err := r.uploadSink()
	if err != nil {
		if !dryRun {
			return nil, err
		}
		r.logger.Warn("garmin client unavailable, continuing dry run", "error", err)
	}

	opts, err := extract.OptionsFromConfig(r.config.Browser, r.config.Credentials.Strava)
	if err != nil {
		return nil, err
	}

	return tasks.NewSyncEngine(
		tasks.NewActivityLister(source, r.config.Sync, r.logger),
		r.ledger,
		extract.NewSession(r.launcher, opts, r.logger),
		tasks.NewUploadRelay(sink, r.logger),
		r.metrics,
		r.logger,
	), nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
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

// SetLogger replaces the logger, e.g. to keep log lines out of the TUI.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
	if _, ok := r.launcher.(extract.ChromeLauncher); ok {
		r.launcher = extract.ChromeLauncher{Logger: l}
	}
}
