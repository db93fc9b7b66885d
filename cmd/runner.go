package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/desertthunder/vgen/internal/feed"
	"github.com/desertthunder/vgen/internal/models"
	"github.com/desertthunder/vgen/internal/publish"
	"github.com/desertthunder/vgen/internal/repositories"
	"github.com/desertthunder/vgen/internal/services"
	"github.com/desertthunder/vgen/internal/shared"
	"github.com/desertthunder/vgen/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	opts       RunnerOpts
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	open       func(target string) error

	client      *services.Client
	tokens      *services.TokenStore
	oauthErr    error
	auth        publish.IdentitySource
	gateway     services.Gateway
	catalog     services.Catalog
	store       services.ObjectStore
	sessionFile *tasks.SessionFile
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Auth, Gateway, Catalog and Store replace the HTTP-backed collaborators built from Config.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Open       func(target string) error

	Auth    publish.IdentitySource
	Gateway services.Gateway
	Catalog services.Catalog
	Store   services.ObjectStore
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
		opts.HTTPClient = &http.Client{Timeout: opts.Config.Gateway.HTTPTimeout()}
	}
	if opts.Open == nil {
		opts.Open = shared.OpenURL
	}

	r := &Runner{
		opts:       opts,
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		open:       opts.Open,
	}
	r.wire()
	return r
}

// wire builds the backend collaborators from the config and the current logger.
func (r *Runner) wire() {
	cfg := r.config
	r.client = services.NewClient(services.ClientConfig{
		BaseURL:        cfg.Gateway.BaseURL,
		APIKey:         cfg.Project.APIKey,
		HTTPClient:     r.httpClient,
		RequestsPerSec: cfg.Gateway.RequestsPerSec,
		Logger:         r.logger,
	})

	oauthConfig, err := services.NewOAuthConfig(cfg.Auth)
	if err != nil {
		oauthConfig = &oauth2.Config{}
	}
	r.oauthErr = err
	r.tokens = services.NewTokenStore(oauthConfig, shared.ExpandPath(cfg.Auth.TokenPath), r.logger)
	r.sessionFile = tasks.NewSessionFile(shared.ExpandPath(cfg.Session.Path))

	r.auth = r.opts.Auth
	if r.auth == nil {
		r.auth = r.tokens
	}
	r.gateway = r.opts.Gateway
	if r.gateway == nil {
		r.gateway = services.NewHTTPGateway(r.client)
	}
	r.catalog = r.opts.Catalog
	if r.catalog == nil {
		r.catalog = services.NewCatalogClient(r.backendClient(cfg.Catalog.BaseURL))
	}
	r.store = r.opts.Store
}

// backendClient returns the shared client, or a sibling one when baseURL points elsewhere.
func (r *Runner) backendClient(baseURL string) *services.Client {
	if baseURL == "" || baseURL == r.client.BaseURL() {
		return r.client
	}
	return services.NewClient(services.ClientConfig{
		BaseURL:        baseURL,
		APIKey:         r.config.Project.APIKey,
		HTTPClient:     r.httpClient,
		RequestsPerSec: r.config.Gateway.RequestsPerSec,
		Logger:         r.logger,
	})
}

// SetLogger replaces the logger and rebuilds the collaborators that log.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
	r.wire()
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, generateCommand, taskCommand, publishCommand, feedCommand,
		storageCommand, sessionCommand, apiCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// objectStore returns the configured storage backend, creating the local directory on first use.
func (r *Runner) objectStore() (services.ObjectStore, error) {
	if r.store != nil {
		return r.store, nil
	}
	switch r.config.Storage.Backend {
	case "local":
		store, err := services.NewFileStore(shared.ExpandPath(r.config.Storage.LocalPath), r.config.Storage.PublicBase)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrInvalidConfig, err)
		}
		r.store = store
	default:
		r.store = services.NewHTTPStore(r.backendClient(r.config.Storage.BaseURL), r.config.Storage.Bucket)
	}
	return r.store, nil
}

// loadRegistry restores the task registry mirrored in the session file.
func (r *Runner) loadRegistry(notifier shared.Notifier) (*tasks.Registry, error) {
	registry := tasks.NewRegistry(r.gateway, r.auth, notifier, tasks.WithRegistryLogger(r.logger))
	state, err := r.sessionFile.Load()
	if err != nil {
		return nil, err
	}
	registry.Restore(state)
	return registry, nil
}

// saveRegistry writes the registry back to the session file, logging instead of failing.
func (r *Runner) saveRegistry(registry *tasks.Registry) {
	if err := r.sessionFile.Save(registry.State()); err != nil {
		r.logger.Warn("failed to save session", "path", r.sessionFile.Path(), "error", err)
	}
}

// openFeed opens the feed cache. The returned func closes the database.
func (r *Runner) openFeed(ctx context.Context, notifier shared.Notifier) (*feed.Feed, func(), error) {
	db, err := shared.OpenFeedCache(ctx, r.config.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open feed cache: %w", err)
	}
	f := feed.New(repositories.NewVideoRepository(db), r.catalog, r.auth, notifier, r.logger)
	return f, func() { db.Close() }, nil
}

func (r *Runner) reconciler(f *feed.Feed, registry *tasks.Registry, notifier shared.Notifier, progress chan<- tasks.ProgressUpdate) (*publish.Reconciler, error) {
	store, err := r.objectStore()
	if err != nil {
		return nil, err
	}
	return publish.NewReconciler(publish.Deps{
		Auth:     r.auth,
		Catalog:  r.catalog,
		Store:    store,
		Gateway:  r.gateway,
		Feed:     f,
		Tasks:    registry,
		Prober:   publish.NewMediaProber(r.httpClient, r.logger),
		Notifier: notifier,
		Logger:   r.logger,
		Progress: progress,
	}), nil
}

func (r *Runner) notifier() shared.Notifier {
	return shared.NewLogNotifier(r.logger)
}

// defaultRequest is the generation request built from [gateway.defaults].
func (r *Runner) defaultRequest() models.GenerationRequest {
	d := r.config.Gateway.Defaults
	return models.GenerationRequest{
		Resolution:  models.Resolution(d.Resolution),
		AspectRatio: models.AspectRatio(d.AspectRatio),
		Duration:    d.Duration,
		FPS:         models.FPS(d.FPS),
	}.WithDefaults()
}

// withProgress runs fn on a goroutine and prints its progress updates until it returns.
//
// All output is written from the calling goroutine.
func (r *Runner) withProgress(fn func(progress chan<- tasks.ProgressUpdate) error) error {
	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan error, 1)
	go func() { done <- fn(progress) }()

	for {
		select {
		case update := <-progress:
			r.writeProgress(update)
		case err := <-done:
			for {
				select {
				case update := <-progress:
					r.writeProgress(update)
				default:
					return err
				}
			}
		}
	}
}

func (r *Runner) writeProgress(update tasks.ProgressUpdate) {
	if update.Message == "" {
		return
	}
	if update.Total > 0 {
		r.writePlain("→ [%s %d/%d] %s\n", update.Phase, update.Step, update.Total, update.Message)
		return
	}
	r.writePlain("→ [%s] %s\n", update.Phase, update.Message)
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
