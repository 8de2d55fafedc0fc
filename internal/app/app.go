package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/buildinfo/github"
	"github.com/ternarybob/agentstatus/internal/buildinfo/jenkins"
	"github.com/ternarybob/agentstatus/internal/common"
	"github.com/ternarybob/agentstatus/internal/handlers"
	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/logsource"
	"github.com/ternarybob/agentstatus/internal/services/aggregator"
	"github.com/ternarybob/agentstatus/internal/services/events"
	"github.com/ternarybob/agentstatus/internal/services/snapshot"
	"github.com/ternarybob/agentstatus/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage (optional, keeps the last known build info across restarts)
	BuildInfoStorage interfaces.BuildInfoStorage

	// Event-driven services
	EventService interfaces.EventService

	// Status services
	LogSource  *logsource.Filesystem
	Watcher    *logsource.Watcher
	Cache      *snapshot.Cache
	Aggregator *aggregator.Service

	// Build info providers
	Jenkins *jenkins.Client
	GitHub  *github.Provider

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	StatusHandler    *handlers.StatusHandler
	WebSocketHandler *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}
	app.ctx, app.cancelCtx = context.WithCancel(context.Background())

	if err := app.initDatabase(); err != nil {
		app.cancelCtx()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().Msg("Application initialized")
	return app, nil
}

// initDatabase opens the build info store when enabled
func (a *App) initDatabase() error {
	if !a.Config.Storage.Badger.Enabled {
		a.Logger.Debug().Msg("Build info storage disabled")
		return nil
	}

	buildInfoStorage, err := storage.NewBuildInfoStorage(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.BuildInfoStorage = buildInfoStorage
	return nil
}

func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	a.LogSource = logsource.NewFilesystem(a.Config.Sources, a.Logger)
	a.Cache = snapshot.NewCache(a.Logger)

	options := []aggregator.Option{aggregator.WithEvents(a.EventService)}
	if a.BuildInfoStorage != nil {
		options = append(options, aggregator.WithStorage(a.BuildInfoStorage))
	}

	if a.Config.Jenkins.URL != "" {
		a.Jenkins = jenkins.NewClient(a.Config.Jenkins.URL,
			jenkins.WithCredentials(a.Config.Jenkins.Username, a.Config.Jenkins.Token),
			jenkins.WithTimeout(a.Config.JenkinsTimeout()),
			jenkins.WithRateLimit(a.Config.Jenkins.RateLimit),
			jenkins.WithLogger(a.Logger),
		)
		options = append(options, aggregator.WithJobs(a.Jenkins, a.Config.Jenkins.Jobs...))
		if a.Config.Jenkins.ScrapeJob != "" {
			options = append(options, aggregator.WithAgentBuilds(a.Jenkins, a.Config.Jenkins.ScrapeJob))
		}
		a.Logger.Info().
			Str("url", a.Config.Jenkins.URL).
			Int("jobs", len(a.Config.Jenkins.Jobs)).
			Str("scrape_job", a.Config.Jenkins.ScrapeJob).
			Msg("Jenkins build info enabled")
	}

	if len(a.Config.GitHub.Workflows) > 0 {
		provider := github.NewProvider(a.Config.GitHub.Token, a.Logger)
		if a.Config.GitHub.BaseURL != "" {
			var err error
			if provider, err = provider.WithBaseURL(a.Config.GitHub.BaseURL); err != nil {
				return fmt.Errorf("invalid github base url: %w", err)
			}
		}
		a.GitHub = provider
		options = append(options, aggregator.WithJobs(provider, a.Config.GitHub.Workflows...))
		a.Logger.Info().
			Int("workflows", len(a.Config.GitHub.Workflows)).
			Msg("GitHub Actions build info enabled")
	}

	a.Aggregator = aggregator.NewService(
		a.Config.Agents,
		aggregator.OptionsFromConfig(a.Config),
		a.LogSource,
		a.Cache,
		a.Logger,
		options...,
	)

	if a.Config.Status.Watch {
		watcher, err := logsource.NewWatcher(a.LogSource.ControllerPath(), a.Config.Debounce(), a.EventService, a.Logger)
		if err != nil {
			// Scheduled refreshes still run without the watcher
			a.Logger.Warn().Err(err).Msg("Log watcher unavailable")
		} else {
			a.Watcher = watcher
		}
	}

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Aggregator, a.EventService, a.Logger)
	a.WebSocketHandler = handlers.NewWebSocketHandler(a.Aggregator, a.EventService, a.Logger)
}

// Start begins refreshing the status snapshot and watching for log changes
func (a *App) Start() error {
	if err := a.Aggregator.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start aggregator: %w", err)
	}

	if a.Watcher != nil {
		common.SafeGo(a.Logger, "log-watcher", func() {
			a.Watcher.Run(a.ctx)
		})
		a.Logger.Info().Strs("directories", a.Watcher.WatchList()).Msg("Watching controller logs")
	}

	return nil
}

// Close stops background work and releases resources
func (a *App) Close() error {
	if a.Aggregator != nil {
		a.Aggregator.Stop()
	}

	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.WebSocketHandler != nil {
		a.WebSocketHandler.Close()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.BuildInfoStorage != nil {
		if err := a.BuildInfoStorage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close build info storage")
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
