// Package aggregator builds status snapshots from agent logs and build
// info, publishes them to the snapshot cache and answers status queries
// from the published snapshot.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/buildinfo"
	"github.com/ternarybob/agentstatus/internal/common"
	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/services/snapshot"
)

// Options controls classification and scheduling
type Options struct {
	FreshnessWindow time.Duration
	Schedule        string // cron spec, "" disables scheduled refreshes
	MaxRows         int    // records kept per field in the snapshot
	Concurrency     int    // parallel reads per refresh, 0 is unlimited
	Ignored         []string
	Location        *time.Location
	Discover        bool // add agents found by the log source
}

// OptionsFromConfig reads the refresh options from the configuration
func OptionsFromConfig(config *common.Config) Options {
	loc, err := config.Location()
	if err != nil {
		loc = time.Local
	}
	return Options{
		FreshnessWindow: config.FreshnessWindow(),
		Schedule:        config.Status.Schedule,
		MaxRows:         config.Status.MaxRows,
		Concurrency:     config.Status.Concurrency,
		Ignored:         config.Status.IgnoredMessages,
		Location:        loc,
		Discover:        config.Sources.Discover,
	}
}

type trackedJob struct {
	name     string
	provider interfaces.BuildInfoProvider
}

// Service owns snapshot construction
type Service struct {
	agents  []common.AgentConfig
	opts    Options
	source  interfaces.LogSource
	cache   *snapshot.Cache
	logger  arbor.ILogger
	now     func() time.Time
	events  interfaces.EventService
	storage interfaces.BuildInfoStorage

	jobs        []trackedJob
	agentBuilds interfaces.AgentBuildProvider
	scrapeJob   string

	trigger chan string
	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithJobs tracks the named jobs through provider
func WithJobs(provider interfaces.BuildInfoProvider, names ...string) Option {
	return func(s *Service) {
		for _, name := range names {
			s.jobs = append(s.jobs, trackedJob{name: name, provider: provider})
		}
	}
}

// WithAgentBuilds maps builds of a shared scrape job onto the agents
func WithAgentBuilds(provider interfaces.AgentBuildProvider, scrapeJob string) Option {
	return func(s *Service) {
		s.agentBuilds = provider
		s.scrapeJob = scrapeJob
	}
}

// WithStorage persists fresh build info and reads it back as fallback
func WithStorage(storage interfaces.BuildInfoStorage) Option {
	return func(s *Service) {
		s.storage = storage
	}
}

// WithEvents connects the service to the event bus
func WithEvents(events interfaces.EventService) Option {
	return func(s *Service) {
		s.events = events
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an aggregator for the declared agents
func NewService(agents []common.AgentConfig, opts Options, source interfaces.LogSource, cache *snapshot.Cache, logger arbor.ILogger, options ...Option) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}

	s := &Service{
		agents:  agents,
		opts:    opts,
		source:  source,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
		trigger: make(chan string, 1),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Start runs an initial refresh and then refreshes on the configured
// schedule, on TriggerRefresh and on log change events.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("aggregator already running")
	}

	c := cron.New()
	if s.opts.Schedule != "" {
		if _, err := c.AddFunc(s.opts.Schedule, func() { s.TriggerRefresh("schedule") }); err != nil {
			return fmt.Errorf("failed to add refresh schedule: %w", err)
		}
	}

	if s.events != nil {
		if err := s.events.Subscribe(interfaces.EventLogChanged, s.handleLogChanged); err != nil {
			return fmt.Errorf("failed to subscribe to log changes: %w", err)
		}
		if err := s.events.Subscribe(interfaces.EventRefreshRequested, s.handleRefreshRequested); err != nil {
			return fmt.Errorf("failed to subscribe to refresh requests: %w", err)
		}
	}

	s.restoreBuilds(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cron = c

	s.wg.Add(1)
	common.SafeGo(s.logger, "aggregator", func() {
		defer s.wg.Done()
		s.run(runCtx)
	})

	s.TriggerRefresh("startup")
	c.Start()

	s.logger.Info().
		Str("schedule", s.opts.Schedule).
		Int("agents", len(s.agents)).
		Int("jobs", len(s.jobs)).
		Msg("Aggregator started")

	return nil
}

func (s *Service) handleLogChanged(ctx context.Context, event interfaces.Event) error {
	s.TriggerRefresh(string(event.Type))
	return nil
}

// handleRefreshRequested queues a refresh and reports back through the
// request payload whether it was coalesced
func (s *Service) handleRefreshRequested(ctx context.Context, event interfaces.Event) error {
	request, ok := event.Payload.(*interfaces.RefreshRequest)
	if !ok {
		s.TriggerRefresh(string(event.Type))
		return nil
	}
	request.Queued = s.TriggerRefresh(request.Reason)
	return nil
}

// restoreBuilds reports the build info kept from a previous run and
// returns the stored jobs that are no longer tracked. The first refresh
// falls back to stored entries of tracked jobs whose provider is down.
func (s *Service) restoreBuilds(ctx context.Context) []string {
	if s.storage == nil {
		return nil
	}

	stored, err := s.storage.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to list stored build info")
		return nil
	}

	tracked := make(map[string]bool, len(s.jobs))
	for _, job := range s.jobs {
		tracked[job.name] = true
	}

	var untracked []string
	for _, info := range stored {
		if tracked[info.JobName] {
			continue
		}
		if s.scrapeJob != "" && strings.HasPrefix(info.JobName, buildinfo.AgentJobName(s.scrapeJob, "")) {
			continue
		}
		untracked = append(untracked, info.JobName)
	}

	s.logger.Info().Int("jobs", len(stored)).Msg("Stored build info restored")
	if len(untracked) > 0 {
		s.logger.Debug().Strs("jobs", untracked).Msg("Stored build info for untracked jobs")
	}
	return untracked
}

func (s *Service) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-s.trigger:
			if _, err := s.Refresh(ctx, reason); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Str("reason", reason).Msg("Refresh failed")
			}
		}
	}
}

// TriggerRefresh queues a refresh. Requests made while one is already
// queued are coalesced into it; the return value reports whether a new
// refresh was queued.
func (s *Service) TriggerRefresh(reason string) bool {
	select {
	case s.trigger <- reason:
		return true
	default:
		s.logger.Trace().Str("reason", reason).Msg("Refresh already queued")
		return false
	}
}

// Reset clears the published snapshot and queues a refresh. Queries fail
// with ErrUninitializedSnapshot until the refresh completes.
func (s *Service) Reset() {
	s.cache.Clear()
	s.logger.Info().Msg("Status snapshot cleared")
	s.TriggerRefresh("reset")
}

// Stop halts scheduled refreshes, cancels a running refresh and waits for
// it to return
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	s.cancel = nil

	s.logger.Info().Msg("Aggregator stopped")
}
