package aggregator

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/agentstatus/internal/buildinfo"
	"github.com/ternarybob/agentstatus/internal/classifier"
	"github.com/ternarybob/agentstatus/internal/common"
	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
	"github.com/ternarybob/agentstatus/internal/parser"
)

// Refresh runs one refresh cycle: every declared agent field is read,
// parsed and classified and every tracked job is resolved, all in
// parallel. Only when everything has been joined is the snapshot
// published. A cancelled cycle publishes nothing and returns the context
// error.
func (s *Service) Refresh(ctx context.Context, reason string) (*models.AggregateSnapshot, error) {
	generatedAt := s.now()
	cycleID := uuid.New().String()
	logger := s.logger.WithCorrelationId(cycleID)

	token := s.cache.BeginBuild(generatedAt)
	defer s.cache.EndBuild(token)

	logger.Debug().Str("reason", reason).Msg("Refresh started")

	agents := s.agentList(ctx, logger)
	previous, _ := s.cache.Get()

	opts := classifier.Options{
		Now:             generatedAt,
		FreshnessWindow: s.opts.FreshnessWindow,
		Ignored:         s.opts.Ignored,
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.opts.Concurrency > 0 {
		g.SetLimit(s.opts.Concurrency)
	}

	statuses := make([]models.AgentStatus, len(agents))
	for i, agent := range agents {
		g.Go(func() error {
			statuses[i] = s.collectAgent(gctx, agent, opts, logger)
			return gctx.Err()
		})
	}

	jobs := make([]models.JobBuildInfo, len(s.jobs))
	for i, job := range s.jobs {
		g.Go(func() error {
			outcome := buildinfo.Resolve(gctx, job.provider, job.name, s.previousBuild(gctx, previous, job.name))
			s.logOutcome(logger, outcome)
			jobs[i] = outcome.Info
			return gctx.Err()
		})
	}

	var agentBuilds []models.JobBuildInfo
	if s.agentBuilds != nil && s.scrapeJob != "" {
		g.Go(func() error {
			agentBuilds = s.resolveAgentBuilds(gctx, agents, previous, logger)
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn().Err(err).Str("reason", reason).Msg("Refresh cancelled, nothing published")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobs = append(jobs, agentBuilds...)
	s.linkAgentBuilds(statuses, agentBuilds)
	s.persist(ctx, jobs, logger)

	snap := models.NewSnapshot(generatedAt, cycleID, statuses, jobs)
	published := s.cache.Publish(snap)

	total := 0
	for _, status := range statuses {
		for _, field := range status.Fields {
			total += field.Total
		}
	}

	logger.Info().
		Str("reason", reason).
		Int("agents", len(statuses)).
		Int("jobs", len(jobs)).
		Str("records", humanize.Comma(int64(total))).
		Str("duration", time.Since(generatedAt).Round(time.Millisecond).String()).
		Bool("published", published).
		Msg("Refresh complete")

	if published && s.events != nil {
		if err := s.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventSnapshotPublished,
			Payload: snap,
		}); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish snapshot event")
		}
	}

	return snap, nil
}

// agentList returns the declared agents, extended with discovered ones
func (s *Service) agentList(ctx context.Context, logger arbor.ILogger) []common.AgentConfig {
	agents := append([]common.AgentConfig(nil), s.agents...)
	if !s.opts.Discover {
		return agents
	}

	names, err := s.source.Agents(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Agent discovery failed, using declared agents")
		return agents
	}

	declared := make(map[string]bool, len(agents))
	for _, agent := range agents {
		declared[agent.Name] = true
	}
	for _, name := range names {
		if !declared[name] {
			agents = append(agents, common.DiscoveredAgent(name))
		}
	}
	return agents
}

// collectAgent reads and classifies every declared field of an agent
func (s *Service) collectAgent(ctx context.Context, agent common.AgentConfig, opts classifier.Options, logger arbor.ILogger) models.AgentStatus {
	status := models.AgentStatus{
		Name:   agent.Name,
		Job:    agent.Job,
		Fields: make([]models.FieldStatus, 0, len(agent.Fields)),
	}

	results := make([]classifier.Result, 0, len(agent.Fields))
	for _, field := range agent.Fields {
		if ctx.Err() != nil {
			return status
		}
		fieldStatus, result := s.collectField(ctx, agent.Name, field, opts, logger)
		status.Fields = append(status.Fields, fieldStatus)
		results = append(results, result)
	}

	merged := classifier.Merge(opts, results...)
	status.State = merged.State
	status.LastSeen = merged.LastSeen
	status.LastError = merged.LastError

	info, err := s.source.ReadAgentInfo(ctx, agent.Name)
	switch {
	case err == nil:
		status.Info = info
	case !errors.Is(err, interfaces.ErrNotFound):
		logger.Warn().Err(err).Str("agent", agent.Name).Msg("Failed to read agent info")
	}

	return status
}

func (s *Service) collectField(ctx context.Context, agent string, field common.FieldConfig, opts classifier.Options, logger arbor.ILogger) (models.FieldStatus, classifier.Result) {
	status := models.FieldStatus{
		Name:   field.Name,
		Format: field.Format,
	}

	p, err := parser.ForFormat(field.Format, s.opts.Location)
	if err != nil {
		status.Missing = true
		status.LastError = err.Error()
		return status, classifier.Result{}
	}
	status.Format = p.Format()
	status.Columns = p.Columns()

	file, err := s.source.ReadLog(ctx, agent, field.Filename)
	if err != nil {
		status.Missing = true
		if !errors.Is(err, interfaces.ErrNotFound) {
			status.LastError = err.Error()
			logger.Warn().Err(err).Str("agent", agent).Str("field", field.Name).Msg("Failed to read log")
		}
		return status, classifier.Result{}
	}

	records := parser.Parse(p, file.Content, models.Source{Agent: agent, Field: field.Name})
	result := classifier.Classify(records, opts)

	status.Path = file.Path
	status.ModifiedAt = file.ModifiedAt
	status.State = result.State
	status.LastSeen = result.LastSeen
	status.LastError = result.LastError
	status.Worst = result.Worst
	status.Latest = result.Latest
	status.Total = result.Total
	status.Malformed = result.Malformed
	status.Records = newestFirst(records, s.opts.MaxRows)

	return status, result
}

// previousBuild returns the last known build of a job from the previous
// snapshot, or from storage when the snapshot does not have one
func (s *Service) previousBuild(ctx context.Context, previous *models.AggregateSnapshot, jobName string) *models.JobBuildInfo {
	if previous != nil {
		if info, ok := previous.Job(jobName); ok && info.HasBuild() {
			return &info
		}
	}
	if s.storage != nil {
		if info, err := s.storage.Get(ctx, jobName); err == nil {
			return &info
		}
	}
	return nil
}

// resolveAgentBuilds maps the scrape job builds onto the agents. When the
// provider is unavailable each agent keeps its previous build, marked stale.
func (s *Service) resolveAgentBuilds(ctx context.Context, agents []common.AgentConfig, previous *models.AggregateSnapshot, logger arbor.ILogger) []models.JobBuildInfo {
	names := make([]string, len(agents))
	for i, agent := range agents {
		names[i] = agent.Name
	}

	builds, err := s.agentBuilds.FetchAgentBuilds(ctx, s.scrapeJob, names)

	var infos []models.JobBuildInfo
	for _, name := range names {
		jobName := buildinfo.AgentJobName(s.scrapeJob, name)
		prev := s.previousBuild(ctx, previous, jobName)

		if err != nil {
			if prev != nil {
				outcome := buildinfo.Fallback(jobName, "jenkins", prev, err)
				s.logOutcome(logger, outcome)
				infos = append(infos, outcome.Info)
			}
			continue
		}

		build, ok := builds[name]
		if !ok {
			// Older builds rolled out of the job history
			if prev != nil {
				infos = append(infos, *prev)
			}
			continue
		}
		build.JobName = jobName
		infos = append(infos, build)
	}

	if err != nil {
		logger.Warn().Err(err).Str("job", s.scrapeJob).Msg("Scrape builds unavailable, keeping previous builds")
	}
	return infos
}

// linkAgentBuilds points agents without an explicit job at their scrape build
func (s *Service) linkAgentBuilds(statuses []models.AgentStatus, builds []models.JobBuildInfo) {
	if len(builds) == 0 {
		return
	}
	known := make(map[string]bool, len(builds))
	for _, build := range builds {
		known[build.JobName] = true
	}
	for i := range statuses {
		jobName := buildinfo.AgentJobName(s.scrapeJob, statuses[i].Name)
		if statuses[i].Job == "" && known[jobName] {
			statuses[i].Job = jobName
		}
	}
}

func (s *Service) persist(ctx context.Context, jobs []models.JobBuildInfo, logger arbor.ILogger) {
	if s.storage == nil {
		return
	}
	for _, job := range jobs {
		if job.Stale || !job.HasBuild() {
			continue
		}
		if err := s.storage.Save(ctx, job); err != nil {
			logger.Warn().Err(err).Str("job", job.JobName).Msg("Failed to store build info")
		}
	}
}

func (s *Service) logOutcome(logger arbor.ILogger, outcome buildinfo.Outcome) {
	switch outcome.Kind {
	case buildinfo.OutcomeFresh:
		logger.Debug().
			Str("job", outcome.Info.JobName).
			Int("build", outcome.Info.LastBuildNumber).
			Str("result", string(outcome.Info.LastBuildResult)).
			Msg("Build info fetched")
	case buildinfo.OutcomeStale:
		event := logger.Warn()
		if !outcome.Unavailable() {
			event = logger.Info()
		}
		event.Err(outcome.Err).
			Str("job", outcome.Info.JobName).
			Msg("Build info unavailable, serving previous value")
	default:
		logger.Warn().
			Err(outcome.Err).
			Str("job", outcome.Info.JobName).
			Msg("Build info unavailable, no previous value")
	}
}

// newestFirst keeps the last n records of the sequence in reverse order
func newestFirst(records iter.Seq[models.LogRecord], n int) []models.LogRecord {
	if n <= 0 {
		return nil
	}

	ring := make([]models.LogRecord, 0, n)
	next := 0
	for record := range records {
		if len(ring) < n {
			ring = append(ring, record)
			continue
		}
		ring[next] = record
		next = (next + 1) % n
	}

	out := make([]models.LogRecord, 0, len(ring))
	for i := len(ring) - 1; i >= 0; i-- {
		out = append(out, ring[(next+i)%len(ring)])
	}
	return out
}
