package interfaces

import (
	"context"

	"github.com/ternarybob/agentstatus/internal/models"
)

// BuildInfoProvider fetches the latest build result for a named job from a
// remote CI system. Transport failures are reported wrapped in
// ErrProviderUnavailable, unknown jobs wrapped in ErrNotFound.
type BuildInfoProvider interface {
	Name() string
	Fetch(ctx context.Context, jobName string) (models.JobBuildInfo, error)
}

// AgentBuildProvider maps builds of a shared scrape job onto the agents
// named in the build parameters.
type AgentBuildProvider interface {
	FetchAgentBuilds(ctx context.Context, scrapeJob string, agents []string) (map[string]models.JobBuildInfo, error)
}

// BuildInfoStorage keeps the last known build info per job so the stale
// fallback also works right after a restart.
type BuildInfoStorage interface {
	Save(ctx context.Context, info models.JobBuildInfo) error
	Get(ctx context.Context, jobName string) (models.JobBuildInfo, error)
	List(ctx context.Context) ([]models.JobBuildInfo, error)
	Close() error
}
