// Package buildinfo resolves the latest build result of tracked jobs,
// falling back to the previously known value when the CI provider cannot
// answer.
package buildinfo

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

// Kind tells how a resolved value was obtained
type Kind int

const (
	// OutcomeFresh is a value just fetched from the provider
	OutcomeFresh Kind = iota
	// OutcomeStale is the previous value, kept because the fetch failed
	OutcomeStale
	// OutcomeMissing is a placeholder: the fetch failed and nothing was known
	OutcomeMissing
)

func (k Kind) String() string {
	switch k {
	case OutcomeFresh:
		return "fresh"
	case OutcomeStale:
		return "stale"
	default:
		return "missing"
	}
}

// Outcome is the result of resolving one job. Info is always usable.
type Outcome struct {
	Kind Kind
	Info models.JobBuildInfo
	Err  error // fetch error for stale and missing outcomes
}

// Unavailable reports whether the fetch failed because the provider could
// not be reached, as opposed to the job being unknown to it.
func (o Outcome) Unavailable() bool {
	return errors.Is(o.Err, interfaces.ErrProviderUnavailable)
}

// Resolve fetches jobName from provider. It never fails: any fetch error
// degrades to the previous value marked stale, or to an unknown placeholder
// when previous is nil.
func Resolve(ctx context.Context, provider interfaces.BuildInfoProvider, jobName string, previous *models.JobBuildInfo) Outcome {
	info, err := provider.Fetch(ctx, jobName)
	if err != nil {
		return Fallback(jobName, provider.Name(), previous, err)
	}

	info.JobName = jobName
	if info.Provider == "" {
		info.Provider = provider.Name()
	}
	if info.FetchedAt.IsZero() {
		info.FetchedAt = time.Now()
	}
	info.Stale = false
	info.Error = ""
	return Outcome{Kind: OutcomeFresh, Info: info}
}

// Fallback builds the outcome for a failed fetch
func Fallback(jobName, provider string, previous *models.JobBuildInfo, err error) Outcome {
	if previous != nil {
		info := *previous
		info.JobName = jobName
		info.Stale = true
		info.Error = err.Error()
		return Outcome{Kind: OutcomeStale, Info: info, Err: err}
	}

	return Outcome{
		Kind: OutcomeMissing,
		Info: models.JobBuildInfo{
			JobName:         jobName,
			Provider:        provider,
			LastBuildResult: models.BuildUnknown,
			Stale:           true,
			Error:           err.Error(),
		},
		Err: err,
	}
}

// AgentJobName is the job name under which the scrape build of an agent is
// published. Scrape builds share one Jenkins job, so the agent is appended.
func AgentJobName(scrapeJob, agent string) string {
	return scrapeJob + "@" + agent
}
