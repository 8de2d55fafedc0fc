// Package github reads workflow run results from GitHub Actions.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

// Provider implements interfaces.BuildInfoProvider for GitHub Actions.
// Job names have the form owner/repo/workflow-file, e.g.
// "acme/gatherer/build.yml".
type Provider struct {
	client *github.Client
	logger arbor.ILogger
}

// NewProvider creates a provider. An empty token gives an anonymous client
// which is subject to the public rate limit.
func NewProvider(token string, logger arbor.ILogger) *Provider {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	return &Provider{
		client: github.NewClient(httpClient),
		logger: logger,
	}
}

// WithBaseURL points the provider at another API endpoint (GitHub
// Enterprise or a test server).
func (p *Provider) WithBaseURL(baseURL string) (*Provider, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid github base url: %w", err)
	}
	p.client.BaseURL = u
	return p, nil
}

// Name implements interfaces.BuildInfoProvider
func (p *Provider) Name() string {
	return "github"
}

// SplitJobName splits owner/repo/workflow into its parts
func SplitJobName(jobName string) (owner, repo, workflow string, err error) {
	parts := strings.SplitN(strings.Trim(jobName, "/"), "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid github job name %q, expected owner/repo/workflow", jobName)
	}
	return parts[0], parts[1], parts[2], nil
}

// Fetch returns the latest completed run of the workflow.
func (p *Provider) Fetch(ctx context.Context, jobName string) (models.JobBuildInfo, error) {
	owner, repo, workflow, err := SplitJobName(jobName)
	if err != nil {
		return models.JobBuildInfo{}, err
	}

	opts := &github.ListWorkflowRunsOptions{
		Status:      "completed",
		ListOptions: github.ListOptions{PerPage: 1},
	}

	runs, _, err := p.client.Actions.ListWorkflowRunsByFileName(ctx, owner, repo, workflow, opts)
	if err != nil {
		return models.JobBuildInfo{}, fmt.Errorf("failed to list workflow runs of %s: %w", jobName, classifyError(err))
	}
	if runs == nil || len(runs.WorkflowRuns) == 0 {
		return models.JobBuildInfo{}, fmt.Errorf("no completed runs of %s: %w", jobName, interfaces.ErrNotFound)
	}

	r := runs.WorkflowRuns[0]
	info := models.JobBuildInfo{
		JobName:         jobName,
		Provider:        p.Name(),
		LastBuildNumber: r.GetRunNumber(),
		LastBuildResult: models.ParseBuildResult(r.GetConclusion()),
		URL:             r.GetHTMLURL(),
		FetchedAt:       time.Now(),
	}
	if r.RunStartedAt != nil {
		info.BuildDate = r.RunStartedAt.Time
	} else if r.CreatedAt != nil {
		info.BuildDate = r.CreatedAt.Time
	}

	if p.logger != nil {
		p.logger.Debug().
			Str("job", jobName).
			Int("run", info.LastBuildNumber).
			Str("conclusion", r.GetConclusion()).
			Msg("Fetched workflow run")
	}

	return info, nil
}

// classifyError maps go-github errors onto the provider error taxonomy
func classifyError(err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var respErr *github.ErrorResponse

	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return fmt.Errorf("%w: %v", interfaces.ErrProviderUnavailable, err)
	case errors.As(err, &respErr) && respErr.Response != nil:
		status := respErr.Response.StatusCode
		switch {
		case status == http.StatusNotFound:
			return fmt.Errorf("%w: %v", interfaces.ErrNotFound, err)
		case status == http.StatusTooManyRequests, status >= 500:
			return fmt.Errorf("%w: %v", interfaces.ErrProviderUnavailable, err)
		}
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", interfaces.ErrProviderUnavailable, err)
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", interfaces.ErrProviderUnavailable, err)
	}
	return err
}

// Ensure interface compliance
var _ interfaces.BuildInfoProvider = (*Provider)(nil)
