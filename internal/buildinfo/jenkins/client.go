// Package jenkins fetches build results from the Jenkins JSON API.
package jenkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

const (
	// DefaultTimeout for a single API request
	DefaultTimeout = 10 * time.Second
	// DefaultRateLimit in requests per second
	DefaultRateLimit = 5

	// ProjectParameter is the scrape job build parameter naming the agents
	ProjectParameter = "listOfProjects"
)

// Client is a Jenkins API client
type Client struct {
	baseURL    string
	username   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithCredentials sets basic auth credentials (user and API token).
func WithCredentials(username, token string) ClientOption {
	return func(c *Client) {
		c.username = username
		c.token = token
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Jenkins API client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name implements interfaces.BuildInfoProvider
func (c *Client) Name() string {
	return "jenkins"
}

// APIError represents a non-success response from the Jenkins API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jenkins API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Unwrap classifies the status code into the provider error taxonomy
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return interfaces.ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= 500:
		return interfaces.ErrProviderUnavailable
	default:
		return nil
	}
}

type build struct {
	Number    int    `json:"number"`
	Result    string `json:"result"`
	Timestamp int64  `json:"timestamp"`
	URL       string `json:"url"`
	Actions   []struct {
		Parameters []struct {
			Name  string      `json:"name"`
			Value interface{} `json:"value"`
		} `json:"parameters"`
	} `json:"actions"`
}

func (b build) date() time.Time {
	return time.UnixMilli(b.Timestamp)
}

// parameter returns the value of a named build parameter
func (b build) parameter(name string) (string, bool) {
	for _, action := range b.Actions {
		for _, p := range action.Parameters {
			if p.Name == name {
				return fmt.Sprintf("%v", p.Value), true
			}
		}
	}
	return "", false
}

// jobPath converts "folder/job" into "/job/folder/job/job"
func jobPath(jobName string) string {
	var b strings.Builder
	for _, part := range strings.Split(strings.Trim(jobName, "/"), "/") {
		b.WriteString("/job/")
		b.WriteString(url.PathEscape(part))
	}
	return b.String()
}

// Fetch returns the latest completed build of a job.
func (c *Client) Fetch(ctx context.Context, jobName string) (models.JobBuildInfo, error) {
	params := url.Values{}
	params.Set("tree", "number,result,timestamp,url")

	var b build
	if err := c.get(ctx, jobPath(jobName)+"/lastCompletedBuild/api/json", params, &b); err != nil {
		return models.JobBuildInfo{}, fmt.Errorf("failed to fetch last build of %s: %w", jobName, err)
	}

	return models.JobBuildInfo{
		JobName:         jobName,
		Provider:        c.Name(),
		LastBuildNumber: b.Number,
		LastBuildResult: models.ParseBuildResult(b.Result),
		BuildDate:       b.date(),
		URL:             b.URL,
		FetchedAt:       time.Now(),
	}, nil
}

// FetchAgentBuilds reads the builds of a shared scrape job and returns, per
// agent, the newest completed build whose project parameter names that
// agent. Builds for other or multiple projects are skipped.
func (c *Client) FetchAgentBuilds(ctx context.Context, scrapeJob string, agents []string) (map[string]models.JobBuildInfo, error) {
	params := url.Values{}
	params.Set("tree", "builds[actions[parameters[name,value]],number,result,timestamp,url]")

	var job struct {
		Builds []build `json:"builds"`
	}
	if err := c.get(ctx, jobPath(scrapeJob)+"/api/json", params, &job); err != nil {
		return nil, fmt.Errorf("failed to fetch builds of %s: %w", scrapeJob, err)
	}

	known := make(map[string]bool, len(agents))
	for _, agent := range agents {
		known[agent] = true
	}

	now := time.Now()
	builds := make(map[string]models.JobBuildInfo)
	for _, b := range job.Builds {
		if b.Result == "" {
			// Still running
			continue
		}

		project, ok := b.parameter(ProjectParameter)
		if !ok {
			if c.logger != nil {
				c.logger.Debug().Int("build", b.Number).Msg("Could not find project parameter in build")
			}
			continue
		}
		if !known[project] {
			continue
		}
		if _, seen := builds[project]; seen {
			continue
		}

		builds[project] = models.JobBuildInfo{
			JobName:         scrapeJob,
			Provider:        c.Name(),
			LastBuildNumber: b.Number,
			LastBuildResult: models.ParseBuildResult(b.Result),
			BuildDate:       b.date(),
			URL:             b.URL,
			FetchedAt:       now,
		}
	}

	return builds, nil
}

// get performs a GET request to the API.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	// Wait for rate limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %v", interfaces.ErrProviderUnavailable, err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL = fmt.Sprintf("%s?%s", reqURL, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.token)
	}

	if c.logger != nil {
		c.logger.Debug().Str("url", c.baseURL+path).Msg("Jenkins API request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// classifyTransportError wraps connection failures and timeouts in
// ErrProviderUnavailable so callers can fall back to cached values.
func classifyTransportError(err error) error {
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr),
		errors.As(err, &urlErr):
		return fmt.Errorf("%w: %v", interfaces.ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("failed to execute request: %w", err)
	}
}

// Ensure interface compliance
var (
	_ interfaces.BuildInfoProvider  = (*Client)(nil)
	_ interfaces.AgentBuildProvider = (*Client)(nil)
)
