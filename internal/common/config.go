package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"github.com/ternarybob/agentstatus/internal/interfaces"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Logging     LoggingConfig `toml:"logging"`
	Sources     SourcesConfig `toml:"sources"`
	Agents      []AgentConfig `toml:"agents" validate:"dive"`
	Status      StatusConfig  `toml:"status"`
	Jenkins     JenkinsConfig `toml:"jenkins"`
	GitHub      GitHubConfig  `toml:"github"`
	Storage     StorageConfig `toml:"storage"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Output     []string `toml:"output" validate:"dive,oneof=stdout console file"`
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// SourcesConfig locates the agent logs
type SourcesConfig struct {
	ControllerPath string `toml:"controller_path" validate:"required"` // Per-agent log directories and agent-<name>.json files
	AgentPath      string `toml:"agent_path"`                          // Agent configuration directories, used for discovery
	Discover       bool   `toml:"discover"`                            // Discover agents from agent_path subdirectories
	VersionURL     string `toml:"version_url"`                         // Tree URL template, {sha} is replaced
	Timezone       string `toml:"timezone"`                            // Zone of log timestamps without offset (default: Local)
}

// AgentConfig declares one agent and the log fields read for it
type AgentConfig struct {
	Name   string        `toml:"name" validate:"required"`
	Job    string        `toml:"job"` // Build info job linked to the agent
	Fields []FieldConfig `toml:"fields" validate:"dive"`
}

// FieldConfig declares one log field of an agent
type FieldConfig struct {
	Name     string `toml:"name" validate:"required"`
	Filename string `toml:"filename" validate:"required"`
	Format   string `toml:"format" validate:"omitempty,oneof=ndjson export text"`
}

// StatusConfig controls refresh and classification
type StatusConfig struct {
	FreshnessWindow string   `toml:"freshness_window"` // e.g. "24h"; "0" disables staleness
	Schedule        string   `toml:"schedule"`         // Cron spec, e.g. "@every 1m"; "" disables
	MaxRows         int      `toml:"max_rows" validate:"gte=0"`
	Concurrency     int      `toml:"concurrency" validate:"gte=0"`
	IgnoredMessages []string `toml:"ignored_messages"`
	Watch           bool     `toml:"watch"`    // Refresh when a controller log changes
	Debounce        string   `toml:"debounce"` // Quiet period before a watched change triggers a refresh
}

// JenkinsConfig configures the Jenkins build info provider
type JenkinsConfig struct {
	URL       string   `toml:"url" validate:"omitempty,url"`
	Username  string   `toml:"username"`
	Token     string   `toml:"token"`
	Timeout   string   `toml:"timeout"`
	RateLimit int      `toml:"rate_limit" validate:"gte=0"`
	Jobs      []string `toml:"jobs"`
	ScrapeJob string   `toml:"scrape_job"` // Shared job whose builds carry the agent as parameter
}

// GitHubConfig configures the GitHub Actions build info provider
type GitHubConfig struct {
	Token     string   `toml:"token"`
	BaseURL   string   `toml:"base_url" validate:"omitempty,url"`
	Workflows []string `toml:"workflows"` // owner/repo/workflow.yml
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Enabled        bool   `toml:"enabled"`
	Path           string `toml:"path" validate:"required_if=Enabled true"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`                         // Delete database on startup for clean test runs
}

// Default agent log fields, matching the files written by the agents
var defaultFields = []FieldConfig{
	{Name: "agent-log", Filename: "log.json", Format: "ndjson"},
	{Name: "export-log", Filename: "export.log", Format: "export"},
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8110,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Sources: SourcesConfig{
			ControllerPath: "/controller",
			AgentPath:      "/agent",
		},
		Status: StatusConfig{
			FreshnessWindow: "24h",
			Schedule:        "@every 1m",
			MaxRows:         1000,
			Concurrency:     4,
			Debounce:        "2s",
		},
		Jenkins: JenkinsConfig{
			Timeout:   "10s",
			RateLimit: 5,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Enabled: true,
				Path:    "./data/agentstatus",
			},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier
// files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	config.applyFieldDefaults()

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("AGENTSTATUS_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("AGENTSTATUS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("AGENTSTATUS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("AGENTSTATUS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("AGENTSTATUS_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}

	// Sources configuration
	if path := os.Getenv("AGENTSTATUS_CONTROLLER_PATH"); path != "" {
		config.Sources.ControllerPath = path
	}
	if path := os.Getenv("AGENTSTATUS_AGENT_PATH"); path != "" {
		config.Sources.AgentPath = path
	}
	if discover := os.Getenv("AGENTSTATUS_DISCOVER"); discover != "" {
		if b, err := strconv.ParseBool(discover); err == nil {
			config.Sources.Discover = b
		}
	}

	// Status configuration
	if window := os.Getenv("AGENTSTATUS_FRESHNESS_WINDOW"); window != "" {
		config.Status.FreshnessWindow = window
	}
	if schedule := os.Getenv("AGENTSTATUS_SCHEDULE"); schedule != "" {
		config.Status.Schedule = schedule
	}

	// Jenkins configuration
	if url := os.Getenv("AGENTSTATUS_JENKINS_URL"); url != "" {
		config.Jenkins.URL = url
	}
	if username := os.Getenv("AGENTSTATUS_JENKINS_USERNAME"); username != "" {
		config.Jenkins.Username = username
	}
	if token := os.Getenv("AGENTSTATUS_JENKINS_TOKEN"); token != "" {
		config.Jenkins.Token = token
	}

	// GitHub configuration
	if token := os.Getenv("AGENTSTATUS_GITHUB_TOKEN"); token != "" {
		config.GitHub.Token = token
	} else if token := os.Getenv("GITHUB_TOKEN"); token != "" && config.GitHub.Token == "" {
		config.GitHub.Token = token
	}

	// Storage configuration
	if path := os.Getenv("AGENTSTATUS_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// applyFieldDefaults gives agents without declared fields the default
// log fields and fills in missing filenames.
func (c *Config) applyFieldDefaults() {
	for i := range c.Agents {
		agent := &c.Agents[i]
		if len(agent.Fields) == 0 {
			agent.Fields = append([]FieldConfig(nil), defaultFields...)
			continue
		}
		for j := range agent.Fields {
			if agent.Fields[j].Filename == "" {
				agent.Fields[j].Filename = agent.Fields[j].Name
			}
		}
	}
}

// Validate checks the configuration. ErrNoAgentsDeclared is returned when
// no agents are declared and discovery is disabled.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if len(c.Agents) == 0 && !c.Sources.Discover {
		return interfaces.ErrNoAgentsDeclared
	}
	if c.Sources.Discover && c.Sources.AgentPath == "" {
		return errors.New("invalid configuration: sources.agent_path is required for discovery")
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, agent := range c.Agents {
		if seen[agent.Name] {
			return fmt.Errorf("invalid configuration: agent %q declared twice", agent.Name)
		}
		seen[agent.Name] = true

		fields := make(map[string]bool, len(agent.Fields))
		for _, field := range agent.Fields {
			if fields[field.Name] {
				return fmt.Errorf("invalid configuration: field %q of agent %q declared twice", field.Name, agent.Name)
			}
			fields[field.Name] = true
		}
	}

	for name, value := range map[string]string{
		"status.freshness_window": c.Status.FreshnessWindow,
		"status.debounce":         c.Status.Debounce,
		"jenkins.timeout":         c.Jenkins.Timeout,
	} {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", name, err)
		}
	}

	// An empty schedule disables scheduled refreshes
	if c.Status.Schedule != "" {
		if _, err := cron.ParseStandard(c.Status.Schedule); err != nil {
			return fmt.Errorf("invalid configuration: status.schedule: %w", err)
		}
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid configuration: sources.timezone: %w", err)
	}

	return nil
}

// FreshnessWindow returns the parsed freshness window (0 disables it)
func (c *Config) FreshnessWindow() time.Duration {
	d, _ := parseDuration(c.Status.FreshnessWindow)
	return d
}

// Debounce returns the parsed watcher debounce period
func (c *Config) Debounce() time.Duration {
	d, _ := parseDuration(c.Status.Debounce)
	return d
}

// JenkinsTimeout returns the parsed Jenkins request timeout
func (c *Config) JenkinsTimeout() time.Duration {
	d, _ := parseDuration(c.Jenkins.Timeout)
	return d
}

// Location returns the zone for log timestamps without an offset
func (c *Config) Location() (*time.Location, error) {
	if c.Sources.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Sources.Timezone)
}

// DiscoveredAgent declares an agent found on disk with the default fields
func DiscoveredAgent(name string) AgentConfig {
	return AgentConfig{
		Name:   name,
		Fields: append([]FieldConfig(nil), defaultFields...),
	}
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", value)
	}
	return d, nil
}

func splitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
