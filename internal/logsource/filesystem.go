// Package logsource reads agent logs and agent metadata from the
// controller directory shared by the agents.
package logsource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/tidwall/gjson"

	"github.com/ternarybob/agentstatus/internal/common"
	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

// Component whose version tag describes the agent build
const gathererComponent = "gatherer"

// Ports of the agent web instances, by instance host prefix
var instancePorts = map[string]int{
	"agent": 7070,
	"www":   8080,
}

var versionPattern = regexp.MustCompile(`^([\d.]+)-(.*)-([0-9a-f]+)`)

// Filesystem implements interfaces.LogSource on a controller directory
// laid out as <controller>/<agent>/<filename> with agent metadata in
// <controller>/agent-<agent>.json.
type Filesystem struct {
	controllerPath string
	agentPath      string
	versionURL     string
	logger         arbor.ILogger
}

// NewFilesystem creates a filesystem log source
func NewFilesystem(config common.SourcesConfig, logger arbor.ILogger) *Filesystem {
	return &Filesystem{
		controllerPath: config.ControllerPath,
		agentPath:      config.AgentPath,
		versionURL:     config.VersionURL,
		logger:         logger,
	}
}

// ControllerPath returns the root directory of the agent logs
func (f *Filesystem) ControllerPath() string {
	return f.controllerPath
}

// Agents lists the subdirectories of the agent path
func (f *Filesystem) Agents(ctx context.Context) ([]string, error) {
	root := f.agentPath
	if root == "" {
		root = f.controllerPath
	}

	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("agent directory %s: %w", root, interfaces.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list agents in %s: %w", root, err)
	}

	var agents []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			agents = append(agents, entry.Name())
		}
	}
	sort.Strings(agents)
	return agents, nil
}

// ReadLog returns the current log file of an agent. When the file is gone
// the newest rotated copy (<filename>-<suffix>) is read instead.
func (f *Filesystem) ReadLog(ctx context.Context, agent, filename string) (interfaces.LogFile, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.LogFile{}, err
	}

	path := filepath.Join(f.controllerPath, agent, filename)
	file, err := readFile(path, filename)
	if err == nil {
		return file, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return interfaces.LogFile{}, err
	}

	rotated, err := newestRotated(path)
	if err != nil {
		return interfaces.LogFile{}, err
	}
	if rotated == "" {
		return interfaces.LogFile{}, fmt.Errorf("log %s of agent %s: %w", filename, agent, interfaces.ErrNotFound)
	}

	f.logger.Debug().
		Str("agent", agent).
		Str("path", rotated).
		Msg("Reading rotated log")

	file, err = readFile(rotated, filename)
	if err != nil {
		return interfaces.LogFile{}, err
	}
	file.Rotated = true
	return file, nil
}

func readFile(path, filename string) (interfaces.LogFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return interfaces.LogFile{}, err
	}
	if info.IsDir() {
		return interfaces.LogFile{}, fmt.Errorf("log path %s is a directory", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return interfaces.LogFile{}, fmt.Errorf("failed to read log %s: %w", path, err)
	}

	return interfaces.LogFile{
		Path:       path,
		Filename:   filename,
		Content:    content,
		ModifiedAt: info.ModTime(),
	}, nil
}

// newestRotated returns the rotated copy of path (<name>-<suffix>) that
// sorts last, which for date or counter suffixes is the most recent one.
func newestRotated(path string) (string, error) {
	dir, name := filepath.Split(path)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find rotated logs of %s: %w", path, err)
	}

	newest := ""
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), name+"-") {
			continue
		}
		if entry.Name() > newest {
			newest = entry.Name()
		}
	}
	if newest == "" {
		return "", nil
	}
	return filepath.Join(dir, newest), nil
}

// ReadAgentInfo reads agent-<agent>.json from the controller directory
func (f *Filesystem) ReadAgentInfo(ctx context.Context, agent string) (models.AgentInfo, error) {
	path := filepath.Join(f.controllerPath, fmt.Sprintf("agent-%s.json", agent))
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return models.AgentInfo{}, fmt.Errorf("agent info of %s: %w", agent, interfaces.ErrNotFound)
	}
	if err != nil {
		return models.AgentInfo{}, fmt.Errorf("failed to read agent info %s: %w", path, err)
	}

	return ParseAgentInfo(data, f.versionURL)
}

// ParseAgentInfo decodes an agent status document. The hostname of the
// agent instance is turned into the URL of its web instance and the
// gatherer version tag is split into version, branch and commit.
func ParseAgentInfo(data []byte, versionURL string) (models.AgentInfo, error) {
	if !gjson.ValidBytes(data) {
		return models.AgentInfo{}, fmt.Errorf("invalid agent info: %w", interfaces.ErrMalformedRecord)
	}

	doc := gjson.ParseBytes(data)
	info := models.AgentInfo{
		Hostname: instanceURL(doc.Get("hostname").String()),
		Version:  doc.Get("version").String(),
	}

	parseVersion(&info, versionURL)
	return info, nil
}

// instanceURL maps agent.<domain> to the web instance http://www.<domain>:8080/
func instanceURL(hostname string) string {
	instance, domain, ok := strings.Cut(hostname, ".")
	if !ok {
		return hostname
	}
	if instance == "agent" {
		instance = "www"
	}
	if port, ok := instancePorts[instance]; ok {
		return fmt.Sprintf("http://%s.%s:%d/", instance, domain, port)
	}
	return hostname
}

// parseVersion reads "component/tag" pairs separated by spaces and fills
// in version details from the gatherer tag
func parseVersion(info *models.AgentInfo, versionURL string) {
	for _, tags := range strings.Fields(info.Version) {
		component, tag, ok := strings.Cut(tags, "/")
		if !ok || component != gathererComponent {
			continue
		}

		match := versionPattern.FindStringSubmatch(tag)
		if match == nil {
			return
		}

		info.Version = match[1]
		info.Branch = match[2]
		info.SHA = match[3]
		if versionURL != "" {
			info.VersionURL = strings.ReplaceAll(versionURL, "{sha}", info.SHA)
		}
		return
	}
}

// Ensure interface compliance
var _ interfaces.LogSource = (*Filesystem)(nil)
