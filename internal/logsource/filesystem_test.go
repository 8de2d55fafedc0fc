package logsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/common"
	"github.com/ternarybob/agentstatus/internal/interfaces"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestSource(t *testing.T) (*Filesystem, string, string) {
	t.Helper()
	controller := t.TempDir()
	agents := t.TempDir()
	source := NewFilesystem(common.SourcesConfig{
		ControllerPath: controller,
		AgentPath:      agents,
		VersionURL:     "https://gitlab.example/gatherer/tree/{sha}",
	}, arbor.NewLogger())
	return source, controller, agents
}

func TestAgents(t *testing.T) {
	source, _, agents := newTestSource(t)
	require.NoError(t, os.MkdirAll(filepath.Join(agents, "TEST"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(agents, "ALPHA"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(agents, ".git"), 0755))
	writeFile(t, filepath.Join(agents, "README"), "not an agent")

	names, err := source.Agents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ALPHA", "TEST"}, names)
}

func TestAgentsMissingDirectory(t *testing.T) {
	source := NewFilesystem(common.SourcesConfig{
		ControllerPath: filepath.Join(t.TempDir(), "missing"),
	}, arbor.NewLogger())

	_, err := source.Agents(context.Background())
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestReadLog(t *testing.T) {
	source, controller, _ := newTestSource(t)
	writeFile(t, filepath.Join(controller, "TEST", "export.log"), "2018-01-24 01:00:29:INFO:done\n")

	file, err := source.ReadLog(context.Background(), "TEST", "export.log")
	require.NoError(t, err)
	assert.Equal(t, "export.log", file.Filename)
	assert.Equal(t, "2018-01-24 01:00:29:INFO:done\n", string(file.Content))
	assert.False(t, file.Rotated)
	assert.False(t, file.ModifiedAt.IsZero())
}

func TestReadLogFallsBackToNewestRotated(t *testing.T) {
	source, controller, _ := newTestSource(t)
	writeFile(t, filepath.Join(controller, "TEST", "export.log-20180122"), "old\n")
	writeFile(t, filepath.Join(controller, "TEST", "export.log-20180123"), "newer\n")
	writeFile(t, filepath.Join(controller, "TEST", "log.json-20180124"), "other log\n")

	file, err := source.ReadLog(context.Background(), "TEST", "export.log")
	require.NoError(t, err)
	assert.True(t, file.Rotated)
	assert.Equal(t, "newer\n", string(file.Content))
	assert.Equal(t, filepath.Join(controller, "TEST", "export.log-20180123"), file.Path)
}

func TestReadLogNotFound(t *testing.T) {
	source, controller, _ := newTestSource(t)

	_, err := source.ReadLog(context.Background(), "TEST", "export.log")
	assert.ErrorIs(t, err, interfaces.ErrNotFound, "agent directory missing")

	require.NoError(t, os.MkdirAll(filepath.Join(controller, "TEST"), 0755))
	_, err = source.ReadLog(context.Background(), "TEST", "export.log")
	assert.ErrorIs(t, err, interfaces.ErrNotFound, "log missing")
}

func TestReadLogCancelled(t *testing.T) {
	source, _, _ := newTestSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := source.ReadLog(ctx, "TEST", "export.log")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadAgentInfo(t *testing.T) {
	source, controller, _ := newTestSource(t)
	writeFile(t, filepath.Join(controller, "agent-TEST.json"),
		`{"hostname": "agent.test.example", "version": "gatherer/0.0.3-master-1a2b3c4 agent/1.2"}`)

	info, err := source.ReadAgentInfo(context.Background(), "TEST")
	require.NoError(t, err)
	assert.Equal(t, "http://www.test.example:8080/", info.Hostname)
	assert.Equal(t, "0.0.3", info.Version)
	assert.Equal(t, "master", info.Branch)
	assert.Equal(t, "1a2b3c4", info.SHA)
	assert.Equal(t, "https://gitlab.example/gatherer/tree/1a2b3c4", info.VersionURL)

	_, err = source.ReadAgentInfo(context.Background(), "OTHER")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestParseAgentInfo(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		hostname string
		version  string
		branch   string
		sha      string
	}{
		{
			name:     "Web instance keeps its port",
			data:     `{"hostname": "www.test.example", "version": "gatherer/1.0-feature-x-beef"}`,
			hostname: "http://www.test.example:8080/",
			version:  "1.0",
			branch:   "feature-x",
			sha:      "beef",
		},
		{
			name:     "Unknown instance is kept",
			data:     `{"hostname": "db.test.example", "version": "other/1.0"}`,
			hostname: "db.test.example",
			version:  "other/1.0",
		},
		{
			name:     "Unparsable gatherer tag",
			data:     `{"hostname": "localhost", "version": "gatherer/unknown"}`,
			hostname: "localhost",
			version:  "gatherer/unknown",
		},
		{
			name: "Empty document",
			data: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseAgentInfo([]byte(tt.data), "")
			require.NoError(t, err)
			assert.Equal(t, tt.hostname, info.Hostname)
			assert.Equal(t, tt.version, info.Version)
			assert.Equal(t, tt.branch, info.Branch)
			assert.Equal(t, tt.sha, info.SHA)
			assert.Empty(t, info.VersionURL)
		})
	}

	_, err := ParseAgentInfo([]byte(`{"hostname":`), "")
	assert.ErrorIs(t, err, interfaces.ErrMalformedRecord)
}

func TestReadLogModifiedAt(t *testing.T) {
	source, controller, _ := newTestSource(t)
	path := filepath.Join(controller, "TEST", "log.json")
	writeFile(t, path, "{}\n")

	modified := time.Date(2018, 1, 24, 1, 0, 29, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, modified, modified))

	file, err := source.ReadLog(context.Background(), "TEST", "log.json")
	require.NoError(t, err)
	assert.True(t, file.ModifiedAt.Equal(modified))
}
