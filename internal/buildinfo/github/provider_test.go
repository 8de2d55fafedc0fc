package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewProvider("", nil).WithBaseURL(server.URL)
	require.NoError(t, err)
	return provider
}

func TestSplitJobName(t *testing.T) {
	tests := []struct {
		name    string
		job     string
		wantErr bool
	}{
		{name: "Valid", job: "acme/gatherer/build.yml"},
		{name: "Leading slash", job: "/acme/gatherer/build.yml"},
		{name: "Missing workflow", job: "acme/gatherer", wantErr: true},
		{name: "Trimmed to two parts", job: "/gatherer/build.yml/", wantErr: true},
		{name: "Empty", job: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, err := SplitJobName(tt.job)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFetchLatestRun(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/gatherer/actions/workflows/build.yml/runs", r.URL.Path)
		assert.Equal(t, "completed", r.URL.Query().Get("status"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_count": 1, "workflow_runs": [{
			"id": 99, "run_number": 17, "status": "completed", "conclusion": "timed_out",
			"html_url": "https://github.com/acme/gatherer/actions/runs/99",
			"run_started_at": "2024-06-25T09:00:00Z", "created_at": "2024-06-25T08:59:00Z"
		}]}`))
	})

	info, err := provider.Fetch(context.Background(), "acme/gatherer/build.yml")

	require.NoError(t, err)
	assert.Equal(t, "acme/gatherer/build.yml", info.JobName)
	assert.Equal(t, "github", info.Provider)
	assert.Equal(t, 17, info.LastBuildNumber)
	assert.Equal(t, models.BuildFailure, info.LastBuildResult)
	assert.Equal(t, 9, info.BuildDate.Hour())
	assert.Equal(t, "https://github.com/acme/gatherer/actions/runs/99", info.URL)
}

func TestFetchNoRuns(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_count": 0, "workflow_runs": []}`))
	})

	_, err := provider.Fetch(context.Background(), "acme/gatherer/build.yml")
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestFetchErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
	}{
		{name: "Unknown workflow", status: http.StatusNotFound, target: interfaces.ErrNotFound},
		{name: "Server error", status: http.StatusInternalServerError, target: interfaces.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message": "failed"}`))
			})

			_, err := provider.Fetch(context.Background(), "acme/gatherer/build.yml")
			assert.ErrorIs(t, err, tt.target)
		})
	}
}
