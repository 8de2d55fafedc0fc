package models

import (
	"strings"
	"time"
)

// BuildResult is the normalised outcome of the latest build of a job
type BuildResult string

const (
	BuildSuccess  BuildResult = "success"
	BuildFailure  BuildResult = "failure"
	BuildUnstable BuildResult = "unstable"
	BuildAborted  BuildResult = "aborted"
	BuildUnknown  BuildResult = "unknown"
)

// ParseBuildResult normalises Jenkins results (SUCCESS, FAILURE, UNSTABLE,
// ABORTED, NOT_BUILT) and GitHub Actions conclusions (success, failure,
// cancelled, timed_out, ...). Anything else is BuildUnknown.
func ParseBuildResult(result string) BuildResult {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "success":
		return BuildSuccess
	case "failure", "timed_out", "startup_failure":
		return BuildFailure
	case "unstable", "action_required":
		return BuildUnstable
	case "aborted", "cancelled", "canceled":
		return BuildAborted
	default:
		return BuildUnknown
	}
}

// JobBuildInfo is the latest known build result of a tracked job.
// When a refresh cannot reach the provider the previous value is kept and
// Stale is set.
type JobBuildInfo struct {
	JobName         string      `json:"job_name" badgerhold:"key"`
	Provider        string      `json:"provider"`
	LastBuildNumber int         `json:"last_build_number"`
	LastBuildResult BuildResult `json:"last_build_result"`
	BuildDate       time.Time   `json:"build_date,omitempty"`
	URL             string      `json:"url,omitempty"`
	FetchedAt       time.Time   `json:"fetched_at,omitempty"`
	Stale           bool        `json:"stale"`
	Error           string      `json:"error,omitempty"`
}

// HasBuild reports whether a build was ever recorded for the job
func (j JobBuildInfo) HasBuild() bool {
	return j.LastBuildNumber > 0
}
