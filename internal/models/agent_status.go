package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// State is the lifecycle state derived for an agent or one of its log fields
type State int

const (
	StateUnknown State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateStale
)

var stateNames = [...]string{"unknown", "running", "succeeded", "failed", "stale"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return stateNames[StateUnknown]
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *State) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state: %q", text)
}

// FieldStatus is the derived status of one declared log field of an agent
type FieldStatus struct {
	Name       string      `json:"name"`
	Format     string      `json:"format"`
	Columns    []string    `json:"columns,omitempty"`
	Path       string      `json:"path,omitempty"`
	ModifiedAt time.Time   `json:"modified_at,omitempty"`
	Missing    bool        `json:"missing"`
	State      State       `json:"state"`
	LastSeen   time.Time   `json:"last_seen,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
	Worst      Level       `json:"worst"`
	Latest     *LogRecord  `json:"latest,omitempty"`
	Records    []LogRecord `json:"records,omitempty"` // newest first
	Malformed  int         `json:"malformed"`
	Total      int         `json:"total"`
}

// AgentInfo is the self-reported agent metadata published next to its logs
type AgentInfo struct {
	Hostname   string `json:"hostname,omitempty"`
	Version    string `json:"version,omitempty"`
	Branch     string `json:"branch,omitempty"`
	SHA        string `json:"sha,omitempty"`
	VersionURL string `json:"version_url,omitempty"`
}

// AgentStatus is the aggregated status of one agent. Fields keeps the
// declaration order of the agent's log fields; only declared fields are
// present.
type AgentStatus struct {
	Name      string        `json:"name"`
	State     State         `json:"state"`
	LastSeen  time.Time     `json:"last_seen,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Info      AgentInfo     `json:"info"`
	Job       string        `json:"job,omitempty"` // linked build info job, answered separately
	Fields    []FieldStatus `json:"fields"`
}

// clone copies the field statuses so callers cannot reach into a
// published snapshot
func (a AgentStatus) clone() AgentStatus {
	fields := make([]FieldStatus, len(a.Fields))
	for i, f := range a.Fields {
		f.Columns = slices.Clone(f.Columns)
		f.Records = slices.Clone(f.Records)
		if f.Latest != nil {
			latest := *f.Latest
			f.Latest = &latest
		}
		fields[i] = f
	}
	a.Fields = fields
	return a
}

// Field returns the status for a declared field name
func (a *AgentStatus) Field(name string) (FieldStatus, bool) {
	for _, f := range a.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldStatus{}, false
}

// FieldNames returns the declared field names in order
func (a *AgentStatus) FieldNames() []string {
	names := make([]string, len(a.Fields))
	for i, f := range a.Fields {
		names[i] = f.Name
	}
	return names
}
