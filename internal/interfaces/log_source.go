package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/agentstatus/internal/models"
)

// LogFile is the raw content of one agent log field as delivered by a source
type LogFile struct {
	Path       string
	Filename   string
	Content    []byte
	ModifiedAt time.Time
	Rotated    bool // content came from a rotated file
}

// LogSource yields raw per-agent, per-field log text. Implementations
// return ErrNotFound when the agent or field never logged.
type LogSource interface {
	// Agents lists the agents the source knows about, sorted by name
	Agents(ctx context.Context) ([]string, error)

	// ReadLog returns the content of the named log file for an agent
	ReadLog(ctx context.Context, agent, filename string) (LogFile, error)

	// ReadAgentInfo returns the agent's self-reported metadata
	ReadAgentInfo(ctx context.Context, agent string) (models.AgentInfo, error)
}
