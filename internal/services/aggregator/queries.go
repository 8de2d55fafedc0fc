package aggregator

import (
	"fmt"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
	"github.com/ternarybob/agentstatus/internal/services/snapshot"
)

// Queries only read the published snapshot and never trigger a refresh.
// Before the first refresh they fail with ErrUninitializedSnapshot.

// Snapshot returns the published snapshot
func (s *Service) Snapshot() (*models.AggregateSnapshot, error) {
	return s.cache.Get()
}

// GetAgent returns the status of a declared agent
func (s *Service) GetAgent(name string) (models.AgentStatus, error) {
	snap, err := s.cache.Get()
	if err != nil {
		return models.AgentStatus{}, err
	}
	agent, ok := snap.Agent(name)
	if !ok {
		return models.AgentStatus{}, fmt.Errorf("agent %q: %w", name, interfaces.ErrNotFound)
	}
	return agent, nil
}

// GetAgentField returns one declared field of an agent. A field that was
// never declared for the agent is not found, even if its log exists.
func (s *Service) GetAgentField(name, field string) (models.FieldStatus, error) {
	agent, err := s.GetAgent(name)
	if err != nil {
		return models.FieldStatus{}, err
	}
	status, ok := agent.Field(field)
	if !ok {
		return models.FieldStatus{}, fmt.Errorf("field %q of agent %q: %w", field, name, interfaces.ErrNotFound)
	}
	return status, nil
}

// GetJob returns the build info of a tracked job
func (s *Service) GetJob(name string) (models.JobBuildInfo, error) {
	snap, err := s.cache.Get()
	if err != nil {
		return models.JobBuildInfo{}, err
	}
	job, ok := snap.Job(name)
	if !ok {
		return models.JobBuildInfo{}, fmt.Errorf("job %q: %w", name, interfaces.ErrNotFound)
	}
	return job, nil
}

// ListAgents returns all agent statuses in declaration order
func (s *Service) ListAgents() ([]models.AgentStatus, error) {
	snap, err := s.cache.Get()
	if err != nil {
		return nil, err
	}
	return snap.Agents(), nil
}

// ListJobs returns all job build info sorted by name
func (s *Service) ListJobs() ([]models.JobBuildInfo, error) {
	snap, err := s.cache.Get()
	if err != nil {
		return nil, err
	}
	return snap.Jobs(), nil
}

// Status reports the snapshot cache state
func (s *Service) Status() snapshot.Status {
	return s.cache.Status()
}
