package models

import (
	"sort"
	"time"
)

// AggregateSnapshot is one fully formed status view produced by a single
// refresh cycle. A snapshot is never modified after it is published; the
// accessors hand out copies of the contained slices.
type AggregateSnapshot struct {
	GeneratedAt time.Time
	CycleID     string

	agentOrder []string
	agents     map[string]AgentStatus
	jobs       map[string]JobBuildInfo
}

// NewSnapshot builds a snapshot from agent statuses (kept in the given
// order) and job build info. Empty inputs produce a valid empty snapshot.
func NewSnapshot(generatedAt time.Time, cycleID string, agents []AgentStatus, jobs []JobBuildInfo) *AggregateSnapshot {
	s := &AggregateSnapshot{
		GeneratedAt: generatedAt,
		CycleID:     cycleID,
		agentOrder:  make([]string, 0, len(agents)),
		agents:      make(map[string]AgentStatus, len(agents)),
		jobs:        make(map[string]JobBuildInfo, len(jobs)),
	}

	for _, agent := range agents {
		if _, exists := s.agents[agent.Name]; !exists {
			s.agentOrder = append(s.agentOrder, agent.Name)
		}
		s.agents[agent.Name] = agent
	}
	for _, job := range jobs {
		s.jobs[job.JobName] = job
	}

	return s
}

// Agent returns a copy of the status of a named agent
func (s *AggregateSnapshot) Agent(name string) (AgentStatus, bool) {
	agent, ok := s.agents[name]
	if !ok {
		return AgentStatus{}, false
	}
	return agent.clone(), true
}

// Agents returns all agent statuses in declaration order
func (s *AggregateSnapshot) Agents() []AgentStatus {
	agents := make([]AgentStatus, 0, len(s.agentOrder))
	for _, name := range s.agentOrder {
		agents = append(agents, s.agents[name].clone())
	}
	return agents
}

// AgentNames returns the agent names in declaration order
func (s *AggregateSnapshot) AgentNames() []string {
	names := make([]string, len(s.agentOrder))
	copy(names, s.agentOrder)
	return names
}

// Job returns the build info of a named job
func (s *AggregateSnapshot) Job(name string) (JobBuildInfo, bool) {
	job, ok := s.jobs[name]
	return job, ok
}

// Jobs returns all job build info sorted by job name
func (s *AggregateSnapshot) Jobs() []JobBuildInfo {
	jobs := make([]JobBuildInfo, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].JobName < jobs[j].JobName
	})
	return jobs
}

// LastModified returns the most recent date in the snapshot: log activity,
// file modification or build date. A stale job moves it to GeneratedAt,
// since the degraded flag changes without any of those dates changing.
// Zero when the snapshot holds no dates.
func (s *AggregateSnapshot) LastModified() time.Time {
	var latest time.Time
	bump := func(t time.Time) {
		if t.After(latest) {
			latest = t
		}
	}

	for _, agent := range s.agents {
		bump(agent.LastSeen)
		for _, field := range agent.Fields {
			bump(field.ModifiedAt)
			bump(field.LastSeen)
		}
	}
	for _, job := range s.jobs {
		bump(job.BuildDate)
		if job.Stale {
			bump(s.GeneratedAt)
		}
	}

	return latest
}
