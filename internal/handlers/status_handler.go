package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/common"
	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
	"github.com/ternarybob/agentstatus/internal/services/snapshot"
)

// StatusService is the query and control surface of the aggregator
type StatusService interface {
	Snapshot() (*models.AggregateSnapshot, error)
	GetAgent(name string) (models.AgentStatus, error)
	GetAgentField(name, field string) (models.FieldStatus, error)
	GetJob(name string) (models.JobBuildInfo, error)
	ListAgents() ([]models.AgentStatus, error)
	ListJobs() ([]models.JobBuildInfo, error)
	Status() snapshot.Status
	TriggerRefresh(reason string) bool
	Reset()
}

// StatusHandler serves agent and job status from the published snapshot
type StatusHandler struct {
	service StatusService
	events  interfaces.EventService
	logger  arbor.ILogger
	now     func() time.Time
}

// NewStatusHandler creates a new StatusHandler. Refresh requests go through
// events when set, straight to the service otherwise.
func NewStatusHandler(service StatusService, events interfaces.EventService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		service: service,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

type agentView struct {
	models.AgentStatus
	LastSeenAgo string `json:"last_seen_ago,omitempty"`
}

type jobView struct {
	models.JobBuildInfo
	BuildAgo string `json:"build_ago,omitempty"`
}

func (h *StatusHandler) ago(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.RelTime(t, h.now(), "ago", "from now")
}

func (h *StatusHandler) agentView(agent models.AgentStatus) agentView {
	return agentView{AgentStatus: agent, LastSeenAgo: h.ago(agent.LastSeen)}
}

func (h *StatusHandler) jobView(job models.JobBuildInfo) jobView {
	return jobView{JobBuildInfo: job, BuildAgo: h.ago(job.BuildDate)}
}

// notModified answers conditional requests from the snapshot dates
func (h *StatusHandler) notModified(w http.ResponseWriter, r *http.Request) bool {
	snap, err := h.service.Snapshot()
	if err != nil {
		return false
	}
	lastModified := snap.LastModified()
	if lastModified.IsZero() {
		lastModified = snap.GeneratedAt
	}
	return NotModified(w, r, lastModified)
}

// ListAgentsHandler handles GET /api/agents
func (h *StatusHandler) ListAgentsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	agents, err := h.service.ListAgents()
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if h.notModified(w, r) {
		return
	}

	views := make([]agentView, 0, len(agents))
	for _, agent := range agents {
		views = append(views, h.agentView(agent))
	}
	WriteJSON(w, http.StatusOK, views)
}

// GetAgentHandler handles GET /api/agents/{name}
func (h *StatusHandler) GetAgentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	agent, err := h.service.GetAgent(r.PathValue("name"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if h.notModified(w, r) {
		return
	}

	WriteJSON(w, http.StatusOK, h.agentView(agent))
}

// GetAgentFieldHandler handles GET /api/agents/{name}/fields/{field}
func (h *StatusHandler) GetAgentFieldHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	field, err := h.service.GetAgentField(r.PathValue("name"), r.PathValue("field"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if h.notModified(w, r) {
		return
	}

	WriteJSON(w, http.StatusOK, field)
}

// ListJobsHandler handles GET /api/jobs
func (h *StatusHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	jobs, err := h.service.ListJobs()
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if h.notModified(w, r) {
		return
	}

	views := make([]jobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, h.jobView(job))
	}
	WriteJSON(w, http.StatusOK, views)
}

// GetJobHandler handles GET /api/jobs/{name...}. Job names may contain
// slashes (folders, owner/repo/workflow).
func (h *StatusHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	job, err := h.service.GetJob(r.PathValue("name"))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if h.notModified(w, r) {
		return
	}

	WriteJSON(w, http.StatusOK, h.jobView(job))
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status := h.service.Status()
	response := map[string]interface{}{
		"version":  common.Version,
		"snapshot": status,
	}
	if status.Initialized {
		response["generated_ago"] = h.ago(status.GeneratedAt)
	}
	WriteJSON(w, http.StatusOK, response)
}

// RefreshHandler handles POST /api/refresh
func (h *StatusHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	queued, err := h.requestRefresh(r.Context(), "api")
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to request refresh")
		WriteError(w, http.StatusServiceUnavailable, "Refresh could not be requested")
		return
	}
	h.logger.Info().Bool("queued", queued).Msg("Refresh requested")

	state := "queued"
	if !queued {
		state = "pending"
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":  state,
		"message": "Refresh scheduled",
	})
}

func (h *StatusHandler) requestRefresh(ctx context.Context, reason string) (bool, error) {
	if h.events == nil {
		return h.service.TriggerRefresh(reason), nil
	}

	request := &interfaces.RefreshRequest{Reason: reason}
	if err := h.events.PublishSync(ctx, interfaces.Event{
		Type:    interfaces.EventRefreshRequested,
		Payload: request,
	}); err != nil {
		return false, err
	}
	return request.Queued, nil
}

// ResetHandler handles POST /api/reset
func (h *StatusHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	h.service.Reset()
	h.logger.Info().Msg("Status reset requested")

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":  "queued",
		"message": "Snapshot cleared, refresh scheduled",
	})
}
