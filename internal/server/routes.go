package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes. Handlers check the method
// themselves so a wrong method answers 405 with a JSON body.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Agents
	mux.HandleFunc("/api/agents", s.app.StatusHandler.ListAgentsHandler)
	mux.HandleFunc("/api/agents/{name}", s.app.StatusHandler.GetAgentHandler)
	mux.HandleFunc("/api/agents/{name}/fields/{field}", s.app.StatusHandler.GetAgentFieldHandler)

	// API routes - Jobs (names may contain slashes)
	mux.HandleFunc("/api/jobs", s.app.StatusHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/{name...}", s.app.StatusHandler.GetJobHandler)

	// API routes - Snapshot control
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler) // GET - cache status
	mux.HandleFunc("/api/refresh", s.app.StatusHandler.RefreshHandler)  // POST - queue a refresh
	mux.HandleFunc("/api/reset", s.app.StatusHandler.ResetHandler)      // POST - clear and rebuild

	// WebSocket route - snapshot stream
	mux.HandleFunc("/ws", s.app.WebSocketHandler.HandleWebSocket)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}
