package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ternarybob/agentstatus/internal/interfaces"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteServiceError translates a query error into its HTTP status:
// not found is 404, a snapshot that is not built yet is 503.
func WriteServiceError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, interfaces.ErrUninitializedSnapshot):
		w.Header().Set("Retry-After", "5")
		return WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		return WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// NotModified sets Last-Modified and reports whether the client copy from
// If-Modified-Since is still current, in which case 304 has been written.
func NotModified(w http.ResponseWriter, r *http.Request, lastModified time.Time) bool {
	if lastModified.IsZero() {
		return false
	}
	lastModified = lastModified.UTC().Truncate(time.Second)
	w.Header().Set("Last-Modified", lastModified.Format(http.TimeFormat))

	since := r.Header.Get("If-Modified-Since")
	if since == "" {
		return false
	}
	t, err := http.ParseTime(since)
	if err != nil || lastModified.After(t) {
		return false
	}

	w.WriteHeader(http.StatusNotModified)
	return true
}
