package interfaces

import "errors"

var (
	// ErrMalformedRecord marks a log line that failed structural validation.
	// Parsers recover from it locally by degrading the record.
	ErrMalformedRecord = errors.New("malformed log record")

	// ErrProviderUnavailable is returned when the build info provider cannot
	// be reached (connection failure, timeout, server error).
	ErrProviderUnavailable = errors.New("build info provider unavailable")

	// ErrNotFound is returned for unknown agents, jobs and log fields, and
	// by log sources when an agent or field never logged.
	ErrNotFound = errors.New("not found")

	// ErrUninitializedSnapshot is returned by queries before the first
	// successful refresh, or after the cache was cleared.
	ErrUninitializedSnapshot = errors.New("status snapshot not yet initialized")

	// ErrNoAgentsDeclared is a configuration error: nothing to aggregate.
	ErrNoAgentsDeclared = errors.New("no agents declared")
)
