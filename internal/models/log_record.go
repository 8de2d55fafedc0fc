package models

import "time"

// Source identifies where a log record came from: the agent (or importer
// job) identifier plus the optional declared log field name.
type Source struct {
	Agent string `json:"agent"`
	Field string `json:"field,omitempty"`
}

// String returns agent or agent/field
func (s Source) String() string {
	if s.Field == "" {
		return s.Agent
	}
	return s.Agent + "/" + s.Field
}

// LogRecord is one parsed physical log line. Records are values produced by
// a parser and are never mutated afterwards.
//
// A line that fails structural validation still produces a record: Level is
// LevelUnknown, Malformed is set and Message holds the raw line.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp,omitempty"`
	Level     Level     `json:"level"`
	LevelName string    `json:"level_name,omitempty"` // Level as written in the log
	Source    Source    `json:"source"`
	Message   string    `json:"message"`

	// Detail columns, only filled by formats that carry them
	Filename  string `json:"filename,omitempty"`
	LineNo    int    `json:"line_no,omitempty"`
	Module    string `json:"module,omitempty"`
	Function  string `json:"function,omitempty"`
	Traceback string `json:"traceback,omitempty"`

	Line      int  `json:"line"` // 1-based physical line in the log file
	Malformed bool `json:"malformed,omitempty"`
}

// HasTimestamp reports whether a timestamp was parsed for the record
func (r LogRecord) HasTimestamp() bool {
	return !r.Timestamp.IsZero()
}

// NewerThan reports whether r is more recent than other. Records without a
// timestamp are never newer than a timestamped record. Equal timestamps are
// resolved by the caller using arrival order.
func (r LogRecord) NewerThan(other LogRecord) bool {
	if !r.HasTimestamp() {
		return false
	}
	if !other.HasTimestamp() {
		return true
	}
	return r.Timestamp.After(other.Timestamp)
}
