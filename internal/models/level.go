package models

import (
	"strings"
)

// Level is the severity or status level attached to a log record.
// The zero value is LevelUnknown so that records with a level outside the
// known vocabulary degrade safely instead of failing classification.
type Level int

const (
	LevelUnknown Level = iota
	LevelTrace
	LevelDebug
	LevelConfig
	LevelInfo
	LevelSuccess
	LevelWarning
	LevelError
	LevelCritical
)

var levelNames = map[Level]string{
	LevelUnknown:  "unknown",
	LevelTrace:    "trace",
	LevelDebug:    "debug",
	LevelConfig:   "config",
	LevelInfo:     "info",
	LevelSuccess:  "success",
	LevelWarning:  "warning",
	LevelError:    "error",
	LevelCritical: "critical",
}

// levelAliases covers the Python logging names as well as the Java
// levels written by the exporter and scraper runs.
var levelAliases = map[string]Level{
	"FINEST":   LevelTrace,
	"FINER":    LevelTrace,
	"FINE":     LevelTrace,
	"TRACE":    LevelTrace,
	"DEBUG":    LevelDebug,
	"CONFIG":   LevelConfig,
	"INFO":     LevelInfo,
	"NOTICE":   LevelInfo,
	"SUCCESS":  LevelSuccess,
	"DONE":     LevelSuccess,
	"OK":       LevelSuccess,
	"WARNING":  LevelWarning,
	"WARN":     LevelWarning,
	"ERROR":    LevelError,
	"ERR":      LevelError,
	"SEVERE":   LevelCritical,
	"CRITICAL": LevelCritical,
	"FATAL":    LevelCritical,
}

// ParseLevel maps a level name to a Level. Unknown names yield LevelUnknown.
func ParseLevel(name string) Level {
	if level, ok := levelAliases[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return level
	}
	return LevelUnknown
}

// LevelFromNumber maps a Python logging level number (levelno) to a Level.
func LevelFromNumber(levelno int) Level {
	switch {
	case levelno >= 50:
		return LevelCritical
	case levelno >= 40:
		return LevelError
	case levelno >= 30:
		return LevelWarning
	case levelno >= 20:
		return LevelInfo
	case levelno >= 10:
		return LevelDebug
	case levelno > 0:
		return LevelTrace
	default:
		return LevelUnknown
	}
}

// String returns the lower case level name
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return levelNames[LevelUnknown]
}

// Severity returns the Python logging number for the level.
func (l Level) Severity() int {
	switch l {
	case LevelTrace:
		return 5
	case LevelDebug, LevelConfig:
		return 10
	case LevelInfo, LevelSuccess:
		return 20
	case LevelWarning:
		return 30
	case LevelError:
		return 40
	case LevelCritical:
		return 50
	default:
		return 0
	}
}

// IsFailure reports whether the level marks a failed run.
func (l Level) IsFailure() bool {
	return l == LevelError || l == LevelCritical
}

// IsSuccess reports whether the level marks a successfully finished run.
func (l Level) IsSuccess() bool {
	return l == LevelSuccess
}

// IsTerminal reports whether the level ends a run, either way.
func (l Level) IsTerminal() bool {
	return l.IsFailure() || l.IsSuccess()
}

// MarshalText implements encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Level) UnmarshalText(text []byte) error {
	*l = ParseLevel(string(text))
	return nil
}
