package parser

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

// TextParser reads whitespace delimited lines:
//
//	2024-06-25T12:34:56Z INFO import started
//	2024-06-25 12:34:56.123 ERROR import failed
//
// An unrecognised level is kept as LevelUnknown; only a missing delimiter
// or a bad timestamp makes the line malformed.
type TextParser struct {
	loc *time.Location
}

// NewTextParser creates a parser for plain text logs with timestamps in loc
func NewTextParser(loc *time.Location) *TextParser {
	if loc == nil {
		loc = time.Local
	}
	return &TextParser{loc: loc}
}

func (p *TextParser) Format() string { return FormatText }

func (p *TextParser) Columns() []string {
	return []string{"date", "level", "message"}
}

func (p *TextParser) ParseLine(line string, src models.Source) (models.LogRecord, error) {
	stamp, rest := cutField(strings.TrimSpace(line))
	if bareDate.MatchString(stamp) {
		// "2024-06-25 12:34:56": the time is the next field
		var clock string
		clock, rest = cutField(rest)
		stamp += " " + clock
	}

	level, rest := cutField(rest)
	if level == "" {
		return models.LogRecord{}, fmt.Errorf("%w: missing delimiter", interfaces.ErrMalformedRecord)
	}

	ts, err := ParseTimestamp(stamp, p.loc)
	if err != nil {
		return models.LogRecord{}, err
	}

	return models.LogRecord{
		Timestamp: ts,
		Level:     models.ParseLevel(level),
		LevelName: level,
		Source:    src,
		Message:   strings.TrimSpace(rest),
	}, nil
}

// cutField splits off the first whitespace delimited field. Runs of
// whitespace count as one delimiter.
func cutField(s string) (field, rest string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}
