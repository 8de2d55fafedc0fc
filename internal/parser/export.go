package parser

import (
	"fmt"
	"regexp"
	"time"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

// ExportParser reads scraper and exporter run logs:
//
//	2018-01-24 01:00:29,123:WARNING:Could not load sprint data
//
// The milliseconds part is optional. Java level names are accepted.
type ExportParser struct {
	loc *time.Location
}

var exportLine = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:,\d{3})?):([A-Z]+):(.*)$`)

// NewExportParser creates a parser for export logs with timestamps in loc
func NewExportParser(loc *time.Location) *ExportParser {
	if loc == nil {
		loc = time.Local
	}
	return &ExportParser{loc: loc}
}

func (p *ExportParser) Format() string { return FormatExport }

func (p *ExportParser) Columns() []string {
	return []string{"date", "level", "message"}
}

func (p *ExportParser) ParseLine(line string, src models.Source) (models.LogRecord, error) {
	match := exportLine.FindStringSubmatch(line)
	if match == nil {
		return models.LogRecord{}, fmt.Errorf("%w: expected <date>:<LEVEL>:<message>", interfaces.ErrMalformedRecord)
	}

	ts, err := ParseTimestamp(match[1], p.loc)
	if err != nil {
		return models.LogRecord{}, err
	}

	return models.LogRecord{
		Timestamp: ts,
		Level:     models.ParseLevel(match[2]),
		LevelName: match[2],
		Source:    src,
		Message:   match[3],
	}, nil
}
