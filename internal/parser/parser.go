// Package parser turns raw line oriented agent logs into typed log records.
//
// Every physical line yields exactly one record. A line that fails
// structural validation becomes a record with LevelUnknown, Malformed set
// and the raw text as its message, so a bad line never blocks the lines
// after it.
package parser

import (
	"bytes"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/ternarybob/agentstatus/internal/models"
)

// Parser converts one raw log line into a LogRecord
type Parser interface {
	// Format returns the format name used in configuration
	Format() string

	// Columns lists the record columns the format fills in
	Columns() []string

	// ParseLine parses one line. An error wrapping
	// interfaces.ErrMalformedRecord means the line failed validation.
	ParseLine(line string, src models.Source) (models.LogRecord, error)
}

const (
	FormatNDJSON = "ndjson"
	FormatExport = "export"
	FormatText   = "text"
)

// ForFormat returns the parser for a configured format name. Timestamps
// without a zone are read in loc (time.Local when nil).
func ForFormat(format string, loc *time.Location) (Parser, error) {
	switch format {
	case FormatNDJSON:
		return NewNDJSONParser(), nil
	case FormatExport:
		return NewExportParser(loc), nil
	case FormatText, "":
		return NewTextParser(loc), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (supported: %v)", format, Formats())
	}
}

// Formats lists the supported format names
func Formats() []string {
	formats := []string{FormatNDJSON, FormatExport, FormatText}
	sort.Strings(formats)
	return formats
}

// Parse returns a lazy sequence of records, one per line of data. The
// sequence can be ranged over any number of times; each pass parses the
// same bytes again.
func Parse(p Parser, data []byte, src models.Source) iter.Seq[models.LogRecord] {
	return func(yield func(models.LogRecord) bool) {
		for number, line := range Lines(data) {
			if !yield(parseOne(p, line, number, src)) {
				return
			}
		}
	}
}

// Collect parses all of data into a slice
func Collect(p Parser, data []byte, src models.Source) []models.LogRecord {
	var records []models.LogRecord
	for record := range Parse(p, data, src) {
		records = append(records, record)
	}
	return records
}

func parseOne(p Parser, line string, number int, src models.Source) models.LogRecord {
	record, err := p.ParseLine(line, src)
	if err != nil {
		record = Malformed(line, src)
	}
	record.Line = number
	return record
}

// Malformed builds the degraded record for a line that failed validation
func Malformed(line string, src models.Source) models.LogRecord {
	return models.LogRecord{
		Level:     models.LevelUnknown,
		Source:    src,
		Message:   line,
		Malformed: true,
	}
}

// Lines iterates over the physical lines of data with 1-based line
// numbers. Line endings (\n or \r\n) are stripped. A trailing newline
// does not start another line.
func Lines(data []byte) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		number := 0
		for len(data) > 0 {
			number++
			var line []byte
			if i := bytes.IndexByte(data, '\n'); i >= 0 {
				line, data = data[:i], data[i+1:]
			} else {
				line, data = data, nil
			}
			line = bytes.TrimSuffix(line, []byte{'\r'})
			if !yield(number, string(line)) {
				return
			}
		}
	}
}
