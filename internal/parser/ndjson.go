package parser

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

// NDJSONParser reads newline delimited JSON logging objects as written by
// the agent's HTTP log handler (Python logging record attributes).
type NDJSONParser struct{}

// NewNDJSONParser creates a parser for ndjson agent logs
func NewNDJSONParser() *NDJSONParser { return &NDJSONParser{} }

func (p *NDJSONParser) Format() string { return FormatNDJSON }

func (p *NDJSONParser) Columns() []string {
	return []string{"date", "level", "filename", "line", "module", "function", "message", "traceback"}
}

// Python logging record attributes read from each object
var ndjsonKeys = []string{"created", "levelname", "levelno", "pathname", "lineno", "module", "funcName", "message", "exc_text"}

func (p *NDJSONParser) ParseLine(line string, src models.Source) (models.LogRecord, error) {
	if !gjson.Valid(line) {
		return models.LogRecord{}, fmt.Errorf("%w: invalid JSON", interfaces.ErrMalformedRecord)
	}
	if !gjson.Parse(line).IsObject() {
		return models.LogRecord{}, fmt.Errorf("%w: not a JSON object", interfaces.ErrMalformedRecord)
	}

	values := make(map[string]gjson.Result, len(ndjsonKeys))
	for i, value := range gjson.GetMany(line, ndjsonKeys...) {
		values[ndjsonKeys[i]] = value
	}
	get := func(key string) gjson.Result { return values[key] }

	record := models.LogRecord{
		Source:   src,
		Message:  get("message").String(),
		Filename: get("pathname").String(),
		LineNo:   int(get("lineno").Int()),
		Module:   get("module").String(),
		Function: get("funcName").String(),
	}

	if created := get("created"); created.Exists() && created.Type != gjson.Null {
		if created.Type != gjson.Number {
			return models.LogRecord{}, fmt.Errorf("%w: created is not numeric", interfaces.ErrMalformedRecord)
		}
		ts, err := epochTimestamp(created.Float())
		if err != nil {
			return models.LogRecord{}, err
		}
		record.Timestamp = ts
	}

	// levelno decides when levelname is absent or a custom name
	if name := get("levelname"); name.Exists() {
		record.LevelName = name.String()
		record.Level = models.ParseLevel(record.LevelName)
	}
	if levelno := get("levelno"); record.Level == models.LevelUnknown && levelno.Exists() {
		record.Level = models.LevelFromNumber(int(levelno.Int()))
		if record.LevelName == "" {
			record.LevelName = record.Level.String()
		}
	}

	if traceback := get("exc_text").String(); traceback != "None" {
		record.Traceback = traceback
	}

	return record, nil
}
