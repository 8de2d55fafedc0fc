package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/agentstatus/internal/models"
)

var testSource = models.Source{Agent: "TEST", Field: "agent-log"}

func TestParseYieldsOneRecordPerLine(t *testing.T) {
	tests := []struct {
		name   string
		format string
		data   string
		lines  int
	}{
		{"empty", FormatText, "", 0},
		{"trailing newline", FormatText, "2024-06-25T12:00:00Z INFO a\n", 1},
		{"no trailing newline", FormatText, "2024-06-25T12:00:00Z INFO a\n2024-06-25T12:00:01Z INFO b", 2},
		{"garbage only", FormatText, "x\ny\n\nz\n", 4},
		{"crlf", FormatExport, "2024-06-25 12:00:00:INFO:a\r\nbroken\r\n", 2},
		{"ndjson mixed", FormatNDJSON, "{\"message\":\"ok\"}\nnot json\n[1,2]\n", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ForFormat(tt.format, time.UTC)
			require.NoError(t, err)

			records := Collect(p, []byte(tt.data), testSource)
			assert.Len(t, records, tt.lines)
			for i, record := range records {
				assert.Equal(t, i+1, record.Line)
				assert.Equal(t, testSource, record.Source)
			}
		})
	}
}

func TestParseIsRestartable(t *testing.T) {
	data := []byte("2024-06-25T12:00:00Z INFO first\nbroken\n2024-06-25T12:00:02Z ERROR third\n")
	seq := Parse(NewTextParser(time.UTC), data, testSource)

	var first, second []models.LogRecord
	for record := range seq {
		first = append(first, record)
	}
	for record := range seq {
		second = append(second, record)
	}

	require.Len(t, first, 3)
	assert.Equal(t, first, second)
}

func TestParseStopsEarly(t *testing.T) {
	data := []byte("a\nb\nc\n")
	count := 0
	for range Parse(NewTextParser(time.UTC), data, testSource) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestTextParserMalformedTimestamp(t *testing.T) {
	records := Collect(NewTextParser(time.UTC), []byte("not-a-real-timestamp some message"), testSource)

	require.Len(t, records, 1)
	assert.Equal(t, models.LevelUnknown, records[0].Level)
	assert.Equal(t, "not-a-real-timestamp some message", records[0].Message)
	assert.True(t, records[0].Malformed)
	assert.False(t, records[0].HasTimestamp())
}

func TestTextParser(t *testing.T) {
	p := NewTextParser(time.UTC)

	record, err := p.ParseLine("2024-06-25T12:34:56Z SUCCESS import finished", testSource)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 25, 12, 34, 56, 0, time.UTC), record.Timestamp)
	assert.Equal(t, models.LevelSuccess, record.Level)
	assert.Equal(t, "import finished", record.Message)

	// Unknown level names degrade without making the line malformed
	record, err = p.ParseLine("2024-06-25T12:34:56Z BOGUS still parsed", testSource)
	require.NoError(t, err)
	assert.Equal(t, models.LevelUnknown, record.Level)
	assert.Equal(t, "BOGUS", record.LevelName)
	assert.False(t, record.Malformed)

	_, err = p.ParseLine("2024-06-25T12:34:56Z", testSource)
	assert.Error(t, err)

	_, err = p.ParseLine("2024-06-25 12:34:56", testSource)
	assert.Error(t, err)
}

func TestTextParserSpaceSeparatedDate(t *testing.T) {
	data := "2024-06-25 12:34:56 ERROR import failed\n" +
		"2024-06-25T12:34:56Z  INFO  two  spaces\n" +
		"2024-06-25 12:34:57.250\tWARNING tab delimited\n"

	records := Collect(NewTextParser(time.UTC), []byte(data), testSource)
	require.Len(t, records, 3)

	assert.False(t, records[0].Malformed)
	assert.Equal(t, models.LevelError, records[0].Level)
	assert.Equal(t, "import failed", records[0].Message)
	assert.Equal(t, time.Date(2024, 6, 25, 12, 34, 56, 0, time.UTC), records[0].Timestamp)

	assert.False(t, records[1].Malformed)
	assert.Equal(t, models.LevelInfo, records[1].Level)
	assert.Equal(t, "two  spaces", records[1].Message)

	assert.False(t, records[2].Malformed)
	assert.Equal(t, models.LevelWarning, records[2].Level)
	assert.Equal(t, time.Date(2024, 6, 25, 12, 34, 57, 250000000, time.UTC), records[2].Timestamp)
}

func TestParseTimestampRejectsFragments(t *testing.T) {
	for _, token := range []string{"123456", ".123456", ",123", "000001", "12:00:00", "20240625"} {
		t.Run(token, func(t *testing.T) {
			_, err := ParseTimestamp(token, time.UTC)
			assert.Error(t, err)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		token string
		want  time.Time
	}{
		{"2024-06-25T12:34:56Z", time.Date(2024, 6, 25, 12, 34, 56, 0, time.UTC)},
		{"2024-06-25T12:34:56.123456+02:00", time.Date(2024, 6, 25, 10, 34, 56, 123456000, time.UTC)},
		{"2024-06-25T12:34:56", time.Date(2024, 6, 25, 12, 34, 56, 0, time.UTC)},
		{"2024-06-25 12:34:56,789", time.Date(2024, 6, 25, 12, 34, 56, 789000000, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseTimestamp(tt.token, time.UTC)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestExportParser(t *testing.T) {
	data := "2018-01-24 01:00:29,123:WARNING:Could not load sprint data\n" +
		"2018-01-24 01:00:30:SEVERE:Export failed: connection reset\n" +
		"Invalid line\n" +
		"2018-01-24 01:00:31:CONFIG:Using settings: a=b:c\n"

	records := Collect(NewExportParser(time.UTC), []byte(data), testSource)
	require.Len(t, records, 4)

	assert.Equal(t, models.LevelWarning, records[0].Level)
	assert.Equal(t, "Could not load sprint data", records[0].Message)
	assert.Equal(t, time.Date(2018, 1, 24, 1, 0, 29, 123000000, time.UTC), records[0].Timestamp)

	assert.Equal(t, models.LevelCritical, records[1].Level)
	assert.Equal(t, "SEVERE", records[1].LevelName)

	assert.True(t, records[2].Malformed)
	assert.Equal(t, "Invalid line", records[2].Message)

	assert.Equal(t, models.LevelConfig, records[3].Level)
	assert.Equal(t, "Using settings: a=b:c", records[3].Message)
}

func TestNDJSONParser(t *testing.T) {
	data := `{"created": 1516755629.5, "levelname": "WARNING", "levelno": 30, "pathname": "gatherer/jira.py", "lineno": 12, "module": "jira", "funcName": "load", "message": "Could not load sprint data, no sprint matching possible.", "exc_text": "None"}
{"levelno": 40, "message": "no level name", "exc_text": "Traceback (most recent call last)"}
{"created": 0.123456, "levelname": "INFO", "message": "fragment"}
{"created": "yesterday", "levelname": "INFO", "message": "bad created"}
`
	records := Collect(NewNDJSONParser(), []byte(data), testSource)
	require.Len(t, records, 4)

	first := records[0]
	assert.Equal(t, models.LevelWarning, first.Level)
	assert.Equal(t, "gatherer/jira.py", first.Filename)
	assert.Equal(t, 12, first.LineNo)
	assert.Equal(t, "jira", first.Module)
	assert.Equal(t, "load", first.Function)
	assert.Empty(t, first.Traceback)
	assert.Equal(t, time.Unix(1516755629, 500000000).UTC(), first.Timestamp.UTC())

	assert.Equal(t, models.LevelError, records[1].Level)
	assert.False(t, records[1].HasTimestamp())
	assert.False(t, records[1].Malformed)
	assert.Equal(t, "Traceback (most recent call last)", records[1].Traceback)

	assert.True(t, records[2].Malformed)
	assert.True(t, records[3].Malformed)
	assert.Equal(t, models.LevelUnknown, records[3].Level)
}

func TestNDJSONParserCustomLevelName(t *testing.T) {
	data := `{"created": 1516755629, "levelname": "AUDIT", "levelno": 45, "message": "custom level"}
{"created": 1516755630, "levelname": "AUDIT", "message": "custom level without number"}
`
	records := Collect(NewNDJSONParser(), []byte(data), testSource)
	require.Len(t, records, 2)

	assert.Equal(t, models.LevelError, records[0].Level)
	assert.Equal(t, "AUDIT", records[0].LevelName)
	assert.False(t, records[0].Malformed)

	assert.Equal(t, models.LevelUnknown, records[1].Level)
	assert.Equal(t, "AUDIT", records[1].LevelName)
}

func TestForFormatUnknown(t *testing.T) {
	_, err := ForFormat("xml", nil)
	assert.Error(t, err)
}
