package classifier

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/agentstatus/internal/models"
)

var base = time.Date(2024, 6, 25, 10, 0, 0, 0, time.UTC)

func record(minute int, level models.Level, message string) models.LogRecord {
	return models.LogRecord{
		Timestamp: base.Add(time.Duration(minute) * time.Minute),
		Level:     level,
		Message:   message,
		Source:    models.Source{Agent: "agentX", Field: "import"},
	}
}

func opts() Options {
	return Options{Now: base.Add(10 * time.Minute), FreshnessWindow: time.Hour}
}

func TestClassifyNoRecords(t *testing.T) {
	res := Classify(slices.Values([]models.LogRecord{}), opts())
	assert.Equal(t, models.StateUnknown, res.State)
	assert.True(t, res.LastSeen.IsZero())
	assert.Nil(t, res.Latest)
}

func TestClassifyUsesTimestampNotArrival(t *testing.T) {
	// Delivered in reverse: the success at 10:05 arrives before the error at 10:00
	records := []models.LogRecord{
		record(5, models.LevelSuccess, "import done"),
		record(0, models.LevelError, "import failed"),
	}

	res := Classify(slices.Values(records), opts())
	assert.Equal(t, models.StateSucceeded, res.State)
	assert.Equal(t, base.Add(5*time.Minute), res.LastSeen)
	assert.Equal(t, "import failed", res.LastError)
	assert.Equal(t, base.Add(5*time.Minute), res.LastSuccess)
}

func TestClassifyEqualTimestampsLaterArrivalWins(t *testing.T) {
	records := []models.LogRecord{
		record(5, models.LevelSuccess, "done"),
		record(5, models.LevelError, "failed"),
	}
	assert.Equal(t, models.StateFailed, Classify(slices.Values(records), opts()).State)

	slices.Reverse(records)
	assert.Equal(t, models.StateSucceeded, Classify(slices.Values(records), opts()).State)
}

func TestClassifyStaleRegardlessOfTerminalState(t *testing.T) {
	for _, level := range []models.Level{models.LevelSuccess, models.LevelError, models.LevelInfo} {
		t.Run(level.String(), func(t *testing.T) {
			o := opts()
			o.Now = base.Add(3 * time.Hour)
			res := Classify(slices.Values([]models.LogRecord{record(0, level, "old")}), o)
			assert.Equal(t, models.StateStale, res.State)
			assert.Equal(t, base, res.LastSeen)
		})
	}
}

func TestClassifyStates(t *testing.T) {
	tests := []struct {
		name  string
		level models.Level
		want  models.State
	}{
		{"info is running", models.LevelInfo, models.StateRunning},
		{"warning is running", models.LevelWarning, models.StateRunning},
		{"unknown is running", models.LevelUnknown, models.StateRunning},
		{"error fails", models.LevelError, models.StateFailed},
		{"critical fails", models.LevelCritical, models.StateFailed},
		{"success succeeds", models.LevelSuccess, models.StateSucceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := []models.LogRecord{record(0, models.LevelInfo, "start"), record(1, tt.level, "last")}
			assert.Equal(t, tt.want, Classify(slices.Values(records), opts()).State)
		})
	}
}

func TestClassifyUnknownLevelDetail(t *testing.T) {
	unknown := record(3, models.LevelUnknown, "weird thing happened")

	// Without any terminal record the unknown message is kept as detail
	res := Classify(slices.Values([]models.LogRecord{record(0, models.LevelInfo, "start"), unknown}), opts())
	assert.Equal(t, models.StateRunning, res.State)
	assert.Equal(t, "weird thing happened", res.LastError)

	// A terminal record is better detail than an unknown one
	res = Classify(slices.Values([]models.LogRecord{record(0, models.LevelSuccess, "done"), unknown}), opts())
	assert.Empty(t, res.LastError)
	assert.Equal(t, models.StateRunning, res.State)
}

func TestClassifyMalformedOnly(t *testing.T) {
	records := []models.LogRecord{
		{Level: models.LevelUnknown, Message: "not-a-real-timestamp some message", Malformed: true},
	}

	res := Classify(slices.Values(records), opts())
	assert.Equal(t, models.StateUnknown, res.State)
	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, "not-a-real-timestamp some message", res.LastError)
}

func TestClassifyUntimedRecordNeverLatest(t *testing.T) {
	records := []models.LogRecord{
		record(1, models.LevelSuccess, "done"),
		{Level: models.LevelError, Message: "no date"},
	}

	res := Classify(slices.Values(records), opts())
	require.NotNil(t, res.Latest)
	assert.Equal(t, "done", res.Latest.Message)
	assert.Equal(t, models.StateSucceeded, res.State)
	assert.Equal(t, "no date", res.LastError)
}

func TestClassifyWorstLevel(t *testing.T) {
	o := opts()
	o.Now = base.Add(2 * time.Hour)
	o.Ignored = []string{"ignore me"}

	records := []models.LogRecord{
		record(0, models.LevelCritical, "outside window"),
		record(70, models.LevelError, "please ignore me"),
		record(80, models.LevelWarning, "counted"),
		record(90, models.LevelInfo, "latest"),
	}

	res := Classify(slices.Values(records), o)
	assert.Equal(t, models.LevelWarning, res.Worst)
	assert.Equal(t, models.StateRunning, res.State)
}

func TestMerge(t *testing.T) {
	o := opts()
	agentLog := Classify(slices.Values([]models.LogRecord{record(1, models.LevelError, "crash")}), o)
	exportLog := Classify(slices.Values([]models.LogRecord{record(4, models.LevelSuccess, "exported")}), o)

	merged := Merge(o, agentLog, exportLog)
	assert.Equal(t, models.StateSucceeded, merged.State)
	assert.Equal(t, "crash", merged.LastError)
	assert.Equal(t, base.Add(4*time.Minute), merged.LastSeen)
	assert.Equal(t, models.LevelError, merged.Worst)
	assert.Equal(t, 2, merged.Total)

	assert.Equal(t, models.StateUnknown, Merge(o).State)
}

func TestClassifyIsRerunnable(t *testing.T) {
	seq := slices.Values([]models.LogRecord{record(0, models.LevelInfo, "a"), record(2, models.LevelError, "b")})
	assert.Equal(t, Classify(seq, opts()), Classify(seq, opts()))
}
