// Package classifier folds a sequence of log records into the current
// lifecycle state of an agent or one of its log fields.
//
// Classification is a pure fold over the records and is rerun from scratch
// on every refresh. The most recent record by timestamp decides the state;
// records with equal timestamps resolve to the one that arrived last.
package classifier

import (
	"iter"
	"strings"
	"time"

	"github.com/ternarybob/agentstatus/internal/models"
)

// Options controls a classification run
type Options struct {
	// Now is the reference time for the freshness window
	Now time.Time

	// FreshnessWindow is how long the latest record stays trustworthy.
	// Zero disables staleness.
	FreshnessWindow time.Duration

	// Ignored message substrings do not count toward the worst level
	Ignored []string
}

// Result is the outcome of classifying one record sequence
type Result struct {
	State       models.State
	LastSeen    time.Time
	LastError   string
	LastSuccess time.Time
	Worst       models.Level
	Latest      *models.LogRecord
	Total       int
	Malformed   int

	// fold state kept so results can be merged
	lastFailure  *models.LogRecord
	lastUnknown  *models.LogRecord
	lastTerminal *models.LogRecord
}

// Classify folds records into a Result
func Classify(records iter.Seq[models.LogRecord], opts Options) Result {
	var f fold
	for record := range records {
		f.add(record, opts)
	}
	return f.result(opts)
}

// Merge combines field results into the result for the whole agent by
// applying the same most-recent-wins precedence across fields. Fields are
// considered to arrive in the given order.
func Merge(opts Options, results ...Result) Result {
	var f fold
	for _, r := range results {
		f.total += r.Total
		f.malformed += r.Malformed
		if r.Worst.Severity() > f.worst.Severity() {
			f.worst = r.Worst
		}
		if r.LastSuccess.After(f.lastSuccess) {
			f.lastSuccess = r.LastSuccess
		}
		f.latest = pick(f.latest, r.Latest)
		f.lastFailure = pick(f.lastFailure, r.lastFailure)
		f.lastTerminal = pick(f.lastTerminal, r.lastTerminal)
		f.lastUnknown = pick(f.lastUnknown, r.lastUnknown)
	}
	return f.result(opts)
}

type fold struct {
	latest       *models.LogRecord
	lastFailure  *models.LogRecord
	lastTerminal *models.LogRecord
	lastUnknown  *models.LogRecord
	lastSuccess  time.Time
	worst        models.Level
	total        int
	malformed    int
}

func (f *fold) add(record models.LogRecord, opts Options) {
	f.total++
	if record.Malformed {
		f.malformed++
	}

	r := record
	f.latest = pick(f.latest, &r)

	switch {
	case record.Level.IsFailure():
		f.lastFailure = pick(f.lastFailure, &r)
		f.lastTerminal = pick(f.lastTerminal, &r)
	case record.Level.IsSuccess():
		f.lastTerminal = pick(f.lastTerminal, &r)
		if record.Timestamp.After(f.lastSuccess) {
			f.lastSuccess = record.Timestamp
		}
	case record.Level == models.LevelUnknown:
		f.lastUnknown = pick(f.lastUnknown, &r)
	}

	if counts(record, opts) && record.Level.Severity() > f.worst.Severity() {
		f.worst = record.Level
	}
}

// pick returns the more recent of two records. The candidate arrived later,
// so it also wins ties and beats an untimed current record.
func pick(current, candidate *models.LogRecord) *models.LogRecord {
	if candidate == nil {
		return current
	}
	if current == nil {
		return candidate
	}
	if current.NewerThan(*candidate) {
		return current
	}
	if !candidate.HasTimestamp() && current.HasTimestamp() {
		return current
	}
	return candidate
}

// counts reports whether a record counts toward the worst level: it must be
// inside the freshness window (when timestamped) and not ignored.
func counts(record models.LogRecord, opts Options) bool {
	for _, ignored := range opts.Ignored {
		if ignored != "" && strings.Contains(record.Message, ignored) {
			return false
		}
	}
	if opts.FreshnessWindow > 0 && record.HasTimestamp() && !opts.Now.IsZero() {
		return record.Timestamp.After(opts.Now.Add(-opts.FreshnessWindow))
	}
	return true
}

func (f *fold) result(opts Options) Result {
	res := Result{
		LastSuccess:  f.lastSuccess,
		Worst:        f.worst,
		Latest:       f.latest,
		Total:        f.total,
		Malformed:    f.malformed,
		lastFailure:  f.lastFailure,
		lastUnknown:  f.lastUnknown,
		lastTerminal: f.lastTerminal,
	}

	switch {
	case f.lastFailure != nil:
		res.LastError = f.lastFailure.Message
	case f.lastTerminal == nil && f.lastUnknown != nil:
		res.LastError = f.lastUnknown.Message
	}

	if f.latest == nil || !f.latest.HasTimestamp() {
		res.State = models.StateUnknown
		return res
	}

	res.LastSeen = f.latest.Timestamp
	res.State = stateOf(f.latest.Level)

	if opts.FreshnessWindow > 0 && !opts.Now.IsZero() && res.LastSeen.Before(opts.Now.Add(-opts.FreshnessWindow)) {
		res.State = models.StateStale
	}

	return res
}

func stateOf(level models.Level) models.State {
	switch {
	case level.IsFailure():
		return models.StateFailed
	case level.IsSuccess():
		return models.StateSucceeded
	default:
		return models.StateRunning
	}
}
