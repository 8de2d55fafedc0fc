package parser

import (
	"fmt"
	"regexp"
	"time"

	"github.com/ternarybob/agentstatus/internal/interfaces"
)

var (
	// datePrefix is required on every accepted timestamp
	datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

	// bareDate is a date token whose time follows after a space
	bareDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

	// fractionOnly matches a bare sub-second token such as "123456",
	// ".123456" or ",123" which must not pass for a complete datetime
	fractionOnly = regexp.MustCompile(`^[.,]?\d{1,9}$`)

	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05,000",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
)

// ParseTimestamp parses a log timestamp token. Tokens without a timezone
// are interpreted in loc. A token must carry at least a full date; bare
// numeric or sub-second fragments are rejected.
func ParseTimestamp(token string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	if fractionOnly.MatchString(token) {
		return time.Time{}, fmt.Errorf("%w: %q is a sub-second fragment, not a timestamp", interfaces.ErrMalformedRecord, token)
	}
	if !datePrefix.MatchString(token) {
		return time.Time{}, fmt.Errorf("%w: %q has no date", interfaces.ErrMalformedRecord, token)
	}

	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, token, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", interfaces.ErrMalformedRecord, token)
}

// epochTimestamp converts a Python logging "created" value (seconds since
// the epoch, with fraction). Values below one second are fractions only.
func epochTimestamp(created float64) (time.Time, error) {
	if created < 1 {
		return time.Time{}, fmt.Errorf("%w: created %v is a sub-second fragment, not a timestamp", interfaces.ErrMalformedRecord, created)
	}

	sec := int64(created)
	usec := int64((created-float64(sec))*1e6 + 0.5)
	return time.Unix(sec, usec*int64(time.Microsecond)), nil
}
