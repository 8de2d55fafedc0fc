// Package snapshot holds the single published status snapshot that all
// queries read from.
package snapshot

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

// Status describes the cache for health and status endpoints
type Status struct {
	Initialized    bool      `json:"initialized"`
	GeneratedAt    time.Time `json:"generated_at,omitempty"`
	CycleID        string    `json:"cycle_id,omitempty"`
	Building       bool      `json:"building"`
	BuildStartedAt time.Time `json:"build_started_at,omitempty"`
	Published      int64     `json:"published"`
	Dropped        int64     `json:"dropped"`
}

// Cache stores the latest published snapshot. Reads are lock free; a
// reader sees either the previous or the new snapshot, never a mix.
//
// Publishing is monotonic in GeneratedAt: a snapshot generated before the
// newest one ever published is dropped, even after Clear, so a slow refresh
// can never overwrite the result of a later one.
type Cache struct {
	current atomic.Pointer[models.AggregateSnapshot]

	mu        sync.Mutex
	highWater time.Time
	builds    map[uint64]time.Time
	nextBuild uint64
	published int64
	dropped   int64

	logger arbor.ILogger
}

// NewCache creates an empty cache
func NewCache(logger arbor.ILogger) *Cache {
	return &Cache{
		builds: make(map[uint64]time.Time),
		logger: logger,
	}
}

// Get returns the published snapshot or ErrUninitializedSnapshot
func (c *Cache) Get() (*models.AggregateSnapshot, error) {
	s := c.current.Load()
	if s == nil {
		return nil, interfaces.ErrUninitializedSnapshot
	}
	return s, nil
}

// Publish replaces the current snapshot. It returns false when s is older
// than (or as old as) a snapshot already published, in which case nothing
// changes.
func (c *Cache) Publish(s *models.AggregateSnapshot) bool {
	if s == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.highWater.IsZero() && !s.GeneratedAt.After(c.highWater) {
		c.dropped++
		c.logger.Debug().
			Str("cycle_id", s.CycleID).
			Str("generated_at", s.GeneratedAt.Format(time.RFC3339Nano)).
			Str("high_water", c.highWater.Format(time.RFC3339Nano)).
			Msg("Dropping out of date snapshot")
		return false
	}

	c.highWater = s.GeneratedAt
	c.current.Store(s)
	c.published++
	return true
}

// Clear discards the published snapshot. Queries fail with
// ErrUninitializedSnapshot until the next Publish.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Store(nil)
}

// BeginBuild records a refresh in progress started at the given time and
// returns a token for EndBuild.
func (c *Cache) BeginBuild(startedAt time.Time) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextBuild++
	c.builds[c.nextBuild] = startedAt
	return c.nextBuild
}

// EndBuild marks the refresh identified by token as finished
func (c *Cache) EndBuild(token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.builds, token)
}

// Status returns a point in time view of the cache
func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		Building:  len(c.builds) > 0,
		Published: c.published,
		Dropped:   c.dropped,
	}
	for _, startedAt := range c.builds {
		if status.BuildStartedAt.IsZero() || startedAt.Before(status.BuildStartedAt) {
			status.BuildStartedAt = startedAt
		}
	}
	if s := c.current.Load(); s != nil {
		status.Initialized = true
		status.GeneratedAt = s.GeneratedAt
		status.CycleID = s.CycleID
	}
	return status
}
