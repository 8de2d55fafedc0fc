package snapshot

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

var base = time.Date(2024, 6, 25, 10, 0, 0, 0, time.UTC)

func snapshotAt(minute int) *models.AggregateSnapshot {
	return models.NewSnapshot(base.Add(time.Duration(minute)*time.Minute), fmt.Sprintf("cycle-%d", minute), nil, nil)
}

func TestGetBeforePublish(t *testing.T) {
	cache := NewCache(arbor.NewLogger())

	s, err := cache.Get()
	assert.Nil(t, s)
	assert.ErrorIs(t, err, interfaces.ErrUninitializedSnapshot)
	assert.False(t, cache.Status().Initialized)
}

func TestPublishIsMonotonic(t *testing.T) {
	cache := NewCache(arbor.NewLogger())

	assert.True(t, cache.Publish(snapshotAt(5)))
	assert.False(t, cache.Publish(snapshotAt(3)), "older snapshot must be dropped")
	assert.False(t, cache.Publish(snapshotAt(5)), "equal snapshot must be dropped")
	assert.False(t, cache.Publish(nil))

	s, err := cache.Get()
	require.NoError(t, err)
	assert.Equal(t, "cycle-5", s.CycleID)

	assert.True(t, cache.Publish(snapshotAt(7)))
	s, err = cache.Get()
	require.NoError(t, err)
	assert.Equal(t, "cycle-7", s.CycleID)

	status := cache.Status()
	assert.Equal(t, int64(2), status.Published)
	assert.Equal(t, int64(2), status.Dropped)
}

func TestClear(t *testing.T) {
	cache := NewCache(arbor.NewLogger())
	require.True(t, cache.Publish(snapshotAt(5)))

	cache.Clear()

	_, err := cache.Get()
	assert.ErrorIs(t, err, interfaces.ErrUninitializedSnapshot)

	// a refresh that started before the clear cannot resurrect old data
	assert.False(t, cache.Publish(snapshotAt(4)))
	assert.True(t, cache.Publish(snapshotAt(6)))

	_, err = cache.Get()
	assert.NoError(t, err)
}

func TestBuildTracking(t *testing.T) {
	cache := NewCache(arbor.NewLogger())

	first := cache.BeginBuild(base.Add(2 * time.Minute))
	second := cache.BeginBuild(base.Add(time.Minute))

	status := cache.Status()
	assert.True(t, status.Building)
	assert.Equal(t, base.Add(time.Minute), status.BuildStartedAt)

	cache.EndBuild(second)
	assert.Equal(t, base.Add(2*time.Minute), cache.Status().BuildStartedAt)

	cache.EndBuild(first)
	status = cache.Status()
	assert.False(t, status.Building)
	assert.True(t, status.BuildStartedAt.IsZero())
}

func TestConcurrentPublishKeepsNewest(t *testing.T) {
	cache := NewCache(arbor.NewLogger())

	var wg sync.WaitGroup
	for minute := 1; minute <= 50; minute++ {
		wg.Add(1)
		go func(minute int) {
			defer wg.Done()
			cache.Publish(snapshotAt(minute))
		}(minute)
	}

	// readers run alongside and only ever see complete snapshots
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for j := 0; j < 100; j++ {
				if s, err := cache.Get(); err == nil {
					assert.NotEmpty(t, s.CycleID)
				}
			}
		}()
	}

	wg.Wait()
	readers.Wait()

	s, err := cache.Get()
	require.NoError(t, err)
	assert.Equal(t, "cycle-50", s.CycleID)

	status := cache.Status()
	assert.Equal(t, int64(50), status.Published+status.Dropped)
}
