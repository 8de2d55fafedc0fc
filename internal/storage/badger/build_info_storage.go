package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/models"
)

// BuildInfoStorage implements interfaces.BuildInfoStorage for Badger
type BuildInfoStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewBuildInfoStorage creates a new BuildInfoStorage instance
func NewBuildInfoStorage(db *BadgerDB, logger arbor.ILogger) *BuildInfoStorage {
	return &BuildInfoStorage{
		db:     db,
		logger: logger,
	}
}

// Save stores the build info of a job, replacing any previous value.
// Stale values are not stored: the store only remembers what a provider
// actually answered.
func (s *BuildInfoStorage) Save(ctx context.Context, info models.JobBuildInfo) error {
	if info.JobName == "" {
		return fmt.Errorf("job name is required")
	}
	if info.Stale {
		return nil
	}

	if err := s.db.Store().Upsert(info.JobName, &info); err != nil {
		return fmt.Errorf("failed to save build info for %s: %w", info.JobName, err)
	}

	s.logger.Trace().
		Str("job", info.JobName).
		Int("build", info.LastBuildNumber).
		Msg("Build info saved")

	return nil
}

// Get returns the stored build info of a job
func (s *BuildInfoStorage) Get(ctx context.Context, jobName string) (models.JobBuildInfo, error) {
	var info models.JobBuildInfo
	err := s.db.Store().Get(jobName, &info)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return models.JobBuildInfo{}, fmt.Errorf("build info for %s: %w", jobName, interfaces.ErrNotFound)
	}
	if err != nil {
		return models.JobBuildInfo{}, fmt.Errorf("failed to get build info for %s: %w", jobName, err)
	}
	return info, nil
}

// List returns all stored build info sorted by job name
func (s *BuildInfoStorage) List(ctx context.Context) ([]models.JobBuildInfo, error) {
	var infos []models.JobBuildInfo
	if err := s.db.Store().Find(&infos, nil); err != nil {
		return nil, fmt.Errorf("failed to list build info: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].JobName < infos[j].JobName
	})
	return infos, nil
}

// Close closes the underlying database
func (s *BuildInfoStorage) Close() error {
	return s.db.Close()
}

// Ensure interface compliance
var _ interfaces.BuildInfoStorage = (*BuildInfoStorage)(nil)
