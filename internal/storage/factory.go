package storage

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/common"
	"github.com/ternarybob/agentstatus/internal/interfaces"
	"github.com/ternarybob/agentstatus/internal/storage/badger"
)

// NewBuildInfoStorage opens the build info store from config. It returns
// nil when storage is disabled; build info then only lives in the
// published snapshot.
func NewBuildInfoStorage(logger arbor.ILogger, config *common.Config) (interfaces.BuildInfoStorage, error) {
	if !config.Storage.Badger.Enabled {
		return nil, nil
	}

	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}
	return badger.NewBuildInfoStorage(db, logger), nil
}
