package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/agentstatus/internal/common"
)

func TestNewBuildInfoStorageDisabled(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Storage.Badger.Enabled = false

	store, err := NewBuildInfoStorage(arbor.NewLogger(), config)
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestNewBuildInfoStorageEnabled(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Storage.Badger.Path = filepath.Join(t.TempDir(), "badger")

	store, err := NewBuildInfoStorage(arbor.NewLogger(), config)
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.NoError(t, store.Close())
}
