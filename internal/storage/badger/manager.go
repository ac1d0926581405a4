package badger

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/storage/authfile"
)

// Manager implements the StorageManager interface. The KV/secret store is
// Badger-backed; stored auth records live as one JSON file per vendor so
// they survive database resets and can be inspected by hand.
type Manager struct {
	db     *BadgerDB
	auth   interfaces.AuthStore
	kv     interfaces.KeyValueStorage
	runs   interfaces.RunHistory
	logger arbor.ILogger
}

// NewManager creates a new storage manager
func NewManager(logger arbor.ILogger, config *common.StorageConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, &config.Badger)
	if err != nil {
		return nil, err
	}

	auth, err := authfile.NewStore(config.AuthDir, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	manager := &Manager{
		db:     db,
		auth:   auth,
		kv:     NewKVStorage(db, logger),
		runs:   NewRunHistoryStore(db, config.RunRetention, logger),
		logger: logger,
	}

	logger.Info().Msg("Storage manager initialized")

	return manager, nil
}

// AuthStore returns the stored-auth store
func (m *Manager) AuthStore() interfaces.AuthStore {
	return m.auth
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// RunHistory returns the download run history store
func (m *Manager) RunHistory() interfaces.RunHistory {
	return m.runs
}

// Close closes the storage backends
func (m *Manager) Close() error {
	return m.db.Close()
}

// KeyFile represents one secret entry in a TOML key file.
// Format:
//
//	[key_name]
//	value = "some-value"
//	description = "optional description"
type KeyFile struct {
	Value       string `toml:"value"`
	Description string `toml:"description"`
}

// LoadKeysFromFiles loads secret key/value pairs from every .toml file in
// dir into the KV store. Missing directory is not an error; individual file
// failures are logged and skipped.
func (m *Manager) LoadKeysFromFiles(ctx context.Context, dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		m.logger.Debug().Str("dir", dir).Msg("Keys directory not found, skipping")
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			m.logger.Warn().Err(err).Str("file", path).Msg("Failed to read key file")
			continue
		}

		var keys map[string]KeyFile
		if err := toml.Unmarshal(content, &keys); err != nil {
			m.logger.Warn().Err(err).Str("file", path).Msg("Failed to parse key file")
			continue
		}

		for key, entry := range keys {
			if entry.Value == "" {
				m.logger.Warn().Str("file", path).Str("key", key).Msg("Skipping key with empty value")
				continue
			}
			if err := m.kv.Set(ctx, key, entry.Value, entry.Description); err != nil {
				m.logger.Warn().Err(err).Str("key", key).Msg("Failed to store key")
				continue
			}
			loaded++
		}
	}

	m.logger.Debug().Int("loaded", loaded).Str("dir", dir).Msg("Finished loading keys from files")
	return nil
}
