package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/billfetch/internal/models"
)

// ErrAuthNotFound is returned when no stored auth record exists for a vendor.
var ErrAuthNotFound = errors.New("stored auth record not found")

// ErrKeyNotFound is returned when a key does not exist in the KV store.
var ErrKeyNotFound = errors.New("key not found")

// AuthStore persists per-vendor cookie+localStorage bundles. Save fully
// overwrites any prior record for the vendor.
type AuthStore interface {
	Save(ctx context.Context, record *models.StoredAuthRecord) error
	Load(ctx context.Context, vendorKey string) (*models.StoredAuthRecord, error)
	Delete(ctx context.Context, vendorKey string) error
	List(ctx context.Context) ([]string, error)
}

// KeyValuePair represents a stored key/value entry with metadata.
type KeyValuePair struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// KeyValueStorage provides key/value persistence. The secret store is built
// on top of it: secret values are JSON credential blobs keyed by name.
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, description string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
	Count(ctx context.Context) (int, error)
}

// RunHistory persists download run summaries with bounded retention.
type RunHistory interface {
	Record(ctx context.Context, record *models.RunRecord) error
	Recent(ctx context.Context, limit int) ([]models.RunRecord, error)
}

// StorageManager owns the storage backends and their lifecycle.
type StorageManager interface {
	AuthStore() AuthStore
	KeyValueStorage() KeyValueStorage
	RunHistory() RunHistory
	LoadKeysFromFiles(ctx context.Context, dir string) error
	Close() error
}
