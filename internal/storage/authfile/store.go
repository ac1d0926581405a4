// Stored-auth persistence: one JSON file per vendor under the auth
// directory, shape {cookies:[...], localStorage:{...}}. A legacy bare
// cookie-array shape is accepted on read.

package authfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
)

var vendorKeyPattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Store persists StoredAuthRecords as files.
type Store struct {
	dir    string
	logger arbor.ILogger
}

// NewStore creates the auth directory if needed and returns a Store.
func NewStore(dir string, logger arbor.ILogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create auth directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) path(vendorKey string) (string, error) {
	if !vendorKeyPattern.MatchString(vendorKey) {
		return "", fmt.Errorf("invalid vendor key: %q", vendorKey)
	}
	return filepath.Join(s.dir, vendorKey+".json"), nil
}

// Save writes the record, fully overwriting any prior record for the vendor.
func (s *Store) Save(ctx context.Context, record *models.StoredAuthRecord) error {
	path, err := s.path(record.VendorKey)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal auth record: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write auth record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to persist auth record: %w", err)
	}

	s.logger.Info().
		Str("vendor", record.VendorKey).
		Int("cookies", len(record.Cookies)).
		Int("local_storage_keys", len(record.LocalStorage)).
		Msg("Stored auth record saved")

	return nil
}

// Load reads the record for a vendor. Returns interfaces.ErrAuthNotFound
// when no record exists.
func (s *Store) Load(ctx context.Context, vendorKey string) (*models.StoredAuthRecord, error) {
	path, err := s.path(vendorKey)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, interfaces.ErrAuthNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read auth record: %w", err)
	}

	var record models.StoredAuthRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse auth record for %s: %w", vendorKey, err)
	}
	record.VendorKey = vendorKey

	return &record, nil
}

// Delete removes the record for a vendor. Deleting a missing record is not
// an error.
func (s *Store) Delete(ctx context.Context, vendorKey string) error {
	path, err := s.path(vendorKey)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete auth record: %w", err)
	}
	return nil
}

// List returns the vendor keys that have a stored record.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	return keys, nil
}
