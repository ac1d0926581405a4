package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
)

const runKeyPrefix = "runhist:"

// RunHistoryStore persists download run summaries directly in Badger. Raw
// entries are used instead of badgerhold so each record carries a TTL and
// expired runs disappear without a cleanup job.
type RunHistoryStore struct {
	db        *badgerdb.DB
	retention time.Duration
	logger    arbor.ILogger
}

// NewRunHistoryStore creates a run history store on the shared database.
func NewRunHistoryStore(db *BadgerDB, retention time.Duration, logger arbor.ILogger) interfaces.RunHistory {
	return &RunHistoryStore{
		db:        db.Store().Badger(),
		retention: retention,
		logger:    logger,
	}
}

// runKey is zero-padded on the timestamp so lexical order matches
// chronological order.
func runKey(record *models.RunRecord) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", runKeyPrefix, record.StartedAt.UnixNano(), record.ID))
}

// Record stores one run summary, subject to the configured retention.
func (s *RunHistoryStore) Record(ctx context.Context, record *models.RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	return s.db.Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry(runKey(record), data)
		if s.retention > 0 {
			entry = entry.WithTTL(s.retention)
		}
		return txn.SetEntry(entry)
	})
}

// Recent returns up to limit run summaries, newest first.
func (s *RunHistoryStore) Recent(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	prefix := []byte(runKeyPrefix)

	var records []models.RunRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration seeks past the last possible key for the prefix.
		seek := append(append([]byte(nil), prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(records) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var record models.RunRecord
				if err := json.Unmarshal(val, &record); err != nil {
					s.logger.Warn().Err(err).Msg("Skipping unreadable run record")
					return nil
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read run history: %w", err)
	}
	return records, nil
}
