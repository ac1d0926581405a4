package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()

	cfg := &common.StorageConfig{
		Badger:       common.BadgerConfig{Path: t.TempDir() + "/db"},
		AuthDir:      t.TempDir(),
		RunRetention: time.Hour,
	}

	m, err := NewManager(arbor.NewLogger(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestKVStorageRoundTrip(t *testing.T) {
	m := newTestManager(t)
	kv := m.KeyValueStorage()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "Vendor_Freee", `{"username":"a"}`, "freee creds"))

	// Keys are case-insensitive.
	value, err := kv.Get(ctx, "vendor_freee")
	require.NoError(t, err)
	assert.Equal(t, `{"username":"a"}`, value)

	count, err := kv.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, kv.Delete(ctx, "VENDOR_FREEE"))
	_, err = kv.Get(ctx, "vendor_freee")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
}

func TestRunHistoryNewestFirst(t *testing.T) {
	m := newTestManager(t)
	history := m.RunHistory()
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i := 0; i < 3; i++ {
		require.NoError(t, history.Record(ctx, &models.RunRecord{
			ID:        fmt.Sprintf("run-%d", i),
			VendorKey: "freee",
			Success:   i%2 == 0,
			StartedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	runs, err := history.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "run-1", runs[1].ID)

	all, err := history.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
