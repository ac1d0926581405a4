package authfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)
	return store
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := &models.StoredAuthRecord{
		VendorKey: "freee",
		Cookies: []models.CookieRecord{
			{Name: "session_id", Value: "abc123", Domain: ".freee.co.jp", Path: "/", HTTPOnly: true, Secure: true},
			{Name: "pref", Value: "ja", Domain: "secure.freee.co.jp", Path: "/"},
		},
		LocalStorage: map[string]string{
			"oauth_token": "tok-xyz",
			"user_id":     "42",
		},
	}

	require.NoError(t, store.Save(ctx, record))

	loaded, err := store.Load(ctx, "freee")
	require.NoError(t, err)
	assert.Equal(t, "freee", loaded.VendorKey)
	assert.Equal(t, record.Cookies, loaded.Cookies)
	assert.Equal(t, record.LocalStorage, loaded.LocalStorage)
}

func TestSave_OverwritesPriorRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &models.StoredAuthRecord{
		VendorKey:    "freee",
		Cookies:      []models.CookieRecord{{Name: "old", Value: "1"}},
		LocalStorage: map[string]string{"old_key": "old_value"},
	}
	require.NoError(t, store.Save(ctx, first))

	second := &models.StoredAuthRecord{
		VendorKey:    "freee",
		Cookies:      []models.CookieRecord{{Name: "new", Value: "2"}},
		LocalStorage: map[string]string{},
	}
	require.NoError(t, store.Save(ctx, second))

	loaded, err := store.Load(ctx, "freee")
	require.NoError(t, err)
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "new", loaded.Cookies[0].Name)
	// No merge: the old localStorage entry must be gone
	assert.Empty(t, loaded.LocalStorage)
}

func TestLoad_Missing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background(), "rakuten")
	assert.ErrorIs(t, err, interfaces.ErrAuthNotFound)
}

func TestLoad_LegacyBareCookieArray(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, arbor.NewLogger())
	require.NoError(t, err)

	legacy := `[{"name":"sid","value":"v1","domain":".example.com","path":"/","httpOnly":true,"secure":false}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chatwork.json"), []byte(legacy), 0600))

	loaded, err := store.Load(context.Background(), "chatwork")
	require.NoError(t, err)
	require.Len(t, loaded.Cookies, 1)
	assert.Equal(t, "sid", loaded.Cookies[0].Name)
	assert.NotNil(t, loaded.LocalStorage)
	assert.Empty(t, loaded.LocalStorage)
}

func TestDelete_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, "freee"))

	record := &models.StoredAuthRecord{VendorKey: "freee", Cookies: []models.CookieRecord{{Name: "a", Value: "b"}}}
	require.NoError(t, store.Save(ctx, record))
	require.NoError(t, store.Delete(ctx, "freee"))
	require.NoError(t, store.Delete(ctx, "freee"))

	_, err := store.Load(ctx, "freee")
	assert.ErrorIs(t, err, interfaces.ErrAuthNotFound)
}

func TestList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &models.StoredAuthRecord{VendorKey: "freee"}))
	require.NoError(t, store.Save(ctx, &models.StoredAuthRecord{VendorKey: "rakuten"}))

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"freee", "rakuten"}, keys)
}

func TestPath_RejectsTraversal(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(context.Background(), "../etc/passwd")
	assert.Error(t, err)
}
