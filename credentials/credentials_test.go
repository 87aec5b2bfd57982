package credentials_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-lichess-client/credentials"
	"github.com/jrsteele09/go-lichess-client/internal/errors"
	"github.com/stretchr/testify/require"
	"github.com/timshannon/badgerhold/v4"
)

func testCredentials() *credentials.Credentials {
	return &credentials.Credentials{
		ID:           "thibault",
		Username:     "Thibault",
		AccessToken:  "lio_access",
		RefreshToken: "lio_refresh",
		ExpiresAt:    time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC),
		Scopes:       []string{"board:play"},
	}
}

func TestCredentials(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("validate", func(t *testing.T) {
		var missing *credentials.Credentials
		require.ErrorIs(t, missing.Validate(), errors.ErrNotAuthenticated)
		require.ErrorIs(t, (&credentials.Credentials{ExpiresAt: now}).Validate(), errors.ErrInvalidCredentials)
		require.ErrorIs(t, (&credentials.Credentials{AccessToken: "x"}).Validate(), errors.ErrInvalidCredentials)
		require.NoError(t, testCredentials().Validate())
	})

	t.Run("expired with skew", func(t *testing.T) {
		c := &credentials.Credentials{AccessToken: "x", ExpiresAt: now.Add(time.Minute)}
		require.False(t, c.Expired(now, 0))
		require.False(t, c.Expired(now, 30*time.Second))
		require.True(t, c.Expired(now, time.Minute))
		require.True(t, c.Expired(now.Add(2*time.Minute), 0))
	})

	t.Run("clone is deep", func(t *testing.T) {
		c := testCredentials()
		cp := c.Clone()
		cp.Scopes[0] = "changed"
		require.Equal(t, "board:play", c.Scopes[0])
		require.True(t, c.HasScope("board:play"))
		require.True(t, c.HasRefreshToken())
	})
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip and clear", func(t *testing.T) {
		store := credentials.NewFileStore(filepath.Join(t.TempDir(), "nested"))

		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		require.Nil(t, loaded)

		require.NoError(t, store.Save(ctx, testCredentials()))
		info, err := os.Stat(store.Path())
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		raw, err := os.ReadFile(store.Path())
		require.NoError(t, err)
		require.Contains(t, string(raw), `"accessToken": "lio_access"`)

		loaded, err = store.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, testCredentials(), loaded)

		require.NoError(t, store.Clear(ctx))
		require.NoError(t, store.Clear(ctx))
		loaded, err = store.Load(ctx)
		require.NoError(t, err)
		require.Nil(t, loaded)
	})

	t.Run("rejects invalid record", func(t *testing.T) {
		store := credentials.NewFileStore(t.TempDir())
		require.ErrorIs(t, store.Save(ctx, &credentials.Credentials{}), errors.ErrInvalidCredentials)
		_, err := os.Stat(store.Path())
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("encrypted at rest", func(t *testing.T) {
		dir := t.TempDir()
		store := credentials.NewFileStore(dir, credentials.WithPassphrase("correct horse"))
		require.NoError(t, store.Save(ctx, testCredentials()))

		raw, err := os.ReadFile(store.Path())
		require.NoError(t, err)
		require.NotContains(t, string(raw), "lio_access")

		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, "lio_access", loaded.AccessToken)

		wrong := credentials.NewFileStore(dir, credentials.WithPassphrase("battery staple"))
		_, err = wrong.Load(ctx)
		require.ErrorIs(t, err, errors.ErrWrongPassphrase)
		require.NotErrorIs(t, err, errors.ErrInvalidCredentials)

		plain := credentials.NewFileStore(dir)
		_, err = plain.Load(ctx)
		require.ErrorIs(t, err, errors.ErrWrongPassphrase)

		// Failed reads leave the record intact.
		loaded, err = store.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, "lio_access", loaded.AccessToken)
	})

	t.Run("plain record with passphrase set", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, credentials.NewFileStore(dir).Save(ctx, testCredentials()))

		_, err := credentials.NewFileStore(dir, credentials.WithPassphrase("correct horse")).Load(ctx)
		require.ErrorIs(t, err, errors.ErrWrongPassphrase)
	})

	t.Run("corrupt record is invalid", func(t *testing.T) {
		store := credentials.NewFileStore(t.TempDir())
		require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o600))
		_, err := store.Load(ctx)
		require.ErrorIs(t, err, errors.ErrInvalidCredentials)

		sealed := credentials.NewFileStore(filepath.Dir(store.Path()), credentials.WithPassphrase("correct horse"))
		_, err = sealed.Load(ctx)
		require.ErrorIs(t, err, errors.ErrInvalidCredentials)
	})
}

func TestBadgerStore(t *testing.T) {
	ctx := context.Background()
	store, err := credentials.NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)

	require.NoError(t, store.Save(ctx, testCredentials()))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "Thibault", loaded.Username)
	require.True(t, testCredentials().ExpiresAt.Equal(loaded.ExpiresAt))

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestBadgerStoreWritesJSON(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := credentials.NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, testCredentials()))
	require.NoError(t, store.Close())

	var raw []byte
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = nil
	opts.Encoder = json.Marshal
	opts.Decoder = func(data []byte, value interface{}) error {
		raw = append([]byte(nil), data...)
		return json.Unmarshal(data, value)
	}
	db, err := badgerhold.Open(opts)
	require.NoError(t, err)
	defer db.Close()

	var creds credentials.Credentials
	require.NoError(t, db.Get(credentials.StorageKey, &creds))
	require.True(t, json.Valid(raw))
	require.Contains(t, string(raw), `"accessToken":"lio_access"`)
}
