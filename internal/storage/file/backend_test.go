package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestBackend_LoadMissingFile(t *testing.T) {
	b := NewBackend()
	data, err := b.Load(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestBackend_SaveAndLoad(t *testing.T) {
	b := NewBackend()
	path := filepath.Join(t.TempDir(), "nested", "ProductManager.json")

	require.NoError(t, b.Save(context.Background(), path, []byte(`{"a":1}`)))
	require.NoError(t, b.Save(context.Background(), path, []byte(`{"a":2}`)))

	data, err := b.Load(context.Background(), path)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestBackend_SaveFailureKeepsPreviousVersion(t *testing.T) {
	b := NewBackend()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, b.Save(context.Background(), path, []byte(`{"v":1}`)))

	// Каталог вместо файла на месте цели: rename не может заменить непустой каталог.
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "child"), 0o755))
	err := b.Save(context.Background(), blocked, []byte(`{"v":2}`))
	require.ErrorIs(t, err, domain.ErrStorageIO)

	data, err := b.Load(context.Background(), path)
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(data))
}

func TestBackend_LoadUnreadablePath(t *testing.T) {
	b := NewBackend()
	_, err := b.Load(context.Background(), t.TempDir())
	require.ErrorIs(t, err, domain.ErrStorageIO)
}

func TestBackend_CanceledContext(t *testing.T) {
	b := NewBackend()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Save(ctx, filepath.Join(t.TempDir(), "doc.json"), []byte("{}"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackend_ClaimIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	owner := NewBackend()
	other := NewBackend()

	require.NoError(t, owner.Claim(path))
	require.ErrorIs(t, owner.Claim(path), domain.ErrStorageInUse, "one owner per file, even within a backend")
	require.ErrorIs(t, other.Claim(path), domain.ErrStorageInUse)

	require.NoError(t, owner.Close())
	require.NoError(t, other.Claim(path))
	other.Release(path)
}
