package badger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datales/cubechat/internal/session"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewWithPath(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	t.Run("requires options", func(t *testing.T) {
		_, err := New(nil)
		assert.Error(t, err)
	})

	t.Run("requires a data directory", func(t *testing.T) {
		_, err := New(&Options{})
		assert.Error(t, err)
	})

	t.Run("opens a store", func(t *testing.T) {
		store, err := New(&Options{DataDir: t.TempDir()})
		require.NoError(t, err)
		require.NoError(t, store.Close())
	})
}

func TestStore_CreateGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
}

func TestStore_Get_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	var notFound *session.ErrNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.ID)
}

func TestStore_Save(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)

	sess.Cube = "international_trade"
	sess.FormState = json.RawMessage(`{"measures":["Trade Value"]}`)
	sess.AppendTurn(true, "exports of chile")
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "international_trade", got.Cube)
	assert.JSONEq(t, `{"measures":["Trade Value"]}`, string(got.FormState))
	require.Len(t, got.Turns, 1)
	assert.Equal(t, "exports of chile", got.Turns[0].Content)

	t.Run("rejects sessions without an id", func(t *testing.T) {
		err := store.Save(ctx, &session.Session{})
		assert.Error(t, err)
	})
}

func TestStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, sess.ID))

	var notFound *session.ErrNotFound
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorAs(t, err, &notFound)

	err = store.Delete(ctx, sess.ID)
	assert.ErrorAs(t, err, &notFound)
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Create(ctx)
		require.NoError(t, err)
	}

	page1, err := store.List(ctx, &session.ListOptions{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page1, 3)

	page2, err := store.List(ctx, &session.ListOptions{Limit: 3, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, page2, 2)

	all, err := store.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_Stats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx)
	require.NoError(t, err)
	_, err = store.Create(ctx)
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalSessions)
}

func TestStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewWithPath(dir)
	require.NoError(t, err)

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	sess.Cube = "international_trade"
	require.NoError(t, store.Save(ctx, sess))
	require.NoError(t, store.Close())

	reopened, err := NewWithPath(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "international_trade", got.Cube)
}
