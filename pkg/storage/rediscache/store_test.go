package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/gimel-foundation/authcore/pkg/model"
	"github.com/gimel-foundation/authcore/pkg/storage/memstore"
)

func newTestStore(t *testing.T) (*Store, *memstore.TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	backing := memstore.NewTokenStore()
	store := NewStore(backing, client, Config{Prefix: "test:", TTL: time.Minute})
	return store, backing, mr
}

func TestStorePutThenGetHitsCache(t *testing.T) {
	store, backing, mr := newTestStore(t)
	ctx := context.Background()

	record := &model.TokenRecord{ID: "tok-1", Name: "alias-1", Status: model.TokenActive, Groups: []string{"public"}}
	require.NoError(t, store.Put(ctx, record.ID, record))

	// Delete straight from the backing store so the only way Get can still
	// succeed is via the cache populated by Put.
	_, err := backing.Delete(ctx, record.ID)
	require.NoError(t, err)

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, record.Name, got.Name)

	mr.FastForward(2 * time.Minute)
	got, err = store.Get(ctx, record.ID)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreGetByNamePopulatesCacheOnMiss(t *testing.T) {
	store, backing, _ := newTestStore(t)
	ctx := context.Background()

	record := &model.TokenRecord{ID: "tok-2", Name: "alias-2", Status: model.TokenActive}
	require.NoError(t, backing.Put(ctx, record.ID, record))

	got, err := store.GetByName(ctx, record.Name)
	require.NoError(t, err)
	require.NotNil(t, got)

	_, err = backing.Delete(ctx, record.ID)
	require.NoError(t, err)

	got, err = store.GetByName(ctx, record.Name)
	require.NoError(t, err)
	require.NotNil(t, got, "expected cache to still serve the record after the backing store lost it")
}

func TestStoreDeleteEvictsCache(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	record := &model.TokenRecord{ID: "tok-3", Name: "alias-3", Status: model.TokenActive}
	require.NoError(t, store.Put(ctx, record.ID, record))

	deleted, err := store.Delete(ctx, record.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	got, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	got, err = store.GetByName(ctx, record.Name)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreClearFlushesCacheAndBackingStore(t *testing.T) {
	store, backing, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tok-4", &model.TokenRecord{ID: "tok-4", Name: "alias-4"}))

	require.NoError(t, store.Clear(ctx))

	n, err := backing.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	got, err := store.Get(ctx, "tok-4")
	require.NoError(t, err)
	require.Nil(t, got)
}
