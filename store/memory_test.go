package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ggstvfer/psd-covert-sub000/apperrors"
	"github.com/ggstvfer/psd-covert-sub000/models"
)

func TestMemorySessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStoreImpl()

	session := models.UploadSession{
		SessionId:      "s1",
		FileName:       "a.psd",
		LastActivityAt: time.Now(),
		Chunks:         []models.ChunkRecord{{Index: 0, ByteLength: 10}},
	}
	require.NoError(t, s.Create(ctx, session))
	require.Error(t, s.Create(ctx, session)) // duplicate id

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "a.psd", got.FileName)

	// Mutating the returned copy must not leak into the store.
	got.Chunks[0].ByteLength = 999
	again, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, uint64(10), again.Chunks[0].ByteLength)

	require.NoError(t, s.Delete(ctx, "s1"))
	_, err = s.Get(ctx, "s1")
	require.True(t, apperrors.IsCode(err, apperrors.CodeNoSession))
}

func TestMemorySessionStoreListIdle(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStoreImpl()
	now := time.Now()

	require.NoError(t, s.Create(ctx, models.UploadSession{SessionId: "stale", LastActivityAt: now.Add(-10 * time.Minute)}))
	require.NoError(t, s.Create(ctx, models.UploadSession{SessionId: "fresh", LastActivityAt: now}))

	idle, err := s.ListIdle(ctx, now.Add(-5*time.Minute))
	require.NoError(t, err)
	require.Len(t, idle, 1)
	require.Equal(t, "stale", idle[0].SessionId)
}

func TestMemoryChunkStorePrefixDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryChunkStoreImpl()

	require.NoError(t, s.Put(ctx, "uploads/s1/a.psd/0", []byte("one")))
	require.NoError(t, s.Put(ctx, "uploads/s1/a.psd/1", []byte("two")))
	require.NoError(t, s.Put(ctx, "uploads/s2/b.psd/0", []byte("keep")))

	data, err := s.Get(ctx, "uploads/s1/a.psd/1")
	require.NoError(t, err)
	require.Equal(t, []byte("two"), data)

	require.NoError(t, s.DeletePrefix(ctx, "uploads/s1/"))
	require.Equal(t, 1, s.Len())

	_, err = s.Get(ctx, "uploads/s1/a.psd/0")
	require.ErrorIs(t, err, ErrChunkNotFound)
}
