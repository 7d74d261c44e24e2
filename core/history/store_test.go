package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pyropy/partstream/core/model"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestAddAndGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	tr := model.NewTransfer("127.0.0.1:41234")
	tr.OutputPath = "song.mp3"
	tr.Bytes = 2600
	tr.Chunks = 3
	tr.Partitions = 1
	tr.Checksum = 42
	tr.FinishedAt = tr.StartedAt.Add(time.Second)

	require.NoError(t, s.Add(ctx, tr))

	got, err := s.Get(ctx, tr.ID)
	require.NoError(t, err)
	require.Equal(t, tr.ID, got.ID)
	require.Equal(t, "song.mp3", got.OutputPath)
	require.Equal(t, 2600, got.Bytes)
	require.Equal(t, 42, got.Checksum)
	require.Equal(t, time.Second, got.Duration())
}

func TestGetMissing(t *testing.T) {
	_, err := newStore(t).Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrTransferNotFound)
}

func TestAllOrdersByStart(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	now := time.Now()
	for i := 3; i > 0; i-- {
		tr := model.NewTransfer("server")
		tr.Bytes = i
		tr.StartedAt = now.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Add(ctx, tr))
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 1, all[0].Bytes)
	require.Equal(t, 3, all[2].Bytes)
}
