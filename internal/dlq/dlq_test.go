package dlq

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := NewQueue(filepath.Join(t.TempDir(), "rejected"), nil)
	require.NoError(t, err)
	return q
}

func TestNewQueue_EmptyPath(t *testing.T) {
	_, err := NewQueue("", nil)
	assert.Error(t, err)
}

func TestQueue_WriteAndList(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Write(ctx, []byte("no-equals-sign"), "127.0.0.1:40000", errors.New("segment without '='")))
	require.NoError(t, q.Write(ctx, []byte{0xff, 0xfe}, "127.0.0.1:40001", errors.New("invalid utf-8")))

	items, err := q.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "no-equals-sign", items[0].Payload)
	assert.Equal(t, "utf-8", items[0].Encoding)
	assert.Equal(t, "127.0.0.1:40000", items[0].Remote)
	assert.Equal(t, "segment without '='", items[0].Error)
	assert.False(t, items[0].Timestamp.IsZero())

	assert.Equal(t, `"\xff\xfe"`, items[1].Payload)
	assert.Equal(t, "go-quoted", items[1].Encoding)
}

func TestQueue_ListLimit(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Write(ctx, []byte("bad"), "peer", errors.New("bad")))
	}

	items, err := q.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestQueue_ListSkipsForeignFiles(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Write(ctx, []byte("bad"), "peer", errors.New("bad")))
	require.NoError(t, os.WriteFile(filepath.Join(q.basePath, "README"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(q.basePath, "rejected_broken.json"), []byte("{"), 0644))

	items, err := q.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestQueue_StatsAndPurge(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Write(ctx, []byte("a"), "peer", errors.New("bad")))
	require.NoError(t, q.Write(ctx, []byte("b"), "peer", errors.New("bad")))

	stats := q.Stats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, uint64(2), stats.Written)
	assert.Equal(t, 2, stats.PendingFiles)

	deleted, err := q.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	assert.Equal(t, 0, q.Stats().PendingFiles)
}

func TestQueue_Nil(t *testing.T) {
	var q *Queue
	ctx := context.Background()

	assert.NoError(t, q.Write(ctx, []byte("x"), "peer", errors.New("bad")))
	assert.False(t, q.Stats().Enabled)

	_, err := q.List(ctx, 0)
	assert.Error(t, err)

	_, err = q.Purge(ctx)
	assert.Error(t, err)
}
