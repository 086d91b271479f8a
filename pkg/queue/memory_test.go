package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-edge/pkg/common"
	"go-edge/pkg/config"
)

func job(imageID int) *common.JobMessage {
	return &common.JobMessage{
		Type:      common.JobTypeTile,
		Operator:  config.DefaultOperator(),
		ImageTile: &common.ImageTile{ImageID: imageID, Channels: 1, Data: []byte{1, 2, 3}},
	}
}

func TestMemoryJobRoundTrip(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	defer q.Close()
	require.NoError(t, q.EnsureGroups(ctx))

	id, err := q.AddJob(ctx, job(7))
	require.NoError(t, err)

	gotID, got, err := q.ReadJob(ctx, "w1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.ImageTile.ImageID)
	assert.Equal(t, []byte{1, 2, 3}, got.ImageTile.Data)

	jobs, _ := q.Pending()
	assert.Equal(t, 1, jobs)
	require.NoError(t, q.AckJob(ctx, gotID))
	jobs, _ = q.Pending()
	assert.Zero(t, jobs)
}

func TestMemoryReadTimesOut(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	id, msg, err := q.ReadResult(context.Background(), "a1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.Nil(t, msg)
}

func TestMemoryReadHonoursContext(t *testing.T) {
	q := NewMemory()
	defer q.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := q.ReadJob(ctx, "w1", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryBlockedReadersWake(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	defer q.Close()

	const readers = 4
	var wg sync.WaitGroup
	got := make(chan int, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, j, err := q.ReadJob(ctx, "w", 5*time.Second)
			if err == nil && j != nil {
				got <- j.ImageTile.ImageID
			}
		}()
	}
	for i := 0; i < readers; i++ {
		_, err := q.AddJob(ctx, job(i))
		require.NoError(t, err)
	}
	wg.Wait()
	close(got)

	seen := map[int]bool{}
	for id := range got {
		seen[id] = true
	}
	assert.Len(t, seen, readers)
}

func TestMemoryClaimStaleJobs(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	defer q.Close()
	clock := time.Unix(1000, 0)
	q.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		_, err := q.AddJob(ctx, job(i))
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, _, err := q.ReadJob(ctx, "dead", time.Second)
		require.NoError(t, err)
	}

	claimed, err := q.ClaimStaleJobs(ctx, "retry", 30*time.Second, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	clock = clock.Add(time.Minute)
	claimed, err = q.ClaimStaleJobs(ctx, "retry", 30*time.Second, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, 0, claimed[0].Job.ImageTile.ImageID)
	assert.Equal(t, 1, claimed[1].Job.ImageTile.ImageID)

	// claiming resets the idle time
	claimed, err = q.ClaimStaleJobs(ctx, "retry", 30*time.Second, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].Job.ImageTile.ImageID)
}

func TestMemoryImageInfo(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	defer q.Close()

	_, err := q.GetImageInfo(ctx, 3)
	assert.ErrorIs(t, err, ErrImageNotFound)

	info := &common.ImageInfo{ID: 3, Width: 10, Height: 8, Channels: 3, ExpectedTiles: 4, Operator: config.DefaultOperator()}
	require.NoError(t, q.StoreImageInfo(ctx, info))
	got, err := q.GetImageInfo(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, info.ExpectedTiles, got.ExpectedTiles)
	assert.Equal(t, info.Operator, got.Operator)

	done, err := q.IsImageCompleted(ctx, 3)
	require.NoError(t, err)
	assert.False(t, done)
	require.NoError(t, q.MarkImageCompleted(ctx, 3))
	done, err = q.IsImageCompleted(ctx, 3)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestMemoryClosed(t *testing.T) {
	ctx := context.Background()
	q := NewMemory()
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	_, err := q.AddJob(ctx, job(1))
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = q.ReadJob(ctx, "w", time.Second)
	assert.ErrorIs(t, err, ErrClosed)
}
