package backfill

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(t *testing.T) *FetchLock {
	return NewFetchLock(t.TempDir(), 10*time.Millisecond, nil)
}

func TestLockPathIsStablePerResource(t *testing.T) {
	l := newTestLock(t)
	assert.Equal(t, l.Path("https://example.com/a"), l.Path("https://example.com/a"))
	assert.NotEqual(t, l.Path("https://example.com/a"), l.Path("https://example.com/b"))
}

func TestLockWinnerRunsAndRecordsCompletion(t *testing.T) {
	l := newTestLock(t)
	ran := false
	require.NoError(t, l.Do(context.Background(), "res", func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)

	_, err := os.Stat(l.Path("res") + ".done")
	assert.NoError(t, err)
}

func TestLockContentionFetchesOnce(t *testing.T) {
	l := newTestLock(t)
	var fetches atomic.Int32
	var firstDone atomic.Bool
	started := make(chan struct{})
	release := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := l.Do(context.Background(), "day", func(context.Context) error {
			fetches.Add(1)
			close(started)
			<-release
			firstDone.Store(true)
			return nil
		})
		assert.NoError(t, err)
	}()

	<-started
	secondErr := make(chan error, 1)
	go func() {
		secondErr <- l.Do(context.Background(), "day", func(context.Context) error {
			fetches.Add(1)
			return nil
		})
	}()

	select {
	case <-secondErr:
		t.Fatal("second caller returned while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-secondErr)
	assert.True(t, firstDone.Load())
	assert.Equal(t, int32(1), fetches.Load())
	wg.Wait()
}

func TestLockWaiterLearnsPeerFailure(t *testing.T) {
	l := newTestLock(t)
	started := make(chan struct{})
	release := make(chan struct{})
	boom := errors.New("download reset")

	firstErr := make(chan error, 1)
	go func() {
		firstErr <- l.Do(context.Background(), "day", func(context.Context) error {
			close(started)
			<-release
			return boom
		})
	}()

	<-started
	secondErr := make(chan error, 1)
	go func() {
		secondErr <- l.Do(context.Background(), "day", func(context.Context) error { return nil })
	}()

	time.Sleep(30 * time.Millisecond)
	close(release)

	assert.ErrorIs(t, <-firstErr, boom)
	assert.ErrorIs(t, <-secondErr, ErrPeerFetchFailed)
}

func TestLockWaitHonorsContext(t *testing.T) {
	l := newTestLock(t)
	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		l.Do(context.Background(), "day", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	err := l.Do(ctx, "day", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	<-finished
}
