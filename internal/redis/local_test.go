package redisclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestLocalLocker_SerializesSameDay(t *testing.T) {
	locker := NewLocalLocker()
	provider := uuid.New()
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = locker.WithDayLock(context.Background(), provider, day, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Zero(t, locker.held())
}

func TestLocalLocker_ForgetsReleasedDays(t *testing.T) {
	locker := NewLocalLocker()
	provider := uuid.New()
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 30; i++ {
		err := locker.WithDayLock(context.Background(), provider, day.AddDate(0, 0, i), func(ctx context.Context) error {
			assert.Equal(t, 1, locker.held())
			return nil
		})
		assert.NoError(t, err)
	}
	assert.Zero(t, locker.held())

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	err := locker.WithDayLock(canceled, provider, day, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, locker.held())
}

func TestDayKey(t *testing.T) {
	id := uuid.MustParse("7b0b4b8e-44a8-4c4a-9d0e-1f2a3b4c5d6e")
	day := time.Date(2026, 10, 19, 15, 4, 0, 0, time.UTC)
	assert.Equal(t, "lock:day:7b0b4b8e-44a8-4c4a-9d0e-1f2a3b4c5d6e:2026-10-19", DayKey(id, day))
}
