package redisclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker is the single-process Locker used with the memory store and in
// tests. It does not protect a store shared between processes.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*dayLock
}

// dayLock is dropped from the map once no caller holds or waits on it.
type dayLock struct {
	sync.Mutex
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*dayLock)}
}

func (l *LocalLocker) WithDayLock(ctx context.Context, providerID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	key := DayKey(providerID, date)

	m := l.acquire(key)
	defer l.release(key, m)

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func (l *LocalLocker) acquire(key string) *dayLock {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &dayLock{}
		l.locks[key] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return m
}

func (l *LocalLocker) release(key string, m *dayLock) {
	m.Unlock()

	l.mu.Lock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

// held reports how many day locks are currently tracked.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
