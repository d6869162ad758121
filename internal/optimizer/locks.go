package optimizer

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// SegmentLocks serializes work per segment key. Different keys never block
// each other.
type SegmentLocks struct {
	mu    sync.Mutex
	locks map[string]*segmentLock
}

type segmentLock struct {
	sem  *semaphore.Weighted
	refs int
	busy bool
}

func NewSegmentLocks() *SegmentLocks {
	return &SegmentLocks{locks: make(map[string]*segmentLock)}
}

// Acquire blocks until key is free or ctx is done. The returned func must be
// called exactly once to release the key.
func (l *SegmentLocks) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	sl, ok := l.locks[key]
	if !ok {
		sl = &segmentLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = sl
	}
	sl.refs++
	l.mu.Unlock()

	if err := sl.sem.Acquire(ctx, 1); err != nil {
		l.mu.Lock()
		l.unref(key, sl)
		l.mu.Unlock()
		return nil, err
	}

	l.mu.Lock()
	sl.busy = true
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			sl.busy = false
			l.unref(key, sl)
			l.mu.Unlock()
			sl.sem.Release(1)
		})
	}, nil
}

// unref must be called with l.mu held.
func (l *SegmentLocks) unref(key string, sl *segmentLock) {
	sl.refs--
	if sl.refs == 0 {
		delete(l.locks, key)
	}
}

// InFlight lists the keys currently held, sorted.
func (l *SegmentLocks) InFlight() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var keys []string
	for k, sl := range l.locks {
		if sl.busy {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
