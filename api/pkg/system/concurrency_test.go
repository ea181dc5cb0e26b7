package system

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachConcurrentlyVisitsEveryItem(t *testing.T) {
	items := []int{10, 20, 30, 40, 50}

	var mu sync.Mutex
	seen := map[int]int{}
	err := ForEachConcurrently(items, 3, func(item int, index int) error {
		mu.Lock()
		seen[index] = item
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, seen, len(items))
	for index, item := range items {
		assert.Equal(t, item, seen[index])
	}
}

func TestForEachConcurrentlyBoundsConcurrency(t *testing.T) {
	var inflight, peak int64
	err := ForEachConcurrently(make([]struct{}, 8), 2, func(_ struct{}, _ int) error {
		cur := atomic.AddInt64(&inflight, 1)
		for {
			prev := atomic.LoadInt64(&peak)
			if cur <= prev || atomic.CompareAndSwapInt64(&peak, prev, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&inflight, -1)
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestForEachConcurrentlyWaitsForAllAfterError(t *testing.T) {
	boom := errors.New("boom")

	// Every handler must finish before the call returns, even when an
	// early one fails, so the failing handler cannot leak a goroutine.
	var completed int64
	err := ForEachConcurrently(make([]struct{}, 6), 2, func(_ struct{}, index int) error {
		defer atomic.AddInt64(&completed, 1)
		if index%2 == 0 {
			return boom
		}
		return nil
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(6), atomic.LoadInt64(&completed))
}
