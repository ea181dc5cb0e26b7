package system

import (
	"golang.org/x/sync/errgroup"
)

// ForEachConcurrently runs handler over items with at most concurrency
// goroutines in flight. It waits for every handler to finish and returns
// the first error encountered, so no goroutine outlives the call.
func ForEachConcurrently[ItemType any](
	items []ItemType,
	concurrency int,
	handler func(item ItemType, index int) error,
) error {
	if concurrency < 1 {
		concurrency = 1
	}

	var group errgroup.Group
	group.SetLimit(concurrency)
	for index, item := range items {
		index, item := index, item
		group.Go(func() error {
			return handler(item, index)
		})
	}
	return group.Wait()
}
