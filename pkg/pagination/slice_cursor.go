package pagination

import "context"

// sliceCursor iterates over an already fetched page held in memory.
type sliceCursor[T any] struct {
	items []T
	index int // next element
	fence int // one past the last element
}

func newSliceCursor[T any](items []T) *sliceCursor[T] {
	return &sliceCursor[T]{items: items, fence: len(items)}
}

func (c *sliceCursor[T]) Next(context.Context) (T, bool, error) {
	if c.index >= c.fence {
		var zero T
		return zero, false, nil
	}
	v := c.items[c.index]
	c.index++
	return v, true, nil
}

func (c *sliceCursor[T]) Drain(_ context.Context, yield func(T) bool) error {
	c.drain(yield)
	return nil
}

// drain reports whether the page was consumed to the end.
func (c *sliceCursor[T]) drain(yield func(T) bool) bool {
	for c.index < c.fence {
		v := c.items[c.index]
		c.index++
		if !yield(v) {
			return false
		}
	}
	return true
}

// Split hands off the lower half of the remaining elements.
func (c *sliceCursor[T]) Split(context.Context) (Cursor[T], error) {
	lo, mid := c.index, c.index+(c.fence-c.index)/2
	if lo >= mid {
		return nil, nil
	}
	c.index = mid
	splitsTotal.WithLabelValues(splitKindPage).Inc()
	return &sliceCursor[T]{items: c.items, index: lo, fence: mid}, nil
}

func (c *sliceCursor[T]) EstimateSize() int {
	return c.fence - c.index
}

func (c *sliceCursor[T]) Characteristics() Characteristics {
	return pagedCharacteristics
}
