package pagination

import (
	"context"
	"errors"
)

// Errors returned by the pagination engine.
var (
	// ErrInvalidPageSize is returned for a negative page size.
	ErrInvalidPageSize = errors.New("page size must not be negative")

	// ErrPageOverflow is returned when a PageSource returns more elements than requested.
	ErrPageOverflow = errors.New("page source returned more elements than the limit")

	// ErrNegativeTotal is returned when a PageSource reports a negative total.
	ErrNegativeTotal = errors.New("page source reported a negative total")

	// ErrTotalNotReported is returned when the first fetch of a sequence never reports a total.
	ErrTotalNotReported = errors.New("page source did not report a total")

	// ErrSequenceConsumed is returned when a sequence is consumed a second time.
	ErrSequenceConsumed = errors.New("sequence has already been consumed")
)

// PageSource fetches one page of a remote, ordered collection.
//
// Fetch returns at most limit elements in collection order, starting at
// offset, and calls reportTotal exactly once with the source's current belief
// about the total number of elements. The total may differ between calls when
// the remote collection changes.
//
// Sibling cursors call Fetch concurrently. Implementations must be safe for
// concurrent use and serialize access to the underlying resource themselves
// if it is not.
type PageSource[T any] interface {
	Fetch(ctx context.Context, offset, limit int, reportTotal func(total int)) ([]T, error)
}

// PageSourceFunc adapts a function to the PageSource interface.
type PageSourceFunc[T any] func(ctx context.Context, offset, limit int, reportTotal func(total int)) ([]T, error)

// Fetch implements PageSource.
func (f PageSourceFunc[T]) Fetch(ctx context.Context, offset, limit int, reportTotal func(total int)) ([]T, error) {
	return f(ctx, offset, limit, reportTotal)
}

// page is the outcome of a single validated fetch.
type page[T any] struct {
	items    []T
	total    int
	reported bool
}
