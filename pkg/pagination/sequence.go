package pagination

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/Sternrassler/pagestream/pkg/logging"
	"github.com/rs/zerolog"
)

// InitialDefaultPageSize is the default page size until SetDefaultPageSize is called.
const InitialDefaultPageSize = 50

var defaultPageSize atomic.Int64

func init() {
	defaultPageSize.Store(InitialDefaultPageSize)
}

// DefaultPageSize returns the process-wide page size used by NewDefault.
func DefaultPageSize() int {
	return int(defaultPageSize.Load())
}

// SetDefaultPageSize sets the process-wide page size used by NewDefault.
func SetDefaultPageSize(pageSize int) error {
	if pageSize <= 0 {
		return fmt.Errorf("default page size must be positive (got %d)", pageSize)
	}
	defaultPageSize.Store(int64(pageSize))
	return nil
}

// Sequence is a lazy, finite, ordered sequence over a paged collection.
//
// A Sequence can be consumed once, by exactly one of All, Collect,
// CollectOrdered, ForEach or Cursor. Later attempts fail with
// ErrSequenceConsumed.
type Sequence[T any] struct {
	root     Cursor[T]
	consumed atomic.Bool
	logger   zerolog.Logger
}

// New builds a sequence over source that fetches pageSize elements at a time.
//
// The first page is fetched before New returns, so that EstimateSize is
// meaningful right away. Those elements are kept and handed out first. A page
// size of zero yields an empty sequence without fetching anything.
func New[T any](ctx context.Context, source PageSource[T], pageSize int) (*Sequence[T], error) {
	if pageSize < 0 {
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidPageSize, pageSize)
	}
	if pageSize == 0 {
		return Empty[T](), nil
	}

	logger := logging.NewLogger("pagination")

	first, err := fetchPage(ctx, source, 0, pageSize, logger)
	if err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	if !first.reported {
		pageFetchErrorsTotal.Inc()
		return nil, fmt.Errorf("fetch first page: %w", ErrTotalNotReported)
	}

	logger.Debug().
		Int("page_size", pageSize).
		Int("total", first.total).
		Int("first_page_items", len(first.items)).
		Msg("Built paged sequence")

	return &Sequence[T]{
		root:   newRootCursor(source, pageSize, first, logger),
		logger: logger,
	}, nil
}

// NewDefault builds a sequence over source using DefaultPageSize.
func NewDefault[T any](ctx context.Context, source PageSource[T]) (*Sequence[T], error) {
	return New(ctx, source, DefaultPageSize())
}

// Empty returns a sequence without elements.
func Empty[T any]() *Sequence[T] {
	return &Sequence[T]{
		root:   newSliceCursor[T](nil),
		logger: zerolog.Nop(),
	}
}

// EstimateSize returns the estimated number of elements not yet consumed.
func (s *Sequence[T]) EstimateSize() int {
	return s.root.EstimateSize()
}

// Characteristics returns the traits declared by the sequence's cursors.
func (s *Sequence[T]) Characteristics() Characteristics {
	return s.root.Characteristics()
}

// Cursor hands the root cursor to the caller, for consumption by a custom
// runtime.
func (s *Sequence[T]) Cursor() (Cursor[T], error) {
	if err := s.claim(); err != nil {
		return nil, err
	}
	return s.root, nil
}

// All returns an iterator over the elements in collection order. A fetch
// error is yielded once, after which iteration stops.
func (s *Sequence[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		if err := s.claim(); err != nil {
			var zero T
			yield(zero, err)
			return
		}

		if err := s.root.Drain(ctx, func(v T) bool {
			return yield(v, nil)
		}); err != nil {
			var zero T
			yield(zero, err)
		}
	}
}

// Collect returns all elements in collection order, fetching sequentially.
func (s *Sequence[T]) Collect(ctx context.Context) ([]T, error) {
	if err := s.claim(); err != nil {
		return nil, err
	}

	items := make([]T, 0, s.root.EstimateSize())
	if err := s.root.Drain(ctx, func(v T) bool {
		items = append(items, v)
		return true
	}); err != nil {
		return nil, err
	}
	return items, nil
}

// CollectOrdered returns all elements in collection order, fetching pages in
// parallel.
func (s *Sequence[T]) CollectOrdered(ctx context.Context, cfg Config) ([]T, error) {
	if err := s.claim(); err != nil {
		return nil, err
	}
	return collectOrdered(ctx, s.root, cfg, s.logger)
}

// ForEach calls fn for every element, in no particular order, from up to
// cfg.MaxConcurrency goroutines. fn must be safe for concurrent use. The first
// error stops the traversal and is returned.
func (s *Sequence[T]) ForEach(ctx context.Context, cfg Config, fn func(T) error) error {
	if err := s.claim(); err != nil {
		return err
	}
	return forEachUnordered(ctx, s.root, cfg, fn, s.logger)
}

func (s *Sequence[T]) claim() error {
	if !s.consumed.CompareAndSwap(false, true) {
		return ErrSequenceConsumed
	}
	return nil
}
