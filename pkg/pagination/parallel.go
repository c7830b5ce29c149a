package pagination

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds parallel traversal configuration.
type Config struct {
	// MaxConcurrency is the maximum number of cursors consumed at once.
	// Every goroutine may be blocked on a page fetch, so this also bounds the
	// number of concurrent requests against the page source.
	MaxConcurrency int

	// SplitsPerWorker controls how finely the collection is cut: cursors are
	// split until their estimate drops below
	// total / (MaxConcurrency * SplitsPerWorker).
	SplitsPerWorker int
}

// DefaultConfig returns the default parallel traversal configuration.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:  10,
		SplitsPerWorker: 4,
	}
}

func (cfg Config) withDefaults() Config {
	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.SplitsPerWorker <= 0 {
		cfg.SplitsPerWorker = def.SplitsPerWorker
	}
	return cfg
}

// splitThreshold is the estimate at or below which a cursor is consumed
// instead of split further.
func (cfg Config) splitThreshold(estimate int) int {
	return max(estimate/(cfg.MaxConcurrency*cfg.SplitsPerWorker), 1)
}

// segment is a node of the split tree. Inner nodes have a left (prefix) and
// right (suffix) child, leaves hold the elements of one drained cursor.
type segment[T any] struct {
	left, right *segment[T]
	items       []T
}

// flatten concatenates the leaves in order.
func (s *segment[T]) flatten(n int) []T {
	out := make([]T, 0, n)
	stack := []*segment[T]{s}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.left == nil {
			out = append(out, top.items...)
			continue
		}
		stack = append(stack, top.right, top.left)
	}
	return out
}

// consumeFunc drains one leaf cursor and returns how many elements it saw.
type consumeFunc[T any] func(ctx context.Context, c Cursor[T], seg *segment[T]) (int, error)

// traversal splits cursors fork/join style: a task keeps splitting its cursor,
// forks every split-off prefix onto a free worker (or runs it inline when all
// workers are busy) and finally consumes the remaining suffix itself.
type traversal[T any] struct {
	ctx       context.Context
	group     *errgroup.Group
	threshold int
	consume   consumeFunc[T]

	leaves   atomic.Int64
	elements atomic.Int64
}

func (t *traversal[T]) run(c Cursor[T], seg *segment[T]) error {
	for c.EstimateSize() > t.threshold {
		if err := t.ctx.Err(); err != nil {
			return err
		}

		prefix, err := c.Split(t.ctx)
		if err != nil {
			return err
		}
		if prefix == nil {
			break
		}

		left, right := &segment[T]{}, &segment[T]{}
		seg.left, seg.right = left, right
		if !t.group.TryGo(func() error { return t.run(prefix, left) }) {
			if err := t.run(prefix, left); err != nil {
				return err
			}
		}
		seg = right
	}

	t.leaves.Add(1)
	n, err := t.consume(t.ctx, c, seg)
	t.elements.Add(int64(n))
	return err
}

// traverse runs consume over every leaf cursor split from root.
func traverse[T any](
	ctx context.Context,
	root Cursor[T],
	cfg Config,
	logger zerolog.Logger,
	consume consumeFunc[T],
) (*segment[T], int, error) {
	cfg = cfg.withDefaults()
	start := time.Now()
	estimate := root.EstimateSize()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxConcurrency)

	t := &traversal[T]{
		ctx:       gctx,
		group:     g,
		threshold: cfg.splitThreshold(estimate),
		consume:   consume,
	}

	logger.Info().
		Int("estimate", estimate).
		Int("workers", cfg.MaxConcurrency).
		Int("split_threshold", t.threshold).
		Msg("Starting parallel traversal")

	tree := &segment[T]{}
	g.Go(func() error { return t.run(root, tree) })

	if err := g.Wait(); err != nil {
		logger.Warn().
			Err(err).
			Int64("elements", t.elements.Load()).
			Int64("cursors", t.leaves.Load()).
			Msg("Parallel traversal failed")
		return nil, 0, err
	}

	logger.Info().
		Int64("elements", t.elements.Load()).
		Int64("cursors", t.leaves.Load()).
		Dur("duration", time.Since(start)).
		Msg("Traversal complete")

	return tree, int(t.elements.Load()), nil
}

// drainWithContext drains c, stopping early once ctx is done.
func drainWithContext[T any](ctx context.Context, c Cursor[T], yield func(T) bool) error {
	stopped := false
	if err := c.Drain(ctx, func(v T) bool {
		if ctx.Err() != nil {
			stopped = true
			return false
		}
		return yield(v)
	}); err != nil {
		return err
	}
	if stopped {
		return ctx.Err()
	}
	return nil
}

func collectOrdered[T any](ctx context.Context, root Cursor[T], cfg Config, logger zerolog.Logger) ([]T, error) {
	tree, n, err := traverse(ctx, root, cfg, logger, func(ctx context.Context, c Cursor[T], seg *segment[T]) (int, error) {
		seg.items = make([]T, 0, c.EstimateSize())
		err := drainWithContext(ctx, c, func(v T) bool {
			seg.items = append(seg.items, v)
			return true
		})
		return len(seg.items), err
	})
	if err != nil {
		return nil, err
	}
	return tree.flatten(n), nil
}

func forEachUnordered[T any](ctx context.Context, root Cursor[T], cfg Config, fn func(T) error, logger zerolog.Logger) error {
	_, _, err := traverse(ctx, root, cfg, logger, func(ctx context.Context, c Cursor[T], _ *segment[T]) (int, error) {
		var (
			n     int
			fnErr error
		)
		err := drainWithContext(ctx, c, func(v T) bool {
			if fnErr = fn(v); fnErr != nil {
				return false
			}
			n++
			return true
		})
		if fnErr != nil {
			return n, fnErr
		}
		return n, err
	})
	return err
}
