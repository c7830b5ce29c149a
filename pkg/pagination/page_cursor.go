package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// pageCursor walks the half-open range [start, end) of a paged collection,
// fetching one page at a time from source.
//
// end only ever decreases: every reported total is folded in with
// end = min(end, total). Growth of the remote collection after the cursor was
// seeded is therefore never observed, while shrinkage truncates the traversal.
type pageCursor[T any] struct {
	source   PageSource[T]
	pageSize int
	logger   zerolog.Logger

	start int
	end   int

	// loaded is the page currently being consumed.
	loaded *sliceCursor[T]

	// firstPage is the page fetched while building the sequence. Only the
	// root cursor has one, until it is consumed or split off.
	firstPage *sliceCursor[T]
}

func newRootCursor[T any](source PageSource[T], pageSize int, first page[T], logger zerolog.Logger) *pageCursor[T] {
	c := &pageCursor[T]{
		source:   source,
		pageSize: pageSize,
		logger:   logger,
		end:      first.total,
	}
	if len(first.items) == 0 {
		if first.total > 0 {
			logger.Warn().
				Int("reported_total", first.total).
				Msg("Page source returned an empty first page, treating collection as empty")
		}
		c.end = 0
		return c
	}
	c.firstPage = newSliceCursor(first.items)
	return c
}

func (c *pageCursor[T]) Next(ctx context.Context) (T, bool, error) {
	for {
		p, err := c.ensurePage(ctx)
		if err != nil {
			var zero T
			return zero, false, err
		}
		if v, ok, _ := p.Next(ctx); ok {
			return v, true, nil
		}
		c.loaded = nil
		if c.start >= c.end {
			var zero T
			return zero, false, nil
		}
	}
}

func (c *pageCursor[T]) Drain(ctx context.Context, yield func(T) bool) error {
	for {
		p, err := c.ensurePage(ctx)
		if err != nil {
			return err
		}
		if !p.drain(yield) {
			return nil
		}
		c.loaded = nil
		if c.start >= c.end {
			return nil
		}
	}
}

// Split tries, in order: handing off the first page, splitting the loaded
// page, cutting the range at a page boundary near its midpoint, and finally
// fetching the single remaining page and splitting that.
func (c *pageCursor[T]) Split(ctx context.Context) (Cursor[T], error) {
	if c.firstPage != nil {
		first := c.firstPage
		c.firstPage = nil
		c.start = first.EstimateSize()
		splitsTotal.WithLabelValues(splitKindFirstPage).Inc()
		c.logger.Debug().
			Int("first_page_size", c.start).
			Msg("Split off first page")
		return first, nil
	}

	if c.loaded != nil {
		return c.loaded.Split(ctx)
	}

	if c.end-c.start > c.pageSize {
		mid := (c.start + c.end) / 2
		mid -= mid % c.pageSize
		if mid <= c.start {
			mid += c.pageSize
		}

		prefix := &pageCursor[T]{
			source:   c.source,
			pageSize: c.pageSize,
			logger:   c.logger,
			start:    c.start,
			end:      mid,
		}
		c.start = mid
		splitsTotal.WithLabelValues(splitKindRange).Inc()
		c.logger.Debug().
			Int("prefix_start", prefix.start).
			Int("prefix_end", prefix.end).
			Int("suffix_end", c.end).
			Msg("Split range")
		return prefix, nil
	}

	if c.start >= c.end {
		return nil, nil
	}

	p, err := c.ensurePage(ctx)
	if err != nil {
		return nil, err
	}
	return p.Split(ctx)
}

// EstimateSize returns end-start until a page is loaded, then only what is
// left of that page. Both are approximations: the remote total may still
// shrink, and the unfetched remainder is ignored while a page is loaded.
func (c *pageCursor[T]) EstimateSize() int {
	if c.loaded != nil {
		return c.loaded.EstimateSize()
	}
	return max(c.end-c.start, 0)
}

func (c *pageCursor[T]) Characteristics() Characteristics {
	return pagedCharacteristics
}

// ensurePage returns the page to consume next, fetching it if needed. The
// returned page is empty when the range is exhausted.
func (c *pageCursor[T]) ensurePage(ctx context.Context) (*sliceCursor[T], error) {
	if c.firstPage != nil {
		c.loaded = c.firstPage
		c.firstPage = nil
		c.start = c.loaded.EstimateSize()
		return c.loaded, nil
	}

	if c.loaded != nil {
		return c.loaded, nil
	}

	if c.start >= c.end {
		return newSliceCursor[T](nil), nil
	}

	limit := min(c.end-c.start, c.pageSize)
	p, err := fetchPage(ctx, c.source, c.start, limit, c.logger)
	if err != nil {
		return nil, err
	}

	if p.reported && p.total < c.end {
		totalShrinksTotal.Inc()
		c.logger.Debug().
			Int("previous_end", c.end).
			Int("reported_total", p.total).
			Msg("Reported total lowered upper bound")
		c.end = p.total
	}

	if len(p.items) == 0 && c.start < c.end {
		c.logger.Warn().
			Int("offset", c.start).
			Int("end", c.end).
			Msg("Page source returned an empty page inside the live range, truncating")
		c.end = c.start
	}

	c.start += len(p.items)
	c.loaded = newSliceCursor(p.items)
	return c.loaded, nil
}

// fetchPage performs one fetch and validates the result against the
// PageSource contract. When the source reports more than once, the smallest
// total wins.
func fetchPage[T any](ctx context.Context, source PageSource[T], offset, limit int, logger zerolog.Logger) (page[T], error) {
	var (
		p        page[T]
		negative bool
	)

	startTime := time.Now()
	items, err := source.Fetch(ctx, offset, limit, func(total int) {
		if total < 0 {
			negative = true
			return
		}
		if !p.reported || total < p.total {
			p.total = total
		}
		p.reported = true
	})
	pageFetchDuration.Observe(time.Since(startTime).Seconds())

	if err != nil {
		pageFetchErrorsTotal.Inc()
		return page[T]{}, fmt.Errorf("fetch page at offset %d: %w", offset, err)
	}
	if negative {
		pageFetchErrorsTotal.Inc()
		return page[T]{}, fmt.Errorf("fetch page at offset %d: %w", offset, ErrNegativeTotal)
	}
	if len(items) > limit {
		pageFetchErrorsTotal.Inc()
		return page[T]{}, fmt.Errorf("fetch page at offset %d: %w (got %d, limit %d)", offset, ErrPageOverflow, len(items), limit)
	}

	pagesFetchedTotal.Inc()
	logger.Debug().
		Int("offset", offset).
		Int("limit", limit).
		Int("items", len(items)).
		Int("reported_total", p.total).
		Dur("duration", time.Since(startTime)).
		Msg("Fetched page")

	p.items = items
	return p, nil
}
