package pagination

import (
	"context"
	"strings"
)

// Characteristics describes the traversal traits a cursor declares.
type Characteristics uint8

const (
	// Ordered means elements are produced in encounter order.
	Ordered Characteristics = 1 << iota

	// Sized means EstimateSize is meant to be used for planning.
	Sized

	// Subsized means every cursor produced by Split is Sized as well.
	Subsized

	// Immutable means the cursor never observes structural changes of the
	// elements it has already fetched.
	Immutable
)

// pagedCharacteristics is declared by every cursor of a paged sequence.
const pagedCharacteristics = Ordered | Sized | Subsized | Immutable

// Has reports whether all flags in want are set.
func (c Characteristics) Has(want Characteristics) bool {
	return c&want == want
}

func (c Characteristics) String() string {
	var names []string
	for _, f := range []struct {
		flag Characteristics
		name string
	}{
		{Ordered, "ordered"},
		{Sized, "sized"},
		{Subsized, "subsized"},
		{Immutable, "immutable"},
	} {
		if c.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Cursor is a splittable iterator over a contiguous range of a collection.
//
// A Cursor is not safe for concurrent use. Split hands a disjoint prefix of
// the remaining range to a new cursor, which can then be consumed on another
// goroutine.
type Cursor[T any] interface {
	// Next returns the next element. The boolean is false once the cursor is
	// exhausted.
	Next(ctx context.Context) (T, bool, error)

	// Drain passes every remaining element to yield, in order, until yield
	// returns false or the cursor is exhausted.
	Drain(ctx context.Context, yield func(T) bool) error

	// Split returns a cursor over a prefix of the remaining range and keeps
	// the suffix. It returns a nil cursor when the range cannot be split.
	Split(ctx context.Context) (Cursor[T], error)

	// EstimateSize returns the estimated number of remaining elements.
	EstimateSize() int

	// Characteristics returns the traits of this cursor.
	Characteristics() Characteristics
}
