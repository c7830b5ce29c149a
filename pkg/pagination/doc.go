// Package pagination turns an offset/limit paged remote collection into one
// lazy, ordered sequence that can be consumed sequentially or split across
// goroutines.
//
// A PageSource fetches the elements in [offset, offset+limit) and reports the
// server's current belief about the total element count. The Sequence built on
// top of it fetches the first page eagerly to learn the total, keeps that page
// so nothing is downloaded twice, and fetches every further page on demand.
//
// Example usage:
//
//	source := pagination.PageSourceFunc[Loan](func(ctx context.Context, offset, limit int, reportTotal func(int)) ([]Loan, error) {
//		page, total, err := api.ListLoans(ctx, offset, limit)
//		if err != nil {
//			return nil, err
//		}
//		reportTotal(total)
//		return page, nil
//	})
//
//	seq, err := pagination.New(ctx, source, 100)
//	if err != nil {
//		return err
//	}
//	for loan, err := range seq.All(ctx) {
//		if err != nil {
//			return err
//		}
//		process(loan)
//	}
//
// Parallel consumption splits the collection into contiguous sub-ranges:
//
//	loans, err := seq.CollectOrdered(ctx, pagination.DefaultConfig())
//
// The upper bound of every cursor only ever shrinks. A collection that grows
// during traversal is read up to the total observed when the sequence was
// built; a collection that shrinks is truncated at the smallest total seen.
//
// Fetch errors are never retried here. Retry policy belongs to the PageSource
// (see pkg/client).
package pagination
