// Package pagination assembles a complete catalog from a paged listing
// endpoint.
//
// flowzz listings declare their total page count in the pagination
// metadata of every page. The pager reads it from page 1 and walks the
// pages strictly in order through a rate-limited fetcher:
//
//	pager, err := pagination.NewPager(fetcher, pagination.DefaultConfig())
//	result, err := pager.PageThrough(ctx, source.ListURL, 100)
//
// The pager:
//   - Starts at page 1 and appends summaries in server order
//   - Stops after the declared last page, or on the first empty page
//   - Falls back to empty-page termination when the page count is missing
//   - Stops on the first failed page and reports the result as truncated
//   - Honours cancellation between pages and keeps what it already has
//
// Failed pages are never retried here. Whether a truncated catalog is
// usable is the caller's decision; Result.Diagnostics says what went wrong.
package pagination
