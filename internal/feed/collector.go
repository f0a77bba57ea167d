package feed

import (
	"context"
)

// page is one decoded page of a paginated upstream endpoint.
type page[T any] struct {
	items []T
	// next is the full URL of the following page, empty when exhausted.
	next string
}

// parsePage decodes one response body into items plus a continuation URL.
// Implementations return ErrAuthExpired when the body carries the service's
// invalid-token signature, which is distinct from a transport failure.
type parsePage[T any] func(resp *Response, pageURL string) (page[T], error)

// collect walks a paginated endpoint until the continuation cursor runs out,
// accumulating normalized items in page order. Each call owns its
// accumulator; nothing is shared between concurrent collections. A transport
// error or an auth signature aborts immediately with no partial results.
func collect[T any](ctx context.Context, f *Fetcher, url string, parse parsePage[T]) ([]T, error) {
	var items []T
	for url != "" {
		resp, err := f.Get(ctx, url)
		if err != nil {
			return nil, err
		}

		pg, err := parse(resp, url)
		if err != nil {
			return nil, err
		}

		// An absent item list is not an error; keep what we have so far.
		items = append(items, pg.items...)
		url = pg.next
	}
	return items, nil
}
