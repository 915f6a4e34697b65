// Package paginate drives the service's "next" cursor pagination as a lazy
// Go iterator, mirroring the generator-based paging loop in the original
// client.
package paginate

import (
	"context"
	"iter"
	"net/url"
	"strings"
)

// Page is one fetched page: the decoded payload plus the raw "next" value
// the service returned for it (empty when there is no further page).
type Page[T any] struct {
	Data T
	Next string
}

// FetchFunc performs one GET against path with query and decodes the
// response into a Page[T]. The path passed to the first call is the
// caller-supplied starting path; subsequent calls receive whatever
// RewriteNext produced for the previous page's Next value.
type FetchFunc[T any] func(ctx context.Context, path string, query url.Values) (Page[T], error)

// Pages drives FetchFunc starting at path/query, re-invoking it with each
// page's rewritten Next cursor until a page reports none, yielding one
// (item, error) per page in fetch order. Iteration stops, without a final
// error, when the caller's range-over-func body stops pulling early; a
// fetch error is yielded once and ends iteration.
func Pages[T any](ctx context.Context, path string, query url.Values, fetch FetchFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		nextPath, nextQuery := path, query
		for nextPath != "" {
			page, err := fetch(ctx, nextPath, nextQuery)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !yield(page.Data, nil) {
				return
			}
			if page.Next == "" {
				return
			}
			nextPath, nextQuery = RewriteNext(page.Next)
		}
	}
}

// RewriteNext splits the service's "next" cursor for re-issuing through the
// same transport, preserving a quirk of the original client verbatim: the
// service's "next" field sometimes carries a redundant "/api" prefix that
// the client's own base URL already supplies, and sometimes doesn't. When
// the prefix is present, it is stripped and the remaining path+query is
// re-joined against the transport's own base URL. When absent, the value
// is used exactly as returned — scheme and host included, even when that
// names a different host than the one currently in use. Neither branch is
// treated as an error; whether the latter is intentional cross-host
// pagination support or an oversight is unresolved upstream.
func RewriteNext(next string) (string, url.Values) {
	parsed, err := url.Parse(next)
	if err != nil {
		// Not a well-formed URL; hand it back unparsed and let the
		// transport's own validation surface the problem.
		return next, nil
	}

	if strings.HasPrefix(parsed.Path, "/api") {
		path := strings.TrimPrefix(parsed.Path, "/api")
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return path, parsed.Query()
	}

	return next, nil
}
