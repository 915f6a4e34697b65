package paginate

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewriteNext_StripsAPIPrefix(t *testing.T) {
	path, query := RewriteNext("/api/decks/123/updates?since=2024-01-01T00%3A00%3A00.000000")
	assert.Equal(t, "/decks/123/updates", path)
	assert.Equal(t, "2024-01-01T00:00:00.000000", query.Get("since"))
}

func TestRewriteNext_PassesThroughWithoutAPIPrefix(t *testing.T) {
	path, query := RewriteNext("/decks/123/updates?since=2024-01-01T00%3A00%3A00.000000")
	assert.Equal(t, "/decks/123/updates?since=2024-01-01T00%3A00%3A00.000000", path)
	assert.Nil(t, query)
}

// TestRewriteNext_PreservesSchemeAndHostWithoutAPIPrefix covers property P4:
// an absolute "next" URL with no "/api" segment is used verbatim, including
// a host different from the one currently in use, not collapsed to a
// same-host path.
func TestRewriteNext_PreservesSchemeAndHostWithoutAPIPrefix(t *testing.T) {
	path, query := RewriteNext("https://otherhost/foo?cursor=a")
	assert.Equal(t, "https://otherhost/foo?cursor=a", path)
	assert.Nil(t, query)
}

func TestPages_FollowsCursorUntilExhausted(t *testing.T) {
	type chunk struct{ n int }

	calls := 0
	fetch := func(ctx context.Context, path string, query url.Values) (Page[chunk], error) {
		calls++
		switch calls {
		case 1:
			return Page[chunk]{Data: chunk{n: 1}, Next: "/decks/1/updates?page=2"}, nil
		case 2:
			return Page[chunk]{Data: chunk{n: 2}, Next: ""}, nil
		default:
			t.Fatalf("fetch called more than expected: %d", calls)
			return Page[chunk]{}, nil
		}
	}

	var got []int
	for page, err := range Pages[chunk](context.Background(), "/decks/1/updates", nil, fetch) {
		require.NoError(t, err)
		got = append(got, page.n)
	}

	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 2, calls)
}

func TestPages_StopsOnFetchError(t *testing.T) {
	type chunk struct{ n int }
	wantErr := errors.New("boom")

	fetch := func(ctx context.Context, path string, query url.Values) (Page[chunk], error) {
		return Page[chunk]{}, wantErr
	}

	var gotErr error
	count := 0
	for _, err := range Pages[chunk](context.Background(), "/decks/1/updates", nil, fetch) {
		count++
		gotErr = err
	}

	assert.Equal(t, 1, count)
	assert.ErrorIs(t, gotErr, wantErr)
}

// TestPages_FollowsCrossHostNextVerbatim covers property P4 end-to-end: a
// "next" cursor without "/api" is handed to the next fetch call exactly as
// returned, host included, not rewritten to a same-host path.
func TestPages_FollowsCrossHostNextVerbatim(t *testing.T) {
	type chunk struct{ n int }

	var gotPaths []string
	calls := 0
	fetch := func(ctx context.Context, path string, query url.Values) (Page[chunk], error) {
		calls++
		gotPaths = append(gotPaths, path)
		switch calls {
		case 1:
			return Page[chunk]{Data: chunk{n: 1}, Next: "https://otherhost/foo?cursor=a"}, nil
		default:
			return Page[chunk]{Data: chunk{n: 2}, Next: ""}, nil
		}
	}

	var got []int
	for page, err := range Pages[chunk](context.Background(), "/decks/1/updates", nil, fetch) {
		require.NoError(t, err)
		got = append(got, page.n)
	}

	assert.Equal(t, []int{1, 2}, got)
	require.Len(t, gotPaths, 2)
	assert.Equal(t, "https://otherhost/foo?cursor=a", gotPaths[1])
}

func TestPages_CallerCanStopEarly(t *testing.T) {
	type chunk struct{ n int }

	calls := 0
	fetch := func(ctx context.Context, path string, query url.Values) (Page[chunk], error) {
		calls++
		return Page[chunk]{Data: chunk{n: calls}, Next: "/decks/1/updates?page=next"}, nil
	}

	for page := range Pages[chunk](context.Background(), "/decks/1/updates", nil, fetch) {
		if page.n == 1 {
			break
		}
	}

	assert.Equal(t, 1, calls)
}
