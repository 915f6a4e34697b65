package nottorney

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDeckExtensionUpdates_StreamsPagesAndReportsCumulativeProgress(t *testing.T) {
	noteID := uuid.New()
	var calls int
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			next := server.URL + "/deck_extensions/7/note_customizations/?page=2"
			fmt.Fprintf(w, `{"customizations":[{"ah_nid":%q,"tags":["leech"]}],"next":%q}`, noteID, next)
			return
		}
		fmt.Fprint(w, `{"customizations":[{"ah_nid":"`+uuid.New().String()+`","tags":["marked"]}]}`)
	}))
	defer server.Close()

	c, err := NewClient(WithServiceURL(server.URL), WithToken("tok"))
	require.NoError(t, err)

	var progressCalls []int
	var total []NoteCustomization
	for chunk, err := range c.GetDeckExtensionUpdates(context.Background(), 7, nil, func(n int) { progressCalls = append(progressCalls, n) }) {
		require.NoError(t, err)
		total = append(total, chunk.Customizations...)
	}

	require.Len(t, total, 2)
	assert.Equal(t, noteID, total[0].AhNID)
	assert.Equal(t, []string{"leech"}, total[0].Tags)
	require.Equal(t, []int{1, 2}, progressCalls)
	assert.Equal(t, 2, calls)
}

func TestGetDeckExtensionUpdates_BadAhNIDYieldsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"customizations":[{"ah_nid":"not-a-uuid","tags":[]}]}`)
	}))
	defer server.Close()

	c, err := NewClient(WithServiceURL(server.URL), WithToken("tok"))
	require.NoError(t, err)

	var gotErr error
	for _, err := range c.GetDeckExtensionUpdates(context.Background(), 7, nil, nil) {
		if err != nil {
			gotErr = err
		}
	}
	require.Error(t, gotErr)
}

func TestGetDeckExtensionUpdates_WithoutTokenFailsSynchronously(t *testing.T) {
	c, err := NewClient()
	require.NoError(t, err)

	var gotErr error
	for _, err := range c.GetDeckExtensionUpdates(context.Background(), 7, nil, nil) {
		gotErr = err
	}
	require.ErrorIs(t, gotErr, ErrNotAuthenticated)
}
