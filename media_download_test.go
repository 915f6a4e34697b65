package nottorney

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadMedia_RequiresMediaDirAndStorageConfigured(t *testing.T) {
	c, err := NewClient()
	require.NoError(t, err)
	_, err = c.DownloadMedia(context.Background(), []string{"a.mp3"}, uuid.New())
	require.ErrorIs(t, err, ErrMediaDirNotConfigured)

	dir := t.TempDir()
	c2, err := NewClient(WithMediaDir(func(uuid.UUID) (string, error) { return dir, nil }))
	require.NoError(t, err)
	_, err = c2.DownloadMedia(context.Background(), []string{"a.mp3"}, uuid.New())
	require.ErrorIs(t, err, ErrStorageNotConfigured)
}

// TestDownloadMedia_BestEffortAbsorbsPerFileFailures covers the one named
// exception to "errors abort the run": a failing file is logged and
// excluded from the success count, but never fails the batch.
func TestDownloadMedia_BestEffortAbsorbsPerFileFailures(t *testing.T) {
	deckID := uuid.New()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if filepath.Base(r.URL.Path) == "missing.mp3" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "fake-audio-bytes")
	}))
	defer server.Close()

	dir := t.TempDir()
	c, err := NewClient(
		WithStorageURL(server.URL),
		WithMediaDir(func(uuid.UUID) (string, error) { return dir, nil }),
	)
	require.NoError(t, err)

	report, err := c.DownloadMedia(context.Background(), []string{"ok.mp3", "missing.mp3"}, deckID)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)

	data, err := os.ReadFile(filepath.Join(dir, "ok.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "fake-audio-bytes", string(data))

	_, err = os.Stat(filepath.Join(dir, "missing.mp3"))
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadMedia_CreatesMediaDirectoryIfMissing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "x")
	}))
	defer server.Close()

	base := t.TempDir()
	nested := filepath.Join(base, "decks", "some-deck")
	c, err := NewClient(
		WithStorageURL(server.URL),
		WithMediaDir(func(uuid.UUID) (string, error) { return nested, nil }),
	)
	require.NoError(t, err)

	report, err := c.DownloadMedia(context.Background(), []string{"x.mp3"}, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
