package nottorney

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/minio/highwayhash"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ankihub/nottorney/internal/transport"
)

// maxConcurrentMediaDownloads bounds DownloadMedia's worker pool to match a
// single downstream host's practical per-host connection limit.
const maxConcurrentMediaDownloads = 8

// mediaChecksumKey is a fixed local key for the HighwayHash integrity
// checksum DownloadMedia logs per file; it is not the service's own media
// hash (that algorithm is opaque per spec.md §3), only a local corruption
// triage aid, so a fixed, non-secret key is appropriate.
var mediaChecksumKey = make([]byte, 32)

// MediaDownloadReport summarizes one DownloadMedia batch: attempted and
// succeeded counts only, per spec.md §4.6 ("best-effort; the caller is
// expected to re-request missing media on a subsequent sync").
type MediaDownloadReport struct {
	Attempted int
	Succeeded int
}

// DownloadMedia fetches each named media asset for deckID from the
// storage bucket's deck_assets path, writing it into the Client's
// configured local media directory. Per-file failures are logged and
// counted, never returned to the caller — the one named exception to
// "errors abort the run" (spec.md §7).
func (c *Client) DownloadMedia(ctx context.Context, names []string, deckID uuid.UUID) (MediaDownloadReport, error) {
	if c.mediaDirFn == nil {
		return MediaDownloadReport{}, ErrMediaDirNotConfigured
	}
	if !c.storageSet {
		return MediaDownloadReport{}, ErrStorageNotConfigured
	}

	dir, err := c.mediaDirFn(deckID)
	if err != nil {
		return MediaDownloadReport{}, fmt.Errorf("nottorney: resolving media directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return MediaDownloadReport{}, fmt.Errorf("nottorney: creating media directory %s: %w", dir, err)
	}

	var succeeded atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxConcurrentMediaDownloads)

	var logMu sync.Mutex
	for _, name := range names {
		name := name
		group.Go(func() error {
			if err := c.downloadOneMediaFile(groupCtx, deckID, name, dir); err != nil {
				logMu.Lock()
				c.logger.WithFields(mediaLogFields(deckID, name, err)).Warn("media download failed, skipping")
				logMu.Unlock()
				return nil
			}
			succeeded.Add(1)
			return nil
		})
	}
	// Errors are absorbed inside each goroutine, and every goroutine
	// returns nil, so Wait never reports an error; it only waits for the
	// batch to finish.
	_ = group.Wait()

	return MediaDownloadReport{Attempted: len(names), Succeeded: int(succeeded.Load())}, nil
}

func (c *Client) downloadOneMediaFile(ctx context.Context, deckID uuid.UUID, name, dir string) error {
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetStorage,
		Path:   fmt.Sprintf("deck_assets/%s/%s", deckID, name),
		Stream: true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return transport.NewHTTPError(resp)
	}

	destPath := filepath.Join(dir, filepath.Base(name))
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}

	hasher, err := highwayhash.New(mediaChecksumKey)
	if err != nil {
		f.Close()
		return fmt.Errorf("initializing checksum: %w", err)
	}

	_, err = io.Copy(io.MultiWriter(f, hasher), resp.Body)
	closeErr := f.Close()
	if err != nil {
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	if closeErr != nil {
		return fmt.Errorf("closing %s: %w", destPath, closeErr)
	}

	c.logger.WithFields(mediaChecksumFields(name, hasher.Sum(nil))).Debug("media file downloaded")
	return nil
}

func mediaLogFields(deckID uuid.UUID, name string, err error) logrus.Fields {
	return logrus.Fields{
		"deck_id": deckID,
		"name":    name,
		"err":     err,
	}
}

func mediaChecksumFields(name string, sum []byte) logrus.Fields {
	return logrus.Fields{
		"name":     name,
		"checksum": hex.EncodeToString(sum),
	}
}
