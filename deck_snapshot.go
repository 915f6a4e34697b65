package nottorney

import (
	"bytes"
	"context"
	"io"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/ankihub/nottorney/internal/codec"
	"github.com/ankihub/nottorney/internal/transport"
)

const snapshotFallbackChunkSize = 8 << 10 // 8 KiB, used when Content-Length is absent

// fetchSnapshot downloads the signed CSV snapshot at snapshotURL, reporting
// progress as an integer percentage to progress (if non-nil) after each
// chunk. Per spec.md §4.4/§9, the percentage is the nominal
// `i * chunk_size / total_size * 100` the original source computes — the
// chunk index times the nominal chunk size, not the actual cumulative
// bytes read — so it can exceed 100 once the final chunk is shorter than
// chunkSize. That overshoot is preserved verbatim rather than "fixed",
// since the original source's behavior is the documented contract here.
func (c *Client) fetchSnapshot(ctx context.Context, snapshotURL string, progress func(int)) ([]codec.RawNote, error) {
	resp, err := c.transport.Send(ctx, transport.Request{
		Method:      "GET",
		Target:      transport.TargetStorage,
		Path:        snapshotURL,
		Stream:      true,
		LongRunning: true,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}

	totalSize := resp.ContentLength

	chunkSize := snapshotFallbackChunkSize
	reportProgress := false
	if totalSize > 0 {
		reportProgress = progress != nil
		chunkSize = int(math.Min(float64(totalSize)*0.05, 1e6))
		if chunkSize <= 0 {
			// The nominal formula can floor to zero for a tiny
			// Content-Length; a zero-length read buffer would spin
			// forever, so fall back rather than reproduce that bug.
			chunkSize = snapshotFallbackChunkSize
		}
	}

	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	i := 0
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			i++
			buf.Write(chunk[:n])
			if reportProgress {
				percent := int(float64(i) * float64(chunkSize) / float64(totalSize) * 100)
				progress(percent)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, readErr
		}
	}

	c.metrics.observeBytesDownloaded(buf.Len())
	c.logger.WithField("bytes", humanize.Bytes(uint64(buf.Len()))).Debug("downloaded deck snapshot")

	return codec.DecodeSnapshotCSV(buf.Bytes(), snapshotURL)
}
