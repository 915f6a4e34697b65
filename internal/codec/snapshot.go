package codec

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	csvDelimiter = ';'
	csvQuote     = '\''
)

// DecodeSnapshotCSV decodes the body of a signed snapshot URL: gzip first
// if urlPath names a ".gz" file, then UTF-8, then CSV with the service's
// ';'-delimited, '\''-quoted dialect, keyed by header column name.
func DecodeSnapshotCSV(body []byte, urlPath string) ([]RawNote, error) {
	filename := urlPath
	if idx := strings.IndexByte(filename, '?'); idx >= 0 {
		filename = filename[:idx]
	}
	if idx := strings.LastIndexByte(filename, '/'); idx >= 0 {
		filename = filename[idx+1:]
	}

	text := body
	if strings.HasSuffix(filename, ".gz") {
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, &DecodeError{Stage: "gzip", Err: err}
		}
		defer gz.Close()
		decompressed, err := io.ReadAll(gz)
		if err != nil {
			return nil, &DecodeError{Stage: "gzip", Err: err}
		}
		text = decompressed
	}

	rows := parseQuotedCSV(string(text), csvDelimiter, csvQuote)
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	notes := make([]RawNote, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) == 1 && row[0] == "" {
			continue // trailing blank line
		}
		note := make(RawNote, len(header))
		for i, col := range header {
			if i < len(row) {
				note[col] = row[i]
			} else {
				note[col] = ""
			}
		}
		notes = append(notes, note)
	}
	return notes, nil
}
