// Package codec decompresses and decodes the two on-the-wire note
// encodings (base85-wrapped gzipped JSON for incremental pages, and
// optionally-gzipped CSV for the bulk snapshot) into RawNote records, and
// normalizes those into the canonical NormalizedNote shape.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// RawNote is one note record as decoded off the wire, before Normalize has
// coerced its typed fields. Normalize keeps only the keys it recognizes;
// any other key of a RawNote is not carried into the NormalizedNote.
type RawNote map[string]any

// DecodeDeltaNotes decodes the "notes" field of a paginated deck-update
// page: base85, then gzip, then UTF-8 JSON, yielding the page's raw note
// records. Any stage failing aborts with a *DecodeError identifying which
// stage failed, per spec.md §4.2.
func DecodeDeltaNotes(raw string) ([]RawNote, error) {
	gzipped, err := decodeBase85(raw)
	if err != nil {
		return nil, &DecodeError{Stage: "base85", Err: err}
	}

	gz, err := gzip.NewReader(bytes.NewReader(gzipped))
	if err != nil {
		return nil, &DecodeError{Stage: "gzip", Err: err}
	}
	defer gz.Close()

	jsonBytes, err := io.ReadAll(gz)
	if err != nil {
		return nil, &DecodeError{Stage: "gzip", Err: err}
	}

	var notes []RawNote
	if err := json.Unmarshal(jsonBytes, &notes); err != nil {
		return nil, &DecodeError{Stage: "json", Err: err}
	}
	return notes, nil
}

// DecodeError reports which stage of a multi-stage decode failed.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: %s decode failed: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
