package nottorney

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/ankihub/nottorney/internal/codec"
)

// noteInfoFromRaw normalizes one raw note record (already JSON-decoded,
// whatever its ultimate origin — delta page or snapshot CSV row) into the
// package's canonical NoteInfo, resolving the codec's string NoteID into a
// uuid.UUID.
func noteInfoFromRaw(raw map[string]any) (NoteInfo, error) {
	normalized, err := codec.Normalize(codec.RawNote(raw))
	if err != nil {
		return NoteInfo{}, err
	}
	return noteInfoFromNormalized(normalized)
}

func noteInfoFromNormalized(n codec.NormalizedNote) (NoteInfo, error) {
	ahNID, err := uuid.Parse(n.NoteID)
	if err != nil {
		return NoteInfo{}, fmt.Errorf("nottorney: parsing note id %q: %w", n.NoteID, err)
	}

	fields := make([]Field, len(n.Fields))
	for i, f := range n.Fields {
		fields[i] = Field{Name: f.Name, Value: f.Value}
	}

	var updateType *UpdateType
	if n.LastUpdateType != nil {
		ut := UpdateType(*n.LastUpdateType)
		updateType = &ut
	}

	return NoteInfo{
		AhNID:          ahNID,
		AnkiID:         n.AnkiID,
		NoteTypeID:     n.NoteTypeID,
		Fields:         fields,
		Tags:           n.Tags,
		LastUpdateType: updateType,
	}, nil
}

// parseInt64 parses a base-10 integer from a JSON object key (map keys are
// always strings even when they encode a note-type id).
func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
