package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FieldKV is one ordered field name/value pair of a normalized note.
type FieldKV struct {
	Name  string
	Value string
}

// NormalizedNote is the canonical shape Normalize produces from either
// decoder's raw output, per spec.md §4.2. Its NoteID is still a string;
// the caller (which owns the uuid.UUID type) parses it.
type NormalizedNote struct {
	NoteID         string
	AnkiID         int64
	NoteTypeID     int64
	Fields         []FieldKV
	Tags           []string
	LastUpdateType *string
}

// Normalize applies the canonicalization rules shared by the delta decoder
// and the snapshot decoder: fields/tags are JSON-parsed when they arrive as
// strings (the CSV dialect always sends them that way; the JSON dialect
// sometimes doesn't, since the service may have already decoded them),
// anki_id/note_type_id are coerced to integers, note_id is resolved from
// the note_id/ankihub_id/id fallback chain, and a truthy "deleted" flag
// collapses last_update_type to "delete" regardless of what was already
// there.
func Normalize(raw RawNote) (NormalizedNote, error) {
	var note NormalizedNote

	fieldsVal, err := parseIfString(raw["fields"])
	if err != nil {
		return note, fmt.Errorf("normalizing fields: %w", err)
	}
	note.Fields, err = toFieldList(fieldsVal)
	if err != nil {
		return note, fmt.Errorf("normalizing fields: %w", err)
	}

	tagsVal, err := parseIfString(raw["tags"])
	if err != nil {
		return note, fmt.Errorf("normalizing tags: %w", err)
	}
	note.Tags, err = toStringList(tagsVal)
	if err != nil {
		return note, fmt.Errorf("normalizing tags: %w", err)
	}

	ankiID, err := toInt64(raw["anki_id"])
	if err != nil {
		return note, fmt.Errorf("normalizing anki_id: %w", err)
	}
	note.AnkiID = ankiID

	noteTypeID, err := toInt64(raw["note_type_id"])
	if err != nil {
		return note, fmt.Errorf("normalizing note_type_id: %w", err)
	}
	note.NoteTypeID = noteTypeID

	note.NoteID = firstNonEmpty(raw, "note_id", "ankihub_id", "id")

	if isTruthy(raw["deleted"]) {
		deleted := "delete"
		note.LastUpdateType = &deleted
	} else if v, ok := raw["last_update_type"]; ok && v != nil {
		if s, ok := v.(string); ok && s != "" {
			note.LastUpdateType = &s
		}
	}

	return note, nil
}

// parseIfString JSON-decodes v when it is a string (the CSV dialect's
// representation of a nested structure); any other shape passes through
// unchanged.
func parseIfString(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	if s == "" {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func toFieldList(v any) ([]FieldKV, error) {
	items, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("expected a list of fields, got %T", v)
	}
	fields := make([]FieldKV, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a field object, got %T", item)
		}
		name, _ := m["name"].(string)
		value := ""
		if rawValue, ok := m["value"]; ok && rawValue != nil {
			if s, ok := rawValue.(string); ok {
				value = s
			} else {
				encoded, _ := json.Marshal(rawValue)
				value = string(encoded)
			}
		}
		fields = append(fields, FieldKV{Name: name, Value: value})
	}
	return fields, nil
}

func toStringList(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		if v == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("expected a list of tags, got %T", v)
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string tag, got %T", item)
		}
		tags = append(tags, s)
	}
	return tags, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int64(n), nil
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		if n == "" {
			return 0, nil
		}
		return strconv.ParseInt(n, 10, 64)
	default:
		return 0, fmt.Errorf("cannot coerce %T to int64", v)
	}
}

func firstNonEmpty(raw RawNote, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "True" || t == "1"
	case float64:
		return t != 0
	default:
		return false
	}
}
