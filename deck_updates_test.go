package nottorney

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeDeltaNotes mirrors Python's base64.b85encode(gzip(json(notes))),
// the wire shape of a delta page's "notes" field.
func encodeDeltaNotes(t *testing.T, notes []map[string]any) string {
	t.Helper()
	raw, err := json.Marshal(notes)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err = w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data := buf.Bytes()
	padded := data
	if rem := len(padded) % 4; rem != 0 {
		padded = append(padded, make([]byte, 4-rem)...)
	}
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		"abcdefghijklmnopqrstuvwxyz!#$%&()*+-;<=>?@^_`{|}~"
	var out bytes.Buffer
	for i := 0; i < len(padded); i += 4 {
		v := uint32(padded[i])<<24 | uint32(padded[i+1])<<16 | uint32(padded[i+2])<<8 | uint32(padded[i+3])
		var group [5]byte
		for j := 4; j >= 0; j-- {
			group[j] = alphabet[v%85]
			v /= 85
		}
		out.Write(group[:])
	}
	encoded := out.String()
	if overhang := len(data) % 4; overhang != 0 {
		encoded = encoded[:len(encoded)-(4-overhang)]
	}
	return encoded
}

func deltaNote(ahNID string, ankiID, noteTypeID int64) map[string]any {
	return map[string]any{
		"note_id":      ahNID,
		"anki_id":      ankiID,
		"note_type_id": noteTypeID,
		"fields":       []any{},
		"tags":         []any{},
	}
}

// TestGetDeckUpdates_PureDeltaSinglePage covers end-to-end scenario 1: one
// delta page with no "next" makes exactly one HTTP call.
func TestGetDeckUpdates_PureDeltaSinglePage(t *testing.T) {
	noteID := uuid.New()
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		encoded := encodeDeltaNotes(t, []map[string]any{deltaNote(noteID.String(), 1, 2)})
		fmt.Fprintf(w, `{"notes":%q,"latest_update":"2024-03-05T10:00:00.000000Z"}`, encoded)
	}))
	defer server.Close()

	c, err := NewClient(WithServiceURL(server.URL), WithToken("tok"))
	require.NoError(t, err)

	updates, cancelled, err := c.GetDeckUpdates(context.Background(), uuid.New(), nil, false, UpdateCallbacks{})
	require.NoError(t, err)
	assert.False(t, cancelled)
	require.Len(t, updates.Notes, 1)
	assert.Equal(t, noteID, updates.Notes[0].AhNID)
	assert.Equal(t, 1, calls)
}

// TestGetDeckUpdates_PureDeltaThreePages covers end-to-end scenario 2: three
// delta pages chained by "next", with since/size/full_deck query params
// only ever sent on the first call.
func TestGetDeckUpdates_PureDeltaThreePages(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	var calls []*http.Request

	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqCopy := r.Clone(context.Background())
		calls = append(calls, reqCopy)
		i := len(calls) - 1

		encoded := encodeDeltaNotes(t, []map[string]any{deltaNote(ids[i].String(), int64(i), 2)})
		if i < 2 {
			next := fmt.Sprintf("%s/api/decks/x/updates?page=%d", server.URL, i+1)
			fmt.Fprintf(w, `{"notes":%q,"latest_update":"2024-03-05T10:00:0%d.000000Z","next":%q}`, encoded, i, next)
		} else {
			fmt.Fprintf(w, `{"notes":%q,"latest_update":"2024-03-05T10:00:02.000000Z"}`, encoded)
		}
	}))
	defer server.Close()

	c, err := NewClient(WithServiceURL(server.URL), WithToken("tok"))
	require.NoError(t, err)

	updates, cancelled, err := c.GetDeckUpdates(context.Background(), uuid.New(), nil, false, UpdateCallbacks{})
	require.NoError(t, err)
	assert.False(t, cancelled)
	require.Len(t, updates.Notes, 3)
	require.Len(t, calls, 3)

	assert.Equal(t, "2000", calls[0].URL.Query().Get("size"))
	assert.Equal(t, "false", calls[0].URL.Query().Get("full_deck"))
	assert.Empty(t, calls[1].URL.Query().Get("size"))
	assert.Empty(t, calls[2].URL.Query().Get("size"))
	assert.Equal(t, "1", calls[1].URL.Query().Get("page"))
	assert.Equal(t, "2", calls[2].URL.Query().Get("page"))
}

// TestGetDeckUpdates_SnapshotThenDeltaJSONWins covers end-to-end scenario 3
// and property P1: a snapshot of 100 notes followed by one delta page
// naming one of those notes by ah_nid results in 100 merged notes, with the
// delta copy winning identity and the snapshot order preserved for the rest.
func TestGetDeckUpdates_SnapshotThenDeltaJSONWins(t *testing.T) {
	snapshotIDs := make([]uuid.UUID, 100)
	for i := range snapshotIDs {
		snapshotIDs[i] = uuid.New()
	}
	winnerID := snapshotIDs[42]

	var snapshotServer *httptest.Server
	snapshotServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		buf.WriteString("note_id;anki_id;note_type_id\n")
		for i, id := range snapshotIDs {
			fmt.Fprintf(&buf, "'%s';'%d';'2'\n", id.String(), i)
		}
		w.Write(buf.Bytes())
	}))
	defer snapshotServer.Close()

	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprintf(w, `{"external_notes_url":%q,"latest_update":"2024-03-05T10:00:00.000000Z"}`, snapshotServer.URL+"/snap.csv")
			return
		}
		encoded := encodeDeltaNotes(t, []map[string]any{deltaNote(winnerID.String(), 999, 2)})
		fmt.Fprintf(w, `{"notes":%q,"latest_update":"2024-03-05T10:00:01.000000Z"}`, encoded)
	}))
	defer server.Close()

	c, err := NewClient(WithServiceURL(server.URL), WithToken("tok"))
	require.NoError(t, err)

	var snapshotPct []int
	updates, cancelled, err := c.GetDeckUpdates(context.Background(), uuid.New(), nil, true, UpdateCallbacks{
		SnapshotProgress: func(p int) { snapshotPct = append(snapshotPct, p) },
	})
	require.NoError(t, err)
	assert.False(t, cancelled)
	require.Len(t, updates.Notes, 100)

	// The delta copy must win identity: its AnkiID (999) must appear, and
	// exactly once.
	var seenWinner int
	var winnerAnkiID int64
	for _, n := range updates.Notes {
		if n.AhNID == winnerID {
			seenWinner++
			winnerAnkiID = n.AnkiID
		}
	}
	assert.Equal(t, 1, seenWinner)
	assert.EqualValues(t, 999, winnerAnkiID)

	// Snapshot order is preserved for the remaining 99 (JSON notes are
	// prepended, then non-shadowed CSV notes in their original order).
	var csvOrder []uuid.UUID
	for _, n := range updates.Notes {
		if n.AhNID != winnerID {
			csvOrder = append(csvOrder, n.AhNID)
		}
	}
	require.Len(t, csvOrder, 99)
	expectIdx := 0
	for _, id := range snapshotIDs {
		if id == winnerID {
			continue
		}
		assert.Equal(t, id, csvOrder[expectIdx])
		expectIdx++
	}
}

// TestGetDeckUpdates_CancellationYieldsNoPartialResult covers property P7
// and end-to-end scenario 5: cancelling between pages 1 and 2 aborts with
// no partial DeckUpdates.
func TestGetDeckUpdates_CancellationYieldsNoPartialResult(t *testing.T) {
	var server *httptest.Server
	var calls int
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		encoded := encodeDeltaNotes(t, []map[string]any{deltaNote(uuid.New().String(), 1, 2)})
		if calls == 1 {
			next := server.URL + "/decks/x/updates?page=2"
			fmt.Fprintf(w, `{"notes":%q,"latest_update":"2024-03-05T10:00:00.000000Z","next":%q}`, encoded, next)
			return
		}
		fmt.Fprintf(w, `{"notes":%q,"latest_update":"2024-03-05T10:00:01.000000Z"}`, encoded)
	}))
	defer server.Close()

	c, err := NewClient(WithServiceURL(server.URL), WithToken("tok"))
	require.NoError(t, err)

	seen := 0
	updates, cancelled, err := c.GetDeckUpdates(context.Background(), uuid.New(), nil, false, UpdateCallbacks{
		Cancel: func() bool {
			seen++
			return seen >= 2
		},
	})
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Nil(t, updates)
	assert.Equal(t, 2, calls)
}

// TestGetDeckUpdates_ProtectedFieldsAndTagsLastPageWins covers property P3:
// when multiple pages carry protected_fields/protected_tags, the final
// accumulated value is the last page's, not a union.
func TestGetDeckUpdates_ProtectedFieldsAndTagsLastPageWins(t *testing.T) {
	var server *httptest.Server
	var calls int
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		encoded := encodeDeltaNotes(t, []map[string]any{deltaNote(uuid.New().String(), int64(calls), 2)})
		if calls == 1 {
			next := server.URL + "/decks/x/updates?page=2"
			fmt.Fprintf(w, `{"notes":%q,"latest_update":"2024-03-05T10:00:00.000000Z","protected_fields":{"2":["Front"]},"protected_tags":["leech"],"next":%q}`, encoded, next)
			return
		}
		fmt.Fprintf(w, `{"notes":%q,"latest_update":"2024-03-05T10:00:01.000000Z","protected_fields":{"2":["Back"]},"protected_tags":["marked"]}`, encoded)
	}))
	defer server.Close()

	c, err := NewClient(WithServiceURL(server.URL), WithToken("tok"))
	require.NoError(t, err)

	updates, cancelled, err := c.GetDeckUpdates(context.Background(), uuid.New(), nil, false, UpdateCallbacks{})
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Equal(t, []string{"Back"}, updates.ProtectedFields[2])
	assert.Equal(t, []string{"marked"}, updates.ProtectedTags)
}

// TestGetDeckUpdates_DeltaPageMissingBothNotesAndURLIsProtocolError covers
// the delta page contract: a page with neither "notes" nor
// "external_notes_url" is a protocol violation, not a silently empty page.
func TestGetDeckUpdates_DeltaPageMissingBothNotesAndURLIsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"latest_update":"2024-03-05T10:00:00.000000Z"}`)
	}))
	defer server.Close()

	c, err := NewClient(WithServiceURL(server.URL), WithToken("tok"))
	require.NoError(t, err)

	_, _, err = c.GetDeckUpdates(context.Background(), uuid.New(), nil, false, UpdateCallbacks{})
	require.Error(t, err)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
}

// TestGetDeckUpdates_SinceIsFormattedAsWatermark confirms a caller-supplied
// "since" timestamp is sent in the service's fixed-microsecond format.
func TestGetDeckUpdates_SinceIsFormattedAsWatermark(t *testing.T) {
	var gotSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		encoded := encodeDeltaNotes(t, []map[string]any{deltaNote(uuid.New().String(), 1, 2)})
		fmt.Fprintf(w, `{"notes":%q,"latest_update":"2024-03-05T10:00:00.000000Z"}`, encoded)
	}))
	defer server.Close()

	c, err := NewClient(WithServiceURL(server.URL), WithToken("tok"))
	require.NoError(t, err)

	since := time.Date(2024, 1, 1, 0, 0, 0, 500000000, time.UTC)
	_, _, err = c.GetDeckUpdates(context.Background(), uuid.New(), &since, false, UpdateCallbacks{})
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T00:00:00.500000Z", gotSince)
}
