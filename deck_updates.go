package nottorney

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ankihub/nottorney/internal/codec"
	"github.com/ankihub/nottorney/internal/paginate"
	"github.com/ankihub/nottorney/internal/transport"
)

// UpdateCallbacks are the optional hooks GetDeckUpdates invokes during a
// sync run. Every field may be left nil.
type UpdateCallbacks struct {
	// UpdatesProgress reports the cumulative number of delta notes seen
	// so far, after each delta page.
	UpdatesProgress func(notesSeenSoFar int)
	// SnapshotProgress reports an integer download percentage while the
	// snapshot loader streams the CSV body; see fetchSnapshot's doc
	// comment for the >100% edge case this preserves.
	SnapshotProgress func(percent int)
	// Cancel is polled once per deck-update page; returning true abandons
	// the run with no partial DeckUpdates.
	Cancel func() bool
}

type wireUpdatesPage struct {
	Notes            *string             `json:"notes"`
	LatestUpdate     *string             `json:"latest_update"`
	ProtectedFields  map[string][]string `json:"protected_fields"`
	ProtectedTags    []string            `json:"protected_tags"`
	ExternalNotesURL string              `json:"external_notes_url"`
	Next             *string             `json:"next"`
}

// deckUpdateAccumulator is the mutable state threaded through one sync
// run and, by design, through any snapshot-triggered recursion of it
// (spec.md §4.5/§9: recursion depth is bounded to 1 by the service's own
// guarantee that a snapshot page is terminal for its stream, but a single
// shared accumulator makes that bound irrelevant to correctness here).
type deckUpdateAccumulator struct {
	notesFromCSV    []NoteInfo
	notesFromJSON   []NoteInfo
	latestUpdate    *time.Time
	protectedFields ProtectedFields
	protectedTags   []string
}

// GetDeckUpdates drives one deck's incremental sync to completion: it
// walks the paginated `/decks/{id}/updates` stream, detours through the
// snapshot loader when a page names one, and merges the result under the
// JSON-wins rule (spec.md §4.5). A true second return value means the
// run was cancelled via cb.Cancel; in that case the *DeckUpdates is nil.
func (c *Client) GetDeckUpdates(ctx context.Context, deckID uuid.UUID, since *time.Time, downloadFullDeck bool, cb UpdateCallbacks) (*DeckUpdates, bool, error) {
	acc := &deckUpdateAccumulator{}
	cancelled, err := c.walkDeckUpdates(ctx, deckID, since, downloadFullDeck, cb, acc)
	if err != nil {
		return nil, false, err
	}
	if cancelled {
		return nil, true, nil
	}

	jsonIDs := make(map[uuid.UUID]struct{}, len(acc.notesFromJSON))
	for _, n := range acc.notesFromJSON {
		jsonIDs[n.AhNID] = struct{}{}
	}
	filteredCSV := make([]NoteInfo, 0, len(acc.notesFromCSV))
	for _, n := range acc.notesFromCSV {
		if _, shadowed := jsonIDs[n.AhNID]; shadowed {
			continue
		}
		filteredCSV = append(filteredCSV, n)
	}

	notes := make([]NoteInfo, 0, len(acc.notesFromJSON)+len(filteredCSV))
	notes = append(notes, acc.notesFromJSON...)
	notes = append(notes, filteredCSV...)

	c.metrics.observeNotesMerged("json", len(acc.notesFromJSON))
	c.metrics.observeNotesMerged("csv", len(filteredCSV))

	return &DeckUpdates{
		Notes:           notes,
		LatestUpdate:    acc.latestUpdate,
		ProtectedFields: acc.protectedFields,
		ProtectedTags:   acc.protectedTags,
	}, false, nil
}

func (c *Client) walkDeckUpdates(ctx context.Context, deckID uuid.UUID, since *time.Time, downloadFullDeck bool, cb UpdateCallbacks, acc *deckUpdateAccumulator) (bool, error) {
	token, err := c.requireToken()
	if err != nil {
		return false, err
	}

	query := url.Values{}
	if since != nil {
		query.Set("since", formatWatermark(*since))
	}
	query.Set("size", "2000")
	query.Set("full_deck", strconv.FormatBool(downloadFullDeck))

	path := fmt.Sprintf("/decks/%s/updates", deckID)

	fetch := func(ctx context.Context, p string, q url.Values) (paginate.Page[wireUpdatesPage], error) {
		return c.fetchDeckUpdatesPage(ctx, token, p, q)
	}

	for page, pageErr := range paginate.Pages[wireUpdatesPage](ctx, path, query, fetch) {
		if pageErr != nil {
			return false, pageErr
		}

		if cb.Cancel != nil && cb.Cancel() {
			return true, nil
		}

		c.metrics.observePage("deck_updates")

		var latest *time.Time
		if page.LatestUpdate != nil {
			t, perr := parseWatermark(*page.LatestUpdate)
			if perr != nil {
				return false, perr
			}
			latest = &t
		}

		if page.ExternalNotesURL != "" {
			rawNotes, serr := c.fetchSnapshot(ctx, page.ExternalNotesURL, cb.SnapshotProgress)
			if serr != nil {
				return false, serr
			}
			snapshotNotes := make([]NoteInfo, 0, len(rawNotes))
			for _, raw := range rawNotes {
				note, nerr := noteInfoFromRaw(raw)
				if nerr != nil {
					return false, nerr
				}
				snapshotNotes = append(snapshotNotes, note)
			}
			acc.notesFromCSV = snapshotNotes
			acc.latestUpdate = maxWatermark(acc.latestUpdate, latest)

			cancelled, rerr := c.walkDeckUpdates(ctx, deckID, latest, false, cb, acc)
			if rerr != nil || cancelled {
				return cancelled, rerr
			}
			// The service guarantees a snapshot page is terminal for the
			// outer stream; do not continue this loop past it.
			return false, nil
		}

		if page.Notes == nil {
			return false, &ProtocolError{Path: path, Reason: "delta page has neither notes nor external_notes_url"}
		}

		rawNotes, derr := codec.DecodeDeltaNotes(*page.Notes)
		if derr != nil {
			return false, derr
		}
		notes := make([]NoteInfo, 0, len(rawNotes))
		for _, raw := range rawNotes {
			note, nerr := noteInfoFromRaw(raw)
			if nerr != nil {
				return false, nerr
			}
			notes = append(notes, note)
		}
		acc.notesFromJSON = append(acc.notesFromJSON, notes...)
		acc.latestUpdate = maxWatermark(acc.latestUpdate, latest)

		if page.ProtectedFields != nil {
			pf := make(ProtectedFields, len(page.ProtectedFields))
			for k, v := range page.ProtectedFields {
				id, perr := parseInt64(k)
				if perr != nil {
					return false, fmt.Errorf("nottorney: parsing protected_fields note type id %q: %w", k, perr)
				}
				pf[id] = v
			}
			acc.protectedFields = pf
		}
		if page.ProtectedTags != nil {
			acc.protectedTags = page.ProtectedTags
		}

		if cb.UpdatesProgress != nil {
			cb.UpdatesProgress(len(acc.notesFromJSON))
		}
	}

	return false, nil
}

func (c *Client) fetchDeckUpdatesPage(ctx context.Context, token, path string, query url.Values) (paginate.Page[wireUpdatesPage], error) {
	resp, err := c.transport.Send(ctx, transport.Request{
		Method:      "GET",
		Target:      transport.TargetService,
		Path:        path,
		Token:       token,
		Query:       query,
		LongRunning: true,
	})
	if err != nil {
		return paginate.Page[wireUpdatesPage]{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return paginate.Page[wireUpdatesPage]{}, transport.NewHTTPError(resp)
	}

	var wire wireUpdatesPage
	if err := decodeJSON(resp, &wire); err != nil {
		return paginate.Page[wireUpdatesPage]{}, err
	}

	next := ""
	if wire.Next != nil {
		next = *wire.Next
	}
	return paginate.Page[wireUpdatesPage]{Data: wire, Next: next}, nil
}
