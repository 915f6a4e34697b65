package nottorney

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ankihub/nottorney/internal/transport"
)

// GetPurchasedDecks lists the decks the authenticated user may sync:
// owned decks and subscribed decks alike.
func (c *Client) GetPurchasedDecks(ctx context.Context) ([]Deck, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   "/decks",
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}
	var body struct {
		Decks []wireDeck `json:"decks"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	decks := make([]Deck, 0, len(body.Decks))
	for _, d := range body.Decks {
		deck, err := d.toDeck()
		if err != nil {
			return nil, err
		}
		decks = append(decks, deck)
	}
	return decks, nil
}

// GetDeckByID fetches metadata for a single deck.
func (c *Client) GetDeckByID(ctx context.Context, deckID uuid.UUID) (*Deck, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   fmt.Sprintf("/decks/%s", deckID),
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}
	var wire wireDeck
	if err := decodeJSON(resp, &wire); err != nil {
		return nil, err
	}
	deck, err := wire.toDeck()
	if err != nil {
		return nil, err
	}
	return &deck, nil
}

type wireDeck struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	OwnerID  string `json:"owner_id"`
	Relation string `json:"relation"`
}

func (w wireDeck) toDeck() (Deck, error) {
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return Deck{}, fmt.Errorf("nottorney: parsing deck id %q: %w", w.ID, err)
	}
	var ownerID uuid.UUID
	if w.OwnerID != "" {
		ownerID, err = uuid.Parse(w.OwnerID)
		if err != nil {
			return Deck{}, fmt.Errorf("nottorney: parsing owner id %q: %w", w.OwnerID, err)
		}
	}
	relation := UserDeckRelation(w.Relation)
	if relation == "" {
		relation = RelationNone
	}
	return Deck{ID: id, Name: w.Name, OwnerID: ownerID, Relation: relation}, nil
}

// GetDownloadURL returns a signed URL for the deck's exported .apkg file.
func (c *Client) GetDownloadURL(ctx context.Context, deckID uuid.UUID) (string, error) {
	token, err := c.requireToken()
	if err != nil {
		return "", err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   fmt.Sprintf("/decks/%s/download", deckID),
		Token:  token,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", transport.NewHTTPError(resp)
	}
	var body struct {
		URL string `json:"download_url"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return "", err
	}
	return body.URL, nil
}

// DownloadDeck streams a deck's .apkg export to destPath. It is a
// LongRunning storage fetch, matching the original source's treatment of
// bulk downloads.
func (c *Client) DownloadDeck(ctx context.Context, downloadURL, destPath string) error {
	resp, err := c.transport.Send(ctx, transport.Request{
		Method:      "GET",
		Target:      transport.TargetStorage,
		Path:        downloadURL,
		Stream:      true,
		LongRunning: true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return transport.NewHTTPError(resp)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("nottorney: creating directory for %s: %w", destPath, err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("nottorney: creating %s: %w", destPath, err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return fmt.Errorf("nottorney: downloading deck to %s: %w", destPath, err)
	}
	c.metrics.observeBytesDownloaded(int(n))
	return nil
}

// GetDeckSubscriptions lists the decks the authenticated user subscribes
// to (but does not own).
func (c *Client) GetDeckSubscriptions(ctx context.Context) ([]Deck, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   "/decks/subscriptions",
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}
	var body struct {
		Decks []wireDeck `json:"decks"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	decks := make([]Deck, 0, len(body.Decks))
	for _, d := range body.Decks {
		deck, err := d.toDeck()
		if err != nil {
			return nil, err
		}
		decks = append(decks, deck)
	}
	return decks, nil
}

// SubscribeToDeck subscribes the authenticated user to deckID.
func (c *Client) SubscribeToDeck(ctx context.Context, deckID uuid.UUID) error {
	token, err := c.requireToken()
	if err != nil {
		return err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "POST",
		Target: transport.TargetService,
		Path:   fmt.Sprintf("/decks/%s/subscribe", deckID),
		Token:  token,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 201 {
		return transport.NewHTTPError(resp)
	}
	return nil
}

// UnsubscribeToDeck unsubscribes the authenticated user from deckID. A 404
// is accepted as idempotent success, per spec.md §6/scenario 6.
func (c *Client) UnsubscribeToDeck(ctx context.Context, deckID uuid.UUID) error {
	token, err := c.requireToken()
	if err != nil {
		return err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "DELETE",
		Target: transport.TargetService,
		Path:   fmt.Sprintf("/decks/%s/subscribe", deckID),
		Token:  token,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if acceptStatus(resp.StatusCode, 204, 404) {
		return nil
	}
	return transport.NewHTTPError(resp)
}

// GetProtectedFields returns the host-side policy of note-type-id to
// protected field names for deckID. A 404 is tolerated as "no policy
// configured" and returns an empty map.
func (c *Client) GetProtectedFields(ctx context.Context, deckID uuid.UUID) (ProtectedFields, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   fmt.Sprintf("/decks/%s/protected_fields", deckID),
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return ProtectedFields{}, nil
	}
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}
	var raw map[string][]string
	if err := decodeJSON(resp, &raw); err != nil {
		return nil, err
	}
	out := make(ProtectedFields, len(raw))
	for k, v := range raw {
		noteTypeID, err := parseInt64(k)
		if err != nil {
			return nil, fmt.Errorf("nottorney: parsing protected-fields note type id %q: %w", k, err)
		}
		out[noteTypeID] = v
	}
	return out, nil
}

// GetProtectedTags returns the host-side policy of tags the service must
// never overwrite for deckID. A 404 is tolerated as "no policy
// configured" and returns an empty slice.
func (c *Client) GetProtectedTags(ctx context.Context, deckID uuid.UUID) ([]string, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   fmt.Sprintf("/decks/%s/protected_tags", deckID),
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return nil, nil
	}
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}
	var tags []string
	if err := decodeJSON(resp, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// GetNoteTypesForDeck returns the note-type schemas used by deckID,
// cached for the Client's lifetime since schemas change far less often
// than notes.
func (c *Client) GetNoteTypesForDeck(ctx context.Context, deckID uuid.UUID) ([]NoteType, error) {
	if cached, ok := c.noteTypeCache.Get(deckID); ok {
		return cached, nil
	}

	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   fmt.Sprintf("/decks/%s/note_types", deckID),
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}
	var body struct {
		NoteTypes []NoteType `json:"note_types"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}

	c.noteTypeCache.Add(deckID, body.NoteTypes)
	return body.NoteTypes, nil
}

// GetNoteByID fetches a single note by its ah_nid, bypassing the sync
// engine. Used by hosts resolving a conflict or inspecting a single note
// out of band.
func (c *Client) GetNoteByID(ctx context.Context, ahNID uuid.UUID) (*NoteInfo, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   fmt.Sprintf("/notes/%s", ahNID),
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}
	var raw map[string]any
	if err := decodeJSON(resp, &raw); err != nil {
		return nil, err
	}
	note, err := noteInfoFromRaw(raw)
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// GeneratePresignedURL asks the service for a pre-signed upload URL for
// the given storage key, used by media/suggestion upload flows that sit
// outside this client's scope but still need the URL minted here.
func (c *Client) GeneratePresignedURL(ctx context.Context, key string) (string, error) {
	token, err := c.requireToken()
	if err != nil {
		return "", err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   "/presigned_url",
		Token:  token,
		Query:  url.Values{"key": {key}},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return "", transport.NewHTTPError(resp)
	}
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return "", err
	}
	return body.URL, nil
}

// GetDeckExtensions lists the extensions (optional tag overlays) the
// authenticated user has available.
func (c *Client) GetDeckExtensions(ctx context.Context) ([]DeckExtension, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   "/deck_extensions",
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}
	var body struct {
		Extensions []wireExtension `json:"deck_extensions"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	return toExtensions(body.Extensions)
}

// GetDeckExtensionsByDeckID lists the extensions enabled for one deck.
func (c *Client) GetDeckExtensionsByDeckID(ctx context.Context, deckID uuid.UUID) ([]DeckExtension, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   fmt.Sprintf("/decks/%s/deck_extensions", deckID),
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}
	var body struct {
		Extensions []wireExtension `json:"deck_extensions"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	return toExtensions(body.Extensions)
}

type wireExtension struct {
	ID     int64  `json:"id"`
	DeckID string `json:"deck_id"`
	Name   string `json:"name"`
}

func toExtensions(wire []wireExtension) ([]DeckExtension, error) {
	out := make([]DeckExtension, 0, len(wire))
	for _, w := range wire {
		deckID, err := uuid.Parse(w.DeckID)
		if err != nil {
			return nil, fmt.Errorf("nottorney: parsing extension deck id %q: %w", w.DeckID, err)
		}
		out = append(out, DeckExtension{ID: w.ID, DeckID: deckID, Name: w.Name})
	}
	return out, nil
}

// GetPendingNotesActionsForDeck lists host-side actions (e.g. unsuspend)
// the service wants applied to specific notes of deckID.
func (c *Client) GetPendingNotesActionsForDeck(ctx context.Context, deckID uuid.UUID) ([]NotesAction, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	resp, err := c.transport.Send(ctx, transport.Request{
		Method: "GET",
		Target: transport.TargetService,
		Path:   fmt.Sprintf("/decks/%s/notes_actions", deckID),
		Token:  token,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, transport.NewHTTPError(resp)
	}
	var body struct {
		Actions []struct {
			AhNID  string `json:"ah_nid"`
			Action string `json:"action"`
		} `json:"actions"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	actions := make([]NotesAction, 0, len(body.Actions))
	for _, a := range body.Actions {
		ahNID, err := uuid.Parse(a.AhNID)
		if err != nil {
			return nil, fmt.Errorf("nottorney: parsing notes-action ah_nid %q: %w", a.AhNID, err)
		}
		actions = append(actions, NotesAction{AhNID: ahNID, Action: a.Action})
	}
	return actions, nil
}
