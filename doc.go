// Package nottorney is a client for the AnkiHub-style deck-synchronization
// service: it authenticates, lists and subscribes to decks, and — its
// centerpiece — reconciles a deck's bulk CSV snapshot and its paginated
// incremental JSON updates into a single DeckUpdates at an advancing
// watermark.
//
// The package does not implement offline write queuing, CRDT merge of
// local edits, content decryption, or note-type schema migration; the
// local flashcard store, suggestion submission, review reporting,
// feature-flag fetch, and deck upload are treated as out of scope and are
// not exposed here.
package nottorney
