package nottorney

import (
	"time"

	"github.com/google/uuid"
)

// UserDeckRelation describes how the authenticated user relates to a Deck.
type UserDeckRelation string

const (
	RelationSubscribed UserDeckRelation = "subscribed"
	RelationOwned      UserDeckRelation = "owned"
	RelationNone       UserDeckRelation = "none"
)

// Deck is a named collection of notes belonging to a single owner.
// Decks are produced by catalog calls and are immutable within a sync run.
type Deck struct {
	ID       uuid.UUID
	Name     string
	OwnerID  uuid.UUID
	Relation UserDeckRelation
}

// UpdateType classifies the change a NoteInfo represents on the wire.
type UpdateType string

const (
	UpdateTypeCreate UpdateType = "create"
	UpdateTypeUpdate UpdateType = "update"
	UpdateTypeDelete UpdateType = "delete"
)

// Field is one named value of a note, in the order the service sent it.
type Field struct {
	Name  string
	Value string
}

// NoteInfo is a single note as normalized by the codec. A NoteInfo with
// LastUpdateType == UpdateTypeDelete carries a valid AhNID but its Fields
// and Tags are advisory only. NoteInfo is produced once by the codec and
// never mutated afterward.
type NoteInfo struct {
	AhNID          uuid.UUID
	AnkiID         int64
	NoteTypeID     int64
	Fields         []Field
	Tags           []string
	LastUpdateType *UpdateType
}

// ProtectedFields maps a note-type ID to the field names a host-side
// policy forbids the service from overwriting.
type ProtectedFields map[int64][]string

// DeckUpdatesChunk describes one page's worth of note data. GetDeckUpdates
// does not build DeckUpdatesChunk values: it decodes each page and
// accumulates its notes straight into the merged DeckUpdates.
type DeckUpdatesChunk struct {
	Notes             []NoteInfo
	LatestUpdate      *time.Time
	ProtectedFields   ProtectedFields
	ProtectedTags     []string
	FromCSV           bool
	ExternalNotesURL  string
}

// DeckUpdates is the merged result of one deck sync run.
type DeckUpdates struct {
	Notes           []NoteInfo
	LatestUpdate    *time.Time
	ProtectedFields ProtectedFields
	ProtectedTags   []string
}

// MediaDescriptor identifies one media asset belonging to a deck.
type MediaDescriptor struct {
	Name             string
	Hash             string
	ReferencingNotes []uuid.UUID
}

// DeckMediaUpdateChunk is one page of the media-update stream.
type DeckMediaUpdateChunk struct {
	Media []MediaDescriptor
}

// NoteCustomization is a per-note tag overlay contributed by a deck extension.
type NoteCustomization struct {
	AhNID uuid.UUID
	Tags  []string
}

// DeckExtensionUpdateChunk is one page of the extension-update stream.
type DeckExtensionUpdateChunk struct {
	Customizations []NoteCustomization
}

// DeckExtension is an optional-tag overlay a user has enabled for a deck.
type DeckExtension struct {
	ID     int64
	DeckID uuid.UUID
	Name   string
}

// NotesAction is a pending host-side action the service wants applied to a
// note (e.g. unsuspend), surfaced via GetPendingNotesActionsForDeck.
type NotesAction struct {
	AhNID  uuid.UUID
	Action string
}

// Token is an opaque bearer credential obtained from Login and cleared by
// Signout.
type Token string

// NoteType is the schema a NoteInfo conforms to: its field names (in card
// order) and a display name. Card templates are owned by the editor of
// record and are not part of this client's surface.
type NoteType struct {
	ID     int64
	Name   string
	Fields []string
}

// LoginResult is returned by Client.Login: the bearer token and its JWT
// expiry, so a host can proactively re-authenticate ahead of a sync run
// rather than discover expiry via a 401 mid-pagination.
type LoginResult struct {
	Token     Token
	ExpiresAt time.Time
}
