// Package store defines the document-store contract the application is built
// against. The backing store is the single source of truth and the only
// writer of committed state; concurrent writers are not serialized here —
// last write wins at the document level.
package store

import (
	"context"
	"errors"
)

// Collection names shared by every backend.
const (
	CollectionPlans          = "plans"
	CollectionUsers          = "users"
	CollectionInvites        = "invites"
	CollectionFriendRequests = "friendRequests"
	CollectionNotifications  = "notifications"
)

// ErrNotFound is returned when the requested document does not exist.
// Mutation callers generally treat it as benign (another actor may have
// deleted the target); lookup callers surface it.
var ErrNotFound = errors.New("document not found")

// Filter selects documents within a collection.
//
// Eq maps dotted field paths to required values (string values only in
// practice). Exists lists dotted paths that must be present and non-null —
// this is how "plans whose member map contains this uid" is expressed.
// ID, when non-empty, restricts to a single document id.
type Filter struct {
	ID     string
	Eq     map[string]any
	Exists []string
}

// Event signals that a matching document changed. It carries no document
// body: consumers re-read the document, accepting that an intervening write
// may already have superseded the state that triggered the event.
type Event struct {
	Collection string
	ID         string
	Deleted    bool
}

// Store is the contract with the backing document database.
//
// Set merges named fields into an existing document. A key whose value is
// nil clears that field (stored null / removed), which is distinct from
// omitting the key entirely (field untouched). Dotted keys address nested
// map entries, e.g. "members.<uid>".
type Store interface {
	// Get decodes the document with the given id into out, or returns
	// ErrNotFound.
	Get(ctx context.Context, collection, id string, out any) error

	// Insert stores a new document under the given id. The caller is
	// responsible for also carrying the id inside doc's own id field.
	Insert(ctx context.Context, collection, id string, doc any) error

	// Set merges fields into an existing document, or returns ErrNotFound.
	Set(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, collection, id string) error

	// Find decodes every document matching the filter into out, which must be
	// a pointer to a slice.
	Find(ctx context.Context, collection string, filter Filter, out any) error

	// Watch streams change events for matching documents on every committed
	// change. The channel closes when ctx is cancelled. Delivery is
	// best-effort: a slow consumer may miss intermediate changes.
	Watch(ctx context.Context, collection string, filter Filter) (<-chan Event, error)

	Close(ctx context.Context) error
}
