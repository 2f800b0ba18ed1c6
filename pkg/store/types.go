package store

import (
	"encoding/json"
	"errors"
)

// Item is one entry together with the ETag it was read or written with.
type Item[T any] struct {
	Key   string
	Value T
	ETag  string
	// Found is false when the key held no data. ETag is still set then.
	Found bool
}

// WriteOptions control Write.
type WriteOptions struct {
	// IfMatch makes the write conditional on the entry's current ETag. A
	// mismatch fails with rtdb.ErrPreconditionFailed.
	IfMatch string
	// ETag requests the entry's new ETag in the returned Item.
	ETag bool
}

// ErrInvalidKey is returned for keys the database cannot address.
var ErrInvalidKey = errors.New("store: invalid key")

// Event is one entry level change: *Reset[T], *Put[T], *Delete, *Patch,
// *InvalidPath or *AuthRevoked.
type Event interface {
	storeEvent()
}

// Reset replaces every entry. It is the first event of a stream.
type Reset[T any] struct {
	Values map[string]T
}

// Put sets one entry.
type Put[T any] struct {
	Key   string
	Value T
}

// Delete removes one entry.
type Delete struct {
	Key string
}

// Patch changes fields below one entry without carrying the whole value.
// Field names are slash separated paths relative to the entry; a null value
// deletes that field.
type Patch struct {
	Key    string
	Fields map[string]json.RawMessage
}

// InvalidPath reports data at Path that does not fit the entry layout, such
// as a primitive stored directly at the store location.
type InvalidPath struct {
	Path string
}

// AuthRevoked reports that the stream's credential is no longer valid. The
// stream ends after this event.
type AuthRevoked struct{}

func (*Reset[T]) storeEvent()    {}
func (*Put[T]) storeEvent()      {}
func (*Delete) storeEvent()      {}
func (*Patch) storeEvent()       {}
func (*InvalidPath) storeEvent() {}
func (*AuthRevoked) storeEvent() {}
