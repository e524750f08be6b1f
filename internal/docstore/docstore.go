// Package docstore is the document store the presence engine persists into.
//
// Documents are opaque JSON blobs addressed by (collection, key). Update is an
// optimistic read-modify-write: the callback may run several times when
// writers race, so it must be a pure function of the document it is given.
package docstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get and Delete for a missing document.
	ErrNotFound = errors.New("docstore: not found")
	// ErrConflict is returned when Update lost the race maxAttempts times in a row.
	ErrConflict = errors.New("docstore: transaction conflict")
)

// maxAttempts bounds optimistic retries per Update call.
const maxAttempts = 10

// Document is one stored value.
type Document struct {
	Key  string
	Data []byte
}

// Filter narrows a Query. The zero Filter matches the whole collection.
type Filter struct {
	KeyPrefix string
}

// UpdateFunc computes the next document from the current one. exists is false
// when the document has never been written. Returning an error aborts the
// update without writing.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// Store is implemented by every backend.
type Store interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Update(ctx context.Context, collection, key string, fn UpdateFunc) ([]byte, error)
	Query(ctx context.Context, collection string, f Filter) ([]Document, error)
	Delete(ctx context.Context, collection, key string) error
	Close() error
}

// Put overwrites a document unconditionally.
func Put(ctx context.Context, s Store, collection, key string, data []byte) error {
	_, err := s.Update(ctx, collection, key, func([]byte, bool) ([]byte, error) { return data, nil })
	return err
}
