// Package remote abstracts the research repository's document API: the
// authoritative external location holding the persisted store document.
//
// The core needs only five operations: fetch a named document, upload
// (overwrite) one, test existence, delete one, and list names under a
// prefix. Authentication is out of scope; the HTTP client consumes an
// already-issued bearer token through a provider callback.
package remote

import (
	"context"
	"errors"
)

// ErrNotExist is returned by Fetch when the named document is absent.
var ErrNotExist = errors.New("document does not exist")

// Store is the document API this core consumes. All calls are synchronous
// and block until the round trip completes or fails; retry policy belongs to
// the caller.
type Store interface {
	// Fetch downloads a document. Returns ErrNotExist (wrapped) when the
	// document is absent.
	Fetch(ctx context.Context, path string) ([]byte, error)
	// Upload writes a document, overwriting any existing content.
	Upload(ctx context.Context, path string, data []byte) error
	// Exists tests whether a document is present.
	Exists(ctx context.Context, path string) (bool, error)
	// Delete removes a document. Deleting an absent document is not an
	// error.
	Delete(ctx context.Context, path string) error
	// List returns the paths of all documents whose name starts with
	// prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}
