// Package dedup gates image uploads on content fingerprints. A frame whose
// fingerprint is already recorded in the IMAGE_HASHES table has been
// uploaded before and is skipped.
package dedup

import (
	"errors"
	"fmt"

	"github.com/surgtrack/curator/internal/imagehash"
	"github.com/surgtrack/curator/internal/tablestore"
)

// ErrMalformedFingerprint is returned when a candidate is not a canonical
// fingerprint string.
var ErrMalformedFingerprint = errors.New("malformed fingerprint")

// Registry is the slice of the session the gate needs.
type Registry interface {
	ItemExists(table, item string) bool
	AddItem(table, name string, extra map[string]any) (tablestore.InsertResult, error)
}

// Gate answers "was this frame uploaded before?" and records new uploads.
type Gate struct {
	reg Registry
}

// New creates a gate over the given registry, typically a live session.
func New(reg Registry) *Gate {
	return &Gate{reg: reg}
}

// IsKnown reports whether the fingerprint is already recorded.
func (g *Gate) IsKnown(fingerprint string) (bool, error) {
	if !imagehash.IsFingerprint(fingerprint) {
		return false, fmt.Errorf("%w: %q", ErrMalformedFingerprint, fingerprint)
	}
	return g.reg.ItemExists(tablestore.TableImageHashes, fingerprint), nil
}

// Register records a fingerprint against the subject it was acquired from.
// Registering a fingerprint that is already known is a soft conflict
// reported in the result, matching idempotent upload retries.
func (g *Gate) Register(fingerprint, subjectUID string) (tablestore.InsertResult, error) {
	if !imagehash.IsFingerprint(fingerprint) {
		return tablestore.InsertResult{}, fmt.Errorf("%w: %q", ErrMalformedFingerprint, fingerprint)
	}
	return g.reg.AddItem(tablestore.TableImageHashes, fingerprint, map[string]any{
		tablestore.ColSubjectUID: subjectUID,
	})
}
