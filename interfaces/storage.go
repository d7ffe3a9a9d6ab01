package interfaces

import (
	"context"
	"errors"
)

// ErrInvalidLocationURI is returned when a storage location URI cannot be
// parsed or uses an unsupported scheme.
var ErrInvalidLocationURI = errors.New("invalid storage location URI")

// ArtifactStore persists fetched artifacts under deterministic names.
// The certification workflow writes every downloaded artifact through
// this interface; the name is derived from the document number and the
// store decides the final location.
type ArtifactStore interface {
	// Write stores data under name and returns the resulting location
	// (a filesystem path or remote URI).
	Write(ctx context.Context, name string, data []byte) (string, error)

	// Available reports whether the store can currently accept writes.
	Available(ctx context.Context) bool

	// LocationURI returns the URI identifying this store.
	LocationURI() string
}

// SupplierStore is the narrow persistence interface for supplier
// credential records and user preferences. Implementations live outside
// the core's concern; the reference implementation is a JSON file.
type SupplierStore interface {
	List() []Supplier
	Search(query string) []Supplier
	Get(id string) (Supplier, bool)
	Add(s Supplier) error
	Remove(id string) error
}
