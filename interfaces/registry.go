package interfaces

import (
	"context"
	"errors"
)

// PageSize is the registry's fixed server-side page size for document
// listings.
const PageSize = 100

// Registry errors shared across consumers.
var (
	// ErrArtifactUnavailable is returned when an artifact envelope lacks
	// the base64 payload field.
	ErrArtifactUnavailable = errors.New("artifact payload unavailable")

	// ErrAlreadyCancelled is returned by CancelDocument when the registry
	// reports the document as already annullato. Callers treat it as a
	// no-op outcome, not a failure.
	ErrAlreadyCancelled = errors.New("document already cancelled")
)

// RegistryAPI is the authenticated, rate-limited view of the RENTRI
// vidimazione service. All blocking operations take a context; every call
// acquires a rate-limiter slot before dispatch and is retried per the
// client's policy before an error surfaces.
type RegistryAPI interface {
	// ListBlocks returns the vidimazione blocks assigned to the
	// credential's fiscal code, in registry order.
	ListBlocks(ctx context.Context) ([]Block, error)

	// ListDocuments returns one page of documents for a block along with
	// a flag indicating whether further pages may exist. Pages are
	// 1-based and sized at PageSize server-side.
	ListDocuments(ctx context.Context, blockCode string, page int) ([]Document, bool, error)

	// ListAllDocuments walks every page of a block and returns the full
	// document set.
	ListAllDocuments(ctx context.Context, blockCode string) ([]Document, error)

	// SubmitCertification issues a single certification (vidimazione)
	// request against a block. Each certification is a separate signed
	// call; there is no bulk endpoint.
	SubmitCertification(ctx context.Context, blockCode string) error

	// FetchArtifact retrieves the rendered document for a block sequence
	// number and returns the decoded payload bytes.
	FetchArtifact(ctx context.Context, blockCode string, sequence int) ([]byte, error)

	// CancelDocument requests cancellation (annullamento) of a document.
	// Returns ErrAlreadyCancelled when the registry reports it as such.
	CancelDocument(ctx context.Context, blockCode string, sequence int) error

	// VerifyDocument looks up a document by its global number.
	VerifyDocument(ctx context.Context, number string) (*Document, error)
}
