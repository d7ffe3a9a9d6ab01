// Package interfaces defines the core types and interfaces of the RENTRI
// client. It provides the contract between components without
// implementation details: the registry client, the certification workflow,
// the document dataset, and the storage backends all communicate through
// the declarations in this package.
package interfaces

import (
	"fmt"
	"strings"
	"time"
)

// DocumentStatus is the lifecycle state of a FIR as tracked by the registry.
type DocumentStatus string

const (
	// StatusActive marks a certified (vidimato) document.
	StatusActive DocumentStatus = "vidimato"

	// StatusCancelled marks a document cancelled (annullato) on the registry.
	StatusCancelled DocumentStatus = "annullato"

	// StatusUnknown marks a document whose state could not be determined.
	StatusUnknown DocumentStatus = "sconosciuto"
)

// Block is a registry-issued numeric allotment of document identifiers
// assigned to a supplier. Blocks are immutable once fetched; the client
// re-fetches them per session.
type Block struct {
	// Code identifies the block (codice_blocco).
	Code string `json:"codice_blocco"`

	// Description is the free-text label assigned by the registry.
	Description string `json:"descrizione"`

	// RangeStart and RangeEnd delimit the numeric identifier range.
	RangeStart int `json:"numero_iniziale"`
	RangeEnd   int `json:"numero_finale"`

	// Certified is the number of identifiers already consumed.
	Certified int `json:"numero_fir_vidimati"`

	// Remaining is the number of identifiers still available.
	Remaining int `json:"numero_fir_disponibili"`
}

// Document is one tracked waste-transport record (FIR) within a block.
// The registry is the source of truth for all fields.
type Document struct {
	// Number is the document number (numero_fir), unique across blocks.
	Number string `json:"numero_fir"`

	// BlockCode is the code of the parent block.
	BlockCode string `json:"codice_blocco"`

	// Sequence is the position within the block (progressivo).
	Sequence int `json:"progressivo"`

	// IssuedAt is the certification date, zero when the registry omits it.
	IssuedAt Date `json:"data_vidimazione,omitzero"`

	// Cancelled reports whether the registry has the document as annullato.
	Cancelled bool `json:"annullato"`
}

// Status maps the wire representation to a DocumentStatus.
func (d Document) Status() DocumentStatus {
	if d.Number == "" {
		return StatusUnknown
	}
	if d.Cancelled {
		return StatusCancelled
	}
	return StatusActive
}

// HasArtifact reports whether a rendered artifact is expected to be
// retrievable for the document. Cancelled documents are excluded.
func (d Document) HasArtifact() bool {
	return d.Status() == StatusActive
}

// Key returns the block-scoped identity of the document.
func (d Document) Key() string {
	return fmt.Sprintf("%s/%d", d.BlockCode, d.Sequence)
}

// Date is a calendar date that unmarshals from both the registry's
// "2006-01-02" format and full RFC 3339 timestamps.
type Date struct {
	time.Time
}

// UnmarshalJSON accepts "2006-01-02", RFC 3339, or null.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	d.Time = t
	return nil
}

// MarshalJSON emits the registry's "2006-01-02" format.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`null`), nil
	}
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

// Supplier is one stored credential record: the material needed to open a
// session against the registry on behalf of a company.
type Supplier struct {
	ID         string `json:"id"`
	P12Path    string `json:"p12"`
	Password   string `json:"pwd"`
	LegalName  string `json:"ragione_sociale"`
	FiscalCode string `json:"codice_fiscale"`
}

// Preferences holds persisted user preferences consumed by presentation
// layers. The core only loads and saves them.
type Preferences struct {
	LogoPath          string `json:"logo_path"`
	LogoText          string `json:"logo_text"`
	Theme             string `json:"theme"`
	APIStatusVerified bool   `json:"api_status_verified"`
}

// ServiceStatus is the outcome of probing one registry /status endpoint.
type ServiceStatus struct {
	Code    int           `json:"code"`
	Latency time.Duration `json:"latency"`
	OK      bool          `json:"ok"`
	Err     string        `json:"error,omitempty"`
}

// Reachability is the outcome of a timed request against the registry
// base URL.
type Reachability struct {
	Reachable bool          `json:"reachable"`
	HTTPCode  int           `json:"http_code"`
	Latency   time.Duration `json:"latency"`
	Note      string        `json:"note"`
}
