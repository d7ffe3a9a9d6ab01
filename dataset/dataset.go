// Package dataset aggregates the registry's paginated per-block document
// collections into one filterable, pageable view, and layers a local
// cancellation overlay on top of server truth so callers stay responsive
// between refreshes.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.uber.org/atomic"

	"github.com/ecotrace-srl/rentri-client/interfaces"
)

// ErrRefreshInFlight is returned when Refresh is called while another
// refresh is still running. Refreshes never interleave.
var ErrRefreshInFlight = errors.New("refresh already in flight")

// PageSize is the page size of the paged view, matching the server's.
const PageSize = interfaces.PageSize

// Entry is one document in the dataset: server truth plus the local
// pending-cancelled overlay.
type Entry struct {
	interfaces.Document

	// PendingCancel is set after a successful cancel call and cleared by
	// the next refresh, which re-establishes server truth either way.
	PendingCancel bool
}

// Status reports the effective status, with the local overlay applied.
func (e Entry) Status() interfaces.DocumentStatus {
	if e.PendingCancel {
		return interfaces.StatusCancelled
	}
	return e.Document.Status()
}

// Filter selects a subset of the dataset. Zero values match everything.
type Filter struct {
	// Text matches case-insensitively against document number, block code
	// and sequence.
	Text string

	// BlockCode restricts to one block.
	BlockCode string

	// Status restricts to one effective status.
	Status interfaces.DocumentStatus
}

// DocumentRef identifies a document for cancel operations.
type DocumentRef struct {
	BlockCode string
	Sequence  int
}

// CancelOutcome is the per-item result of a cancel selection.
type CancelOutcome struct {
	Ref              DocumentRef
	OK               bool
	AlreadyCancelled bool
	Err              error
}

// Dataset is the aggregated document view. Reads are safe concurrently
// with one another; Refresh and Cancel serialize on the internal lock and
// a second concurrent Refresh is rejected rather than interleaved.
type Dataset struct {
	api interfaces.RegistryAPI
	log *slog.Logger

	refreshing atomic.Bool

	mu      sync.RWMutex
	blocks  []interfaces.Block
	entries []Entry
}

// New creates an empty dataset over the given registry client.
func New(api interfaces.RegistryAPI, log *slog.Logger) *Dataset {
	return &Dataset{api: api, log: log}
}

// Refresh loads all blocks and, for each, all pages of documents into one
// ordered collection (block order, then sequence). Server truth replaces
// the entire local state including any pending-cancelled overlay.
func (d *Dataset) Refresh(ctx context.Context) error {
	if !d.refreshing.CompareAndSwap(false, true) {
		return ErrRefreshInFlight
	}
	defer d.refreshing.Store(false)

	blocks, err := d.api.ListBlocks(ctx)
	if err != nil {
		return fmt.Errorf("refresh blocks: %w", err)
	}

	var entries []Entry
	for _, block := range blocks {
		docs, err := d.api.ListAllDocuments(ctx, block.Code)
		if err != nil {
			return fmt.Errorf("refresh block %s: %w", block.Code, err)
		}
		for _, doc := range docs {
			entries = append(entries, Entry{Document: doc})
		}
		d.log.Debug("Loaded block documents", "block", block.Code, "count", len(docs))
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].BlockCode != entries[j].BlockCode {
			return entries[i].BlockCode < entries[j].BlockCode
		}
		return entries[i].Sequence < entries[j].Sequence
	})

	d.mu.Lock()
	d.blocks = blocks
	d.entries = entries
	d.mu.Unlock()

	d.log.Debug("Dataset refreshed", "blocks", len(blocks), "documents", len(entries))
	return nil
}

// Blocks returns the blocks loaded by the last refresh.
func (d *Dataset) Blocks() []interfaces.Block {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]interfaces.Block, len(d.blocks))
	copy(out, d.blocks)
	return out
}

// Len returns the total number of documents in the dataset.
func (d *Dataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Documents returns the filtered view as a snapshot copy.
func (d *Dataset) Documents(f Filter) []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Entry
	for _, e := range d.entries {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Page returns one 1-based page of the filtered view plus the total number
// of matching documents. Pages cover the view exactly once.
func (d *Dataset) Page(f Filter, page int) ([]Entry, int) {
	view := d.Documents(f)
	total := len(view)

	if page < 1 {
		page = 1
	}
	start := (page - 1) * PageSize
	if start >= total {
		return nil, total
	}
	end := min(start+PageSize, total)
	return view[start:end], total
}

// TotalPages returns the page count of the filtered view, at least 1.
func (d *Dataset) TotalPages(f Filter) int {
	total := len(d.Documents(f))
	pages := total / PageSize
	if total%PageSize != 0 {
		pages++
	}
	if pages < 1 {
		pages = 1
	}
	return pages
}

// Cancel requests cancellation of every selected document and reports a
// per-item outcome. A success sets the local pending-cancelled overlay
// ahead of the next refresh; a failure leaves the entry untouched. A
// document the registry already has as cancelled yields a no-op outcome
// distinguishable from a failure.
func (d *Dataset) Cancel(ctx context.Context, selection []DocumentRef) []CancelOutcome {
	out := make([]CancelOutcome, 0, len(selection))

	for _, ref := range selection {
		outcome := CancelOutcome{Ref: ref}

		err := d.api.CancelDocument(ctx, ref.BlockCode, ref.Sequence)
		switch {
		case err == nil:
			outcome.OK = true
			d.setPendingCancel(ref)
		case errors.Is(err, interfaces.ErrAlreadyCancelled):
			outcome.AlreadyCancelled = true
			d.setPendingCancel(ref)
		default:
			outcome.Err = err
			d.log.Debug("Cancel failed", "block", ref.BlockCode, "sequence", ref.Sequence, "err", err)
		}

		out = append(out, outcome)
	}
	return out
}

func (d *Dataset) setPendingCancel(ref DocumentRef) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.entries {
		if d.entries[i].BlockCode == ref.BlockCode && d.entries[i].Sequence == ref.Sequence {
			d.entries[i].PendingCancel = true
			return
		}
	}
}

func (f Filter) matches(e Entry) bool {
	if f.BlockCode != "" && e.BlockCode != f.BlockCode {
		return false
	}
	if f.Status != "" && e.Status() != f.Status {
		return false
	}
	if f.Text != "" {
		haystack := strings.ToLower(fmt.Sprintf("%s %s %d", e.Number, e.BlockCode, e.Sequence))
		if !strings.Contains(haystack, strings.ToLower(f.Text)) {
			return false
		}
	}
	return true
}
