// Package workflow drives a full certification (vidimazione) run against
// the registry: snapshot the target block, submit the requested number of
// certification calls, wait for server-side registration, reconcile the
// block to discover the newly created documents, and fetch their rendered
// artifacts into the artifact store.
//
// A run is cooperative-cancellable at every step boundary via its
// context; cancellation never preempts an in-flight call and never rolls
// back server-side effects. All terminal states (Completed, Cancelled,
// Failed) are delivered through the same result channel carrying
// partial-progress counts, so the caller always gets a coherent summary.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.uber.org/atomic"

	"github.com/ecotrace-srl/rentri-client/interfaces"
	"github.com/ecotrace-srl/rentri-client/storage"
)

// Phase is one state of the certification run machine.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseValidating           Phase = "validating"
	PhaseSnapshotting         Phase = "snapshotting"
	PhaseSubmitting           Phase = "submitting"
	PhaseAwaitingRegistration Phase = "awaiting_registration"
	PhaseReconciling          Phase = "reconciling"
	PhaseFetchingArtifacts    Phase = "fetching_artifacts"
	PhaseCompleted            Phase = "completed"
	PhaseCancelled            Phase = "cancelled"
	PhaseFailed               Phase = "failed"
)

// ErrWorkflowBusy is returned by Start while another run is active on the
// same Runner. Only one run may be active per registry client.
var ErrWorkflowBusy = errors.New("a certification run is already active")

// ValidationError is a pre-flight failure; no network calls were made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// Event is one progress notification: a phase transition or a
// (Current, Total) step inside a phase.
type Event struct {
	Phase   Phase
	Message string
	Current int
	Total   int
}

// Observer receives progress events. Called synchronously from the run
// goroutine; observers must not block.
type Observer func(Event)

// Request describes one certification run.
type Request struct {
	// Block is the target vidimazione block.
	Block interfaces.Block

	// Quantity is the number of certifications to submit.
	Quantity int

	// Observer optionally receives progress events.
	Observer Observer
}

// Result is the terminal summary of a run. Err is set for Failed runs;
// Cancelled and Completed runs carry their partial counts with a nil Err.
type Result struct {
	Phase Phase

	// Submitted is the number of certification calls that succeeded,
	// Attempted the number issued.
	Submitted int
	Attempted int

	// NewDocuments is the number of documents discovered by
	// reconciliation and attributed to this run.
	NewDocuments int

	// ArtifactsWritten counts artifacts fetched and stored; Artifacts
	// holds their locations in fetch order.
	ArtifactsWritten int
	Artifacts        []string

	// Warnings records non-fatal anomalies: partial submission failure,
	// reconciliation count mismatch, per-artifact fetch failures.
	Warnings []string

	Err error
}

// Config tunes run timing. Zero values use the registry-safe defaults.
type Config struct {
	// RegistrationWait is the fixed delay between the last submission and
	// reconciliation; server-side registration is asynchronous.
	RegistrationWait time.Duration

	// SubmitDelay is the pause between consecutive submissions.
	SubmitDelay time.Duration

	// FetchDelay is the pause between consecutive artifact fetches.
	FetchDelay time.Duration

	Log *slog.Logger
}

const (
	defaultRegistrationWait = 8 * time.Second
	defaultSubmitDelay      = 2 * time.Second
	defaultFetchDelay       = 1 * time.Second
)

// Runner executes certification runs against one registry client and one
// artifact store. At most one run is active at a time.
type Runner struct {
	api   interfaces.RegistryAPI
	store interfaces.ArtifactStore
	cfg   Config

	busy atomic.Bool
}

// NewRunner creates a Runner.
func NewRunner(api interfaces.RegistryAPI, store interfaces.ArtifactStore, cfg Config) *Runner {
	if cfg.RegistrationWait <= 0 {
		cfg.RegistrationWait = defaultRegistrationWait
	}
	// A negative delay disables the pause; zero selects the default.
	if cfg.SubmitDelay == 0 {
		cfg.SubmitDelay = defaultSubmitDelay
	}
	if cfg.FetchDelay == 0 {
		cfg.FetchDelay = defaultFetchDelay
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	return &Runner{api: api, store: store, cfg: cfg}
}

// Start launches a run on its own goroutine and returns the channel the
// terminal Result will be delivered on. It fails with ErrWorkflowBusy if
// a run is already active. The triggering caller is never blocked.
func (r *Runner) Start(ctx context.Context, req Request) (<-chan Result, error) {
	if !r.busy.CompareAndSwap(false, true) {
		return nil, ErrWorkflowBusy
	}

	ch := make(chan Result, 1)
	go func() {
		defer r.busy.Store(false)
		ch <- r.run(ctx, req)
		close(ch)
	}()
	return ch, nil
}

// Busy reports whether a run is currently active.
func (r *Runner) Busy() bool {
	return r.busy.Load()
}

// run executes the state machine. It never panics past its boundary; any
// fatal condition becomes a Failed result carrying the partial counts
// accumulated so far.
func (r *Runner) run(ctx context.Context, req Request) Result {
	res := Result{Phase: PhaseIdle}
	emit := func(ev Event) {
		if req.Observer != nil {
			req.Observer(ev)
		}
	}
	fail := func(err error) Result {
		res.Phase = PhaseFailed
		res.Err = err
		emit(Event{Phase: PhaseFailed, Message: err.Error()})
		return res
	}
	cancelled := func(msg string) Result {
		res.Phase = PhaseCancelled
		emit(Event{Phase: PhaseCancelled, Message: msg})
		r.cfg.Log.Info("Certification run cancelled", "message", msg,
			"submitted", res.Submitted, "artifacts", res.ArtifactsWritten)
		return res
	}

	// Validating
	res.Phase = PhaseValidating
	emit(Event{Phase: PhaseValidating})
	if err := r.validate(ctx, req); err != nil {
		return fail(err)
	}

	// Snapshotting: the "before" set delimits what this run created.
	res.Phase = PhaseSnapshotting
	emit(Event{Phase: PhaseSnapshotting, Message: "snapshotting block " + req.Block.Code})
	before, err := r.api.ListAllDocuments(ctx, req.Block.Code)
	if err != nil {
		return fail(fmt.Errorf("snapshot block %s: %w", req.Block.Code, err))
	}
	beforeSeqs := make(map[int]bool, len(before))
	for _, doc := range before {
		beforeSeqs[doc.Sequence] = true
	}

	// Submitting: strictly sequential, best-effort.
	res.Phase = PhaseSubmitting
	emit(Event{Phase: PhaseSubmitting, Total: req.Quantity})
	var lastSubmitErr error
	for i := 0; i < req.Quantity; i++ {
		if ctx.Err() != nil {
			return cancelled(fmt.Sprintf("cancelled after %d submissions", res.Submitted))
		}

		res.Attempted++
		if err := r.api.SubmitCertification(ctx, req.Block.Code); err != nil {
			lastSubmitErr = err
			res.Warnings = append(res.Warnings, fmt.Sprintf("submission %d/%d failed: %v", i+1, req.Quantity, err))
			r.cfg.Log.Warn("Submission failed", "block", req.Block.Code, "n", i+1, "err", err)
		} else {
			res.Submitted++
		}
		emit(Event{Phase: PhaseSubmitting, Current: i + 1, Total: req.Quantity})

		if i < req.Quantity-1 {
			if err := sleep(ctx, r.cfg.SubmitDelay); err != nil {
				return cancelled(fmt.Sprintf("cancelled after %d submissions", res.Submitted))
			}
		}
	}
	if res.Submitted == 0 {
		return fail(fmt.Errorf("all %d submissions failed: %w", req.Quantity, lastSubmitErr))
	}
	if res.Submitted < res.Attempted {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("partial failure: %d of %d submissions succeeded", res.Submitted, res.Attempted))
	}

	// AwaitingRegistration: fixed delay, not polling.
	res.Phase = PhaseAwaitingRegistration
	emit(Event{Phase: PhaseAwaitingRegistration,
		Message: fmt.Sprintf("waiting %s for registration", r.cfg.RegistrationWait)})
	if err := sleep(ctx, r.cfg.RegistrationWait); err != nil {
		return cancelled("cancelled during registration wait")
	}

	// Reconciling: after minus before, attributed to this run.
	res.Phase = PhaseReconciling
	emit(Event{Phase: PhaseReconciling})
	after, err := r.api.ListAllDocuments(ctx, req.Block.Code)
	if err != nil {
		return fail(fmt.Errorf("reconcile block %s: %w", req.Block.Code, err))
	}

	fresh := discoverNew(beforeSeqs, after, res.Submitted)
	res.NewDocuments = len(fresh)
	if res.NewDocuments != res.Submitted {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("reconciliation found %d new documents, expected %d", res.NewDocuments, res.Submitted))
	}

	// FetchingArtifacts: sequential, ascending document number.
	res.Phase = PhaseFetchingArtifacts
	emit(Event{Phase: PhaseFetchingArtifacts, Total: len(fresh)})
	for i, doc := range fresh {
		if ctx.Err() != nil {
			return cancelled(fmt.Sprintf("cancelled after %d artifacts", res.ArtifactsWritten))
		}

		data, err := r.api.FetchArtifact(ctx, doc.BlockCode, doc.Sequence)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("artifact %s unavailable: %v", doc.Number, err))
			r.cfg.Log.Warn("Artifact fetch failed", "document", doc.Number, "err", err)
		} else {
			location, err := r.store.Write(ctx, ArtifactFileName(doc), data)
			if err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("artifact %s not stored: %v", doc.Number, err))
			} else {
				res.ArtifactsWritten++
				res.Artifacts = append(res.Artifacts, location)
			}
		}
		emit(Event{Phase: PhaseFetchingArtifacts, Message: doc.Number, Current: i + 1, Total: len(fresh)})

		if i < len(fresh)-1 {
			if err := sleep(ctx, r.cfg.FetchDelay); err != nil {
				return cancelled(fmt.Sprintf("cancelled after %d artifacts", res.ArtifactsWritten))
			}
		}
	}

	res.Phase = PhaseCompleted
	emit(Event{Phase: PhaseCompleted})
	r.cfg.Log.Info("Certification run completed",
		"block", req.Block.Code,
		"submitted", res.Submitted,
		"new", res.NewDocuments,
		"artifacts", res.ArtifactsWritten,
		"warnings", len(res.Warnings))
	return res
}

func (r *Runner) validate(ctx context.Context, req Request) error {
	if req.Block.Code == "" {
		return &ValidationError{Reason: "no block selected"}
	}
	if req.Quantity <= 0 {
		return &ValidationError{Reason: "quantity must be positive"}
	}
	if req.Block.Remaining < req.Quantity {
		return &ValidationError{Reason: fmt.Sprintf(
			"block %s has %d identifiers remaining, %d requested",
			req.Block.Code, req.Block.Remaining, req.Quantity)}
	}
	if !r.store.Available(ctx) {
		return &ValidationError{Reason: "artifact store is not writable: " + r.store.LocationURI()}
	}
	return nil
}

// discoverNew returns the after-set documents absent from the before
// snapshot, attributed to this run: newest first by sequence, trimmed to
// the number of successful submissions (a concurrent writer in the same
// block must not inflate our downloads), then reordered by ascending
// document number so artifact fetching is deterministic and progress
// monotonic.
func discoverNew(beforeSeqs map[int]bool, after []interfaces.Document, submitted int) []interfaces.Document {
	var fresh []interfaces.Document
	for _, doc := range after {
		if !beforeSeqs[doc.Sequence] {
			fresh = append(fresh, doc)
		}
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Sequence > fresh[j].Sequence })
	if len(fresh) > submitted {
		fresh = fresh[:submitted]
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].Number < fresh[j].Number })
	return fresh
}

// ArtifactFileName derives the deterministic artifact filename for a
// document.
func ArtifactFileName(doc interfaces.Document) string {
	return storage.SanitizeName(doc.Number) + ".pdf"
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
