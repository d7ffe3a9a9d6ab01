// Package registrytest provides an in-memory fake of the RENTRI
// vidimazione-formulari service for tests and local development. It
// speaks the same wire contract as the production registry: bearer-token
// auth on every route, AGID signature headers on state-changing calls,
// header-driven pagination and the JSON artifact envelope. Failure modes
// (throttling, server errors, delayed registration, missing artifacts)
// are scriptable per server.
package registrytest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"

	"github.com/ecotrace-srl/rentri-client/interfaces"
)

const servicePath = "/vidimazione-formulari/v1.0"

type documentState struct {
	doc             interfaces.Document
	visibleAt       time.Time
	artifactMissing bool
}

type blockState struct {
	block interfaces.Block
	docs  []*documentState
}

// Server is the scriptable fake registry. All exported methods are safe
// for concurrent use with the HTTP handlers.
type Server struct {
	log *slog.Logger

	mu     sync.Mutex
	blocks map[string]*blockState
	order  []string

	registrationDelay time.Duration

	throttleLeft      int
	throttleRetryHint int

	failLeft   int
	failStatus int

	submitAttempts int
}

// New creates an empty fake registry.
func New(log *slog.Logger) *Server {
	return &Server{
		log:    log,
		blocks: make(map[string]*blockState),
	}
}

// Router returns the HTTP handler, routed the same way the production
// service is.
func (s *Server) Router() http.Handler {
	mux := chi.NewRouter()

	mux.With(s.httpLogger).Get("/{service}/v1.0/status", s.handleStatus)

	mux.Route(servicePath, func(r chi.Router) {
		r.Use(s.httpLogger)

		// The vidimazione subtree shadows the generic status pattern, so
		// its own status endpoint is re-declared here, unauthenticated.
		r.Get("/status", s.handleStatus)

		r.Group(func(g chi.Router) {
			g.Use(s.requireAuth)
			g.Get("/", s.handleListBlocks)
			g.Get("/verifica/{number}", s.handleVerify)
			g.Get("/{block}", s.handleListDocuments)
			g.With(s.requireSignature).Post("/{block}", s.handleSubmit)
			g.Get("/{block}/{sequence}/pdf", s.handleArtifact)
			g.With(s.requireSignature).Put("/{block}/{sequence}/annulla", s.handleCancel)
		})
	})

	return mux
}

func (s *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(s.log, next)
}

// AddBlock registers a vidimazione block with the given sequence range.
func (s *Server) AddBlock(code, description string, rangeStart, rangeEnd int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[code] = &blockState{
		block: interfaces.Block{
			Code:        code,
			Description: description,
			RangeStart:  rangeStart,
			RangeEnd:    rangeEnd,
		},
	}
	s.order = append(s.order, code)
}

// SeedDocuments creates count already-registered documents in a block,
// continuing from the block's highest sequence.
func (s *Server) SeedDocuments(blockCode string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bs := s.blocks[blockCode]
	if bs == nil {
		return
	}
	for i := 0; i < count; i++ {
		bs.newDocument(time.Time{})
	}
}

// SetRegistrationDelay makes newly submitted documents invisible to list
// calls until the delay has elapsed, mimicking the registry's
// asynchronous registration.
func (s *Server) SetRegistrationDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrationDelay = d
}

// ThrottleNext makes the next n authenticated requests answer 429. A
// positive retryAfterSeconds is sent as a Retry-After header.
func (s *Server) ThrottleNext(n, retryAfterSeconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttleLeft = n
	s.throttleRetryHint = retryAfterSeconds
}

// FailNext makes the next n authenticated requests answer with the given
// status code.
func (s *Server) FailNext(n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLeft = n
	s.failStatus = status
}

// MarkArtifactMissing makes the artifact endpoint answer an empty
// envelope for the given document.
func (s *Server) MarkArtifactMissing(blockCode string, sequence int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ds := s.findDocument(blockCode, sequence); ds != nil {
		ds.artifactMissing = true
	}
}

// SubmitAttempts reports how many certification submissions reached the
// server, including ones that were scripted to fail.
func (s *Server) SubmitAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitAttempts
}

// Documents returns a copy of a block's documents regardless of
// registration visibility.
func (s *Server) Documents(blockCode string) []interfaces.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	bs := s.blocks[blockCode]
	if bs == nil {
		return nil
	}
	out := make([]interfaces.Document, 0, len(bs.docs))
	for _, ds := range bs.docs {
		out = append(out, ds.doc)
	}
	return out
}

func (bs *blockState) newDocument(visibleAt time.Time) *documentState {
	seq := bs.block.RangeStart + len(bs.docs)
	ds := &documentState{
		doc: interfaces.Document{
			// The number carries a slash and a space so filename
			// sanitization gets exercised end to end.
			Number:    fmt.Sprintf("FIR %s/%06d", bs.block.Code, seq),
			BlockCode: bs.block.Code,
			Sequence:  seq,
			IssuedAt:  interfaces.Date{Time: time.Now()},
		},
		visibleAt: visibleAt,
	}
	bs.docs = append(bs.docs, ds)
	return ds
}

func (s *Server) findDocument(blockCode string, sequence int) *documentState {
	bs := s.blocks[blockCode]
	if bs == nil {
		return nil
	}
	for _, ds := range bs.docs {
		if ds.doc.Sequence == sequence {
			return ds
		}
	}
	return nil
}

// interceptScripted consumes one scripted throttle or failure, answering
// the request itself when one applies.
func (s *Server) interceptScripted(w http.ResponseWriter) bool {
	if s.throttleLeft > 0 {
		s.throttleLeft--
		if s.throttleRetryHint > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(s.throttleRetryHint))
		}
		w.WriteHeader(http.StatusTooManyRequests)
		return true
	}
	if s.failLeft > 0 {
		s.failLeft--
		w.WriteHeader(s.failStatus)
		w.Write([]byte(`{"detail":"scripted failure"}`))
		return true
	}
	return false
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"missing bearer token"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSignature(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Agid-JWT-Signature") == "" || r.Header.Get("Digest") == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"missing signature headers"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	if service == "" {
		service = "vidimazione-formulari"
	}
	writeJSON(w, map[string]string{
		"service": service,
		"status":  "ok",
	})
}

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interceptScripted(w) {
		return
	}
	if r.URL.Query().Get("identificativo") == "" {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"detail":"identificativo is required"}`))
		return
	}

	blocks := make([]interfaces.Block, 0, len(s.order))
	for _, code := range s.order {
		bs := s.blocks[code]
		b := bs.block
		b.Certified = len(bs.docs)
		b.Remaining = b.RangeEnd - b.RangeStart + 1 - len(bs.docs)
		blocks = append(blocks, b)
	}
	writeJSON(w, blocks)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interceptScripted(w) {
		return
	}
	bs := s.blocks[pathParam(r, "block")]
	if bs == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	page, _ := strconv.Atoi(r.Header.Get("Paging-Page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(r.Header.Get("Paging-PageSize"))
	if size < 1 {
		size = interfaces.PageSize
	}

	now := time.Now()
	var visible []interfaces.Document
	for _, ds := range bs.docs {
		if ds.visibleAt.After(now) {
			continue
		}
		visible = append(visible, ds.doc)
	}

	start := (page - 1) * size
	if start > len(visible) {
		start = len(visible)
	}
	end := start + size
	if end > len(visible) {
		end = len(visible)
	}

	docs := visible[start:end]
	if docs == nil {
		docs = []interfaces.Document{}
	}
	writeJSON(w, docs)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interceptScripted(w) {
		return
	}
	bs := s.blocks[pathParam(r, "block")]
	if bs == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	s.submitAttempts++
	if len(bs.docs) >= bs.block.RangeEnd-bs.block.RangeStart+1 {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"blocco esaurito"}`))
		return
	}

	ds := bs.newDocument(time.Now().Add(s.registrationDelay))
	writeJSON(w, ds.doc)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interceptScripted(w) {
		return
	}
	sequence, _ := strconv.Atoi(chi.URLParam(r, "sequence"))
	ds := s.findDocument(pathParam(r, "block"), sequence)
	if ds == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if ds.artifactMissing {
		writeJSON(w, map[string]string{"content": ""})
		return
	}

	payload := []byte("%PDF-1.4 fake artifact " + ds.doc.Number)
	writeJSON(w, map[string]string{
		"content": base64.StdEncoding.EncodeToString(payload),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interceptScripted(w) {
		return
	}
	sequence, _ := strconv.Atoi(chi.URLParam(r, "sequence"))
	ds := s.findDocument(pathParam(r, "block"), sequence)
	if ds == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if ds.doc.Cancelled {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"detail":"formulario già annullato"}`))
		return
	}
	ds.doc.Cancelled = true
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interceptScripted(w) {
		return
	}
	number := pathParam(r, "number")
	for _, code := range s.order {
		for _, ds := range s.blocks[code].docs {
			if ds.doc.Number == number {
				writeJSON(w, ds.doc)
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"detail":"formulario non trovato"}`))
}

// pathParam returns a chi URL parameter with percent-escapes decoded.
// chi routes on the raw path, so escaped params arrive undecoded.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
