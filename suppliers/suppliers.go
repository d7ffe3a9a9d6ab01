// Package suppliers persists supplier credential records and user
// preferences in JSON files. It sits behind the narrow store interfaces
// so the core never depends on the on-disk layout.
package suppliers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ecotrace-srl/rentri-client/interfaces"
)

// ErrSupplierNotFound is returned by Remove for an unknown supplier id.
var ErrSupplierNotFound = errors.New("supplier not found")

// Store is a JSON-file-backed supplier store keyed by supplier id
// (the fiscal code when available).
type Store struct {
	path string
	log  *slog.Logger

	mu   sync.Mutex
	data map[string]interfaces.Supplier
}

var _ interfaces.SupplierStore = (*Store)(nil)

// NewStore loads the store at path, starting empty when the file does not
// exist yet.
func NewStore(path string, log *slog.Logger) (*Store, error) {
	s := &Store{
		path: path,
		log:  log,
		data: make(map[string]interfaces.Supplier),
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug("Supplier store file not found, starting empty", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read supplier store: %w", err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse supplier store: %w", err)
	}

	log.Debug("Supplier store loaded", "path", path, "suppliers", len(s.data))
	return s, nil
}

// List returns all suppliers ordered by legal name.
func (s *Store) List() []interfaces.Supplier {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]interfaces.Supplier, 0, len(s.data))
	for _, sup := range s.data {
		out = append(out, sup)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LegalName < out[j].LegalName
	})
	return out
}

// Search matches suppliers by legal name or fiscal code, case-insensitive.
// An empty query returns everything.
func (s *Store) Search(query string) []interfaces.Supplier {
	all := s.List()
	if query == "" {
		return all
	}

	q := strings.ToLower(query)
	var out []interfaces.Supplier
	for _, sup := range all {
		if strings.Contains(strings.ToLower(sup.LegalName), q) ||
			strings.Contains(strings.ToLower(sup.FiscalCode), q) {
			out = append(out, sup)
		}
	}
	return out
}

// Get returns the supplier with the given id.
func (s *Store) Get(id string) (interfaces.Supplier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sup, ok := s.data[id]
	return sup, ok
}

// Add stores a supplier and persists the file. A missing ID defaults to
// the fiscal code, then the legal name.
func (s *Store) Add(sup interfaces.Supplier) error {
	if sup.ID == "" {
		sup.ID = sup.FiscalCode
	}
	if sup.ID == "" {
		sup.ID = sup.LegalName
	}
	if sup.ID == "" {
		return errors.New("supplier has no usable identifier")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sup.ID] = sup
	return s.save()
}

// Remove deletes a supplier and persists the file.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSupplierNotFound, id)
	}
	delete(s.data, id)
	return s.save()
}

// save persists the store. Callers hold mu.
func (s *Store) save() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode supplier store: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0600); err != nil {
		return fmt.Errorf("write supplier store: %w", err)
	}
	return nil
}
