package suppliers

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecotrace-srl/rentri-client/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewStoreMissingFileStartsEmpty(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "suppliers.json"), testLogger())
	require.NoError(t, err)
	assert.Empty(t, store.List())
}

func TestNewStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suppliers.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	_, err := NewStore(path, testLogger())
	assert.Error(t, err)
}

func TestAddGetRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suppliers.json")
	store, err := NewStore(path, testLogger())
	require.NoError(t, err)

	sup := interfaces.Supplier{
		P12Path:    "/keys/ecotrace.p12",
		Password:   "secret",
		LegalName:  "Ecotrace S.r.l.",
		FiscalCode: "01234567890",
	}
	require.NoError(t, store.Add(sup))

	// The id defaults to the fiscal code.
	got, ok := store.Get("01234567890")
	require.True(t, ok)
	assert.Equal(t, "Ecotrace S.r.l.", got.LegalName)

	require.NoError(t, store.Remove("01234567890"))
	_, ok = store.Get("01234567890")
	assert.False(t, ok)

	err = store.Remove("01234567890")
	assert.ErrorIs(t, err, ErrSupplierNotFound)
}

func TestAddRequiresAnIdentifier(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "suppliers.json"), testLogger())
	require.NoError(t, err)
	assert.Error(t, store.Add(interfaces.Supplier{P12Path: "/keys/x.p12"}))

	// A legal name alone is enough.
	require.NoError(t, store.Add(interfaces.Supplier{LegalName: "Solo Nome S.p.A."}))
	_, ok := store.Get("Solo Nome S.p.A.")
	assert.True(t, ok)
}

func TestListSortedByLegalName(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "suppliers.json"), testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Add(interfaces.Supplier{FiscalCode: "2", LegalName: "Zeta S.r.l."}))
	require.NoError(t, store.Add(interfaces.Supplier{FiscalCode: "1", LegalName: "Alfa S.p.A."}))
	require.NoError(t, store.Add(interfaces.Supplier{FiscalCode: "3", LegalName: "Media S.n.c."}))

	all := store.List()
	require.Len(t, all, 3)
	assert.Equal(t, "Alfa S.p.A.", all[0].LegalName)
	assert.Equal(t, "Media S.n.c.", all[1].LegalName)
	assert.Equal(t, "Zeta S.r.l.", all[2].LegalName)
}

func TestSearch(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "suppliers.json"), testLogger())
	require.NoError(t, err)

	require.NoError(t, store.Add(interfaces.Supplier{FiscalCode: "01234567890", LegalName: "Ecotrace S.r.l."}))
	require.NoError(t, store.Add(interfaces.Supplier{FiscalCode: "98765432109", LegalName: "Altra Azienda"}))

	assert.Len(t, store.Search(""), 2)
	assert.Len(t, store.Search("ecotrace"), 1)
	assert.Len(t, store.Search("98765"), 1)
	assert.Empty(t, store.Search("nothing"))
}

func TestStorePersistsAcrossReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suppliers.json")

	store, err := NewStore(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Add(interfaces.Supplier{FiscalCode: "01234567890", LegalName: "Ecotrace S.r.l."}))

	reloaded, err := NewStore(path, testLogger())
	require.NoError(t, err)
	got, ok := reloaded.Get("01234567890")
	require.True(t, ok)
	assert.Equal(t, "Ecotrace S.r.l.", got.LegalName)
}

func TestPreferences(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.json")

	// A missing file yields the defaults.
	prefs, err := LoadPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, "RENTRI", prefs.LogoText)
	assert.Equal(t, "dark", prefs.Theme)

	prefs.Theme = "light"
	prefs.APIStatusVerified = true
	require.NoError(t, SavePreferences(path, prefs))

	loaded, err := LoadPreferences(path)
	require.NoError(t, err)
	assert.Equal(t, "light", loaded.Theme)
	assert.True(t, loaded.APIStatusVerified)
	// Untouched keys keep their persisted value, defaults fill the rest.
	assert.Equal(t, "RENTRI", loaded.LogoText)
}
