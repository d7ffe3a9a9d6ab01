package interfaces

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentUnmarshal(t *testing.T) {
	raw := `{
		"numero_fir": "FIR AB12/000001",
		"codice_blocco": "AB12",
		"progressivo": 1,
		"data_vidimazione": "2026-08-01",
		"annullato": false
	}`

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, "FIR AB12/000001", doc.Number)
	assert.Equal(t, "AB12", doc.BlockCode)
	assert.Equal(t, 1, doc.Sequence)
	assert.Equal(t, 2026, doc.IssuedAt.Year())
	assert.Equal(t, time.August, doc.IssuedAt.Month())
	assert.False(t, doc.Cancelled)
}

func TestDateFlexibleFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		zero bool
	}{
		{"plain date", `"2026-08-01"`, false},
		{"rfc3339", `"2026-08-01T10:30:00Z"`, false},
		{"rfc3339 with offset", `"2026-08-01T10:30:00+02:00"`, false},
		{"null", `null`, true},
		{"empty string", `""`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &d))
			assert.Equal(t, tt.zero, d.IsZero())
		})
	}

	var d Date
	assert.Error(t, json.Unmarshal([]byte(`"31/08/2026"`), &d))
}

func TestDateMarshal(t *testing.T) {
	d := Date{Time: time.Date(2026, 8, 1, 15, 4, 5, 0, time.UTC)}
	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2026-08-01"`, string(raw))

	raw, err = json.Marshal(Date{})
	require.NoError(t, err)
	assert.Equal(t, `null`, string(raw))
}

func TestDocumentStatus(t *testing.T) {
	assert.Equal(t, StatusUnknown, Document{}.Status())
	assert.Equal(t, StatusActive, Document{Number: "FIR AB12/000001"}.Status())
	assert.Equal(t, StatusCancelled, Document{Number: "FIR AB12/000001", Cancelled: true}.Status())

	assert.True(t, Document{Number: "FIR AB12/000001"}.HasArtifact())
	assert.False(t, Document{Number: "FIR AB12/000001", Cancelled: true}.HasArtifact())
	assert.False(t, Document{}.HasArtifact())
}

func TestDocumentKey(t *testing.T) {
	doc := Document{BlockCode: "AB12", Sequence: 7}
	assert.Equal(t, "AB12/7", doc.Key())
}
