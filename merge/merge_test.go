package merge

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePDF builds a minimal but well-formed PDF with the given number of
// empty pages, tracking byte offsets so the xref table is exact.
func writePDF(t *testing.T, path string, pages int) {
	t.Helper()

	var buf bytes.Buffer
	offsets := make([]int, 0, pages+2)

	buf.WriteString("%PDF-1.4\n")

	addObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	kids := ""
	for i := 0; i < pages; i++ {
		if i > 0 {
			kids += " "
		}
		kids += fmt.Sprintf("%d 0 R", 3+i)
	}

	addObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	addObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", kids, pages))
	for i := 0; i < pages; i++ {
		addObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>\nendobj\n", 3+i))
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, xrefOffset)

	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	count, err := api.PageCountFile(path)
	require.NoError(t, err)
	require.Equal(t, pages, count)
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "FIR_AB12-000002.pdf")
	second := filepath.Join(dir, "FIR_AB12-000010.pdf")
	writePDF(t, first, 2)
	writePDF(t, second, 3)

	out := filepath.Join(dir, "merged.pdf")
	var stages []string
	err := Merge([]string{second, first}, out, func(stage string, current, total int) {
		stages = append(stages, stage)
	})
	require.NoError(t, err)

	// Each input contributes its first two pages twice.
	count, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	assert.Contains(t, stages, "processing")
	assert.Contains(t, stages, "merging")
	assert.Contains(t, stages, "done")

	// Intermediates are cleaned up.
	leftovers, err := filepath.Glob(filepath.Join(dir, "*_processed.pdf"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestMergeSkipsSinglePageFiles(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "FIR_AB12-000001.pdf")
	full := filepath.Join(dir, "FIR_AB12-000002.pdf")
	writePDF(t, short, 1)
	writePDF(t, full, 2)

	out := filepath.Join(dir, "merged.pdf")
	require.NoError(t, Merge([]string{short, full}, out, nil))

	count, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 4, count, "single-page inputs are skipped")
}

func TestMergeNoUsableInput(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "FIR_AB12-000001.pdf")
	writePDF(t, short, 1)

	assert.Error(t, Merge(nil, filepath.Join(dir, "out.pdf"), nil))
	assert.Error(t, Merge([]string{short}, filepath.Join(dir, "out.pdf"), nil))
}

func TestExtractNumber(t *testing.T) {
	tests := []struct {
		name     string
		expected int
	}{
		{"FIR_AB12-000042", 42},
		{"doc-7", 7},
		{"no digits here", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, extractNumber(tt.name), tt.name)
	}
}

func TestDeliveryString(t *testing.T) {
	paths := []string{
		"/tmp/FIR_AB12-000001.pdf",
		"/tmp/FIR_AB12-000002.pdf",
	}
	assert.Equal(t, "FIR_AB12-000001|FIR_AB12-000002", DeliveryString(paths))
	assert.Equal(t, "", DeliveryString(nil))
}
