// Package merge consolidates fetched artifact files into one deliverable
// PDF: each artifact's two leading pages are duplicated (the paper FIR
// travels as two copies of the first sheet pair), the processed files are
// ordered by the numeric part of their filenames, and the result is
// merged into a single output file.
package merge

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Progress reports merge stages: stage name plus (current, total) within
// the stage. May be nil.
type Progress func(stage string, current, total int)

// DeliveryString joins the artifact basenames (without extension) with a
// pipe separator, the format carriers expect in delivery notes.
func DeliveryString(paths []string) string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, stem(p))
	}
	return strings.Join(names, "|")
}

// Merge processes the given artifact files and writes the consolidated
// PDF to outPath. Files with fewer than two pages are skipped. Temporary
// per-file intermediates are cleaned up before returning.
func Merge(paths []string, outPath string, progress Progress) error {
	if len(paths) == 0 {
		return fmt.Errorf("no artifact files to merge")
	}
	report := func(stage string, current, total int) {
		if progress != nil {
			progress(stage, current, total)
		}
	}

	// Order inputs by the numeric part of their filenames before any
	// processing so the merged document follows the document numbers.
	ordered := make([]string, len(paths))
	copy(ordered, paths)
	sort.SliceStable(ordered, func(i, j int) bool {
		return extractNumber(stem(ordered[i])) < extractNumber(stem(ordered[j]))
	})

	var processed []string
	defer func() {
		for _, tmp := range processed {
			os.Remove(tmp)
		}
	}()

	for i, path := range ordered {
		report("processing", i+1, len(paths))

		count, err := api.PageCountFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if count < 2 {
			continue
		}

		tmp := filepath.Join(filepath.Dir(path), stem(path)+"_processed.pdf")
		// Duplicate the first two pages twice: 1,2,1,2.
		if err := api.CollectFile(path, tmp, []string{"1", "2", "1", "2"}, nil); err != nil {
			return fmt.Errorf("process %s: %w", path, err)
		}
		processed = append(processed, tmp)
	}

	if len(processed) == 0 {
		return fmt.Errorf("no artifact file had the two pages required")
	}

	report("merging", 0, len(processed))
	if err := api.MergeCreateFile(processed, outPath, false, nil); err != nil {
		return fmt.Errorf("merge into %s: %w", outPath, err)
	}

	report("done", len(processed), len(processed))
	return nil
}

var (
	sixDigits = regexp.MustCompile(`\b(\d{6})\b`)
	anyDigits = regexp.MustCompile(`\d+`)
)

// extractNumber pulls the ordering key out of a filename: the first
// 6-digit group when present, else the first run of digits, else 0.
func extractNumber(name string) int {
	if m := sixDigits.FindStringSubmatch(name); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := anyDigits.FindString(name); m != "" {
		n, _ := strconv.Atoi(m)
		return n
	}
	return 0
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
