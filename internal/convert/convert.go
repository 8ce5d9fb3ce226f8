// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert turns a book directory of hOCR pages into one text
// document with page markers, ready for record extraction.
package convert

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/charterbook/internal/hocr"
	"github.com/pdiddy/charterbook/pkg/types"
)

// hocrExtensions are the page file extensions picked up from a book directory.
var hocrExtensions = map[string]bool{
	".hocr":  true,
	".html":  true,
	".xhtml": true,
}

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Partial   int
	Skipped   int
	Failed    int
}

// Total returns the total number of books processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Partial + r.Skipped + r.Failed
}

// HasFailures reports whether any book failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// pageFile is an hOCR file with the page number derived from its name.
type pageFile struct {
	path   string
	number int
}

// ConvertBook converts every hOCR page in bookDir into textDir/<book>.md,
// where <book> is the directory's base name. It returns ConversionNone when
// the output is newer than every page, ConversionPartial when some pages
// failed to parse, and ConversionFailed when nothing could be written.
func ConvertBook(bookDir, textDir string, cfg types.LayoutConfig, w io.Writer) types.ConversionStatus {
	book := filepath.Base(filepath.Clean(bookDir))
	outPath := filepath.Join(textDir, book+".md")

	pages, err := listPages(bookDir)
	if err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", book, err)
		return types.ConversionFailed
	}
	if len(pages) == 0 {
		fmt.Fprintf(w, "failed:  %s (no hOCR pages)\n", book)
		return types.ConversionFailed
	}

	if upToDate(outPath, pages) {
		fmt.Fprintf(w, "skipped: %s (up to date)\n", book)
		return types.ConversionNone
	}

	var body strings.Builder
	failedPages := 0
	for _, pf := range pages {
		page, err := hocr.ParseFile(pf.path, pf.number, cfg)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s page %d (%v)\n", book, pf.number, err)
			failedPages++
			continue
		}
		writePage(&body, page)
	}
	if failedPages == len(pages) {
		fmt.Fprintf(w, "failed:  %s (no page could be parsed)\n", book)
		return types.ConversionFailed
	}

	if err := os.MkdirAll(textDir, 0o755); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", book, err)
		return types.ConversionFailed
	}

	content := addFrontmatter(book, bookDir, len(pages)-failedPages) + body.String()
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", book, err)
		return types.ConversionFailed
	}

	if failedPages > 0 {
		fmt.Fprintf(w, "partial: %s (%d of %d pages)\n", book, len(pages)-failedPages, len(pages))
		return types.ConversionPartial
	}
	fmt.Fprintf(w, "converted: %s (%d pages)\n", book, len(pages))
	return types.ConversionDone
}

// ConvertBooks converts each book directory, printing per-book status to w
// and returning a summary.
func ConvertBooks(bookDirs []string, textDir string, cfg types.LayoutConfig, w io.Writer) BatchResult {
	var result BatchResult
	for _, dir := range bookDirs {
		switch ConvertBook(dir, textDir, cfg, w) {
		case types.ConversionDone:
			result.Converted++
		case types.ConversionPartial:
			result.Partial++
		case types.ConversionNone:
			result.Skipped++
		case types.ConversionFailed:
			result.Failed++
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d converted, %d partial, %d skipped, %d failed (total: %d)\n",
		result.Converted, result.Partial, result.Skipped, result.Failed, result.Total())
	return result
}

// ConvertAll converts every book subdirectory of cfg.HOCRDir.
func ConvertAll(cfg types.ConversionConfig, w io.Writer) (BatchResult, error) {
	entries, err := os.ReadDir(cfg.HOCRDir)
	if err != nil {
		return BatchResult{}, fmt.Errorf("reading hOCR directory %s: %w", cfg.HOCRDir, err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, filepath.Join(cfg.HOCRDir, e.Name()))
		}
	}
	return ConvertBooks(dirs, cfg.TextDir, cfg.LayoutConfig, w), nil
}

// listPages returns the hOCR files in dir ordered by page number. Files
// without a number in their name sort after numbered pages, by name.
func listPages(dir string) ([]pageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var pages []pageFile
	for _, e := range entries {
		if e.IsDir() || !hocrExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		path := filepath.Join(dir, e.Name())
		n, ok := hocr.PageNumber(path)
		if !ok {
			n = 0
		}
		pages = append(pages, pageFile{path: path, number: n})
	}

	sort.SliceStable(pages, func(i, j int) bool {
		a, b := pages[i], pages[j]
		if (a.number == 0) != (b.number == 0) {
			return b.number == 0
		}
		if a.number != b.number {
			return a.number < b.number
		}
		return a.path < b.path
	})
	return pages, nil
}

// upToDate reports whether outPath exists and is newer than every page.
func upToDate(outPath string, pages []pageFile) bool {
	out, err := os.Stat(outPath)
	if err != nil {
		return false
	}
	for _, pf := range pages {
		info, err := os.Stat(pf.path)
		if err != nil || info.ModTime().After(out.ModTime()) {
			return false
		}
	}
	return true
}

// writePage appends a page marker followed by the page's paragraphs, each
// separated by a blank line.
func writePage(b *strings.Builder, page *types.Page) {
	fmt.Fprintf(b, "<!-- page %d -->\n\n", page.Number)
	for _, para := range page.Paragraphs {
		if para.Text == "" {
			continue
		}
		b.WriteString(para.Text)
		b.WriteString("\n\n")
	}
}

// addFrontmatter returns the YAML front matter block for a converted book.
func addFrontmatter(book, sourceDir string, pages int) string {
	ts := time.Now().UTC().Format(time.RFC3339)
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "book: %q\n", book)
	fmt.Fprintf(&b, "source_dir: %q\n", sourceDir)
	fmt.Fprintf(&b, "pages: %d\n", pages)
	fmt.Fprintf(&b, "converted_at: %q\n", ts)
	b.WriteString("---\n\n")
	return b.String()
}
