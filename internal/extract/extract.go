// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract reads placename attestations and dates from charter-book
// OCR text and produces CharterRecords.
//
// Text is split into blank-line separated spans. Each span that carries
// both a placename and a date yields exactly one record; spans that do not
// are skipped and counted. Extraction is deterministic: the same input
// always produces the same records with the same IDs.
package extract

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"iter"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/charterbook/pkg/types"
)

const extractedDir = "extracted"

// textExtensions are the inputs ExtractAll picks up from the text directory.
var textExtensions = map[string]bool{
	".md":  true,
	".txt": true,
}

// BatchSummary holds counts from a batch extraction run.
type BatchSummary struct {
	Extracted int
	Skipped   int
	Failed    int
}

// Total returns the number of books processed.
func (s BatchSummary) Total() int {
	return s.Extracted + s.Skipped + s.Failed
}

// HasFailures reports whether any book failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Extractor turns OCR text into CharterRecords. It keeps no per-scan state
// and may be reused; concurrent scans share the skip log writer.
type Extractor struct {
	dates  dateFinder
	places placeFinder
	log    io.Writer
}

// scanStats counts the spans seen during one pass.
type scanStats struct {
	spans   int
	skipped int
}

// NewExtractor returns an Extractor bounded to cfg's year range. resolver
// may be nil to disable gazetteer lookups; log may be nil to discard skip
// messages.
func NewExtractor(cfg types.ExtractionConfig, resolver Resolver, log io.Writer) *Extractor {
	minYear, maxYear := cfg.MinYear, cfg.MaxYear
	if minYear == 0 && maxYear == 0 {
		d := types.DefaultPipelineConfig().Extraction
		minYear, maxYear = d.MinYear, d.MaxYear
	}
	if log == nil {
		log = io.Discard
	}
	return &Extractor{
		dates:  dateFinder{minYear: minYear, maxYear: maxYear, bareYears: cfg.BareYears},
		places: placeFinder{resolver: resolver},
		log:    log,
	}
}

// Scan returns a lazy sequence of the records in r, reading input only as
// records are consumed. The sequence is single-use since it drains r. The
// only error yielded is a read error, after which the sequence ends.
func (e *Extractor) Scan(r io.Reader, book string) iter.Seq2[types.CharterRecord, error] {
	return e.scan(r, book, nil)
}

func (e *Extractor) scan(r io.Reader, book string, stats *scanStats) iter.Seq2[types.CharterRecord, error] {
	return func(yield func(types.CharterRecord, error) bool) {
		sp := newSpanner(r)
		charter := ""
		for {
			s, ok := sp.next()
			if !ok {
				break
			}
			if stats != nil {
				stats.spans++
			}

			if n, only, ok := charterNumber(s.text); ok && !s.tooLong {
				charter = n
				if only {
					continue
				}
			}

			rec, err := e.record(book, charter, s)
			if err != nil {
				if stats != nil {
					stats.skipped++
				}
				fmt.Fprintf(e.log, "skipped %v\n", err)
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := sp.err(); err != nil {
			yield(types.CharterRecord{}, err)
		}
	}
}

// Extract returns every record in text. Read errors cannot occur for an
// in-memory string.
func (e *Extractor) Extract(text, book string) []types.CharterRecord {
	var records []types.CharterRecord
	for rec, err := range e.Scan(strings.NewReader(text), book) {
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	return records
}

// ExtractSpan reads a single span. It returns a *SpanError wrapping
// ErrNoDate or ErrNoPlacename when the span holds no attestation.
func (e *Extractor) ExtractSpan(text, book string) (types.CharterRecord, error) {
	return e.record(book, "", span{text: strings.TrimSpace(text), index: 1})
}

// record builds the record for one span. The date is looked for first, so
// a span with neither reports ErrNoDate. A line cut at maxLineSize is never
// searched.
func (e *Extractor) record(book, charter string, s span) (types.CharterRecord, error) {
	if s.tooLong {
		return types.CharterRecord{}, &SpanError{Book: book, Page: s.page, Span: s.text, Err: ErrSpanTooLong}
	}
	date, ok := e.dates.find(s.text)
	if !ok {
		return types.CharterRecord{}, &SpanError{Book: book, Page: s.page, Span: s.text, Err: ErrNoDate}
	}
	place, ok := e.places.find(s.text)
	if !ok {
		return types.CharterRecord{}, &SpanError{Book: book, Page: s.page, Span: s.text, Err: ErrNoPlacename}
	}

	charterID := fmt.Sprintf("%s:p%d:s%d", book, s.page, s.index)
	if charter != "" {
		charterID = book + ":" + charter
	}

	var notes []string
	for _, n := range []string{date.note, place.note} {
		if n != "" {
			notes = append(notes, n)
		}
	}

	return types.CharterRecord{
		ID:                  stableID(book, charterID, strconv.Itoa(s.index), place.surface, date.date),
		CharterID:           charterID,
		Book:                book,
		Page:                s.page,
		Span:                s.text,
		Placename:           place.surface,
		NormalizedPlacename: place.normalized,
		PlaceID:             place.placeID,
		Date:                date.date,
		DateText:            date.text,
		Year:                date.year,
		Confidence:          math.Round(date.confidence*place.confidence*100) / 100,
		Note:                strings.Join(notes, "; "),
	}, nil
}

// ExtractFile extracts all records from one text file.
func (e *Extractor) ExtractFile(path, book string) (*types.ExtractionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening text %s: %w", path, err)
	}
	defer f.Close()

	var stats scanStats
	result := &types.ExtractionResult{Book: book}
	for rec, err := range e.scan(f, book, &stats) {
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", path, err)
		}
		result.Records = append(result.Records, rec)
	}
	result.Spans = stats.spans
	result.Skipped = stats.skipped
	return result, nil
}

// ExtractAll processes every text file in cfg.TextDir and writes records to
// cfg.RecordsDir/extracted/<book>-records.yaml. Unchanged inputs are
// skipped; a failing file is reported and counted without stopping the
// batch.
func ExtractAll(ctx context.Context, ex *Extractor, cfg types.ExtractionConfig, w io.Writer) (BatchSummary, error) {
	outDir := filepath.Join(cfg.RecordsDir, extractedDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return BatchSummary{}, fmt.Errorf("creating output directory: %w", err)
	}

	entries, err := os.ReadDir(cfg.TextDir)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("reading text directory %s: %w", cfg.TextDir, err)
	}

	var summary BatchSummary
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || !textExtensions[ext] {
			continue
		}

		book := strings.TrimSuffix(entry.Name(), ext)
		inPath := filepath.Join(cfg.TextDir, entry.Name())
		outPath := OutputPath(cfg.RecordsDir, book)

		changed, err := hasChanged(inPath, outPath)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", book, err)
			summary.Failed++
			continue
		}
		if !changed {
			fmt.Fprintf(w, "skipped %s\n", book)
			summary.Skipped++
			continue
		}

		fmt.Fprintf(w, "extracting %s\n", book)

		result, err := ex.ExtractFile(inPath, book)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", book, err)
			summary.Failed++
			continue
		}

		if err := writeResult(outPath, result); err != nil {
			fmt.Fprintf(w, "failed  %s: write error: %v\n", book, err)
			summary.Failed++
			continue
		}

		fmt.Fprintf(w, "extracted %s (%d records, %d of %d spans skipped)\n",
			book, len(result.Records), result.Skipped, result.Spans)
		summary.Extracted++
	}

	return summary, nil
}

// OutputPath returns the record file path for a book.
func OutputPath(recordsDir, book string) string {
	return filepath.Join(recordsDir, extractedDir, book+"-records.yaml")
}

// stableID generates a deterministic ID from the record's identifying
// fields. The ID is the first 12 hex characters of their SHA-256.
func stableID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// hasChanged reports whether the text file is newer than the output file.
// Returns true if the output does not exist or the text is more recent.
func hasChanged(inPath, outPath string) (bool, error) {
	inInfo, err := os.Stat(inPath)
	if err != nil {
		return false, fmt.Errorf("stat text %s: %w", inPath, err)
	}

	outInfo, err := os.Stat(outPath)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("stat output %s: %w", outPath, err)
	}

	return inInfo.ModTime().After(outInfo.ModTime()), nil
}

// writeResult marshals the ExtractionResult to a YAML file.
func writeResult(path string, result *types.ExtractionResult) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
