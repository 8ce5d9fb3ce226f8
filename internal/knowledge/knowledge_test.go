// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/charterbook/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Store, string) {
	t.Helper()
	tmpDir := t.TempDir()

	for _, dir := range []string{
		filepath.Join(tmpDir, "records", extractedDir),
		filepath.Join(tmpDir, "text"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	cfg := types.KnowledgeBaseConfig{
		RecordsDir: filepath.Join(tmpDir, "records"),
		TextDir:    filepath.Join(tmpDir, "text"),
		MaxResults: 20,
	}
	store, err := NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return store, tmpDir
}

func writeRecords(t *testing.T, tmpDir, book string, records []types.CharterRecord) {
	t.Helper()
	result := types.ExtractionResult{
		Book:    book,
		Records: records,
		Spans:   len(records) + 2,
		Skipped: 2,
	}
	data, err := yaml.Marshal(&result)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(tmpDir, "records", extractedDir, book+recordsSuffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeText(t *testing.T, tmpDir, name, content string) {
	t.Helper()
	path := filepath.Join(tmpDir, "text", name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func sampleRecords(book string) []types.CharterRecord {
	return []types.CharterRecord{
		{
			ID: book + "-a", CharterID: book + ":312", Book: book, Page: 6,
			Span:      "1256 april 3. Graaf Willem oorkondt te Leiden.",
			Placename: "Leiden", NormalizedPlacename: "Leiden", PlaceID: "leiden",
			Date: "1256-04-03", DateText: "1256 april 3", Year: 1256, Confidence: 0.95,
		},
		{
			ID: book + "-b", CharterID: book + ":312", Book: book, Page: 6,
			Span:      "Item, apud Dordracum, anno 1256.",
			Placename: "Dordracum", NormalizedPlacename: "Dordrecht", PlaceID: "dordrecht",
			Date: "1256", DateText: "anno 1256", Year: 1256, Confidence: 0.9,
		},
		{
			ID: book + "-c", CharterID: book + ":313", Book: book, Page: 7,
			Span:      "Datum apud Haerlem, anno domini mcclvij.",
			Placename: "Haerlem",
			Date:      "1257", DateText: "anno domini mcclvij", Year: 1257, Confidence: 0.68,
		},
		{
			ID: book + "-d", CharterID: book + ":320", Book: book, Page: 9,
			Span:      "Datum Leyden anno l270",
			Placename: "Leyden", NormalizedPlacename: "Leiden", PlaceID: "leiden",
			Date: "1270", DateText: "anno l270", Year: 1270, Confidence: 0.7,
			Note: `year corrected from OCR "l270"`,
		},
	}
}

const sampleText = `---
book: "ohz-1"
---

<!-- page 6 -->

312.

1256 april 3. Graaf Willem oorkondt te Leiden.

Item, apud Dordracum, anno 1256.

<!-- page 7 -->

Datum apud Haerlem, anno domini mcclvij.
`

// ingestHelper writes the record file for book, then ingests.
func ingestHelper(t *testing.T, store *Store, tmpDir, book string) {
	t.Helper()
	writeRecords(t, tmpDir, book, sampleRecords(book))
	var buf strings.Builder
	if _, err := store.Ingest(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
}

func recordIDs(records []types.CharterRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

// --- schema tests ---

func TestNewStoreCreatesSchema(t *testing.T) {
	store, _ := testSetup(t)

	for _, table := range []string{"books", "records", "indexing_status"} {
		var count int
		err := store.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("table %s not found", table)
		}
	}
}

func TestNewStoreCreatesDBFile(t *testing.T) {
	_, tmpDir := testSetup(t)
	if _, err := os.Stat(filepath.Join(tmpDir, "records", indexDir, dbFile)); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestNewStoreDefaultMaxResults(t *testing.T) {
	store, err := NewStore(types.KnowledgeBaseConfig{RecordsDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if store.maxResults != defaultResults {
		t.Errorf("maxResults = %d, want %d", store.maxResults, defaultResults)
	}
}

// --- ingestion tests ---

func TestIngest(t *testing.T) {
	store, tmpDir := testSetup(t)
	writeRecords(t, tmpDir, "ohz-1", sampleRecords("ohz-1"))

	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", summary.Indexed)
	}
	if summary.Total() != 1 || summary.HasFailures() {
		t.Errorf("summary = %+v", summary)
	}

	var count int
	if err := store.db.QueryRow(`SELECT count(*) FROM records`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 4 {
		t.Errorf("record count = %d, want 4", count)
	}

	var spans, skipped int
	if err := store.db.QueryRow(`SELECT spans, skipped FROM books WHERE id = 'ohz-1'`).Scan(&spans, &skipped); err != nil {
		t.Fatal(err)
	}
	if spans != 6 || skipped != 2 {
		t.Errorf("book spans/skipped = %d/%d, want 6/2", spans, skipped)
	}
}

func TestIngestStoresAllFields(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir, "ohz-1")

	results, err := store.Retrieve(context.Background(), QueryOptions{Charter: "ohz-1:320"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	want := sampleRecords("ohz-1")[3]
	if !reflect.DeepEqual(results[0], want) {
		t.Errorf("record = %+v\nwant     %+v", results[0], want)
	}
}

func TestIngestWritesExportYAML(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir, "ohz-1")

	if _, err := os.Stat(store.ExportPath("yaml")); err != nil {
		t.Error("export.yaml not written after ingestion")
	}
}

func TestIngestIgnoresOtherFiles(t *testing.T) {
	store, tmpDir := testSetup(t)
	path := filepath.Join(tmpDir, "records", extractedDir, "notes.yaml")
	if err := os.WriteFile(path, []byte("not: records"), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total() != 0 {
		t.Errorf("Total = %d, want 0", summary.Total())
	}
}

func TestIngestParseFailure(t *testing.T) {
	store, tmpDir := testSetup(t)
	path := filepath.Join(tmpDir, "records", extractedDir, "bad"+recordsSuffix)
	if err := os.WriteFile(path, []byte("records: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	ingestHelper(t, store, tmpDir, "ohz-1")

	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Failed != 1 || !summary.HasFailures() {
		t.Errorf("Failed = %d, want 1", summary.Failed)
	}
	if !strings.Contains(buf.String(), "failed  bad: parse error") {
		t.Errorf("output should report parse failure: %s", buf.String())
	}
}

func TestIngestMissingDir(t *testing.T) {
	store, err := NewStore(types.KnowledgeBaseConfig{RecordsDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	var buf strings.Builder
	if _, err := store.Ingest(context.Background(), &buf); err == nil {
		t.Error("expected error for missing extracted directory")
	}
}

// --- incremental update tests ---

func TestIngestSkipsUnchanged(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir, "ohz-1")

	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", summary.Skipped)
	}
	if summary.Indexed != 0 {
		t.Errorf("Indexed = %d, want 0", summary.Indexed)
	}
	if !strings.Contains(buf.String(), "skipped") {
		t.Errorf("output should contain 'skipped': %s", buf.String())
	}
}

func TestIngestUpdatesChanged(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir, "ohz-1")

	updated := []types.CharterRecord{{
		ID: "ohz-1-new", CharterID: "ohz-1:400", Book: "ohz-1", Page: 30,
		Span: "Actum in Delf anno 1290", Placename: "Delf",
		Date: "1290", DateText: "anno 1290", Year: 1290, Confidence: 0.72,
	}}
	writeRecords(t, tmpDir, "ohz-1", updated)

	path := filepath.Join(tmpDir, "records", extractedDir, "ohz-1"+recordsSuffix)
	future := time.Now().Add(time.Second)
	os.Chtimes(path, future, future)

	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Updated != 1 {
		t.Errorf("Updated = %d, want 1", summary.Updated)
	}

	results, err := store.Retrieve(context.Background(), QueryOptions{Book: "ohz-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (old records should be removed)", len(results))
	}
	if results[0].Placename != "Delf" {
		t.Errorf("placename = %q, want Delf", results[0].Placename)
	}
}

func TestIngestSummaryOutput(t *testing.T) {
	store, tmpDir := testSetup(t)
	writeRecords(t, tmpDir, "ohz-1", sampleRecords("ohz-1"))

	var buf strings.Builder
	if _, err := store.Ingest(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	output := buf.String()

	if !strings.Contains(output, "indexing ohz-1 (4 records)") {
		t.Errorf("output should name the book: %s", output)
	}
	if !strings.Contains(output, "indexed: 1") {
		t.Errorf("output should contain 'indexed: 1': %s", output)
	}
	if !strings.Contains(output, "skipped: 0") {
		t.Errorf("output should contain 'skipped: 0': %s", output)
	}
}

func TestIngestCancelled(t *testing.T) {
	store, tmpDir := testSetup(t)
	writeRecords(t, tmpDir, "ohz-1", sampleRecords("ohz-1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf strings.Builder
	if _, err := store.Ingest(ctx, &buf); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

// --- retrieval tests ---

func TestRetrieveFilters(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir, "ohz-1")

	tests := []struct {
		name string
		opts QueryOptions
		want []string
	}{
		{"no filter", QueryOptions{}, []string{"ohz-1-a", "ohz-1-b", "ohz-1-c", "ohz-1-d"}},
		{"placename substring", QueryOptions{Placename: "leid"}, []string{"ohz-1-a", "ohz-1-d"}},
		{"normalized placename", QueryOptions{Placename: "Dordrecht"}, []string{"ohz-1-b"}},
		{"like wildcard escaped", QueryOptions{Placename: "%"}, []string{}},
		{"place id", QueryOptions{PlaceID: "leiden"}, []string{"ohz-1-a", "ohz-1-d"}},
		{"charter", QueryOptions{Charter: "ohz-1:312"}, []string{"ohz-1-a", "ohz-1-b"}},
		{"year from", QueryOptions{YearFrom: 1257}, []string{"ohz-1-c", "ohz-1-d"}},
		{"year to", QueryOptions{YearTo: 1256}, []string{"ohz-1-a", "ohz-1-b"}},
		{"year range", QueryOptions{YearFrom: 1257, YearTo: 1260}, []string{"ohz-1-c"}},
		{"combined", QueryOptions{Placename: "leiden", YearFrom: 1260}, []string{"ohz-1-d"}},
		{"other book", QueryOptions{Book: "ohz-2"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := store.Retrieve(context.Background(), tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			got := recordIDs(results)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetrieveRespectsMaxResults(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir, "ohz-1")

	results, err := store.Retrieve(context.Background(), QueryOptions{MaxResults: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("got %d results, want 2", len(results))
	}
}

func TestRetrieveSortOrder(t *testing.T) {
	store, tmpDir := testSetup(t)
	writeRecords(t, tmpDir, "ohz-2", []types.CharterRecord{{
		ID: "z-first", CharterID: "ohz-2:1", Book: "ohz-2", Page: 1,
		Span: "apud Delf anno 1300", Placename: "Delf", Date: "1300", DateText: "anno 1300", Year: 1300,
	}})
	ingestHelper(t, store, tmpDir, "ohz-1")

	results, err := store.Retrieve(context.Background(), QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	got := recordIDs(results)
	want := []string{"ohz-1-a", "ohz-1-b", "ohz-1-c", "ohz-1-d", "z-first"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestQueryOptionsIsEmpty(t *testing.T) {
	if !(QueryOptions{MaxResults: 5}).IsEmpty() {
		t.Error("MaxResults alone should count as empty")
	}
	if (QueryOptions{YearTo: 1300}).IsEmpty() {
		t.Error("a year bound is a filter")
	}
}

// --- place summaries ---

func TestPlaces(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir, "ohz-1")

	places, err := store.Places(context.Background(), "ohz-1")
	if err != nil {
		t.Fatal(err)
	}
	want := []PlaceSummary{
		{Place: "Leiden", PlaceID: "leiden", Attestations: 2, Charters: 2, FirstYear: 1256, LastYear: 1270},
		{Place: "Dordrecht", PlaceID: "dordrecht", Attestations: 1, Charters: 1, FirstYear: 1256, LastYear: 1256},
		{Place: "Haerlem", Attestations: 1, Charters: 1, FirstYear: 1257, LastYear: 1257},
	}
	if !reflect.DeepEqual(places, want) {
		t.Errorf("places = %+v\nwant     %+v", places, want)
	}

	none, err := store.Places(context.Background(), "ohz-9")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("got %d places for unknown book, want 0", len(none))
	}
}

// --- trace tests ---

func TestTrace(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir, "ohz-1")
	writeText(t, tmpDir, "ohz-1.md", sampleText)

	tr, err := store.Trace(context.Background(), "ohz-1-b")
	if err != nil {
		t.Fatal(err)
	}
	if tr.Record.Placename != "Dordracum" {
		t.Errorf("record placename = %q", tr.Record.Placename)
	}
	if !strings.Contains(tr.PageText, "Item, apud Dordracum, anno 1256.") {
		t.Errorf("page text should contain the span: %q", tr.PageText)
	}
	if strings.Contains(tr.PageText, "Haerlem") {
		t.Errorf("page text should stop at the next page marker: %q", tr.PageText)
	}
	if strings.Contains(tr.PageText, "<!--") || strings.Contains(tr.PageText, "book:") {
		t.Errorf("page text should not include markers or front matter: %q", tr.PageText)
	}
	if filepath.Base(tr.Source) != "ohz-1.md" {
		t.Errorf("source = %q", tr.Source)
	}
}

func TestTracePlainText(t *testing.T) {
	store, tmpDir := testSetup(t)
	writeRecords(t, tmpDir, "notes", []types.CharterRecord{{
		ID: "n1", CharterID: "notes:p0:s1", Book: "notes",
		Span: "Datum apud Delf anno 1290", Placename: "Delf", Date: "1290", DateText: "anno 1290", Year: 1290,
	}})
	var buf strings.Builder
	if _, err := store.Ingest(context.Background(), &buf); err != nil {
		t.Fatal(err)
	}
	writeText(t, tmpDir, "notes.txt", "Datum apud Delf anno 1290\n")

	tr, err := store.Trace(context.Background(), "n1")
	if err != nil {
		t.Fatal(err)
	}
	if tr.PageText != "Datum apud Delf anno 1290" {
		t.Errorf("page text = %q", tr.PageText)
	}
}

func TestTraceRecordNotFound(t *testing.T) {
	store, _ := testSetup(t)

	_, err := store.Trace(context.Background(), "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestTraceTextMissing(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir, "ohz-1")

	if _, err := store.Trace(context.Background(), "ohz-1-a"); err == nil {
		t.Error("expected error when source text is missing")
	}
}

func TestPageText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.md")
	content := "intro line\n\n<!-- page 1 -->\n\nfirst\n\n<!-- page 2 -->\n\nsecond\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		page int
		want string
	}{
		{0, "intro line"},
		{1, "first"},
		{2, "second"},
		{3, ""},
	}
	for _, tt := range tests {
		got, err := pageText(path, tt.page)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("pageText(page %d) = %q, want %q", tt.page, got, tt.want)
		}
	}
}

// --- export tests ---

func TestExportYAML(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir, "ohz-1")

	if err := store.ExportYAML(context.Background(), QueryOptions{}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(store.ExportPath("yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var entries []ExportEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	if entries[1].Place == nil || entries[1].Place.Name != "Dordrecht" {
		t.Errorf("entry place = %+v, want Dordrecht", entries[1].Place)
	}
	if entries[2].Place != nil {
		t.Errorf("unresolved entry should have no place: %+v", entries[2].Place)
	}
}

func TestExportJSON(t *testing.T) {
	store, tmpDir := testSetup(t)
	ingestHelper(t, store, tmpDir, "ohz-1")

	if err := store.ExportJSON(context.Background(), QueryOptions{PlaceID: "leiden"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(store.ExportPath("json"))
	if err != nil {
		t.Fatal(err)
	}
	var entries []ExportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Place == nil || e.Place.ID != "leiden" {
			t.Errorf("entry %s place = %+v, want leiden", e.ID, e.Place)
		}
	}
}

func TestIngestSummaryTotal(t *testing.T) {
	s := IngestSummary{Indexed: 1, Updated: 2, Skipped: 3, Failed: 4}
	if s.Total() != 10 {
		t.Errorf("Total() = %d, want 10", s.Total())
	}
}
