// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge indexes extracted CharterRecords in SQLite and answers
// structured queries over them: by placename, charter, book and year, with
// per-place attestation summaries and trace-back to the source page.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/charterbook/pkg/types"
)

const (
	extractedDir   = "extracted"
	indexDir       = "index"
	dbFile         = "charters.db"
	recordsSuffix  = "-records.yaml"
	defaultResults = 20
)

// Store manages the record index SQLite database.
type Store struct {
	db         *sql.DB
	recordsDir string
	textDir    string
	maxResults int
}

// NewStore opens or creates the record database at
// recordsDir/index/charters.db and creates the schema if it does not exist.
func NewStore(cfg types.KnowledgeBaseConfig) (*Store, error) {
	dbDir := filepath.Join(cfg.RecordsDir, indexDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	dbPath := filepath.Join(dbDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultResults
	}

	s := &Store{
		db:         db,
		recordsDir: cfg.RecordsDir,
		textDir:    cfg.TextDir,
		maxResults: maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id TEXT PRIMARY KEY,
			spans INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			charter_id TEXT NOT NULL,
			book TEXT NOT NULL REFERENCES books(id),
			page INTEGER NOT NULL,
			span TEXT NOT NULL,
			placename TEXT NOT NULL,
			normalized_placename TEXT,
			place_id TEXT,
			date TEXT NOT NULL,
			date_text TEXT NOT NULL,
			year INTEGER NOT NULL,
			confidence REAL,
			note TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_book ON records(book)`,
		`CREATE INDEX IF NOT EXISTS idx_records_year ON records(year)`,
		`CREATE INDEX IF NOT EXISTS idx_records_place_id ON records(place_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_charter ON records(charter_id)`,
		`CREATE TABLE IF NOT EXISTS indexing_status (
			book TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// IngestSummary holds counts from a record indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of books processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// HasFailures reports whether any record file failed to load.
func (s IngestSummary) HasFailures() bool {
	return s.Failed > 0
}

// Ingest reads record files from recordsDir/extracted/ and populates the
// database. Files whose modification time matches the last run are
// skipped; changed files replace the book's records. When anything changed
// it writes export.yaml.
func (s *Store) Ingest(ctx context.Context, w io.Writer) (IngestSummary, error) {
	extractDir := filepath.Join(s.recordsDir, extractedDir)

	entries, err := os.ReadDir(extractDir)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("reading extraction directory %s: %w", extractDir, err)
	}

	var summary IngestSummary

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), recordsSuffix) {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		book := strings.TrimSuffix(entry.Name(), recordsSuffix)
		filePath := filepath.Join(extractDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", book, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE book = ?`, book,
		).Scan(&storedModTime)

		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", book)
			summary.Skipped++
			continue
		}

		isUpdate := err == nil

		data, err := os.ReadFile(filePath)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", book, err)
			summary.Failed++
			continue
		}

		var result types.ExtractionResult
		if err := yaml.Unmarshal(data, &result); err != nil {
			fmt.Fprintf(w, "failed  %s: parse error: %v\n", book, err)
			summary.Failed++
			continue
		}

		if err := s.ingestBook(ctx, book, &result, modTime); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", book, err)
			summary.Failed++
			continue
		}

		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d records)\n", book, len(result.Records))
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d records)\n", book, len(result.Records))
			summary.Indexed++
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	if summary.Indexed > 0 || summary.Updated > 0 {
		if err := s.ExportYAML(ctx, QueryOptions{}); err != nil {
			fmt.Fprintf(w, "warning: export.yaml write failed: %v\n", err)
		}
	}

	return summary, nil
}

func (s *Store) ingestBook(ctx context.Context, book string, result *types.ExtractionResult, modTime string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE book = ?`, book); err != nil {
		return fmt.Errorf("deleting old records: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO books (id, spans, skipped) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET spans=excluded.spans, skipped=excluded.skipped`,
		book, result.Spans, result.Skipped,
	)
	if err != nil {
		return fmt.Errorf("upserting book: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO records (id, charter_id, book, page, span, placename,
			normalized_placename, place_id, date, date_text, year, confidence, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range result.Records {
		_, err := stmt.ExecContext(ctx,
			r.ID, r.CharterID, book, r.Page, r.Span, r.Placename,
			r.NormalizedPlacename, r.PlaceID, r.Date, r.DateText, r.Year,
			r.Confidence, r.Note,
		)
		if err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexing_status (book, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(book) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		book, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}

	return tx.Commit()
}
