// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/charterbook/pkg/types"
)

// ErrNotFound is returned by Trace for an unknown record ID.
var ErrNotFound = errors.New("record not found")

// QueryOptions holds record query filters. Empty fields do not filter.
type QueryOptions struct {
	// Placename matches a case-insensitive substring of the surface or
	// normalized placename.
	Placename string

	// PlaceID filters by gazetteer identifier.
	PlaceID string

	// Charter filters by charter identifier.
	Charter string

	// Book filters by source book.
	Book string

	// YearFrom and YearTo bound the year, inclusive. Zero is unbounded.
	YearFrom int
	YearTo   int

	// MaxResults limits result count. Zero uses the store default.
	MaxResults int
}

// IsEmpty reports whether the query has no filters.
func (q QueryOptions) IsEmpty() bool {
	return q.Placename == "" && q.PlaceID == "" && q.Charter == "" && q.Book == "" &&
		q.YearFrom == 0 && q.YearTo == 0
}

const recordColumns = `r.id, r.charter_id, r.book, r.page, r.span, r.placename,
	r.normalized_placename, r.place_id, r.date, r.date_text, r.year, r.confidence, r.note`

// Retrieve returns the records matching opts, ordered by book, page and
// charter.
func (s *Store) Retrieve(ctx context.Context, opts QueryOptions) ([]types.CharterRecord, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	where, args := opts.where()
	query := `SELECT ` + recordColumns + ` FROM records r` + where +
		` ORDER BY r.book, r.page, r.charter_id, r.rowid LIMIT ?`
	args = append(args, maxResults)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var results []types.CharterRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// where builds the WHERE clause shared by Retrieve and Places.
func (q QueryOptions) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.Placename != "" {
		pattern := "%" + escapeLike(strings.ToLower(q.Placename)) + "%"
		clauses = append(clauses,
			`(lower(r.placename) LIKE ? ESCAPE '\' OR lower(coalesce(r.normalized_placename, '')) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if q.PlaceID != "" {
		clauses = append(clauses, `r.place_id = ?`)
		args = append(args, q.PlaceID)
	}
	if q.Charter != "" {
		clauses = append(clauses, `r.charter_id = ?`)
		args = append(args, q.Charter)
	}
	if q.Book != "" {
		clauses = append(clauses, `r.book = ?`)
		args = append(args, q.Book)
	}
	if q.YearFrom != 0 {
		clauses = append(clauses, `r.year >= ?`)
		args = append(args, q.YearFrom)
	}
	if q.YearTo != 0 {
		clauses = append(clauses, `r.year <= ?`)
		args = append(args, q.YearTo)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (types.CharterRecord, error) {
	var (
		r          types.CharterRecord
		normalized sql.NullString
		placeID    sql.NullString
		confidence sql.NullFloat64
		note       sql.NullString
	)
	if err := row.Scan(
		&r.ID, &r.CharterID, &r.Book, &r.Page, &r.Span, &r.Placename,
		&normalized, &placeID, &r.Date, &r.DateText, &r.Year, &confidence, &note,
	); err != nil {
		return types.CharterRecord{}, fmt.Errorf("scanning row: %w", err)
	}
	r.NormalizedPlacename = normalized.String
	r.PlaceID = placeID.String
	r.Confidence = confidence.Float64
	r.Note = note.String
	return r, nil
}

// PlaceSummary counts the attestations of one place.
type PlaceSummary struct {
	Place        string `json:"place" yaml:"place"`
	PlaceID      string `json:"place_id,omitempty" yaml:"place_id,omitempty"`
	Attestations int    `json:"attestations" yaml:"attestations"`
	Charters     int    `json:"charters" yaml:"charters"`
	FirstYear    int    `json:"first_year" yaml:"first_year"`
	LastYear     int    `json:"last_year" yaml:"last_year"`
}

// Places summarizes attestations per place, most attested first. Records
// are grouped by normalized name when resolved, else by surface form. An
// empty book covers every book.
func (s *Store) Places(ctx context.Context, book string) ([]PlaceSummary, error) {
	where, args := QueryOptions{Book: book}.where()
	query := `SELECT coalesce(nullif(r.normalized_placename, ''), r.placename) AS place,
			coalesce(max(r.place_id), ''),
			count(*), count(DISTINCT r.charter_id), min(r.year), max(r.year)
		FROM records r` + where + `
		GROUP BY place
		ORDER BY count(*) DESC, place`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarizing places: %w", err)
	}
	defer rows.Close()

	var out []PlaceSummary
	for rows.Next() {
		var p PlaceSummary
		if err := rows.Scan(&p.Place, &p.PlaceID, &p.Attestations, &p.Charters, &p.FirstYear, &p.LastYear); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TraceResult is a record with the text of the page it was read from.
type TraceResult struct {
	Record   types.CharterRecord `json:"record" yaml:"record"`
	Source   string              `json:"source" yaml:"source"`
	PageText string              `json:"page_text" yaml:"page_text"`
}

// Trace looks up a record and returns the text of its source page, read
// from textDir/<book>.md (or .txt).
func (s *Store) Trace(ctx context.Context, id string) (*TraceResult, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records r WHERE r.id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("looking up record: %w", err)
	}

	var lastErr error
	for _, ext := range []string{".md", ".txt"} {
		path := filepath.Join(s.textDir, rec.Book+ext)
		text, err := pageText(path, rec.Page)
		if err != nil {
			lastErr = err
			continue
		}
		return &TraceResult{Record: rec, Source: path, PageText: text}, nil
	}
	return nil, lastErr
}

var pageMarkerRe = regexp.MustCompile(`^<!--\s*page\s+(\d+)\s*-->$`)

// pageText returns the text between the marker for page and the next page
// marker, skipping front matter. Page 0 is the text before the first marker.
func pageText(path string, page int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		lines     []string
		current   int
		first     = true
		inFront   bool
		capturing = page == 0
	)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if first && trimmed != "" {
			first = false
			if trimmed == "---" {
				inFront = true
				continue
			}
		}
		if inFront {
			if trimmed == "---" {
				inFront = false
			}
			continue
		}

		if m := pageMarkerRe.FindStringSubmatch(trimmed); m != nil {
			current, _ = strconv.Atoi(m[1])
			if capturing {
				break
			}
			capturing = current == page
			continue
		}
		if capturing {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
