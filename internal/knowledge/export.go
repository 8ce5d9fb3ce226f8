// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"
)

// ExportEntry is one attestation in the hand-off files consumed by graph
// tooling.
type ExportEntry struct {
	ID         string       `json:"id" yaml:"id"`
	CharterID  string       `json:"charter_id" yaml:"charter_id"`
	Book       string       `json:"book" yaml:"book"`
	Page       int          `json:"page" yaml:"page"`
	Placename  string       `json:"placename" yaml:"placename"`
	Place      *ExportPlace `json:"place,omitempty" yaml:"place,omitempty"`
	Date       string       `json:"date" yaml:"date"`
	Year       int          `json:"year" yaml:"year"`
	Confidence float64      `json:"confidence" yaml:"confidence"`
	Note       string       `json:"note,omitempty" yaml:"note,omitempty"`
	Span       string       `json:"span" yaml:"span"`
}

// ExportPlace is the resolved gazetteer place of an entry.
type ExportPlace struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	Name string `json:"name" yaml:"name"`
}

const exportLimit = 1000000

// ExportYAML writes matching records to recordsDir/index/export.yaml.
func (s *Store) ExportYAML(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return os.WriteFile(s.ExportPath("yaml"), data, 0o644)
}

// ExportJSON writes matching records to recordsDir/index/export.json.
func (s *Store) ExportJSON(ctx context.Context, opts QueryOptions) error {
	entries, err := s.exportEntries(ctx, opts)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return os.WriteFile(s.ExportPath("json"), data, 0o644)
}

// ExportPath returns the export file path for the given extension.
func (s *Store) ExportPath(ext string) string {
	return filepath.Join(s.recordsDir, indexDir, "export."+ext)
}

func (s *Store) exportEntries(ctx context.Context, opts QueryOptions) ([]ExportEntry, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = exportLimit
	}
	records, err := s.Retrieve(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("querying for export: %w", err)
	}

	entries := make([]ExportEntry, len(records))
	for i, r := range records {
		entries[i] = ExportEntry{
			ID:         r.ID,
			CharterID:  r.CharterID,
			Book:       r.Book,
			Page:       r.Page,
			Placename:  r.Placename,
			Date:       r.Date,
			Year:       r.Year,
			Confidence: r.Confidence,
			Note:       r.Note,
			Span:       r.Span,
		}
		if r.NormalizedPlacename != "" {
			entries[i].Place = &ExportPlace{ID: r.PlaceID, Name: r.NormalizedPlacename}
		}
	}
	return entries, nil
}
