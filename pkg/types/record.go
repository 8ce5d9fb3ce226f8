// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the charterbook pipeline:
// hOCR layout, charter records, stage results, and configuration.
package types

// CharterRecord is one placename attestation read from a charter book.
// Placename and DateText are always substrings of Span.
type CharterRecord struct {
	// ID is stable across re-extractions of unchanged text.
	ID string `json:"id" yaml:"id"`

	// CharterID identifies the source charter, e.g. "ohz-1:312" when the
	// charter number is printed, or "ohz-1:p6:s3" when it is not.
	CharterID string `json:"charter_id" yaml:"charter_id"`

	// Book is the source document identifier (text file stem).
	Book string `json:"book" yaml:"book"`

	// Page is the printed page the span starts on, 0 if unknown.
	Page int `json:"page" yaml:"page"`

	// Span is the raw OCR text the record was derived from.
	Span string `json:"span" yaml:"span"`

	// Placename is the surface form found in Span.
	Placename string `json:"placename" yaml:"placename"`

	// NormalizedPlacename is the canonical gazetteer name, if resolved.
	NormalizedPlacename string `json:"normalized_placename,omitempty" yaml:"normalized_placename,omitempty"`

	// PlaceID is the gazetteer identifier, if resolved.
	PlaceID string `json:"place_id,omitempty" yaml:"place_id,omitempty"`

	// Date is normalized to YYYY, YYYY-MM or YYYY-MM-DD.
	Date string `json:"date" yaml:"date"`

	// DateText is the surface text the date was read from.
	DateText string `json:"date_text" yaml:"date_text"`

	// Year is the numeric year of Date.
	Year int `json:"year" yaml:"year"`

	// Confidence is a heuristic certainty between 0.0 and 1.0.
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Note records uncertainty, e.g. an OCR correction applied to the year.
	Note string `json:"note,omitempty" yaml:"note,omitempty"`
}

// ExtractionResult holds the records extracted from one book.
type ExtractionResult struct {
	// Book identifies the source text.
	Book string `json:"book" yaml:"book"`

	// Records contains the extracted attestations in source order.
	Records []CharterRecord `json:"records" yaml:"records"`

	// Spans is the number of text spans examined.
	Spans int `json:"spans" yaml:"spans"`

	// Skipped is the number of spans without a placename or date.
	Skipped int `json:"skipped" yaml:"skipped"`

	// Error records an extraction failure message. Empty on success.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}
