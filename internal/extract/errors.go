// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"errors"
	"fmt"
)

// Reasons a span yields no record.
var (
	ErrNoPlacename = errors.New("no placename")
	ErrNoDate      = errors.New("no date")
	ErrSpanTooLong = errors.New("span too long")
)

// excerptLen is the number of runes of a span quoted in a SpanError.
const excerptLen = 60

// SpanError describes a span that could not be turned into a record.
// Err is ErrNoPlacename, ErrNoDate or ErrSpanTooLong.
type SpanError struct {
	Book string
	Page int
	Span string
	Err  error
}

func (e *SpanError) Error() string {
	return fmt.Sprintf("%s p%d: %v: %q", e.Book, e.Page, e.Err, excerpt(e.Span))
}

func (e *SpanError) Unwrap() error { return e.Err }

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= excerptLen {
		return s
	}
	return string(r[:excerptLen]) + "..."
}
