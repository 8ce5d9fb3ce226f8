// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// dateMatch is a date found in a span.
type dateMatch struct {
	date       string
	text       string
	year       int
	confidence float64
	note       string
}

// Confidence of each date source.
const (
	confRegest   = 0.95
	confArabic   = 0.9
	confRoman    = 0.85
	confOCRDigit = 0.7
	confBareYear = 0.5
)

// dutchMonths maps regest month names and their printed abbreviations to
// month numbers.
var dutchMonths = map[string]int{
	"januari": 1, "jan": 1,
	"februari": 2, "febr": 2, "feb": 2,
	"maart": 3, "mrt": 3,
	"april": 4, "apr": 4,
	"mei":      5,
	"juni":     6,
	"juli":     7,
	"augustus": 8, "aug": 8,
	"september": 9, "sept": 9, "sep": 9,
	"oktober": 10, "october": 10, "okt": 10, "oct": 10,
	"november": 11, "nov": 11,
	"december": 12, "dec": 12,
}

var (
	// regestRe matches an editor's date heading such as "1256 april 3".
	regestRe = regexp.MustCompile(`(?i)\b(\d{3,4})\s+(` + monthAlternation() + `)\b\.?(?:\s+(\d{1,2})\b)?`)

	// annoRe matches "anno" with optional qualifiers and captures the
	// year token that follows.
	annoRe = regexp.MustCompile(`(?i)\banno\s+(?:(?:domini|dni|dom|incarnationis|incarnacionis|dominice|dominicae|ab|incarnatione|gratie|gratiae|verbi)\.?\s+)*([^\s,;:]+)`)

	bareYearRe = regexp.MustCompile(`\b(\d{4})\b`)

	digitsRe   = regexp.MustCompile(`^\d{3,4}$`)
	ocrYearRe  = regexp.MustCompile(`^[0-9lIi|OoSsZzB]{3,4}$`)
	romanRe    = regexp.MustCompile(`^m{0,3}(?:cm|cd|d?c{0,4})(?:xc|xl|l?x{0,4})(?:ix|iv|v?i{0,4})$`)
	anyDigitRe = regexp.MustCompile(`\d`)
)

// ocrDigits maps characters OCR commonly confuses with digits.
var ocrDigits = strings.NewReplacer(
	"l", "1", "I", "1", "i", "1", "|", "1",
	"O", "0", "o", "0",
	"S", "5", "s", "5",
	"Z", "2", "z", "2",
	"B", "8",
)

var romanValues = map[byte]int{'i': 1, 'v': 5, 'x': 10, 'l': 50, 'c': 100, 'd': 500, 'm': 1000}

func monthAlternation() string {
	names := make([]string, 0, len(dutchMonths))
	for name := range dutchMonths {
		names = append(names, name)
	}
	// Longest first so "februari" is not cut short at "feb".
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return strings.Join(names, "|")
}

// dateFinder locates dates in a span within a year range.
type dateFinder struct {
	minYear, maxYear int
	bareYears        bool
}

// find returns the first date in span: a regest heading, then an "anno"
// formula, then (when enabled) a bare four-digit year.
func (f dateFinder) find(span string) (dateMatch, bool) {
	if m, ok := f.regest(span); ok {
		return m, true
	}
	if m, ok := f.anno(span); ok {
		return m, true
	}
	if f.bareYears {
		return f.bare(span)
	}
	return dateMatch{}, false
}

func (f dateFinder) inRange(year int) bool {
	return year >= f.minYear && year <= f.maxYear
}

func (f dateFinder) regest(span string) (dateMatch, bool) {
	for _, loc := range regestRe.FindAllStringSubmatchIndex(span, -1) {
		year, _ := strconv.Atoi(span[loc[2]:loc[3]])
		if !f.inRange(year) {
			continue
		}
		month := dutchMonths[strings.ToLower(span[loc[4]:loc[5]])]
		m := dateMatch{
			date:       fmt.Sprintf("%04d-%02d", year, month),
			text:       span[loc[0]:loc[5]],
			year:       year,
			confidence: confRegest,
		}
		if loc[6] >= 0 {
			day, _ := strconv.Atoi(span[loc[6]:loc[7]])
			if validDay(year, month, day) {
				m.date = fmt.Sprintf("%s-%02d", m.date, day)
				m.text = span[loc[0]:loc[7]]
			} else {
				m.note = fmt.Sprintf("day %d does not exist in %s, kept month only", day, m.date)
			}
		}
		return m, true
	}
	return dateMatch{}, false
}

// validDay reports whether day exists in the given month of year. Charter
// dates are Julian, so every fourth year has a 29 February.
func validDay(year, month, day int) bool {
	if day < 1 {
		return false
	}
	if month == 2 && day == 29 {
		return year%4 == 0
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Day() == day
}

func (f dateFinder) anno(span string) (dateMatch, bool) {
	for _, loc := range annoRe.FindAllStringSubmatchIndex(span, -1) {
		tokStart, tokEnd := loc[2], loc[3]
		token := strings.TrimRight(span[tokStart:tokEnd], ".")
		tokEnd = tokStart + len(token)

		year, conf, note, ok := parseYear(token)
		if !ok || !f.inRange(year) {
			continue
		}
		return dateMatch{
			date:       fmt.Sprintf("%04d", year),
			text:       span[loc[0]:tokEnd],
			year:       year,
			confidence: conf,
			note:       note,
		}, true
	}
	return dateMatch{}, false
}

func (f dateFinder) bare(span string) (dateMatch, bool) {
	for _, loc := range bareYearRe.FindAllStringSubmatchIndex(span, -1) {
		year, _ := strconv.Atoi(span[loc[2]:loc[3]])
		if !f.inRange(year) {
			continue
		}
		return dateMatch{
			date:       fmt.Sprintf("%04d", year),
			text:       span[loc[2]:loc[3]],
			year:       year,
			confidence: confBareYear,
			note:       "bare year without dating formula",
		}, true
	}
	return dateMatch{}, false
}

// parseYear reads a year written in Arabic digits, in digits garbled by
// OCR, or in Roman numerals.
func parseYear(token string) (year int, confidence float64, note string, ok bool) {
	if digitsRe.MatchString(token) {
		year, _ = strconv.Atoi(token)
		return year, confArabic, "", true
	}
	if ocrYearRe.MatchString(token) && anyDigitRe.MatchString(token) {
		fixed := ocrDigits.Replace(token)
		if y, err := strconv.Atoi(fixed); err == nil {
			return y, confOCRDigit, fmt.Sprintf("year corrected from OCR %q", token), true
		}
	}
	if y, ok := parseRoman(token); ok {
		return y, confRoman, "", true
	}
	return 0, 0, "", false
}

var romanPunct = strings.NewReplacer(".", "", "°", "")

// parseRoman reads a Roman numeral, accepting internal dots ("m.cc.lvi."),
// degree signs ("M°CC°LVI°") and a final j for i ("mcclvij").
func parseRoman(token string) (int, bool) {
	s := strings.ToLower(romanPunct.Replace(token))
	if strings.HasSuffix(s, "j") {
		s = strings.TrimSuffix(s, "j") + "i"
	}
	if s == "" || !romanRe.MatchString(s) {
		return 0, false
	}
	total := 0
	for i := 0; i < len(s); i++ {
		v := romanValues[s[i]]
		if i+1 < len(s) && v < romanValues[s[i+1]] {
			total -= v
		} else {
			total += v
		}
	}
	return total, total > 0
}
