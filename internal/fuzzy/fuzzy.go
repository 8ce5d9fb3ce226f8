// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fuzzy scores OCR-noisy strings against known terms and finds
// approximate occurrences of a term inside running text.
//
// Three similarity ratios are combined: character overlap, padded n-gram
// overlap, and normalised Levenshtein distance. A candidate must pass all
// three thresholds to be kept; ranking sums the three ratios.
package fuzzy

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xrash/smetrics"

	"github.com/pdiddy/charterbook/pkg/types"
)

// Candidate is a substring of a text that may be an OCR rendering of Term.
type Candidate struct {
	// Term is the known term that was searched for.
	Term string `json:"term" yaml:"term"`

	// Text is the matched substring after suffix stripping.
	Text string `json:"text" yaml:"text"`

	// Offset is the byte offset of Text in the searched string.
	Offset int `json:"offset" yaml:"offset"`
}

// Score holds the individual and summed similarity ratios for a candidate.
type Score struct {
	Candidate   Candidate `json:"candidate" yaml:"candidate"`
	Char        float64   `json:"char" yaml:"char"`
	Ngram       float64   `json:"ngram" yaml:"ngram"`
	Levenshtein float64   `json:"levenshtein" yaml:"levenshtein"`
	Total       float64   `json:"total" yaml:"total"`
}

// Matcher applies the thresholds in a MatchConfig.
type Matcher struct {
	cfg types.MatchConfig
}

// NewMatcher returns a Matcher. Zero-valued n-gram size falls back to 2.
func NewMatcher(cfg types.MatchConfig) *Matcher {
	if cfg.NgramSize <= 0 {
		cfg.NgramSize = 2
	}
	return &Matcher{cfg: cfg}
}

// Config returns the matcher's effective configuration.
func (m *Matcher) Config() types.MatchConfig {
	return m.cfg
}

// Ngrams returns the n-grams of term padded with '#' on both ends.
// "Leiden" with n=2 yields "#L", "Le", "ei", "id", "de", "en", "n#".
func Ngrams(term string, n int) []string {
	padded := []rune("#" + term + "#")
	if n <= 0 || len(padded) < n {
		return nil
	}
	grams := make([]string, 0, len(padded)-n+1)
	for start := 0; start+n <= len(padded); start++ {
		grams = append(grams, string(padded[start:start+n]))
	}
	return grams
}

// CharOverlap counts the characters of term2 that can be paired with a
// distinct character of term1.
func CharOverlap(term1, term2 string) int {
	pool := make(map[rune]int)
	for _, r := range term1 {
		pool[r]++
	}
	overlap := 0
	for _, r := range term2 {
		if pool[r] > 0 {
			pool[r]--
			overlap++
		}
	}
	return overlap
}

// NgramOverlap counts the n-grams shared by both terms, as a multiset.
func NgramOverlap(term1, term2 string, n int) int {
	pool := make(map[string]int)
	for _, g := range Ngrams(term2, n) {
		pool[g]++
	}
	overlap := 0
	for _, g := range Ngrams(term1, n) {
		if pool[g] > 0 {
			pool[g]--
			overlap++
		}
	}
	return overlap
}

// LevenshteinDistance is the unit-cost edit distance between two strings.
func LevenshteinDistance(s1, s2 string) int {
	return smetrics.WagnerFischer(s1, s2, 1, 1, 1)
}

// CharOverlapRatio is CharOverlap normalised by the length of term1.
func CharOverlapRatio(term1, term2 string) float64 {
	n := utf8.RuneCountInString(term1)
	if n == 0 {
		return 0
	}
	return float64(CharOverlap(term1, term2)) / float64(n)
}

// NgramOverlapRatio is NgramOverlap normalised by the n-gram count of term1.
func NgramOverlapRatio(term1, term2 string, n int) float64 {
	total := len(Ngrams(term1, n))
	if total == 0 {
		return 0
	}
	return float64(NgramOverlap(term1, term2, n)) / float64(total)
}

// LevenshteinRatio is 1 minus the edit distance over the longer length.
// Identical strings score 1; the result is never negative.
func LevenshteinRatio(term1, term2 string) float64 {
	longest := max(len(term1), len(term2))
	if longest == 0 {
		return 1
	}
	ratio := 1 - float64(LevenshteinDistance(term1, term2))/float64(longest)
	if ratio < 0 {
		return 0
	}
	return ratio
}

// Accept reports whether candidate passes all three thresholds against term.
func (m *Matcher) Accept(candidate, term string) bool {
	if CharOverlapRatio(candidate, term) < m.cfg.CharThreshold {
		return false
	}
	if NgramOverlapRatio(candidate, term, m.cfg.NgramSize) < m.cfg.NgramThreshold {
		return false
	}
	return LevenshteinRatio(candidate, term) >= m.cfg.LevenshteinThreshold
}

// Filter keeps the candidates that pass all thresholds, in input order.
func (m *Matcher) Filter(candidates []Candidate, term string) []Candidate {
	var kept []Candidate
	for _, c := range candidates {
		if m.Accept(c.Text, term) {
			kept = append(kept, c)
		}
	}
	return kept
}

// Score computes the similarity ratios of candidate against term.
func (m *Matcher) Score(c Candidate, term string) Score {
	s := Score{
		Candidate:   c,
		Char:        CharOverlapRatio(c.Text, term),
		Ngram:       NgramOverlapRatio(c.Text, term, m.cfg.NgramSize),
		Levenshtein: LevenshteinRatio(c.Text, term),
	}
	s.Total = s.Char + s.Ngram + s.Levenshtein
	return s
}

// Rank scores every candidate and sorts by total score, highest first.
// Equal scores keep their input order.
func (m *Matcher) Rank(candidates []Candidate, term string) []Score {
	scores := make([]Score, len(candidates))
	for i, c := range candidates {
		scores[i] = m.Score(c, term)
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Total > scores[j].Total
	})
	return scores
}

// Pattern finds the windows of a text that may render one term. Compile
// it once per term and reuse it; it is safe for concurrent use.
type Pattern struct {
	term string
	re   *regexp.Regexp
}

// Term returns the term the pattern was compiled for.
func (p *Pattern) Term() string { return p.term }

// Compile builds the window pattern for term: its first character followed
// by the rest of its length, give or take the length variance. It returns
// nil for an empty term.
func (m *Matcher) Compile(term string) *Pattern {
	if term == "" {
		return nil
	}
	initial, size := utf8.DecodeRuneInString(term)
	rest := utf8.RuneCountInString(term[size:])
	minLen := max(rest-m.cfg.MaxLengthVariance, 0)
	maxLen := rest + m.cfg.MaxLengthVariance

	pattern := regexp.QuoteMeta(string(initial)) + ".{" + strconv.Itoa(minLen) + "," + strconv.Itoa(maxLen) + "}"
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	return &Pattern{term: term, re: re}
}

// Windows returns every non-overlapping window of text that p matches.
// Windows never cross a line break.
func (p *Pattern) Windows(text string) []Candidate {
	if p == nil {
		return nil
	}
	var matches []Candidate
	for _, loc := range p.re.FindAllStringIndex(text, -1) {
		matches = append(matches, Candidate{
			Term:   p.term,
			Text:   text[loc[0]:loc[1]],
			Offset: loc[0],
		})
	}
	return matches
}

// FindTermMatches returns every non-overlapping window of text that starts
// with the term's first character and is within the length variance of the
// term. It compiles the term on every call; use Compile and FindPattern
// when searching for the same term repeatedly.
func (m *Matcher) FindTermMatches(text, term string) []Candidate {
	return m.Compile(term).Windows(text)
}

// FindCandidates finds windows of text that plausibly render term,
// strips trailing punctuation when enabled, and applies all thresholds.
func (m *Matcher) FindCandidates(text, term string) []Candidate {
	return m.FindPattern(text, m.Compile(term))
}

// FindPattern is FindCandidates with a precompiled pattern.
func (m *Matcher) FindPattern(text string, p *Pattern) []Candidate {
	if p == nil {
		return nil
	}
	matches := p.Windows(text)
	if m.cfg.StripSuffix {
		for i := range matches {
			matches[i].Text = StripSuffix(matches[i].Text)
		}
	}
	return m.Filter(matches, p.term)
}

// StripSuffix removes a trailing separator that a fixed-length window
// picked up past the end of a word: a space or comma in the second to last
// position together with the following character, or a final space, comma
// or period.
func StripSuffix(match string) string {
	r := []rune(match)
	if len(r) >= 2 && (r[len(r)-2] == ' ' || r[len(r)-2] == ',') {
		return string(r[:len(r)-2])
	}
	if len(r) >= 2 {
		switch string(r[len(r)-2:]) {
		case ", ", ". ", "? ", ".f":
			return string(r[:len(r)-2])
		}
	}
	if len(r) >= 1 && strings.ContainsRune(" ,.", r[len(r)-1]) {
		return string(r[:len(r)-1])
	}
	return match
}
