// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gazetteer resolves OCR-garbled placename forms to known places.
//
// A gazetteer is a YAML file listing places with their canonical name and
// historical spelling variants:
//
//	places:
//	  - id: dordrecht
//	    name: Dordrecht
//	    variants: [Dordracum, Dordreht]
//
// Lookups try an exact, case-insensitive match first and fall back to fuzzy
// scoring against every name and variant. Fuzzy scoring is case-sensitive,
// so "LEIDN" and "Leidn" may resolve differently.
package gazetteer

import (
	"errors"
	"fmt"
	"os"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/charterbook/internal/fuzzy"
	"github.com/pdiddy/charterbook/pkg/types"
)

// Place is one gazetteer entry.
type Place struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Variants []string `json:"variants,omitempty" yaml:"variants,omitempty"`
}

// Forms returns the canonical name followed by its variants.
func (p Place) Forms() []string {
	return append([]string{p.Name}, p.Variants...)
}

// File is the on-disk gazetteer layout.
type File struct {
	Places []Place `yaml:"places"`
}

// Match is a resolved place.
type Match struct {
	PlaceID string `json:"place_id" yaml:"place_id"`
	Name    string `json:"name" yaml:"name"`

	// Variant is the gazetteer form that matched.
	Variant string `json:"variant" yaml:"variant"`

	// Surface is the string that was looked up, or for FindIn the
	// substring of the searched text.
	Surface string `json:"surface" yaml:"surface"`

	// Offset is the byte offset of Surface in the text searched by FindIn.
	Offset int `json:"offset" yaml:"offset"`

	// Score is the summed fuzzy score (3 for an exact match).
	Score float64 `json:"score" yaml:"score"`
	Exact bool    `json:"exact" yaml:"exact"`
}

// resolved is a memoized Resolve outcome, including misses.
type resolved struct {
	match Match
	ok    bool
}

// form is one name or variant with its precompiled search pattern.
type form struct {
	place   int
	text    string
	pattern *fuzzy.Pattern
}

// Gazetteer holds places and answers lookups. It is safe for concurrent
// use.
type Gazetteer struct {
	places  []Place
	forms   []form
	exact   map[string]int
	matcher *fuzzy.Matcher
	memo    *gocache.Cache
}

// Load reads a gazetteer YAML file.
func Load(path string, cfg types.MatchConfig) (*Gazetteer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading gazetteer %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing gazetteer %s: %w", path, err)
	}
	g, err := New(f.Places, cfg)
	if err != nil {
		return nil, fmt.Errorf("gazetteer %s: %w", path, err)
	}
	return g, nil
}

// New builds a gazetteer from places. Every place needs a name; IDs, when
// given, must be unique. A missing ID defaults to the lower-cased name.
func New(places []Place, cfg types.MatchConfig) (*Gazetteer, error) {
	g := &Gazetteer{
		exact:   make(map[string]int),
		matcher: fuzzy.NewMatcher(cfg),
		memo:    gocache.New(gocache.NoExpiration, 0),
	}

	ids := make(map[string]bool)
	for _, p := range places {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, errors.New("place without a name")
		}
		if p.ID == "" {
			p.ID = strings.ToLower(p.Name)
		}
		if ids[p.ID] {
			return nil, fmt.Errorf("duplicate place id %q", p.ID)
		}
		ids[p.ID] = true

		idx := len(g.places)
		g.places = append(g.places, p)
		for _, f := range p.Forms() {
			key := normalizeKey(f)
			if _, taken := g.exact[key]; !taken && key != "" {
				g.exact[key] = idx
			}
			g.forms = append(g.forms, form{place: idx, text: f, pattern: g.matcher.Compile(f)})
		}
	}
	return g, nil
}

// Len returns the number of places.
func (g *Gazetteer) Len() int { return len(g.places) }

// Places returns a copy of the gazetteer entries.
func (g *Gazetteer) Places() []Place {
	out := make([]Place, len(g.places))
	copy(out, g.places)
	return out
}

// Resolve maps a placename form to a known place. Exact forms win; otherwise
// the best-scoring name or variant that passes every fuzzy threshold is
// returned. Results, including misses, are memoized per term as written.
func (g *Gazetteer) Resolve(term string) (Match, bool) {
	term = strings.TrimSpace(term)
	if term == "" {
		return Match{}, false
	}
	if v, found := g.memo.Get(term); found {
		r := v.(resolved)
		return r.match, r.ok
	}

	m, ok := g.resolve(term, normalizeKey(term))
	g.memo.Set(term, resolved{match: m, ok: ok}, gocache.NoExpiration)
	return m, ok
}

func (g *Gazetteer) resolve(term, key string) (Match, bool) {
	if idx, ok := g.exact[key]; ok {
		p := g.places[idx]
		return Match{
			PlaceID: p.ID,
			Name:    p.Name,
			Variant: exactForm(p, key),
			Surface: term,
			Score:   3,
			Exact:   true,
		}, true
	}

	var best Match
	found := false
	for _, f := range g.forms {
		if !g.matcher.Accept(term, f.text) {
			continue
		}
		s := g.matcher.Score(fuzzy.Candidate{Term: f.text, Text: term}, f.text)
		if !found || s.Total > best.Score {
			p := g.places[f.place]
			best = Match{
				PlaceID: p.ID,
				Name:    p.Name,
				Variant: f.text,
				Surface: term,
				Score:   s.Total,
			}
			found = true
		}
	}
	return best, found
}

// FindIn searches text for the best fuzzy occurrence of any gazetteer form.
// Higher scores win; equal scores prefer the earlier occurrence.
func (g *Gazetteer) FindIn(text string) (Match, bool) {
	var best Match
	found := false
	for _, f := range g.forms {
		for _, c := range g.matcher.FindPattern(text, f.pattern) {
			s := g.matcher.Score(c, f.text)
			better := !found || s.Total > best.Score ||
				(s.Total == best.Score && c.Offset < best.Offset)
			if !better {
				continue
			}
			p := g.places[f.place]
			best = Match{
				PlaceID: p.ID,
				Name:    p.Name,
				Variant: f.text,
				Surface: c.Text,
				Offset:  c.Offset,
				Score:   s.Total,
				Exact:   c.Text == f.text,
			}
			found = true
		}
	}
	return best, found
}

func exactForm(p Place, key string) string {
	for _, form := range p.Forms() {
		if normalizeKey(form) == key {
			return form
		}
	}
	return p.Name
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
