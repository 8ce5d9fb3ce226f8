// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/charterbook/internal/gazetteer"
)

// Resolver maps placename forms to known places. *gazetteer.Gazetteer
// implements it.
type Resolver interface {
	Resolve(term string) (gazetteer.Match, bool)
	FindIn(text string) (gazetteer.Match, bool)
}

// placeMatch is a placename found in a span.
type placeMatch struct {
	surface    string
	normalized string
	placeID    string
	confidence float64
	note       string
}

const (
	confTrigger        = 0.8
	confSettlement     = 0.9
	confResolvedExact  = 1.0
	confResolvedFuzzy  = 0.85
	confGazetteerInfer = 0.6
)

// placeRe finds a capitalized name after a locative word, optionally with a
// settlement noun in between: "apud Dordracum", "in villa Haerlem",
// "datum Leiden". A second capitalized word is captured for two-word names.
var placeRe = regexp.MustCompile(
	`(?:^|[\s,;(])(?i:apud|in|juxta|iuxta|prope|datum|actum|data|te|tot)\s+` +
		`(?:((?i:villam|villa|oppidum|oppido|castrum|castro|civitatem|civitate|curiam|curia|parrochia|parochia|parrochiam|ecclesiam|ecclesia))\s+)?` +
		`(\p{Lu}[\p{L}'-]*)(?:\s+(\p{Lu}[\p{L}'-]*))?`)

// stopWords are capitalized words that follow a locative word without
// being a place.
var stopWords = map[string]bool{
	// dating and invocation formulas
	"anno": true, "domini": true, "dni": true, "dei": true, "christi": true, "christo": true,
	"nomine": true, "festo": true, "die": true, "vigilia": true, "octava": true,
	"incarnationis": true, "dominice": true,
	// common sentence openers
	"item": true, "nos": true, "ego": true, "et": true, "quod": true, "cum": true,
	"presentibus": true, "universis": true, "omnibus": true,
	// titles
	"dominus": true, "domino": true, "comes": true, "comitis": true, "comiti": true,
	"sancti": true, "sancte": true, "sancto": true, "beati": true, "beate": true,
	// locative words themselves
	"apud": true, "datum": true, "actum": true, "data": true, "in": true,
	// Latin months
	"januarii": true, "februarii": true, "martii": true, "marcii": true, "aprilis": true,
	"maii": true, "junii": true, "julii": true, "augusti": true, "septembris": true,
	"octobris": true, "novembris": true, "decembris": true,
}

func isStopWord(w string) bool {
	return stopWords[strings.ToLower(w)]
}

// placeFinder locates placenames, optionally normalizing them through a
// Resolver.
type placeFinder struct {
	resolver Resolver
}

// find returns the first triggered placename in span. Without a trigger
// match it falls back to the resolver's best gazetteer hit.
func (f placeFinder) find(span string) (placeMatch, bool) {
	if m, ok := f.triggered(span); ok {
		return m, true
	}
	if f.resolver == nil {
		return placeMatch{}, false
	}
	g, ok := f.resolver.FindIn(span)
	if !ok || g.Surface == "" {
		return placeMatch{}, false
	}
	return placeMatch{
		surface:    g.Surface,
		normalized: g.Name,
		placeID:    g.PlaceID,
		confidence: confGazetteerInfer,
		note:       fmt.Sprintf("placename inferred from gazetteer form %q", g.Variant),
	}, true
}

func (f placeFinder) triggered(span string) (placeMatch, bool) {
	for _, sm := range placeRe.FindAllStringSubmatch(span, -1) {
		first := strings.TrimRight(sm[2], "-'")
		if len(first) < 2 || isStopWord(first) {
			continue
		}
		name := first
		if second := strings.TrimRight(sm[3], "-'"); second != "" && !isStopWord(second) && len(second) >= 2 {
			name = first + " " + second
			if !strings.Contains(span, name) {
				name = first
			}
		}

		m := placeMatch{surface: name, confidence: confTrigger}
		if sm[1] != "" {
			m.confidence = confSettlement
		}
		f.normalize(&m)
		return m, true
	}
	return placeMatch{}, false
}

// normalize resolves the surface form through the resolver. A two-word
// surface that does not resolve is retried with its first word.
func (f placeFinder) normalize(m *placeMatch) {
	if f.resolver == nil {
		return
	}
	g, ok := f.resolver.Resolve(m.surface)
	if !ok {
		first, _, twoWords := strings.Cut(m.surface, " ")
		if !twoWords {
			return
		}
		if g, ok = f.resolver.Resolve(first); !ok {
			return
		}
		m.surface = first
	}
	m.normalized = g.Name
	m.placeID = g.PlaceID
	if g.Exact {
		m.confidence = confResolvedExact
		return
	}
	m.confidence = confResolvedFuzzy
	m.note = fmt.Sprintf("placename %q resolved fuzzily to %q", m.surface, g.Name)
}
