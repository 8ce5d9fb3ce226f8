// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/charterbook/internal/hocr"
)

// maxLineSize bounds a single input line; converted paragraphs are one
// line. A longer line is not buffered in full and becomes a span of its own
// that is reported as too long.
const maxLineSize = 1 << 20

// maxFrontMatterLines bounds the lines read ahead when a text opens with
// "---" before deciding whether they are front matter.
const maxFrontMatterLines = 200

// span is one blank-line separated block of text.
type span struct {
	text    string
	page    int
	index   int  // 1-based position among the book's spans
	tooLong bool // text is a prefix of a line over maxLineSize
}

// line is one input line. long marks a line cut at maxLineSize.
type line struct {
	text string
	long bool
}

// spanner splits text into spans as it is read. Page markers set the page
// of following spans, headings end a span, and a leading YAML front-matter
// block is skipped.
type spanner struct {
	r       *bufio.Reader
	queue   []line // lines read ahead and not yet consumed
	pending []span
	page    int
	count   int
	lines   []string
	first   bool
	done    bool
	readErr error
}

func newSpanner(r io.Reader) *spanner {
	return &spanner{r: bufio.NewReaderSize(r, 64*1024), first: true}
}

// next returns the next non-empty span, or false at end of input.
func (s *spanner) next() (span, bool) {
	for {
		if len(s.pending) > 0 {
			sp := s.pending[0]
			s.pending = s.pending[1:]
			return sp, true
		}
		if s.done {
			return s.flush()
		}
		ln, ok := s.nextLine()
		if !ok {
			s.done = true
			continue
		}
		trimmed := strings.TrimSpace(ln.text)

		if s.first {
			if trimmed == "" && !ln.long {
				continue
			}
			s.first = false
			if trimmed == "---" && s.skipFrontMatter(ln) {
				continue
			}
		}

		if ln.long {
			sp, ok := s.flush()
			s.count++
			long := span{text: ln.text, page: s.page, index: s.count, tooLong: true}
			if ok {
				s.pending = append(s.pending, long)
				return sp, true
			}
			return long, true
		}
		if page, ok := parsePageMarker(trimmed); ok {
			sp, ok := s.flush()
			s.page = page
			if ok {
				return sp, true
			}
			continue
		}
		if trimmed == "" || trimmed == "---" || isHeading(trimmed) {
			if sp, ok := s.flush(); ok {
				return sp, true
			}
			continue
		}
		s.lines = append(s.lines, ln.text)
	}
}

// err returns the first read error, if any.
func (s *spanner) err() error {
	if s.readErr != nil {
		return fmt.Errorf("reading text: %w", s.readErr)
	}
	return nil
}

// nextLine returns the next line, from the read-ahead queue first.
func (s *spanner) nextLine() (line, bool) {
	if len(s.queue) > 0 {
		ln := s.queue[0]
		s.queue = s.queue[1:]
		return ln, true
	}
	return s.readLine()
}

// readLine reads one line from the input. Bytes past maxLineSize are
// discarded and the line is marked long.
func (s *spanner) readLine() (line, bool) {
	if s.readErr != nil {
		return line{}, false
	}
	var (
		buf  []byte
		long bool
	)
	for {
		frag, isPrefix, err := s.r.ReadLine()
		if err != nil {
			if err != io.EOF {
				s.readErr = err
			}
			if len(buf) > 0 || long {
				return line{text: string(buf), long: long}, true
			}
			return line{}, false
		}
		if !long {
			if len(buf)+len(frag) > maxLineSize {
				long = true
				buf = append(buf, frag...)
				buf = []byte(strings.ToValidUTF8(string(buf[:min(len(buf), excerptLen*4)]), ""))
			} else {
				buf = append(buf, frag...)
			}
		}
		if !isPrefix {
			return line{text: string(buf), long: long}, true
		}
	}
}

// skipFrontMatter reads ahead from an opening "---" to the closing one. The
// block is dropped when it parses as a YAML mapping; otherwise every line
// read is queued again and false is returned, so an ordinary text that
// opens with a rule keeps its content.
func (s *spanner) skipFrontMatter(open line) bool {
	block := []line{open}
	for len(block) <= maxFrontMatterLines {
		ln, ok := s.readLine()
		if !ok {
			break
		}
		block = append(block, ln)
		if ln.long {
			break
		}
		if strings.TrimSpace(ln.text) == "---" {
			if isFrontMatter(block[1 : len(block)-1]) {
				return true
			}
			break
		}
	}
	s.queue = append(s.queue, block[1:]...)
	return false
}

// isFrontMatter reports whether lines form a non-empty YAML mapping.
func isFrontMatter(lines []line) bool {
	texts := make([]string, len(lines))
	for i, ln := range lines {
		texts[i] = ln.text
	}
	var fields map[string]any
	if err := yaml.Unmarshal([]byte(strings.Join(texts, "\n")), &fields); err != nil {
		return false
	}
	return len(fields) > 0
}

func (s *spanner) flush() (span, bool) {
	if len(s.lines) == 0 {
		return span{}, false
	}
	text := hocr.MergeLines(s.lines)
	s.lines = nil
	if text == "" {
		return span{}, false
	}
	s.count++
	return span{text: text, page: s.page, index: s.count}, true
}

// isHeading reports whether the line is a Markdown heading.
func isHeading(line string) bool {
	return strings.HasPrefix(line, "#")
}

var pageMarkerRe = regexp.MustCompile(`^<!--\s*page\s+(\d+)\s*-->$`)

// parsePageMarker extracts the page number from an HTML comment like <!-- page 3 -->.
func parsePageMarker(line string) (int, bool) {
	m := pageMarkerRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	page, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return page, true
}

var (
	// charterOnlyRe matches a span that is only a charter number: "312.",
	// "No. 312", "Nr 312". A bare number without either mark is more often
	// a page number or folio left in the OCR and is not taken.
	charterOnlyRe = regexp.MustCompile(`^(?:(?i:no|nr)\.?\s*(\d{1,4})\.?|(\d{1,4})\.)$`)

	// charterHeadRe matches a charter number followed by a year, as at the
	// start of a regest: "312. 1256 april 3. ...".
	charterHeadRe = regexp.MustCompile(`^(?:(?i:no|nr)\.?\s*(\d{1,4})\.?|(\d{1,4})\.)\s+\d{3,4}\b`)
)

// charterNumber returns the charter number a span opens with, and whether
// the span is nothing but that number.
func charterNumber(text string) (number string, only bool, ok bool) {
	if m := charterOnlyRe.FindStringSubmatch(text); m != nil {
		return trimZeros(firstGroup(m)), true, true
	}
	if m := charterHeadRe.FindStringSubmatch(text); m != nil {
		return trimZeros(firstGroup(m)), false, true
	}
	return "", false, false
}

// firstGroup returns the first non-empty capture group of a match.
func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

func trimZeros(n string) string {
	if t := strings.TrimLeft(n, "0"); t != "" {
		return t
	}
	return "0"
}
