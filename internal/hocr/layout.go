// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package hocr

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/pdiddy/charterbook/pkg/types"
)

// layout holds the per-page state used while rebuilding text from boxes.
type layout struct {
	page    *types.Page
	cfg     types.LayoutConfig
	cleaned bool
}

func newLayout(page *types.Page, cfg types.LayoutConfig) *layout {
	if cfg.AvgCharWidth <= 0 {
		cfg.AvgCharWidth = types.DefaultLayoutConfig().AvgCharWidth
	}
	if cfg.MarginDistance <= 0 {
		cfg.MarginDistance = types.DefaultLayoutConfig().MarginDistance
	}
	if cfg.MinimumParagraphGap <= 0 {
		cfg.MinimumParagraphGap = types.DefaultLayoutConfig().MinimumParagraphGap
	}
	return &layout{page: page, cfg: cfg}
}

// setLines collects every ocr_line with its words. Lines that are only a
// pipe (scan edge shading) or a single character are dropped.
func (l *layout) setLines(pageNode *html.Node) error {
	for _, lineNode := range findAll(pageNode, hasClassPredicate(classLine)) {
		box, err := parseBBox(titleProperties(lineNode)["bbox"])
		if err != nil {
			return err
		}

		var words []types.Word
		for _, wordNode := range findAll(lineNode, hasClassPredicate(classWord)) {
			w, err := parseWord(wordNode)
			if err != nil {
				return err
			}
			if w.Text == "" {
				continue
			}
			words = append(words, w)
		}

		text := strings.TrimSpace(textContent(lineNode))
		if len(words) > 0 {
			parts := make([]string, len(words))
			for i, w := range words {
				parts[i] = w.Text
			}
			text = strings.Join(parts, " ")
		}
		if text == "|" || utf8.RuneCountInString(text) <= 1 {
			continue
		}

		l.page.Lines = append(l.page.Lines, types.Line{
			BBox:       box,
			Text:       text,
			Words:      words,
			SpacedText: l.spacedText(words),
		})
	}
	return nil
}

// spacedText rebuilds a line from word positions: leading indentation from
// the content-area edge, and at least one space between words.
func (l *layout) spacedText(words []types.Word) string {
	if len(words) == 0 {
		return ""
	}
	var b strings.Builder
	indent := roundDiv(words[0].BBox.Left-l.page.ContentArea.Left, l.cfg.AvgCharWidth)
	if indent > 0 {
		b.WriteString(strings.Repeat(" ", indent))
	}
	for i, w := range words {
		b.WriteString(w.Text)
		if i < len(words)-1 {
			b.WriteString(strings.Repeat(" ", l.spaces(w, words[i+1])))
		}
	}
	return b.String()
}

func (l *layout) spaces(w1, w2 types.Word) int {
	n := roundDiv(w2.BBox.Left-w1.BBox.Right, l.cfg.AvgCharWidth)
	if n < 1 {
		return 1
	}
	return n
}

// --- line numbers ---

// removeLineNumbers fills CleanText for every line, dropping the printed
// line number from lines that carry one.
func (l *layout) removeLineNumbers() {
	for i := range l.page.Lines {
		l.page.Lines[i].CleanText = l.cleanLine(i)
	}
	l.cleaned = true
}

// cleanLine applies the line-number checks in order: expected position,
// closeness to the outer margin, sticking out from neighbours, and an outer
// word that reads as the expected number.
func (l *layout) cleanLine(idx int) string {
	line := l.page.Lines[idx]
	number, ok := expectedLineNumber(idx)
	if !ok || len(line.Words) == 0 {
		return line.SpacedText
	}
	if !l.closeToMargin(idx) || !l.sticksOut(idx) {
		return line.SpacedText
	}

	if l.page.IsEven() {
		if looksLikeLineNumber(line.Words[len(line.Words)-1].Text, number) {
			return l.spacedText(line.Words[:len(line.Words)-1])
		}
	} else if looksLikeLineNumber(line.Words[0].Text, number) {
		return l.spacedText(line.Words[1:])
	}
	return line.SpacedText
}

// expectedLineNumber maps a zero-based line index to the margin number it
// may carry. Numbers are printed every fifth line, occasionally one line
// early or late.
func expectedLineNumber(idx int) (int, bool) {
	if idx < 4 {
		return 0, false
	}
	switch idx % 5 {
	case 0:
		return idx, true
	case 1:
		return idx - 1, true
	case 4:
		return idx + 1, true
	}
	return 0, false
}

// closeToMargin checks the right margin on even pages and the left margin
// on odd pages.
func (l *layout) closeToMargin(idx int) bool {
	line := l.page.Lines[idx].BBox
	carea := l.page.ContentArea
	var distance int
	if l.page.IsEven() {
		distance = carea.Right - line.Right
	} else {
		distance = line.Left - carea.Left
	}
	return distance < l.cfg.MarginDistance
}

// sticksOut reports whether the line extends past the two lines above and
// below it by at least 30 pixels (single-digit numbers) or 40 pixels.
func (l *layout) sticksOut(idx int) bool {
	if idx < 4 {
		return false
	}
	minStickOut := 40
	if idx < 7 {
		minStickOut = 30
	}

	lines := l.page.Lines
	line := lines[idx].BBox
	var neighbours []types.Line
	neighbours = append(neighbours, lines[max(idx-2, 0):idx]...)
	neighbours = append(neighbours, lines[idx+1:min(idx+3, len(lines))]...)

	for _, nb := range neighbours {
		if l.page.IsEven() {
			if line.Right-nb.BBox.Right < minStickOut {
				return false
			}
		} else if nb.BBox.Left-line.Left < minStickOut {
			return false
		}
	}
	return true
}

var (
	trailingZeroRe = regexp.MustCompile(`[oO]$`)
	trailingFiveRe = regexp.MustCompile(`[sS]$`)
	leadingOneRe   = regexp.MustCompile(`^[iIr]`)
)

// looksLikeLineNumber compares word to number after undoing the common OCR
// confusions for 0, 5 and 1.
func looksLikeLineNumber(word string, number int) bool {
	switch number % 10 {
	case 0:
		word = trailingZeroRe.ReplaceAllString(word, "0")
	case 5:
		word = trailingFiveRe.ReplaceAllString(word, "5")
	}
	if number == 10 || number == 15 {
		word = leadingOneRe.ReplaceAllString(word, "1")
	}
	return word == strconv.Itoa(number)
}

// --- paragraphs ---

// setParagraphs groups lines into paragraphs at vertical gaps larger than
// the configured minimum and merges each paragraph's text.
func (l *layout) setParagraphs() {
	lines := l.page.Lines
	if len(lines) == 0 {
		return
	}

	para := types.Paragraph{Page: l.page.Number}
	for i, line := range lines {
		text := line.SpacedText
		if l.cleaned {
			text = line.CleanText
		}
		para.LineTexts = append(para.LineTexts, text)
		para.LineNumbers = append(para.LineNumbers, i)

		if i < len(lines)-1 {
			gap := lines[i+1].BBox.Top - line.BBox.Bottom
			if gap > l.cfg.MinimumParagraphGap {
				l.appendParagraph(para)
				para = types.Paragraph{Page: l.page.Number}
			}
		}
	}
	l.appendParagraph(para)
}

func (l *layout) appendParagraph(para types.Paragraph) {
	para.Number = len(l.page.Paragraphs)
	para.Text = MergeLines(para.LineTexts)
	l.page.Paragraphs = append(l.page.Paragraphs, para)
}

// MergeLines joins line texts into running text. A line ending in a hyphen
// is joined to the next line without a space.
func MergeLines(lines []string) string {
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "-") {
			b.WriteString(strings.TrimSpace(strings.TrimSuffix(line, "-")))
		} else {
			b.WriteString(strings.TrimSpace(line))
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}
