// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package hocr reads hOCR pages into lines, words and paragraphs, restoring
// the whitespace layout of the printed page from word coordinates.
package hocr

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/pdiddy/charterbook/pkg/types"
)

const (
	classPage    = "ocr_page"
	classCarea   = "ocr_carea"
	classLine    = "ocr_line"
	classWord    = "ocrx_word"
	noConfidence = -1
)

// Parse reads one hOCR document and returns its first page with lines,
// optional line-number removal, and paragraphs. A pageNum of 0 takes the
// page number from the ppageno property (zero-based) instead.
func Parse(r io.Reader, pageNum int, cfg types.LayoutConfig) (*types.Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing hOCR: %w", err)
	}

	pageNode := findFirst(doc, hasClassPredicate(classPage))
	if pageNode == nil {
		return nil, fmt.Errorf("no %s element", classPage)
	}

	props := titleProperties(pageNode)
	pageBox, err := parseBBox(props["bbox"])
	if err != nil {
		return nil, fmt.Errorf("page bbox: %w", err)
	}

	if pageNum == 0 {
		if n, err := strconv.Atoi(props["ppageno"]); err == nil {
			pageNum = n + 1
		}
	}

	page := &types.Page{
		Number:      pageNum,
		BBox:        pageBox,
		ContentArea: pageBox,
	}

	if carea := findFirst(pageNode, hasClassPredicate(classCarea)); carea != nil {
		if box, err := parseBBox(titleProperties(carea)["bbox"]); err == nil {
			page.ContentArea = box
		}
	}

	l := newLayout(page, cfg)
	if err := l.setLines(pageNode); err != nil {
		return nil, err
	}
	if cfg.RemoveLineNumbers {
		l.removeLineNumbers()
	}
	l.setParagraphs()
	return page, nil
}

// ParseFile opens and parses the hOCR file at path. A pageNum of 0 derives
// the number from the filename, then from the ppageno property.
func ParseFile(path string, pageNum int, cfg types.LayoutConfig) (*types.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if pageNum == 0 {
		pageNum, _ = PageNumber(path)
	}
	return Parse(f, pageNum, cfg)
}

var digitRunRe = regexp.MustCompile(`\d+`)

// PageNumber returns the last run of digits in the file's base name,
// e.g. 6 for "ohz1_0006.hocr".
func PageNumber(path string) (int, bool) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	runs := digitRunRe.FindAllString(base, -1)
	if len(runs) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(runs[len(runs)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// titleProperties splits an hOCR title attribute such as
// `bbox 10 20 300 40; x_wconf 91` into a property map.
func titleProperties(n *html.Node) map[string]string {
	props := make(map[string]string)
	for _, part := range strings.Split(attribute(n, "title"), ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, " ")
		props[key] = strings.TrimSpace(value)
	}
	return props
}

func parseBBox(s string) (types.BBox, error) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return types.BBox{}, fmt.Errorf("bbox %q: want 4 coordinates", s)
	}
	var coords [4]int
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return types.BBox{}, fmt.Errorf("bbox %q: %w", s, err)
		}
		coords[i] = n
	}
	return types.BBox{Left: coords[0], Top: coords[1], Right: coords[2], Bottom: coords[3]}, nil
}

func parseWord(n *html.Node) (types.Word, error) {
	props := titleProperties(n)
	box, err := parseBBox(props["bbox"])
	if err != nil {
		return types.Word{}, err
	}
	conf := noConfidence
	if v, ok := props["x_wconf"]; ok {
		if c, err := strconv.Atoi(v); err == nil {
			conf = c
		}
	}
	return types.Word{
		Text:       strings.TrimSpace(textContent(n)),
		BBox:       box,
		Confidence: conf,
	}, nil
}

// --- node helpers ---

func attribute(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, className string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, class := range strings.Fields(attribute(n, "class")) {
		if class == className {
			return true
		}
	}
	return false
}

func hasClassPredicate(className string) func(*html.Node) bool {
	return func(n *html.Node) bool { return hasClass(n, className) }
}

func findAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if predicate(node) {
			results = append(results, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return results
}

func findFirst(n *html.Node, predicate func(*html.Node) bool) *html.Node {
	if predicate(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, predicate); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var buf strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		buf.WriteString(textContent(c))
	}
	return buf.String()
}

func roundDiv(a int, b float64) int {
	if b <= 0 {
		return 0
	}
	return int(math.Round(float64(a) / b))
}
