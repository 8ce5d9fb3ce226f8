// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ConversionStatus indicates the state of hOCR-to-text conversion for a book.
type ConversionStatus string

const (
	ConversionNone    ConversionStatus = "none"
	ConversionDone    ConversionStatus = "converted"
	ConversionPartial ConversionStatus = "partial"
	ConversionFailed  ConversionStatus = "failed"
)

// BBox is an hOCR bounding box in page pixel coordinates.
type BBox struct {
	Left   int `json:"left" yaml:"left"`
	Top    int `json:"top" yaml:"top"`
	Right  int `json:"right" yaml:"right"`
	Bottom int `json:"bottom" yaml:"bottom"`
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() int { return b.Right - b.Left }

// Height returns the vertical extent of the box.
func (b BBox) Height() int { return b.Bottom - b.Top }

// Word is a single recognised word.
type Word struct {
	Text string `json:"text" yaml:"text"`
	BBox BBox   `json:"bbox" yaml:"bbox"`

	// Confidence is the OCR engine's x_wconf value, -1 when absent.
	Confidence int `json:"confidence" yaml:"confidence"`
}

// Line is a recognised text line with its words.
type Line struct {
	BBox  BBox   `json:"bbox" yaml:"bbox"`
	Text  string `json:"text" yaml:"text"`
	Words []Word `json:"words" yaml:"words"`

	// SpacedText restores indentation and word gaps from word positions.
	SpacedText string `json:"spaced_text" yaml:"spaced_text"`

	// CleanText is SpacedText with a printed line number removed.
	// Empty until line numbers have been processed.
	CleanText string `json:"clean_text,omitempty" yaml:"clean_text,omitempty"`
}

// Paragraph is a run of lines separated from the next by a vertical gap.
type Paragraph struct {
	Page        int      `json:"page" yaml:"page"`
	Number      int      `json:"number" yaml:"number"`
	LineNumbers []int    `json:"line_numbers" yaml:"line_numbers"`
	LineTexts   []string `json:"line_texts" yaml:"line_texts"`

	// Text is the merged paragraph with hyphenated line breaks joined.
	Text string `json:"text" yaml:"text"`
}

// Page is one parsed hOCR page.
type Page struct {
	Number      int         `json:"number" yaml:"number"`
	BBox        BBox        `json:"bbox" yaml:"bbox"`
	ContentArea BBox        `json:"content_area" yaml:"content_area"`
	Lines       []Line      `json:"lines" yaml:"lines"`
	Paragraphs  []Paragraph `json:"paragraphs" yaml:"paragraphs"`
}

// IsEven reports whether the page is a left-hand (even numbered) page.
func (p *Page) IsEven() bool {
	return p.Number%2 == 0
}
