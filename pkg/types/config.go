// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "charterbook/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// AcquisitionConfig holds settings for downloading hOCR pages.
type AcquisitionConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// RequestsPerSecond limits the download rate (default 1).
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// Burst is the number of requests allowed before limiting starts (default 1).
	Burst int `json:"burst" yaml:"burst" mapstructure:"burst"`

	// MaxRetries is the number of retries on HTTP 429 (default 5).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// HOCRDir is the base directory for hOCR pages (one subdirectory per book).
	HOCRDir string `json:"hocr_dir" yaml:"hocr_dir" mapstructure:"hocr_dir"`
}

// LayoutConfig holds the page-geometry heuristics used when reading hOCR.
// The defaults are tuned to the OHZ charter books.
type LayoutConfig struct {
	// MinimumParagraphGap is the vertical gap in pixels above which
	// two lines belong to different paragraphs (default 10).
	MinimumParagraphGap int `json:"minimum_paragraph_gap" yaml:"minimum_paragraph_gap" mapstructure:"minimum_paragraph_gap"`

	// AvgCharWidth is the pixel width of one character, used to turn word
	// gaps into spaces (default 20).
	AvgCharWidth float64 `json:"avg_char_width" yaml:"avg_char_width" mapstructure:"avg_char_width"`

	// RemoveLineNumbers strips the printed margin line numbers (5, 10, 15, ...).
	RemoveLineNumbers bool `json:"remove_line_numbers" yaml:"remove_line_numbers" mapstructure:"remove_line_numbers"`

	// MarginDistance is the maximum distance in pixels between a numbered
	// line and the content-area margin (default 70).
	MarginDistance int `json:"margin_distance" yaml:"margin_distance" mapstructure:"margin_distance"`
}

// ConversionConfig holds settings for the hOCR-to-text stage.
type ConversionConfig struct {
	LayoutConfig `yaml:",inline" mapstructure:",squash"`

	// HOCRDir is the base directory for hOCR pages (one subdirectory per book).
	HOCRDir string `json:"hocr_dir" yaml:"hocr_dir" mapstructure:"hocr_dir"`

	// TextDir receives one text document per book.
	TextDir string `json:"text_dir" yaml:"text_dir" mapstructure:"text_dir"`
}

// MatchConfig holds fuzzy matching thresholds. All ratios are in [0,1].
type MatchConfig struct {
	CharThreshold        float64 `json:"char_threshold" yaml:"char_threshold" mapstructure:"char_threshold"`
	NgramThreshold       float64 `json:"ngram_threshold" yaml:"ngram_threshold" mapstructure:"ngram_threshold"`
	LevenshteinThreshold float64 `json:"levenshtein_threshold" yaml:"levenshtein_threshold" mapstructure:"levenshtein_threshold"`

	// MaxLengthVariance is how many characters a candidate may be longer
	// or shorter than the term (default 1).
	MaxLengthVariance int `json:"max_length_variance" yaml:"max_length_variance" mapstructure:"max_length_variance"`

	// NgramSize is the n-gram length for overlap scoring (default 2).
	NgramSize int `json:"ngram_size" yaml:"ngram_size" mapstructure:"ngram_size"`

	// StripSuffix trims trailing punctuation and spaces from candidates.
	StripSuffix bool `json:"strip_suffix" yaml:"strip_suffix" mapstructure:"strip_suffix"`
}

// GazetteerConfig points at the known-places file.
type GazetteerConfig struct {
	// Path is a YAML gazetteer file. Empty disables gazetteer matching.
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	Match MatchConfig `json:"match" yaml:"match" mapstructure:"match"`
}

// ExtractionConfig holds settings for the record extraction stage.
type ExtractionConfig struct {
	// TextDir is the directory of converted text documents.
	TextDir string `json:"text_dir" yaml:"text_dir" mapstructure:"text_dir"`

	// RecordsDir is the base directory for record output (contains extracted/).
	RecordsDir string `json:"records_dir" yaml:"records_dir" mapstructure:"records_dir"`

	// MinYear and MaxYear bound accepted years (default 800-1299).
	MinYear int `json:"min_year" yaml:"min_year" mapstructure:"min_year"`
	MaxYear int `json:"max_year" yaml:"max_year" mapstructure:"max_year"`

	// BareYears accepts a standalone year token when no "anno" or
	// regest date is present.
	BareYears bool `json:"bare_years" yaml:"bare_years" mapstructure:"bare_years"`

	Gazetteer GazetteerConfig `json:"gazetteer" yaml:"gazetteer" mapstructure:"gazetteer"`
}

// KnowledgeBaseConfig holds settings for the record store.
type KnowledgeBaseConfig struct {
	// RecordsDir is the base directory for records (contains extracted/, index/).
	RecordsDir string `json:"records_dir" yaml:"records_dir" mapstructure:"records_dir"`

	// TextDir is where Trace reads source text from.
	TextDir string `json:"text_dir" yaml:"text_dir" mapstructure:"text_dir"`

	// MaxResults is the default maximum number of query results (default 20).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Acquisition   AcquisitionConfig   `json:"acquisition" yaml:"acquisition" mapstructure:"acquisition"`
	Conversion    ConversionConfig    `json:"conversion" yaml:"conversion" mapstructure:"conversion"`
	Extraction    ExtractionConfig    `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	KnowledgeBase KnowledgeBaseConfig `json:"knowledge_base" yaml:"knowledge_base" mapstructure:"knowledge_base"`
}

// DefaultMatchConfig returns the thresholds used for OHZ placenames.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		CharThreshold:        0.5,
		NgramThreshold:       0.5,
		LevenshteinThreshold: 0.5,
		MaxLengthVariance:    1,
		NgramSize:            2,
		StripSuffix:          true,
	}
}

// DefaultLayoutConfig returns the page heuristics for the OHZ charter books.
func DefaultLayoutConfig() LayoutConfig {
	return LayoutConfig{
		MinimumParagraphGap: 10,
		AvgCharWidth:        20,
		RemoveLineNumbers:   true,
		MarginDistance:      70,
	}
}

// DefaultPipelineConfig returns the configuration used when no file,
// environment variable, or flag overrides a value.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Acquisition: AcquisitionConfig{
			HTTPConfig: HTTPConfig{
				Timeout:   60 * time.Second,
				UserAgent: "charterbook/0.1",
			},
			RequestsPerSecond: 1,
			Burst:             1,
			MaxRetries:        5,
			HOCRDir:           "hocr",
		},
		Conversion: ConversionConfig{
			LayoutConfig: DefaultLayoutConfig(),
			HOCRDir:      "hocr",
			TextDir:      "text",
		},
		Extraction: ExtractionConfig{
			TextDir:    "text",
			RecordsDir: "records",
			MinYear:    800,
			MaxYear:    1299,
			Gazetteer: GazetteerConfig{
				Match: DefaultMatchConfig(),
			},
		},
		KnowledgeBase: KnowledgeBaseConfig{
			RecordsDir: "records",
			TextDir:    "text",
			MaxResults: 20,
		},
	}
}
