// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/charterbook/internal/extract"
	"github.com/pdiddy/charterbook/internal/gazetteer"
	"github.com/pdiddy/charterbook/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract [files...]",
	Short: "Extract placename and date records from charter text",
	Long: `Extract splits each text into spans and reads a placename and a date
from every span that has both. Records are printed to stdout as YAML.

With --batch every text in the text directory is processed and the records
are written to <records-dir>/extracted/<book>-records.yaml. Unchanged texts
are skipped.

When a gazetteer is configured, placenames are resolved to canonical names
and OCR-garbled spellings are matched fuzzily.`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().Bool("batch", false, "extract every text in text-dir")
	extractCmd.Flags().String("text-dir", "", "directory of converted texts (default text)")
	extractCmd.Flags().String("records-dir", "", "base directory for record output (default records)")
	extractCmd.Flags().String("gazetteer", "", "YAML gazetteer of known places")
	extractCmd.Flags().Bool("bare-years", false, "accept a bare four-digit year when no dating formula is found")
	extractCmd.Flags().BoolP("verbose", "v", false, "report skipped spans on stderr")

	viper.BindPFlag("extraction.text_dir", extractCmd.Flags().Lookup("text-dir"))
	viper.BindPFlag("extraction.records_dir", extractCmd.Flags().Lookup("records-dir"))
	viper.BindPFlag("extraction.gazetteer.path", extractCmd.Flags().Lookup("gazetteer"))
	viper.BindPFlag("extraction.bare_years", extractCmd.Flags().Lookup("bare-years"))

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	pcfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	cfg := pcfg.Extraction

	var log io.Writer
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		log = cmd.ErrOrStderr()
	}

	ex, err := newExtractor(cfg, log)
	if err != nil {
		return err
	}

	batch, _ := cmd.Flags().GetBool("batch")
	if batch {
		summary, err := extract.ExtractAll(cmd.Context(), ex, cfg, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nextracted: %d, skipped: %d, failed: %d\n",
			summary.Extracted, summary.Skipped, summary.Failed)
		if summary.HasFailures() {
			return fmt.Errorf("%d text(s) failed extraction", summary.Failed)
		}
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("provide one or more text files, or use --batch")
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()

	var failed int
	for _, path := range args {
		book := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		result, err := ex.ExtractFile(path, book)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed  %s: %v\n", book, err)
			failed++
			continue
		}
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("writing records: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d text(s) failed extraction", failed)
	}
	return nil
}

// newExtractor builds an extractor, loading the gazetteer when one is
// configured.
func newExtractor(cfg types.ExtractionConfig, log io.Writer) (*extract.Extractor, error) {
	if cfg.Gazetteer.Path == "" {
		return extract.NewExtractor(cfg, nil, log), nil
	}
	g, err := gazetteer.Load(cfg.Gazetteer.Path, cfg.Gazetteer.Match)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "Loaded gazetteer: %d places\n", g.Len())
	return extract.NewExtractor(cfg, g, log), nil
}
