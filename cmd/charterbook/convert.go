// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/charterbook/internal/convert"
)

var convertCmd = &cobra.Command{
	Use:   "convert [book-dirs...]",
	Short: "Convert hOCR pages into one text document per book",
	Long: `Convert reads the hOCR pages of each book directory, rebuilds word
spacing from the bounding boxes, removes the printed margin line numbers,
groups lines into paragraphs and merges hyphenated line breaks. The result
is written to <text-dir>/<book>.md with a <!-- page N --> marker per page.

With --batch every subdirectory of the hOCR directory is converted. Books
whose text is newer than all of their pages are skipped.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().Bool("batch", false, "convert every book under hocr-dir")
	convertCmd.Flags().String("hocr-dir", "", "base directory for hOCR pages (default hocr)")
	convertCmd.Flags().String("text-dir", "", "output directory for text documents (default text)")
	convertCmd.Flags().Bool("keep-line-numbers", false, "keep the printed margin line numbers")

	viper.BindPFlag("conversion.hocr_dir", convertCmd.Flags().Lookup("hocr-dir"))
	viper.BindPFlag("conversion.text_dir", convertCmd.Flags().Lookup("text-dir"))

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	pcfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	cfg := pcfg.Conversion
	if keep, _ := cmd.Flags().GetBool("keep-line-numbers"); keep {
		cfg.RemoveLineNumbers = false
	}

	batch, _ := cmd.Flags().GetBool("batch")
	var result convert.BatchResult
	switch {
	case batch:
		result, err = convert.ConvertAll(cfg, cmd.OutOrStdout())
		if err != nil {
			return err
		}
	case len(args) > 0:
		result = convert.ConvertBooks(args, cfg.TextDir, cfg.LayoutConfig, cmd.OutOrStdout())
	default:
		return fmt.Errorf("provide one or more book directories, or use --batch")
	}

	if result.HasFailures() {
		return fmt.Errorf("%d book(s) failed conversion", result.Failed)
	}
	return nil
}
