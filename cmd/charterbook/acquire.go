// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/charterbook/internal/acquire"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire <url-file>",
	Short: "Download the hOCR pages of a book",
	Long: `Acquire reads a file of page URLs (one per line, # for comments) and
downloads each page into <hocr-dir>/<book>/. Pages already on disk are
skipped. Requests are rate limited and retried when the server answers
HTTP 429.`,
	Args: cobra.ExactArgs(1),
	RunE: runAcquire,
}

func init() {
	acquireCmd.Flags().String("book", "", "book identifier, used as the page directory name (required)")
	acquireCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	acquireCmd.Flags().Float64("rate", 0, "requests per second (default 1)")
	acquireCmd.Flags().String("hocr-dir", "", "base directory for hOCR pages (default hocr)")
	acquireCmd.MarkFlagRequired("book")

	viper.BindPFlag("acquisition.timeout", acquireCmd.Flags().Lookup("timeout"))
	viper.BindPFlag("acquisition.requests_per_second", acquireCmd.Flags().Lookup("rate"))
	viper.BindPFlag("acquisition.hocr_dir", acquireCmd.Flags().Lookup("hocr-dir"))

	rootCmd.AddCommand(acquireCmd)
}

func runAcquire(cmd *cobra.Command, args []string) error {
	pcfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	cfg := pcfg.Acquisition
	book, _ := cmd.Flags().GetString("book")

	urls, err := acquire.ReadURLs(args[0])
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs in %s", args[0])
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
	}

	result, err := acquire.AcquireBook(cmd.Context(), client, book, urls, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d page(s) failed to download", result.Failed)
	}
	return nil
}
