// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/charterbook/internal/gazetteer"
)

var matchCmd = &cobra.Command{
	Use:   "match <term>",
	Short: "Look up a placename in the gazetteer",
	Long: `Match resolves a placename, exact or OCR-garbled, against the
gazetteer and prints the canonical place. With --in the term is treated as
running text and the best-matching substring is reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

func init() {
	matchCmd.Flags().String("gazetteer", "", "YAML gazetteer of known places")
	matchCmd.Flags().Bool("in", false, "search for a known place inside the text")

	rootCmd.AddCommand(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	pcfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	gcfg := pcfg.Extraction.Gazetteer
	if path, _ := cmd.Flags().GetString("gazetteer"); path != "" {
		gcfg.Path = path
	}
	if gcfg.Path == "" {
		return fmt.Errorf("no gazetteer configured: use --gazetteer or extraction.gazetteer.path")
	}

	g, err := gazetteer.Load(gcfg.Path, gcfg.Match)
	if err != nil {
		return err
	}

	term := strings.Join(args, " ")
	var (
		m  gazetteer.Match
		ok bool
	)
	if in, _ := cmd.Flags().GetBool("in"); in {
		m, ok = g.FindIn(term)
	} else {
		m, ok = g.Resolve(term)
	}
	if !ok {
		return fmt.Errorf("no place matches %q", term)
	}

	kind := "fuzzy"
	if m.Exact {
		kind = "exact"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s) via %q, %s, score %.2f\n",
		m.Surface, m.Name, m.PlaceID, m.Variant, kind, m.Score)
	return nil
}
