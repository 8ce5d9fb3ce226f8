// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the charterbook CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the charterbook CLI.
var rootCmd = &cobra.Command{
	Use:   "charterbook",
	Short: "Extract placenames and dates from OCR'd medieval charter books",
	Long: `charterbook turns scanned charter books into structured placename
attestations. Each stage is a subcommand:

  acquire   download hOCR pages listed in a URL file
  convert   rebuild page text from hOCR into one document per book
  extract   read placename and date records from the text
  records   index records in SQLite, query, trace and export them

Settings come from charterbook.yaml, CHARTERBOOK_* environment variables
and flags, in increasing order of precedence.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./charterbook.yaml or ~/.config/charterbook/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("charterbook")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "charterbook"))
		}
	}

	viper.SetEnvPrefix("CHARTERBOOK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := setDefaults(viper.GetViper()); err != nil {
		fmt.Fprintln(os.Stderr, "warning: loading defaults:", err)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
