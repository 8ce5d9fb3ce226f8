// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/charterbook/internal/knowledge"
	"github.com/pdiddy/charterbook/pkg/types"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage the record index (store, retrieve, places, trace, export)",
	Long: `Records manages a local SQLite index built from extracted charter
records. Use subcommands to index records, query them, summarize places,
trace a record back to its page, or export.`,
}

// --- store subcommand ---

var recordsStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Index extracted records",
	Long: `Store reads record files from <records-dir>/extracted/, loads them
into <records-dir>/index/charters.db and writes export.yaml. Unchanged
books are skipped on subsequent runs.`,
	RunE: runRecordsStore,
}

func runRecordsStore(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d book(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- retrieve subcommand ---

var recordsRetrieveCmd = &cobra.Command{
	Use:   "retrieve [placename]",
	Short: "Query records by placename, place, charter, book or year",
	RunE:  runRecordsRetrieve,
}

func runRecordsRetrieve(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("filter required: provide a placename, --place, --charter, --book, --from or --to")
	}

	results, err := store.Retrieve(cmd.Context(), opts)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatRetrieveOutput(cmd.OutOrStdout(), results, jsonOutput)
}

func formatRetrieveOutput(w io.Writer, results []types.CharterRecord, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "%-14s  %-20s  %-20s  %-10s  %-4s  %s\n",
		"Charter", "Placename", "Place", "Date", "Page", "Conf")
	fmt.Fprintln(w, strings.Repeat("-", 84))

	for _, r := range results {
		fmt.Fprintf(w, "%-14s  %-20s  %-20s  %-10s  %-4d  %.2f\n",
			truncate(r.CharterID, 14), truncate(r.Placename, 20),
			truncate(r.NormalizedPlacename, 20), r.Date, r.Page, r.Confidence)
	}

	fmt.Fprintf(w, "\n%d results\n", len(results))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// --- places subcommand ---

var recordsPlacesCmd = &cobra.Command{
	Use:   "places",
	Short: "Summarize attestations per place",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		book, _ := cmd.Flags().GetString("book")
		places, err := store.Places(cmd.Context(), book)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(places)
		}
		fmt.Fprintf(w, "%-24s  %-16s  %6s  %8s  %s\n", "Place", "ID", "Count", "Charters", "Years")
		fmt.Fprintln(w, strings.Repeat("-", 72))
		for _, p := range places {
			fmt.Fprintf(w, "%-24s  %-16s  %6d  %8d  %d-%d\n",
				truncate(p.Place, 24), truncate(p.PlaceID, 16), p.Attestations, p.Charters, p.FirstYear, p.LastYear)
		}
		return nil
	},
}

// --- trace subcommand ---

var recordsTraceCmd = &cobra.Command{
	Use:   "trace <record-id>",
	Short: "Show a record with the text of its source page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		tr, err := store.Trace(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		r := tr.Record
		fmt.Fprintf(w, "Record:    %s\n", r.ID)
		fmt.Fprintf(w, "Charter:   %s (page %d)\n", r.CharterID, r.Page)
		fmt.Fprintf(w, "Placename: %s", r.Placename)
		if r.NormalizedPlacename != "" {
			fmt.Fprintf(w, " -> %s", r.NormalizedPlacename)
		}
		fmt.Fprintf(w, "\nDate:      %s (%q)\n", r.Date, r.DateText)
		if r.Note != "" {
			fmt.Fprintf(w, "Note:      %s\n", r.Note)
		}
		fmt.Fprintf(w, "Span:      %s\n\n--- %s ---\n%s\n", r.Span, tr.Source, tr.PageText)
		return nil
	},
}

// --- export subcommand ---

var recordsExportCmd = &cobra.Command{
	Use:   "export [placename]",
	Short: "Export records to YAML or JSON",
	Long: `Export writes all records (or a filtered subset) to
<records-dir>/index/export.yaml or export.json. Supports the same filter
flags as retrieve.`,
	RunE: runRecordsExport,
}

func runRecordsExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)

	switch format {
	case "yaml", "":
		if err := store.ExportYAML(cmd.Context(), opts); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", store.ExportPath("yaml"))
	case "json":
		if err := store.ExportJSON(cmd.Context(), opts); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", store.ExportPath("json"))
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
	return nil
}

// --- shared helpers ---

func openStore() (*knowledge.Store, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return knowledge.NewStore(cfg.KnowledgeBase)
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) knowledge.QueryOptions {
	placename, _ := cmd.Flags().GetString("placename")
	if placename == "" && len(args) > 0 {
		placename = strings.Join(args, " ")
	}
	placeID, _ := cmd.Flags().GetString("place")
	charter, _ := cmd.Flags().GetString("charter")
	book, _ := cmd.Flags().GetString("book")
	from, _ := cmd.Flags().GetInt("from")
	to, _ := cmd.Flags().GetInt("to")
	limit, _ := cmd.Flags().GetInt("limit")

	return knowledge.QueryOptions{
		Placename:  placename,
		PlaceID:    placeID,
		Charter:    charter,
		Book:       book,
		YearFrom:   from,
		YearTo:     to,
		MaxResults: limit,
	}
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("placename", "", "placename substring (surface or normalized form)")
	cmd.Flags().String("place", "", "filter by gazetteer place ID")
	cmd.Flags().String("charter", "", "filter by charter ID, e.g. ohz-1:312")
	cmd.Flags().String("book", "", "filter by book")
	cmd.Flags().Int("from", 0, "earliest year, inclusive")
	cmd.Flags().Int("to", 0, "latest year, inclusive")
	cmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
}

func init() {
	recordsCmd.PersistentFlags().String("records-dir", "", "base directory for records (contains extracted/, index/)")
	recordsCmd.PersistentFlags().String("text-dir", "", "directory of converted texts, for trace")
	recordsCmd.PersistentFlags().Int("max-results", 0, "default maximum number of query results")

	viper.BindPFlag("knowledge_base.records_dir", recordsCmd.PersistentFlags().Lookup("records-dir"))
	viper.BindPFlag("knowledge_base.text_dir", recordsCmd.PersistentFlags().Lookup("text-dir"))
	viper.BindPFlag("knowledge_base.max_results", recordsCmd.PersistentFlags().Lookup("max-results"))

	addFilterFlags(recordsRetrieveCmd)
	recordsRetrieveCmd.Flags().Bool("json", false, "output results as JSON")

	recordsPlacesCmd.Flags().String("book", "", "limit to one book")
	recordsPlacesCmd.Flags().Bool("json", false, "output as JSON")

	addFilterFlags(recordsExportCmd)
	recordsExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	recordsCmd.AddCommand(recordsStoreCmd)
	recordsCmd.AddCommand(recordsRetrieveCmd)
	recordsCmd.AddCommand(recordsPlacesCmd)
	recordsCmd.AddCommand(recordsTraceCmd)
	recordsCmd.AddCommand(recordsExportCmd)

	rootCmd.AddCommand(recordsCmd)
}
