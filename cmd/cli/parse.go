package main

import (
	"fmt"

	"github.com/kosarica/chunk-service/internal/parsers"
	"github.com/kosarica/chunk-service/internal/parsers/csv"
	"github.com/spf13/cobra"
)

var (
	parseSheet     string
	parseDelimiter string
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Preview the chunks a file would enqueue",
	Long: `Parse a local CSV or XLSX file into chunks without touching the database.
A header row naming a "text" column (and optionally "priority") selects the
columns; without one the first column is the text and the second the priority.`,
	Example: `  chunk-service parse ./chunks.csv
  chunk-service parse ./chunks.xlsx --sheet Batch1 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	addFileFlags(parseCmd, &parseSheet, &parseDelimiter)
}

func addFileFlags(cmd *cobra.Command, sheet, delimiter *string) {
	cmd.Flags().StringVar(sheet, "sheet", "", "XLSX worksheet (default: first sheet)")
	cmd.Flags().StringVar(delimiter, "delimiter", "", "CSV delimiter (default: detected)")
}

func fileOptions(sheet, delimiter string) parsers.Options {
	return parsers.Options{Sheet: sheet, Delimiter: csv.Delimiter(delimiter)}
}

func runParse(cmd *cobra.Command, args []string) error {
	if err := validateOutput(); err != nil {
		return err
	}

	items, err := parsers.ParseFile(args[0], fileOptions(parseSheet, parseDelimiter))
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(items)
	}

	w := newTable()
	fmt.Fprintln(w, "#\tPRIORITY\tLENGTH\tTEXT")
	for i, item := range items {
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\n", i+1, item.Priority, len([]rune(item.Text)), truncate(item.Text, 60))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d chunks\n", len(items))
	return nil
}
