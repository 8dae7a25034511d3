package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/psrf/sows-cli/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load source data into the workspace",
	Long:  "Loads shapefiles, CSV files and spreadsheets into the analysis workspace (workspace.database), creating it if needed.",
}

var importShpCmd = &cobra.Command{
	Use:   "shp <file.shp|file.zip>...",
	Short: "Import shapefiles (or zipped shapefiles) as feature classes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name, _ := cmd.Flags().GetString("name")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		ws, err := openWorkspace(cfg.Workspace.Database, true)
		if err != nil {
			return err
		}
		defer ws.Close() //nolint:errcheck

		results, err := ingest.ImportShapefiles(ctx, ws, args, ingest.Options{Name: name, Concurrency: concurrency})
		formatImports(os.Stdout, results)
		if err != nil {
			return eris.Wrap(err, "import shp")
		}
		return nil
	},
}

var importCSVCmd = &cobra.Command{
	Use:   "csv <file.csv>",
	Short: "Import a CSV file as a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name, _ := cmd.Flags().GetString("name")

		ws, err := openWorkspace(cfg.Workspace.Database, true)
		if err != nil {
			return err
		}
		defer ws.Close() //nolint:errcheck

		res, err := ingest.ImportCSV(ctx, ws, args[0], ingest.Options{Name: name})
		if err != nil {
			return eris.Wrap(err, "import csv")
		}
		formatImports(os.Stdout, []ingest.Result{res})
		return nil
	},
}

var importXLSXCmd = &cobra.Command{
	Use:   "xlsx <file.xlsx>",
	Short: "Import one worksheet as a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name, _ := cmd.Flags().GetString("name")
		sheet, _ := cmd.Flags().GetString("sheet")

		ws, err := openWorkspace(cfg.Workspace.Database, true)
		if err != nil {
			return err
		}
		defer ws.Close() //nolint:errcheck

		res, err := ingest.ImportXLSX(ctx, ws, args[0], sheet, ingest.Options{Name: name})
		if err != nil {
			return eris.Wrap(err, "import xlsx")
		}
		formatImports(os.Stdout, []ingest.Result{res})
		return nil
	},
}

func init() {
	importShpCmd.Flags().String("name", "", "dataset name (single shapefile only; default: file name)")
	importShpCmd.Flags().Int("concurrency", 4, "shapefiles parsed in parallel")
	importCSVCmd.Flags().String("name", "", "table name (default: file name)")
	importXLSXCmd.Flags().String("name", "", "table name (default: file name)")
	importXLSXCmd.Flags().String("sheet", "", "worksheet to load (default: first sheet)")

	importCmd.AddCommand(importShpCmd, importCSVCmd, importXLSXCmd)
	rootCmd.AddCommand(importCmd)
}

func formatImports(out io.Writer, results []ingest.Result) {
	if len(results) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tKIND\tROWS\tSKIPPED\tDURATION")
	_, _ = fmt.Fprintln(w, "-------\t----\t----\t-------\t--------")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", r.Name, r.Kind, r.Rows, r.Skipped, r.Duration.Round(time.Millisecond))
	}
	_ = w.Flush()
}
