package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/psrf/sows-cli/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every dataset of a deliverables workspace",
	Long: `Writes each feature class and table of the deliverables workspace
(export.database) to its own CSV or XLSX file named after the dataset.

The stats command writes its layers to the analysis workspace
(workspace.database, SOWs.db by default), not to export.database. To export
those results directly, pass --database SOWs.db or set export.database.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		database, _ := cmd.Flags().GetString("database")
		if database == "" {
			database = cfg.Export.Database
		}
		outDir, _ := cmd.Flags().GetString("out")
		if outDir == "" {
			outDir = resolveOutputDir(cfg.Workspace.Dir, cfg.Export.OutputDir)
		}
		formatStr, _ := cmd.Flags().GetString("format")
		if formatStr == "" {
			formatStr = cfg.Export.Format
		}
		format, err := export.ParseFormat(formatStr)
		if err != nil {
			return err
		}
		includeGeometry := cfg.Export.IncludeGeometry
		if cmd.Flags().Changed("geometry") {
			includeGeometry, _ = cmd.Flags().GetBool("geometry")
		}

		ws, err := openWorkspace(database, false)
		if err != nil {
			return err
		}
		defer ws.Close() //nolint:errcheck

		files, err := export.Export(ctx, ws, export.Options{
			OutputDir:       outDir,
			Format:          format,
			IncludeGeometry: includeGeometry,
		})
		if err != nil {
			return eris.Wrap(err, "export")
		}
		if len(files) == 0 {
			zap.L().Info("no datasets exported", zap.String("workspace", ws.Path()))
			return nil
		}

		formatFiles(os.Stdout, files)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("database", "", "workspace file to export (default: export.database)")
	exportCmd.Flags().String("out", "", "output directory (default: export.output_dir)")
	exportCmd.Flags().String("format", "", "output format: csv or xlsx (default: export.format)")
	exportCmd.Flags().Bool("geometry", false, "append a WKT geometry column to feature classes")
	rootCmd.AddCommand(exportCmd)
}

// resolveOutputDir places a relative output directory inside the project
// folder.
func resolveOutputDir(projectDir, outDir string) string {
	if outDir == "" || filepath.IsAbs(outDir) || projectDir == "" {
		return outDir
	}
	return filepath.Join(projectDir, outDir)
}

func formatFiles(out io.Writer, files []export.File) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATASET\tROWS\tFILE")
	_, _ = fmt.Fprintln(w, "-------\t----\t----")
	for _, f := range files {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\n", f.Dataset, f.Rows, f.Path)
	}
	_ = w.Flush()
}
