package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/psrf/sows-cli/internal/workspace"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "List the datasets of a workspace",
	Long:  "Shows every feature class and table in the workspace with its geometry type, row count and the run that created it.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		database, _ := cmd.Flags().GetString("database")
		if database == "" {
			database = cfg.Workspace.Database
		}
		asJSON, _ := cmd.Flags().GetBool("json")

		ws, err := openWorkspace(database, false)
		if err != nil {
			return err
		}
		defer ws.Close() //nolint:errcheck

		layers, err := ws.ListLayers(ctx)
		if err != nil {
			return eris.Wrap(err, "layers")
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(layers)
		}
		if len(layers) == 0 {
			zap.L().Info("workspace is empty", zap.String("workspace", ws.Path()))
			return nil
		}
		formatLayers(os.Stdout, layers)
		return nil
	},
}

func init() {
	layersCmd.Flags().String("database", "", "workspace file (default: workspace.database)")
	layersCmd.Flags().Bool("json", false, "print the catalog as JSON")
	rootCmd.AddCommand(layersCmd)
}

func formatLayers(out io.Writer, layers []workspace.Layer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tKIND\tGEOMETRY\tROWS\tFIELDS\tRUN")
	_, _ = fmt.Fprintln(w, "----\t----\t--------\t----\t------\t---")
	for _, l := range layers {
		geom, run := string(l.GeometryType), l.RunID
		if geom == "" {
			geom = "-"
		}
		if run == "" {
			run = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", l.Name, l.Kind, geom, l.RowCount, len(l.Fields), run)
	}
	_ = w.Flush()
}
