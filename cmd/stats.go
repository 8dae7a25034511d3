package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/psrf/sows-cli/internal/sows"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compute SOWS summary statistics per geography",
	Long: `Runs the statistics pipeline for every configured geography (analysis.geographies)
and writes one <geography>_SOWS_Stats feature class per region layer.

Use --geography to process a subset. A failing geography is reported and the
remaining ones still run; the command exits non-zero if any failed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(); err != nil {
			return err
		}
		pcfg, err := pipelineConfig(cfg)
		if err != nil {
			return eris.Wrap(err, "stats: load field mapping")
		}

		geographies, _ := cmd.Flags().GetStringSlice("geography")
		if len(geographies) == 0 {
			geographies = pcfg.Geographies
		}
		showMessages, _ := cmd.Flags().GetBool("messages")

		ws, err := openWorkspace(cfg.Workspace.Database, false)
		if err != nil {
			return err
		}
		defer ws.Close() //nolint:errcheck

		zap.L().Info("starting SOWS statistics",
			zap.String("workspace", ws.Path()),
			zap.Strings("geographies", geographies),
		)

		results, runErr := sows.New(ws, pcfg).Run(ctx, geographies...)
		formatResults(os.Stdout, results, runErr, showMessages)
		if runErr != nil {
			return eris.Wrap(runErr, "stats")
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().StringSlice("geography", nil, "region layer(s) to process (default: analysis.geographies)")
	statsCmd.Flags().Bool("messages", false, "print the geoprocessing messages of every geography")
	rootCmd.AddCommand(statsCmd)
}

// formatResults writes one line per geography and, when asked, the toolbox
// messages collected for each.
func formatResults(out io.Writer, results []*sows.Result, runErr error, showMessages bool) {
	failed := make(map[string]string)
	for _, e := range runErrors(runErr) {
		failed[e.Geography] = e.Error()
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "GEOGRAPHY\tSTATUS\tOUTPUT\tROWS\tSTEPS\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "---------\t------\t------\t----\t-----\t--------\t-----")
	for _, r := range results {
		if r == nil {
			continue
		}
		status, output, errMsg := "ok", r.Output, ""
		if msg, ok := failed[r.Geography]; ok {
			status, output, errMsg = "failed", "-", truncate(msg, 80)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.Geography,
			status,
			output,
			r.Rows,
			len(r.Steps),
			r.Duration.Round(time.Millisecond),
			errMsg,
		)
	}
	_ = w.Flush()

	if !showMessages {
		return
	}
	for _, r := range results {
		if r == nil || len(r.Messages) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(out, "\n%s:\n", r.Geography)
		for _, m := range r.Messages {
			_, _ = fmt.Fprintf(out, "  %s\n", m)
		}
	}
}

// runErrors collects the per-geography failures combined in err.
func runErrors(err error) []*sows.RunError {
	var out []*sows.RunError
	for _, e := range multierr.Errors(err) {
		var re *sows.RunError
		if errors.As(e, &re) {
			out = append(out, re)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
