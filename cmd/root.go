package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/psrf/sows-cli/internal/config"
	"github.com/psrf/sows-cli/internal/fieldmap"
	"github.com/psrf/sows-cli/internal/sows"
	"github.com/psrf/sows-cli/internal/workspace"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sows-cli",
	Short: "Shoreline structure summary statistics",
	Long:  "Summarizes shoreline overwater structures (SOWS) within reporting geographies and exports the deliverable tables.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// openWorkspace binds database inside the configured project folder.
func openWorkspace(database string, create bool) (*workspace.Workspace, error) {
	return workspace.Bind(workspace.BindConfig{
		Dir:       cfg.Workspace.Dir,
		Database:  database,
		Overwrite: cfg.Workspace.Overwrite,
		Create:    create,
	})
}

// pipelineConfig maps the analysis section and the field mapping file onto
// the pipeline parameters.
func pipelineConfig(c *config.Config) (sows.Config, error) {
	fields, err := fieldmap.Load(c.Fields.MappingFile)
	if err != nil {
		return sows.Config{}, err
	}
	return sows.Config{
		Structures:     c.Analysis.Structures,
		Shoreline:      c.Analysis.Shoreline,
		AreaField:      c.Analysis.AreaField,
		SnapTolerance:  c.Analysis.SnapTolerance,
		SplitTolerance: c.Analysis.SplitTolerance,
		MetersPerUnit:  c.Analysis.MetersPerUnit,
		Geographies:    c.Analysis.Geographies,
		Fields:         fields,
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
