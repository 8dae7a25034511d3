// Package export writes every dataset of a workspace to flat files.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/psrf/sows-cli/internal/geoerr"
	"github.com/psrf/sows-cli/internal/workspace"
)

// Format selects the output file type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// GeometryColumn is the trailing column added when geometry is exported.
const GeometryColumn = "wkt"

// ParseFormat resolves a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	case "":
		return FormatCSV, nil
	default:
		return "", geoerr.Schema("export: parse format", "unknown format %q (want csv or xlsx)", s)
	}
}

// Options configures an export.
type Options struct {
	OutputDir       string
	Format          Format
	IncludeGeometry bool // append a WKT column to feature classes
}

// File reports one written file.
type File struct {
	Dataset string `json:"dataset"`
	Path    string `json:"path"`
	Rows    int    `json:"rows"`
}

// table is a dataset flattened to a header and typed cell values.
type table struct {
	header []string
	rows   [][]any
}

// Export writes every feature class and table of ws to its own file named
// after the dataset. An empty workspace writes nothing and is not an error.
// The first failing dataset stops the export.
func Export(ctx context.Context, ws *workspace.Workspace, opts Options) ([]File, error) {
	log := zap.L().With(zap.String("component", "export"))
	if opts.Format == "" {
		opts.Format = FormatCSV
	}
	if _, err := ParseFormat(string(opts.Format)); err != nil {
		return nil, err
	}

	fcs, err := ws.ListFeatureClasses(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := ws.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	datasets := append(fcs, tables...)
	if len(datasets) == 0 {
		log.Info("export: no data found in workspace", zap.String("workspace", ws.Path()))
		return nil, nil
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create output dir %s", opts.OutputDir)
	}

	files := make([]File, 0, len(datasets))
	for _, name := range datasets {
		if err := ctx.Err(); err != nil {
			return files, eris.Wrap(err, "export: cancelled")
		}
		f, err := exportDataset(ctx, ws, name, opts)
		if err != nil {
			log.Error("export: dataset failed", zap.String("dataset", name), zap.Error(err))
			return files, geoerr.Engine("export: "+name, err)
		}
		log.Info("export: dataset written",
			zap.String("dataset", name),
			zap.String("path", f.Path),
			zap.Int("rows", f.Rows),
		)
		files = append(files, f)
	}
	return files, nil
}

func exportDataset(ctx context.Context, ws *workspace.Workspace, name string, opts Options) (File, error) {
	l, err := ws.Describe(ctx, name)
	if err != nil {
		return File{}, err
	}
	feats, err := ws.ReadFeatures(ctx, name)
	if err != nil {
		return File{}, err
	}

	withGeom := opts.IncludeGeometry && l.Kind == workspace.KindFeature
	t := table{}
	t.header = l.FieldNames()
	if withGeom {
		t.header = append(t.header, GeometryColumn)
	}
	for _, feat := range feats {
		row := make([]any, 0, len(t.header))
		for _, f := range l.Fields {
			row = append(row, feat.Values[f.Name])
		}
		if withGeom {
			if feat.Geometry == nil {
				row = append(row, nil)
			} else {
				row = append(row, wkt.MarshalString(feat.Geometry))
			}
		}
		t.rows = append(t.rows, row)
	}

	path := filepath.Join(opts.OutputDir, l.Name+"."+string(opts.Format))
	switch opts.Format {
	case FormatXLSX:
		err = writeXLSX(path, l.Name, t)
	default:
		err = writeCSV(path, t)
	}
	if err != nil {
		return File{}, err
	}
	return File{Dataset: l.Name, Path: path, Rows: len(t.rows)}, nil
}

// formatValue renders a cell; nulls are empty.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
