// Package ingest loads shapefiles, CSV files and spreadsheets into a
// workspace.
package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/psrf/sows-cli/internal/workspace"
)

const defaultConcurrency = 4

// Options configures an import.
type Options struct {
	// Name overrides the dataset name. Only valid with a single input.
	Name        string
	Concurrency int // parallel shapefile parsers (default 4)
}

// Result reports one imported dataset.
type Result struct {
	Name     string
	Kind     workspace.Kind
	Rows     int64
	Skipped  int
	Duration time.Duration // elapsed since the import started
}

// ImportShapefiles parses the shapefiles in parallel and writes them to ws
// one at a time, in the order given. ZIP archives are unpacked first and
// contribute every shapefile they contain.
func ImportShapefiles(ctx context.Context, ws *workspace.Workspace, paths []string, opts Options) ([]Result, error) {
	paths, cleanup, err := expandArchives(paths)
	defer cleanup()
	if err != nil {
		return nil, err
	}
	if opts.Name != "" && len(paths) > 1 {
		return nil, eris.New("ingest: a dataset name can only be given for a single shapefile")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	log := zap.L().With(zap.String("component", "ingest"))
	start := time.Now()

	parsed := make([]*Dataset, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			ds, err := ParseShapefile(p, opts.Name)
			if err != nil {
				return err
			}
			parsed[i] = ds
			log.Debug("shapefile parsed", zap.String("path", p), zap.Int("rows", len(ds.Rows)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(parsed))
	for i, ds := range parsed {
		res, err := Write(ctx, ws, ds)
		if err != nil {
			return results, eris.Wrapf(err, "ingest: load %s", paths[i])
		}
		res.Duration = time.Since(start)
		results = append(results, res)
	}
	return results, nil
}

// ImportCSV loads a CSV file into ws as a table.
func ImportCSV(ctx context.Context, ws *workspace.Workspace, path string, opts Options) (Result, error) {
	start := time.Now()
	ds, err := ParseCSV(path, opts.Name)
	if err != nil {
		return Result{}, err
	}
	res, err := Write(ctx, ws, ds)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: load %s", path)
	}
	res.Duration = time.Since(start)
	return res, nil
}

// Write creates the dataset in ws, replacing it when the workspace allows
// overwrites, and bulk-loads its rows.
func Write(ctx context.Context, ws *workspace.Workspace, ds *Dataset) (Result, error) {
	if err := ws.CreateLayer(ctx, ds.Schema); err != nil {
		return Result{}, err
	}
	n, err := ws.CopyRows(ctx, ds.Schema.Name, ds.Columns, ds.Rows)
	if err != nil {
		return Result{}, err
	}

	zap.L().Info("dataset loaded",
		zap.String("component", "ingest"),
		zap.String("dataset", ds.Schema.Name),
		zap.String("kind", string(ds.Schema.Kind)),
		zap.Int64("rows", n),
		zap.Int("skipped", ds.Skipped),
	)
	return Result{Name: ds.Schema.Name, Kind: ds.Schema.Kind, Rows: n, Skipped: ds.Skipped}, nil
}

// ImportXLSX loads one sheet of a workbook into ws as a table.
func ImportXLSX(ctx context.Context, ws *workspace.Workspace, path, sheet string, opts Options) (Result, error) {
	start := time.Now()
	ds, err := ParseXLSX(path, opts.Name, sheet)
	if err != nil {
		return Result{}, err
	}
	res, err := Write(ctx, ws, ds)
	if err != nil {
		return Result{}, eris.Wrapf(err, "ingest: load %s", path)
	}
	res.Duration = time.Since(start)
	return res, nil
}
