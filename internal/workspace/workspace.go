// Package workspace binds a file-based geodatabase and provides dataset
// level storage for feature classes and tables.
//
// A workspace is a single SQLite file. The catalog lives in ws_layers and
// ws_fields; every dataset is a table of its own named after the dataset with
// an integer fid, an optional WKB geometry column and one column per field.
package workspace

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/psrf/sows-cli/internal/geoerr"
)

// Kind distinguishes feature classes from plain tables.
type Kind string

const (
	// KindFeature is a dataset with a geometry column.
	KindFeature Kind = "feature"
	// KindTable is an attribute-only dataset.
	KindTable Kind = "table"
)

// FieldType is the storage type of an attribute field.
type FieldType string

const (
	FieldInteger FieldType = "INTEGER"
	FieldDouble  FieldType = "DOUBLE"
	FieldText    FieldType = "TEXT"
)

// GeometryType names the geometry stored in a feature class.
type GeometryType string

const (
	GeomPoint   GeometryType = "Point"
	GeomLine    GeometryType = "Polyline"
	GeomPolygon GeometryType = "Polygon"
)

// BindConfig resolves the workspace location.
type BindConfig struct {
	Dir       string // project folder; empty = current directory
	Database  string // workspace file name inside Dir
	Overwrite bool   // replace existing datasets on create
	Create    bool   // create the workspace file when missing
}

// Options configures an opened workspace.
type Options struct {
	Overwrite bool
	Create    bool
	RunID     string // tagged on datasets created through this handle
}

// Workspace is an open geodatabase.
type Workspace struct {
	db        *sql.DB
	path      string
	overwrite bool
	runID     string
}

// Bind resolves cfg.Dir and cfg.Database to a workspace file and opens it.
func Bind(cfg BindConfig) (*Workspace, error) {
	dir := cfg.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, eris.Wrap(err, "workspace: resolve working directory")
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "workspace: resolve %s", dir)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, geoerr.NotFound("workspace: bind", "directory %s does not exist", abs)
	}
	if cfg.Database == "" {
		return nil, geoerr.NotFound("workspace: bind", "no workspace database configured in %s", abs)
	}

	ws, err := Open(filepath.Join(abs, cfg.Database), Options{Overwrite: cfg.Overwrite, Create: cfg.Create})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("workspace bound",
		zap.String("component", "workspace"),
		zap.String("path", ws.path),
		zap.Bool("overwrite", ws.overwrite),
	)
	return ws, nil
}

// Open opens the workspace file at path and migrates the catalog.
func Open(path string, opts Options) (*Workspace, error) {
	if !opts.Create {
		if _, err := os.Stat(path); err != nil {
			return nil, geoerr.NotFound("workspace: open", "workspace %s does not exist", path)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "workspace: open")
	}
	// One connection keeps schema changes and reads on the same view.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "workspace: exec %s", pragma)
		}
	}

	ws := &Workspace{db: db, path: path, overwrite: opts.Overwrite, runID: opts.RunID}
	if err := ws.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return ws, nil
}

const catalogMigration = `
CREATE TABLE IF NOT EXISTS ws_layers (
	name          TEXT PRIMARY KEY COLLATE NOCASE,
	kind          TEXT NOT NULL,
	geometry_type TEXT NOT NULL DEFAULT '',
	run_id        TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ws_fields (
	layer    TEXT NOT NULL COLLATE NOCASE,
	name     TEXT NOT NULL COLLATE NOCASE,
	alias    TEXT NOT NULL DEFAULT '',
	type     TEXT NOT NULL,
	position INTEGER NOT NULL,
	PRIMARY KEY (layer, name)
);

CREATE INDEX IF NOT EXISTS idx_ws_fields_layer ON ws_fields(layer);
`

func (w *Workspace) migrate(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, catalogMigration)
	return eris.Wrap(err, "workspace: migrate")
}

// Path returns the workspace file path.
func (w *Workspace) Path() string { return w.path }

// Overwrite reports whether existing datasets are replaced on create.
func (w *Workspace) Overwrite() bool { return w.overwrite }

// RunID returns the run id tagged on datasets created through w.
func (w *Workspace) RunID() string { return w.runID }

// WithRunID returns a handle sharing w's connection that tags new datasets
// with runID.
func (w *Workspace) WithRunID(runID string) *Workspace {
	cp := *w
	cp.runID = runID
	return &cp
}

// Close releases the database handle.
func (w *Workspace) Close() error {
	return w.db.Close()
}
