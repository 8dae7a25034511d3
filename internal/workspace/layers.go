package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/psrf/sows-cli/internal/geoerr"
)

// Field describes one attribute column.
type Field struct {
	Name  string    `json:"name"`
	Alias string    `json:"alias,omitempty"`
	Type  FieldType `json:"type"`
}

// Schema describes a dataset to create.
type Schema struct {
	Name         string
	Kind         Kind
	GeometryType GeometryType
	Fields       []Field
}

// Layer is the catalog view of an existing dataset.
type Layer struct {
	Name         string       `json:"name"`
	Kind         Kind         `json:"kind"`
	GeometryType GeometryType `json:"geometry_type,omitempty"`
	Fields       []Field      `json:"fields"`
	RunID        string       `json:"run_id,omitempty"`
	RowCount     int          `json:"row_count"`
}

// Field returns the field named name (case-insensitive).
func (l *Layer) Field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return Field{}, false
}

// FieldNames returns the field names in schema order.
func (l *Layer) FieldNames() []string {
	names := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		names[i] = f.Name
	}
	return names
}

func sqlType(t FieldType) (string, error) {
	switch t {
	case FieldInteger:
		return "INTEGER", nil
	case FieldDouble:
		return "REAL", nil
	case FieldText:
		return "TEXT", nil
	default:
		return "", geoerr.Schema("workspace: field type", "unsupported field type %q", t)
	}
}

// CreateLayer creates a dataset. When the dataset exists it is dropped first
// if the workspace has overwrite enabled, otherwise ErrLayerExists is returned.
func (w *Workspace) CreateLayer(ctx context.Context, s Schema) error {
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	if s.Kind == KindFeature && s.GeometryType == "" {
		return geoerr.Schema("workspace: create layer", "feature class %s needs a geometry type", s.Name)
	}

	cols := []string{quote(fidColumn) + " INTEGER PRIMARY KEY"}
	if s.Kind == KindFeature {
		cols = append(cols, quote(geomColumn)+" BLOB")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if err := validateFieldName(f.Name); err != nil {
			return err
		}
		key := strings.ToLower(f.Name)
		if seen[key] {
			return geoerr.Schema("workspace: create layer", "duplicate field %s in %s", f.Name, s.Name)
		}
		seen[key] = true
		st, err := sqlType(f.Type)
		if err != nil {
			return err
		}
		cols = append(cols, quote(f.Name)+" "+st)
	}

	exists, err := w.Exists(ctx, s.Name)
	if err != nil {
		return err
	}
	if exists && !w.overwrite {
		return eris.Wrapf(ErrLayerExists, "workspace: create %s", s.Name)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "workspace: begin create layer")
	}
	defer tx.Rollback() //nolint:errcheck

	if exists {
		if err := dropLayerTx(ctx, tx, s.Name); err != nil {
			return err
		}
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quote(s.Name), strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return eris.Wrapf(err, "workspace: create table %s", s.Name)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ws_layers (name, kind, geometry_type, run_id) VALUES (?, ?, ?, ?)`,
		s.Name, string(s.Kind), string(s.GeometryType), w.runID,
	); err != nil {
		return eris.Wrapf(err, "workspace: register %s", s.Name)
	}
	for i, f := range s.Fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ws_fields (layer, name, alias, type, position) VALUES (?, ?, ?, ?, ?)`,
			s.Name, f.Name, f.Alias, string(f.Type), i,
		); err != nil {
			return eris.Wrapf(err, "workspace: register field %s.%s", s.Name, f.Name)
		}
	}

	return eris.Wrapf(tx.Commit(), "workspace: commit create %s", s.Name)
}

// ErrLayerExists is returned by CreateLayer when overwrite is disabled.
var ErrLayerExists = eris.New("dataset already exists")

func dropLayerTx(ctx context.Context, tx *sql.Tx, name string) error {
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(name)); err != nil {
		return eris.Wrapf(err, "workspace: drop table %s", name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ws_fields WHERE layer = ?`, name); err != nil {
		return eris.Wrapf(err, "workspace: drop fields of %s", name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM ws_layers WHERE name = ?`, name); err != nil {
		return eris.Wrapf(err, "workspace: unregister %s", name)
	}
	return nil
}

// DropLayer removes a dataset. Dropping a missing dataset is a no-op.
func (w *Workspace) DropLayer(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "workspace: begin drop layer")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := dropLayerTx(ctx, tx, name); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(), "workspace: commit drop %s", name)
}

// Exists reports whether a dataset named name is registered.
func (w *Workspace) Exists(ctx context.Context, name string) (bool, error) {
	var n int
	err := w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ws_layers WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "workspace: lookup %s", name)
	}
	return n > 0, nil
}

// Describe returns the catalog entry for name, including its row count.
func (w *Workspace) Describe(ctx context.Context, name string) (*Layer, error) {
	l := &Layer{}
	var kind, geomType string
	err := w.db.QueryRowContext(ctx,
		`SELECT name, kind, geometry_type, run_id FROM ws_layers WHERE name = ?`, name,
	).Scan(&l.Name, &kind, &geomType, &l.RunID)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, geoerr.NotFound("workspace: describe", "dataset %q not found in %s", name, w.path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "workspace: describe %s", name)
	}
	l.Kind = Kind(kind)
	l.GeometryType = GeometryType(geomType)

	fields, err := w.fields(ctx, l.Name)
	if err != nil {
		return nil, err
	}
	l.Fields = fields

	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(l.Name)).Scan(&l.RowCount); err != nil {
		return nil, eris.Wrapf(err, "workspace: count rows of %s", l.Name)
	}
	return l, nil
}

func (w *Workspace) fields(ctx context.Context, layer string) ([]Field, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT name, alias, type FROM ws_fields WHERE layer = ? ORDER BY position`, layer)
	if err != nil {
		return nil, eris.Wrapf(err, "workspace: list fields of %s", layer)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var f Field
		var t string
		if err := rows.Scan(&f.Name, &f.Alias, &t); err != nil {
			return nil, eris.Wrap(err, "workspace: scan field")
		}
		f.Type = FieldType(t)
		fields = append(fields, f)
	}
	return fields, eris.Wrap(rows.Err(), "workspace: iterate fields")
}

// ListFeatureClasses returns the names of all feature classes, sorted.
func (w *Workspace) ListFeatureClasses(ctx context.Context) ([]string, error) {
	return w.listNames(ctx, KindFeature)
}

// ListTables returns the names of all attribute tables, sorted.
func (w *Workspace) ListTables(ctx context.Context) ([]string, error) {
	return w.listNames(ctx, KindTable)
}

func (w *Workspace) listNames(ctx context.Context, kind Kind) ([]string, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT name FROM ws_layers WHERE kind = ? ORDER BY name COLLATE NOCASE`, string(kind))
	if err != nil {
		return nil, eris.Wrapf(err, "workspace: list %s datasets", kind)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "workspace: scan dataset name")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "workspace: iterate datasets")
}

// ListLayers describes every dataset: feature classes first, then tables.
func (w *Workspace) ListLayers(ctx context.Context) ([]Layer, error) {
	fcs, err := w.ListFeatureClasses(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := w.ListTables(ctx)
	if err != nil {
		return nil, err
	}

	layers := make([]Layer, 0, len(fcs)+len(tables))
	for _, name := range append(fcs, tables...) {
		l, err := w.Describe(ctx, name)
		if err != nil {
			return nil, err
		}
		layers = append(layers, *l)
	}
	return layers, nil
}

// AddField appends a nullable field to a dataset.
func (w *Workspace) AddField(ctx context.Context, layer string, f Field) error {
	l, err := w.Describe(ctx, layer)
	if err != nil {
		return err
	}
	if err := validateFieldName(f.Name); err != nil {
		return err
	}
	if _, ok := l.Field(f.Name); ok {
		return geoerr.Schema("workspace: add field", "field %s already exists in %s", f.Name, l.Name)
	}
	st, err := sqlType(f.Type)
	if err != nil {
		return err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "workspace: begin add field")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(l.Name), quote(f.Name), st)); err != nil {
		return eris.Wrapf(err, "workspace: add column %s.%s", l.Name, f.Name)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ws_fields (layer, name, alias, type, position)
		 SELECT ?, ?, ?, ?, COALESCE(MAX(position), -1) + 1 FROM ws_fields WHERE layer = ?`,
		l.Name, f.Name, f.Alias, string(f.Type), l.Name,
	); err != nil {
		return eris.Wrapf(err, "workspace: register field %s.%s", l.Name, f.Name)
	}
	return eris.Wrap(tx.Commit(), "workspace: commit add field")
}

// RenameField renames a field, keeping its position and alias.
func (w *Workspace) RenameField(ctx context.Context, layer, from, to string) error {
	l, err := w.Describe(ctx, layer)
	if err != nil {
		return err
	}
	src, ok := l.Field(from)
	if !ok {
		return geoerr.Schema("workspace: rename field", "field %s not found in %s", from, l.Name)
	}
	if err := validateFieldName(to); err != nil {
		return err
	}
	if src.Name == to {
		return nil
	}
	if _, clash := l.Field(to); clash && !strings.EqualFold(src.Name, to) {
		return geoerr.Schema("workspace: rename field", "field %s already exists in %s", to, l.Name)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "workspace: begin rename field")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		quote(l.Name), quote(src.Name), quote(to))); err != nil {
		return eris.Wrapf(err, "workspace: rename column %s.%s", l.Name, src.Name)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE ws_fields SET name = ? WHERE layer = ? AND name = ?`, to, l.Name, src.Name); err != nil {
		return eris.Wrapf(err, "workspace: rename field %s.%s", l.Name, src.Name)
	}
	return eris.Wrap(tx.Commit(), "workspace: commit rename field")
}

// SetAlias sets the human-readable alias of a field.
func (w *Workspace) SetAlias(ctx context.Context, layer, field, alias string) error {
	res, err := w.db.ExecContext(ctx,
		`UPDATE ws_fields SET alias = ? WHERE layer = ? AND name = ?`, alias, layer, field)
	if err != nil {
		return eris.Wrapf(err, "workspace: set alias %s.%s", layer, field)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "workspace: rows affected")
	}
	if n == 0 {
		return geoerr.Schema("workspace: set alias", "field %s not found in %s", field, layer)
	}
	return nil
}

// DeleteField removes a field and its data.
func (w *Workspace) DeleteField(ctx context.Context, layer, field string) error {
	l, err := w.Describe(ctx, layer)
	if err != nil {
		return err
	}
	f, ok := l.Field(field)
	if !ok {
		return geoerr.Schema("workspace: delete field", "field %s not found in %s", field, l.Name)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "workspace: begin delete field")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quote(l.Name), quote(f.Name))); err != nil {
		return eris.Wrapf(err, "workspace: drop column %s.%s", l.Name, f.Name)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM ws_fields WHERE layer = ? AND name = ?`, l.Name, f.Name); err != nil {
		return eris.Wrapf(err, "workspace: unregister field %s.%s", l.Name, f.Name)
	}
	return eris.Wrap(tx.Commit(), "workspace: commit delete field")
}

// CopyLayer copies the schema and rows of src into a new dataset dst.
func (w *Workspace) CopyLayer(ctx context.Context, src, dst string) (*Layer, error) {
	l, err := w.Describe(ctx, src)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(l.Name, dst) {
		return nil, geoerr.Schema("workspace: copy layer", "source and target are both %s", dst)
	}
	if err := w.CreateLayer(ctx, Schema{
		Name:         dst,
		Kind:         l.Kind,
		GeometryType: l.GeometryType,
		Fields:       l.Fields,
	}); err != nil {
		return nil, err
	}

	cols := []string{quote(fidColumn)}
	if l.Kind == KindFeature {
		cols = append(cols, quote(geomColumn))
	}
	for _, f := range l.Fields {
		cols = append(cols, quote(f.Name))
	}
	list := strings.Join(cols, ", ")
	if _, err := w.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		quote(dst), list, list, quote(l.Name))); err != nil {
		return nil, eris.Wrapf(err, "workspace: copy rows %s -> %s", l.Name, dst)
	}
	return w.Describe(ctx, dst)
}

// CalculateRatio sets target = numerator / denominator for every row. Rows
// where either operand is null or the denominator is not positive get null.
func (w *Workspace) CalculateRatio(ctx context.Context, layer, target, numerator, denominator string) error {
	l, err := w.Describe(ctx, layer)
	if err != nil {
		return err
	}
	var cols [3]Field
	for i, name := range []string{target, numerator, denominator} {
		f, ok := l.Field(name)
		if !ok {
			return geoerr.Schema("workspace: calculate ratio", "field %s not found in %s", name, l.Name)
		}
		cols[i] = f
	}
	if cols[0].Type != FieldDouble {
		return geoerr.Schema("workspace: calculate ratio", "target %s must be DOUBLE, is %s", cols[0].Name, cols[0].Type)
	}

	q := fmt.Sprintf(
		"UPDATE %s SET %s = CASE WHEN %s IS NOT NULL AND %s > 0 THEN CAST(%s AS REAL) / %s ELSE NULL END",
		quote(l.Name), quote(cols[0].Name),
		quote(cols[1].Name), quote(cols[2].Name),
		quote(cols[1].Name), quote(cols[2].Name),
	)
	if _, err := w.db.ExecContext(ctx, q); err != nil {
		return eris.Wrapf(err, "workspace: calculate %s.%s", l.Name, cols[0].Name)
	}
	return nil
}
