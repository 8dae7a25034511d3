package workspace

import (
	"context"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/rotisserie/eris"

	"github.com/psrf/sows-cli/internal/geoerr"
)

// Feature is one row of a dataset. Values are keyed by field name and hold
// int64, float64, string or nil.
type Feature struct {
	FID      int64
	Geometry orb.Geometry
	Values   map[string]any
}

// Float returns the value of field as a float64; ok is false for nulls and
// non-numeric values.
func (f Feature) Float(field string) (float64, bool) {
	switch v := f.Values[field].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Count returns the number of rows in a dataset.
func (w *Workspace) Count(ctx context.Context, name string) (int, error) {
	l, err := w.Describe(ctx, name)
	if err != nil {
		return 0, err
	}
	return l.RowCount, nil
}

// ReadFeatures loads every row of a dataset in fid order.
func (w *Workspace) ReadFeatures(ctx context.Context, name string) ([]Feature, error) {
	l, err := w.Describe(ctx, name)
	if err != nil {
		return nil, err
	}

	cols := []string{quote(fidColumn)}
	if l.Kind == KindFeature {
		cols = append(cols, quote(geomColumn))
	}
	for _, f := range l.Fields {
		cols = append(cols, quote(f.Name))
	}

	rows, err := w.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), quote(l.Name), quote(fidColumn)))
	if err != nil {
		return nil, eris.Wrapf(err, "workspace: read %s", l.Name)
	}
	defer rows.Close()

	var features []Feature
	for rows.Next() {
		var fid int64
		var geomBytes []byte
		vals := make([]any, len(l.Fields))
		dest := []any{&fid}
		if l.Kind == KindFeature {
			dest = append(dest, &geomBytes)
		}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrapf(err, "workspace: scan %s", l.Name)
		}

		feat := Feature{FID: fid, Values: make(map[string]any, len(l.Fields))}
		if len(geomBytes) > 0 {
			g, err := wkb.Unmarshal(geomBytes)
			if err != nil {
				return nil, eris.Wrapf(err, "workspace: decode geometry %s fid %d", l.Name, fid)
			}
			feat.Geometry = g
		}
		for i, f := range l.Fields {
			feat.Values[f.Name] = normalizeValue(f.Type, vals[i])
		}
		features = append(features, feat)
	}
	return features, eris.Wrapf(rows.Err(), "workspace: iterate %s", l.Name)
}

// normalizeValue maps driver values to the Feature value set.
func normalizeValue(t FieldType, v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(x)
	case int64:
		if t == FieldDouble {
			return float64(x)
		}
		return x
	case float64:
		if t == FieldInteger && x == float64(int64(x)) {
			return int64(x)
		}
		return x
	default:
		return x
	}
}

// InsertFeatures appends features to a dataset in a single transaction.
// A zero FID lets the workspace assign one. Values for unknown fields are
// rejected.
func (w *Workspace) InsertFeatures(ctx context.Context, name string, features []Feature) error {
	l, err := w.Describe(ctx, name)
	if err != nil {
		return err
	}
	if len(features) == 0 {
		return nil
	}

	cols := []string{quote(fidColumn)}
	if l.Kind == KindFeature {
		cols = append(cols, quote(geomColumn))
	}
	for _, f := range l.Fields {
		cols = append(cols, quote(f.Name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "workspace: begin insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(l.Name), strings.Join(cols, ", "), placeholders))
	if err != nil {
		return eris.Wrapf(err, "workspace: prepare insert %s", l.Name)
	}
	defer stmt.Close()

	for _, feat := range features {
		for key := range feat.Values {
			if _, ok := l.Field(key); !ok {
				return geoerr.Schema("workspace: insert", "field %s not found in %s", key, l.Name)
			}
		}

		args := make([]any, 0, len(cols))
		if feat.FID > 0 {
			args = append(args, feat.FID)
		} else {
			args = append(args, nil)
		}
		if l.Kind == KindFeature {
			b, err := encodeGeometry(feat.Geometry)
			if err != nil {
				return eris.Wrapf(err, "workspace: encode geometry for %s", l.Name)
			}
			args = append(args, b)
		}
		for _, f := range l.Fields {
			args = append(args, lookupValue(feat.Values, f.Name))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "workspace: insert into %s", l.Name)
		}
	}

	return eris.Wrapf(tx.Commit(), "workspace: commit insert %s", l.Name)
}

// lookupValue finds a value by exact key first, then case-insensitively.
func lookupValue(values map[string]any, field string) any {
	if v, ok := values[field]; ok {
		return v
	}
	for k, v := range values {
		if strings.EqualFold(k, field) {
			return v
		}
	}
	return nil
}

func encodeGeometry(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	return wkb.Marshal(g)
}

// CopyRows bulk-loads pre-encoded rows. columns names the attribute fields
// of each row in order; for feature classes every row carries its WKB
// geometry as an extra final element.
func (w *Workspace) CopyRows(ctx context.Context, name string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	l, err := w.Describe(ctx, name)
	if err != nil {
		return 0, err
	}

	cols := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		f, ok := l.Field(c)
		if !ok {
			return 0, geoerr.Schema("workspace: copy rows", "field %s not found in %s", c, l.Name)
		}
		cols = append(cols, quote(f.Name))
	}
	width := len(columns)
	if l.Kind == KindFeature {
		cols = append(cols, quote(geomColumn))
		width++
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "workspace: begin copy")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(l.Name), strings.Join(cols, ", "), placeholders))
	if err != nil {
		return 0, eris.Wrapf(err, "workspace: prepare copy %s", l.Name)
	}
	defer stmt.Close()

	var n int64
	for i, row := range rows {
		if len(row) != width {
			return 0, geoerr.Schema("workspace: copy rows", "row %d of %s has %d values, want %d", i, l.Name, len(row), width)
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, eris.Wrapf(err, "workspace: copy into %s", l.Name)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "workspace: commit copy %s", l.Name)
	}
	return n, nil
}

// UpdateGeometries replaces the geometry of the given rows in place.
func (w *Workspace) UpdateGeometries(ctx context.Context, name string, geoms map[int64]orb.Geometry) error {
	l, err := w.Describe(ctx, name)
	if err != nil {
		return err
	}
	if l.Kind != KindFeature {
		return geoerr.Schema("workspace: update geometry", "%s is not a feature class", l.Name)
	}
	return w.updateColumn(ctx, l.Name, geomColumn, len(geoms), func(exec func(any, int64) error) error {
		for fid, g := range geoms {
			b, err := encodeGeometry(g)
			if err != nil {
				return eris.Wrapf(err, "workspace: encode geometry fid %d", fid)
			}
			if err := exec(b, fid); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateValues sets one field on the given rows.
func (w *Workspace) UpdateValues(ctx context.Context, name, field string, values map[int64]any) error {
	l, err := w.Describe(ctx, name)
	if err != nil {
		return err
	}
	f, ok := l.Field(field)
	if !ok {
		return geoerr.Schema("workspace: update values", "field %s not found in %s", field, l.Name)
	}
	return w.updateColumn(ctx, l.Name, f.Name, len(values), func(exec func(any, int64) error) error {
		for fid, v := range values {
			if err := exec(v, fid); err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *Workspace) updateColumn(ctx context.Context, layer, column string, n int, each func(exec func(any, int64) error) error) error {
	if n == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "workspace: begin update")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?",
		quote(layer), quote(column), quote(fidColumn)))
	if err != nil {
		return eris.Wrapf(err, "workspace: prepare update %s.%s", layer, column)
	}
	defer stmt.Close()

	err = each(func(v any, fid int64) error {
		res, err := stmt.ExecContext(ctx, v, fid)
		if err != nil {
			return eris.Wrapf(err, "workspace: update %s.%s fid %d", layer, column, fid)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return geoerr.NotFound("workspace: update", "fid %d not found in %s", fid, layer)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(), "workspace: commit update %s.%s", layer, column)
}
