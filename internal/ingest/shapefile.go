package ingest

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/psrf/sows-cli/internal/geoerr"
	"github.com/psrf/sows-cli/internal/workspace"
)

// Dataset is a parsed input ready to be written to a workspace. Each row
// matches Columns; feature classes carry their WKB geometry as an extra
// final element.
type Dataset struct {
	Schema  workspace.Schema
	Columns []string
	Rows    [][]any
	Skipped int
}

// ParseShapefile reads the shapefile at shpPath (with its .dbf sidecar) into
// a feature class named name. An empty name is derived from the file name.
func ParseShapefile(shpPath, name string) (*Dataset, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, geoerr.NotFound("ingest: open shapefile", "cannot open %s: %v", shpPath, err)
	}
	defer func() { _ = reader.Close() }()

	gt, ok := geometryType(reader.GeometryType)
	if !ok {
		return nil, geoerr.Schema("ingest: parse shapefile", "%s has unsupported shape type %d", shpPath, reader.GeometryType)
	}
	if name == "" {
		name = datasetName(shpPath)
	}

	dbfFields := reader.Fields()
	raw := make([]string, len(dbfFields))
	for i, f := range dbfFields {
		raw[i] = strings.TrimRight(f.String(), "\x00")
	}
	names := fieldNames(raw)

	ds := &Dataset{
		Schema: workspace.Schema{
			Name:         name,
			Kind:         workspace.KindFeature,
			GeometryType: gt,
		},
		Columns: names,
	}
	for i, f := range dbfFields {
		ds.Schema.Fields = append(ds.Schema.Fields, workspace.Field{
			Name: names[i],
			Type: dbfFieldType(f),
		})
	}

	for reader.Next() {
		_, shape := reader.Shape()

		row := make([]any, 0, len(dbfFields)+1)
		for i, f := range ds.Schema.Fields {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			row = append(row, convertValue(f.Type, val))
		}

		wkb, encErr := EncodeWKB(shape)
		if encErr != nil || wkb == nil {
			ds.Skipped++
			continue
		}
		row = append(row, wkb)
		ds.Rows = append(ds.Rows, row)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "ingest: read shapefile %s", shpPath)
	}

	if ds.Skipped > 0 {
		zap.L().Debug("ingest: skipped shapefile records",
			zap.String("dataset", name),
			zap.Int("skipped", ds.Skipped),
		)
	}
	return ds, nil
}

func geometryType(st shp.ShapeType) (workspace.GeometryType, bool) {
	switch st {
	case shp.POINT, shp.POINTZ, shp.MULTIPOINT:
		return workspace.GeomPoint, true
	case shp.POLYLINE, shp.POLYLINEZ:
		return workspace.GeomLine, true
	case shp.POLYGON, shp.POLYGONZ:
		return workspace.GeomPolygon, true
	default:
		return "", false
	}
}

// dbfFieldType maps a DBF column to a workspace field type: numeric columns
// with decimals are doubles, other numeric columns integers.
func dbfFieldType(f shp.Field) workspace.FieldType {
	switch f.Fieldtype {
	case 'F':
		return workspace.FieldDouble
	case 'N':
		if f.Precision > 0 {
			return workspace.FieldDouble
		}
		return workspace.FieldInteger
	default:
		return workspace.FieldText
	}
}

// convertValue parses a raw attribute; unparsable numbers become null.
func convertValue(t workspace.FieldType, val string) any {
	if val == "" {
		return nil
	}
	switch t {
	case workspace.FieldInteger:
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			if f, ferr := strconv.ParseFloat(val, 64); ferr == nil {
				return int64(f)
			}
			return nil
		}
		return n
	case workspace.FieldDouble:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return val
	}
}

// datasetName derives a dataset name from a file path.
func datasetName(path string) string {
	base := filepath.Base(path)
	return workspace.SanitizeName(strings.TrimSuffix(base, filepath.Ext(base)))
}

// fieldNames turns raw column headers into unique valid field names.
func fieldNames(raw []string) []string {
	out := make([]string, len(raw))
	taken := make(map[string]bool, len(raw))
	for i, r := range raw {
		base := workspace.SanitizeName(r)
		switch strings.ToLower(base) {
		case "fid", "geom":
			base += "_"
		}
		name := base
		for n := 1; taken[strings.ToLower(name)]; n++ {
			name = base + "_" + strconv.Itoa(n)
		}
		taken[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}
