package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/psrf/sows-cli/internal/geoerr"
	"github.com/psrf/sows-cli/internal/workspace"
)

// ParseCSV reads a CSV file with a header row into a table named name. An
// empty name is derived from the file name. Column types are inferred:
// integer when every non-empty value parses as one, double when every value
// is numeric and text otherwise.
func ParseCSV(path, name string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, geoerr.NotFound("ingest: open csv", "cannot open %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck

	if name == "" {
		name = datasetName(path)
	}
	return readCSV(f, name)
}

func readCSV(r io.Reader, name string) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, geoerr.Schema("ingest: parse csv", "%s has no header row", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read csv header %s", name)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read csv %s", name)
	}
	return tableFromRecords(name, header, records), nil
}

// tableFromRecords builds a table dataset from a header and string records.
func tableFromRecords(name string, header []string, records [][]string) *Dataset {
	names := fieldNames(header)
	ds := &Dataset{
		Schema:  workspace.Schema{Name: name, Kind: workspace.KindTable},
		Columns: names,
	}
	for i, n := range names {
		ds.Schema.Fields = append(ds.Schema.Fields, workspace.Field{Name: n, Type: inferType(records, i)})
	}

	for _, rec := range records {
		row := make([]any, len(names))
		for i, f := range ds.Schema.Fields {
			if i < len(rec) {
				row[i] = convertValue(f.Type, strings.TrimSpace(rec[i]))
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds
}

func inferType(records [][]string, col int) workspace.FieldType {
	t := workspace.FieldInteger
	seen := false
	for _, rec := range records {
		if col >= len(rec) {
			continue
		}
		v := strings.TrimSpace(rec[col])
		if v == "" {
			continue
		}
		seen = true
		if t == workspace.FieldInteger {
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				continue
			}
			t = workspace.FieldDouble
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return workspace.FieldText
		}
	}
	if !seen {
		return workspace.FieldText
	}
	return t
}
