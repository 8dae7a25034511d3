package ingest

import (
	"strings"

	"github.com/tealeg/xlsx/v2"

	"github.com/psrf/sows-cli/internal/geoerr"
)

// ParseXLSX reads one sheet of a workbook into a table. The first row is the
// header. An empty sheet name selects the first sheet; an empty name derives
// the dataset name from the file name. Fully blank rows are skipped.
func ParseXLSX(path, name, sheetName string) (*Dataset, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, geoerr.NotFound("ingest: open xlsx", "cannot open %s: %v", path, err)
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		s, ok := f.Sheet[sheetName]
		if !ok {
			return nil, geoerr.NotFound("ingest: open xlsx", "sheet %q not found in %s", sheetName, path)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, geoerr.Schema("ingest: parse xlsx", "%s has no sheets", path)
		}
		sheet = f.Sheets[0]
	}
	if name == "" {
		name = datasetName(path)
	}

	var header []string
	var records [][]string
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		blank := true
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
			blank = blank && cells[j] == ""
		}
		if blank {
			continue
		}
		if header == nil {
			header = cells
			continue
		}
		records = append(records, cells)
	}
	if header == nil {
		return nil, geoerr.Schema("ingest: parse xlsx", "sheet %s of %s has no header row", sheet.Name, path)
	}
	return tableFromRecords(name, header, records), nil
}
