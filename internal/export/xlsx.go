package export

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// maxSheetName is the longest sheet name Excel accepts.
const maxSheetName = 31

func writeXLSX(path, dataset string, t table) error {
	f := xlsx.NewFile()
	name := dataset
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}

	header := sheet.AddRow()
	for _, h := range t.header {
		header.AddCell().SetString(h)
	}
	for _, row := range t.rows {
		r := sheet.AddRow()
		for _, v := range row {
			cell := r.AddCell()
			switch x := v.(type) {
			case nil:
			case int64:
				cell.SetInt64(x)
			case float64:
				cell.SetFloat(x)
			default:
				cell.SetString(formatValue(x))
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}
