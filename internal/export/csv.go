package export

import (
	"encoding/csv"
	"os"

	"github.com/rotisserie/eris"
)

func writeCSV(path string, t table) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create file %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(t.header); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	record := make([]string, len(t.header))
	for _, row := range t.rows {
		for i, v := range row {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "export: flush %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}
