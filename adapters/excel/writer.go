package excel

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"palin/domain/observation"
	"palin/internal/errors"
)

// WriteTable writes an observation table as CSV or XLSX, chosen by extension.
// Booleans are written as True/False, the way the experiment scripts log
// responses.
func WriteTable(path string, t *observation.Table) error {
	kind, err := fileType(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	if kind == "csv" {
		return writeCSV(path, t)
	}
	return writeExcel(path, t)
}

func cellText(v observation.Value) string {
	if b, ok := v.Bool(); ok {
		if b {
			return "True"
		}
		return "False"
	}
	return v.String()
}

func writeCSV(path string, t *observation.Table) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create CSV file %s", path)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(t.Columns); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = cellText(v)
		}
		if err := w.Write(record); err != nil {
			return errors.Wrapf(err, "failed to write %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return file.Close()
}

func writeExcel(path string, t *observation.Table) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return errors.Wrapf(err, "failed to write header of %s", path)
	}

	for r, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			if n, ok := v.Float(); ok {
				cells[i] = n
			} else {
				cells[i] = cellText(v)
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return errors.Wrap(err, "invalid cell coordinates")
		}
		if err := f.SetSheetRow(sheet, axis, &cells); err != nil {
			return errors.Wrapf(err, "failed to write row %d of %s", r+1, path)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return errors.Wrapf(err, "failed to save %s", strings.TrimSpace(path))
	}
	return nil
}
