package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"golang.org/x/sync/errgroup"

	"palin/adapters/datareadiness/coercer"
	"palin/domain/observation"
	"palin/internal"
	"palin/internal/errors"
)

// DataReader reads experiment result files (CSV or XLSX) into observation tables
type DataReader struct {
	config  ReaderConfig
	coercer *coercer.TypeCoercer
	logger  *internal.Logger
}

// NewDataReader creates a reader; a nil logger uses internal.DefaultLogger
func NewDataReader(config ReaderConfig, logger *internal.Logger) *DataReader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DataReader{
		config:  config,
		coercer: coercer.NewTypeCoercer(config.CoercionConfig),
		logger:  logger.With("DataReader"),
	}
}

// fileType maps an extension to "csv" or "xlsx"
func fileType(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return "csv", nil
	case ".xlsx", ".xlsm":
		return "xlsx", nil
	default:
		return "", errors.InvalidInput(fmt.Sprintf("unsupported result file type %q: %s", ext, path))
	}
}

// ReadRaw reads a result file without coercing its cells
func (r *DataReader) ReadRaw(path string) (*RawData, error) {
	kind, err := fileType(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errors.NotFound(fmt.Sprintf("%s file %s", strings.ToUpper(kind), path))
	}

	start := time.Now()
	var rows [][]string
	if kind == "csv" {
		rows, err = readCSV(path)
	} else {
		rows, err = r.readExcel(path)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, errors.InvalidInput(fmt.Sprintf("%s has no header row", path))
	}
	r.logger.Debug("%s read in %.2fms (%d rows)", path, float64(time.Since(start).Nanoseconds())/1e6, len(rows)-1)

	return processRows(path, rows), nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open CSV file %s", path)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read CSV file %s", path)
	}
	return rows, nil
}

func (r *DataReader) readExcel(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open Excel file %s", path)
	}
	defer f.Close()

	sheet := r.config.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.InvalidInput(fmt.Sprintf("%s has no sheets", path))
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read sheet %s of %s", sheet, path)
	}
	return rows, nil
}

// processRows trims headers and aligns every data row to them. Excel drops
// trailing empty cells, so short rows are padded.
func processRows(path string, rows [][]string) *RawData {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	data := &RawData{Path: path, Headers: headers}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		cells := make([]string, len(headers))
		for j := 0; j < len(row) && j < len(headers); j++ {
			cells[j] = strings.TrimSpace(row[j])
		}
		data.Rows = append(data.Rows, cells)
	}
	return data
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Coerce types every column of raw data. Pinned columns use their
// configured type; the others get the type the coercer recommends for the
// whole column, so a column never mixes numbers and strings.
func (r *DataReader) Coerce(data *RawData) *observation.Table {
	kinds := make([]observation.ValueType, len(data.Headers))
	column := make([]string, len(data.Rows))
	for j, h := range data.Headers {
		if kind, ok := r.config.ColumnTypes[h]; ok {
			kinds[j] = kind
			continue
		}
		for i, row := range data.Rows {
			column[i] = row[j]
		}
		kinds[j] = r.coercer.AnalyzeTypeDistribution(column).RecommendedType
		r.logger.Trace("column %s inferred as %s", h, kinds[j])
	}

	table := observation.NewTable(data.Headers...)
	table.Rows = make([][]observation.Value, len(data.Rows))
	for i, row := range data.Rows {
		cells := make([]observation.Value, len(row))
		for j, raw := range row {
			cells[j] = r.coercer.CoerceAs(raw, kinds[j])
		}
		table.Rows[i] = cells
	}
	return table
}

// Read reads and coerces one result file
func (r *DataReader) Read(path string) (*observation.Table, error) {
	raw, err := r.ReadRaw(path)
	if err != nil {
		return nil, err
	}
	table := r.Coerce(raw)
	r.logger.Info("loaded %s (%d columns, %d rows)", path, len(table.Columns), table.Len())
	return table, nil
}

// ReadAll reads many session files concurrently and stacks them in the order
// given. Column types are inferred over all files together.
func (r *DataReader) ReadAll(ctx context.Context, paths []string) (*observation.Table, error) {
	if len(paths) == 0 {
		return nil, errors.InvalidInput("no result files given")
	}

	raws := make([]*RawData, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	if r.config.MaxConcurrency > 0 {
		g.SetLimit(r.config.MaxConcurrency)
	}
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			raw, err := r.ReadRaw(path)
			if err != nil {
				return err
			}
			raws[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table := r.Coerce(stack(raws))
	r.logger.Info("loaded %d files (%d columns, %d rows)", len(paths), len(table.Columns), table.Len())
	return table, nil
}

// stack concatenates raw files over the union of their headers
func stack(raws []*RawData) *RawData {
	out := &RawData{}
	pos := make(map[string]int)
	for _, raw := range raws {
		for _, h := range raw.Headers {
			if _, ok := pos[h]; !ok {
				pos[h] = len(out.Headers)
				out.Headers = append(out.Headers, h)
			}
		}
	}
	for _, raw := range raws {
		for _, row := range raw.Rows {
			cells := make([]string, len(out.Headers))
			for j, h := range raw.Headers {
				cells[pos[h]] = row[j]
			}
			out.Rows = append(out.Rows, cells)
		}
	}
	if len(raws) == 1 {
		out.Path = raws[0].Path
	}
	return out
}
