// Package export writes occupancy series to spreadsheet files.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/crowdcount/internal/model"
)

// SheetName is the worksheet written by WriteXLSX.
const SheetName = "series"

// Format is an output file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", eris.Errorf("export: unsupported file extension %q", filepath.Ext(path))
	}
}

// Header returns the column names: timestamp, one per area, total.
func Header(s *model.AreaSeries) []string {
	h := make([]string, 0, len(s.Areas)+2)
	h = append(h, "timestamp")
	h = append(h, s.Areas...)
	return append(h, "total")
}

// columns returns each area's values in the order of s.Areas.
func columns(s *model.AreaSeries) [][]int64 {
	cols := make([][]int64, len(s.Areas))
	for i, area := range s.Areas {
		cols[i] = s.Column(area)
	}
	return cols
}

func record(s *model.AreaSeries, cols [][]int64, i int) []string {
	rec := make([]string, 0, len(cols)+2)
	rec = append(rec, s.Rows[i].Timestamp.Format(model.TimestampLayout))
	for _, col := range cols {
		rec = append(rec, strconv.FormatInt(col[i], 10))
	}
	return append(rec, strconv.FormatInt(s.Rows[i].Total, 10))
}

// WriteCSV writes the series as CSV with a header row.
func WriteCSV(w io.Writer, s *model.AreaSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(s)); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	cols := columns(s)
	for i := range s.Rows {
		if err := cw.Write(record(s, cols, i)); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// BuildXLSX lays the series out on a single worksheet. Counts are stored as
// numeric cells.
func BuildXLSX(s *model.AreaSeries) (*xlsx.File, error) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return nil, eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, name := range Header(s) {
		header.AddCell().SetString(name)
	}

	cols := columns(s)
	for i, r := range s.Rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Timestamp.Format(model.TimestampLayout))
		for _, col := range cols {
			row.AddCell().SetInt64(col[i])
		}
		row.AddCell().SetInt64(r.Total)
	}
	return f, nil
}

// WriteXLSX writes the series as an XLSX workbook.
func WriteXLSX(w io.Writer, s *model.AreaSeries) error {
	f, err := BuildXLSX(s)
	if err != nil {
		return err
	}
	return eris.Wrap(f.Write(w), "export: write xlsx")
}

// WriteFile writes the series to path in the format its extension names.
func WriteFile(path string, s *model.AreaSeries) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer out.Close() //nolint:errcheck

	switch format {
	case FormatXLSX:
		err = WriteXLSX(out, s)
	default:
		err = WriteCSV(out, s)
	}
	if err != nil {
		return err
	}
	return eris.Wrapf(out.Close(), "export: close %s", path)
}
