package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/mirip/internal/models"
)

// XLSXProvider reads products from a spreadsheet export of the catalog.
// The first row holds column names; each following row is one product.
type XLSXProvider struct {
	path  string
	sheet string
}

// NewXLSXProvider returns a provider over the workbook at path. An empty
// sheet selects the first sheet.
func NewXLSXProvider(path, sheet string) *XLSXProvider {
	return &XLSXProvider{path: path, sheet: sheet}
}

// Name returns "xlsx".
func (x *XLSXProvider) Name() string {
	return "xlsx"
}

// Path returns the workbook path.
func (x *XLSXProvider) Path() string {
	return x.path
}

// FetchAll reads every data row. A missing workbook yields no rows.
func (x *XLSXProvider) FetchAll(ctx context.Context) ([]models.Product, error) {
	if _, err := os.Stat(x.path); errors.Is(err, os.ErrNotExist) {
		return []models.Product{}, nil
	}
	f, err := excelize.OpenFile(x.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := x.sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	out := []models.Product{}
	if len(rows) < 2 {
		return out, nil
	}
	header := rows[0]
	for _, cells := range rows[1:] {
		if isBlankRow(cells) {
			continue
		}
		row := make(models.Product, len(header))
		for i, col := range header {
			col = strings.TrimSpace(col)
			if col == "" {
				continue
			}
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			row[col] = cellValue(cell)
		}
		out = append(out, row)
	}
	return out, nil
}

// FetchOne scans the workbook for the row with the given id.
func (x *XLSXProvider) FetchOne(ctx context.Context, id int64) (models.Product, error) {
	rows, err := x.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if rid, ok := r.ID(); ok && rid == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// WriteXLSX writes cols as a header row followed by rows to a new workbook at path.
func WriteXLSX(path, sheet string, cols []string, rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()
	if sheet == "" {
		sheet = DefaultTable
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		vals := make([]any, len(row))
		for i, v := range row {
			switch x := v.(type) {
			case nil:
				v = ""
			case []byte:
				v = string(x)
			}
			vals[i] = v
		}
		if err := sw.SetRow(cell, vals); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// cellValue infers a typed value from a cell string: empty to nil, then int64, float64, or text.
func cellValue(s string) any {
	if s == "" {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
