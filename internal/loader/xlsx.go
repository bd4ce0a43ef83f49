package loader

import (
	"context"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// readXLSX reads the named sheet (or the first one). The first non-blank
// row is the header. Date-formatted cells become times.
func readXLSX(ctx context.Context, r io.Reader, sheetName string) (*table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: read")
	}
	if len(data) == 0 {
		return &table{}, nil
	}

	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}

	sheet, err := pickSheet(f, sheetName)
	if err != nil {
		return nil, err
	}

	tbl := &table{}
	for n, row := range sheet.Rows {
		if n%ctxCheckRows == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
		if row == nil || blankRow(row) {
			continue
		}
		if tbl.header == nil {
			tbl.header = make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				tbl.header[i] = cell.String()
			}
			continue
		}
		cells := make([]any, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cellValue(cell, f.Date1904)
		}
		tbl.rows = append(tbl.rows, cells)
	}
	return tbl, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func cellValue(cell *xlsx.Cell, date1904 bool) any {
	if cell.IsTime() {
		if t, err := cell.GetTime(date1904); err == nil {
			return t
		}
	}
	return cell.String()
}

func blankRow(row *xlsx.Row) bool {
	for _, cell := range row.Cells {
		if strings.TrimSpace(cell.String()) != "" {
			return false
		}
	}
	return true
}
