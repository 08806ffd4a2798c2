package dataset

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/efl/internal/model"
)

// XLSXOptions configures the XLSX reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	SkipRows   int    // number of leading rows to skip
}

// ReadXLSX reads one sheet of an XLSX file as string rows.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}

	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i < opts.SkipRows {
			continue
		}
		rows = append(rows, rowToStrings(row))
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}

	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// Sheet names of the result workbook.
const (
	AssignmentsSheet = "assignments"
	SummarySheet     = "summary"
)

// WriteResultXLSX writes the assignments and the parameter/value summary as
// two sheets of one workbook.
func WriteResultXLSX(res *model.Result, path string) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet(AssignmentsSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add assignments sheet")
	}
	coverage := res.Params.Variant.IsCoverage()
	header := []string{"origin", "destination", "distance", "population"}
	if coverage {
		header = append(header, "covered")
	}
	addStringRow(sheet, header)
	for _, a := range res.Assignments {
		row := sheet.AddRow()
		row.AddCell().SetString(a.OriginID)
		row.AddCell().SetString(a.DestinationID)
		if a.Covered {
			row.AddCell().SetFloat(a.Distance)
		} else {
			row.AddCell()
		}
		row.AddCell().SetFloat(a.Population)
		if coverage {
			row.AddCell().SetBool(a.Covered)
		}
	}

	sheet, err = f.AddSheet(SummarySheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add summary sheet")
	}
	addStringRow(sheet, []string{"parameter", "value"})
	for _, kv := range res.SummaryRows() {
		addStringRow(sheet, []string{kv.Key, kv.Value})
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", path)
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
