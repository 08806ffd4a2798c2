package dataset

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Table is a header plus string rows, as read from a CSV or XLSX file.
type Table struct {
	Name   string     `json:"-"` // file name used in messages
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
	// Lines holds the source line of each row when read from a file.
	Lines []int `json:"-"`
}

// Line returns the source line of row i. Tables built in memory count the
// header as line 1.
func (t *Table) Line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

// Index returns the position of a column, or -1.
func (t *Table) Index(col string) int {
	for i, h := range t.Header {
		if h == col {
			return i
		}
	}
	return -1
}

// Cell returns row[col], or "" for short rows.
func (t *Table) Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// reader returns a csvutil.Reader over the table body.
func (t *Table) reader() *tableReader {
	return &tableReader{t: t}
}

type tableReader struct {
	t   *Table
	pos int
}

func (r *tableReader) Read() ([]string, error) {
	if r.pos >= len(r.t.Rows) {
		return nil, io.EOF
	}
	row := r.t.Rows[r.pos]
	r.pos++
	// Pad ragged rows so the decoder sees every column.
	if len(row) < len(r.t.Header) {
		padded := make([]string, len(r.t.Header))
		copy(padded, row)
		row = padded
	}
	return row, nil
}

// dropColumns returns a copy of t without the named columns.
func (t *Table) dropColumns(names []string) *Table {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var keep []int
	out := &Table{Name: t.Name, Lines: t.Lines}
	for i, h := range t.Header {
		if !drop[h] {
			keep = append(keep, i)
			out.Header = append(out.Header, h)
		}
	}
	for _, row := range t.Rows {
		r := make([]string, len(keep))
		for j, i := range keep {
			r[j] = t.Cell(row, i)
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// ReadTable loads a .csv, .tsv or .xlsx file. The first row is the header.
// Values and headers are trimmed of surrounding space and blank rows are
// skipped.
func ReadTable(ctx context.Context, path string) (*Table, error) {
	log := zap.L().With(zap.String("component", "dataset"), zap.String("path", path))

	var (
		t   *Table
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		t, err = readXLSXTable(path)
	case ".tsv":
		t, err = readCSVTable(ctx, path, '\t')
	default:
		t, err = readCSVTable(ctx, path, ',')
	}
	if err != nil {
		return nil, err
	}
	t.Name = filepath.Base(path)
	log.Debug("dataset: table loaded", zap.Int("columns", len(t.Header)), zap.Int("rows", len(t.Rows)))
	return t, nil
}

func readCSVTable(ctx context.Context, path string, delim rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	stream, err := StreamCSV(ctx, f, CSVOptions{Delimiter: delim})
	if errors.Is(err, errNoHeader) {
		return nil, eris.Errorf("dataset: %s is empty", path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}

	t := &Table{Header: stream.Header}
	for rec := range stream.Rows {
		t.Rows = append(t.Rows, rec.Fields)
		t.Lines = append(t.Lines, rec.Line)
	}
	if err := <-stream.Errs; err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	return t, nil
}

func readXLSXTable(path string) (*Table, error) {
	rows, err := ReadXLSX(path, XLSXOptions{})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("dataset: %s is empty", path)
	}
	t := &Table{Header: trimAll(rows[0])}
	for i, row := range rows[1:] {
		row = trimAll(row)
		if isBlank(row) {
			continue
		}
		t.Rows = append(t.Rows, row)
		t.Lines = append(t.Lines, i+2)
	}
	return t, nil
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
