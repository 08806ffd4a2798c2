// Package dataset reads, validates and writes the tabular inputs and outputs
// of an optimization: origin, destination and distance tables in, assignment
// and summary tables out.
package dataset

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// errNoHeader is returned by StreamCSV for input without a header row.
var errNoHeader = eris.New("csv: no header row")

// CSVOptions configures StreamCSV.
type CSVOptions struct {
	Delimiter rune // ',' when zero
}

// Record is a data row of an input table and its line in the source file.
type Record struct {
	Line   int
	Fields []string
}

// CSVStream is an open input table. Rows must be drained; Errs yields at
// most one error and is closed after Rows.
type CSVStream struct {
	Header []string
	Rows   <-chan Record
	Errs   <-chan error
}

// StreamCSV reads the header row, then streams the data rows. Headers and
// fields are trimmed, a leading byte order mark is dropped and blank rows
// are skipped. Trailing empty fields past the header are discarded; a row
// with values past the header is an error.
func StreamCSV(ctx context.Context, r io.Reader, opts CSVOptions) (*CSVStream, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.FieldsPerRecord = -1 // short rows are padded by the table reader

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errNoHeader
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	header = trimAll(header)

	rowCh := make(chan Record, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			fields, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			line, _ := reader.FieldPos(0)

			fields = trimAll(fields)
			if isBlank(fields) {
				continue
			}
			if len(fields) > len(header) {
				if !isBlank(fields[len(header):]) {
					errCh <- eris.Errorf("csv: line %d has %d fields but the header has %d", line, len(fields), len(header))
					return
				}
				fields = fields[:len(header)]
			}

			select {
			case rowCh <- Record{Line: line, Fields: fields}:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return &CSVStream{Header: header, Rows: rowCh, Errs: errCh}, nil
}
