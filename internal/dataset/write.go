package dataset

import (
	"encoding/csv"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/efl/internal/model"
)

type assignmentRow struct {
	Origin      string   `csv:"origin"`
	Destination string   `csv:"destination"`
	Distance    *float64 `csv:"distance"`
	Population  float64  `csv:"population"`
}

type coverageRow struct {
	Origin      string   `csv:"origin"`
	Destination string   `csv:"destination"`
	Distance    *float64 `csv:"distance"`
	Population  float64  `csv:"population"`
	Covered     bool     `csv:"covered"`
}

// OutputPaths returns the assignment and summary file names for out. A
// trailing ".csv" is stripped first, so "run.csv" and "run" both give
// run.csv and run_summary.csv.
func OutputPaths(out string) (assignments, summary string) {
	base := strings.TrimSuffix(out, ".csv")
	return base + ".csv", base + "_summary.csv"
}

// WriteResultCSV writes the assignment table and the parameter/value
// summary next to each other. It returns the two paths written.
func WriteResultCSV(res *model.Result, out string) (string, string, error) {
	assignPath, summaryPath := OutputPaths(out)

	if err := writeCSV(assignPath, func(w *csv.Writer) error {
		return encodeAssignments(w, res)
	}); err != nil {
		return "", "", err
	}
	if err := writeCSV(summaryPath, func(w *csv.Writer) error {
		if err := w.Write([]string{"parameter", "value"}); err != nil {
			return err
		}
		for _, kv := range res.SummaryRows() {
			if err := w.Write([]string{kv.Key, kv.Value}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return "", "", err
	}

	zap.L().Info("dataset: result written",
		zap.String("assignments", assignPath),
		zap.String("summary", summaryPath),
		zap.Int("rows", len(res.Assignments)),
	)
	return assignPath, summaryPath, nil
}

func encodeAssignments(w *csv.Writer, res *model.Result) error {
	enc := csvutil.NewEncoder(w)
	coverage := res.Params.Variant.IsCoverage()
	if coverage {
		if err := enc.EncodeHeader(coverageRow{}); err != nil {
			return err
		}
	} else if err := enc.EncodeHeader(assignmentRow{}); err != nil {
		return err
	}

	for _, a := range res.Assignments {
		row := assignmentRow{Origin: a.OriginID, Destination: a.DestinationID, Population: a.Population}
		if a.Covered {
			row.Distance = model.Float(a.Distance)
		}
		var err error
		if coverage {
			err = enc.Encode(coverageRow{Origin: row.Origin, Destination: row.Destination, Distance: row.Distance, Population: row.Population, Covered: a.Covered})
		} else {
			err = enc.Encode(row)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, fill func(w *csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "dataset: create %s", path)
	}
	w := csv.NewWriter(f)
	if err := fill(w); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "dataset: write %s", path)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "dataset: flush %s", path)
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "dataset: close %s", path)
	}
	return nil
}

// WriteDistancesCSV writes a distance lookup table with the columns
// ValidateDistances expects.
func WriteDistancesCSV(rows []model.DistanceLookup, path string) error {
	return writeCSV(path, func(w *csv.Writer) error {
		enc := csvutil.NewEncoder(w)
		if err := enc.EncodeHeader(model.DistanceLookup{}); err != nil {
			return err
		}
		for _, r := range rows {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	})
}
