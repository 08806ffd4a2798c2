package dataset

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/efl/internal/model"
)

// ValidationError collects every problem found in one input file.
type ValidationError struct {
	File     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dataset: %s: %s", e.File, strings.Join(e.Problems, "; "))
}

type column struct {
	name     string
	unique   bool
	numeric  bool
	nullable bool
	valid    []string // normalized with normalizeValue
}

type fileSpec struct {
	name     string
	required []column
	optional []column
}

var (
	originSpec = fileSpec{
		name: "origin file",
		required: []column{
			{name: "id", unique: true},
			{name: "population", numeric: true},
		},
	}
	destinationSpec = fileSpec{
		name:     "destination file",
		required: []column{{name: "id", unique: true}},
		optional: []column{
			{name: "open", nullable: true, valid: []string{"yes", "percent"}},
			{name: "preference", nullable: true, valid: []string{"-3", "-2", "-1", "0", "1", "2", "3"}},
			{name: "capacity", nullable: true, numeric: true},
		},
	}
	distanceSpec = fileSpec{
		name: "distances file",
		required: []column{
			{name: "origin"},
			{name: "destination"},
			{name: "distance", numeric: true},
		},
	}
)

// validate checks t against spec. Optional columns without any data are
// dropped with a warning.
func validate(t *Table, spec fileSpec) (*Table, []string, error) {
	var problems, warnings []string

	present := make(map[string]bool, len(t.Header))
	for _, h := range t.Header {
		present[h] = true
	}
	known := make(map[string]bool)
	var missing []string
	for _, c := range spec.required {
		known[c.name] = true
		if !present[c.name] {
			missing = append(missing, c.name)
		}
	}
	for _, c := range spec.optional {
		known[c.name] = true
	}
	if len(missing) > 0 {
		problems = append(problems, "missing required columns: "+strings.Join(missing, ", "))
	}
	var extra []string
	for _, h := range t.Header {
		if !known[h] {
			extra = append(extra, h)
		}
	}
	if len(extra) > 0 {
		problems = append(problems, "unrecognized columns: "+strings.Join(extra, ", "))
	}

	var blanks, empty, dups, nonNumeric []string
	var invalid []string
	for _, c := range append(append([]column(nil), spec.required...), spec.optional...) {
		idx := t.Index(c.name)
		if idx < 0 {
			continue
		}
		filled := 0
		seen := make(map[string]bool, len(t.Rows))
		dup, numericOK := false, true
		bad := map[string]bool{}
		for _, row := range t.Rows {
			v := t.Cell(row, idx)
			if v == "" {
				continue
			}
			filled++
			if seen[v] {
				dup = true
			}
			seen[v] = true
			if c.numeric {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					numericOK = false
				}
			}
			if len(c.valid) > 0 && !contains(c.valid, normalizeValue(v)) {
				bad[v] = true
			}
		}
		switch {
		case !c.nullable && filled < len(t.Rows):
			blanks = append(blanks, c.name)
		case c.nullable && filled == 0:
			empty = append(empty, c.name)
			continue
		}
		if c.unique && dup {
			dups = append(dups, c.name)
		}
		if !numericOK {
			nonNumeric = append(nonNumeric, c.name)
		}
		if len(bad) > 0 {
			invalid = append(invalid, fmt.Sprintf("invalid values in column '%s': %s not among %s", c.name, strings.Join(sortedKeys(bad), ", "), strings.Join(c.valid, ", ")))
		}
	}
	if len(blanks) > 0 {
		problems = append(problems, "columns with missing data: "+strings.Join(blanks, ", "))
	}
	if len(empty) > 0 {
		warnings = append(warnings, fmt.Sprintf("%s: columns with no data dropped: %s", spec.name, strings.Join(empty, ", ")))
		t = t.dropColumns(empty)
	}
	if len(dups) > 0 {
		problems = append(problems, "columns with duplicate entries: "+strings.Join(dups, ", "))
	}
	if len(nonNumeric) > 0 {
		problems = append(problems, "columns with non-numeric data: "+strings.Join(nonNumeric, ", "))
	}
	problems = append(problems, invalid...)

	if len(problems) > 0 {
		return nil, warnings, &ValidationError{File: spec.name, Problems: problems}
	}
	return t, warnings, nil
}

// normalizeValue makes "1", "1.0" and " 1" compare equal.
func normalizeValue(v string) string {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return v
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func decodeAll[T any](t *Table) ([]T, error) {
	dec, err := csvutil.NewDecoder(t.reader(), t.Header...)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: new decoder")
	}
	var out []T
	for {
		var v T
		if err := dec.Decode(&v); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrapf(err, "dataset: decode %s", t.Name)
		}
		out = append(out, v)
	}
	return out, nil
}

// ValidateOrigins checks an origin table (id, population) and drops origins
// with non-positive population, reporting each kind as a warning.
func ValidateOrigins(t *Table) ([]model.Origin, []string, error) {
	t, warnings, err := validate(t, originSpec)
	if err != nil {
		return nil, warnings, err
	}
	all, err := decodeAll[model.Origin](t)
	if err != nil {
		return nil, warnings, err
	}

	var negative, zero int
	origins := make([]model.Origin, 0, len(all))
	for _, o := range all {
		switch {
		case o.Population < 0:
			negative++
		case o.Population == 0:
			zero++
		default:
			origins = append(origins, o)
		}
	}
	if negative > 0 {
		warnings = append(warnings, fmt.Sprintf("%d origins with population < 0 removed", negative))
	}
	if zero > 0 {
		warnings = append(warnings, fmt.Sprintf("%d origins with population = 0 removed", zero))
	}
	if len(origins) == 0 {
		return nil, warnings, &ValidationError{File: originSpec.name, Problems: []string{"there are no origins with positive population"}}
	}
	return origins, warnings, nil
}

// ValidateDestinations checks a destination table (id and optional open,
// preference, capacity). defaultCapacity, when set, fills missing
// capacities.
func ValidateDestinations(t *Table, defaultCapacity *float64) ([]model.Destination, []string, error) {
	t, warnings, err := validate(t, destinationSpec)
	if err != nil {
		return nil, warnings, err
	}

	idIdx, openIdx, prefIdx, capIdx := t.Index("id"), t.Index("open"), t.Index("preference"), t.Index("capacity")
	dests := make([]model.Destination, 0, len(t.Rows))
	for _, row := range t.Rows {
		d := model.Destination{ID: t.Cell(row, idIdx)}
		if d.Open, err = model.ParseOpenStatus(t.Cell(row, openIdx)); err != nil {
			return nil, warnings, eris.Wrapf(err, "dataset: destination %q", d.ID)
		}
		if v := t.Cell(row, prefIdx); v != "" {
			f, _ := strconv.ParseFloat(v, 64)
			pref := int(f)
			d.Preference = &pref
		}
		if v := t.Cell(row, capIdx); v != "" {
			c, _ := strconv.ParseFloat(v, 64)
			d.Capacity = &c
		} else if defaultCapacity != nil {
			c := *defaultCapacity
			d.Capacity = &c
		}
		dests = append(dests, d)
	}
	return dests, warnings, nil
}

// ValidateDistances checks a distance lookup table (origin, destination,
// distance). The table may contain pairs not used by the run.
func ValidateDistances(t *Table) ([]model.DistanceLookup, []string, error) {
	t, warnings, err := validate(t, distanceSpec)
	if err != nil {
		return nil, warnings, err
	}
	rows, err := decodeAll[model.DistanceLookup](t)
	if err != nil {
		return nil, warnings, err
	}
	return rows, warnings, nil
}
