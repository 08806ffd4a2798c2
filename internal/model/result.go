package model

import (
	"strconv"
)

// AssignmentRecord is one origin's realized assignment. For coverage
// variants an uncovered origin has an empty DestinationID.
type AssignmentRecord struct {
	OriginID      string  `json:"origin" csv:"origin"`
	DestinationID string  `json:"destination" csv:"destination"`
	Distance      float64 `json:"distance" csv:"distance"`
	Population    float64 `json:"population" csv:"population"`
	Covered       bool    `json:"covered" csv:"-"`
}

// Summary holds solver diagnostics and realized statistics.
type Summary struct {
	Status             SolveStatus `json:"status"`
	WallTimeSecs       float64     `json:"solver_wall_time"`
	MIPGap             *float64    `json:"solver_mip_gap,omitempty"` // nil when a bound is unknown
	Objective          float64     `json:"objective"`
	ScalingFactor      float64     `json:"scaling_factor"` // alpha used to build the model
	ScalingFactorOut   *float64    `json:"scaling_factor_out,omitempty"`
	AversionOut        *float64    `json:"aversion_out,omitempty"`
	EDEOut             *float64    `json:"ede_out,omitempty"`
	MeanDistanceOut    *float64    `json:"mean_distance_out,omitempty"`
	NumLocationsOut    int         `json:"num_locations_out"`
	OpenedDestinations []string    `json:"opened_destinations"`
	CoveredPopulation  *float64    `json:"covered_population,omitempty"`
	CoverageFraction   *float64    `json:"coverage_fraction,omitempty"`
}

// Result is the output of one optimization.
type Result struct {
	Params      Params             `json:"params"`
	Assignments []AssignmentRecord `json:"assignments"`
	Summary     Summary            `json:"summary"`
	Warnings    []string           `json:"warnings,omitempty"`
	// Extra holds caller-supplied entries echoed into the summary table,
	// e.g. input file names.
	Extra map[string]string `json:"extra,omitempty"`
}

// KeyValue is one parameter/value row of the summary table.
type KeyValue struct {
	Key   string
	Value string
}

// SummaryRows flattens the parameters and statistics into the ordered
// parameter/value table written next to the assignment file. Unset values
// are written as empty strings.
func (r *Result) SummaryRows() []KeyValue {
	p := r.Params
	s := r.Summary
	rows := []KeyValue{
		{"minimize", p.Variant.String()},
		{"num_locations", intOrEmpty(p.NumLocations)},
		{"target_ede", floatOrEmpty(p.TargetEDE)},
		{"aversion", formatFloat(p.Aversion)},
		{"scaling_factor", formatFloat(s.ScalingFactor)},
		{"min_percent", formatFloat(p.MinPercent)},
		{"radius", ptrString(p.Radius)},
		{"iso_radius", floatOrEmpty(p.IsoRadius)},
		{"percent_coverage", floatOrEmpty(p.PercentCoverage)},
		{"solver", p.Solver},
		{"time_limit", ptrString(p.TimeLimit)},
		{"mip_gap", ptrString(p.MIPGap)},
	}
	for _, key := range []string{"capacity", "origin_file", "destination_file", "distance_file", "out_file"} {
		if v, ok := r.Extra[key]; ok {
			rows = append(rows, KeyValue{key, v})
		}
	}
	rows = append(rows,
		KeyValue{"status", string(s.Status)},
		KeyValue{"solver_wall_time", formatFloat(s.WallTimeSecs)},
		KeyValue{"solver_mip_gap", ptrString(s.MIPGap)},
		KeyValue{"aversion_out", ptrString(s.AversionOut)},
		KeyValue{"scaling_factor_out", ptrString(s.ScalingFactorOut)},
		KeyValue{"num_locations_out", strconv.Itoa(s.NumLocationsOut)},
		KeyValue{"mean_distance_out", ptrString(s.MeanDistanceOut)},
		KeyValue{"ede_out", ptrString(s.EDEOut)},
	)
	if p.Variant.IsCoverage() {
		rows = append(rows,
			KeyValue{"covered_population", ptrString(s.CoveredPopulation)},
			KeyValue{"coverage_fraction", ptrString(s.CoverageFraction)},
		)
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func floatOrEmpty(v float64) string {
	if v == 0 {
		return ""
	}
	return formatFloat(v)
}

func intOrEmpty(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

func ptrString(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
