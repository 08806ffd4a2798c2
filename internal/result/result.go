// Package result turns a solved model back into assignments and equity
// statistics.
package result

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/efl/internal/builder"
	"github.com/sells-group/efl/internal/equity"
	"github.com/sells-group/efl/internal/mip"
	"github.com/sells-group/efl/internal/model"
)

// selected is the value above which a binary variable counts as 1.
const selected = 0.9

// Assemble extracts the assignment for every origin and computes the
// realized statistics. out must carry a solution.
func Assemble(spec *builder.Spec, in builder.Input, p model.Params, out *mip.Outcome) (*model.Result, error) {
	if out == nil || out.Values == nil {
		return nil, eris.New("result: outcome has no solution")
	}

	res := &model.Result{Params: p}
	res.Warnings = append(res.Warnings, spec.Warnings...)

	open := make(map[string]bool, len(in.Destinations))
	for _, d := range in.Destinations {
		if out.Value(spec.Open[d.ID]) >= selected {
			open[d.ID] = true
			res.Summary.OpenedDestinations = append(res.Summary.OpenedDestinations, d.ID)
		}
	}

	var err error
	if p.Variant.IsCoverage() {
		res.Assignments = nearestCovering(in, open, p.IsoRadius)
	} else {
		res.Assignments, err = assigned(spec, in, out)
		if err != nil {
			return nil, err
		}
	}

	diagnostics(res, spec, out)
	if err := statistics(res, spec, in); err != nil {
		return nil, err
	}
	return res, nil
}

// assigned reads the y variables: one destination per origin.
func assigned(spec *builder.Spec, in builder.Input, out *mip.Outcome) ([]model.AssignmentRecord, error) {
	chosen := make(map[string]model.DistancePair, len(in.Origins))
	best := make(map[string]float64, len(in.Origins))
	for _, pr := range in.Pairs {
		v := out.Value(spec.Assign[builder.PairKey{Origin: pr.OriginID, Destination: pr.DestinationID}])
		if v < selected || v <= best[pr.OriginID] {
			continue
		}
		best[pr.OriginID] = v
		chosen[pr.OriginID] = pr
	}

	rows := make([]model.AssignmentRecord, 0, len(in.Origins))
	for _, o := range in.Origins {
		pr, ok := chosen[o.ID]
		if !ok {
			return nil, eris.Errorf("result: origin %q is not assigned in the solution", o.ID)
		}
		rows = append(rows, model.AssignmentRecord{
			OriginID:      o.ID,
			DestinationID: pr.DestinationID,
			Distance:      pr.Distance,
			Population:    o.Population,
			Covered:       true,
		})
	}
	return rows, nil
}

// nearestCovering assigns each origin to the nearest open destination within
// radius, breaking ties by destination id. Origins with none are uncovered.
func nearestCovering(in builder.Input, open map[string]bool, radius float64) []model.AssignmentRecord {
	nearest := make(map[string]model.DistancePair, len(in.Origins))
	for _, pr := range in.Pairs {
		if !open[pr.DestinationID] || pr.Distance > radius {
			continue
		}
		cur, ok := nearest[pr.OriginID]
		if !ok || pr.Distance < cur.Distance || (pr.Distance == cur.Distance && pr.DestinationID < cur.DestinationID) {
			nearest[pr.OriginID] = pr
		}
	}

	rows := make([]model.AssignmentRecord, 0, len(in.Origins))
	for _, o := range in.Origins {
		row := model.AssignmentRecord{OriginID: o.ID, Population: o.Population}
		if pr, ok := nearest[o.ID]; ok {
			row.DestinationID = pr.DestinationID
			row.Distance = pr.Distance
			row.Covered = true
		}
		rows = append(rows, row)
	}
	return rows
}

func diagnostics(res *model.Result, spec *builder.Spec, out *mip.Outcome) {
	s := &res.Summary
	s.Status = out.Status
	s.WallTimeSecs = out.WallTime.Seconds()
	s.ScalingFactor = spec.Alpha

	primal := out.PrimalBound
	if math.IsNaN(primal) || math.IsInf(primal, 0) {
		primal = spec.Model.ObjectiveValue(out.Values)
	}
	s.Objective = primal

	if gap := (&mip.Outcome{PrimalBound: primal, DualBound: out.DualBound}).Gap(); !math.IsNaN(gap) && !math.IsInf(gap, 0) {
		s.MIPGap = model.Float(gap)
	} else if out.Status == model.StatusOptimal {
		s.MIPGap = model.Float(0)
	} else {
		res.Warnings = append(res.Warnings, "mip gap unavailable: solver reported no finite dual bound")
	}
}

func statistics(res *model.Result, spec *builder.Spec, in builder.Input) error {
	s := &res.Summary
	p := res.Params

	var rows []model.AssignmentRecord
	dests := make(map[string]bool)
	var covered float64
	for _, r := range res.Assignments {
		if !r.Covered {
			continue
		}
		rows = append(rows, r)
		dests[r.DestinationID] = true
		covered += r.Population
	}
	s.NumLocationsOut = len(dests)

	if p.Variant.IsCoverage() {
		total := model.TotalPopulation(in.Origins)
		s.CoveredPopulation = model.Float(covered)
		s.CoverageFraction = model.Float(covered / total)
		if len(rows) == 0 {
			res.Warnings = append(res.Warnings, "no origin is covered; distance statistics are undefined")
			return nil
		}
		if err := realized(s, rows, p, spec); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("distance statistics undefined for covered origins: %v", err))
		}
		return nil
	}

	return realized(s, rows, p, spec)
}

// realized sets the mean distance, scaling factor, EDE and effective
// aversion of the assignment. The summary is left untouched on error.
func realized(s *model.Summary, rows []model.AssignmentRecord, p model.Params, spec *builder.Spec) error {
	mean, err := equity.MeanDistance(rows)
	if err != nil {
		return err
	}
	alphaOut, err := equity.ScalingFactor(rows)
	if err != nil {
		return eris.Wrap(err, "result: realized scaling factor")
	}
	ede, err := equity.KolmPollakEDE(rows, p.Aversion)
	if err != nil {
		return eris.Wrap(err, "result: realized EDE")
	}
	s.MeanDistanceOut = model.Float(mean)
	s.ScalingFactorOut = model.Float(alphaOut)
	s.EDEOut = model.Float(ede)
	// Requested kappa over realized alpha. Equals the requested aversion
	// when the build alpha matches the realized one. A zero build alpha
	// means the coverage approximation failed and no kappa was requested.
	if spec.Alpha > 0 {
		s.AversionOut = model.Float(p.Aversion * spec.Alpha / alphaOut)
	}
	return nil
}

// SortedOpen returns the opened destination ids in lexical order.
func SortedOpen(r *model.Result) []string {
	ids := append([]string(nil), r.Summary.OpenedDestinations...)
	sort.Strings(ids)
	return ids
}
