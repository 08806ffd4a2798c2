package builder

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/efl/internal/equity"
	"github.com/sells-group/efl/internal/mip"
	"github.com/sells-group/efl/internal/mip/miptest"
	"github.com/sells-group/efl/internal/model"
)

// threeByThree is a small instance:
//
//	     d1 d2 d3
//	o1   1  4  6   pop 10
//	o2   5  2  3   pop 20
//	o3   7  3  1   pop 30
func threeByThree() Input {
	dist := [][]float64{{1, 4, 6}, {5, 2, 3}, {7, 3, 1}}
	in := Input{
		Origins:      []model.Origin{{ID: "o1", Population: 10}, {ID: "o2", Population: 20}, {ID: "o3", Population: 30}},
		Destinations: []model.Destination{{ID: "d1"}, {ID: "d2"}, {ID: "d3"}},
	}
	for i, o := range in.Origins {
		for j, d := range in.Destinations {
			in.Pairs = append(in.Pairs, model.DistancePair{OriginID: o.ID, DestinationID: d.ID, Distance: dist[i][j], Population: o.Population})
		}
	}
	return in
}

func constraintNames(m *mip.Model) []string {
	names := make([]string, len(m.Constraints))
	for i, c := range m.Constraints {
		names[i] = c.Name
	}
	return names
}

func countPrefix(names []string, prefix string) int {
	n := 0
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			n++
		}
	}
	return n
}

func solve(t *testing.T, spec *Spec) *mip.Outcome {
	t.Helper()
	out, err := (&miptest.Exhaustive{}).Solve(context.Background(), spec.Model, mip.Options{})
	require.NoError(t, err)
	return out
}

func openIDs(spec *Spec, out *mip.Outcome, in Input) []string {
	var ids []string
	for _, d := range in.Destinations {
		if out.Value(spec.Open[d.ID]) > 0.5 {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

func TestBuild_MinimizeEDEStructure(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	spec, err := Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 2, Aversion: -1})
	require.NoError(t, err)

	assert.Equal(t, 12, spec.Model.NumVars())
	assert.Nil(t, spec.Covered)
	assert.Equal(t, mip.Minimize, spec.Model.ObjSense)

	names := constraintNames(spec.Model)
	assert.Equal(t, 9, countPrefix(names, "open_"))
	assert.Equal(t, 3, countPrefix(names, "assign_"))
	assert.Contains(t, names, "num_locations")
	assert.Len(t, names, 13)

	// alpha from nearest-of-all: Σpd = 80, Σpd² = 120.
	assert.InDelta(t, 2.0/3.0, spec.Alpha, 1e-15)
	assert.InDelta(t, -2.0/3.0, spec.Kappa, 1e-15)
	assert.Zero(t, spec.Shift)
	assert.InDelta(t, 20*math.Exp(2.0/3.0*5), spec.Coefficients[PairKey{"o2", "d1"}], 1e-9)
	assert.Empty(t, spec.Warnings)
}

func TestBuild_DefaultAlphaRoundTrip(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	in.Destinations[1].Open = model.OpenPercent
	in.Destinations[2].Open = model.OpenPercent

	// Nearest percent-eligible destination per origin, computed directly.
	var pseudo []model.AssignmentRecord
	for _, o := range in.Origins {
		best := math.Inf(1)
		for _, p := range in.Pairs {
			if p.OriginID == o.ID && p.DestinationID != "d1" && p.Distance < best {
				best = p.Distance
			}
		}
		pseudo = append(pseudo, model.AssignmentRecord{OriginID: o.ID, Population: o.Population, Distance: best})
	}
	want, err := equity.ScalingFactor(pseudo)
	require.NoError(t, err)

	spec, err := Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 2, Aversion: -1})
	require.NoError(t, err)
	assert.Equal(t, want, spec.Alpha)

	approx, err := ApproximateAlpha(in)
	require.NoError(t, err)
	assert.Equal(t, want, approx)
}

func TestAlphaCandidates(t *testing.T) {
	t.Parallel()

	dests := []model.Destination{{ID: "a", Open: model.OpenPercent}, {ID: "b", Open: model.OpenForced}, {ID: "c"}}
	assert.Equal(t, map[string]bool{"b": true}, AlphaCandidates(dests))

	dests[1].Open = model.OpenNone
	assert.Equal(t, map[string]bool{"a": true}, AlphaCandidates(dests))

	dests[0].Open = model.OpenNone
	assert.Nil(t, AlphaCandidates(dests))
}

func TestMinDistanceAssignment_SkipsUnreachable(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	in.Pairs = in.Pairs[:4] // o1 to all, o2 to d1 only
	rows := MinDistanceAssignment(in, map[string]bool{"d2": true, "d3": true})
	require.Len(t, rows, 1)
	assert.Equal(t, "o1", rows[0].OriginID)
	assert.Equal(t, "d2", rows[0].DestinationID)
	assert.InDelta(t, 4.0, rows[0].Distance, 0)
}

func TestBuild_ScalingFactorOverride(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	spec, err := Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 1, Aversion: -2, ScalingFactor: model.Float(0.1)})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, spec.Alpha, 0)
	assert.InDelta(t, -0.2, spec.Kappa, 1e-15)
	assert.InDelta(t, 30*math.Exp(0.2*7), spec.Coefficients[PairKey{"o3", "d1"}], 1e-9)
}

func TestBuild_ZeroAversionUsesWeightedDistance(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	spec, err := Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 1})
	require.NoError(t, err)
	assert.Zero(t, spec.Kappa)
	for _, p := range in.Pairs {
		assert.InDelta(t, p.Population*p.Distance, spec.Coefficients[PairKey{p.OriginID, p.DestinationID}], 1e-12)
	}
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	before := append([]model.DistancePair(nil), in.Pairs...)
	_, err := Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 2, Aversion: -1})
	require.NoError(t, err)
	assert.Equal(t, before, in.Pairs)
}

func TestBuild_MinimizeEDESolves(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	for n, want := range map[int][]string{1: {"d2"}, 2: {"d1", "d3"}, 3: {"d1", "d2", "d3"}} {
		spec, err := Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: n, Aversion: -1})
		require.NoError(t, err)
		out := solve(t, spec)
		require.Equal(t, model.StatusOptimal, out.Status)
		assert.Equal(t, want, openIDs(spec, out, in), "n=%d", n)
	}
}

func TestBuild_ForcedAndPercentOpen(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	in.Destinations[1].Open = model.OpenForced
	spec, err := Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 2, Aversion: -1})
	require.NoError(t, err)
	assert.Contains(t, constraintNames(spec.Model), "forced_1")
	out := solve(t, spec)
	assert.Equal(t, []string{"d2", "d3"}, openIDs(spec, out, in))

	in = threeByThree()
	in.Destinations[0].Open = model.OpenPercent
	in.Destinations[1].Open = model.OpenPercent
	spec, err = Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 2, Aversion: -1, MinPercent: 1})
	require.NoError(t, err)
	out = solve(t, spec)
	assert.Equal(t, []string{"d1", "d2"}, openIDs(spec, out, in))
}

func TestBuild_MinPercentRounding(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, requiredPercentOpen(10, 0.3))
	assert.Equal(t, 4, requiredPercentOpen(10, 0.31))
	assert.Equal(t, 1, requiredPercentOpen(3, 0.01))
	assert.Equal(t, 0, requiredPercentOpen(0, 0.5))
	assert.Equal(t, 0, requiredPercentOpen(5, 0))

	in := threeByThree()
	for i := range in.Destinations {
		in.Destinations[i].Open = model.OpenPercent
	}
	spec, err := Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 2, Aversion: -1})
	require.NoError(t, err)
	for _, c := range spec.Model.Constraints {
		if c.Name == "min_percent" {
			assert.Equal(t, mip.GE, c.Sense)
			assert.Zero(t, c.RHS)
			assert.Len(t, c.Terms, 3)
			return
		}
	}
	t.Fatal("min_percent constraint missing")
}

func TestBuild_Capacity(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	for i := range in.Destinations {
		in.Destinations[i].Capacity = model.Float(40)
	}

	spec, err := Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 1, Aversion: -1})
	require.NoError(t, err)
	assert.Equal(t, 3, countPrefix(constraintNames(spec.Model), "capacity_"))
	assert.Equal(t, model.StatusInfeasible, solve(t, spec).Status)

	spec, err = Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 2, Aversion: -1})
	require.NoError(t, err)
	out := solve(t, spec)
	require.Equal(t, model.StatusOptimal, out.Status)
	assert.Equal(t, []string{"d2", "d3"}, openIDs(spec, out, in))
	assert.InDelta(t, 1.0, out.Value(spec.Assign[PairKey{"o1", "d2"}]), 0)

	for i := range in.Destinations {
		in.Destinations[i].Capacity = model.Float(15)
	}
	_, err = Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 2, Aversion: -1})
	var inf *model.InfeasibleError
	require.True(t, errors.As(err, &inf))
	assert.Contains(t, inf.Reason, "total capacity")
}

func TestBuild_PrecheckInfeasible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Input)
		params model.Params
		reason string
	}{
		{
			name:   "too many locations",
			params: model.Params{Variant: model.MinimizeEDE, NumLocations: 4, Aversion: -1},
			reason: "exceeds the 3 eligible destinations",
		},
		{
			name: "forced and percent exceed budget",
			mutate: func(in *Input) {
				in.Destinations[0].Open = model.OpenForced
				in.Destinations[1].Open = model.OpenPercent
				in.Destinations[2].Open = model.OpenPercent
			},
			params: model.Params{Variant: model.MaximizeCoverage, NumLocations: 2, IsoRadius: 3, MinPercent: 0.6},
			reason: "1 forced-open plus 2 minimum percent-open",
		},
		{
			name:   "origin without pairs",
			mutate: func(in *Input) { in.Pairs = in.Pairs[:6] },
			params: model.Params{Variant: model.MinimizeEDE, NumLocations: 1, Aversion: -1},
			reason: "1 origins have no reachable destination",
		},
		{
			name:   "unreachable target",
			params: model.Params{Variant: model.MinimizeLocations, TargetEDE: 1, Aversion: -1},
			reason: "target_ede 1 is unreachable",
		},
		{
			name:   "coverage target beyond radius",
			params: model.Params{Variant: model.MinimizeLocationsForCoverage, IsoRadius: 1.5, PercentCoverage: 1},
			reason: "only 40 of the required 60 population",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := threeByThree()
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			_, err := Build(in, tt.params)
			var inf *model.InfeasibleError
			require.True(t, errors.As(err, &inf), "got %v", err)
			assert.Contains(t, inf.Reason, tt.reason)
		})
	}
}

func TestBuild_InvalidInput(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	_, err := Build(in, model.Params{Variant: model.MinimizeEDE, Aversion: -1})
	var ipe *model.InvalidParamsError
	assert.True(t, errors.As(err, &ipe))

	_, err = Build(Input{Destinations: in.Destinations}, model.Params{Variant: model.MinimizeEDE, NumLocations: 1})
	assert.Error(t, err)

	bad := threeByThree()
	bad.Pairs[0].DestinationID = "nowhere"
	_, err = Build(bad, model.Params{Variant: model.MinimizeEDE, NumLocations: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown destination")

	dup := threeByThree()
	dup.Destinations[2].ID = "d1"
	_, err = Build(dup, model.Params{Variant: model.MinimizeEDE, NumLocations: 1})
	assert.Error(t, err)
}

func TestBuild_DegenerateAlpha(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	for i := range in.Pairs {
		in.Pairs[i].Distance = 0
	}
	_, err := Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 1, Aversion: -1})
	assert.True(t, errors.Is(err, model.ErrDegenerateDistances))

	// Coverage variants only use alpha for reporting.
	spec, err := Build(in, model.Params{Variant: model.MaximizeCoverage, NumLocations: 1, IsoRadius: 1})
	require.NoError(t, err)
	require.Len(t, spec.Warnings, 1)
	assert.Contains(t, spec.Warnings[0], "scaling factor approximation failed")
}

func TestBuild_MinimizeLocations(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	spec, err := Build(in, model.Params{Variant: model.MinimizeLocations, TargetEDE: 2, Aversion: -1})
	require.NoError(t, err)

	assert.InDelta(t, 60*math.Exp(4.0/3.0), spec.AdjustedTarget, 1e-9)
	names := constraintNames(spec.Model)
	assert.Contains(t, names, "target_ede")
	assert.NotContains(t, names, "num_locations")
	assert.Equal(t, 3, countPrefix(names, "assign_"))

	out := solve(t, spec)
	require.Equal(t, model.StatusOptimal, out.Status)
	assert.Equal(t, []string{"d1", "d3"}, openIDs(spec, out, in))
	assert.InDelta(t, 2.0, out.PrimalBound, 1e-9)

	// With aversion 0 the target is the mean distance itself.
	spec, err = Build(in, model.Params{Variant: model.MinimizeLocations, TargetEDE: 2})
	require.NoError(t, err)
	assert.InDelta(t, 120.0, spec.AdjustedTarget, 1e-12)
}

func TestBuild_MaximizeCoverage(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	in.Destinations[0].Capacity = model.Float(1)
	spec, err := Build(in, model.Params{Variant: model.MaximizeCoverage, NumLocations: 1, IsoRadius: 3})
	require.NoError(t, err)

	assert.Equal(t, 15, spec.Model.NumVars())
	assert.Len(t, spec.Covered, 3)
	assert.Equal(t, mip.Maximize, spec.Model.ObjSense)
	assert.Nil(t, spec.Coefficients)

	names := constraintNames(spec.Model)
	assert.Zero(t, countPrefix(names, "assign_"))
	assert.Zero(t, countPrefix(names, "capacity_"))
	assert.Equal(t, 9, countPrefix(names, "iso_"))
	assert.Equal(t, 3, countPrefix(names, "covered_"))

	out := solve(t, spec)
	require.Equal(t, model.StatusOptimal, out.Status)
	assert.InDelta(t, 50.0, out.PrimalBound, 1e-9)
	assert.Len(t, openIDs(spec, out, in), 1)

	spec, err = Build(in, model.Params{Variant: model.MaximizeCoverage, NumLocations: 2, IsoRadius: 3})
	require.NoError(t, err)
	out = solve(t, spec)
	assert.InDelta(t, 60.0, out.PrimalBound, 1e-9)
}

func TestBuild_MinimizeLocationsForCoverage(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	spec, err := Build(in, model.Params{Variant: model.MinimizeLocationsForCoverage, IsoRadius: 3, PercentCoverage: 0.8})
	require.NoError(t, err)

	for _, c := range spec.Model.Constraints {
		if c.Name == "coverage" {
			assert.Equal(t, mip.GE, c.Sense)
			assert.InDelta(t, 48.0, c.RHS, 1e-12)
		}
	}
	out := solve(t, spec)
	require.Equal(t, model.StatusOptimal, out.Status)
	assert.InDelta(t, 1.0, out.PrimalBound, 1e-9)
}

func TestBuild_ShiftsLargeExponents(t *testing.T) {
	t.Parallel()

	in := threeByThree()
	for i := range in.Pairs {
		in.Pairs[i].Distance *= 100
	}
	spec, err := Build(in, model.Params{Variant: model.MinimizeEDE, NumLocations: 2, Aversion: -1, ScalingFactor: model.Float(1)})
	require.NoError(t, err)

	// Largest term is o3-d1: ln 30 + 700, brought down to 40.
	require.Len(t, spec.Warnings, 2)
	assert.Contains(t, spec.Warnings[0], "rescaled")
	assert.Contains(t, spec.Warnings[1], "coefficients span a factor of exp(601)")
	assert.InDelta(t, 700+math.Log(30)-40, spec.Shift, 1e-9)
	assert.InDelta(t, math.Exp(40), spec.Coefficients[PairKey{"o3", "d1"}], 1e-6*math.Exp(40))
	for k, c := range spec.Coefficients {
		assert.False(t, math.IsInf(c, 0) || math.IsNaN(c), "%v", k)
		assert.Greater(t, c, 0.0)
		assert.LessOrEqual(t, c, math.Exp(40)*(1+1e-12), "%v", k)
	}
	// Ratios are preserved: coef(o1,d2)/coef(o1,d1) = exp(300).
	ratio := math.Log(spec.Coefficients[PairKey{"o1", "d2"}]) - math.Log(spec.Coefficients[PairKey{"o1", "d1"}])
	assert.InDelta(t, 300.0, ratio, 1e-6)

	out := solve(t, spec)
	assert.Equal(t, []string{"d1", "d3"}, openIDs(spec, out, in))

	loc, err := Build(in, model.Params{Variant: model.MinimizeLocations, TargetEDE: 650, Aversion: -1, ScalingFactor: model.Float(1)})
	require.NoError(t, err)
	assert.InDelta(t, 60*math.Exp(650-loc.Shift), loc.AdjustedTarget, 1e-6*loc.AdjustedTarget)
	assert.False(t, math.IsInf(loc.AdjustedTarget, 0))
}
