package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpenStatus(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]OpenStatus{"": OpenNone, "yes": OpenForced, "YES": OpenForced, " percent": OpenPercent} {
		got, err := ParseOpenStatus(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseOpenStatus("maybe")
	assert.Error(t, err)

	var s OpenStatus
	require.NoError(t, s.UnmarshalText([]byte("percent")))
	assert.Equal(t, OpenPercent, s)
	b, _ := OpenForced.MarshalText()
	assert.Equal(t, "yes", string(b))
}

func TestTotalsAndCounts(t *testing.T) {
	t.Parallel()

	origins := []Origin{{ID: "a", Population: 10}, {ID: "b", Population: 2.5}}
	assert.InDelta(t, 12.5, TotalPopulation(origins), 1e-12)

	dests := []Destination{{ID: "1", Open: OpenForced}, {ID: "2", Open: OpenPercent}, {ID: "3", Open: OpenPercent}, {ID: "4"}}
	assert.Equal(t, 1, CountOpen(dests, OpenForced))
	assert.Equal(t, 2, CountOpen(dests, OpenPercent))
	assert.Equal(t, 1, CountOpen(dests, OpenNone))
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	inf := Infeasiblef("radius excludes %d origins", 3)
	assert.Equal(t, "infeasible: radius excludes 3 origins", inf.Error())

	se := &SolverError{Backend: "scip", Status: StatusTimeoutNoSolution}
	assert.Equal(t, "solver scip: terminated with status TIMEOUT_NO_SOLUTION", se.Error())

	missing := &MissingDistanceError{Pairs: [][2]string{{"a", "1"}, {"a", "2"}, {"b", "1"}, {"b", "2"}, {"c", "1"}, {"c", "2"}}}
	assert.Contains(t, missing.Error(), "missing 6 pairs: a->1, a->2")
	assert.Contains(t, missing.Error(), ", ...")

	wrapped := errors.Join(errors.New("context"), ErrDegenerateDistances)
	assert.True(t, errors.Is(wrapped, ErrDegenerateDistances))

	assert.True(t, StatusFeasible.HasSolution())
	assert.False(t, StatusInfeasible.HasSolution())
}

func TestSummaryRows(t *testing.T) {
	t.Parallel()

	r := &Result{
		Params: Params{Variant: MinimizeEDE, NumLocations: 2, Aversion: -1, Solver: "scip"},
		Summary: Summary{
			Status:          StatusOptimal,
			ScalingFactor:   0.25,
			EDEOut:          Float(3.5),
			NumLocationsOut: 2,
		},
		Extra: map[string]string{"out_file": "out.csv", "ignored": "x"},
	}

	rows := r.SummaryRows()
	got := map[string]string{}
	var keys []string
	for _, kv := range rows {
		got[kv.Key] = kv.Value
		keys = append(keys, kv.Key)
	}
	assert.Equal(t, "ede", got["minimize"])
	assert.Equal(t, "2", got["num_locations"])
	assert.Equal(t, "0.25", got["scaling_factor"])
	assert.Equal(t, "3.5", got["ede_out"])
	assert.Equal(t, "", got["mean_distance_out"])
	assert.Equal(t, "out.csv", got["out_file"])
	assert.NotContains(t, keys, "ignored")
	assert.NotContains(t, keys, "covered_population")
	assert.Equal(t, "ede_out", keys[len(keys)-1])
}
