package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/efl/internal/config"
	"github.com/sells-group/efl/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func sampleResult(variant model.Variant) *model.Result {
	res := &model.Result{
		Params: model.Params{Variant: variant, NumLocations: 1, Aversion: -1},
		Assignments: []model.AssignmentRecord{
			{OriginID: "o1", DestinationID: "d1", Distance: 2, Population: 10, Covered: true},
			{OriginID: "o2", DestinationID: "d1", Distance: 3, Population: 20, Covered: true},
		},
		Summary: model.Summary{
			Status:             model.StatusOptimal,
			Objective:          2.5,
			ScalingFactor:      0.4,
			NumLocationsOut:    1,
			OpenedDestinations: []string{"d1"},
			EDEOut:             model.Float(2.7),
		},
		Warnings: []string{"1 origins with population = 0 removed"},
	}
	if variant.IsCoverage() {
		res.Params.IsoRadius = 2.5
		res.Assignments[1] = model.AssignmentRecord{OriginID: "o2", Population: 20}
		res.Summary.Objective = 50
		res.Summary.CoveredPopulation = model.Float(10)
	}
	return res
}

func TestSQLite_SaveAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	res := sampleResult(model.MinimizeEDE)

	saved, err := st.SaveRun(ctx, res)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := st.GetRun(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, model.MinimizeEDE, got.Variant)
	assert.Equal(t, model.StatusOptimal, got.Status)
	assert.InDelta(t, 2.5, got.Objective, 0)
	assert.Equal(t, 1, got.NumLocations)
	assert.False(t, got.CreatedAt.IsZero())

	require.NotNil(t, got.Result)
	assert.Equal(t, res.Assignments, got.Result.Assignments)
	assert.Equal(t, res.Warnings, got.Result.Warnings)
	assert.InDelta(t, 2.7, *got.Result.Summary.EDEOut, 0)
	assert.Nil(t, got.Result.Summary.MIPGap)
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_SaveRun_Nil(t *testing.T) {
	st := newTestSQLiteStore(t)
	_, err := st.SaveRun(context.Background(), nil)
	assert.Error(t, err)
}

func TestSQLite_ListRuns(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, v := range []model.Variant{model.MinimizeEDE, model.MaximizeCoverage, model.MaximizeCoverage} {
		_, err := st.SaveRun(ctx, sampleResult(v))
		require.NoError(t, err)
	}

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for _, r := range all {
		assert.Nil(t, r.Result)
	}

	cov := model.MaximizeCoverage
	runs, err := st.ListRuns(ctx, RunFilter{Variant: &cov})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.InDelta(t, 50.0, runs[0].Objective, 0)

	runs, err = st.ListRuns(ctx, RunFilter{Status: model.StatusFeasible})
	require.NoError(t, err)
	assert.Empty(t, runs)

	runs, err = st.ListRuns(ctx, RunFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = st.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	run, err := s.SaveRun(ctx, sampleResult(model.MinimizeLocations))
	require.NoError(t, err)
	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MinimizeLocations, got.Variant)

	_, err = Open(ctx, config.StoreConfig{Driver: "mysql"})
	assert.Error(t, err)
}
