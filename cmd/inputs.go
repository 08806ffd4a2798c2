package main

import (
	"context"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/sells-group/efl/internal/config"
	"github.com/sells-group/efl/internal/dataset"
	"github.com/sells-group/efl/internal/model"
	"github.com/sells-group/efl/internal/optimize"
)

// addParamFlags registers the model parameter flags shared by optimize and
// sweep. In a sweep --num-locations takes a list.
func addParamFlags(fs *pflag.FlagSet, sweep bool) {
	fs.String("minimize", "ede", "objective: ede, locations, coverage or coverage-locations")
	if sweep {
		fs.IntSlice("num-locations", nil, "location counts to sweep, e.g. 3,5,8")
	} else {
		fs.Int("num-locations", 0, "number of destinations to open (ede, coverage)")
	}
	fs.Float64("target-ede", 0, "EDE the solution must not exceed (locations)")
	fs.Float64("aversion", 0, "inequality aversion, <= 0 (default from config)")
	fs.Float64("scaling-factor", 0, "override the computed scaling factor alpha")
	fs.Float64("min-percent", 0, "minimum share of percent-marked destinations to open, 0..1")
	fs.Float64("radius", 0, "drop origin-destination pairs farther than this")
	fs.Float64("iso-radius", 0, "coverage radius (coverage variants)")
	fs.Float64("percent-coverage", 0, "population share to cover, 0..1 (coverage-locations)")
	fs.Float64("capacity", 0, "capacity of destinations without one (default from config)")
	fs.String("solver", "", "solver backend: scip or gurobi (default from config)")
	fs.Float64("time-limit", 0, "solver time limit in seconds")
	fs.Float64("mip-gap", 0, "relative MIP gap at which the solver may stop")
}

// paramsFromFlags reads the parameter flags. Unset optional flags stay nil
// and aversion and min-percent fall back to the model defaults.
func paramsFromFlags(fs *pflag.FlagSet, defaults config.ModelConfig) (model.Params, error) {
	var p model.Params

	name, _ := fs.GetString("minimize")
	v, err := model.ParseVariant(name)
	if err != nil {
		return p, &model.InvalidParamsError{Field: "minimize", Reason: err.Error()}
	}
	p.Variant = v

	if f := fs.Lookup("num-locations"); f != nil && f.Value.Type() == "int" {
		p.NumLocations, _ = fs.GetInt("num-locations")
	}
	p.TargetEDE, _ = fs.GetFloat64("target-ede")
	p.IsoRadius, _ = fs.GetFloat64("iso-radius")
	p.PercentCoverage, _ = fs.GetFloat64("percent-coverage")
	p.Solver, _ = fs.GetString("solver")

	p.Aversion = defaults.Aversion
	if fs.Changed("aversion") {
		p.Aversion, _ = fs.GetFloat64("aversion")
	}
	p.MinPercent = defaults.MinPercent
	if fs.Changed("min-percent") {
		p.MinPercent, _ = fs.GetFloat64("min-percent")
	}

	p.ScalingFactor = optionalFloat(fs, "scaling-factor")
	p.Radius = optionalFloat(fs, "radius")
	p.TimeLimit = optionalFloat(fs, "time-limit")
	p.MIPGap = optionalFloat(fs, "mip-gap")
	return p, nil
}

// capacityFromFlags returns the default destination capacity, if any.
func capacityFromFlags(fs *pflag.FlagSet, defaults config.ModelConfig) *float64 {
	if c := optionalFloat(fs, "capacity"); c != nil {
		return c
	}
	if defaults.DefaultCapacity > 0 {
		return model.Float(defaults.DefaultCapacity)
	}
	return nil
}

func optionalFloat(fs *pflag.FlagSet, name string) *float64 {
	if !fs.Changed(name) {
		return nil
	}
	v, _ := fs.GetFloat64(name)
	return &v
}

// inputs is the validated data of a run plus what gets echoed into the
// summary table.
type inputs struct {
	Data     optimize.Data
	Warnings []string
	Extra    map[string]string
}

// loadInputs reads and validates the three input tables.
func loadInputs(ctx context.Context, originPath, destPath, distPath string, capacity *float64) (*inputs, error) {
	in := &inputs{Extra: map[string]string{
		"origin_file":      filepath.Base(originPath),
		"destination_file": filepath.Base(destPath),
		"distance_file":    filepath.Base(distPath),
	}}
	if capacity != nil {
		in.Extra["capacity"] = strconv.FormatFloat(*capacity, 'g', -1, 64)
	}

	t, err := dataset.ReadTable(ctx, originPath)
	if err != nil {
		return nil, err
	}
	origins, w, err := dataset.ValidateOrigins(t)
	in.Warnings = append(in.Warnings, w...)
	if err != nil {
		return nil, err
	}

	if t, err = dataset.ReadTable(ctx, destPath); err != nil {
		return nil, err
	}
	dests, w, err := dataset.ValidateDestinations(t, capacity)
	in.Warnings = append(in.Warnings, w...)
	if err != nil {
		return nil, err
	}

	if t, err = dataset.ReadTable(ctx, distPath); err != nil {
		return nil, err
	}
	lookup, w, err := dataset.ValidateDistances(t)
	in.Warnings = append(in.Warnings, w...)
	if err != nil {
		return nil, err
	}

	in.Data = optimize.Data{Origins: origins, Destinations: dests, Lookup: lookup}
	return in, nil
}
