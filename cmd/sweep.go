package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/efl/internal/model"
	"github.com/sells-group/efl/internal/optimize"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep <origins> <destinations> <distances>",
	Short: "Solve several parameter sets against the same inputs",
	Long: "Runs one scenario per --num-locations value, or one per entry of a --scenarios YAML file, " +
		"concurrently (sweep.max_concurrent) and prints a summary table. Failed scenarios are reported " +
		"without stopping the others.",
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("optimize"); err != nil {
			return err
		}

		base, err := paramsFromFlags(cmd.Flags(), cfg.Model)
		if err != nil {
			return err
		}
		counts, _ := cmd.Flags().GetIntSlice("num-locations")
		scenarioFile, _ := cmd.Flags().GetString("scenarios")

		var scenarios []optimize.Scenario
		if scenarioFile != "" {
			data, err := os.ReadFile(scenarioFile)
			if err != nil {
				return eris.Wrap(err, "sweep: read scenarios")
			}
			if scenarios, err = parseScenarios(data, base); err != nil {
				return err
			}
		} else {
			scenarios = countScenarios(base, counts)
		}
		if len(scenarios) == 0 {
			return eris.New("sweep: no scenarios; pass --num-locations or --scenarios")
		}

		in, err := loadInputs(ctx, args[0], args[1], args[2], capacityFromFlags(cmd.Flags(), cfg.Model))
		if err != nil {
			return err
		}
		opt, err := newOptimizer(base.Solver)
		if err != nil {
			return err
		}

		return runSweep(ctx, os.Stdout, opt, in, scenarios, cfg.Sweep.MaxConcurrent)
	},
}

func init() {
	addParamFlags(sweepCmd.Flags(), true)
	sweepCmd.Flags().String("scenarios", "", "YAML list of scenarios; keys as in params, plus name")
	rootCmd.AddCommand(sweepCmd)
}

// runSweep prints the input warnings, then solves the scenarios and prints
// one row per scenario. The table is written even when the sweep is
// cancelled part way.
func runSweep(ctx context.Context, out io.Writer, opt *optimize.Optimizer, in *inputs, scenarios []optimize.Scenario, limit int) error {
	for _, w := range in.Warnings {
		_, _ = fmt.Fprintf(out, "warning: %s\n", w)
	}
	results, err := opt.Sweep(ctx, in.Data, scenarios, limit)
	formatSweep(out, results)
	return err
}

// countScenarios builds one scenario per location count.
func countScenarios(base model.Params, counts []int) []optimize.Scenario {
	out := make([]optimize.Scenario, 0, len(counts))
	for _, n := range counts {
		p := base
		p.NumLocations = n
		out = append(out, optimize.Scenario{Name: fmt.Sprintf("%s-n%d", p.Variant, n), Params: p})
	}
	return out
}

// parseScenarios decodes a YAML list of scenarios. Keys absent from an
// entry keep the values from base.
func parseScenarios(data []byte, base model.Params) ([]optimize.Scenario, error) {
	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, eris.Wrap(err, "sweep: parse scenarios")
	}
	out := make([]optimize.Scenario, 0, len(nodes))
	for i := range nodes {
		sc := optimize.Scenario{Params: base}
		if err := nodes[i].Decode(&sc); err != nil {
			return nil, eris.Wrapf(err, "sweep: scenario %d", i+1)
		}
		if sc.Name == "" {
			sc.Name = "scenario-" + strconv.Itoa(i+1)
		}
		out = append(out, sc)
	}
	return out, nil
}

// formatSweep writes one row per scenario.
func formatSweep(out io.Writer, results []optimize.ScenarioResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCENARIO\tSTATUS\tOPENED\tEDE\tMEAN\tCOVERAGE\tERROR")
	for _, r := range results {
		if r.Result == nil {
			msg := "not run"
			if r.Err != nil {
				msg = r.Err.Error()
			}
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t%s\n", r.Scenario.Name, msg)
			continue
		}
		s := r.Result.Summary
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t\n",
			r.Scenario.Name, s.Status, s.NumLocationsOut,
			optFloat(s.EDEOut), optFloat(s.MeanDistanceOut), optFloat(s.CoverageFraction))
	}
	_ = w.Flush()
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 4, 64)
}
