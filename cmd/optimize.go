package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/efl/internal/dataset"
	"github.com/sells-group/efl/internal/model"
	"github.com/sells-group/efl/internal/store"
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize <origins> <destinations> <distances> <out>",
	Short: "Choose facility locations for one parameter set",
	Long: "Reads origin, destination and distance tables (.csv or .xlsx), solves the selected model and writes " +
		"<out>.csv with one row per origin plus <out>_summary.csv with parameters and statistics.",
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("optimize"); err != nil {
			return err
		}

		p, err := paramsFromFlags(cmd.Flags(), cfg.Model)
		if err != nil {
			return err
		}
		in, err := loadInputs(ctx, args[0], args[1], args[2], capacityFromFlags(cmd.Flags(), cfg.Model))
		if err != nil {
			return err
		}

		opt, err := newOptimizer(p.Solver)
		if err != nil {
			return err
		}
		res, err := opt.Run(ctx, in.Data, p)
		if err != nil {
			return err
		}
		res.Warnings = append(in.Warnings, res.Warnings...)
		res.Extra = in.Extra
		res.Extra["out_file"] = args[3]

		assignPath, summaryPath, err := dataset.WriteResultCSV(res, args[3])
		if err != nil {
			return err
		}
		written := []string{assignPath, summaryPath}

		if xlsx, _ := cmd.Flags().GetBool("xlsx"); xlsx {
			path := strings.TrimSuffix(args[3], ".csv") + ".xlsx"
			if err := dataset.WriteResultXLSX(res, path); err != nil {
				return err
			}
			written = append(written, path)
		}

		if save, _ := cmd.Flags().GetBool("save-run"); save {
			st, err := store.Open(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			run, err := st.SaveRun(ctx, res)
			if err != nil {
				return eris.Wrap(err, "optimize: save run")
			}
			zap.L().Info("optimize: run saved", zap.String("run_id", run.ID))
			fmt.Fprintf(os.Stdout, "Run saved: %s\n", run.ID)
		}

		formatResult(os.Stdout, res)
		fmt.Fprintf(os.Stdout, "Wrote %s\n", strings.Join(written, ", "))
		return nil
	},
}

func init() {
	addParamFlags(optimizeCmd.Flags(), false)
	optimizeCmd.Flags().Bool("xlsx", false, "also write <out>.xlsx with assignment and summary sheets")
	optimizeCmd.Flags().Bool("save-run", false, "record the run in the run history store")
	rootCmd.AddCommand(optimizeCmd)
}

// formatResult writes the headline statistics and warnings of a result.
func formatResult(out io.Writer, res *model.Result) {
	s := res.Summary
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", s.Status)
	_, _ = fmt.Fprintf(w, "Objective:\t%g\n", s.Objective)
	if s.MIPGap != nil {
		_, _ = fmt.Fprintf(w, "MIP gap:\t%g\n", *s.MIPGap)
	}
	_, _ = fmt.Fprintf(w, "Opened (%d):\t%s\n", s.NumLocationsOut, strings.Join(s.OpenedDestinations, ", "))
	if s.EDEOut != nil {
		_, _ = fmt.Fprintf(w, "EDE:\t%g\n", *s.EDEOut)
	}
	if s.MeanDistanceOut != nil {
		_, _ = fmt.Fprintf(w, "Mean distance:\t%g\n", *s.MeanDistanceOut)
	}
	if s.CoverageFraction != nil {
		_, _ = fmt.Fprintf(w, "Coverage:\t%.2f%%\n", *s.CoverageFraction*100)
	}
	_ = w.Flush()

	for _, warning := range res.Warnings {
		_, _ = fmt.Fprintf(out, "warning: %s\n", warning)
	}
}
