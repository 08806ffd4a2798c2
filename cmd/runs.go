package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/efl/internal/model"
	"github.com/sells-group/efl/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved optimization runs",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved runs, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter, err := runFilterFromFlags(cmd)
		if err != nil {
			return err
		}
		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the full result of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

func init() {
	runsListCmd.Flags().String("minimize", "", "filter by variant (ede, locations, coverage, coverage-locations)")
	runsListCmd.Flags().String("status", "", "filter by solve status (OPTIMAL, FEASIBLE)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runFilterFromFlags(cmd *cobra.Command) (store.RunFilter, error) {
	variant, _ := cmd.Flags().GetString("minimize")
	status, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := store.RunFilter{Status: model.SolveStatus(status), Limit: limit}
	if variant != "" {
		v, err := model.ParseVariant(variant)
		if err != nil {
			return filter, err
		}
		filter.Variant = &v
	}
	return filter, nil
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tVARIANT\tSTATUS\tOPENED\tOBJECTIVE\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t------\t------\t---------\t-------")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%s\n",
			truncateID(r.ID),
			r.Variant,
			r.Status,
			r.NumLocations,
			r.Objective,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
