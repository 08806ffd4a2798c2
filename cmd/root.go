package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/efl/internal/config"
	"github.com/sells-group/efl/internal/optimize"
	"github.com/sells-group/efl/internal/solver"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "efl",
	Short: "Equitable facility location",
	Long:  "Chooses which candidate destinations to open so that the population-weighted Kolm-Pollak equally-distributed equivalent distance, or the covered population, is optimal. Models are solved with SCIP or Gurobi.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// newOptimizer builds an optimizer for the configured backend. A non-empty
// backend overrides solver.backend.
func newOptimizer(backend string) (*optimize.Optimizer, error) {
	sc := cfg.Solver
	if backend != "" {
		sc.Backend = backend
	}
	s, err := solver.NewSolver(sc)
	if err != nil {
		return nil, err
	}
	return optimize.New(sc, s), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
