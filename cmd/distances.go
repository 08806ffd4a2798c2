package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/sells-group/efl/internal/dataset"
	"github.com/sells-group/efl/internal/geodist"
)

var distancesCmd = &cobra.Command{
	Use:   "distances <origins> <destinations> <out.csv>",
	Short: "Build a distance lookup table from point locations",
	Long: "Reads origin and destination locations from shapefiles (.shp or zipped) or tables with id and " +
		"x/y or lon/lat columns, and writes the full origin x destination distance table. Polygons are " +
		"reduced to their centroid.",
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		metricName, _ := cmd.Flags().GetString("metric")
		metric, err := geodist.ParseMetric(metricName)
		if err != nil {
			return err
		}
		originField, _ := cmd.Flags().GetString("origin-id")
		destField, _ := cmd.Flags().GetString("destination-id")
		workers, _ := cmd.Flags().GetInt("workers")

		origins, err := dataset.ReadPoints(ctx, args[0], originField)
		if err != nil {
			return err
		}
		dests, err := dataset.ReadPoints(ctx, args[1], destField)
		if err != nil {
			return err
		}

		rows, err := geodist.Lookup(ctx, origins, dests, metric, workers)
		if err != nil {
			return err
		}
		if err := dataset.WriteDistancesCSV(rows, args[2]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Wrote %d distances (%d origins x %d destinations) to %s\n", len(rows), len(origins), len(dests), args[2])
		return nil
	},
}

func init() {
	distancesCmd.Flags().String("metric", string(geodist.Euclidean), "euclidean, or haversine (lon/lat degrees, km)")
	distancesCmd.Flags().String("origin-id", "id", "origin id column or shapefile field")
	distancesCmd.Flags().String("destination-id", "id", "destination id column or shapefile field")
	distancesCmd.Flags().Int("workers", runtime.NumCPU(), "concurrent distance workers")
	rootCmd.AddCommand(distancesCmd)
}
