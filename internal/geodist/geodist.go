// Package geodist builds distance lookup tables from point locations.
package geodist

import (
	"context"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/efl/internal/model"
)

// earthRadiusKM is the mean Earth radius.
const earthRadiusKM = 6371.0088

// Metric is a distance function between two XY coordinates.
type Metric string

// Supported metrics. Haversine expects longitude in X and latitude in Y,
// in degrees, and returns kilometers.
const (
	Euclidean Metric = "euclidean"
	Haversine Metric = "haversine"
)

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case Euclidean, Haversine:
		return m, nil
	default:
		return "", eris.Errorf("geodist: unknown metric %q", s)
	}
}

// Distance returns the distance between a and b.
func (m Metric) Distance(a, b geom.Coord) float64 {
	if m == Haversine {
		return haversine(a, b)
	}
	return math.Hypot(a.X()-b.X(), a.Y()-b.Y())
}

func haversine(a, b geom.Coord) float64 {
	lat1, lat2 := radians(a.Y()), radians(b.Y())
	dLat := lat2 - lat1
	dLon := radians(b.X() - a.X())
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// Point is an identified location.
type Point struct {
	ID    string
	Point *geom.Point
}

// NewPoint returns an XY point.
func NewPoint(id string, x, y float64) Point {
	return Point{ID: id, Point: geom.NewPointFlat(geom.XY, []float64{x, y})}
}

// Representative reduces a geometry to one point: points are kept as is,
// anything else is replaced by its centroid.
func Representative(id string, g geom.T) (Point, error) {
	if p, ok := g.(*geom.Point); ok {
		return Point{ID: id, Point: p}, nil
	}
	c, err := xy.Centroid(g)
	if err != nil {
		return Point{}, eris.Wrapf(err, "geodist: centroid of %s", id)
	}
	return NewPoint(id, c.X(), c.Y()), nil
}

// Lookup computes the full origin x destination distance table in
// origin-major order, spreading origins over at most workers goroutines.
func Lookup(ctx context.Context, origins, dests []Point, metric Metric, workers int) ([]model.DistanceLookup, error) {
	if workers < 1 {
		workers = 1
	}
	log := zap.L().With(zap.String("component", "geodist"), zap.String("metric", string(metric)))

	out := make([]model.DistanceLookup, len(origins)*len(dests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, o := range origins {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			oc := o.Point.Coords()
			for j, d := range dests {
				dist := metric.Distance(oc, d.Point.Coords())
				if math.IsNaN(dist) {
					return eris.Errorf("geodist: distance %s->%s is not a number", o.ID, d.ID)
				}
				out[i*len(dests)+j] = model.DistanceLookup{Origin: o.ID, Destination: d.ID, Distance: dist}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "geodist: lookup")
	}

	log.Info("geodist: lookup built", zap.Int("origins", len(origins)), zap.Int("destinations", len(dests)))
	return out, nil
}
