// Package pairs joins origins and destinations with the distance lookup and
// restricts the result to a travel radius.
package pairs

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/efl/internal/model"
)

type key struct{ origin, dest string }

// Join builds the full origin × destination table in origin-major order.
// The lookup may contain rows for unknown ids; those are ignored.
func Join(origins []model.Origin, dests []model.Destination, lookup []model.DistanceLookup) ([]model.DistancePair, error) {
	dist := make(map[key]float64, len(lookup))
	for _, l := range lookup {
		if math.IsNaN(l.Distance) || math.IsInf(l.Distance, 0) || l.Distance < 0 {
			return nil, eris.Errorf("pairs: distance %v for %s->%s is not a finite non-negative number", l.Distance, l.Origin, l.Destination)
		}
		k := key{l.Origin, l.Destination}
		if prev, ok := dist[k]; ok && prev != l.Distance {
			return nil, eris.Errorf("pairs: conflicting distances %v and %v for %s->%s", prev, l.Distance, l.Origin, l.Destination)
		}
		dist[k] = l.Distance
	}

	out := make([]model.DistancePair, 0, len(origins)*len(dests))
	var missing [][2]string
	for _, o := range origins {
		for _, d := range dests {
			v, ok := dist[key{o.ID, d.ID}]
			if !ok {
				missing = append(missing, [2]string{o.ID, d.ID})
				continue
			}
			out = append(out, model.DistancePair{
				OriginID:      o.ID,
				DestinationID: d.ID,
				Distance:      v,
				Population:    o.Population,
			})
		}
	}
	if len(missing) > 0 {
		return nil, &model.MissingDistanceError{Pairs: missing}
	}
	return out, nil
}

// Filtered is the outcome of ApplyRadius.
type Filtered struct {
	Destinations []model.Destination
	Pairs        []model.DistancePair
	Warnings     []string
}

// ApplyRadius drops pairs farther than radius. A nil radius keeps every
// pair. Destinations left without pairs are dropped with a warning; an
// origin left without pairs makes the problem infeasible.
func ApplyRadius(origins []model.Origin, dests []model.Destination, in []model.DistancePair, radius *float64) (*Filtered, error) {
	if radius == nil {
		return &Filtered{
			Destinations: append([]model.Destination(nil), dests...),
			Pairs:        append([]model.DistancePair(nil), in...),
		}, nil
	}
	if *radius <= 0 || math.IsNaN(*radius) {
		return nil, &model.InvalidParamsError{Field: "Radius", Reason: "must be greater than 0"}
	}

	kept := make([]model.DistancePair, 0, len(in))
	seenOrigin := make(map[string]bool, len(origins))
	seenDest := make(map[string]bool, len(dests))
	for _, p := range in {
		if p.Distance > *radius {
			continue
		}
		kept = append(kept, p)
		seenOrigin[p.OriginID] = true
		seenDest[p.DestinationID] = true
	}

	excluded := 0
	for _, o := range origins {
		if !seenOrigin[o.ID] {
			excluded++
		}
	}
	if excluded > 0 {
		return nil, model.Infeasiblef("radius excludes %d origins", excluded)
	}

	f := &Filtered{Pairs: kept}
	dropped := 0
	for _, d := range dests {
		if seenDest[d.ID] {
			f.Destinations = append(f.Destinations, d)
		} else {
			dropped++
		}
	}
	if dropped > 0 {
		f.Warnings = append(f.Warnings, fmt.Sprintf("radius=%g excludes %d destinations", *radius, dropped))
	}
	return f, nil
}
