package builder

import (
	"github.com/sells-group/efl/internal/equity"
	"github.com/sells-group/efl/internal/model"
)

// AlphaCandidates returns the destinations the default scaling factor is
// measured against: forced-open ones if any exist, else percent-eligible
// ones if any exist, else nil meaning all destinations.
func AlphaCandidates(dests []model.Destination) map[string]bool {
	for _, status := range []model.OpenStatus{model.OpenForced, model.OpenPercent} {
		set := make(map[string]bool)
		for _, d := range dests {
			if d.Open == status {
				set[d.ID] = true
			}
		}
		if len(set) > 0 {
			return set
		}
	}
	return nil
}

// MinDistanceAssignment assigns every origin to its nearest allowed
// destination, in origin order. A nil allowed set permits every
// destination. Origins with no allowed pair are omitted.
func MinDistanceAssignment(in Input, allowed map[string]bool) []model.AssignmentRecord {
	best := make(map[string]int, len(in.Origins))
	for i, pr := range in.Pairs {
		if allowed != nil && !allowed[pr.DestinationID] {
			continue
		}
		if j, ok := best[pr.OriginID]; !ok || pr.Distance < in.Pairs[j].Distance {
			best[pr.OriginID] = i
		}
	}

	rows := make([]model.AssignmentRecord, 0, len(best))
	for _, o := range in.Origins {
		i, ok := best[o.ID]
		if !ok {
			continue
		}
		pr := in.Pairs[i]
		rows = append(rows, model.AssignmentRecord{
			OriginID:      o.ID,
			DestinationID: pr.DestinationID,
			Distance:      pr.Distance,
			Population:    o.Population,
			Covered:       true,
		})
	}
	return rows
}

// ApproximateAlpha is the default scaling factor: ScalingFactor of the
// minimum-distance assignment to AlphaCandidates.
func ApproximateAlpha(in Input) (float64, error) {
	return equity.ScalingFactor(MinDistanceAssignment(in, AlphaCandidates(in.Destinations)))
}
