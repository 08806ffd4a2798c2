package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Origin is a population center that must be served by a facility.
type Origin struct {
	ID         string  `json:"id" csv:"id"`
	Population float64 `json:"population" csv:"population"`
}

// OpenStatus marks whether a destination is forced open or counts toward
// the minimum-percent-open requirement.
type OpenStatus int

// Open statuses.
const (
	OpenNone OpenStatus = iota
	OpenForced
	OpenPercent
)

// ParseOpenStatus converts the "open" column value of a destination row.
func ParseOpenStatus(s string) (OpenStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return OpenNone, nil
	case "yes":
		return OpenForced, nil
	case "percent":
		return OpenPercent, nil
	default:
		return OpenNone, eris.Errorf("model: invalid open status %q", s)
	}
}

// String returns the column value for the status.
func (s OpenStatus) String() string {
	switch s {
	case OpenForced:
		return "yes"
	case OpenPercent:
		return "percent"
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s OpenStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *OpenStatus) UnmarshalText(b []byte) error {
	v, err := ParseOpenStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Destination is a candidate facility site.
type Destination struct {
	ID         string     `json:"id"`
	Open       OpenStatus `json:"open"`
	Preference *int       `json:"preference,omitempty"` // -3..3
	Capacity   *float64   `json:"capacity,omitempty"`
}

// DistanceLookup is one row of the validated distance table.
type DistanceLookup struct {
	Origin      string  `json:"origin" csv:"origin"`
	Destination string  `json:"destination" csv:"destination"`
	Distance    float64 `json:"distance" csv:"distance"`
}

// DistancePair is a reachable (origin, destination) pair with the origin's
// population carried along.
type DistancePair struct {
	OriginID      string  `json:"origin"`
	DestinationID string  `json:"destination"`
	Distance      float64 `json:"distance"`
	Population    float64 `json:"population"`
}

// TotalPopulation sums origin populations.
func TotalPopulation(origins []Origin) float64 {
	var total float64
	for _, o := range origins {
		total += o.Population
	}
	return total
}

// CountOpen returns how many destinations carry the given status.
func CountOpen(dests []Destination, status OpenStatus) int {
	n := 0
	for _, d := range dests {
		if d.Open == status {
			n++
		}
	}
	return n
}
