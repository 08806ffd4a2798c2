// Package equity computes the Kolm-Pollak equally-distributed equivalent
// (EDE) distance and its supporting statistics for an assignment of
// origins to destinations.
package equity

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"

	"github.com/sells-group/efl/internal/model"
)

// ScalingFactor returns alpha = Σ(pop·d) / Σ(pop·d²). Alpha converts an
// aversion parameter into the exponent kappa used by KolmPollakEDE and does
// not change when every population is multiplied by the same constant.
func ScalingFactor(rows []model.AssignmentRecord) (float64, error) {
	if len(rows) == 0 {
		return 0, eris.New("equity: scaling factor of empty assignment")
	}
	var num, den float64
	for _, r := range rows {
		num += r.Population * r.Distance
		den += r.Population * r.Distance * r.Distance
	}
	if den == 0 || math.IsNaN(den) {
		return 0, model.ErrDegenerateDistances
	}
	alpha := num / den
	if math.IsInf(alpha, 0) || math.IsNaN(alpha) {
		return 0, model.ErrDegenerateDistances
	}
	return alpha, nil
}

// MeanDistance returns the population-weighted mean distance.
func MeanDistance(rows []model.AssignmentRecord) (float64, error) {
	var num, pop float64
	for _, r := range rows {
		num += r.Population * r.Distance
		pop += r.Population
	}
	if pop <= 0 {
		return 0, eris.New("equity: mean distance needs positive total population")
	}
	return num / pop, nil
}

// KolmPollakEDE returns the EDE for the given aversion (conventionally <= 0).
// An aversion of zero yields the mean distance exactly.
func KolmPollakEDE(rows []model.AssignmentRecord, aversion float64) (float64, error) {
	if aversion == 0 {
		return MeanDistance(rows)
	}
	alpha, err := ScalingFactor(rows)
	if err != nil {
		return 0, err
	}
	return KolmPollakEDEWithKappa(rows, alpha*aversion)
}

// KolmPollakEDEWithKappa evaluates
//
//	-(1/κ) · ln( (1/P) · Σ pop·exp(-κ·d) )
//
// in log space, so large |κ·d| cannot overflow the exponential.
func KolmPollakEDEWithKappa(rows []model.AssignmentRecord, kappa float64) (float64, error) {
	if kappa == 0 {
		return MeanDistance(rows)
	}
	if len(rows) == 0 {
		return 0, eris.New("equity: EDE of empty assignment")
	}
	terms := make([]float64, 0, len(rows))
	var total float64
	for _, r := range rows {
		if r.Population <= 0 {
			continue
		}
		terms = append(terms, math.Log(r.Population)-kappa*r.Distance)
		total += r.Population
	}
	if total <= 0 {
		return 0, eris.New("equity: EDE needs positive total population")
	}
	lse := floats.LogSumExp(terms)
	ede := -(lse - math.Log(total)) / kappa
	if math.IsNaN(ede) || math.IsInf(ede, 0) {
		return 0, model.ErrDegenerateDistances
	}
	return ede, nil
}

// KappaTerm returns the per-unit-population coefficient exp(-κ·(d-shift)),
// or d when κ is zero. Shift keeps the exponent in range for large κ·d.
func KappaTerm(kappa, distance, shift float64) float64 {
	if kappa == 0 {
		return distance
	}
	return math.Exp(-kappa * (distance - shift))
}
