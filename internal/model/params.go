package model

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// Variant selects the optimization problem.
type Variant int

// Problem variants.
const (
	MinimizeEDE Variant = iota
	MinimizeLocations
	MaximizeCoverage
	MinimizeLocationsForCoverage
)

var variantNames = map[Variant]string{
	MinimizeEDE:                  "ede",
	MinimizeLocations:            "locations",
	MaximizeCoverage:             "coverage",
	MinimizeLocationsForCoverage: "coverage-locations",
}

// ParseVariant converts a variant name (as used by the --minimize flag).
func ParseVariant(s string) (Variant, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, name := range variantNames {
		if name == s {
			return v, nil
		}
	}
	return 0, eris.Errorf("model: unknown variant %q", s)
}

func (v Variant) String() string {
	if name, ok := variantNames[v]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (v Variant) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Variant) UnmarshalText(b []byte) error {
	parsed, err := ParseVariant(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// IsCoverage reports whether the variant uses per-origin coverage decisions.
func (v Variant) IsCoverage() bool {
	return v == MaximizeCoverage || v == MinimizeLocationsForCoverage
}

// FixedLocations reports whether the variant opens an exact number of sites.
func (v Variant) FixedLocations() bool {
	return v == MinimizeEDE || v == MaximizeCoverage
}

// Params are the optimization parameters for one run.
type Params struct {
	Variant         Variant  `yaml:"variant,omitempty" json:"variant"`
	NumLocations    int      `yaml:"num_locations,omitempty" json:"num_locations,omitempty" validate:"gte=0"`
	TargetEDE       float64  `yaml:"target_ede,omitempty" json:"target_ede,omitempty" validate:"gte=0"`
	Aversion        float64  `yaml:"aversion,omitempty" json:"aversion" validate:"lte=0"`
	ScalingFactor   *float64 `yaml:"scaling_factor,omitempty" json:"scaling_factor,omitempty" validate:"omitempty,gt=0"`
	MinPercent      float64  `yaml:"min_percent,omitempty" json:"min_percent" validate:"gte=0,lte=1"`
	Radius          *float64 `yaml:"radius,omitempty" json:"radius,omitempty" validate:"omitempty,gt=0"`
	IsoRadius       float64  `yaml:"iso_radius,omitempty" json:"iso_radius,omitempty" validate:"gte=0"`
	PercentCoverage float64  `yaml:"percent_coverage,omitempty" json:"percent_coverage,omitempty" validate:"gte=0,lte=1"`
	Solver          string   `yaml:"solver,omitempty" json:"solver,omitempty" validate:"omitempty,oneof=scip gurobi"`
	TimeLimit       *float64 `yaml:"time_limit,omitempty" json:"time_limit,omitempty" validate:"omitempty,gt=0"`
	MIPGap          *float64 `yaml:"mip_gap,omitempty" json:"mip_gap,omitempty" validate:"omitempty,gte=0,lt=1"`
}

var validate = validator.New()

// Validate checks field ranges and the fields each variant requires.
func (p Params) Validate() error {
	if _, ok := variantNames[p.Variant]; !ok {
		return &InvalidParamsError{Field: "variant", Reason: "unknown variant"}
	}

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &InvalidParamsError{Field: fe.Field(), Reason: fieldReason(fe)}
		}
		return eris.Wrap(err, "model: validate params")
	}
	// omitempty also skips non-nil pointers to zero, which are invalid here.
	if p.ScalingFactor != nil && *p.ScalingFactor <= 0 {
		return &InvalidParamsError{Field: "ScalingFactor", Reason: "must be greater than 0"}
	}
	if p.Radius != nil && *p.Radius <= 0 {
		return &InvalidParamsError{Field: "Radius", Reason: "must be greater than 0"}
	}
	if p.TimeLimit != nil && *p.TimeLimit <= 0 {
		return &InvalidParamsError{Field: "TimeLimit", Reason: "must be greater than 0"}
	}

	switch p.Variant {
	case MinimizeEDE, MaximizeCoverage:
		if p.NumLocations < 1 {
			return &InvalidParamsError{Field: "NumLocations", Reason: "must be at least 1"}
		}
	case MinimizeLocations:
		if p.TargetEDE <= 0 {
			return &InvalidParamsError{Field: "TargetEDE", Reason: "must be positive"}
		}
	}

	if p.Variant.IsCoverage() && p.IsoRadius <= 0 {
		return &InvalidParamsError{Field: "IsoRadius", Reason: "must be positive"}
	}
	if p.Variant == MinimizeLocationsForCoverage && p.PercentCoverage <= 0 {
		return &InvalidParamsError{Field: "PercentCoverage", Reason: "must be in (0, 1]"}
	}
	return nil
}

func fieldReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
