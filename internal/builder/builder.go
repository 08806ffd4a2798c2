// Package builder translates origins, destinations and reachable distance
// pairs into a binary integer program for one of the four facility
// location variants.
package builder

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/efl/internal/equity"
	"github.com/sells-group/efl/internal/mip"
	"github.com/sells-group/efl/internal/model"
)

// maxLogCoefficient bounds ln(pop·exp(-κ·d)) over the Kolm-Pollak
// coefficients and the MinimizeLocations target. exp(40) is about 2.4e17,
// below SCIP's 1e20 infinity and within Gurobi's coefficient range.
const maxLogCoefficient = 40

// maxLogSpread is the widest span of ln coefficients built without a
// warning. Past it the smallest terms sit under solver tolerances.
const maxLogSpread = 2 * maxLogCoefficient

// PairKey identifies an (origin, destination) pair.
type PairKey struct {
	Origin      string
	Destination string
}

// Input is the post-radius data the model is built from. Build never
// modifies it.
type Input struct {
	Origins      []model.Origin
	Destinations []model.Destination
	Pairs        []model.DistancePair
}

// Spec is a built model together with the lookups needed to interpret a
// solution.
type Spec struct {
	Model   *mip.Model
	Variant model.Variant

	Open    map[string]mip.VarID  // x, per destination
	Assign  map[PairKey]mip.VarID // y, per pair
	Covered map[string]mip.VarID  // z, per origin (coverage variants)

	// Alpha is the scaling factor used to derive Kappa: the explicit
	// override when given, otherwise ApproximateAlpha.
	Alpha float64
	Kappa float64
	// Shift is subtracted from distances inside the exponentials to keep
	// coefficients finite. Zero unless the data required it.
	Shift float64
	// Coefficients holds pop·exp(-κ·(d-Shift)), or pop·d when κ is zero.
	// Populated for the EDE-based variants only.
	Coefficients map[PairKey]float64
	// AdjustedTarget is the right-hand side of the access constraint of
	// MinimizeLocations, on the same shifted scale as Coefficients.
	AdjustedTarget  float64
	TotalPopulation float64

	Warnings []string
}

type builder struct {
	in   Input
	p    model.Params
	spec *Spec

	destIdx   map[string]int
	originIdx map[string]int
	byOrigin  map[string][]int // pair indexes per origin
	byDest    map[string][]int // pair indexes per destination
}

// Build validates p against the data, runs the pre-solve infeasibility
// checks and returns the assembled model.
func Build(in Input, p model.Params) (*Spec, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	b, err := newBuilder(in, p)
	if err != nil {
		return nil, err
	}
	if err := b.precheck(); err != nil {
		return nil, err
	}
	if err := b.scaling(); err != nil {
		return nil, err
	}
	if !p.Variant.IsCoverage() {
		b.coefficients()
		if err := b.checkTarget(); err != nil {
			return nil, err
		}
	}
	b.variables()
	b.objective()
	b.sharedConstraints()
	b.variantConstraints()
	return b.spec, nil
}

func newBuilder(in Input, p model.Params) (*builder, error) {
	if len(in.Origins) == 0 {
		return nil, eris.New("builder: no origins")
	}
	if len(in.Destinations) == 0 {
		return nil, eris.New("builder: no destinations")
	}
	b := &builder{
		in:        in,
		p:         p,
		destIdx:   make(map[string]int, len(in.Destinations)),
		originIdx: make(map[string]int, len(in.Origins)),
		byOrigin:  make(map[string][]int, len(in.Origins)),
		byDest:    make(map[string][]int, len(in.Destinations)),
		spec: &Spec{
			Variant:         p.Variant,
			TotalPopulation: model.TotalPopulation(in.Origins),
		},
	}
	for i, d := range in.Destinations {
		if _, dup := b.destIdx[d.ID]; dup {
			return nil, eris.Errorf("builder: duplicate destination %q", d.ID)
		}
		b.destIdx[d.ID] = i
	}
	for i, o := range in.Origins {
		if _, dup := b.originIdx[o.ID]; dup {
			return nil, eris.Errorf("builder: duplicate origin %q", o.ID)
		}
		if o.Population <= 0 {
			return nil, eris.Errorf("builder: origin %q has non-positive population", o.ID)
		}
		b.originIdx[o.ID] = i
	}
	for i, pr := range in.Pairs {
		if _, ok := b.originIdx[pr.OriginID]; !ok {
			return nil, eris.Errorf("builder: pair references unknown origin %q", pr.OriginID)
		}
		if _, ok := b.destIdx[pr.DestinationID]; !ok {
			return nil, eris.Errorf("builder: pair references unknown destination %q", pr.DestinationID)
		}
		b.byOrigin[pr.OriginID] = append(b.byOrigin[pr.OriginID], i)
		b.byDest[pr.DestinationID] = append(b.byDest[pr.DestinationID], i)
	}
	return b, nil
}

func (b *builder) warnf(format string, args ...any) {
	b.spec.Warnings = append(b.spec.Warnings, fmt.Sprintf(format, args...))
}

// requiredPercentOpen returns ceil(count·minPercent). The small epsilon
// stops products like 10·0.3 = 3.0000000000000004 rounding up.
func requiredPercentOpen(count int, minPercent float64) int {
	if count == 0 || minPercent <= 0 {
		return 0
	}
	return int(math.Ceil(float64(count)*minPercent - 1e-9))
}

func (b *builder) precheck() error {
	unreachable := 0
	for _, o := range b.in.Origins {
		if len(b.byOrigin[o.ID]) == 0 {
			unreachable++
		}
	}
	if unreachable > 0 {
		return model.Infeasiblef("%d origins have no reachable destination", unreachable)
	}

	forced := model.CountOpen(b.in.Destinations, model.OpenForced)
	percent := model.CountOpen(b.in.Destinations, model.OpenPercent)
	minOpen := requiredPercentOpen(percent, b.p.MinPercent)

	if b.p.Variant.FixedLocations() {
		n := b.p.NumLocations
		if n > len(b.in.Destinations) {
			return model.Infeasiblef("num_locations %d exceeds the %d eligible destinations", n, len(b.in.Destinations))
		}
		if forced+minOpen > n {
			return model.Infeasiblef("%d forced-open plus %d minimum percent-open destinations exceed num_locations %d", forced, minOpen, n)
		}
	}

	if !b.p.Variant.IsCoverage() {
		capTotal, allCapped := 0.0, true
		for _, d := range b.in.Destinations {
			if d.Capacity == nil {
				allCapped = false
				break
			}
			capTotal += *d.Capacity
		}
		if allCapped && capTotal < b.spec.TotalPopulation {
			return model.Infeasiblef("total capacity %g is below total population %g", capTotal, b.spec.TotalPopulation)
		}
		return nil
	}

	var coverable float64
	for _, o := range b.in.Origins {
		for _, i := range b.byOrigin[o.ID] {
			if b.in.Pairs[i].Distance <= b.p.IsoRadius {
				coverable += o.Population
				break
			}
		}
	}
	switch b.p.Variant {
	case model.MinimizeLocationsForCoverage:
		need := b.spec.TotalPopulation * b.p.PercentCoverage
		if coverable < need*(1-1e-12) {
			return model.Infeasiblef("only %g of the required %g population lies within iso_radius %g", coverable, need, b.p.IsoRadius)
		}
	case model.MaximizeCoverage:
		if coverable == 0 {
			b.warnf("no origin lies within iso_radius %g of any destination", b.p.IsoRadius)
		}
	}
	return nil
}

// scaling resolves alpha and kappa. For coverage variants the values are
// informational only, so a degenerate approximation is a warning.
func (b *builder) scaling() error {
	if b.p.ScalingFactor != nil {
		b.spec.Alpha = *b.p.ScalingFactor
	} else {
		alpha, err := ApproximateAlpha(b.in)
		if err != nil {
			if b.p.Variant.IsCoverage() {
				b.warnf("scaling factor approximation failed: %v", err)
				return nil
			}
			return eris.Wrap(err, "builder: approximate scaling factor")
		}
		b.spec.Alpha = alpha
	}
	b.spec.Kappa = b.p.Aversion * b.spec.Alpha
	return nil
}

func (b *builder) coefficients() {
	kappa := b.spec.Kappa
	if kappa != 0 {
		hi, lo := math.Inf(-1), math.Inf(1)
		for _, pr := range b.in.Pairs {
			l := math.Log(pr.Population) - kappa*pr.Distance
			hi = math.Max(hi, l)
			lo = math.Min(lo, l)
		}
		if b.p.Variant == model.MinimizeLocations {
			hi = math.Max(hi, math.Log(b.spec.TotalPopulation)-kappa*b.p.TargetEDE)
		}
		if hi > maxLogCoefficient {
			b.spec.Shift = (maxLogCoefficient - hi) / kappa
			b.warnf("coefficients rescaled by exp(%g) to stay within solver numeric range", kappa*b.spec.Shift)
		}
		if hi-lo > maxLogSpread {
			b.warnf("coefficients span a factor of exp(%.0f); the solver may not distinguish the smallest", hi-lo)
		}
	}

	coefs := make(map[PairKey]float64, len(b.in.Pairs))
	for _, pr := range b.in.Pairs {
		coefs[PairKey{pr.OriginID, pr.DestinationID}] = pr.Population * equity.KappaTerm(kappa, pr.Distance, b.spec.Shift)
	}
	b.spec.Coefficients = coefs

	if b.p.Variant == model.MinimizeLocations {
		base := b.p.TargetEDE
		if kappa < 0 {
			base = math.Exp(-kappa * (b.p.TargetEDE - b.spec.Shift))
		}
		b.spec.AdjustedTarget = b.spec.TotalPopulation * base
	}
}

// checkTarget rejects a MinimizeLocations target that cannot be met even
// with every destination open.
func (b *builder) checkTarget() error {
	if b.p.Variant != model.MinimizeLocations {
		return nil
	}
	var best float64
	for _, o := range b.in.Origins {
		lowest := math.Inf(1)
		for _, i := range b.byOrigin[o.ID] {
			pr := b.in.Pairs[i]
			lowest = math.Min(lowest, b.spec.Coefficients[PairKey{pr.OriginID, pr.DestinationID}])
		}
		best += lowest
	}
	if best > b.spec.AdjustedTarget*(1+1e-9) {
		bestEDE, err := equity.KolmPollakEDEWithKappa(MinDistanceAssignment(b.in, nil), b.spec.Kappa)
		if err != nil {
			return model.Infeasiblef("target_ede %g is unreachable with every destination open", b.p.TargetEDE)
		}
		return model.Infeasiblef("target_ede %g is unreachable: best achievable is %g with every destination open", b.p.TargetEDE, bestEDE)
	}
	return nil
}

func (b *builder) variables() {
	m := mip.New("efl_" + b.p.Variant.String())
	s := b.spec
	s.Model = m
	s.Open = make(map[string]mip.VarID, len(b.in.Destinations))
	s.Assign = make(map[PairKey]mip.VarID, len(b.in.Pairs))

	for j, d := range b.in.Destinations {
		s.Open[d.ID] = m.AddBinary(fmt.Sprintf("x_%d", j))
	}
	for _, pr := range b.in.Pairs {
		i, j := b.originIdx[pr.OriginID], b.destIdx[pr.DestinationID]
		s.Assign[PairKey{pr.OriginID, pr.DestinationID}] = m.AddBinary(fmt.Sprintf("y_%d_%d", i, j))
	}
	if b.p.Variant.IsCoverage() {
		s.Covered = make(map[string]mip.VarID, len(b.in.Origins))
		for i, o := range b.in.Origins {
			s.Covered[o.ID] = m.AddBinary(fmt.Sprintf("z_%d", i))
		}
	}
}

func (b *builder) openVars() []mip.VarID {
	vars := make([]mip.VarID, len(b.in.Destinations))
	for j, d := range b.in.Destinations {
		vars[j] = b.spec.Open[d.ID]
	}
	return vars
}

func (b *builder) weightedAssignments() []mip.Term {
	terms := make([]mip.Term, 0, len(b.in.Pairs))
	for _, pr := range b.in.Pairs {
		k := PairKey{pr.OriginID, pr.DestinationID}
		terms = append(terms, mip.Term{Var: b.spec.Assign[k], Coef: b.spec.Coefficients[k]})
	}
	return terms
}

func (b *builder) coveredPopulation() []mip.Term {
	terms := make([]mip.Term, len(b.in.Origins))
	for i, o := range b.in.Origins {
		terms[i] = mip.Term{Var: b.spec.Covered[o.ID], Coef: o.Population}
	}
	return terms
}

func (b *builder) objective() {
	m := b.spec.Model
	switch b.p.Variant {
	case model.MinimizeEDE:
		m.SetObjective(mip.Minimize, b.weightedAssignments())
	case model.MaximizeCoverage:
		m.SetObjective(mip.Maximize, b.coveredPopulation())
	default:
		m.SetObjective(mip.Minimize, mip.Sum(b.openVars(), 1))
	}
}

func (b *builder) sharedConstraints() {
	m := b.spec.Model
	s := b.spec

	for _, pr := range b.in.Pairs {
		i, j := b.originIdx[pr.OriginID], b.destIdx[pr.DestinationID]
		y := s.Assign[PairKey{pr.OriginID, pr.DestinationID}]
		m.AddConstraint(fmt.Sprintf("open_%d_%d", i, j), []mip.Term{{Var: y, Coef: 1}, {Var: s.Open[pr.DestinationID], Coef: -1}}, mip.LE, 0)
	}

	if !b.p.Variant.IsCoverage() {
		for i, o := range b.in.Origins {
			m.AddConstraint(fmt.Sprintf("assign_%d", i), mip.Sum(b.assignVarsFor(o.ID), 1), mip.EQ, 1)
		}
	}

	var percentVars []mip.VarID
	for j, d := range b.in.Destinations {
		switch d.Open {
		case model.OpenForced:
			m.AddConstraint(fmt.Sprintf("forced_%d", j), []mip.Term{{Var: s.Open[d.ID], Coef: 1}}, mip.EQ, 1)
		case model.OpenPercent:
			percentVars = append(percentVars, s.Open[d.ID])
		}
	}
	if len(percentVars) > 0 {
		rhs := requiredPercentOpen(len(percentVars), b.p.MinPercent)
		m.AddConstraint("min_percent", mip.Sum(percentVars, 1), mip.GE, float64(rhs))
	}

	if b.p.Variant.IsCoverage() {
		return
	}
	for j, d := range b.in.Destinations {
		if d.Capacity == nil {
			continue
		}
		var terms []mip.Term
		for _, i := range b.byDest[d.ID] {
			pr := b.in.Pairs[i]
			terms = append(terms, mip.Term{Var: s.Assign[PairKey{pr.OriginID, pr.DestinationID}], Coef: pr.Population})
		}
		m.AddConstraint(fmt.Sprintf("capacity_%d", j), terms, mip.LE, *d.Capacity)
	}
}

func (b *builder) assignVarsFor(originID string) []mip.VarID {
	idx := b.byOrigin[originID]
	vars := make([]mip.VarID, len(idx))
	for k, i := range idx {
		pr := b.in.Pairs[i]
		vars[k] = b.spec.Assign[PairKey{pr.OriginID, pr.DestinationID}]
	}
	return vars
}

func (b *builder) variantConstraints() {
	m := b.spec.Model
	switch b.p.Variant {
	case model.MinimizeEDE:
		m.AddConstraint("num_locations", mip.Sum(b.openVars(), 1), mip.EQ, float64(b.p.NumLocations))
	case model.MinimizeLocations:
		m.AddConstraint("target_ede", b.weightedAssignments(), mip.LE, b.spec.AdjustedTarget)
	case model.MaximizeCoverage:
		m.AddConstraint("num_locations", mip.Sum(b.openVars(), 1), mip.EQ, float64(b.p.NumLocations))
		b.coverageLinkage()
	case model.MinimizeLocationsForCoverage:
		m.AddConstraint("coverage", b.coveredPopulation(), mip.GE, b.spec.TotalPopulation*b.p.PercentCoverage)
		b.coverageLinkage()
	}
}

// coverageLinkage lets y[o,d] be set only for an open d within iso_radius,
// and z[o] only when some y[o,·] is set.
func (b *builder) coverageLinkage() {
	m := b.spec.Model
	s := b.spec
	for _, pr := range b.in.Pairs {
		i, j := b.originIdx[pr.OriginID], b.destIdx[pr.DestinationID]
		m.AddConstraint(fmt.Sprintf("iso_%d_%d", i, j), []mip.Term{
			{Var: s.Assign[PairKey{pr.OriginID, pr.DestinationID}], Coef: pr.Distance},
			{Var: s.Open[pr.DestinationID], Coef: -b.p.IsoRadius},
		}, mip.LE, 0)
	}
	for i, o := range b.in.Origins {
		terms := []mip.Term{{Var: s.Covered[o.ID], Coef: 1}}
		for _, v := range b.assignVarsFor(o.ID) {
			terms = append(terms, mip.Term{Var: v, Coef: -1})
		}
		m.AddConstraint(fmt.Sprintf("covered_%d", i), terms, mip.LE, 0)
	}
}
