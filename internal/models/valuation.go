package models

// Horizon is the time frame a valuation applies to.
type Horizon string

const (
	// HorizonShort covers days to weeks (volatility band around spot)
	HorizonShort Horizon = "short"
	// HorizonMedium covers months (forward multiple method)
	HorizonMedium Horizon = "medium"
	// HorizonLong covers years (FCF multiple or simplified DCF)
	HorizonLong Horizon = "long"
)

// Scenario names one of the three assumption sets.
type Scenario string

const (
	ScenarioBear Scenario = "bear"
	ScenarioBase Scenario = "base"
	ScenarioBull Scenario = "bull"
)

// Scenarios lists the scenarios in their canonical (ascending) order.
var Scenarios = []Scenario{ScenarioBear, ScenarioBase, ScenarioBull}

// ScenarioValuation is one scenario's target price for one horizon,
// reproducible purely from Assumptions plus evidence pack facts.
type ScenarioValuation struct {
	Scenario    Scenario           `json:"scenario"`
	Horizon     Horizon            `json:"horizon"`
	TargetPrice float64            `json:"target_price"` // full precision, rounded only at render
	Assumptions map[string]float64 `json:"assumptions"`
	Method      string             `json:"method"` // volatility-band, forward-multiple, fcf-multiple, dcf
}

// HorizonValuation groups the three scenarios for one horizon.
type HorizonValuation struct {
	Horizon  Horizon           `json:"horizon"`
	Bear     ScenarioValuation `json:"bear"`
	Base     ScenarioValuation `json:"base"`
	Bull     ScenarioValuation `json:"bull"`
	Degraded bool              `json:"degraded,omitempty"` // sector-default or price-anchored fallback in use
}

// Ordered reports whether the monotonicity invariant holds.
func (h *HorizonValuation) Ordered() bool {
	return h.Bear.TargetPrice <= h.Base.TargetPrice && h.Base.TargetPrice <= h.Bull.TargetPrice
}

// ValuationSet is the engine's full output for one article: up to three
// horizons plus the sensitivity grid. A horizon absent from Horizons
// could not be computed (insufficient evidence) and is listed in Omitted.
type ValuationSet struct {
	Entity      string                        `json:"entity"`
	AsOfDate    string                        `json:"as_of_date"`
	Horizons    map[Horizon]*HorizonValuation `json:"horizons"`
	Omitted     map[Horizon]string            `json:"omitted,omitempty"` // horizon -> reason
	Sensitivity *SensitivityGrid              `json:"sensitivity,omitempty"`
}

// Horizon returns the valuation for h, or nil when omitted.
func (v *ValuationSet) Horizon(h Horizon) *HorizonValuation {
	return v.Horizons[h]
}

// Degraded reports whether any computed horizon used a fallback input.
func (v *ValuationSet) Degraded() bool {
	for _, h := range v.Horizons {
		if h.Degraded {
			return true
		}
	}
	return false
}

// SensitivityGrid is the 2-D matrix of medium-term target prices indexed
// by (EPS row, multiple column): Cells[i][j] = EPSRow[i] * MultipleCol[j].
// Axes derive deterministically from the base scenario and the spread
// policy; there is no randomness anywhere in the grid.
type SensitivityGrid struct {
	EPSRow      []float64   `json:"eps_row"`
	MultipleCol []float64   `json:"multiple_col"`
	Cells       [][]float64 `json:"cells"`
}

// NewSensitivityGrid builds the grid from its axes.
func NewSensitivityGrid(epsRow, multipleCol []float64) *SensitivityGrid {
	cells := make([][]float64, len(epsRow))
	for i, eps := range epsRow {
		row := make([]float64, len(multipleCol))
		for j, mult := range multipleCol {
			row[j] = eps * mult
		}
		cells[i] = row
	}
	return &SensitivityGrid{
		EPSRow:      epsRow,
		MultipleCol: multipleCol,
		Cells:       cells,
	}
}

// Dims returns the grid dimensions (rows, cols).
func (g *SensitivityGrid) Dims() (int, int) {
	return len(g.EPSRow), len(g.MultipleCol)
}
