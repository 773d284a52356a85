// Package valuation derives Bear/Base/Bull fair-value estimates from a
// sealed evidence pack: a volatility band for the short horizon, a
// forward-multiple method for the medium horizon, and an FCF multiple or
// simplified DCF for the long horizon, plus the medium-term sensitivity
// grid. Everything is a pure function of pack facts and configuration;
// a horizon whose facts are missing is omitted with a reason, never
// guessed.
package valuation

import (
	"errors"
	"fmt"
	"math"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
)

// Price-anchored fallback factors when no forward EPS is available.
const (
	priceAnchorBear = 0.8
	priceAnchorBull = 1.25
)

// InsufficientEvidenceError reports why one horizon could not be valued.
// The caller omits that horizon and surfaces the reason; it never
// substitutes a number.
type InsufficientEvidenceError struct {
	Horizon models.Horizon
	Reason  string
}

func (e *InsufficientEvidenceError) Error() string {
	return fmt.Sprintf("insufficient evidence for %s horizon: %s", e.Horizon, e.Reason)
}

// InconsistencyError is the fatal failure when a horizon's scenario
// prices lose their Bear <= Base <= Bull ordering. Never silently
// corrected.
type InconsistencyError struct {
	Horizon models.Horizon
	Bear    float64
	Base    float64
	Bull    float64
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("valuation inconsistency: %s horizon not ordered (bear %.4f, base %.4f, bull %.4f)",
		e.Horizon, e.Bear, e.Base, e.Bull)
}

// Engine values evidence packs under a fixed scenario configuration.
type Engine struct {
	config common.ValuationConfig
}

// New creates a valuation engine.
func New(config common.ValuationConfig) *Engine {
	if config.ShortTermWindow < 2 {
		config.ShortTermWindow = 20
	}
	if config.SensitivitySteps < 2 {
		config.SensitivitySteps = 5
	}
	if config.DCFYears < 1 {
		config.DCFYears = 5
	}
	return &Engine{config: config}
}

// Value computes every horizon it has evidence for. Horizons with
// missing facts land in Omitted with their reason; a broken scenario
// ordering is fatal. Full precision is kept throughout, rounding is the
// renderer's job.
func (e *Engine) Value(pack *models.EvidencePack) (*models.ValuationSet, error) {
	if pack == nil {
		return nil, fmt.Errorf("nil evidence pack")
	}

	set := &models.ValuationSet{
		Entity:   pack.Entity,
		AsOfDate: pack.AsOfDate,
		Horizons: make(map[models.Horizon]*models.HorizonValuation),
		Omitted:  make(map[models.Horizon]string),
	}

	if hv, err := e.shortTerm(pack); err != nil {
		set.Omitted[models.HorizonShort] = omissionReason(err)
	} else {
		set.Horizons[models.HorizonShort] = hv
	}

	if hv, grid, err := e.mediumTerm(pack); err != nil {
		set.Omitted[models.HorizonMedium] = omissionReason(err)
	} else {
		set.Horizons[models.HorizonMedium] = hv
		set.Sensitivity = grid
	}

	if hv, err := e.longTerm(pack); err != nil {
		set.Omitted[models.HorizonLong] = omissionReason(err)
	} else {
		set.Horizons[models.HorizonLong] = hv
	}

	for _, hv := range set.Horizons {
		if !hv.Ordered() {
			return nil, &InconsistencyError{
				Horizon: hv.Horizon,
				Bear:    hv.Bear.TargetPrice,
				Base:    hv.Base.TargetPrice,
				Bull:    hv.Bull.TargetPrice,
			}
		}
	}
	if len(set.Omitted) == 0 {
		set.Omitted = nil
	}
	return set, nil
}

// shortTerm puts a volatility band around the current price: trailing
// daily log-return stddev scaled to the window horizon, k sigmas wide.
func (e *Engine) shortTerm(pack *models.EvidencePack) (*models.HorizonValuation, error) {
	price, ok := pack.Float("current_price")
	if !ok || price <= 0 {
		return nil, insufficient(models.HorizonShort, "current_price fact missing")
	}
	var bars []models.PriceBar
	if fact := pack.Get("price_history"); fact == nil || fact.Decode(&bars) != nil {
		return nil, insufficient(models.HorizonShort, "price_history fact missing")
	}

	window := e.config.ShortTermWindow
	closes := closingPrices(bars)
	if len(closes) < window+1 {
		return nil, insufficient(models.HorizonShort,
			fmt.Sprintf("volatility window needs %d closes, have %d", window+1, len(closes)))
	}

	returns := logReturns(closes[len(closes)-(window+1):])
	sigma := stddev(returns)
	band := e.config.ShortTermSigmas * sigma * math.Sqrt(float64(window))

	assumptions := map[string]float64{
		"sigma_daily": sigma,
		"window":      float64(window),
		"band_sigmas": e.config.ShortTermSigmas,
		"band_pct":    band,
	}
	bear := price * (1 - band)
	if bear < 0 {
		bear = 0
	}
	return &models.HorizonValuation{
		Horizon: models.HorizonShort,
		Bear:    scenario(models.HorizonShort, models.ScenarioBear, "volatility-band", bear, assumptions),
		Base:    scenario(models.HorizonShort, models.ScenarioBase, "volatility-band", price, assumptions),
		Bull:    scenario(models.HorizonShort, models.ScenarioBull, "volatility-band", price*(1+band), assumptions),
	}, nil
}

// mediumTerm is the forward-multiple method: NTM EPS times a scenario
// multiple. No usable forward P/E degrades to the sector-default
// multiple; no usable EPS degrades further to a price-anchored band.
// The sensitivity grid spans the EPS and multiple axes around base.
func (e *Engine) mediumTerm(pack *models.EvidencePack) (*models.HorizonValuation, *models.SensitivityGrid, error) {
	price, hasPrice := pack.Float("current_price")
	eps, hasEPS := pack.Float("ntm_eps")
	if hasEPS && eps <= 0 {
		// A negative estimate cannot anchor a multiple method.
		hasEPS = false
	}

	if !hasEPS {
		if !hasPrice || price <= 0 {
			return nil, nil, insufficient(models.HorizonMedium, "neither forward EPS nor current price available")
		}
		hv := &models.HorizonValuation{
			Horizon:  models.HorizonMedium,
			Degraded: true,
			Bear: scenario(models.HorizonMedium, models.ScenarioBear, "price-anchored",
				price*priceAnchorBear, map[string]float64{"price": price, "price_factor": priceAnchorBear}),
			Base: scenario(models.HorizonMedium, models.ScenarioBase, "price-anchored",
				price, map[string]float64{"price": price, "price_factor": 1.0}),
			Bull: scenario(models.HorizonMedium, models.ScenarioBull, "price-anchored",
				price*priceAnchorBull, map[string]float64{"price": price, "price_factor": priceAnchorBull}),
		}
		return hv, nil, nil
	}

	multiple, degraded := e.baseMultiple(pack)
	bearMultiple := multiple * e.config.BearMultipleRatio
	bullMultiple := multiple * e.config.BullMultipleRatio

	assume := func(m float64) map[string]float64 {
		return map[string]float64{"ntm_eps": eps, "multiple": m}
	}
	hv := &models.HorizonValuation{
		Horizon:  models.HorizonMedium,
		Degraded: degraded,
		Bear:     scenario(models.HorizonMedium, models.ScenarioBear, "forward-multiple", eps*bearMultiple, assume(bearMultiple)),
		Base:     scenario(models.HorizonMedium, models.ScenarioBase, "forward-multiple", eps*multiple, assume(multiple)),
		Bull:     scenario(models.HorizonMedium, models.ScenarioBull, "forward-multiple", eps*bullMultiple, assume(bullMultiple)),
	}
	return hv, e.sensitivityGrid(eps, multiple), nil
}

// baseMultiple returns the forward P/E from the pack, or the configured
// sector default. The second return reports whether a fallback was used.
func (e *Engine) baseMultiple(pack *models.EvidencePack) (float64, bool) {
	if m, ok := pack.Float("forward_pe"); ok && m > 0 {
		return m, false
	}
	if sector, ok := pack.Get("sector").String(); ok {
		if m, found := e.config.SectorMultiples[sector]; found && m > 0 {
			return m, true
		}
	}
	return e.config.DefaultMultiple, true
}

// longTerm values on FCF per share times a scenario multiple, falling
// back to a simplified per-share DCF off forward EPS when no positive
// FCF fact is available.
func (e *Engine) longTerm(pack *models.EvidencePack) (*models.HorizonValuation, error) {
	if fcf, ok := pack.Float("fcf_per_share"); ok && fcf > 0 {
		m := e.config.FCFMultiples
		assume := func(multiple float64) map[string]float64 {
			return map[string]float64{"fcf_per_share": fcf, "fcf_multiple": multiple}
		}
		return &models.HorizonValuation{
			Horizon: models.HorizonLong,
			Bear:    scenario(models.HorizonLong, models.ScenarioBear, "fcf-multiple", fcf*m.Bear, assume(m.Bear)),
			Base:    scenario(models.HorizonLong, models.ScenarioBase, "fcf-multiple", fcf*m.Base, assume(m.Base)),
			Bull:    scenario(models.HorizonLong, models.ScenarioBull, "fcf-multiple", fcf*m.Bull, assume(m.Bull)),
		}, nil
	}

	eps, ok := pack.Float("ntm_eps")
	if !ok || eps <= 0 {
		return nil, insufficient(models.HorizonLong, "neither positive FCF per share nor forward EPS available")
	}

	years := e.config.DCFYears
	terminal := e.config.DefaultMultiple
	dcf := func(s models.Scenario, growth, discount float64) models.ScenarioValuation {
		target := dcfValue(eps, growth, discount, years, terminal)
		return scenario(models.HorizonLong, s, "dcf", target, map[string]float64{
			"eps":               eps,
			"growth":            growth,
			"discount":          discount,
			"years":             float64(years),
			"terminal_multiple": terminal,
		})
	}
	return &models.HorizonValuation{
		Horizon: models.HorizonLong,
		Bear:    dcf(models.ScenarioBear, e.config.DCFGrowth.Bear, e.config.DCFDiscount.Bear),
		Base:    dcf(models.ScenarioBase, e.config.DCFGrowth.Base, e.config.DCFDiscount.Base),
		Bull:    dcf(models.ScenarioBull, e.config.DCFGrowth.Bull, e.config.DCFDiscount.Bull),
	}, nil
}

// sensitivityGrid spans both axes across the configured spread around
// the base scenario. Cells multiply out deterministically; nothing in
// the grid is sampled.
func (e *Engine) sensitivityGrid(eps, multiple float64) *models.SensitivityGrid {
	steps := e.config.SensitivitySteps
	spread := e.config.SensitivitySpread

	epsRow := make([]float64, steps)
	multipleCol := make([]float64, steps)
	for i := 0; i < steps; i++ {
		factor := 1 - spread + 2*spread*float64(i)/float64(steps-1)
		epsRow[i] = eps * factor
		multipleCol[i] = multiple * factor
	}
	return models.NewSensitivityGrid(epsRow, multipleCol)
}

func scenario(h models.Horizon, s models.Scenario, method string, target float64, assumptions map[string]float64) models.ScenarioValuation {
	return models.ScenarioValuation{
		Scenario:    s,
		Horizon:     h,
		TargetPrice: target,
		Assumptions: assumptions,
		Method:      method,
	}
}

func insufficient(h models.Horizon, reason string) error {
	return &InsufficientEvidenceError{Horizon: h, Reason: reason}
}

func omissionReason(err error) string {
	var ie *InsufficientEvidenceError
	if errors.As(err, &ie) {
		return ie.Reason
	}
	return err.Error()
}
