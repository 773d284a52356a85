// Package qa validates rendered drafts against their evidence packs
// before anything reaches the publication coordinator. Every rule runs
// on every draft regardless of earlier failures, and the resulting
// report is deterministic: identical inputs produce byte-identical
// reports.
package qa

import (
	"strings"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
)

// Defaults applied when config values are unset.
const (
	defaultMaxSoftPlaceholders = 50
	defaultMinSourceLinks      = 6
	defaultNumericTolerance    = 0.005
)

// Input carries everything the gate inspects for one article. Valuation
// and ValuationErr are mutually exclusive; both nil means the article
// kind carries no valuation section.
type Input struct {
	Spec      *models.ArticleSpec
	Draft     *models.Draft
	Pack      *models.EvidencePack
	Valuation *models.ValuationSet

	// ValuationErr is the engine's fatal error, when it produced none.
	ValuationErr error

	// ChartAttached reports whether a rendered scenario chart was
	// embedded in the draft body.
	ChartAttached bool

	// PDFValid is nil when no PDF artifact was generated.
	PDFValid *bool

	// Artifacts maps artifact kind to storage key, copied into the report.
	Artifacts map[string]string
}

// Gate evaluates drafts. Construct once per run; Validate is pure with
// respect to its input.
type Gate struct {
	maxSoftPlaceholders int
	minSourceLinks      int
	tolerance           float64
	disclaimer          string // canonical text, whitespace-normalized
	logger              arbor.ILogger
}

// NewGate builds a gate from config and the canonical disclaimer text.
// An empty disclaimer downgrades the disclaimer rule to a presence check.
func NewGate(cfg common.QAConfig, disclaimer string, logger arbor.ILogger) *Gate {
	g := &Gate{
		maxSoftPlaceholders: cfg.MaxSoftPlaceholders,
		minSourceLinks:      cfg.MinSourceLinks,
		tolerance:           cfg.NumericTolerance,
		disclaimer:          normalizeText(disclaimer),
		logger:              logger,
	}
	if g.maxSoftPlaceholders <= 0 {
		g.maxSoftPlaceholders = defaultMaxSoftPlaceholders
	}
	if g.minSourceLinks <= 0 {
		g.minSourceLinks = defaultMinSourceLinks
	}
	if g.tolerance <= 0 {
		g.tolerance = defaultNumericTolerance
	}
	return g
}

// Validate runs every rule against the draft and returns the report.
// Rules execute in a fixed order so issue ordering, and therefore the
// serialized report, is stable across runs.
func (g *Gate) Validate(in Input) *models.QAReport {
	report := models.NewQAReport(in.Pack.ArticleID, in.Pack.AsOfDate)
	report.PackHash = in.Pack.ContentHash
	for k, v := range in.Artifacts {
		report.Artifacts[k] = v
	}

	body := in.Draft.Body

	g.checkPlaceholders(report, body)
	g.checkSections(report, in.Spec, body)
	g.checkDisclaimer(report, body)
	g.checkValuation(report, in)
	g.checkTraceability(report, in)
	g.checkCardinality(report, in.Spec, body)
	g.checkSourceLinks(report, body)
	g.checkSnapshot(report, in.Spec, body)
	g.checkTheme(report, in)
	g.checkDegradation(report, in)
	g.checkYearConsistency(report, in)
	g.checkDataTimestamp(report, in)
	g.checkAssets(report, in)

	if g.logger != nil {
		g.logger.Info().
			Str("article", report.ArticleID).
			Str("status", string(report.Status)).
			Int("errors", len(report.Errors)).
			Int("warnings", len(report.Warnings)).
			Msg("qa gate evaluated")
	}
	return report
}

// normalizeText collapses all whitespace runs to single spaces so text
// comparisons ignore wrapping differences.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
