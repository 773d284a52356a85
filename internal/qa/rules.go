package qa

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/scoring"
)

var (
	hardPlaceholderRe = regexp.MustCompile(`\b(TBD|TODO|FIXME|XXX|PLACEHOLDER)\b|\[INSERT[^\]]*\]|\blorem ipsum\b`)
	softPlaceholderRe = regexp.MustCompile(`(?m)(^|[\s|(])--([\s|,.):]|$)`)
	sourceLinkRe      = regexp.MustCompile(`\[\d+\]\((https?://[^\s)]+)\)`)
	dataAsOfRe        = regexp.MustCompile(`(?i)data as of (\d{4}-\d{2}-\d{2})`)
	yearRe            = regexp.MustCompile(`\b(20\d{2})\b`)
	scenarioHeaderRe  = regexp.MustCompile(`(?mi)^\|\s*scenario\s*\|`)
)

// Press-release distribution domains. More than one of these among the
// source links means the piece leans on company PR instead of reporting.
var wireDomains = []string{
	"prnewswire.com",
	"businesswire.com",
	"globenewswire.com",
	"accesswire.com",
	"prweb.com",
}

func (g *Gate) checkPlaceholders(report *models.QAReport, body string) {
	if hits := hardPlaceholderRe.FindAllString(body, -1); len(hits) > 0 {
		unique := uniqueSorted(hits)
		report.AddError(models.QAPlaceholderText,
			fmt.Sprintf("%d placeholder marker(s) in body: %s", len(hits), strings.Join(unique, ", ")))
	}

	soft := len(softPlaceholderRe.FindAllString(body, -1))
	if soft > g.maxSoftPlaceholders {
		report.AddError(models.QASoftPlaceholder,
			fmt.Sprintf("%d missing-value markers (\"--\") exceed the limit of %d", soft, g.maxSoftPlaceholders))
	} else if soft > 0 {
		report.AddWarning(models.QASoftPlaceholder,
			fmt.Sprintf("%d missing-value markers (\"--\") in body", soft))
	}
}

func (g *Gate) checkSections(report *models.QAReport, spec *models.ArticleSpec, body string) {
	found := markdownHeadings(body)
	for _, required := range spec.RequiredSections {
		want := strings.ToLower(required)
		present := false
		for _, h := range found {
			if strings.Contains(strings.ToLower(h.Text), want) {
				present = true
				break
			}
		}
		if !present {
			report.AddError(models.QAMissingSection,
				fmt.Sprintf("required section %q not found", required))
		}
	}
}

func (g *Gate) checkDisclaimer(report *models.QAReport, body string) {
	section := findSection(body, "disclaimer")
	if section == "" {
		report.AddError(models.QAMissingDisclaimer, "no disclaimer section in body")
		return
	}
	if g.disclaimer == "" {
		return
	}
	if normalizeText(section) != g.disclaimer {
		report.AddError(models.QAMissingDisclaimer,
			"disclaimer section does not match the canonical disclaimer text")
	}
}

func (g *Gate) checkValuation(report *models.QAReport, in Input) {
	if in.ValuationErr != nil {
		report.AddError(models.QAValuationFailure, in.ValuationErr.Error())
		return
	}
	if in.Valuation == nil {
		if in.Spec.Kind == models.ArticleDeepDive {
			report.AddError(models.QAValuationFailure, "no valuation produced for deep dive")
		}
		return
	}

	for _, h := range []models.Horizon{models.HorizonShort, models.HorizonMedium, models.HorizonLong} {
		hv := in.Valuation.Horizon(h)
		if hv == nil {
			continue
		}
		if !hv.Ordered() {
			report.AddError(models.QAScenarioOrdering,
				fmt.Sprintf("%s horizon violates bear <= base <= bull: %.4f / %.4f / %.4f",
					h, hv.Bear.TargetPrice, hv.Base.TargetPrice, hv.Bull.TargetPrice))
		}
	}

	if in.Spec.Kind == models.ArticleDeepDive {
		lower := strings.ToLower(in.Draft.Body)
		for _, scenario := range []string{"bear", "base", "bull"} {
			if !strings.Contains(lower, scenario) {
				report.AddError(models.QAScenarioOrdering,
					fmt.Sprintf("body does not present the %s case", scenario))
			}
		}
	}
}

func (g *Gate) checkCardinality(report *models.QAReport, spec *models.ArticleSpec, body string) {
	c := spec.Cardinality

	check := func(name string, have, want int) {
		if want > 0 && have < want {
			report.AddError(models.QACardinality,
				fmt.Sprintf("%s: have %d, need at least %d", name, have, want))
		}
	}

	if c.Events > 0 {
		section := findSection(body, "event")
		if section == "" {
			section = body
		}
		check("events", countSubHeadings(section), c.Events)
	}
	check("quick reads", countBullets(findSection(body, "quick read")), c.QuickReads)
	check("quick hits", countBullets(findSection(body, "quick hit")), c.QuickHits)
	check("catalysts", countBullets(findSection(body, "catalyst")), c.Catalysts)
	check("quarters", countQuarterLabels(body), c.Quarters)
	check("competitor rows", countTableRows(findSection(body, "competit")), c.Competitors)

	if c.RepStocks > 0 {
		section := findSection(body, "representative")
		if section == "" {
			section = findSection(body, "stocks")
		}
		have := countTickerRefs(section)
		if rows := countTableRows(section); rows > have {
			have = rows
		}
		check("representative stocks", have, c.RepStocks)
	}

	if c.SensitivityRows > 0 || c.SensitivityCols > 0 {
		g.checkSensitivityTable(report, body, c.SensitivityRows, c.SensitivityCols)
	}
}

var (
	sensitivityRowRe = regexp.MustCompile(`(?m)^\|\s*\$`)
	multipleColRe    = regexp.MustCompile(`\d+(?:\.\d+)?x`)
)

func (g *Gate) checkSensitivityTable(report *models.QAReport, body string, wantRows, wantCols int) {
	section := findSection(body, "sensitivit")
	if section == "" {
		report.AddError(models.QASensitivityShape, "no sensitivity table found")
		return
	}

	rows := len(sensitivityRowRe.FindAllString(section, -1))

	cols := 0
	for _, line := range strings.Split(section, "\n") {
		if n := len(multipleColRe.FindAllString(line, -1)); n > cols {
			cols = n
		}
	}

	if rows < wantRows || cols < wantCols {
		report.AddError(models.QASensitivityShape,
			fmt.Sprintf("sensitivity table is %dx%d, need %dx%d", rows, cols, wantRows, wantCols))
	}
}

func (g *Gate) checkSourceLinks(report *models.QAReport, body string) {
	urls := make(map[string]bool)
	wires := make(map[string]bool)
	for _, m := range sourceLinkRe.FindAllStringSubmatch(body, -1) {
		url := m[1]
		urls[url] = true
		for _, domain := range wireDomains {
			if strings.Contains(url, domain) {
				wires[url] = true
			}
		}
	}

	if len(urls) < g.minSourceLinks {
		report.AddError(models.QAInsufficientSources,
			fmt.Sprintf("%d unique source link(s), need at least %d", len(urls), g.minSourceLinks))
	}
	if len(wires) > 1 {
		report.AddWarning(models.QASingleWireSource,
			fmt.Sprintf("%d press-wire links; at most one should remain after sourcing", len(wires)))
	}
}

// checkSnapshot flags a daily brief whose market snapshot shows four or
// more flat 0.00% readings, the signature of stale or unfetched quotes.
func (g *Gate) checkSnapshot(report *models.QAReport, spec *models.ArticleSpec, body string) {
	if spec.Kind != models.ArticleDailyBrief {
		return
	}
	if n := strings.Count(body, "0.00%"); n >= 4 {
		report.AddError(models.QAStaleSnapshot,
			fmt.Sprintf("%d flat 0.00%% readings suggest a stale market snapshot", n))
	}
}

// checkTheme verifies a trend piece actually discusses the theme its
// slug claims rather than drifting to whichever topic dominated the news.
func (g *Gate) checkTheme(report *models.QAReport, in Input) {
	if in.Spec.Kind != models.ArticleThemeTrend || in.Spec.Entity == "" {
		return
	}
	text := in.Draft.Title + " " + in.Draft.Body
	own := scoring.ThemeKeywordHits(in.Spec.Entity, text)
	bestID, bestHits := scoring.ClassifyText(text)
	if bestID != "" && bestID != in.Spec.Entity && bestHits >= 3 && bestHits > own {
		report.AddError(models.QAThemeMismatch,
			fmt.Sprintf("body reads as theme %q (%d keyword hits) but the article is %q (%d hits)",
				bestID, bestHits, in.Spec.Entity, own))
	}
}

func (g *Gate) checkDegradation(report *models.QAReport, in Input) {
	if in.Valuation != nil && in.Valuation.Degraded() {
		var degraded []string
		for _, h := range []models.Horizon{models.HorizonShort, models.HorizonMedium, models.HorizonLong} {
			if hv := in.Valuation.Horizon(h); hv != nil && hv.Degraded {
				degraded = append(degraded, string(h))
			}
		}
		report.AddWarning(models.QADegradedValuation,
			fmt.Sprintf("fallback inputs used for horizon(s): %s", strings.Join(degraded, ", ")))
	}

	for _, key := range in.Pack.MissingKeys() {
		report.AddWarning(models.QAMissingFact,
			fmt.Sprintf("required fact %q could not be resolved", key))
	}

	var stale []string
	for _, key := range in.Pack.Keys() {
		if f := in.Pack.Get(key); f != nil && f.Stale {
			stale = append(stale, key)
		}
	}
	if len(stale) > 0 {
		report.AddWarning(models.QAStaleFacts,
			fmt.Sprintf("stale cached values used for: %s", strings.Join(stale, ", ")))
	}
}

// checkYearConsistency warns when some other year is mentioned more
// often than the run's own year, which usually means the model leaned on
// training data instead of the pack.
func (g *Gate) checkYearConsistency(report *models.QAReport, in Input) {
	target := ""
	if len(in.Pack.AsOfDate) >= 4 {
		target = in.Pack.AsOfDate[:4]
	}
	if target == "" {
		return
	}

	counts := make(map[string]int)
	for _, m := range yearRe.FindAllString(in.Draft.Body, -1) {
		counts[m]++
	}

	worstYear := ""
	worstCount := 0
	for year, n := range counts {
		if year == target {
			continue
		}
		if n > worstCount || (n == worstCount && year < worstYear) {
			worstYear = year
			worstCount = n
		}
	}
	if worstYear != "" && worstCount >= 3 && worstCount > counts[target] {
		report.AddWarning(models.QAYearConsistency,
			fmt.Sprintf("year %s appears %d times vs %d for %s", worstYear, worstCount, counts[target], target))
	}
}

func (g *Gate) checkDataTimestamp(report *models.QAReport, in Input) {
	if in.Spec.Kind == models.ArticleDailyBrief {
		return
	}
	m := dataAsOfRe.FindStringSubmatch(in.Draft.Body)
	if m == nil {
		report.AddWarning(models.QADataTimestamp, "no \"data as of\" timestamp in body")
		return
	}
	if m[1] != in.Pack.AsOfDate {
		report.AddWarning(models.QADataTimestamp,
			fmt.Sprintf("body says data as of %s but the pack is dated %s", m[1], in.Pack.AsOfDate))
	}
}

func (g *Gate) checkAssets(report *models.QAReport, in Input) {
	if in.Spec.Kind == models.ArticleDeepDive {
		switch {
		case in.ChartAttached:
		case scenarioHeaderRe.MatchString(in.Draft.Body):
			report.AddWarning(models.QAChartFallback, "scenario chart unavailable; fallback table in use")
		default:
			report.AddError(models.QAMissingAsset, "neither scenario chart nor fallback table present")
		}
	}

	if in.PDFValid != nil && !*in.PDFValid {
		report.AddWarning(models.QAInvalidArtifact, "generated PDF failed validation")
	}
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
