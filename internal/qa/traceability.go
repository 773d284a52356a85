package qa

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/aestimo/internal/models"
)

// Numeric tokens that must trace back to evidence: dollar amounts,
// decimals, percentages and valuation multiples. Bare integers are left
// alone so years, list numbering and link labels never trip the rule.
var numberTokenRe = regexp.MustCompile(`\$-?\d[\d,]*(?:\.\d+)?|-?\d[\d,]*\.\d+%?|-?\d[\d,]*%|\b\d+(?:\.\d+)?x\b`)

// Stripped from the body before token extraction so URLs and link
// labels do not contribute numbers.
var (
	markdownLinkRe = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)`)
	bareURLRe      = regexp.MustCompile(`https?://\S+`)
)

// checkTraceability verifies every numeric token in the body against
// the pack facts and valuation outputs. An empty corpus traces nothing:
// when every fact is missing, any numeric claim in the draft is
// fabricated and every token is flagged.
func (g *Gate) checkTraceability(report *models.QAReport, in Input) {
	corpus := buildCorpus(in.Pack, in.Valuation)

	body := markdownLinkRe.ReplaceAllString(in.Draft.Body, "")
	body = bareURLRe.ReplaceAllString(body, "")

	seen := make(map[string]bool)
	var untraced []string
	for _, raw := range numberTokenRe.FindAllString(body, -1) {
		tok, ok := parseToken(raw)
		if !ok || seen[raw] {
			continue
		}
		seen[raw] = true
		if !g.traced(tok, corpus) {
			untraced = append(untraced, raw)
		}
	}
	if len(untraced) == 0 {
		return
	}

	sort.Strings(untraced)
	shown := untraced
	if len(shown) > 10 {
		shown = shown[:10]
	}
	report.AddError(models.QAUntracedNumber,
		fmt.Sprintf("%d numeric token(s) not traceable to pack facts or valuation outputs: %s",
			len(untraced), strings.Join(shown, ", ")))
}

type numericToken struct {
	Value    float64
	Decimals int
	Percent  bool
}

// parseToken converts a matched token to its numeric value. Returns
// false for values that carry no traceable information, such as plain
// years or zero.
func parseToken(raw string) (numericToken, bool) {
	s := raw
	tok := numericToken{}

	s = strings.TrimPrefix(s, "$")
	if strings.HasSuffix(s, "%") {
		tok.Percent = true
		s = strings.TrimSuffix(s, "%")
	}
	s = strings.TrimSuffix(s, "x")
	s = strings.ReplaceAll(s, ",", "")

	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		tok.Decimals = len(s) - dot - 1
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v == 0 {
		return tok, false
	}
	tok.Value = v
	return tok, true
}

// traced reports whether the token matches any corpus value, either
// within relative tolerance or as that value rounded to the token's
// displayed precision.
func (g *Gate) traced(tok numericToken, corpus []float64) bool {
	for _, c := range corpus {
		if g.matches(tok, c) {
			return true
		}
		// A rendered percentage may come from a stored fraction.
		if tok.Percent && math.Abs(c) <= 1.5 && g.matches(tok, c*100) {
			return true
		}
	}
	return false
}

func (g *Gate) matches(tok numericToken, c float64) bool {
	v := tok.Value
	if math.Abs(v-c) <= g.tolerance*math.Max(1, math.Abs(c)) {
		return true
	}
	if math.Abs(math.Abs(v)-math.Abs(c)) <= g.tolerance*math.Max(1, math.Abs(c)) {
		return true
	}
	if tok.Decimals > 0 {
		scale := math.Pow(10, float64(tok.Decimals))
		if math.Abs(math.Round(c*scale)/scale-v) < 1e-9 {
			return true
		}
		if math.Abs(math.Round(math.Abs(c)*scale)/scale-math.Abs(v)) < 1e-9 {
			return true
		}
	}
	return false
}

// buildCorpus collects every number reachable from the pack's facts and
// the valuation set. Fact values round-trip through JSON so live values
// and store-loaded values yield the same corpus.
func buildCorpus(pack *models.EvidencePack, valuation *models.ValuationSet) []float64 {
	var corpus []float64

	for _, key := range pack.Keys() {
		f := pack.Get(key)
		if f == nil || f.Missing {
			continue
		}
		data, err := json.Marshal(f.Value)
		if err != nil {
			continue
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			continue
		}
		corpus = collectNumbers(generic, corpus)
	}

	if valuation != nil {
		for _, hv := range valuation.Horizons {
			for _, sv := range []models.ScenarioValuation{hv.Bear, hv.Base, hv.Bull} {
				corpus = append(corpus, sv.TargetPrice)
				for _, a := range sv.Assumptions {
					corpus = append(corpus, a)
				}
			}
		}
		if grid := valuation.Sensitivity; grid != nil {
			corpus = append(corpus, grid.EPSRow...)
			corpus = append(corpus, grid.MultipleCol...)
			for _, row := range grid.Cells {
				corpus = append(corpus, row...)
			}
		}
	}
	return corpus
}

func collectNumbers(v interface{}, acc []float64) []float64 {
	switch t := v.(type) {
	case float64:
		acc = append(acc, t)
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			acc = collectNumbers(t[k], acc)
		}
	case []interface{}:
		for _, e := range t {
			acc = collectNumbers(e, acc)
		}
	case string:
		// Numeric strings inside structured facts count too, so quarter
		// EPS tables stored as strings remain traceable.
		if f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimPrefix(t, "$"), "%"), 64); err == nil {
			acc = append(acc, f)
		}
	}
	return acc
}
