package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/aestimo/internal/models"
)

// systemPrompt is the fixed writing contract. The model only ever sees
// numbers the evidence pack and valuation engine account for, and the QA
// gate re-validates everything it emits.
const systemPrompt = `You are a financial writer producing a daily research article.

Rules, all of them hard requirements:
- Use ONLY the numeric values provided in the evidence and valuation sections. Never invent, estimate or recall a number from memory.
- If a value is listed as missing or unavailable, write "--" in its place. Never substitute a guess.
- Output YAML front matter between --- fences with at least a "title" field, then the article body in markdown.
- Use "## " headings exactly matching the required section names given.
- Cite sources as numbered markdown links: [1](https://...).
- Do not include placeholder text such as TBD, TODO or FIXME.
- Prices are shown with two decimals; percentages with two decimals and a % sign.`

// PromptInput bundles what one article's prompt is assembled from.
type PromptInput struct {
	Spec      *models.ArticleSpec
	Pack      *models.EvidencePack
	Valuation *models.ValuationSet
	ChartURL  string // optional hosted chart image
}

// BuildPrompt assembles the renderer conversation. Every numeric datum in
// the user message traces back to a pack fact or a valuation output.
func BuildPrompt(in PromptInput) ([]byte, string, error) {
	digest, err := packDigest(in.Pack)
	if err != nil {
		return nil, "", fmt.Errorf("failed to digest evidence pack: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write the %q article for %s.\n\n", in.Spec.Kind, in.Pack.AsOfDate)
	if in.Pack.Entity != "" {
		fmt.Fprintf(&b, "Subject: %s\n\n", in.Pack.Entity)
	}

	b.WriteString("Required sections, in order:\n")
	for _, section := range in.Spec.RequiredSections {
		fmt.Fprintf(&b, "- %s\n", section)
	}
	b.WriteString("\n")

	writeCardinality(&b, in.Spec.Cardinality)

	b.WriteString("Evidence (JSON, key -> fact):\n```json\n")
	b.Write(digest)
	b.WriteString("\n```\n\n")

	if in.Valuation != nil {
		writeValuation(&b, in.Valuation)
	}

	if in.ChartURL != "" {
		fmt.Fprintf(&b, "Embed the valuation chart image: ![Valuation scenarios](%s)\n\n", in.ChartURL)
	}

	b.WriteString("Render the article now.")
	return digest, b.String(), nil
}

// SystemPrompt returns the fixed writing contract.
func SystemPrompt() string {
	return systemPrompt
}

// packDigest serializes the pack's facts in sorted key order so the same
// pack always produces the same prompt bytes.
func packDigest(pack *models.EvidencePack) ([]byte, error) {
	type factView struct {
		Value   interface{} `json:"value,omitempty"`
		Source  string      `json:"source"`
		Stale   bool        `json:"stale,omitempty"`
		Missing bool        `json:"missing,omitempty"`
	}

	ordered := make(map[string]factView, len(pack.Facts))
	for _, key := range pack.Keys() {
		f := pack.Get(key)
		view := factView{Source: string(f.Source), Stale: f.Stale, Missing: f.Missing}
		if !f.Missing {
			view.Value = f.Value
		}
		ordered[key] = view
	}
	return json.MarshalIndent(ordered, "", "  ")
}

func writeCardinality(b *strings.Builder, c models.Cardinality) {
	counts := []struct {
		n    int
		what string
	}{
		{c.Events, "top events"},
		{c.QuickReads, "quick-read bullets"},
		{c.QuickHits, "quick-hit bullets"},
		{c.Catalysts, "catalyst calendar entries"},
		{c.Quarters, "quarters of financials"},
		{c.Competitors, "competitor rows"},
		{c.RepStocks, "representative stocks"},
		{c.SourceLinks, "numbered source links"},
	}
	wrote := false
	for _, item := range counts {
		if item.n > 0 {
			if !wrote {
				b.WriteString("Minimum counts:\n")
				wrote = true
			}
			fmt.Fprintf(b, "- at least %d %s\n", item.n, item.what)
		}
	}
	if wrote {
		b.WriteString("\n")
	}
}

// writeValuation lays out the scenario targets and the sensitivity grid
// with the display precision the article uses.
func writeValuation(b *strings.Builder, v *models.ValuationSet) {
	b.WriteString("Valuation (target prices, USD):\n")
	for _, horizon := range []models.Horizon{models.HorizonShort, models.HorizonMedium, models.HorizonLong} {
		hv := v.Horizon(horizon)
		if hv == nil {
			if reason, ok := v.Omitted[horizon]; ok {
				fmt.Fprintf(b, "- %s term: unavailable (%s); write \"--\"\n", horizon, reason)
			}
			continue
		}
		degraded := ""
		if hv.Degraded {
			degraded = " (fallback assumptions)"
		}
		fmt.Fprintf(b, "- %s term%s: Bear %.2f / Base %.2f / Bull %.2f (%s)\n",
			horizon, degraded, hv.Bear.TargetPrice, hv.Base.TargetPrice, hv.Bull.TargetPrice, hv.Base.Method)
	}
	b.WriteString("\n")

	if v.Sensitivity != nil {
		b.WriteString("Sensitivity grid (rows EPS, columns multiple, cells = EPS x multiple):\n\n")
		b.WriteString("| EPS \\ Multiple |")
		for _, m := range v.Sensitivity.MultipleCol {
			fmt.Fprintf(b, " %.1fx |", m)
		}
		b.WriteString("\n|---|")
		for range v.Sensitivity.MultipleCol {
			b.WriteString("---|")
		}
		b.WriteString("\n")
		for i, eps := range v.Sensitivity.EPSRow {
			fmt.Fprintf(b, "| $%.2f |", eps)
			for _, cell := range v.Sensitivity.Cells[i] {
				fmt.Fprintf(b, " $%.2f |", cell)
			}
			b.WriteString("\n")
		}
		b.WriteString("\nReproduce this grid verbatim as a markdown table in the valuation section.\n\n")
	}
}
