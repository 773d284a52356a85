package qa

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// markdownHeadings parses the body and returns every heading's level and
// text, in document order.
func markdownHeadings(body string) []headingInfo {
	src := []byte(body)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var found []headingInfo
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			found = append(found, headingInfo{
				Level: h.Level,
				Text:  string(h.Text(src)),
			})
		}
		return ast.WalkContinue, nil
	})
	return found
}

type headingInfo struct {
	Level int
	Text  string
}

var sectionSplitRe = regexp.MustCompile(`(?m)^##\s+`)

// findSection returns the content of the first level-2 section whose
// heading contains keyword (case-insensitive), without the heading line.
// Empty string when no section matches.
func findSection(body, keyword string) string {
	keyword = strings.ToLower(keyword)
	parts := sectionSplitRe.Split(body, -1)
	if len(parts) < 2 {
		return ""
	}
	for _, part := range parts[1:] {
		head := part
		rest := ""
		if nl := strings.IndexByte(part, '\n'); nl >= 0 {
			head = part[:nl]
			rest = part[nl+1:]
		}
		if strings.Contains(strings.ToLower(head), keyword) {
			return rest
		}
	}
	return ""
}

var (
	bulletRe       = regexp.MustCompile(`(?m)^\s*[-*]\s+\S`)
	subHeadingRe   = regexp.MustCompile(`(?m)^###\s+\S`)
	tableLineRe    = regexp.MustCompile(`(?m)^\|.*\|\s*$`)
	tableDividerRe = regexp.MustCompile(`^\|[\s\-:|]+\|\s*$`)
	tickerRefRe    = regexp.MustCompile(`\([A-Z]{1,5}(?:\.[A-Z])?\)`)
	quarterRe      = regexp.MustCompile(`\b(?:[1-4]Q\d{2}|Q[1-4]\s?'?\d{2,4}|FY\d{2,4})\b`)
)

// countBullets counts list items in a markdown fragment.
func countBullets(s string) int {
	return len(bulletRe.FindAllString(s, -1))
}

// countSubHeadings counts level-3 headings in a markdown fragment.
func countSubHeadings(s string) int {
	return len(subHeadingRe.FindAllString(s, -1))
}

// countTableRows counts data rows across all markdown tables in the
// fragment, excluding header and divider lines.
func countTableRows(s string) int {
	lines := tableLineRe.FindAllString(s, -1)
	rows := 0
	afterDivider := false
	for _, line := range lines {
		if tableDividerRe.MatchString(strings.TrimSpace(line)) {
			afterDivider = true
			continue
		}
		if afterDivider {
			rows++
		}
	}
	return rows
}

// countTickerRefs counts parenthesized ticker mentions like (NVDA).
func countTickerRefs(s string) int {
	return len(tickerRefRe.FindAllString(s, -1))
}

// countQuarterLabels counts distinct quarter labels like 3Q25 or Q3'25.
func countQuarterLabels(s string) int {
	seen := make(map[string]bool)
	for _, m := range quarterRe.FindAllString(s, -1) {
		seen[normalizeQuarter(m)] = true
	}
	return len(seen)
}

func normalizeQuarter(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}
