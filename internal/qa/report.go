package qa

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/aestimo/internal/models"
)

// RenderMarkdown formats a report for operators: the companion to the
// stable JSON the gate persists.
func RenderMarkdown(r *models.QAReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# QA Report: %s\n\n", r.ArticleID)
	fmt.Fprintf(&b, "- Date: %s\n", r.AsOfDate)
	fmt.Fprintf(&b, "- Status: %s\n", strings.ToUpper(string(r.Status)))
	fmt.Fprintf(&b, "- Errors: %d\n", len(r.Errors))
	fmt.Fprintf(&b, "- Warnings: %d\n", len(r.Warnings))
	if r.PackHash != "" {
		fmt.Fprintf(&b, "- Evidence pack: %s\n", r.PackHash)
	}

	if len(r.Errors) > 0 {
		b.WriteString("\n## Errors\n\n")
		for _, issue := range r.Errors {
			fmt.Fprintf(&b, "- `%s` %s\n", issue.Code, issue.Message)
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, issue := range r.Warnings {
			fmt.Fprintf(&b, "- `%s` %s\n", issue.Code, issue.Message)
		}
	}

	if len(r.Artifacts) > 0 {
		b.WriteString("\n## Artifacts\n\n")
		kinds := make([]string, 0, len(r.Artifacts))
		for k := range r.Artifacts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "- %s: %s\n", k, r.Artifacts[k])
		}
	}
	return b.String()
}
