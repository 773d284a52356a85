package render

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ternarybob/aestimo/internal/models"
)

// ParseDraft parses model output into a structured draft. The expected
// shape is YAML front matter between --- fences followed by the markdown
// body; a leading code fence around the whole document is tolerated.
func ParseDraft(articleID, raw, provider string, now time.Time) (*models.Draft, error) {
	text := strings.TrimSpace(raw)
	text = stripCodeFence(text)

	meta, body, err := splitFrontMatter(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse draft front matter: %w", err)
	}

	title := meta["title"]
	if title == "" {
		title = firstHeading(body)
	}
	if title == "" {
		return nil, fmt.Errorf("draft has no title in front matter or headings")
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("draft has an empty body")
	}

	return &models.Draft{
		ArticleID: articleID,
		Title:     title,
		Meta:      meta,
		Body:      strings.TrimSpace(body),
		Provider:  provider,
		CreatedAt: now.UTC(),
	}, nil
}

// splitFrontMatter returns the front-matter map and the remaining body.
// A document without front matter is returned whole with empty meta.
func splitFrontMatter(text string) (map[string]string, string, error) {
	meta := map[string]string{}
	if !strings.HasPrefix(text, "---") {
		return meta, text, nil
	}

	rest := strings.TrimPrefix(text, "---")
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return meta, text, nil
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(rest[:end]), &raw); err != nil {
		return nil, "", err
	}
	for k, v := range raw {
		meta[k] = fmt.Sprintf("%v", v)
	}

	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "-") // tolerate ---- fences
	return meta, strings.TrimPrefix(body, "\n"), nil
}

// stripCodeFence removes a ``` fence wrapping the whole document, which
// models sometimes add despite instructions.
func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.SplitN(text, "\n", 2)
	if len(lines) < 2 {
		return text
	}
	body := lines[1]
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// firstHeading returns the first H1 text in the body, or empty.
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}
