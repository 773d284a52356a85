package models

import (
	"fmt"
	"strings"
	"time"
)

// ArticleKind identifies one of the three daily articles.
type ArticleKind string

const (
	// ArticleDailyBrief is the morning market brief (sends the newsletter)
	ArticleDailyBrief ArticleKind = "daily-brief"
	// ArticleDeepDive is the single-stock deep dive
	ArticleDeepDive ArticleKind = "deep-dive"
	// ArticleThemeTrend is the cross-stock theme piece
	ArticleThemeTrend ArticleKind = "theme-trend"
)

// DegradationPolicy is the declared fallback when a required fact cannot
// be freshly fetched. Evaluated uniformly by the evidence builder instead
// of per-adapter conditionals.
type DegradationPolicy string

const (
	// DegradeRetry retries the fetch with backoff before giving up
	DegradeRetry DegradationPolicy = "retry"
	// DegradeStaleCache substitutes the cached prior-day value, marked stale
	DegradeStaleCache DegradationPolicy = "use-stale-cache"
	// DegradeStaticDefault substitutes a configured constant
	DegradeStaticDefault DegradationPolicy = "use-static-default"
	// DegradeMarkMissing records the key as missing and moves on
	DegradeMarkMissing DegradationPolicy = "mark-missing"
)

// KeyRequirement declares one required fact key and its sourcing rules.
type KeyRequirement struct {
	Key           string            `json:"key" toml:"key" validate:"required"`
	Adapter       string            `json:"adapter" toml:"adapter" validate:"required"` // fmp, edgar, transcripts, computed, static
	Field         string            `json:"field,omitempty" toml:"field"`               // adapter-specific field name
	Policy        DegradationPolicy `json:"policy" toml:"policy" validate:"required"`
	StaticDefault interface{}       `json:"static_default,omitempty" toml:"static_default"`
	MaxStaleDays  int               `json:"max_stale_days,omitempty" toml:"max_stale_days"`
	Optional      bool              `json:"optional,omitempty" toml:"optional"`
}

// Cardinality holds the minimum element counts the QA gate enforces for
// one article kind. Zero means the rule does not apply.
type Cardinality struct {
	Events          int `json:"events,omitempty" toml:"events"`
	QuickReads      int `json:"quick_reads,omitempty" toml:"quick_reads"`
	QuickHits       int `json:"quick_hits,omitempty" toml:"quick_hits"`
	Catalysts       int `json:"catalysts,omitempty" toml:"catalysts"`
	Quarters        int `json:"quarters,omitempty" toml:"quarters"`
	Competitors     int `json:"competitors,omitempty" toml:"competitors"`
	RepStocks       int `json:"rep_stocks,omitempty" toml:"rep_stocks"`
	SourceLinks     int `json:"source_links,omitempty" toml:"source_links"`
	SensitivityRows int `json:"sensitivity_rows,omitempty" toml:"sensitivity_rows"`
	SensitivityCols int `json:"sensitivity_cols,omitempty" toml:"sensitivity_cols"`
}

// ArticleSpec names everything the pipeline needs to produce one article:
// the entity to fetch for, the fact keys the template demands, the
// sections QA requires, and the cardinality minimums.
type ArticleSpec struct {
	Kind             ArticleKind      `json:"kind" toml:"kind" validate:"required"`
	Entity           string           `json:"entity" toml:"entity"`                 // ticker or theme slug, set at selection time
	EntityTickers    []string         `json:"entity_tickers" toml:"entity_tickers"` // tickers the entity covers: the deep-dive ticker, a theme's constituents
	Requirements     []KeyRequirement `json:"requirements" toml:"requirements" validate:"required,dive"`
	RequiredSections []string         `json:"required_sections" toml:"required_sections"`
	Cardinality      Cardinality      `json:"cardinality" toml:"cardinality"`
	SendsNewsletter  bool             `json:"sends_newsletter" toml:"sends_newsletter"`
}

// Clone returns a deep copy the pipeline can bind an entity to without
// mutating the loaded spec.
func (s *ArticleSpec) Clone() *ArticleSpec {
	c := *s
	c.EntityTickers = append([]string(nil), s.EntityTickers...)
	c.Requirements = append([]KeyRequirement(nil), s.Requirements...)
	c.RequiredSections = append([]string(nil), s.RequiredSections...)
	return &c
}

// SetStatic fills the static default for key, for values only known at
// selection time (theme name, constituent list). Returns false if the
// spec has no such requirement.
func (s *ArticleSpec) SetStatic(key string, value interface{}) bool {
	for i := range s.Requirements {
		if s.Requirements[i].Key == key {
			s.Requirements[i].StaticDefault = value
			return true
		}
	}
	return false
}

// RequiredKeys returns the non-optional fact keys in declaration order.
func (s *ArticleSpec) RequiredKeys() []string {
	keys := make([]string, 0, len(s.Requirements))
	for _, r := range s.Requirements {
		if !r.Optional {
			keys = append(keys, r.Key)
		}
	}
	return keys
}

// Requirement returns the declaration for key, or nil.
func (s *ArticleSpec) Requirement(key string) *KeyRequirement {
	for i := range s.Requirements {
		if s.Requirements[i].Key == key {
			return &s.Requirements[i]
		}
	}
	return nil
}

// Slug derives the article's publication slug for a date. Deep dives and
// theme pieces carry their entity as a suffix.
func (s *ArticleSpec) Slug(date time.Time) string {
	stamp := date.Format("20060102")
	switch s.Kind {
	case ArticleDailyBrief:
		return fmt.Sprintf("daily-brief-%s", stamp)
	case ArticleDeepDive:
		return fmt.Sprintf("deep-dive-%s-%s", stamp, strings.ToLower(s.Entity))
	case ArticleThemeTrend:
		return fmt.Sprintf("theme-trend-%s-%s", stamp, slugify(s.Entity))
	}
	return fmt.Sprintf("%s-%s", s.Kind, stamp)
}

// slugify lowercases and dash-joins an entity name for use in a URL slug.
func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
