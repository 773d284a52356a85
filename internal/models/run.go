package models

import "time"

// RunOptions controls one pipeline invocation.
type RunOptions struct {
	Date     time.Time     `json:"date"`
	Simulate bool          `json:"simulate"`          // render and validate, never touch the publish target
	Only     []ArticleKind `json:"only,omitempty"`    // restrict to specific articles
	SkipQA   bool          `json:"skip_qa,omitempty"` // caller-level bypass hook; logged loudly, never decided by the gate
	RunID    string        `json:"run_id,omitempty"`
}

// WantsArticle reports whether kind is in scope for this run.
func (o *RunOptions) WantsArticle(kind ArticleKind) bool {
	if len(o.Only) == 0 {
		return true
	}
	for _, k := range o.Only {
		if k == kind {
			return true
		}
	}
	return false
}

// ArticleOutcome summarizes one article's trip through the pipeline.
type ArticleOutcome struct {
	Kind      ArticleKind `json:"kind"`
	Slug      string      `json:"slug"`
	Entity    string      `json:"entity,omitempty"`
	PackHash  string      `json:"pack_hash,omitempty"`
	QAStatus  QAStatus    `json:"qa_status,omitempty"`
	Published bool        `json:"published"`
	EmailSent bool        `json:"email_sent"`
	Withheld  bool        `json:"withheld"` // true when a failure kept this article back
	Error     string      `json:"error,omitempty"`
}

// RunSummary is the result of a full daily run. A failure in one article
// never blocks the others, so Articles always carries one outcome per
// in-scope article.
type RunSummary struct {
	RunID      string           `json:"run_id"`
	Date       string           `json:"date"`
	Simulate   bool             `json:"simulate"`
	Articles   []ArticleOutcome `json:"articles"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Published counts the articles that made it to the target.
func (s *RunSummary) Published() int {
	n := 0
	for _, a := range s.Articles {
		if a.Published {
			n++
		}
	}
	return n
}

// Withheld counts the articles a failure kept back.
func (s *RunSummary) Withheld() int {
	n := 0
	for _, a := range s.Articles {
		if a.Withheld {
			n++
		}
	}
	return n
}

// Failed reports whether every article was withheld.
func (s *RunSummary) Failed() bool {
	if len(s.Articles) == 0 {
		return true
	}
	for _, a := range s.Articles {
		if !a.Withheld {
			return false
		}
	}
	return true
}
