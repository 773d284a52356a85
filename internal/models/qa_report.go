package models

import "encoding/json"

// QAStatus is the overall verdict of a QA run.
type QAStatus string

const (
	QAStatusPass QAStatus = "pass"
	QAStatusFail QAStatus = "fail"
)

// QA issue codes. Blocking codes appear in Errors, the rest in Warnings.
const (
	QAPlaceholderText     = "placeholder_text"
	QAMissingSection      = "missing_section"
	QAMissingDisclaimer   = "missing_disclaimer"
	QAScenarioOrdering    = "scenario_ordering"
	QAUntracedNumber      = "untraced_number"
	QAInsufficientSources = "insufficient_sources"
	QACardinality         = "cardinality"
	QASensitivityShape    = "sensitivity_shape"
	QAStaleSnapshot       = "stale_snapshot"
	QAThemeMismatch       = "theme_mismatch"
	QAMissingAsset        = "missing_asset"
	QAInvalidArtifact     = "invalid_artifact"
	QAMissingFact         = "missing_fact"
	QADegradedValuation   = "degraded_valuation"
	QASoftPlaceholder     = "soft_placeholder"
	QAYearConsistency     = "year_consistency"
	QADataTimestamp       = "data_timestamp"
	QASingleWireSource    = "single_wire_source"
	QAStaleFacts          = "stale_facts"
	QAChartFallback       = "chart_fallback"
	QAValuationFailure    = "valuation_failure"
)

// QAIssue is a single diagnostic with a stable machine-readable code.
type QAIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QAReport is the persisted result of validating one rendered article
// against its evidence pack. The JSON shape is a stable contract for
// operators and tooling; immutable once emitted, and byte-identical when
// re-produced from identical inputs.
type QAReport struct {
	ArticleID string            `json:"article_id"`
	AsOfDate  string            `json:"as_of_date"`
	Status    QAStatus          `json:"status"`
	Errors    []QAIssue         `json:"errors"`
	Warnings  []QAIssue         `json:"warnings"`
	Artifacts map[string]string `json:"artifacts"`
	PackHash  string            `json:"pack_hash,omitempty"`
}

// NewQAReport creates an empty passing report for an article.
func NewQAReport(articleID, asOfDate string) *QAReport {
	return &QAReport{
		ArticleID: articleID,
		AsOfDate:  asOfDate,
		Status:    QAStatusPass,
		Errors:    []QAIssue{},
		Warnings:  []QAIssue{},
		Artifacts: map[string]string{},
	}
}

// AddError records a blocking issue and flips the status to fail.
func (r *QAReport) AddError(code, message string) {
	r.Errors = append(r.Errors, QAIssue{Code: code, Message: message})
	r.Status = QAStatusFail
}

// AddWarning records a non-blocking issue.
func (r *QAReport) AddWarning(code, message string) {
	r.Warnings = append(r.Warnings, QAIssue{Code: code, Message: message})
}

// Passed reports whether publication may proceed.
func (r *QAReport) Passed() bool {
	return r.Status == QAStatusPass
}

// MarshalStable renders the report as deterministic indented JSON. Two
// reports built from identical inputs serialize to identical bytes.
func (r *QAReport) MarshalStable() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
