// Package pipeline orchestrates the daily run: entity selection,
// evidence builds, valuation, rendering, QA and publication, with
// per-article fault isolation. One article failing at any stage
// withholds that article only; the others proceed.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/alerts"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/evidence"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/publish"
	"github.com/ternarybob/aestimo/internal/qa"
	"github.com/ternarybob/aestimo/internal/valuation"
)

// attachmentSender is the optional alert upgrade that carries the QA
// report along with the notification.
type attachmentSender interface {
	SendWithAttachments(ctx context.Context, alert *interfaces.Alert, attachments []alerts.Attachment) error
}

// Deps is everything the pipeline wires together. Builder, engine and
// coordinator are concrete because the pipeline owns their lifecycle;
// the rest are boundaries.
type Deps struct {
	Specs       map[models.ArticleKind]*models.ArticleSpec
	Selector    *Selector
	Builder     *evidence.Builder
	Engine      *valuation.Engine
	Renderer    interfaces.ArticleRenderer
	Gate        *qa.Gate
	Charts      interfaces.ChartService
	PDF         interfaces.PDFService
	Artifacts   interfaces.ArtifactStore
	Ledger      interfaces.RunLedger
	Coordinator *publish.Coordinator
	Target      interfaces.PublishTarget
	Alerts      interfaces.AlertService
	OutputDir   string
	Logger      arbor.ILogger
}

// Service runs the daily batch.
type Service struct {
	deps Deps
	log  arbor.ILogger
}

var _ interfaces.PipelineService = (*Service)(nil)

// NewService creates the pipeline from its dependencies.
func NewService(deps Deps) *Service {
	return &Service{deps: deps, log: deps.Logger}
}

// Run executes one full pass for the options' date. The returned error
// covers run-level failures only (selection, scheduling); per-article
// failures live in the summary's outcomes.
func (s *Service) Run(ctx context.Context, opts models.RunOptions) (*models.RunSummary, error) {
	asOf := asOfFor(opts.Date)
	if opts.RunID == "" {
		opts.RunID = common.NewRunID()
	}

	summary := &models.RunSummary{
		RunID:     opts.RunID,
		Date:      asOf.Format("2006-01-02"),
		Simulate:  opts.Simulate,
		StartedAt: time.Now().UTC(),
	}

	s.log.Info().
		Str("run_id", opts.RunID).
		Str("date", summary.Date).
		Bool("simulate", opts.Simulate).
		Msg("Pipeline run starting")

	if opts.SkipQA {
		s.log.Error().
			Str("run_id", opts.RunID).
			Msg("QA BYPASS ACTIVE: failing articles will be published anyway")
	}

	bound, err := s.deps.Selector.Bind(ctx, s.deps.Specs, opts)
	if err != nil {
		s.alert(ctx, interfaces.AlertError, "Run failed before selection", err.Error(),
			map[string]string{"run_id": opts.RunID, "date": summary.Date}, nil)
		return summary, err
	}

	for _, kind := range publishOrder {
		if !opts.WantsArticle(kind) {
			continue
		}
		if _, declared := s.deps.Specs[kind]; !declared {
			continue
		}

		b, ok := bound[kind]
		if !ok {
			summary.Articles = append(summary.Articles, models.ArticleOutcome{
				Kind:     kind,
				Withheld: true,
				Error:    "no entity selected",
			})
			continue
		}

		outcome := s.runArticle(ctx, b, opts, asOf)
		summary.Articles = append(summary.Articles, outcome)
	}

	summary.FinishedAt = time.Now().UTC()
	s.finishAlert(ctx, opts, summary)

	s.log.Info().
		Str("run_id", opts.RunID).
		Int("articles", len(summary.Articles)).
		Bool("failed", summary.Failed()).
		Msg("Pipeline run finished")

	return summary, nil
}

// runArticle carries one article through every stage. Panics and errors
// are contained here so a single article can never take the run down.
func (s *Service) runArticle(ctx context.Context, b Bound, opts models.RunOptions, asOf time.Time) (outcome models.ArticleOutcome) {
	spec := b.Spec
	date := asOf.Format("2006-01-02")
	slug := spec.Slug(asOf)

	outcome = models.ArticleOutcome{
		Kind:   spec.Kind,
		Slug:   slug,
		Entity: spec.Entity,
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("article", slug).
				Str("panic", fmt.Sprint(r)).
				Msg("Article stage panicked")
			outcome.Withheld = true
			outcome.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	s.log.Info().
		Str("article", slug).
		Str("entity", spec.Entity).
		Str("reason", b.Reason).
		Msg("Article selected")

	pack, err := s.deps.Builder.Build(ctx, spec, asOf)
	if err != nil {
		return s.withhold(ctx, outcome, "evidence build failed", err, nil)
	}
	outcome.PackHash = pack.ContentHash

	var set *models.ValuationSet
	var valErr error
	if spec.Kind == models.ArticleDeepDive {
		set, valErr = s.deps.Engine.Value(pack)
		if valErr != nil {
			// The gate turns this into a blocking report error; rendering
			// still runs so the draft is on file for review.
			s.log.Warn().Err(valErr).Str("article", slug).Msg("Valuation failed")
		}
	}

	draft, err := s.deps.Renderer.RenderDraft(ctx, spec, pack, set)
	if err != nil {
		return s.withhold(ctx, outcome, "rendering failed", err, nil)
	}

	artifactKeys := make(map[string]string)
	chartAttached := s.attachVisuals(ctx, spec, set, draft, date, slug, opts.Simulate, artifactKeys)
	pdfValid := s.buildPDF(ctx, draft, date, slug, artifactKeys)

	report := s.deps.Gate.Validate(qa.Input{
		Spec:          spec,
		Draft:         draft,
		Pack:          pack,
		Valuation:     set,
		ValuationErr:  valErr,
		ChartAttached: chartAttached,
		PDFValid:      pdfValid,
		Artifacts:     artifactKeys,
	})
	outcome.QAStatus = report.Status

	if err := s.deps.Artifacts.SaveDraft(ctx, date, slug, draft); err != nil {
		s.log.Warn().Err(err).Str("article", slug).Msg("Failed to persist draft")
	}
	if err := s.deps.Artifacts.SaveReport(ctx, date, slug, report); err != nil {
		s.log.Warn().Err(err).Str("article", slug).Msg("Failed to persist QA report")
	}

	if err := s.ensureLedgerEntry(ctx, date, slug, opts.RunID); err != nil {
		return s.withhold(ctx, outcome, "ledger create failed", err, report)
	}

	passed := report.Passed()
	if !passed && opts.SkipQA {
		s.log.Error().
			Str("article", slug).
			Int("errors", len(report.Errors)).
			Msg("QA BYPASS: publishing article that failed the gate")
		passed = true
	}

	if passed {
		if err := s.advanceToQAPassed(ctx, date, slug); err != nil {
			return s.withhold(ctx, outcome, "ledger transition failed", err, report)
		}
	}

	if opts.Simulate {
		if err := s.writeSimulated(date, slug, draft, report, pack); err != nil {
			s.log.Warn().Err(err).Str("article", slug).Msg("Failed to export simulate artifacts")
		}
		if !report.Passed() {
			outcome.Withheld = true
			outcome.Error = fmt.Sprintf("qa failed with %d errors", len(report.Errors))
		}
		return outcome
	}

	if !passed {
		return s.withhold(ctx, outcome, "qa gate blocked publication",
			fmt.Errorf("%d blocking errors", len(report.Errors)), report)
	}

	article := &publish.Article{
		Date:           date,
		Slug:           slug,
		Title:          draft.Title,
		Markdown:       draft.Body,
		Tags:           articleTags(spec),
		ContentHash:    pack.ContentHash,
		SendNewsletter: spec.SendsNewsletter,
		Report:         report,
	}
	if opts.SkipQA && !report.Passed() {
		bypassed := *report
		bypassed.Status = models.QAStatusPass
		article.Report = &bypassed
	}

	result, err := s.deps.Coordinator.Publish(ctx, article)
	if err != nil {
		return s.withhold(ctx, outcome, "publication failed", err, report)
	}

	outcome.Published = true
	outcome.EmailSent = result.EmailSent
	return outcome
}

// attachVisuals renders the deep dive's scenario chart and embeds it
// (or the markdown fallback table) under the valuation section. Returns
// whether a rendered chart made it into the draft.
func (s *Service) attachVisuals(ctx context.Context, spec *models.ArticleSpec, set *models.ValuationSet, draft *models.Draft, date, slug string, simulate bool, artifactKeys map[string]string) bool {
	if spec.Kind != models.ArticleDeepDive || set == nil {
		return false
	}

	png, err := s.deps.Charts.RenderScenarioChart(ctx, set)
	if err != nil {
		s.log.Warn().Err(err).Str("article", slug).Msg("Chart rendering failed, using fallback table")
		if table := s.deps.Charts.FallbackTable(set); table != "" {
			draft.Body = embedUnderSection(draft.Body, "Valuation Scenarios", table)
		}
		return false
	}

	if key, err := s.deps.Artifacts.SaveAsset(ctx, date, slug, "chart", png); err != nil {
		s.log.Warn().Err(err).Str("article", slug).Msg("Failed to persist chart")
	} else {
		artifactKeys["chart"] = key
	}

	if simulate {
		// No upload in simulate mode; the saved PNG stands in for review.
		return true
	}

	url, err := s.deps.Target.UploadImage(ctx, slug+".png", png)
	if err != nil {
		s.log.Warn().Err(err).Str("article", slug).Msg("Chart upload failed, using fallback table")
		if table := s.deps.Charts.FallbackTable(set); table != "" {
			draft.Body = embedUnderSection(draft.Body, "Valuation Scenarios", table)
		}
		return false
	}

	draft.Body = embedUnderSection(draft.Body, "Valuation Scenarios",
		fmt.Sprintf("![Valuation scenarios](%s)", url))
	return true
}

// buildPDF generates and validates the article PDF. Returns nil when no
// PDF was produced, so the gate can tell "absent" from "broken".
func (s *Service) buildPDF(ctx context.Context, draft *models.Draft, date, slug string, artifactKeys map[string]string) *bool {
	data, err := s.deps.PDF.ConvertMarkdownToPDF(draft.Body, draft.Title)
	if err != nil {
		s.log.Warn().Err(err).Str("article", slug).Msg("PDF generation failed")
		return nil
	}

	valid := s.deps.PDF.ValidatePDF(data) == nil
	if key, err := s.deps.Artifacts.SaveAsset(ctx, date, slug, "pdf", data); err != nil {
		s.log.Warn().Err(err).Str("article", slug).Msg("Failed to persist PDF")
	} else {
		artifactKeys["pdf"] = key
	}
	return &valid
}

// ensureLedgerEntry creates the generated-state entry, tolerating one
// that an earlier run of the same day already created.
func (s *Service) ensureLedgerEntry(ctx context.Context, date, slug, runID string) error {
	entry := models.NewLedgerEntry(date, slug, runID, time.Now())
	err := s.deps.Ledger.Create(ctx, entry)
	if err == nil {
		return nil
	}
	if errors.Is(err, interfaces.ErrLedgerConflict) {
		s.log.Info().Str("article", slug).Msg("Ledger entry exists from an earlier run")
		return nil
	}
	return err
}

// advanceToQAPassed moves generated -> qa_passed. An entry already past
// that state (an earlier run published it) is not an error.
func (s *Service) advanceToQAPassed(ctx context.Context, date, slug string) error {
	_, err := s.deps.Ledger.Transition(ctx, date, slug,
		models.RunStatusGenerated, models.RunStatusQAPassed, nil)
	if err == nil {
		return nil
	}
	if errors.Is(err, interfaces.ErrLedgerConflict) {
		current, getErr := s.deps.Ledger.Get(ctx, date, slug)
		if getErr != nil {
			return getErr
		}
		if current.Status.CanAdvanceTo(models.RunStatusQAPassed) {
			return fmt.Errorf("ledger for %s stuck in %s", slug, current.Status)
		}
		return nil
	}
	return err
}

// writeSimulated exports the run's review artifacts to the output dir.
func (s *Service) writeSimulated(date, slug string, draft *models.Draft, report *models.QAReport, pack *models.EvidencePack) error {
	dir := filepath.Join(s.deps.OutputDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	html, err := publish.RenderHTML(draft.Body)
	if err != nil {
		return err
	}

	files := map[string][]byte{
		slug + ".md":    []byte(draft.Body),
		slug + ".html":  []byte(html),
		slug + ".qa.md": []byte(qa.RenderMarkdown(report)),
	}
	if reportJSON, err := report.MarshalStable(); err == nil {
		files[slug+".qa.json"] = reportJSON
	}
	if packJSON, err := json.MarshalIndent(pack, "", "  "); err == nil {
		files[slug+".pack.json"] = packJSON
	}

	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	s.log.Info().Str("article", slug).Str("dir", dir).Msg("Simulate artifacts written")
	return nil
}

// withhold records a failed article and raises the ops alert, with the
// QA report attached when one exists.
func (s *Service) withhold(ctx context.Context, outcome models.ArticleOutcome, stage string, err error, report *models.QAReport) models.ArticleOutcome {
	outcome.Withheld = true
	outcome.Error = fmt.Sprintf("%s: %v", stage, err)

	s.log.Error().
		Err(err).
		Str("article", outcome.Slug).
		Str("stage", stage).
		Msg("Article withheld")

	var attachments []alerts.Attachment
	if report != nil {
		attachments = append(attachments, alerts.Attachment{
			Filename:    outcome.Slug + "-qa.md",
			ContentType: "text/markdown",
			Content:     []byte(qa.RenderMarkdown(report)),
		})
	}

	s.alert(ctx, interfaces.AlertError, "Article withheld", outcome.Error, map[string]string{
		"article": outcome.Slug,
		"stage":   stage,
	}, attachments)

	return outcome
}

// finishAlert posts the end-of-run notification: info when everything
// published, warning when some articles were withheld, error when all.
func (s *Service) finishAlert(ctx context.Context, opts models.RunOptions, summary *models.RunSummary) {
	if opts.Simulate {
		return
	}

	withheld := summary.Withheld()

	severity := interfaces.AlertInfo
	switch {
	case summary.Failed():
		severity = interfaces.AlertError
	case withheld > 0:
		severity = interfaces.AlertWarning
	}

	s.alert(ctx, severity, "Daily run finished",
		fmt.Sprintf("%d of %d articles published", len(summary.Articles)-withheld, len(summary.Articles)),
		map[string]string{
			"run_id": summary.RunID,
			"date":   summary.Date,
		}, nil)
}

func (s *Service) alert(ctx context.Context, severity interfaces.AlertSeverity, title, message string, fields map[string]string, attachments []alerts.Attachment) {
	if s.deps.Alerts == nil {
		return
	}
	a := &interfaces.Alert{Severity: severity, Title: title, Message: message, Fields: fields}

	var err error
	if sender, ok := s.deps.Alerts.(attachmentSender); ok && len(attachments) > 0 {
		err = sender.SendWithAttachments(ctx, a, attachments)
	} else {
		err = s.deps.Alerts.Send(ctx, a)
	}
	if err != nil {
		s.log.Warn().Err(err).Str("title", title).Msg("Alert delivery failed")
	}
}

// articleTags derives the publication tags for a spec.
func articleTags(spec *models.ArticleSpec) []string {
	tags := []string{string(spec.Kind)}
	if spec.Kind == models.ArticleDeepDive && spec.Entity != "" {
		tags = append(tags, spec.Entity)
	}
	return tags
}

var sectionHeadingRe = regexp.MustCompile(`(?m)^##\s+.*$`)

// embedUnderSection inserts block directly below the level-2 heading
// whose text contains heading (case-insensitive), or appends it when the
// section is missing.
func embedUnderSection(body, heading, block string) string {
	want := strings.ToLower(heading)
	for _, loc := range sectionHeadingRe.FindAllStringIndex(body, -1) {
		line := body[loc[0]:loc[1]]
		if strings.Contains(strings.ToLower(line), want) {
			return body[:loc[1]] + "\n\n" + block + "\n" + body[loc[1]:]
		}
	}
	return body + "\n\n" + block + "\n"
}
