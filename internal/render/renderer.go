// Package render is the article-writing boundary. It assembles a prompt
// from a sealed evidence pack and the valuation output, sends it to the
// configured text model, and parses the structured draft back out.
// Everything the model returns is untrusted; the QA gate re-validates
// every numeric claim against the pack before publication.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
)

// Service renders article drafts through a primary text model with an
// optional fallback provider.
type Service struct {
	model      interfaces.TextModel
	fallback   interfaces.TextModel
	disclaimer string
	validate   *validator.Validate
	logger     arbor.ILogger
}

var _ interfaces.ArticleRenderer = (*Service)(nil)

// NewService creates the renderer. disclaimer is the canonical
// disclaimer text appended to every draft; the QA gate checks it by
// checksum, so it is attached here rather than trusted to the model.
func NewService(model, fallback interfaces.TextModel, disclaimer string, logger arbor.ILogger) *Service {
	return &Service{
		model:      model,
		fallback:   fallback,
		disclaimer: strings.TrimSpace(disclaimer),
		validate:   validator.New(),
		logger:     logger,
	}
}

// RenderDraft produces the structured draft for one article.
func (s *Service) RenderDraft(ctx context.Context, spec *models.ArticleSpec, pack *models.EvidencePack, valuation *models.ValuationSet) (*models.Draft, error) {
	if !pack.Sealed() {
		return nil, fmt.Errorf("refusing to render from an unsealed evidence pack")
	}

	_, user, err := BuildPrompt(PromptInput{Spec: spec, Pack: pack, Valuation: valuation})
	if err != nil {
		return nil, err
	}
	messages := []interfaces.Message{
		{Role: "system", Content: SystemPrompt()},
		{Role: "user", Content: user},
	}

	draft, err := s.renderWith(ctx, s.model, pack.ArticleID, messages)
	if err != nil && s.fallback != nil {
		s.logger.Warn().
			Err(err).
			Str("article", pack.ArticleID).
			Str("fallback", s.fallback.Name()).
			Msg("Primary renderer failed, trying fallback provider")
		draft, err = s.renderWith(ctx, s.fallback, pack.ArticleID, messages)
	}
	if err != nil {
		return nil, err
	}

	s.attachDisclaimer(draft)

	if err := s.validate.Struct(draft); err != nil {
		return nil, fmt.Errorf("rendered draft is structurally invalid: %w", err)
	}

	s.logger.Info().
		Str("article", pack.ArticleID).
		Str("provider", draft.Provider).
		Str("title", draft.Title).
		Int("body_len", len(draft.Body)).
		Msg("Article draft rendered")
	return draft, nil
}

func (s *Service) renderWith(ctx context.Context, model interfaces.TextModel, articleID string, messages []interfaces.Message) (*models.Draft, error) {
	raw, err := model.Chat(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("renderer %s failed: %w", model.Name(), err)
	}
	draft, err := ParseDraft(articleID, raw, model.Name(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("renderer %s produced an unparseable draft: %w", model.Name(), err)
	}
	return draft, nil
}

// attachDisclaimer appends the canonical disclaimer section when the
// draft does not already end with it. The text is fixed policy content,
// never model output.
func (s *Service) attachDisclaimer(draft *models.Draft) {
	if s.disclaimer == "" || strings.Contains(draft.Body, s.disclaimer) {
		return
	}
	draft.Body = strings.TrimRight(draft.Body, "\n") + "\n\n## Disclaimer\n\n" + s.disclaimer + "\n"
}
