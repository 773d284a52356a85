package providers

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// NewTextModel creates the configured text model implementation.
func NewTextModel(rendererConfig *common.RendererConfig, logger arbor.ILogger) (interfaces.TextModel, error) {
	logger.Info().Str("provider", rendererConfig.Provider).Msg("Initializing text model")

	switch rendererConfig.Provider {
	case "anthropic":
		return NewClaudeModel(rendererConfig, logger)
	case "gemini":
		return NewGeminiModel(rendererConfig, logger)
	default:
		return nil, fmt.Errorf("unsupported renderer provider %q: must be 'anthropic' or 'gemini'", rendererConfig.Provider)
	}
}

// NewFallbackModel creates the configured secondary model, or nil when no
// fallback is configured. A fallback failure at startup is reported but
// callers may choose to proceed with the primary alone.
func NewFallbackModel(rendererConfig *common.RendererConfig, logger arbor.ILogger) (interfaces.TextModel, error) {
	if rendererConfig.Fallback == "" || rendererConfig.Fallback == rendererConfig.Provider {
		return nil, nil
	}

	fallbackConfig := *rendererConfig
	fallbackConfig.Provider = rendererConfig.Fallback
	return NewTextModel(&fallbackConfig, logger)
}
