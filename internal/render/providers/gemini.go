package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"google.golang.org/genai"
)

// GeminiModel implements the TextModel interface using the Google Gemini
// API.
type GeminiModel struct {
	model   string
	logger  arbor.ILogger
	client  *genai.Client
	timeout time.Duration
}

var _ interfaces.TextModel = (*GeminiModel)(nil)

// convertMessagesToGemini converts []interfaces.Message to Gemini Content
// format. System messages become the system instruction; unknown roles
// default to user.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		geminiRole := genai.RoleUser
		if msg.Role == "assistant" {
			geminiRole = genai.RoleModel
		}

		contents = append(contents, &genai.Content{
			Role:  geminiRole,
			Parts: []*genai.Part{genai.NewPartFromText(msg.Content)},
		})
	}

	if len(contents) == 0 {
		return nil, "", fmt.Errorf("at least one non-system message is required")
	}

	return contents, systemText, nil
}

// NewGeminiModel creates the Gemini-backed text model.
func NewGeminiModel(rendererConfig *common.RendererConfig, logger arbor.ILogger) (*GeminiModel, error) {
	apiKey := rendererConfig.Gemini.APIKey
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required (set AESTIMO_GEMINI_API_KEY or renderer.gemini.api_key)")
	}

	model := rendererConfig.Gemini.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	m := &GeminiModel{
		model:   model,
		logger:  logger,
		client:  client,
		timeout: common.Duration(rendererConfig.Timeout, 120*time.Second),
	}

	logger.Debug().
		Str("model", model).
		Dur("timeout", m.timeout).
		Msg("Gemini text model initialized")

	return m, nil
}

// Chat generates a completion from the conversation history.
func (m *GeminiModel) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("messages cannot be empty for chat completion")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	startTime := time.Now()
	response, err := m.generateCompletion(timeoutCtx, messages)
	if err != nil {
		m.logger.Error().
			Err(err).
			Int("message_count", len(messages)).
			Msg("Gemini completion failed")
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	m.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(response)).
		Dur("duration", time.Since(startTime)).
		Msg("Gemini completion finished")

	return response, nil
}

// Name returns the provider/model identifier for draft provenance.
func (m *GeminiModel) Name() string {
	return "gemini/" + m.model
}

// HealthCheck probes the API with a minimal request.
func (m *GeminiModel) HealthCheck(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("Gemini client is not initialized")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	response, err := m.generateCompletion(probeCtx, []interfaces.Message{
		{Role: "user", Content: "ping"},
	})
	if err != nil {
		return fmt.Errorf("Gemini health check failed: %w", err)
	}
	if len(strings.TrimSpace(response)) == 0 {
		return fmt.Errorf("Gemini probe returned empty response")
	}
	return nil
}

// Close releases the client reference. The genai.Client does not require
// an explicit close.
func (m *GeminiModel) Close() error {
	m.client = nil
	return nil
}

// generateCompletion encapsulates the Gemini API call.
func (m *GeminiModel) generateCompletion(ctx context.Context, messages []interfaces.Message) (string, error) {
	geminiContents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return "", fmt.Errorf("failed to convert messages to Gemini format: %w", err)
	}

	config := &genai.GenerateContentConfig{}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, geminiContents, config)
	if err != nil {
		return "", fmt.Errorf("Gemini API call failed: %w", err)
	}

	var response strings.Builder
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Gemini API")
	}

	return response.String(), nil
}
