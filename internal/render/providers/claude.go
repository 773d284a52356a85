package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// ClaudeModel implements the TextModel interface using the Anthropic API.
type ClaudeModel struct {
	model     string
	logger    arbor.ILogger
	client    *anthropic.Client
	timeout   time.Duration
	maxTokens int
}

var _ interfaces.TextModel = (*ClaudeModel)(nil)

// convertMessagesToClaude converts []interfaces.Message to Claude MessageParam
// format. System messages are extracted separately for the System parameter;
// the rest keep their chronological ordering.
func convertMessagesToClaude(messages []interfaces.Message) ([]anthropic.MessageParam, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	claudeMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue
		}

		switch msg.Role {
		case "assistant":
			claudeMessages = append(claudeMessages, anthropic.NewAssistantMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		default:
			claudeMessages = append(claudeMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	return claudeMessages, systemText, nil
}

// NewClaudeModel creates the Anthropic-backed text model.
func NewClaudeModel(rendererConfig *common.RendererConfig, logger arbor.ILogger) (*ClaudeModel, error) {
	apiKey := rendererConfig.Anthropic.APIKey
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (set AESTIMO_ANTHROPIC_API_KEY or renderer.anthropic.api_key)")
	}

	model := rendererConfig.Anthropic.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}

	maxTokens := rendererConfig.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	m := &ClaudeModel{
		model:     model,
		logger:    logger,
		client:    &client,
		timeout:   common.Duration(rendererConfig.Timeout, 120*time.Second),
		maxTokens: maxTokens,
	}

	logger.Debug().
		Str("model", model).
		Dur("timeout", m.timeout).
		Int("max_tokens", maxTokens).
		Msg("Claude text model initialized")

	return m, nil
}

// Chat generates a completion from the conversation history.
func (m *ClaudeModel) Chat(ctx context.Context, messages []interfaces.Message) (string, error) {
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
			Msg("Claude completion failed")
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	m.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(response)).
		Dur("duration", time.Since(startTime)).
		Msg("Claude completion finished")

	return response, nil
}

// Name returns the provider/model identifier for draft provenance.
func (m *ClaudeModel) Name() string {
	return "anthropic/" + m.model
}

// HealthCheck probes the API with a minimal request.
func (m *ClaudeModel) HealthCheck(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("Claude client is not initialized")
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	response, err := m.generateCompletion(probeCtx, []interfaces.Message{
		{Role: "user", Content: "ping"},
	})
	if err != nil {
		return fmt.Errorf("Claude health check failed: %w", err)
	}
	if len(strings.TrimSpace(response)) == 0 {
		return fmt.Errorf("Claude probe returned empty response")
	}
	return nil
}

// Close releases the client reference.
func (m *ClaudeModel) Close() error {
	m.client = nil
	return nil
}

// generateCompletion encapsulates the Anthropic API call.
func (m *ClaudeModel) generateCompletion(ctx context.Context, messages []interfaces.Message) (string, error) {
	claudeMessages, systemText, err := convertMessagesToClaude(messages)
	if err != nil {
		return "", fmt.Errorf("failed to convert messages to Claude format: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: int64(m.maxTokens),
		Messages:  claudeMessages,
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemText},
		}
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("Claude API call failed: %w", err)
	}

	var response strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			response.WriteString(block.Text)
		}
	}

	if response.Len() == 0 {
		return "", fmt.Errorf("no response generated from Claude API")
	}

	return response.String(), nil
}
