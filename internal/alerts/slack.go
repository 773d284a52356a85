package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

// maxFieldLen caps attachment field values so a large error dump cannot
// blow past Slack's payload limits.
const maxFieldLen = 1000

var severityColors = map[interfaces.AlertSeverity]string{
	interfaces.AlertError:   "#dc3545",
	interfaces.AlertWarning: "#ffc107",
	interfaces.AlertInfo:    "#17a2b8",
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

// SlackNotifier posts alerts to an incoming-webhook URL.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     arbor.ILogger
	now        func() time.Time
}

// NewSlackNotifier creates a webhook notifier. The URL is assumed valid;
// a bad one surfaces as a send error, not a constructor error.
func NewSlackNotifier(webhookURL string, logger arbor.ILogger) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

// Send posts one alert as a color-coded attachment.
func (n *SlackNotifier) Send(ctx context.Context, alert *interfaces.Alert) error {
	payload := buildSlackPayload(alert, n.now().UTC())

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post slack alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	if n.logger != nil {
		n.logger.Debug().
			Str("severity", string(alert.Severity)).
			Str("title", alert.Title).
			Msg("Slack alert delivered")
	}

	return nil
}

func buildSlackPayload(alert *interfaces.Alert, at time.Time) slackPayload {
	color, ok := severityColors[alert.Severity]
	if !ok {
		color = severityColors[interfaces.AlertInfo]
	}

	fields := []slackField{
		{Title: "Severity", Value: string(alert.Severity), Short: true},
		{Title: "Time", Value: at.Format("2006-01-02 15:04:05 UTC"), Short: true},
	}

	// Map iteration order is random; sorted keys keep the rendered
	// attachment stable across sends.
	for _, k := range sortedFieldKeys(alert.Fields) {
		fields = append(fields, slackField{Title: k, Value: truncate(alert.Fields[k], maxFieldLen), Short: true})
	}

	return slackPayload{
		Attachments: []slackAttachment{{
			Color:  color,
			Title:  fmt.Sprintf("[Aestimo] %s", alert.Title),
			Text:   alert.Message,
			Fields: fields,
			Footer: "aestimo",
		}},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
