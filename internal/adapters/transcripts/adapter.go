package transcripts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/arbor"
)

const adapterName = "transcripts"

// guidanceKeywords mark sentences that carry forward-looking guidance.
// Matching is case-insensitive over the raw transcript text.
var guidanceKeywords = []string{
	"guidance",
	"outlook",
	"we expect",
	"we anticipate",
	"we project",
	"next quarter",
	"full year",
	"fiscal year",
	"forecast",
}

// maxExcerpts caps the guidance passages returned per call.
const maxExcerpts = 5

// Adapter extracts transcripts and guidance passages.
type Adapter struct {
	client *Client
	logger arbor.ILogger
}

// Compile-time interface assertion
var _ interfaces.TranscriptAdapter = (*Adapter)(nil)

// NewAdapter creates a transcript adapter from provider config.
func NewAdapter(config *common.TranscriptsConfig, logger arbor.ILogger) *Adapter {
	opts := []ClientOption{WithLogger(logger)}
	if timeout := common.Duration(config.Timeout, DefaultTimeout); timeout > 0 {
		opts = append(opts, WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return NewAdapterWithClient(NewClient(config.BaseURL, config.APIKey, opts...), logger)
}

// NewAdapterWithClient wires an existing client, used by tests.
func NewAdapterWithClient(client *Client, logger arbor.ILogger) *Adapter {
	return &Adapter{client: client, logger: logger}
}

// toFetchError classifies a client failure for the evidence builder.
func toFetchError(field string, err error) *interfaces.FetchError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			return interfaces.NewFetchError(interfaces.FailureNotFound, adapterName, field, err)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return interfaces.NewFetchError(interfaces.FailureRateLimited, adapterName, field, err)
		case apiErr.StatusCode >= 500:
			return interfaces.NewFetchError(interfaces.FailureTimeout, adapterName, field, err)
		default:
			return interfaces.NewFetchError(interfaces.FailureNotFound, adapterName, field, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return interfaces.NewFetchError(interfaces.FailureTimeout, adapterName, field, err)
	}
	return interfaces.NewFetchError(interfaces.FailureTimeout, adapterName, field, err)
}

// latest fetches the most recent transcript at speaker detail.
func (a *Adapter) latest(ctx context.Context, ticker string) (*TranscriptData, string, error) {
	events, err := a.client.GetCompanyEvents(ctx, ticker)
	if err != nil {
		return nil, "", toFetchError("transcript", err)
	}
	if len(events) == 0 {
		return nil, "", interfaces.NewFetchError(interfaces.FailureNotFound, adapterName, "transcript",
			fmt.Errorf("no earnings events for %s", ticker))
	}

	event := events[0]
	transcript, err := a.client.GetTranscript(ctx, ticker, event.Year, event.Quarter, 2)
	if err != nil {
		return nil, "", toFetchError("transcript", err)
	}

	quarter := fmt.Sprintf("Q%d %d", event.Quarter, event.Year)
	return transcript, quarter, nil
}

// LatestTranscript returns the full text and quarter label of the most
// recent earnings call.
func (a *Adapter) LatestTranscript(ctx context.Context, ticker string) (string, string, error) {
	transcript, quarter, err := a.latest(ctx, ticker)
	if err != nil {
		return "", "", err
	}
	return flattenTranscript(transcript), quarter, nil
}

// GuidanceExcerpts returns the guidance-bearing passages of the most
// recent call, one keyword-window excerpt per hit, capped and in
// transcript order.
func (a *Adapter) GuidanceExcerpts(ctx context.Context, ticker string) ([]models.TranscriptExcerpt, error) {
	transcript, quarter, err := a.latest(ctx, ticker)
	if err != nil {
		return nil, err
	}

	callAt := parseCallDate(transcript.Date)

	var excerpts []models.TranscriptExcerpt
	if len(transcript.Speakers) > 0 {
		for _, speaker := range transcript.Speakers {
			for _, passage := range guidancePassages(speaker.Text) {
				excerpts = append(excerpts, models.TranscriptExcerpt{
					Ticker:  ticker,
					Quarter: quarter,
					Speaker: speaker.Name,
					Text:    passage,
					CallAt:  callAt,
				})
				if len(excerpts) == maxExcerpts {
					return excerpts, nil
				}
			}
		}
	} else {
		for _, passage := range guidancePassages(flattenTranscript(transcript)) {
			excerpts = append(excerpts, models.TranscriptExcerpt{
				Ticker:  ticker,
				Quarter: quarter,
				Text:    passage,
				CallAt:  callAt,
			})
			if len(excerpts) == maxExcerpts {
				break
			}
		}
	}
	return excerpts, nil
}

// flattenTranscript joins speaker turns, or falls back to the plain
// text fields of a level-1 response.
func flattenTranscript(transcript *TranscriptData) string {
	if len(transcript.Speakers) > 0 {
		var b strings.Builder
		for i, speaker := range transcript.Speakers {
			if i > 0 {
				b.WriteString("\n\n")
			}
			if speaker.Name != "" {
				b.WriteString(speaker.Name)
				b.WriteString(": ")
			}
			b.WriteString(speaker.Text)
		}
		return b.String()
	}
	if transcript.Text != "" {
		return transcript.Text
	}
	return transcript.Content
}

// guidancePassages returns one passage per keyword hit: the matching
// sentence with one sentence of context on each side. Overlapping
// windows merge into a single passage.
func guidancePassages(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	hits := make([]bool, len(sentences))
	for i, sentence := range sentences {
		lower := strings.ToLower(sentence)
		for _, kw := range guidanceKeywords {
			if strings.Contains(lower, kw) {
				hits[i] = true
				break
			}
		}
	}

	var passages []string
	for i := 0; i < len(sentences); i++ {
		if !hits[i] {
			continue
		}
		// Runs of consecutive hits collapse into one window
		last := i
		for last+1 < len(sentences) && hits[last+1] {
			last++
		}
		start := i - 1
		if start < 0 {
			start = 0
		}
		end := last + 1
		if end >= len(sentences) {
			end = len(sentences) - 1
		}
		passages = append(passages, strings.Join(sentences[start:end+1], " "))
		i = end
	}
	return passages
}

// splitSentences breaks text on terminal punctuation. Deterministic
// and crude on purpose; guidance windows never need linguistic
// precision.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func parseCallDate(value string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
