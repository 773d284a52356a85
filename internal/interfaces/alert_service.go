package interfaces

import "context"

// AlertSeverity grades an operational notification.
type AlertSeverity string

const (
	AlertInfo    AlertSeverity = "info"
	AlertWarning AlertSeverity = "warning"
	AlertError   AlertSeverity = "error"
)

// Alert is one operational notification about a run.
type Alert struct {
	Severity AlertSeverity
	Title    string
	Message  string
	Fields   map[string]string // e.g. article slug, QA error codes
}

// AlertService delivers operational notifications (Slack webhook, ops
// mailbox). Delivery failures are logged, never fatal to the run.
type AlertService interface {
	// Send delivers the alert to every configured channel.
	Send(ctx context.Context, alert *Alert) error
}
