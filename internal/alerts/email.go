package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

// Attachment is a file carried along with an alert email, typically a
// QA report for a blocked article.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// EmailNotifier delivers alerts to the ops mailbox over SMTP.
type EmailNotifier struct {
	config common.SMTPConfig
	logger arbor.ILogger
}

// NewEmailNotifier creates an SMTP notifier from config. Missing
// credentials surface on send, so a partially configured mailer never
// blocks startup.
func NewEmailNotifier(cfg common.SMTPConfig, logger arbor.ILogger) *EmailNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &EmailNotifier{
		config: cfg,
		logger: logger,
	}
}

// Send delivers one alert, with any attachments, to every configured
// recipient in a single message.
func (n *EmailNotifier) Send(ctx context.Context, alert *interfaces.Alert, attachments []Attachment) error {
	if n.config.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if n.config.User == "" || n.config.Pass == "" {
		return fmt.Errorf("SMTP credentials not configured")
	}
	if n.config.From == "" {
		return fmt.Errorf("from email not configured")
	}
	if len(n.config.To) == 0 {
		return fmt.Errorf("no alert recipients configured")
	}

	msg, err := composeMessage(n.config.From, n.config.To, alert, attachments, time.Now())
	if err != nil {
		return fmt.Errorf("failed to compose alert email: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	auth := smtp.PlainAuth("", n.config.User, n.config.Pass, n.config.Host)

	if err := n.sendWithSTARTTLS(addr, auth, msg); err != nil {
		return err
	}

	if n.logger != nil {
		n.logger.Debug().
			Str("severity", string(alert.Severity)).
			Int("recipients", len(n.config.To)).
			Msg("Alert email delivered")
	}

	return nil
}

// composeMessage builds the full RFC 5322 message, multipart when
// attachments are present.
func composeMessage(from string, to []string, alert *interfaces.Alert, attachments []Attachment, at time.Time) ([]byte, error) {
	toAddrs := make([]*mail.Address, 0, len(to))
	for _, addr := range to {
		toAddrs = append(toAddrs, &mail.Address{Address: addr})
	}

	var h mail.Header
	h.SetDate(at)
	h.SetAddressList("From", []*mail.Address{{Name: "Aestimo", Address: from}})
	h.SetAddressList("To", toAddrs)
	h.SetSubject(fmt.Sprintf("[Aestimo %s] %s", strings.ToUpper(string(alert.Severity)), alert.Title))

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline part: %w", err)
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := io.WriteString(pw, renderAlertBody(alert, at)); err != nil {
		return nil, fmt.Errorf("failed to write text part: %w", err)
	}
	pw.Close()
	iw.Close()

	for _, att := range attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		var ah mail.AttachmentHeader
		ah.SetContentType(contentType, nil)
		ah.SetFilename(att.Filename)

		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment %s: %w", att.Filename, err)
		}
		if _, err := aw.Write(att.Content); err != nil {
			return nil, fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
		aw.Close()
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize message: %w", err)
	}

	return buf.Bytes(), nil
}

// renderAlertBody formats the plain text body. Field order matches the
// Slack attachment so both channels read the same.
func renderAlertBody(alert *interfaces.Alert, at time.Time) string {
	var b strings.Builder
	b.WriteString(alert.Message)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Severity: %s\n", alert.Severity))
	b.WriteString(fmt.Sprintf("Time: %s\n", at.UTC().Format("2006-01-02 15:04:05 UTC")))

	for _, f := range sortedFieldKeys(alert.Fields) {
		b.WriteString(fmt.Sprintf("%s: %s\n", f, alert.Fields[f]))
	}

	return b.String()
}

// sendWithSTARTTLS connects in the clear and upgrades, the standard
// path for port 587 submission.
func (n *EmailNotifier) sendWithSTARTTLS(addr string, auth smtp.Auth, msg []byte) error {
	host := strings.Split(addr, ":")[0]

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	tlsConfig := &tls.Config{
		ServerName: host,
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}

	if err := client.Mail(n.config.From); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}

	for _, to := range n.config.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}

	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}
