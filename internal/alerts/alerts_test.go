package alerts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/aestimo/internal/common"
	"github.com/ternarybob/aestimo/internal/interfaces"
)

func testAlert() *interfaces.Alert {
	return &interfaces.Alert{
		Severity: interfaces.AlertError,
		Title:    "QA gate blocked article",
		Message:  "deep-dive-nvda failed with 2 blocking errors",
		Fields: map[string]string{
			"article": "deep-dive-nvda",
			"date":    "2026-08-28",
		},
	}
}

func TestSlackNotifierSendsAttachmentPayload(t *testing.T) {
	var captured slackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, nil)
	require.NoError(t, n.Send(context.Background(), testAlert()))

	require.Len(t, captured.Attachments, 1)
	att := captured.Attachments[0]
	assert.Equal(t, "#dc3545", att.Color)
	assert.Equal(t, "[Aestimo] QA gate blocked article", att.Title)
	assert.Equal(t, "deep-dive-nvda failed with 2 blocking errors", att.Text)
	assert.Equal(t, "aestimo", att.Footer)

	// Severity and Time lead, custom fields follow in key order.
	require.Len(t, att.Fields, 4)
	assert.Equal(t, "Severity", att.Fields[0].Title)
	assert.Equal(t, "error", att.Fields[0].Value)
	assert.Equal(t, "Time", att.Fields[1].Title)
	assert.Equal(t, "article", att.Fields[2].Title)
	assert.Equal(t, "deep-dive-nvda", att.Fields[2].Value)
	assert.Equal(t, "date", att.Fields[3].Title)
}

func TestSlackNotifierSeverityColors(t *testing.T) {
	at := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	for severity, color := range map[interfaces.AlertSeverity]string{
		interfaces.AlertInfo:    "#17a2b8",
		interfaces.AlertWarning: "#ffc107",
		interfaces.AlertError:   "#dc3545",
	} {
		alert := testAlert()
		alert.Severity = severity
		payload := buildSlackPayload(alert, at)
		assert.Equal(t, color, payload.Attachments[0].Color)
	}

	// Unknown severity falls back to info.
	alert := testAlert()
	alert.Severity = "critical"
	payload := buildSlackPayload(alert, at)
	assert.Equal(t, "#17a2b8", payload.Attachments[0].Color)
}

func TestSlackNotifierReportsBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, nil)
	err := n.Send(context.Background(), testAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSlackFieldTruncation(t *testing.T) {
	alert := testAlert()
	alert.Fields = map[string]string{"details": strings.Repeat("x", 2000)}

	payload := buildSlackPayload(alert, time.Now())
	value := payload.Attachments[0].Fields[2].Value
	assert.Len(t, value, maxFieldLen)
	assert.True(t, strings.HasSuffix(value, "..."))
}

func TestComposeMessageWithAttachment(t *testing.T) {
	at := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	attachments := []Attachment{{
		Filename:    "qa-report.md",
		ContentType: "text/markdown",
		Content:     []byte("# QA Report: deep-dive-nvda\n"),
	}}

	msg, err := composeMessage("ops@example.com", []string{"oncall@example.com"}, testAlert(), attachments, at)
	require.NoError(t, err)

	text := string(msg)
	assert.Contains(t, text, "ops@example.com")
	assert.Contains(t, text, "oncall@example.com")
	assert.Contains(t, text, "Subject: [Aestimo ERROR] QA gate blocked article")
	assert.Contains(t, text, "multipart/mixed")
	assert.Contains(t, text, "qa-report.md")
}

func TestRenderAlertBodyFieldOrder(t *testing.T) {
	at := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	body := renderAlertBody(testAlert(), at)

	assert.Contains(t, body, "deep-dive-nvda failed with 2 blocking errors")
	assert.Contains(t, body, "Severity: error")
	assert.Contains(t, body, "Time: 2026-08-28 12:00:00 UTC")
	assert.Less(t, strings.Index(body, "article:"), strings.Index(body, "date:"))
}

func TestEmailNotifierRejectsMissingConfig(t *testing.T) {
	n := NewEmailNotifier(common.SMTPConfig{}, nil)
	err := n.Send(context.Background(), testAlert(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP host not configured")
}

func TestServiceSkipsUnconfiguredChannels(t *testing.T) {
	s := NewService(common.AlertsConfig{}, nil)
	assert.NoError(t, s.Send(context.Background(), testAlert()))
}

func TestServiceDeliversToSlack(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewService(common.AlertsConfig{SlackWebhookURL: server.URL}, nil)
	require.NoError(t, s.Send(context.Background(), testAlert()))
	assert.Equal(t, 1, calls)
}
