// Package slack delivers incident summaries to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/firstline/internal/directory"
	"github.com/linnemanlabs/firstline/internal/triage"
)

const (
	maxSummaryLen = 2900
	httpTimeout   = 10 * time.Second
)

// Notifier posts summaries to the recipient's webhook, falling back to a
// shared channel webhook.
type Notifier struct {
	defaultURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a Slack notifier. defaultURL may be empty, in which case
// recipients without their own webhook are skipped.
func New(defaultURL string, logger log.Logger) *Notifier {
	return &Notifier{
		defaultURL: defaultURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Notify posts summary for d addressed to the given contact. It is a no-op
// when neither the contact nor the notifier has a webhook.
func (n *Notifier) Notify(ctx context.Context, to directory.Contact, d *triage.Draft, summary string) error {
	url := to.SlackWebhookURL
	if url == "" {
		url = n.defaultURL
	}
	if url == "" {
		n.logger.Info(ctx, "no slack webhook for recipient, skipping", "recipient", to.Key)
		return nil
	}

	body, err := json.Marshal(buildMessage(to, d, summary))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhook URLs come from the operator's directory, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(to directory.Contact, d *triage.Draft, summary string) map[string]any {
	return map[string]any{
		"text": headerText(d),
		"blocks": []map[string]any{
			headerBlock(d),
			{"type": "divider"},
			fieldsBlock(to, d),
			{"type": "divider"},
			summaryBlock(summary),
			contextBlock(d),
		},
	}
}

func headerText(d *triage.Draft) string {
	sev := d.Severity()
	return fmt.Sprintf("%s Incidente %s: %s", severityEmoji(sev), sev.Label(), triage.SymptomLabel(d.System, d.Symptom))
}

func headerBlock(d *triage.Draft) map[string]any {
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": headerText(d),
		},
	}
}

func fieldsBlock(to directory.Contact, d *triage.Draft) map[string]any {
	fields := []map[string]any{
		{"type": "mrkdwn", "text": fmt.Sprintf("*Severidad:* %s", d.Severity().Label())},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Sistema:* %s", triage.SystemLabel(d.System))},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Ambiente:* %s", triage.EnvironmentLabel(d.Environment))},
		{"type": "mrkdwn", "text": fmt.Sprintf("*Para:* %s", to.Name)},
	}
	if d.Node != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Nodo:* %s", d.Node)})
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func summaryBlock(summary string) map[string]any {
	return map[string]any{
		"type": "section",
		"text": map[string]any{
			"type": "mrkdwn",
			"text": "```" + truncate(summary, maxSummaryLen) + "```",
		},
	}
}

func contextBlock(d *triage.Draft) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("firstline • incidente %s • %s", d.ID, d.DetectedAt.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func severityEmoji(sev triage.Severity) string {
	if sev == triage.SeverityP1 {
		return "\U0001f534" // red circle
	}
	return "\U0001f7e1" // yellow circle
}

// truncate cuts s to at most limit runes.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
