package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"certtrader/internal/model"
)

// WebhookNotifier posts structured run reports to a webhook. It never
// blocks core logic beyond the HTTP call itself and is disabled when no
// URL is configured.
type WebhookNotifier struct {
	webhookURL string
	enabled    bool
}

// NewWebhookNotifier creates a notifier; an empty URL disables it.
func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{webhookURL: webhookURL, enabled: webhookURL != ""}
}

// SendRunSummary posts the end-of-run report.
func (n *WebhookNotifier) SendRunSummary(s model.RunSummary) error {
	message := fmt.Sprintf(
		"balance %.2f -> %.2f | budget %.2f | errors %d",
		s.BalanceBefore, s.BalanceAfter, s.Budget, s.ErrorCount)
	return n.send("Run "+s.RunID+" finished", message, 0x2ecc71)
}

// SendCrashReport posts a crash notification with the stack trace.
func (n *WebhookNotifier) SendCrashReport(runID string, panicValue any, stack []byte) error {
	message := fmt.Sprintf("panic: %v\n```%s```", panicValue, truncate(string(stack), 1500))
	return n.send("Run "+runID+" crashed", message, 0xe74c3c)
}

func (n *WebhookNotifier) send(title, message string, color int) error {
	if !n.enabled {
		return nil
	}
	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"timestamp":   time.Now().Format(time.RFC3339),
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(n.webhookURL, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
