package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// discordMaxContent is the message length limit of Discord webhooks, in runes.
const discordMaxContent = 2000

var eventIcons = map[string]string{
	EventStart:    ":rocket:",
	EventSuccess:  ":white_check_mark:",
	EventFailure:  ":x:",
	EventComplete: ":checkered_flag:",
}

type discordPayload struct {
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
}

// DiscordNotifier posts events to a Discord webhook.
type DiscordNotifier struct {
	WebhookURL string
	Username   string
	Client     *http.Client
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		WebhookURL: webhookURL,
		Username:   "sharkbench",
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *DiscordNotifier) Notify(ctx context.Context, eventType, message string) error {
	if n.WebhookURL == "" {
		return errors.New("discord webhook URL is not configured")
	}
	if icon, ok := eventIcons[eventType]; ok {
		message = icon + " " + message
	}

	body, err := json.Marshal(discordPayload{Username: n.Username, Content: truncate(message, discordMaxContent)})
	if err != nil {
		return fmt.Errorf("failed to encode discord payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post to discord: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("discord webhook returned %s: %s", resp.Status, bytes.TrimSpace(detail))
	}
	return nil
}

// truncate cuts s to at most limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
