// Package notify posts benchmark progress to Slack and Discord.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/slack-go/slack"
	"github.com/spf13/viper"
)

// Event types
const (
	EventStart    = "on_start"
	EventSuccess  = "on_success"
	EventFailure  = "on_failure"
	EventComplete = "on_complete"
)

const defaultChannel = "#benchmarks"

// SlackPoster is the subset of *slack.Client the manager uses.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Options configures a Manager. Providers with empty credentials stay disabled.
type Options struct {
	SlackToken   string
	SlackWebhook string
	SlackChannel string
	// SlackAPIURL overrides the Slack Web API endpoint.
	SlackAPIURL    string
	DiscordWebhook string
	// Events lists enabled event types. Nil enables all.
	Events map[string]bool
}

// OptionsFromViper reads notifications.* keys. The bot token comes from
// SLACK_BOT_USER_TOKEN.
func OptionsFromViper() Options {
	opts := Options{Events: map[string]bool{}}
	if viper.GetBool("notifications.slack.enabled") {
		opts.SlackToken = os.Getenv("SLACK_BOT_USER_TOKEN")
		opts.SlackWebhook = viper.GetString("notifications.slack.webhook_url")
		opts.SlackChannel = viper.GetString("notifications.slack.channel")
	}
	if viper.GetBool("notifications.discord.enabled") {
		opts.DiscordWebhook = viper.GetString("notifications.discord.webhook_url")
	}
	for _, event := range []string{EventStart, EventSuccess, EventFailure, EventComplete} {
		key := "notifications.events." + event
		opts.Events[event] = !viper.IsSet(key) || viper.GetBool(key)
	}
	return opts
}

// Manager fans a notification out to every configured provider. With a bot
// token, messages after EventStart are threaded under the start message.
type Manager struct {
	slack        SlackPoster
	slackWebhook string
	channelID    string
	discord      *DiscordNotifier
	events       map[string]bool

	mu       sync.Mutex
	threadTS string
}

// NewManager creates a new Notification Manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		slackWebhook: opts.SlackWebhook,
		channelID:    opts.SlackChannel,
		events:       opts.Events,
	}
	if m.channelID == "" {
		m.channelID = defaultChannel
	}
	if opts.SlackToken != "" {
		var clientOpts []slack.Option
		if opts.SlackAPIURL != "" {
			clientOpts = append(clientOpts, slack.OptionAPIURL(opts.SlackAPIURL))
		}
		m.slack = slack.New(opts.SlackToken, clientOpts...)
	}
	if opts.DiscordWebhook != "" {
		m.discord = NewDiscordNotifier(opts.DiscordWebhook)
	}
	return m
}

// Enabled reports whether any provider is configured.
func (m *Manager) Enabled() bool {
	return m.slack != nil || m.slackWebhook != "" || m.discord != nil
}

func (m *Manager) eventEnabled(eventType string) bool {
	if m.events == nil {
		return true
	}
	enabled, ok := m.events[eventType]
	return !ok || enabled
}

// Notify sends message to all providers. Provider failures are joined; a
// failing provider does not stop the others.
func (m *Manager) Notify(ctx context.Context, eventType, message string) error {
	if !m.Enabled() || !m.eventEnabled(eventType) {
		return nil
	}
	slog.Debug("sending notification", "event", eventType)

	var errs []error
	if m.slack != nil {
		if err := m.notifySlack(ctx, eventType, message); err != nil {
			errs = append(errs, fmt.Errorf("slack: %w", err))
		}
	} else if m.slackWebhook != "" {
		if err := slack.PostWebhookContext(ctx, m.slackWebhook, &slack.WebhookMessage{Text: message}); err != nil {
			errs = append(errs, fmt.Errorf("slack webhook: %w", err))
		}
	}
	if m.discord != nil {
		if err := m.discord.Notify(ctx, eventType, message); err != nil {
			errs = append(errs, fmt.Errorf("discord: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) notifySlack(ctx context.Context, eventType, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	opts := []slack.MsgOption{slack.MsgOptionText(message, false)}
	if m.threadTS != "" && eventType != EventStart {
		opts = append(opts, slack.MsgOptionTS(m.threadTS))
	}

	_, ts, err := m.slack.PostMessageContext(ctx, m.channelID, opts...)
	if err != nil {
		return err
	}
	if eventType == EventStart {
		m.threadTS = ts
	}
	return nil
}
