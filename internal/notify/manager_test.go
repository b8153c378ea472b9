package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/slack-go/slack"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type postedMessage struct {
	channel  string
	text     string
	threadTS string
}

// slackAPI serves chat.postMessage and records every call.
func slackAPI(t *testing.T) (*httptest.Server, func() []postedMessage) {
	t.Helper()
	var (
		mu    sync.Mutex
		posts []postedMessage
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())

		mu.Lock()
		posts = append(posts, postedMessage{
			channel:  r.FormValue("channel"),
			text:     r.FormValue("text"),
			threadTS: r.FormValue("thread_ts"),
		})
		n := len(posts)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"ok":true,"channel":"C1","ts":"1700000000.00000%d"}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []postedMessage {
		mu.Lock()
		defer mu.Unlock()
		return append([]postedMessage(nil), posts...)
	}
}

func TestManager_SlackThreadsUnderStart(t *testing.T) {
	srv, posts := slackAPI(t)
	m := NewManager(Options{SlackToken: "xoxb-test", SlackChannel: "#bench", SlackAPIURL: srv.URL + "/"})
	require.True(t, m.Enabled())

	ctx := context.Background()
	require.NoError(t, m.Notify(ctx, EventStart, "web benchmark started"))
	require.NoError(t, m.Notify(ctx, EventSuccess, "go/std done"))
	require.NoError(t, m.Notify(ctx, EventComplete, "all done"))

	got := posts()
	require.Len(t, got, 3)
	assert.Equal(t, postedMessage{channel: "#bench", text: "web benchmark started"}, got[0])
	assert.Equal(t, "1700000000.000001", got[1].threadTS)
	assert.Equal(t, "1700000000.000001", got[2].threadTS)
	assert.Equal(t, "all done", got[2].text)
}

func TestManager_DisabledEvent(t *testing.T) {
	srv, posts := slackAPI(t)
	m := NewManager(Options{
		SlackToken:  "xoxb-test",
		SlackAPIURL: srv.URL + "/",
		Events:      map[string]bool{EventSuccess: false},
	})

	require.NoError(t, m.Notify(context.Background(), EventSuccess, "skipped"))
	require.NoError(t, m.Notify(context.Background(), EventFailure, "sent"))

	got := posts()
	require.Len(t, got, 1)
	assert.Equal(t, "sent", got[0].text)
	assert.Equal(t, defaultChannel, got[0].channel)
}

type mockSlackPoster struct {
	err error
}

func (m *mockSlackPoster) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	return "", "", m.err
}

func TestManager_ProviderErrorsAreJoined(t *testing.T) {
	discord := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer discord.Close()

	m := NewManager(Options{DiscordWebhook: discord.URL})
	m.slack = &mockSlackPoster{err: errors.New("channel_not_found")}

	err := m.Notify(context.Background(), EventFailure, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: channel_not_found")
	assert.NotContains(t, err.Error(), "discord")
}

func TestManager_SlackWebhook(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
	}))
	defer srv.Close()

	m := NewManager(Options{SlackWebhook: srv.URL})
	require.NoError(t, m.Notify(context.Background(), EventComplete, "results written"))
	assert.Equal(t, "results written", body["text"])
}

func TestManager_NoProviders(t *testing.T) {
	m := NewManager(Options{})
	assert.False(t, m.Enabled())
	assert.NoError(t, m.Notify(context.Background(), EventStart, "ignored"))
}

func TestOptionsFromViper(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	t.Setenv("SLACK_BOT_USER_TOKEN", "xoxb-env")

	opts := OptionsFromViper()
	assert.Empty(t, opts.SlackToken)
	assert.True(t, opts.Events[EventStart])

	viper.Set("notifications.slack.enabled", true)
	viper.Set("notifications.slack.channel", "#perf")
	viper.Set("notifications.events.on_success", false)
	viper.Set("notifications.discord.enabled", true)
	viper.Set("notifications.discord.webhook_url", "https://discord.example/webhook")

	opts = OptionsFromViper()
	assert.Equal(t, "xoxb-env", opts.SlackToken)
	assert.Equal(t, "#perf", opts.SlackChannel)
	assert.False(t, opts.Events[EventSuccess])
	assert.True(t, opts.Events[EventFailure])
	assert.Equal(t, "https://discord.example/webhook", opts.DiscordWebhook)
}
