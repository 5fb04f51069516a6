package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender records deliveries and optionally fails every one.
type fakeSender struct {
	name  string
	fail  bool
	calls int
}

func (s *fakeSender) Send(ctx context.Context, title, message string) error {
	s.calls++
	if s.fail {
		return errors.New("boom")
	}
	return nil
}

func (s *fakeSender) Name() string { return s.name }

func TestNotifierFiltersUnsubscribedEvents(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{"startup", "wind_down"}, slog.Default())

	require.NoError(t, n.Notify(context.Background(), EventStartup, "up", "engine started"))
	require.NoError(t, n.Notify(context.Background(), EventAbnormalStop, "down", "not subscribed"))
	assert.Equal(t, 1, sender.calls, "only subscribed events reach the senders")
}

func TestNotifierEmptySubscriptionPassesEverything(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, slog.Default())

	for _, ev := range []Event{EventStartup, EventWindDown, EventAbnormalStop} {
		require.NoError(t, n.Notify(context.Background(), ev, "t", "m"))
	}
	assert.Equal(t, 3, sender.calls)
}

func TestNotifierCollectsSenderFailures(t *testing.T) {
	bad := &fakeSender{name: "bad", fail: true}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, slog.Default())

	err := n.Notify(context.Background(), EventWindDown, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, 1, good.calls, "a failed sender must not block the rest")
}

func TestNotifierNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, slog.Default())
	assert.NoError(t, n.Notify(context.Background(), EventStartup, "t", "m"))
}

func TestTelegramSenderPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("token", "chat-1")
	// Point the bot API call at the test server.
	s.client = srv.Client()
	s.client.Transport = rewriteHost(srv.URL)

	require.NoError(t, s.Send(context.Background(), "Engine started", "2 pairs"))
	assert.Equal(t, "chat-1", got["chat_id"])
	assert.Equal(t, "*Engine started*\n2 pairs", got["text"])
	assert.Equal(t, "Markdown", got["parse_mode"])
}

func TestDiscordSenderPayloadAndStatus(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Engine stopped", "wind-down"))
	assert.Equal(t, "**Engine stopped**\nwind-down", got["content"])
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

// rewriteHost redirects every request to the test server regardless of the
// URL the sender built.
func rewriteHost(target string) http.RoundTripper {
	return roundTripFunc(func(req *http.Request) (*http.Response, error) {
		redirected := *req
		u := *req.URL
		u.Scheme = "http"
		u.Host = target[len("http://"):]
		redirected.URL = &u
		return http.DefaultTransport.RoundTrip(&redirected)
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
