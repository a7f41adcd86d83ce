package channel

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSlackClient(t *testing.T, handler http.HandlerFunc) *SlackClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSlackClient(SlackClientConfig{BotToken: "xoxb-test", APIURL: srv.URL + "/", Logger: testLogger()})
}

func TestSlackClientPostText(t *testing.T) {
	var channel, text string
	c := newTestSlackClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		channel = r.PostForm.Get("channel")
		text = r.PostForm.Get("text")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true,"channel":"C08383AU6HZ","ts":"1700000000.000100"}`)
	})

	err := c.PostText(context.Background(), "C08383AU6HZ", "Cover Letter for Proposal: \nHello")
	require.NoError(t, err)
	assert.Equal(t, "C08383AU6HZ", channel)
	assert.Equal(t, "Cover Letter for Proposal: \nHello", text)
}

func TestSlackClientPostText_APIError(t *testing.T) {
	c := newTestSlackClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":false,"error":"channel_not_found"}`)
	})

	err := c.PostText(context.Background(), "CBAD", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}

func TestSlackClientIdentity(t *testing.T) {
	c := newTestSlackClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth.test", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"ok":true,"url":"https://acme.slack.com/","team":"Acme","user":"coverbot","team_id":"T1","user_id":"U1"}`)
	})

	id, err := c.Identity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "U1", id.UserID)
	assert.Equal(t, "Acme", id.Team)
}
