package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coverbot/internal/coverletter"
	"coverbot/internal/domain"
	"coverbot/internal/relay"
	"coverbot/internal/resume"
)

const (
	testSource = "C082W4UDLJJ"
	testResult = "C08383AU6HZ"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type webhookFixture struct {
	provider *domain.MockProvider
	poster   *domain.MockPoster
	store    *resume.Store
	handler  http.Handler
}

func newWebhookFixture(t *testing.T, secret string) *webhookFixture {
	t.Helper()
	logger := testLogger()
	f := &webhookFixture{
		provider: &domain.MockProvider{},
		poster:   &domain.MockPoster{},
		store:    resume.New(""),
	}
	r := relay.New(relay.Config{
		Generator:     coverletter.New(coverletter.Config{Provider: f.provider, Logger: logger}),
		Resume:        f.store,
		Publisher:     relay.NewPublisher(f.poster, logger),
		SourceChannel: testSource,
		ResultChannel: testResult,
		Logger:        logger,
	})
	f.handler = NewWebhook(WebhookConfig{
		Events:        r,
		Resume:        f.store,
		SigningSecret: secret,
		MetricsPath:   "/metrics",
		Logger:        logger,
	}).Handler()
	return f
}

func (f *webhookFixture) post(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestEvents_URLVerificationEchoesChallenge(t *testing.T) {
	f := newWebhookFixture(t, "")

	for _, challenge := range []string{"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P", "x", ""} {
		rec := f.post("/slack/events", fmt.Sprintf(`{"type":"url_verification","token":"t","challenge":%q}`, challenge))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var got map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, map[string]string{"challenge": challenge}, got)
	}
}

func TestEvents_URLVerificationWithoutChallenge(t *testing.T) {
	f := newWebhookFixture(t, "")
	rec := f.post("/slack/events", `{"type":"url_verification"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"challenge":""}`, rec.Body.String())
}

func TestEvents_URLVerificationEchoesNonStringChallenge(t *testing.T) {
	f := newWebhookFixture(t, "")

	for _, challenge := range []string{`12345`, `null`, `{"nested":[1,true]}`} {
		rec := f.post("/slack/events", `{"type":"url_verification","challenge":`+challenge+`}`)
		require.Equal(t, http.StatusOK, rec.Code, challenge)
		assert.JSONEq(t, `{"challenge":`+challenge+`}`, rec.Body.String(), challenge)
	}
}

func TestEvents_NonStringTypeStillRelays(t *testing.T) {
	f := newWebhookFixture(t, "")
	f.provider.On("Chat", mock.Anything, mock.Anything).
		Return(&domain.ChatResponse{Choices: []string{"ok"}}, nil).Once()
	f.poster.On("PostText", mock.Anything, testResult, mock.Anything).Return(nil).Once()

	rec := f.post("/slack/events", `{"type":7,"event":{"channel":"C082W4UDLJJ","user":"U1","text":"p"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Event received", rec.Body.String())
	f.provider.AssertNumberOfCalls(t, "Chat", 1)
	f.poster.AssertNumberOfCalls(t, "PostText", 1)
}

func TestEvents_NullUserWithoutBotIDIsSkipped(t *testing.T) {
	f := newWebhookFixture(t, "")

	rec := f.post("/slack/events", `{"event":{"channel":"C082W4UDLJJ","user":null,"text":"p"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Event received", rec.Body.String())
	f.provider.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
	f.poster.AssertNotCalled(t, "PostText", mock.Anything, mock.Anything, mock.Anything)
}

func TestEvents_SourceChannelGeneratesAndPublishes(t *testing.T) {
	f := newWebhookFixture(t, "")
	f.provider.On("Chat", mock.Anything, mock.Anything).
		Return(&domain.ChatResponse{Choices: []string{"Dear team,"}}, nil).Once()
	f.poster.On("PostText", mock.Anything, testResult, "Cover Letter for Proposal: \nDear team,").
		Return(nil).Once()

	rec := f.post("/slack/events", `{"type":"event_callback","event":{"type":"message","channel":"C082W4UDLJJ","user":"U1","text":"Need a Go developer"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Event received", rec.Body.String())
	f.provider.AssertExpectations(t)
	f.poster.AssertNumberOfCalls(t, "PostText", 1)
}

func TestEvents_ProviderFailureStillPublishesFallback(t *testing.T) {
	f := newWebhookFixture(t, "")
	f.provider.On("Chat", mock.Anything, mock.Anything).
		Return(nil, &domain.ProviderError{Provider: "openai", StatusCode: 401, Message: "bad key"}).Once()
	f.poster.On("PostText", mock.Anything, testResult, relay.FormatResult(coverletter.ProviderErrorText)).
		Return(nil).Once()

	rec := f.post("/slack/events", `{"event":{"channel":"C082W4UDLJJ","user":"U1","text":"p"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Event received", rec.Body.String())
	f.poster.AssertExpectations(t)
}

func TestEvents_PublishFailureStillAcknowledged(t *testing.T) {
	f := newWebhookFixture(t, "")
	f.provider.On("Chat", mock.Anything, mock.Anything).
		Return(&domain.ChatResponse{Choices: []string{"ok"}}, nil).Once()
	f.poster.On("PostText", mock.Anything, testResult, mock.Anything).
		Return(fmt.Errorf("not_in_channel")).Once()

	rec := f.post("/slack/events", `{"event":{"channel":"C082W4UDLJJ","user":"U1","text":"p"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Event received", rec.Body.String())
}

func TestEvents_OtherChannelIsIgnored(t *testing.T) {
	f := newWebhookFixture(t, "")

	rec := f.post("/slack/events", `{"event":{"channel":"CRANDOM","user":"U1","text":"hello"}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Event received", rec.Body.String())
	f.provider.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
	f.poster.AssertNotCalled(t, "PostText", mock.Anything, mock.Anything, mock.Anything)
}

func TestEvents_MalformedBodiesAreAcknowledged(t *testing.T) {
	f := newWebhookFixture(t, "")

	for _, body := range []string{
		`not json`,
		`[1,2,3]`,
		`{}`,
		`{"event":"not an object"}`,
		`{"event":null}`,
		`{"type":"event_callback"}`,
	} {
		rec := f.post("/slack/events", body)
		assert.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, "Event received", rec.Body.String(), body)
	}
	f.provider.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestEvents_CallerCancellationDoesNotAbortRelay(t *testing.T) {
	f := newWebhookFixture(t, "")
	f.provider.On("Chat", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			assert.NoError(t, ctx.Err())
		}).
		Return(&domain.ChatResponse{Choices: []string{"ok"}}, nil).Once()
	f.poster.On("PostText", mock.Anything, testResult, mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/slack/events",
		strings.NewReader(`{"event":{"channel":"C082W4UDLJJ","user":"U1","text":"p"}}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	f.poster.AssertExpectations(t)
}

func TestEvents_MethodNotAllowed(t *testing.T) {
	f := newWebhookFixture(t, "")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slack/events", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestEvents_RequestIDHeader(t *testing.T) {
	f := newWebhookFixture(t, "")
	rec := f.post("/slack/events", `{}`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func signSlack(secret, ts, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + body))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestEvents_SigningSecret(t *testing.T) {
	const secret = "8f742231b10e8888abcd99yyyzzz85a5"
	f := newWebhookFixture(t, secret)
	body := `{"type":"url_verification","challenge":"abc"}`
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	t.Run("valid signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
		req.Header.Set("X-Slack-Request-Timestamp", ts)
		req.Header.Set("X-Slack-Signature", signSlack(secret, ts, body))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"challenge":"abc"}`, rec.Body.String())
	})

	t.Run("wrong signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
		req.Header.Set("X-Slack-Request-Timestamp", ts)
		req.Header.Set("X-Slack-Signature", signSlack("other-secret", ts, body))
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing headers", func(t *testing.T) {
		rec := f.post("/slack/events", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestUpdateResume_Success(t *testing.T) {
	f := newWebhookFixture(t, "")

	rec := f.post("/update-resume", `{"resume":"Senior Go engineer"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Resume updated successfully"}`, rec.Body.String())
	assert.Equal(t, "Senior Go engineer", f.store.Get())
}

func TestUpdateResume_Rejected(t *testing.T) {
	for _, body := range []string{``, `{}`, `{"resume":""}`, `{"resume":42}`, `not json`} {
		f := newWebhookFixture(t, "")
		before := f.store.Get()

		rec := f.post("/update-resume", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"No resume provided"}`, rec.Body.String(), body)
		assert.Equal(t, before, f.store.Get(), body)
	}
}

func TestUpdateResume_ThenGenerationEmbedsResume(t *testing.T) {
	f := newWebhookFixture(t, "")

	rec := f.post("/update-resume", `{"resume":"RESUME-MARKER-X"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.ChatRequest
	f.provider.On("Chat", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(domain.ChatRequest) }).
		Return(&domain.ChatResponse{Choices: []string{"ok"}}, nil).Once()
	f.poster.On("PostText", mock.Anything, testResult, mock.Anything).Return(nil).Once()

	f.post("/slack/events", `{"event":{"channel":"C082W4UDLJJ","user":"U1","text":"proposal"}}`)

	var found bool
	for _, m := range got.Messages {
		if strings.Contains(m.Content, "RESUME-MARKER-X") {
			found = true
		}
	}
	assert.True(t, found, "resume text should appear in the prompt")
}

func TestHealthAndMetrics(t *testing.T) {
	f := newWebhookFixture(t, "")

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "coverbot_")
}

func TestWebhookStart_ShutsDownOnCancel(t *testing.T) {
	w := NewWebhook(WebhookConfig{Host: "127.0.0.1", Port: 0, Logger: testLogger()})
	w.addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook did not shut down")
	}
}

func TestCORS_Preflight(t *testing.T) {
	w := NewWebhook(WebhookConfig{
		AllowedOrigins: []string{"https://dash.example.com"},
		Resume:         resume.New(""),
		Logger:         testLogger(),
	})

	req := httptest.NewRequest(http.MethodOptions, "/update-resume", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	w.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_DisabledByDefault(t *testing.T) {
	f := newWebhookFixture(t, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
