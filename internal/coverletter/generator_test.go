package coverletter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coverbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newGenerator(p domain.Provider) *Generator {
	return New(Config{Provider: p, Logger: testLogger()})
}

func TestBuildMessages_WithoutResume(t *testing.T) {
	msgs := BuildMessages("Build a CLI", "")
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.Message{Role: "system", Content: "You are a helpful assistant."}, msgs[0])
	assert.Equal(t, domain.Message{Role: "user", Content: "Write a cover letter for the following project proposal: Build a CLI"}, msgs[1])
}

func TestBuildMessages_WithResume(t *testing.T) {
	msgs := BuildMessages("Build a CLI", "Ten years of Go.")
	require.Len(t, msgs, 3)
	assert.Equal(t, "system", msgs[1].Role)
	assert.Equal(t, "Here is the applicant's resume. Use it to tailor the cover letter:\n\nTen years of Go.", msgs[1].Content)
	assert.Equal(t, "user", msgs[2].Role)
}

func TestGenerate_ReturnsTrimmedFirstChoice(t *testing.T) {
	p := &domain.MockProvider{}
	p.On("Chat", mock.Anything, mock.MatchedBy(func(req domain.ChatRequest) bool {
		return req.MaxTokens == 250 && len(req.Messages) == 2
	})).Return(&domain.ChatResponse{Choices: []string{"  Dear client,\n", "second"}}, nil).Once()

	c := newGenerator(p).Generate(context.Background(), "proposal", "")
	assert.Equal(t, domain.Completion{Text: "Dear client,"}, c)
	assert.False(t, c.IsFallback())
	p.AssertExpectations(t)
}

func TestGenerate_ResumeRaisesTokenLimitAndIsEmbedded(t *testing.T) {
	p := &domain.MockProvider{}
	var got domain.ChatRequest
	p.On("Chat", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(domain.ChatRequest) }).
		Return(&domain.ChatResponse{Choices: []string{"ok"}}, nil).Once()

	newGenerator(p).Generate(context.Background(), "proposal", "X-resume-marker")

	assert.Equal(t, 500, got.MaxTokens)
	require.Len(t, got.Messages, 3)
	assert.Contains(t, got.Messages[1].Content, "X-resume-marker")
}

func TestGenerate_ConfiguredLimitsAndModel(t *testing.T) {
	p := &domain.MockProvider{}
	p.On("Chat", mock.Anything, mock.MatchedBy(func(req domain.ChatRequest) bool {
		return req.Model == "gpt-4o-mini" && req.MaxTokens == 100
	})).Return(&domain.ChatResponse{Choices: []string{"ok"}}, nil).Once()

	g := New(Config{Provider: p, Model: "gpt-4o-mini", MaxTokens: 100, MaxTokensWithResume: 200, Logger: testLogger()})
	g.Generate(context.Background(), "proposal", "")
	p.AssertExpectations(t)
}

func TestGenerate_NoChoices(t *testing.T) {
	p := &domain.MockProvider{}
	p.On("Chat", mock.Anything, mock.Anything).Return(&domain.ChatResponse{}, nil).Once()

	c := newGenerator(p).Generate(context.Background(), "proposal", "")
	assert.Equal(t, NoChoicesText, c.Text)
	assert.Equal(t, domain.FallbackNoChoices, c.Fallback)
}

func TestGenerate_ProviderErrorFallback(t *testing.T) {
	p := &domain.MockProvider{}
	perr := &domain.ProviderError{Provider: "openai", StatusCode: 429, Code: "rate_limit_exceeded", Message: "slow down"}
	p.On("Chat", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("chat: %w", perr)).Once()

	c := newGenerator(p).Generate(context.Background(), "proposal", "")
	assert.Equal(t, "Sorry, there was an error with the AI provider.", c.Text)
	assert.Equal(t, domain.FallbackProviderError, c.Fallback)
	assert.NotEqual(t, UnexpectedText, c.Text)
}

func TestGenerate_OtherErrorFallback(t *testing.T) {
	p := &domain.MockProvider{}
	p.On("Chat", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset")).Once()

	c := newGenerator(p).Generate(context.Background(), "proposal", "")
	assert.Equal(t, "Sorry, there was an unexpected error.", c.Text)
	assert.Equal(t, domain.FallbackUnexpected, c.Fallback)
}

func TestGenerate_NilResponseIsNoChoices(t *testing.T) {
	p := &domain.MockProvider{}
	p.On("Chat", mock.Anything, mock.Anything).Return(nil, nil).Once()

	c := newGenerator(p).Generate(context.Background(), "proposal", "")
	assert.Equal(t, domain.FallbackNoChoices, c.Fallback)
}
