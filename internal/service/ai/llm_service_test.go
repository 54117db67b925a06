package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/gemini-chat/backend/internal/config"
)

type fakeChatModel struct {
	reply *schema.Message
	err   error
	input []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	return f.reply, f.err
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func TestCompleteSendsOnlyLatestTurn(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage("pong", nil)}
	svc := NewServiceWithModel(fake, 0)

	reply, err := svc.Complete(context.Background(), "ping {not a placeholder}")
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)

	require.Len(t, fake.input, 1)
	assert.Equal(t, schema.User, fake.input[0].Role)
	assert.Equal(t, "ping {not a placeholder}", fake.input[0].Content)
}

func TestCompleteWrapsForeignErrorsAsTransportFailure(t *testing.T) {
	svc := NewServiceWithModel(&fakeChatModel{err: errors.New("connection reset")}, 0)

	_, err := svc.Complete(context.Background(), "ping")

	var ce *CompletionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindTransportFailure, ce.Kind)
	assert.Contains(t, ce.Error(), "connection reset")
}

func TestCompleteNilOrEmptyReplyIsEmptyResponse(t *testing.T) {
	for _, reply := range []*schema.Message{nil, schema.AssistantMessage("", nil)} {
		svc := NewServiceWithModel(&fakeChatModel{reply: reply}, 0)
		_, err := svc.Complete(context.Background(), "ping")
		assert.True(t, IsEmptyResponse(err))
	}
}

func TestCompleteRejectsBlankPrompt(t *testing.T) {
	fake := &fakeChatModel{reply: schema.AssistantMessage("pong", nil)}
	svc := NewServiceWithModel(fake, 0)

	_, err := svc.Complete(context.Background(), "   ")
	assert.Error(t, err)
	assert.Nil(t, fake.input, "model must not be called")
}

func TestNewChatModelNeedsCredentials(t *testing.T) {
	_, err := NewChatModel(context.Background(), config.AIConfig{Provider: config.ProviderGemini})
	assert.Error(t, err)
}

func TestNewChatModelBuildsGemini(t *testing.T) {
	m, err := NewChatModel(context.Background(), config.AIConfig{
		Provider: config.ProviderGemini,
		Gemini:   config.GeminiConfig{APIKey: "k", Model: "gemini-1.5-flash", BaseURL: config.DefaultGeminiBaseURL},
	})
	require.NoError(t, err)
	assert.IsType(t, &GeminiChatModel{}, m)
	require.NoError(t, m.(*GeminiChatModel).Close())
}

func TestNewChatModelBuildsArk(t *testing.T) {
	m, err := NewChatModel(context.Background(), config.AIConfig{
		Provider:        config.ProviderArk,
		Ark:             config.ArkConfig{APIKey: "k", Model: "doubao-pro", BaseURL: "http://localhost", Region: "cn-beijing"},
		Temperature:     0.9,
		TopP:            1,
		MaxOutputTokens: 2048,
	})
	require.NoError(t, err)
	assert.IsType(t, &ark.ChatModel{}, m)

	svc := NewServiceWithModel(m, 0)
	assert.NoError(t, svc.Close())
}

func TestNewChatModelArkNeedsCredentials(t *testing.T) {
	tests := map[string]config.ArkConfig{
		"no credentials":  {Model: "doubao-pro"},
		"no model":        {APIKey: "k"},
		"half access key": {AccessKey: "ak", Model: "doubao-pro"},
	}
	for name, arkCfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewChatModel(context.Background(), config.AIConfig{Provider: config.ProviderArk, Ark: arkCfg})
			assert.Error(t, err)
		})
	}
}

func TestNewChatModelRejectsUnknownProvider(t *testing.T) {
	_, err := NewChatModel(context.Background(), config.AIConfig{Provider: "openai"})
	assert.Error(t, err)
}
