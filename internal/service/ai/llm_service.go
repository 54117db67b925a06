package ai

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/gemini-chat/backend/internal/config"
)

// Service is the remote completion client used by the session controller.
type Service struct {
	chatModel model.BaseChatModel
	template  prompt.ChatTemplate
	timeout   time.Duration
}

// NewService creates the chat model selected by cfg.Provider and wraps it.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat model")
	}
	return NewServiceWithModel(chatModel, cfg.Timeout), nil
}

// NewServiceWithModel wraps an existing chat model. A non-positive timeout
// leaves the request bounded only by the caller's context.
func NewServiceWithModel(chatModel model.BaseChatModel, timeout time.Duration) *Service {
	return &Service{
		chatModel: chatModel,
		template: prompt.FromMessages(
			schema.FString,
			schema.UserMessage("{query}"),
		),
		timeout: timeout,
	}
}

// Close releases the chat model's client when it holds one.
func (s *Service) Close() error {
	if closer, ok := s.chatModel.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// NewChatModel builds the provider chat model with the fixed generation parameters.
func NewChatModel(ctx context.Context, cfg config.AIConfig) (model.BaseChatModel, error) {
	if !cfg.Enabled() {
		return nil, errors.Errorf("credentials or model missing for provider %q", cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiChatModel(ctx, GeminiConfig{
			APIKey:          cfg.Gemini.APIKey,
			Model:           cfg.Gemini.Model,
			BaseURL:         cfg.Gemini.BaseURL,
			Temperature:     cfg.Temperature,
			TopK:            cfg.TopK,
			TopP:            cfg.TopP,
			MaxOutputTokens: cfg.MaxOutputTokens,
		})
	case config.ProviderArk:
		temperature := cfg.Temperature
		topP := cfg.TopP
		maxTokens := cfg.MaxOutputTokens
		retries := 0
		return ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:     cfg.Ark.BaseURL,
			Region:      cfg.Ark.Region,
			APIKey:      cfg.Ark.APIKey,
			AccessKey:   cfg.Ark.AccessKey,
			SecretKey:   cfg.Ark.SecretKey,
			Model:       cfg.Ark.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
			TopP:        &topP,
			RetryTimes:  &retries,
		})
	default:
		return nil, errors.Errorf("unsupported provider %q", cfg.Provider)
	}
}

// Complete sends text as the whole conversational context and returns the
// reply verbatim. Failures are always *CompletionError.
func (s *Service) Complete(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", transportFailure(0, errors.New("prompt is required"))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	messages, err := s.template.Format(ctx, map[string]any{"query": text})
	if err != nil {
		return "", transportFailure(0, errors.Wrap(err, "failed to render prompt"))
	}

	started := time.Now()
	response, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		var ce *CompletionError
		if errors.As(err, &ce) {
			return "", ce
		}
		return "", transportFailure(0, err)
	}

	if response == nil || response.Content == "" {
		return "", emptyResponse("model returned no content")
	}

	log.Info().
		Str("component", "ai").
		Int("length", len(response.Content)).
		Dur("elapsed", time.Since(started)).
		Msg("completion finished")
	return response.Content, nil
}
