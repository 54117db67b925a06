package ai

import (
	"context"
	"math"
	"net/http"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiConfig configures a GeminiChatModel. BaseURL is the API host; the
// client appends the API version and method path itself. The key is only
// ever sent in the x-goog-api-key header.
type GeminiConfig struct {
	APIKey          string
	Model           string
	BaseURL         string
	Temperature     float32
	TopK            int
	TopP            float32
	MaxOutputTokens int
}

// GeminiChatModel calls Gemini generateContent through the generative-ai-go
// REST client. Only the latest user turn of the input is transmitted.
type GeminiChatModel struct {
	cfg    GeminiConfig
	client *genai.Client
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)

// NewGeminiChatModel validates cfg and creates the underlying client.
func NewGeminiChatModel(ctx context.Context, cfg GeminiConfig) (*GeminiChatModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("gemini model is required")
	}

	opts := []option.ClientOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Transport: &singleShotTransport{apiKey: cfg.APIKey, base: http.DefaultTransport}}),
	}
	if baseURL := strings.TrimSuffix(cfg.BaseURL, "/"); baseURL != "" {
		opts = append(opts, option.WithEndpoint(baseURL))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gemini client")
	}
	return &GeminiChatModel{cfg: cfg, client: client}, nil
}

// Close releases the underlying client.
func (g *GeminiChatModel) Close() error {
	return g.client.Close()
}

// Generate performs exactly one generateContent call.
func (g *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	prompt, ok := latestUserText(input)
	if !ok {
		return nil, errors.New("no user message to complete")
	}

	options := model.GetCommonOptions(&model.Options{
		Temperature: &g.cfg.Temperature,
		TopP:        &g.cfg.TopP,
		MaxTokens:   &g.cfg.MaxOutputTokens,
		Model:       &g.cfg.Model,
	}, opts...)

	gm := g.client.GenerativeModel(*options.Model)
	gm.SetTemperature(*options.Temperature)
	gm.SetTopK(clampInt32(g.cfg.TopK))
	gm.SetTopP(*options.TopP)
	gm.SetMaxOutputTokens(clampInt32(*options.MaxTokens))

	resp, err := gm.GenerateContent(withSingleAttempt(ctx), genai.Text(prompt))
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	if resp == nil {
		return nil, transportFailure(0, errors.New("gemini returned no response object"))
	}

	text, ok := firstPartText(resp)
	if !ok {
		return nil, emptyResponse("gemini response carried no candidate text")
	}

	log.Debug().Str("component", "gemini").Str("model", *options.Model).Int("length", len(text)).Msg("generated content")
	return schema.AssistantMessage(text, nil), nil
}

// Stream wraps Generate; token streaming is not offered.
func (g *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := g.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func latestUserText(input []*schema.Message) (string, bool) {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i] != nil && input[i].Role == schema.User {
			return input[i].Content, true
		}
	}
	return "", false
}

// firstPartText reads candidates[0].content.parts[0] as text.
func firstPartText(resp *genai.GenerateContentResponse) (string, bool) {
	if len(resp.Candidates) == 0 {
		return "", false
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", false
	}
	text, ok := candidate.Content.Parts[0].(genai.Text)
	if !ok || text == "" {
		return "", false
	}
	return string(text), true
}

// classifyGeminiError maps SDK errors onto the completion taxonomy. A
// blocked candidate has no text, everything else is a transport failure.
func classifyGeminiError(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return emptyResponse("gemini blocked the response: " + blocked.Error())
	}

	var refused *retryRefusedError
	if errors.As(err, &refused) {
		return transportFailure(refused.status, refused)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return transportFailure(apiErr.Code, errors.Wrap(err, "gemini request failed"))
	}
	return transportFailure(0, errors.Wrap(err, "gemini request failed"))
}

func clampInt32(v int) int32 {
	switch {
	case v < 0:
		return 0
	case v > math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(v)
	}
}

type attemptKey struct{}

type attempt struct {
	mu     sync.Mutex
	used   bool
	status int
}

func withSingleAttempt(ctx context.Context) context.Context {
	return context.WithValue(ctx, attemptKey{}, &attempt{})
}

type retryRefusedError struct {
	status int
}

func (e *retryRefusedError) Error() string {
	return "gemini request was not retried"
}

// singleShotTransport authenticates requests and lets each request context
// reach the network at most once.
type singleShotTransport struct {
	apiKey string
	base   http.RoundTripper
}

func (t *singleShotTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	a, _ := req.Context().Value(attemptKey{}).(*attempt)
	if a != nil {
		a.mu.Lock()
		if a.used {
			status := a.status
			a.mu.Unlock()
			return nil, &retryRefusedError{status: status}
		}
		a.used = true
		a.mu.Unlock()
	}

	req = req.Clone(req.Context())
	req.Header.Set("x-goog-api-key", t.apiKey)

	resp, err := t.base.RoundTrip(req)
	if a != nil && resp != nil {
		a.mu.Lock()
		a.status = resp.StatusCode
		a.mu.Unlock()
	}
	return resp, err
}
