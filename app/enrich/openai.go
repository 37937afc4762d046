package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	DefaultOpenAIModel   = "gpt-4o-mini"

	systemPrompt = "You are a medical professional expert in clinical practice guidelines."
)

type OpenAIConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// OpenAIProvider calls an OpenAI-compatible chat completions API.
type OpenAIProvider struct {
	apiKey  string
	model   string
	client  *openai.Client
	limiter *rate.Limiter
}

var _ Provider = (*OpenAIProvider)(nil)

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	} else {
		clientConfig.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &OpenAIProvider{
		apiKey:  cfg.APIKey,
		model:   model,
		client:  openai.NewClientWithConfig(clientConfig),
		limiter: limiter,
	}
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}

func (o *OpenAIProvider) Enrich(ctx context.Context, req Request) (Result, error) {
	if o.apiKey == "" {
		return Result{}, &ProviderError{Kind: KindDisabled}
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return Result{}, classifyError(ctx, err)
	}

	bullets := clampBullets(req.Bullets)
	completion, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(req.Title, req.Snippet, bullets)},
		},
		Temperature: 0.3,
		MaxTokens:   400,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Result{}, classifyError(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return Result{}, newProviderError(KindMalformed, "response has no choices")
	}

	choice := completion.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		slog.Warn("OpenAI response truncated due to max tokens", "model", completion.Model, "title", req.Title)
	}

	return parseCompletion(choice.Message.Content, bullets)
}

func buildPrompt(title, snippet string, bullets int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the clinical practice guideline titled %q.\n", title)
	if snippet != "" {
		fmt.Fprintf(&b, "Source text:\n%s\n", snippet)
	}
	fmt.Fprintf(&b, "Respond with a JSON object with two fields: ")
	fmt.Fprintf(&b, "\"summary\", an array of exactly %d short bullet statements covering the key recommendations, ", bullets)
	b.WriteString("and \"tags\", an array of 3 to 8 short lower-case labels naming the medical specialty, conditions and procedures involved.")
	return b.String()
}

func classifyStatus(status int, err error) *ProviderError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &ProviderError{Kind: KindAuth, Err: err}
	case status == http.StatusTooManyRequests:
		return &ProviderError{Kind: KindQuota, Err: err}
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &ProviderError{Kind: KindTimeout, Err: err}
	default:
		return &ProviderError{Kind: KindTransport, Err: err}
	}
}

func classifyError(ctx context.Context, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ProviderError{Kind: KindTimeout, Err: err}
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ProviderError{Kind: KindTimeout, Err: err}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, err)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return newProviderError(KindMalformed, "failed to parse response: %v", err)
	}

	return &ProviderError{Kind: KindTransport, Err: err}
}
