package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// Provider is the interface to the classification service. Implementations
// send the system instructions plus a JSON-serialized user payload and
// return the raw response text, which is expected (but not guaranteed) to
// be a JSON object.
type Provider interface {
	Classify(ctx context.Context, systemInstructions string, userPayload any) (string, error)
	Model() string
}

const (
	maxAttempts = 5
	baseBackoff = 1 * time.Second
	maxBackoff  = 20 * time.Second
)

// OpenAIProvider calls an OpenAI-compatible endpoint in JSON mode.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAIProvider creates a provider. baseURL may be empty for the public
// API or point at an Azure-style endpoint.
func NewOpenAIProvider(apiKey, baseURL, model string, maxTokens int, temperature float64) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	if maxTokens <= 0 {
		maxTokens = 256
	}
	return &OpenAIProvider{
		client:      &client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Model returns the configured model name, persisted with every result.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Classify sends one classification request. Transient failures (rate
// limits, server errors) are retried with exponential backoff; anything
// else propagates immediately.
func (p *OpenAIProvider) Classify(ctx context.Context, systemInstructions string, userPayload any) (string, error) {
	body, err := json.Marshal(userPayload)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}

	params := responses.ResponseNewParams{
		Model:           p.model,
		MaxOutputTokens: openai.Int(int64(p.maxTokens)),
		Temperature:     openai.Float(p.temperature),
		Instructions:    openai.String(systemInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(string(body), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			},
		},
	}

	wait := baseBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			log.Printf("retrying classification call (attempt %d/%d) after %s: %v",
				attempt, maxAttempts, wait, lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			wait *= 2
			if wait > maxBackoff {
				wait = maxBackoff
			}
		}

		resp, err := p.client.Responses.New(ctx, params)
		if err != nil {
			lastErr = err
			if isTransient(err) {
				continue
			}
			return "", err
		}
		return resp.OutputText(), nil
	}
	return "", fmt.Errorf("classification failed after %d attempts: %w", maxAttempts, lastErr)
}

// isTransient reports whether err is a rate limit or server-side API error
// worth retrying.
func isTransient(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return apierr.StatusCode == 429 || apierr.StatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "internal server error") ||
		strings.Contains(msg, "server_error")
}
