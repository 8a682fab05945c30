package llm

import (
	"errors"
	"testing"

	"github.com/openai/openai-go"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit status", &openai.Error{StatusCode: 429}, true},
		{"server error status", &openai.Error{StatusCode: 503}, true},
		{"bad request status", &openai.Error{StatusCode: 400}, false},
		{"auth error status", &openai.Error{StatusCode: 401}, false},
		{"rate limit text", errors.New("Rate limit exceeded, slow down"), true},
		{"server error text", errors.New("500 Internal Server Error"), true},
		{"plain failure", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransient(tt.err); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewOpenAIProviderDefaults(t *testing.T) {
	p := NewOpenAIProvider("key", "", "gpt-4o-mini", 0, 0)
	if p.maxTokens != 256 {
		t.Errorf("expected default max tokens 256, got %d", p.maxTokens)
	}
	if p.Model() != "gpt-4o-mini" {
		t.Errorf("unexpected model %q", p.Model())
	}
}
