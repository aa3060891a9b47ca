package providers

import (
	"context"
	"errors"
	"testing"
)

type stubLLMProvider struct {
	resp  *LLMResponse
	err   error
	calls int
}

func (p *stubLLMProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	p.calls++
	return p.resp, p.err
}

func (p *stubLLMProvider) GetDefaultModel() string { return "stub-model" }

func TestFallbackProviderUsesPrimaryOnSuccess(t *testing.T) {
	primary := &stubLLMProvider{resp: &LLMResponse{Content: "from primary"}}
	fallback := &stubLLMProvider{resp: &LLMResponse{Content: "from fallback"}}

	p := NewFallbackProvider(primary, fallback, "primary-model", "fallback-model")

	resp, err := p.Chat(context.Background(), nil, nil, "primary-model", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "from primary" {
		t.Errorf("Content = %q, want %q", resp.Content, "from primary")
	}
	if fallback.calls != 0 {
		t.Errorf("fallback should not be called when primary succeeds")
	}
}

func TestFallbackProviderFallsBackOnPrimaryError(t *testing.T) {
	primary := &stubLLMProvider{err: errors.New("primary down")}
	fallback := &stubLLMProvider{resp: &LLMResponse{Content: "from fallback"}}

	p := NewFallbackProvider(primary, fallback, "primary-model", "fallback-model")

	resp, err := p.Chat(context.Background(), nil, nil, "primary-model", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "from fallback" {
		t.Errorf("Content = %q, want %q", resp.Content, "from fallback")
	}
	if fallback.calls != 1 {
		t.Errorf("fallback.calls = %d, want 1", fallback.calls)
	}
}

func TestFallbackProviderErrorsWhenBothFail(t *testing.T) {
	primary := &stubLLMProvider{err: errors.New("primary down")}
	fallback := &stubLLMProvider{err: errors.New("fallback down too")}

	p := NewFallbackProvider(primary, fallback, "primary-model", "fallback-model")

	if _, err := p.Chat(context.Background(), nil, nil, "primary-model", nil); err == nil {
		t.Errorf("expected an error when both providers fail")
	}
}

func TestFallbackProviderGetDefaultModel(t *testing.T) {
	primary := &stubLLMProvider{}
	fallback := &stubLLMProvider{}
	p := NewFallbackProvider(primary, fallback, "primary-model", "fallback-model")

	if got := p.GetDefaultModel(); got != "primary-model" {
		t.Errorf("GetDefaultModel() = %q, want %q", got, "primary-model")
	}
}

func TestFallbackProviderChatStreamFallsBackToPlainChat(t *testing.T) {
	primary := &stubLLMProvider{err: errors.New("primary down")}
	fallback := &stubLLMProvider{resp: &LLMResponse{Content: "streamed fallback"}}

	p := NewFallbackProvider(primary, fallback, "primary-model", "fallback-model")

	resp, err := p.ChatStream(context.Background(), nil, nil, "primary-model", nil, func(delta string) {})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	if resp.Content != "streamed fallback" {
		t.Errorf("Content = %q, want %q", resp.Content, "streamed fallback")
	}
}

func TestFallbackProviderAccessors(t *testing.T) {
	primary := &stubLLMProvider{}
	fallback := &stubLLMProvider{}
	p := NewFallbackProvider(primary, fallback, "primary-model", "fallback-model")

	if p.Primary() != LLMProvider(primary) {
		t.Errorf("Primary() did not return the wrapped primary provider")
	}
	if p.Fallback() != LLMProvider(fallback) {
		t.Errorf("Fallback() did not return the wrapped fallback provider")
	}
	if p.FallbackModel() != "fallback-model" {
		t.Errorf("FallbackModel() = %q, want %q", p.FallbackModel(), "fallback-model")
	}
}
