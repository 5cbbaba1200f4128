package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ziadkadry99/coursebot/internal/retry"
)

// MockProvider is a test provider that records calls and returns canned responses.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []CompletionRequest
	Response *CompletionResponse
	// Errs are returned in order before Response is served.
	Errs     []error
	ProvName string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if len(m.Errs) > 0 {
		err := m.Errs[0]
		m.Errs = m.Errs[1:]
		return nil, err
	}
	return m.Response, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

var fastPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Timeout: time.Second}

// --- Tests ---

func TestPromptBuildsSingleUserMessage(t *testing.T) {
	req := Prompt("expand", "hello")
	if req.Operation != "expand" {
		t.Errorf("expected operation 'expand', got %q", req.Operation)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != RoleUser || req.Messages[0].Content != "hello" {
		t.Errorf("unexpected messages: %+v", req.Messages)
	}
}

func TestFactoryReturnsErrorForMissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewProvider("openai", "gpt-4o-mini"); err == nil {
		t.Error("expected error for openai with missing API key")
	}
}

func TestFactoryReturnsErrorForUnknownProvider(t *testing.T) {
	if _, err := NewProvider("anthropic", "some-model"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestFactoryCreatesOllamaWithDefaultHost(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	provider, err := NewProvider("ollama", "llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ollamaP, ok := provider.(*OllamaProvider)
	if !ok {
		t.Fatal("expected *OllamaProvider")
	}
	if ollamaP.baseURL != DefaultOllamaHost {
		t.Errorf("expected default host, got %q", ollamaP.baseURL)
	}
}

func TestFactoryCreatesOpenAIProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	provider, err := NewProvider("openai", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Name() != "openai" {
		t.Errorf("expected name 'openai', got %q", provider.Name())
	}
}

func TestOllamaProviderComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req ollamaChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if req.Model != "llama3" {
			t.Errorf("expected default model, got %q", req.Model)
		}
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:    ollamaMessage{Role: "assistant", Content: "four\nvariants"},
			Model:      "llama3",
			DoneReason: "stop",
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")
	resp, err := p.Complete(context.Background(), Prompt("expand", "q"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "four\nvariants" {
		t.Errorf("unexpected content %q", resp.Content)
	}
}

func TestOllamaProviderClientErrorIsPermanent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewRetryingProvider(NewOllamaProvider(srv.URL, "missing"), fastPolicy, nil)
	_, err := p.Complete(context.Background(), Prompt("answer", "q"))
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, retry.ErrExhausted) {
		t.Error("client errors must not be reported as exhausted retries")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestOllamaProviderServerErrorIsRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewRetryingProvider(NewOllamaProvider(srv.URL, "llama3"), fastPolicy, nil)
	_, err := p.Complete(context.Background(), Prompt("answer", "q"))
	if !errors.Is(err, retry.ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if calls != fastPolicy.MaxAttempts {
		t.Errorf("expected %d calls, got %d", fastPolicy.MaxAttempts, calls)
	}
}

func TestRetryingProviderRecoversFromTransientErrors(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Errs = []error{errors.New("connection reset"), errors.New("timeout")}

	p := NewRetryingProvider(mock, fastPolicy, nil)
	resp, err := p.Complete(context.Background(), Prompt("expand", "q"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if mock.CallCount() != 3 {
		t.Errorf("expected 3 calls, got %d", mock.CallCount())
	}
	if p.Name() != "test" {
		t.Errorf("expected name 'test', got %q", p.Name())
	}
}

func TestRetryingProviderStopsOnPermanentError(t *testing.T) {
	mock := NewMockProvider("test")
	mock.Errs = []error{retry.Permanent(errors.New("invalid api key"))}

	p := NewRetryingProvider(mock, fastPolicy, nil)
	if _, err := p.Complete(context.Background(), Prompt("expand", "q")); err == nil {
		t.Fatal("expected error")
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}
}

func TestRateLimiterPassesThrough(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 60)

	resp, err := rl.Complete(context.Background(), Prompt("answer", "hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if rl.Name() != "test" {
		t.Errorf("expected name 'test', got %q", rl.Name())
	}
}

func TestRateLimiterDisabledForZeroRPM(t *testing.T) {
	mock := NewMockProvider("test")
	if got := NewRateLimitedProvider(mock, 0); got != Provider(mock) {
		t.Error("expected the provider to be returned unchanged")
	}
}

func TestRateLimiterLimitsRequests(t *testing.T) {
	mock := NewMockProvider("test")
	// Allow only 2 requests per minute.
	rl := NewRateLimitedProvider(mock, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	for i := 0; i < 2; i++ {
		if _, err := rl.Complete(ctx, Prompt("answer", "hello")); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}

	// Third should block until the context expires.
	if _, err := rl.Complete(ctx, Prompt("answer", "hello")); err == nil {
		t.Error("expected error due to rate limiting + context timeout")
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected 2 calls to reach the provider, got %d", mock.CallCount())
	}
}
