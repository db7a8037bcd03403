package infra_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/leadchat-bfa-go/internal/chat/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/chat/infra"
	maindomain "github.com/boddenberg/leadchat-bfa-go/internal/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// mockLLM implements llms.Model and records the last request.
type mockLLM struct {
	response *llms.ContentResponse
	err      error
	calls    int
	last     []llms.MessageContent
}

func (m *mockLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	m.last = messages
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

var _ llms.Model = (*mockLLM)(nil)

func reply(text string, info map[string]any) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: text, GenerationInfo: info}}}
}

func newOracle(m llms.Model, metrics *observability.Metrics) *infra.LLMOracle {
	return infra.NewLLMOracle(m, resilience.NewCircuitBreaker("llm-test"), resilience.NewBulkhead(2), metrics, zap.NewNop())
}

func TestLLMOracle_Complete(t *testing.T) {
	m := &mockLLM{response: reply("Hello there!", map[string]any{"PromptTokens": 120, "CompletionTokens": float64(8)})}
	oracle := newOracle(m, observability.NewMetrics())

	turns := []domain.Turn{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "Hello! How can I help?"},
		{Role: domain.RoleUser, Content: "my sink leaks"},
	}
	got, err := oracle.Complete(context.Background(), "SYSTEM PROMPT", turns)
	require.NoError(t, err)

	assert.Equal(t, "Hello there!", got.Text)
	assert.Equal(t, 120, got.PromptTokens)
	assert.Equal(t, 8, got.CompletionTokens)

	require.Len(t, m.last, 4)
	assert.Equal(t, schema.ChatMessageTypeSystem, m.last[0].Role)
	assert.Equal(t, llms.TextContent{Text: "SYSTEM PROMPT"}, m.last[0].Parts[0])
	assert.Equal(t, schema.ChatMessageTypeHuman, m.last[1].Role)
	assert.Equal(t, schema.ChatMessageTypeAI, m.last[2].Role)
	assert.Equal(t, schema.ChatMessageTypeHuman, m.last[3].Role)
	assert.Equal(t, llms.TextContent{Text: "my sink leaks"}, m.last[3].Parts[0])
}

func TestLLMOracle_ProviderError(t *testing.T) {
	m := &mockLLM{err: errors.New("connection reset")}
	metrics := observability.NewMetrics()
	oracle := newOracle(m, metrics)

	_, err := oracle.Complete(context.Background(), "sys", []domain.Turn{{Role: domain.RoleUser, Content: "hi"}})

	var ext *maindomain.ErrExternalService
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, "llm", ext.Service)
	assert.Equal(t, 1, m.calls, "no retry")
}

func TestLLMOracle_NoChoices(t *testing.T) {
	m := &mockLLM{response: &llms.ContentResponse{}}
	oracle := newOracle(m, observability.NewMetrics())

	_, err := oracle.Complete(context.Background(), "sys", []domain.Turn{{Role: domain.RoleUser, Content: "hi"}})
	var ext *maindomain.ErrExternalService
	assert.ErrorAs(t, err, &ext)
}

func TestLLMOracle_BreakerOpens(t *testing.T) {
	m := &mockLLM{err: errors.New("503 from provider")}
	oracle := newOracle(m, observability.NewMetrics())
	turns := []domain.Turn{{Role: domain.RoleUser, Content: "hi"}}

	for i := 0; i < 5; i++ {
		_, _ = oracle.Complete(context.Background(), "sys", turns)
	}

	_, err := oracle.Complete(context.Background(), "sys", turns)
	var open *maindomain.ErrCircuitOpen
	require.ErrorAs(t, err, &open)
	assert.Equal(t, 5, m.calls, "open breaker does not reach the model")
}

func TestNewModel_UnknownProvider(t *testing.T) {
	_, err := infra.NewModel(infra.ProviderConfig{Provider: "bard"})
	assert.Error(t, err)
}

func TestNewModel_Providers(t *testing.T) {
	m, err := infra.NewModel(infra.ProviderConfig{Provider: "openai", OpenAIAPIKey: "sk-test", OpenAIModel: "gpt-4.1-mini"})
	require.NoError(t, err)
	assert.NotNil(t, m)

	m, err = infra.NewModel(infra.ProviderConfig{Provider: "ollama", OllamaModel: "llama3.1", OllamaURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.NotNil(t, m)
}
