package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/leadchat-bfa-go/internal/chat/domain"
	maindomain "github.com/boddenberg/leadchat-bfa-go/internal/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// tracer is the OpenTelemetry tracer for chat/infra.
var tracer = otel.Tracer("chat/infra")

// serviceName labels breaker, metrics and errors for the model provider.
const serviceName = "llm"

// ============================================================
// LLMOracle — port.Oracle backed by a langchaingo model
// ============================================================
//
// Every call goes through:
//   - a bulkhead, capping concurrent model calls
//   - a circuit breaker, failing fast while the provider is down
//
// There is no retry. A failed call surfaces to the widget as an error and
// the user simply sends the message again, since no server state changed.

type LLMOracle struct {
	model    llms.Model
	cb       *gobreaker.CircuitBreaker
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewLLMOracle wraps model with the given breaker and bulkhead.
func NewLLMOracle(model llms.Model, cb *gobreaker.CircuitBreaker, bulkhead *resilience.Bulkhead, metrics *observability.Metrics, logger *zap.Logger) *LLMOracle {
	return &LLMOracle{
		model:    model,
		cb:       cb,
		bulkhead: bulkhead,
		metrics:  metrics,
		logger:   logger,
	}
}

// ProviderConfig selects and configures the model provider.
type ProviderConfig struct {
	Provider      string // "openai" or "ollama"
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	OllamaModel   string
	OllamaURL     string
	Timeout       time.Duration
}

// NewModel builds the langchaingo model for cfg.Provider.
func NewModel(cfg ProviderConfig) (llms.Model, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.OpenAIModel),
			openai.WithHTTPClient(httpClient),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return llm, nil
	case "ollama":
		llm, err := ollama.New(
			ollama.WithModel(cfg.OllamaModel),
			ollama.WithServerURL(cfg.OllamaURL),
			ollama.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// Complete sends the system prompt and turns to the model and returns the
// first choice.
//
// Errors:
//   - *domain.ErrCircuitOpen when the breaker rejects the call
//   - *domain.ErrExternalService for transport, provider or empty replies
func (o *LLMOracle) Complete(ctx context.Context, system string, turns []domain.Turn) (*domain.Completion, error) {
	ctx, span := tracer.Start(ctx, "LLMOracle.Complete")
	defer span.End()
	span.SetAttributes(attribute.Int("chat.turns", len(turns)))

	if err := o.bulkhead.Acquire(ctx); err != nil {
		return nil, &maindomain.ErrExternalService{Service: serviceName, Err: err}
	}
	defer o.bulkhead.Release()

	messages := toMessages(system, turns)

	start := time.Now()
	result, err := o.cb.Execute(func() (any, error) {
		resp, err := o.model.GenerateContent(ctx, messages)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("model returned no choices")
		}
		return resp.Choices[0], nil
	})
	o.metrics.RecordRequestDuration("llm_complete", time.Since(start))

	if err != nil {
		o.metrics.IncrExternalError(serviceName)
		if resilience.IsBreakerOpen(err) {
			o.logger.Warn("llm circuit open, rejecting call")
			return nil, &maindomain.ErrCircuitOpen{Service: serviceName}
		}
		return nil, &maindomain.ErrExternalService{Service: serviceName, Err: err}
	}

	choice := result.(*llms.ContentChoice)
	completion := &domain.Completion{
		Text:             choice.Content,
		PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
	}
	o.metrics.RecordTokens(completion.PromptTokens, completion.CompletionTokens)
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", completion.PromptTokens),
		attribute.Int("llm.completion_tokens", completion.CompletionTokens),
	)

	return completion, nil
}

// toMessages maps the conversation onto langchaingo message contents.
// Roles were validated by the service, so anything that is not
// "assistant" is sent as a human message.
func toMessages(system string, turns []domain.Turn) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(turns)+1)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, system))
	for _, t := range turns {
		role := schema.ChatMessageTypeHuman
		if t.Role == domain.RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, t.Content))
	}
	return messages
}

// intInfo reads a token count from GenerationInfo. Providers report it as
// int or float64 depending on how they decoded the payload.
func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
