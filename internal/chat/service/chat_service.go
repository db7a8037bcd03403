// Package service implements the conversation orchestrator behind POST /chat.
//
// ============================================================
// FLOW
// ============================================================
//
//  1. Validate the message and history roles (no model call on bad input).
//  2. Resolve the tenant; an unknown siteId gets a scripted fallback reply.
//  3. Build the conversation: system prompt, client history, new message.
//  4. Call the model exactly once.
//  5. Strip the lead marker from the reply; if it holds a valid lead,
//     capture it and append the confirmation sentence.
//
// The server keeps no conversation state. Everything needed to continue
// the conversation comes back in the next request's history.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/leadchat-bfa-go/internal/chat/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/chat/extract"
	"github.com/boddenberg/leadchat-bfa-go/internal/chat/port"
	"github.com/boddenberg/leadchat-bfa-go/internal/chat/prompt"
	maindomain "github.com/boddenberg/leadchat-bfa-go/internal/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/observability"
	mainport "github.com/boddenberg/leadchat-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// chatTracer is the OpenTelemetry tracer for chat/service.
var chatTracer = otel.Tracer("chat/service")

// FallbackReply is returned for a siteId with no business profile.
const FallbackReply = "Sorry, this business is not configured yet."

// ConfirmationSentence is appended to the reply once a lead is stored.
const ConfirmationSentence = "I have your details and will pass them to the team so they can contact you shortly."

// Options tunes the orchestrator.
type Options struct {
	// DefaultSiteID is used when the request carries no siteId.
	DefaultSiteID string

	// MaxHistoryTurns caps how many of the most recent history turns are
	// forwarded to the model. Zero or less forwards everything.
	MaxHistoryTurns int
}

// ChatService orchestrates one chat turn.
type ChatService struct {
	profiles mainport.ProfileStore
	oracle   port.Oracle
	leads    port.LeadCapturer

	// prompts caches rendered system prompts by siteId. Profiles never
	// change after start-up, so entries only expire to bound memory.
	prompts mainport.Cache[string]

	opts    Options
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewChatService creates the ChatService with its dependencies injected.
func NewChatService(
	profiles mainport.ProfileStore,
	oracle port.Oracle,
	leads port.LeadCapturer,
	prompts mainport.Cache[string],
	opts Options,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		profiles: profiles,
		oracle:   oracle,
		leads:    leads,
		prompts:  prompts,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
}

// Handle processes one user message and returns the reply for the widget.
//
// Errors:
//   - *domain.ErrValidation: empty message or a history turn with a bad role
//   - *domain.ErrExternalService / *domain.ErrCircuitOpen: model call failed
//
// An unknown tenant and a failed lead capture are not errors.
func (s *ChatService) Handle(ctx context.Context, req *domain.ChatRequest) (*domain.ChatResponse, error) {
	ctx, span := chatTracer.Start(ctx, "ChatService.Handle")
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("chat", time.Since(start)) }()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		s.metrics.IncrChatRequest(observability.ChatInvalid)
		return nil, &maindomain.ErrValidation{Field: "message", Message: "no message provided"}
	}
	if err := validateHistory(req.History); err != nil {
		s.metrics.IncrChatRequest(observability.ChatInvalid)
		return nil, err
	}

	siteID := strings.TrimSpace(req.SiteID)
	if siteID == "" {
		siteID = s.opts.DefaultSiteID
	}
	span.SetAttributes(attribute.String("site.id", siteID))

	profile, ok := s.profiles.Get(siteID)
	if !ok {
		s.logger.Warn("no business configured for siteId", zap.String("site_id", siteID))
		s.metrics.IncrChatRequest(observability.ChatFallback)
		return &domain.ChatResponse{Reply: FallbackReply}, nil
	}

	history := s.trimHistory(req.History)
	turns := make([]domain.Turn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, domain.Turn{Role: domain.RoleUser, Content: message})

	s.logger.Info("chat message received",
		zap.String("site_id", siteID),
		zap.Int("history_len", len(req.History)),
		zap.Int("message_length", len(message)),
	)

	completion, err := s.oracle.Complete(ctx, s.systemPrompt(profile), turns)
	if err != nil {
		s.metrics.IncrChatRequest(observability.ChatError)
		s.logger.Error("llm call failed",
			zap.String("site_id", siteID),
			zap.Error(err),
		)
		return nil, err
	}

	reply := s.captureLead(ctx, siteID, completion.Text)

	s.metrics.IncrChatRequest(observability.ChatSuccess)
	return &domain.ChatResponse{Reply: reply}, nil
}

// captureLead strips the marker from raw and stores the lead it carries.
// It returns the text to show the user.
func (s *ChatService) captureLead(ctx context.Context, siteID, raw string) string {
	res := extract.Extract(raw)
	if !res.Found() {
		return res.Reply
	}

	if !res.Lead.Valid() {
		s.metrics.IncrLead(siteID, observability.LeadDiscarded)
		s.logger.Warn("lead marker without name or phone, discarded",
			zap.String("site_id", siteID),
			zap.Bool("has_name", res.Lead.Name != ""),
			zap.Bool("has_phone", res.Lead.Phone != ""),
		)
		return res.Reply
	}

	stored, err := s.leads.Capture(ctx, siteID, maindomain.Lead{
		Name:  res.Lead.Name,
		Phone: res.Lead.Phone,
		Zip:   res.Lead.Zip,
		Issue: res.Lead.Issue,
	})
	if err != nil {
		var verr *maindomain.ErrValidation
		if !errors.As(err, &verr) {
			s.logger.Error("lead capture failed, reply still returned",
				zap.String("site_id", siteID),
				zap.Error(err),
			)
		}
		return res.Reply
	}

	s.logger.Debug("lead confirmed to user",
		zap.String("site_id", siteID),
		zap.String("lead_id", stored.ID),
	)
	if res.Reply == "" {
		return ConfirmationSentence
	}
	return res.Reply + "\n\n" + ConfirmationSentence
}

// systemPrompt returns the cached prompt for profile, rendering it on a miss.
func (s *ChatService) systemPrompt(profile *maindomain.BusinessProfile) string {
	if cached, ok := s.prompts.Get(profile.SiteID); ok {
		s.metrics.IncrCacheHit("prompt")
		return cached
	}
	s.metrics.IncrCacheMiss("prompt")

	rendered := prompt.Render(profile)
	s.prompts.Set(profile.SiteID, rendered)
	return rendered
}

// trimHistory keeps the most recent MaxHistoryTurns turns, in order.
func (s *ChatService) trimHistory(history []domain.Turn) []domain.Turn {
	if limit := s.opts.MaxHistoryTurns; limit > 0 && len(history) > limit {
		return history[len(history)-limit:]
	}
	return history
}

// validateHistory rejects roles other than user and assistant, so a client
// cannot slip in a second system prompt.
func validateHistory(history []domain.Turn) error {
	for i, t := range history {
		switch t.Role {
		case domain.RoleUser, domain.RoleAssistant:
		default:
			return &maindomain.ErrValidation{
				Field:   fmt.Sprintf("history[%d].role", i),
				Message: fmt.Sprintf("unsupported role %q (expected user or assistant)", t.Role),
			}
		}
	}
	return nil
}
