// Package port defines the chat module's dependencies: the language model
// and the lead sink.
//
// Following the hexagonal layout, ChatService depends on these interfaces
// and never on the concrete langchaingo client or ledger.
package port

import (
	"context"

	chatdomain "github.com/boddenberg/leadchat-bfa-go/internal/chat/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/domain"
)

// Oracle produces one assistant reply for a conversation.
//
// system is sent first as the system message, then turns in order. The
// last turn is the new user message. Implementations make a single model
// call and never retry.
type Oracle interface {
	Complete(ctx context.Context, system string, turns []chatdomain.Turn) (*chatdomain.Completion, error)
}

// LeadCapturer persists a lead extracted from a reply.
// service.LeadService implements it.
type LeadCapturer interface {
	Capture(ctx context.Context, siteID string, lead domain.Lead) (domain.Lead, error)
}
