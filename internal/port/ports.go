// Package port defines the interfaces (ports) for dependencies of the
// service layer. Following hexagonal architecture, these ports decouple
// the lead-capture logic from concrete storage and configuration.
package port

import (
	"context"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"
)

// ProfileStore resolves tenant configuration by siteId.
type ProfileStore interface {
	Get(siteID string) (*domain.BusinessProfile, bool)
}

// LeadLedger is the append-only per-tenant lead storage.
type LeadLedger interface {
	// Append stamps lead.CreatedAt and adds it at the tail of the tenant's
	// ledger, returning the stored lead. CreatedAt values are distinct and
	// increase in append order. Existing entries are never rewritten or
	// reordered, and a failed append leaves them intact.
	Append(ctx context.Context, profile *domain.BusinessProfile, lead domain.Lead) (domain.Lead, error)

	// List returns the tenant's leads oldest first. A tenant without
	// leads yields an empty slice and no error.
	List(ctx context.Context, profile *domain.BusinessProfile) ([]domain.Lead, error)
}

// Pinger is implemented by ledgers backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
