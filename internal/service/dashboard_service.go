package service

import (
	"context"
	"crypto/subtle"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// DashboardView is what the lead dashboard renders for one tenant.
type DashboardView struct {
	Profile *domain.BusinessProfile
	Leads   []domain.Lead
}

// DashboardService gates read access to a tenant's ledger by access token.
type DashboardService struct {
	profiles port.ProfileStore
	ledger   port.LeadLedger
	logger   *zap.Logger
}

// NewDashboardService creates the dashboard service.
func NewDashboardService(profiles port.ProfileStore, ledger port.LeadLedger, logger *zap.Logger) *DashboardService {
	return &DashboardService{profiles: profiles, ledger: ledger, logger: logger}
}

// Leads returns the tenant's profile and leads when token matches the
// tenant's access token.
//
// Unknown siteID → *domain.ErrNotFound. Wrong or missing token, or a tenant
// without a configured token → *domain.ErrForbidden.
func (s *DashboardService) Leads(ctx context.Context, siteID, token string) (*DashboardView, error) {
	ctx, span := tracer.Start(ctx, "DashboardService.Leads")
	defer span.End()
	span.SetAttributes(attribute.String("site.id", siteID))

	profile, ok := s.profiles.Get(siteID)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "business", ID: siteID}
	}

	if profile.AccessToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(profile.AccessToken)) != 1 {
		return nil, &domain.ErrForbidden{Action: "view leads for " + siteID}
	}

	leads, err := s.ledger.List(ctx, profile)
	if err != nil {
		s.logger.Error("failed to read lead ledger",
			zap.String("site_id", siteID),
			zap.Error(err),
		)
		return nil, err
	}

	return &DashboardView{Profile: profile, Leads: leads}, nil
}
