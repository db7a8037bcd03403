package service

import (
	"context"
	"strings"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/infra/observability"
	"github.com/boddenberg/leadchat-bfa-go/internal/port"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/leads")

// LeadService validates captured leads and appends them to the tenant ledger.
type LeadService struct {
	profiles    port.ProfileStore
	ledger      port.LeadLedger
	phoneRegion string
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewLeadService creates the lead service with all dependencies injected.
// phoneRegion is the ISO 3166 region used to read numbers without a
// country code (e.g. "US").
func NewLeadService(
	profiles port.ProfileStore,
	ledger port.LeadLedger,
	phoneRegion string,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LeadService {
	return &LeadService{
		profiles:    profiles,
		ledger:      ledger,
		phoneRegion: phoneRegion,
		metrics:     metrics,
		logger:      logger,
	}
}

// Capture persists a lead for siteID.
//
// Name and phone are required; a lead without them is counted as discarded
// and returned as *domain.ErrValidation. The phone is kept as typed and, when
// it parses as a valid number, also stored in E.164 form. CreatedAt is
// assigned by the ledger.
func (s *LeadService) Capture(ctx context.Context, siteID string, lead domain.Lead) (domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "LeadService.Capture")
	defer span.End()
	span.SetAttributes(attribute.String("site.id", siteID))

	profile, ok := s.profiles.Get(siteID)
	if !ok {
		return domain.Lead{}, &domain.ErrNotFound{Resource: "business", ID: siteID}
	}

	lead.Name = strings.TrimSpace(lead.Name)
	lead.Phone = strings.TrimSpace(lead.Phone)
	if lead.Name == "" || lead.Phone == "" {
		s.metrics.IncrLead(siteID, observability.LeadDiscarded)
		field := "name"
		if lead.Name != "" {
			field = "phone"
		}
		return domain.Lead{}, &domain.ErrValidation{Field: field, Message: "is required"}
	}

	lead.ID = uuid.NewString()
	lead.PhoneE164 = normalizePhone(lead.Phone, s.phoneRegion)

	stored, err := s.ledger.Append(ctx, profile, lead)
	if err != nil {
		s.metrics.IncrLead(siteID, observability.LeadFailed)
		return domain.Lead{}, err
	}

	s.metrics.IncrLead(siteID, observability.LeadCaptured)
	s.logger.Info("lead captured",
		zap.String("site_id", siteID),
		zap.String("lead_id", stored.ID),
		zap.Bool("phone_valid", stored.PhoneE164 != ""),
	)
	return stored, nil
}

// normalizePhone returns raw in E.164 form, or "" when it is not a valid number.
func normalizePhone(raw, region string) string {
	number, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return ""
	}
	if !phonenumbers.IsPossibleNumber(number) || !phonenumbers.IsValidNumber(number) {
		return ""
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}
