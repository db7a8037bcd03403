package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// leadsTable is expected to look like:
//
//	create table leads (
//	  id          text primary key,
//	  site_id     text not null,
//	  name        text not null,
//	  phone       text not null,
//	  phone_e164  text,
//	  zip         text,
//	  issue       text,
//	  created_at  text not null,
//	  unique (site_id, created_at)
//	);
//
// The unique index makes a concurrent insert from another instance fail
// with 409; the append is then retried against the new tail.
const leadsTable = "leads"

const maxInsertAttempts = 5

// supabaseLead maps the leads table columns to our domain.
type supabaseLead struct {
	ID        string `json:"id"`
	SiteID    string `json:"site_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	PhoneE164 string `json:"phone_e164,omitempty"`
	Zip       string `json:"zip,omitempty"`
	Issue     string `json:"issue,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (r supabaseLead) toDomain() domain.Lead {
	return domain.Lead{
		ID:        r.ID,
		Name:      r.Name,
		Phone:     r.Phone,
		PhoneE164: r.PhoneE164,
		Zip:       r.Zip,
		Issue:     r.Issue,
		CreatedAt: r.CreatedAt,
	}
}

// LeadStore implements port.LeadLedger on a Supabase table, one row per lead.
type LeadStore struct {
	client *Client
	locks  sync.Map // siteID → *sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

// NewLeadStore creates a ledger backed by the leads table.
func NewLeadStore(client *Client, logger *zap.Logger) *LeadStore {
	return &LeadStore{client: client, now: time.Now, logger: logger}
}

// WithClock replaces the time source used for CreatedAt.
func (s *LeadStore) WithClock(now func() time.Time) *LeadStore {
	s.now = now
	return s
}

// Append stamps lead.CreatedAt after the tenant's newest row and inserts it.
func (s *LeadStore) Append(ctx context.Context, profile *domain.BusinessProfile, lead domain.Lead) (domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.AppendLead")
	defer span.End()
	span.SetAttributes(attribute.String("site.id", profile.SiteID))

	mu, _ := s.locks.LoadOrStore(profile.SiteID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	defer mu.(*sync.Mutex).Unlock()

	var err error
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		var prev string
		prev, err = s.tailCreatedAt(ctx, profile.SiteID)
		if err != nil {
			return domain.Lead{}, &domain.ErrPersistence{SiteID: profile.SiteID, Op: "read", Err: err}
		}
		lead.CreatedAt = domain.NextLeadTime(prev, s.now())

		err = s.client.post(ctx, leadsTable, supabaseLead{
			ID:        lead.ID,
			SiteID:    profile.SiteID,
			Name:      lead.Name,
			Phone:     lead.Phone,
			PhoneE164: lead.PhoneE164,
			Zip:       lead.Zip,
			Issue:     lead.Issue,
			CreatedAt: lead.CreatedAt,
		})
		if !errors.Is(err, errConflict) {
			break
		}
		s.logger.Debug("lead insert conflicted, retrying",
			zap.String("site_id", profile.SiteID),
			zap.Int("attempt", attempt+1),
		)
	}
	if err != nil {
		return domain.Lead{}, &domain.ErrPersistence{SiteID: profile.SiteID, Op: "write", Err: err}
	}
	return lead, nil
}

func (s *LeadStore) tailCreatedAt(ctx context.Context, siteID string) (string, error) {
	q := url.Values{}
	q.Set("select", "created_at")
	q.Set("site_id", "eq."+siteID)
	q.Set("order", "created_at.desc")
	q.Set("limit", "1")

	body, err := s.client.get(ctx, leadsTable+"?"+q.Encode())
	if err != nil {
		return "", err
	}

	var rows []supabaseLead
	if err := json.Unmarshal(body, &rows); err != nil {
		return "", fmt.Errorf("failed to decode tail: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].CreatedAt, nil
}

// List returns the tenant's leads ordered by creation time.
func (s *LeadStore) List(ctx context.Context, profile *domain.BusinessProfile) ([]domain.Lead, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLeads")
	defer span.End()
	span.SetAttributes(attribute.String("site.id", profile.SiteID))

	q := url.Values{}
	q.Set("site_id", "eq."+profile.SiteID)
	q.Set("order", "created_at.asc")

	body, err := s.client.get(ctx, leadsTable+"?"+q.Encode())
	if err != nil {
		return nil, &domain.ErrPersistence{SiteID: profile.SiteID, Op: "read", Err: err}
	}

	var rows []supabaseLead
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &domain.ErrPersistence{SiteID: profile.SiteID, Op: "read", Err: fmt.Errorf("failed to decode leads: %w", err)}
	}

	leads := make([]domain.Lead, 0, len(rows))
	for _, r := range rows {
		leads = append(leads, r.toDomain())
	}
	return leads, nil
}

// Ping checks that the leads table is reachable (used by /healthz).
func (s *LeadStore) Ping(ctx context.Context) error {
	_, err := s.client.doRequest(ctx, http.MethodGet, leadsTable+"?select=id&limit=1", nil)
	return err
}
