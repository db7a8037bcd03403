// Package ledger persists captured leads, one append-only sequence per tenant.
//
// Two backends implement port.LeadLedger:
//   - FileLedger: one JSON array file per tenant, rewritten atomically.
//   - RedisLedger: one Redis list per tenant.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"

	"github.com/google/renameio/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("infra/ledger")

// FileLedger stores each tenant's leads as a pretty-printed JSON array at
// the profile's LeadFile path.
//
// Appends are a read-modify-write of the whole file, so they are serialized
// per file with a mutex. The new content is written to a temp file and
// renamed over the old one: readers see either the old or the new ledger,
// and a failed write leaves the old file untouched.
type FileLedger struct {
	locks  sync.Map // path → *sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

// NewFileLedger creates a file-backed ledger.
func NewFileLedger(logger *zap.Logger) *FileLedger {
	return &FileLedger{now: time.Now, logger: logger}
}

// WithClock replaces the time source used for CreatedAt.
func (l *FileLedger) WithClock(now func() time.Time) *FileLedger {
	l.now = now
	return l
}

func (l *FileLedger) lockFor(path string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(filepath.Clean(path), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Append stamps lead.CreatedAt and adds it at the end of the tenant's
// ledger file. It returns the lead as stored.
func (l *FileLedger) Append(ctx context.Context, profile *domain.BusinessProfile, lead domain.Lead) (domain.Lead, error) {
	_, span := tracer.Start(ctx, "FileLedger.Append")
	defer span.End()
	span.SetAttributes(attribute.String("site.id", profile.SiteID))

	path := profile.LeadFile
	mu := l.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	leads, err := readLeads(path)
	if err != nil {
		// A ledger we cannot parse is never overwritten.
		return domain.Lead{}, &domain.ErrPersistence{SiteID: profile.SiteID, Op: "read", Err: err}
	}

	prev := ""
	if n := len(leads); n > 0 {
		prev = leads[n-1].CreatedAt
	}
	lead.CreatedAt = domain.NextLeadTime(prev, l.now())
	leads = append(leads, lead)

	data, err := json.MarshalIndent(leads, "", "  ")
	if err != nil {
		return domain.Lead{}, &domain.ErrPersistence{SiteID: profile.SiteID, Op: "encode", Err: err}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return domain.Lead{}, &domain.ErrPersistence{SiteID: profile.SiteID, Op: "write", Err: err}
		}
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return domain.Lead{}, &domain.ErrPersistence{SiteID: profile.SiteID, Op: "write", Err: err}
	}

	l.logger.Debug("lead appended to file ledger",
		zap.String("site_id", profile.SiteID),
		zap.String("path", path),
		zap.Int("ledger_size", len(leads)),
	)
	return lead, nil
}

// List returns the tenant's leads, oldest first.
// The file is replaced atomically on write, so no lock is needed here.
func (l *FileLedger) List(ctx context.Context, profile *domain.BusinessProfile) ([]domain.Lead, error) {
	_, span := tracer.Start(ctx, "FileLedger.List")
	defer span.End()
	span.SetAttributes(attribute.String("site.id", profile.SiteID))

	leads, err := readLeads(profile.LeadFile)
	if err != nil {
		return nil, &domain.ErrPersistence{SiteID: profile.SiteID, Op: "read", Err: err}
	}
	return leads, nil
}

// readLeads loads a ledger file. A missing or blank file is an empty ledger.
func readLeads(path string) ([]domain.Lead, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Lead{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []domain.Lead{}, nil
	}

	leads := []domain.Lead{}
	if err := json.Unmarshal(data, &leads); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return leads, nil
}

