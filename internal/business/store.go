// Package business loads and serves tenant (business) profiles.
//
// Profiles come from one static file, read once at start-up. The file is
// either JSON or YAML (chosen by extension) and maps siteId → profile:
//
//	{
//	  "demo-plumber": {
//	    "name": "Demo Plumbing Co.",
//	    "location": "Springfield and nearby towns",
//	    "services": ["Drain cleaning", "Water heater repair"],
//	    "pricing": {"diagnostic": "Diagnostic visit starts at $89"},
//	    "hours": "Mon-Fri 8am-6pm",
//	    "rules": ["We offer same-day service when booked before noon"],
//	    "token": "s3cret",
//	    "leadFile": "leads_demo-plumber.json",
//	    "timezone": "America/Chicago"
//	  }
//	}
//
// A broken entry is skipped with a warning; a broken or missing file yields
// an empty store. Either way the process keeps serving the other tenants.
package business

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Store is an immutable set of business profiles keyed by siteId.
// It is safe for concurrent use without locking.
type Store struct {
	profiles map[string]*domain.BusinessProfile
	ids      []string
}

// Load reads the profile file at path. Relative lead files are resolved
// against dataDir. Load never fails: problems are logged and the affected
// profiles (or all of them) are left out.
func Load(path, dataDir string, logger *zap.Logger) *Store {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("business profiles not loaded", zap.String("path", path), zap.Error(err))
		return newStore(nil)
	}

	raw, err := decodeEntries(path, data)
	if err != nil {
		logger.Error("business profiles unparsable", zap.String("path", path), zap.Error(err))
		return newStore(nil)
	}

	profiles := make([]*domain.BusinessProfile, 0, len(raw))
	for siteID, decode := range raw {
		var p domain.BusinessProfile
		if err := decode(&p); err != nil {
			logger.Warn("skipping malformed business profile",
				zap.String("site_id", siteID),
				zap.Error(err),
			)
			continue
		}
		p.SiteID = siteID
		if err := prepare(&p, dataDir); err != nil {
			logger.Warn("skipping malformed business profile",
				zap.String("site_id", siteID),
				zap.Error(err),
			)
			continue
		}
		if p.Timezone != "" {
			if _, err := time.LoadLocation(p.Timezone); err != nil {
				logger.Warn("unknown timezone, dashboard will use the default",
					zap.String("site_id", siteID),
					zap.String("timezone", p.Timezone),
				)
			}
		}
		if p.AccessToken == "" {
			logger.Warn("no dashboard token set, dashboard access disabled", zap.String("site_id", siteID))
		}
		profiles = append(profiles, &p)
	}

	s := newStore(profiles)
	logger.Info("business profiles loaded",
		zap.String("path", path),
		zap.Strings("site_ids", s.ids),
	)
	return s
}

// NewStore builds a store from in-memory profiles (used by tests and tools).
// Profiles failing validation are dropped.
func NewStore(dataDir string, profiles ...domain.BusinessProfile) *Store {
	valid := make([]*domain.BusinessProfile, 0, len(profiles))
	for i := range profiles {
		p := profiles[i]
		if err := prepare(&p, dataDir); err != nil {
			continue
		}
		valid = append(valid, &p)
	}
	return newStore(valid)
}

func newStore(profiles []*domain.BusinessProfile) *Store {
	s := &Store{profiles: make(map[string]*domain.BusinessProfile, len(profiles))}
	for _, p := range profiles {
		s.profiles[p.SiteID] = p
		s.ids = append(s.ids, p.SiteID)
	}
	sort.Strings(s.ids)
	return s
}

// Get returns the profile for siteID. The returned profile must not be modified.
func (s *Store) Get(siteID string) (*domain.BusinessProfile, bool) {
	p, ok := s.profiles[siteID]
	return p, ok
}

// All returns every profile ordered by siteId.
func (s *Store) All() []*domain.BusinessProfile {
	out := make([]*domain.BusinessProfile, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.profiles[id])
	}
	return out
}

// Len returns the number of usable profiles.
func (s *Store) Len() int {
	return len(s.ids)
}

// prepare validates a decoded profile and fills derived defaults.
func prepare(p *domain.BusinessProfile, dataDir string) error {
	if strings.TrimSpace(p.SiteID) == "" {
		return fmt.Errorf("empty siteId")
	}
	switch {
	case p.Services == nil:
		return fmt.Errorf("missing services")
	case p.Pricing == nil:
		return fmt.Errorf("missing pricing")
	case p.Rules == nil:
		return fmt.Errorf("missing rules")
	}

	if p.LeadFile == "" {
		p.LeadFile = fmt.Sprintf("leads_%s.json", p.SiteID)
	}
	if !filepath.IsAbs(p.LeadFile) && dataDir != "" {
		p.LeadFile = filepath.Join(dataDir, p.LeadFile)
	}
	return nil
}

type decodeFunc func(v any) error

// decodeEntries splits the file into per-site decoders so one bad entry
// does not poison the others.
func decodeEntries(path string, data []byte) (map[string]decodeFunc, error) {
	out := make(map[string]decodeFunc)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var nodes map[string]yaml.Node
		if err := yaml.Unmarshal(data, &nodes); err != nil {
			return nil, err
		}
		for id, node := range nodes {
			node := node
			out[id] = node.Decode
		}
	default:
		if len(strings.TrimSpace(string(data))) == 0 {
			return out, nil
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		for id, msg := range raw {
			msg := msg
			out[id] = func(v any) error { return json.Unmarshal(msg, v) }
		}
	}
	return out, nil
}
