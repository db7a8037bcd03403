package domain

import "sort"

// DefaultTimezone is used for dashboard timestamps when a business has none configured.
const DefaultTimezone = "America/New_York"

// BusinessProfile is the configuration of one tenant (a local-service business).
// Profiles are loaded once at start-up and never mutated afterwards.
type BusinessProfile struct {
	SiteID      string            `json:"-" yaml:"-"`
	Name        string            `json:"name" yaml:"name"`
	Location    string            `json:"location" yaml:"location"`
	Services    []string          `json:"services" yaml:"services"`
	Pricing     map[string]string `json:"pricing" yaml:"pricing"`
	Hours       string            `json:"hours" yaml:"hours"`
	Rules       []string          `json:"rules" yaml:"rules"`
	AccessToken string            `json:"token" yaml:"token"`
	LeadFile    string            `json:"leadFile" yaml:"leadFile"`
	Timezone    string            `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// PricingLines returns the pricing display strings ordered by category key,
// so prompts rendered from the same profile are byte-identical.
func (p *BusinessProfile) PricingLines() []string {
	keys := make([]string, 0, len(p.Pricing))
	for k := range p.Pricing {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, p.Pricing[k])
	}
	return lines
}

// TimezoneOrDefault returns the configured IANA zone name or DefaultTimezone.
func (p *BusinessProfile) TimezoneOrDefault() string {
	if p.Timezone == "" {
		return DefaultTimezone
	}
	return p.Timezone
}
